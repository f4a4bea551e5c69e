package models

import (
	"math/big"
	"time"
)

// AddressCost is the running weighted-average cost ledger for one address.
// Totals only ever grow; each update supersedes the previous running total.
// TokensSold may exceed TokensReceived (transfer-only inflows can be sold);
// downstream open-position math floors the difference at zero.
type AddressCost struct {
	ProjectID       int64     `json:"projectId"`
	Address         string    `json:"address"`
	NetQuoteSpent   *big.Int  `json:"netQuoteSpent"`
	GrossQuoteSpent *big.Int  `json:"grossQuoteSpent"`
	TokensReceived  *big.Int  `json:"tokensReceived"`
	TokensSold      *big.Int  `json:"tokensSold"`
	QuoteReceived   *big.Int  `json:"quoteReceived"`
	AvgCostNet      float64   `json:"avgCostNet"`
	AvgCostGross    float64   `json:"avgCostGross"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// NewAddressCost returns a zeroed ledger row for an address.
func NewAddressCost(projectID int64, address string) *AddressCost {
	return &AddressCost{
		ProjectID:       projectID,
		Address:         address,
		NetQuoteSpent:   new(big.Int),
		GrossQuoteSpent: new(big.Int),
		TokensReceived:  new(big.Int),
		TokensSold:      new(big.Int),
		QuoteReceived:   new(big.Int),
	}
}
