package models

import (
	"math/big"
	"time"
)

// Phase is the lifecycle stage of a project's market.
// A project starts INTERNAL (bonding curve) and transitions to EXTERNAL
// (DEX pool) exactly once; the transition never reverts.
type Phase string

const (
	PhaseInternal Phase = "INTERNAL"
	PhaseExternal Phase = "EXTERNAL"
)

type Project struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	TokenAddress     string    `json:"tokenAddress"`
	QuoteAddress     string    `json:"quoteAddress"`
	Phase            Phase     `json:"phase"`
	TaxRecipient     *string   `json:"taxRecipient,omitempty"`
	TotalSupply      *big.Int  `json:"totalSupply,omitempty"`
	BuyTaxBps        *int      `json:"buyTaxBps,omitempty"`
	FirstActiveBlock *uint64   `json:"firstActiveBlock,omitempty"`
	LastSpotPrice    *float64  `json:"lastSpotPrice,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}
