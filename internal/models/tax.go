package models

import (
	"math/big"
	"time"
)

// TaxInflow is one tax-bearing transfer leg. TokenAddress identifies which
// asset the tax was paid in (the quote asset or the project token itself).
// (TxHash, LogIndex) is unique.
type TaxInflow struct {
	ID           int64     `json:"id"`
	ProjectID    int64     `json:"projectId"`
	TxHash       string    `json:"txHash"`
	LogIndex     uint      `json:"logIndex"`
	Block        uint64    `json:"block"`
	Timestamp    time.Time `json:"timestamp"`
	TokenAddress string    `json:"tokenAddress"`
	Amount       *big.Int  `json:"amount"`
	CreatedAt    time.Time `json:"createdAt"`
}

type TaxTotals struct {
	QuoteTotal *big.Int `json:"quoteTotal"`
	TokenTotal *big.Int `json:"tokenTotal"`
	Inflows    int64    `json:"inflows"`
}
