package models

import (
	"math/big"
	"time"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade is one reconstructed swap against a market. A transaction yields at
// most one trade per venue; (TxHash, LogIndex) is the uniqueness key, where
// LogIndex is the minimum log index across the transfers that produced it.
// Rows are immutable once inserted and inserts are idempotent.
type Trade struct {
	ID            int64     `json:"id"`
	ProjectID     int64     `json:"projectId"`
	Venue         Venue     `json:"venue"`
	MarketAddress string    `json:"marketAddress"`
	TxHash        string    `json:"txHash"`
	LogIndex      uint      `json:"logIndex"`
	Block         uint64    `json:"block"`
	Timestamp     time.Time `json:"timestamp"`
	Trader        string    `json:"trader"`
	Side          Side      `json:"side"`
	QuoteIn       *big.Int  `json:"quoteIn,omitempty"`      // net: reached the market
	QuoteInGross  *big.Int  `json:"quoteInGross,omitempty"` // trader's actual outlay, >= QuoteIn
	QuoteOut      *big.Int  `json:"quoteOut,omitempty"`
	TokenIn       *big.Int  `json:"tokenIn,omitempty"`
	TokenOut      *big.Int  `json:"tokenOut,omitempty"`
	Price         float64   `json:"price"` // net quote per token
	CreatedAt     time.Time `json:"createdAt"`
}

// QuoteVolume returns the quote-side size of the trade: net quote-in for a
// BUY, quote-out for a SELL. Used for whale-alert thresholds.
func (t *Trade) QuoteVolume() *big.Int {
	if t.Side == SideBuy && t.QuoteIn != nil {
		return t.QuoteIn
	}
	if t.QuoteOut != nil {
		return t.QuoteOut
	}
	return new(big.Int)
}

type TradeStats struct {
	TotalTrades int64      `json:"totalTrades"`
	BuyCount    int64      `json:"buyCount"`
	SellCount   int64      `json:"sellCount"`
	FirstTrade  *time.Time `json:"firstTrade"`
	LastTrade   *time.Time `json:"lastTrade"`
}
