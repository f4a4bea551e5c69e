package models

import (
	"math/big"
	"time"
)

// IndexerState is the per-project indexing cursor. LastProcessedBlock only
// ever advances.
type IndexerState struct {
	ProjectID          int64     `json:"projectId"`
	LastProcessedBlock uint64    `json:"lastProcessedBlock"`
	LastProcessedAt    time.Time `json:"lastProcessedAt"`
	LogFetchFailures   int64     `json:"logFetchFailures"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// TokenBalance is the running on-chain balance of one address, derived from
// every transfer event (not just trades), floor-clamped at zero.
type TokenBalance struct {
	ProjectID int64     `json:"projectId"`
	Address   string    `json:"address"`
	Balance   *big.Int  `json:"balance"`
	UpdatedAt time.Time `json:"updatedAt"`
}
