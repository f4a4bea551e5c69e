package models

import (
	"math/big"
	"time"
)

// PriceState is the volatile per-project price snapshot held in the
// process-wide cache. It is never persisted authoritatively; the projects
// table carries a best-effort last_spot_price copy for restarts.
type PriceState struct {
	SpotPrice     float64   `json:"spotPrice"`
	ReserveQuote  *big.Int  `json:"reserveQuote,omitempty"`
	ReserveToken  *big.Int  `json:"reserveToken,omitempty"`
	TokenIsToken0 bool      `json:"tokenIsToken0"`
	Venue         Venue     `json:"venue"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
