package models

import "time"

// Venue distinguishes the bonding-curve market from the post-graduation
// DEX pool. At most one open market exists per venue per project.
type Venue string

const (
	VenueInternal Venue = "INTERNAL"
	VenueExternal Venue = "EXTERNAL"
)

type Market struct {
	ID           int64     `json:"id"`
	ProjectID    int64     `json:"projectId"`
	Venue        Venue     `json:"venue"`
	Address      string    `json:"address"`
	QuoteAddress string    `json:"quoteAddress"`
	Token0       *string   `json:"token0,omitempty"` // external pairs only
	Token1       *string   `json:"token1,omitempty"`
	StartBlock   uint64    `json:"startBlock"`
	EndBlock     *uint64   `json:"endBlock,omitempty"` // nil while the market is open
	CreatedAt    time.Time `json:"createdAt"`
}

// IsOpen reports whether the market's active block range is still open-ended.
func (m *Market) IsOpen() bool { return m.EndBlock == nil }

// Covers reports whether block falls inside the market's active range.
func (m *Market) Covers(block uint64) bool {
	if block < m.StartBlock {
		return false
	}
	return m.EndBlock == nil || block <= *m.EndBlock
}
