package indexer

import (
	"sync"

	"github.com/kjannette/curvescan-backend/internal/models"
)

// PriceCache is the process-wide price/graduation snapshot store, keyed by
// project. Each project's loop is the only writer for its entry; API
// readers tolerate a missing entry (the second return) rather than reading
// a zero price as real.
type PriceCache struct {
	mu     sync.RWMutex
	states map[int64]models.PriceState
}

func NewPriceCache() *PriceCache {
	return &PriceCache{states: make(map[int64]models.PriceState)}
}

func (c *PriceCache) Get(projectID int64) (models.PriceState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.states[projectID]
	return st, ok
}

func (c *PriceCache) Set(projectID int64, st models.PriceState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[projectID] = st
}

func (c *PriceCache) Delete(projectID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, projectID)
}
