package ethereum

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// FailureObservation records one abandoned log fetch for diagnostics.
type FailureObservation struct {
	Contract  common.Address `json:"contract"`
	FromBlock uint64         `json:"fromBlock"`
	ToBlock   uint64         `json:"toBlock"`
	Message   string         `json:"message"`
	At        time.Time      `json:"at"`
}

// FailureCounters keeps per-contract counts of log-fetch failures plus the
// most recent observation for each contract. Safe for concurrent use.
type FailureCounters struct {
	mu     sync.Mutex
	counts map[common.Address]int64
	last   map[common.Address]FailureObservation
}

func NewFailureCounters() *FailureCounters {
	return &FailureCounters{
		counts: make(map[common.Address]int64),
		last:   make(map[common.Address]FailureObservation),
	}
}

func (f *FailureCounters) Record(obs FailureObservation) {
	if obs.At.IsZero() {
		obs.At = time.Now().UTC()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[obs.Contract]++
	f.last[obs.Contract] = obs
}

func (f *FailureCounters) Count(contract common.Address) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[contract]
}

// Snapshot returns a copy of the latest observation per contract.
func (f *FailureCounters) Snapshot() map[common.Address]FailureObservation {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[common.Address]FailureObservation, len(f.last))
	for k, v := range f.last {
		out[k] = v
	}
	return out
}
