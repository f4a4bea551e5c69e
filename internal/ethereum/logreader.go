package ethereum

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kjannette/curvescan-backend/internal/models"
	"github.com/kjannette/curvescan-backend/internal/retry"
)

// LogFetcher is the raw provider call the Reader wraps. *Client satisfies it.
type LogFetcher interface {
	TransferLogs(ctx context.Context, token common.Address, from, to uint64) ([]models.TransferEvent, error)
}

// Reader fetches transfer logs over arbitrarily large block ranges. When the
// provider rejects a range as too large the Reader bisects it and fetches
// both halves in parallel, recursing until single blocks; a single block
// that still fails is retried a bounded number of times and then degraded
// to an empty result with a failure observation. Callers never need to know
// the provider's range limit.
type Reader struct {
	fetcher  LogFetcher
	policy   retry.Policy
	failures *FailureCounters
}

func NewReader(fetcher LogFetcher, failures *FailureCounters) *Reader {
	return &Reader{
		fetcher: fetcher,
		policy: retry.Policy{
			MaxAttempts: 4,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    8 * time.Second,
			Retryable:   IsRangeError,
		},
		failures: failures,
	}
}

// Range returns all transfer logs for token over [from, to] inclusive,
// ordered by (block, log index). Non-range provider errors propagate.
func (r *Reader) Range(ctx context.Context, token common.Address, from, to uint64) ([]models.TransferEvent, error) {
	if from > to {
		return nil, nil
	}
	logs, err := r.fetch(ctx, token, from, to)
	if err != nil {
		return nil, err
	}
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].Block != logs[j].Block {
			return logs[i].Block < logs[j].Block
		}
		return logs[i].LogIndex < logs[j].LogIndex
	})
	return logs, nil
}

func (r *Reader) fetch(ctx context.Context, token common.Address, from, to uint64) ([]models.TransferEvent, error) {
	logs, err := r.fetcher.TransferLogs(ctx, token, from, to)
	if err == nil {
		return logs, nil
	}
	if !IsRangeError(err) {
		return nil, err
	}

	if from == to {
		logs, rerr := retry.Value(ctx, r.policy, func() ([]models.TransferEvent, error) {
			return r.fetcher.TransferLogs(ctx, token, from, to)
		})
		if rerr == nil {
			return logs, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Degrade: a single unservable block must not stall the loop.
		if r.failures != nil {
			r.failures.Record(FailureObservation{
				Contract:  token,
				FromBlock: from,
				ToBlock:   to,
				Message:   rerr.Error(),
			})
		}
		fmt.Printf("[LOGS] Giving up on block %d for %s: %v\n", from, token.Hex(), rerr)
		return nil, nil
	}

	mid := from + (to-from)/2

	type half struct {
		logs []models.TransferEvent
		err  error
	}
	ch := make(chan half, 1)
	go func() {
		logs, err := r.fetch(ctx, token, from, mid)
		ch <- half{logs, err}
	}()

	right, rightErr := r.fetch(ctx, token, mid+1, to)
	left := <-ch

	if left.err != nil {
		return nil, left.err
	}
	if rightErr != nil {
		return nil, rightErr
	}
	return append(left.logs, right...), nil
}
