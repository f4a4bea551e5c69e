package ethereum

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kjannette/curvescan-backend/internal/models"
)

// HeadReader supplies the chain head for the backward scan. *Client
// satisfies it.
type HeadReader interface {
	LatestBlock(ctx context.Context) (uint64, error)
}

const (
	defaultScanWindow  = 5_000
	maxScanFetchErrors = 8
)

// Locator finds the first block in which a token contract ever emitted a
// Transfer. It scans backward from the head in a window that doubles on
// every miss (and halves on a transient fetch error), then binary-searches
// inside the first window that contains logs.
type Locator struct {
	reader *Reader
	chain  HeadReader
	window uint64
}

func NewLocator(reader *Reader, chain HeadReader, initialWindow uint64) *Locator {
	if initialWindow == 0 {
		initialWindow = defaultScanWindow
	}
	return &Locator{reader: reader, chain: chain, window: initialWindow}
}

// FirstActiveBlock returns the earliest block containing a transfer of
// token, or 0 if the scan reaches genesis without a hit.
func (l *Locator) FirstActiveBlock(ctx context.Context, token common.Address) (uint64, error) {
	head, err := l.chain.LatestBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("latest block: %w", err)
	}

	window := l.window
	hi := head
	fetchErrors := 0

	for {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		var lo uint64
		if hi+1 > window {
			lo = hi + 1 - window
		}

		logs, err := l.reader.Range(ctx, token, lo, hi)
		if err != nil {
			fetchErrors++
			if fetchErrors >= maxScanFetchErrors {
				return 0, fmt.Errorf("first-active scan for %s: %w", token.Hex(), err)
			}
			if window > 1 {
				window /= 2
			}
			continue
		}
		fetchErrors = 0

		if len(logs) > 0 {
			// The hit window bounds the answer from above only; earlier
			// transfers may sit below its lower edge, so refine from genesis.
			return l.refine(ctx, token, 0, earliestBlock(logs))
		}

		if lo == 0 {
			return 0, nil
		}
		hi = lo - 1
		window *= 2
	}
}

// refine binary-searches [lo, best-1] for an even earlier transfer, keeping
// best as the earliest block seen so far.
func (l *Locator) refine(ctx context.Context, token common.Address, lo, best uint64) (uint64, error) {
	if best == 0 {
		return 0, nil
	}
	hi := best - 1
	for lo <= hi {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		mid := lo + (hi-lo)/2

		logs, err := l.reader.Range(ctx, token, lo, mid)
		if err != nil {
			// Best-effort: the earliest block found so far is still correct
			// as an upper bound, and off-by-late only costs redundant scans.
			fmt.Printf("[LOCATOR] Refine fetch failed for %s, keeping block %d: %v\n", token.Hex(), best, err)
			return best, nil
		}

		if len(logs) > 0 {
			best = earliestBlock(logs)
			if best == 0 {
				return 0, nil
			}
			hi = best - 1
		} else {
			lo = mid + 1
		}
	}
	return best, nil
}

func earliestBlock(logs []models.TransferEvent) uint64 {
	min := logs[0].Block
	for _, lg := range logs[1:] {
		if lg.Block < min {
			min = lg.Block
		}
	}
	return min
}
