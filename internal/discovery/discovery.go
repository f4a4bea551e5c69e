// Package discovery identifies the contract acting as a project's internal
// bonding-curve market. Nothing on chain announces this contract: before
// graduation no canonical trade event exists, so the engine first tries
// accessor hints exposed by the token contract itself and otherwise scores
// candidate addresses by how their transfer traffic looks.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kjannette/curvescan-backend/internal/models"
)

// ErrNoCandidate is returned when neither the deterministic path nor the
// heuristic produced a usable market address. Discovery is retried on a
// later cycle.
var ErrNoCandidate = errors.New("discovery: no market candidate found")

// ChainReader is the contract-read surface discovery needs.
type ChainReader interface {
	IsContract(ctx context.Context, addr common.Address) (bool, error)
	AddressHint(ctx context.Context, contract common.Address, signature string) (common.Address, error)
	TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error)
}

// LogRanger fetches transfer logs over a block range (the range-splitting
// reader in production).
type LogRanger interface {
	Range(ctx context.Context, token common.Address, from, to uint64) ([]models.TransferEvent, error)
}

// Config holds the scoring weights and protocol addresses. All values are
// data, not logic: if the underlying launch protocol changes its routing
// addresses, only this struct needs to change.
type Config struct {
	SampleLogs         int // token logs collected from the first-active block forward
	SampleChunk        uint64
	TopK               int // candidate cut by token-touch frequency
	TokenTouchWeight   float64
	QuoteTouchWeight   float64
	TxOverlapWeight    float64
	LaunchPathBonus    float64
	BalanceBonus       float64
	QuoteTouchCapRatio int // caps quote touches at ratio× token touches

	// MarketHintSignatures are no-argument address getters probed on the
	// token contract for the deterministic path.
	MarketHintSignatures []string

	// LaunchPaths are the protocol-internal routing addresses; co-occurring
	// with one of them in a transaction is strong evidence of being the
	// market.
	LaunchPaths []common.Address
}

func DefaultConfig() Config {
	return Config{
		SampleLogs:         400,
		SampleChunk:        5_000,
		TopK:               8,
		TokenTouchWeight:   1.0,
		QuoteTouchWeight:   1.0,
		TxOverlapWeight:    2.0,
		LaunchPathBonus:    100.0,
		BalanceBonus:       25.0,
		QuoteTouchCapRatio: 3,
		MarketHintSignatures: []string{
			"marketAddress()",
			"pairAddress()",
			"bondingCurve()",
		},
	}
}

// Features are the observed traffic properties of one candidate address.
type Features struct {
	TokenTouches int  // appearances as from/to in token transfers
	QuoteTouches int  // appearances as from/to in quote-asset transfers
	TxOverlap    int  // distinct txs where the candidate appears on both sides
	OnLaunchPath bool // co-occurs in a tx with a launch-path address
	HoldsBoth    bool // nonzero balances of both token and quote asset
}

// Score is the composite discovery score. Pure function; a zero result
// means the candidate is not viable.
func Score(f Features, cfg Config) float64 {
	if f.TokenTouches == 0 || f.QuoteTouches == 0 {
		return 0
	}
	quoteTouches := f.QuoteTouches
	if cfg.QuoteTouchCapRatio > 0 {
		// Suppress generic high-traffic routers that touch the quote asset
		// in every transaction on the chain.
		if cap := f.TokenTouches * cfg.QuoteTouchCapRatio; quoteTouches > cap {
			quoteTouches = cap
		}
	}
	s := float64(f.TokenTouches)*cfg.TokenTouchWeight +
		float64(quoteTouches)*cfg.QuoteTouchWeight +
		float64(f.TxOverlap)*cfg.TxOverlapWeight
	if f.OnLaunchPath {
		s += cfg.LaunchPathBonus
	}
	if f.HoldsBoth {
		s += cfg.BalanceBonus
	}
	return s
}

type Engine struct {
	chain  ChainReader
	reader LogRanger
	cfg    Config
}

func NewEngine(chain ChainReader, reader LogRanger, cfg Config) *Engine {
	return &Engine{chain: chain, reader: reader, cfg: cfg}
}

// Discover resolves the internal market address for token/quote, trying the
// deterministic accessor path first and the traffic heuristic second.
func (e *Engine) Discover(ctx context.Context, token, quote common.Address, firstActive, head uint64) (common.Address, error) {
	if addr, ok := e.deterministic(ctx, token, quote); ok {
		fmt.Printf("[DISCOVERY] Market resolved from contract hint: %s\n", addr.Hex())
		return addr, nil
	}
	return e.heuristic(ctx, token, quote, firstActive, head)
}

// deterministic probes the token contract's own accessors. A hint is only
// trusted when it names a live contract, distinct from the token and quote
// addresses, holding nonzero balances of both assets.
func (e *Engine) deterministic(ctx context.Context, token, quote common.Address) (common.Address, bool) {
	for _, sig := range e.cfg.MarketHintSignatures {
		addr, err := e.chain.AddressHint(ctx, token, sig)
		if err != nil || addr == (common.Address{}) || addr == token || addr == quote {
			continue
		}
		if ok, err := e.chain.IsContract(ctx, addr); err != nil || !ok {
			continue
		}
		if !e.holdsBoth(ctx, token, quote, addr) {
			continue
		}
		return addr, true
	}
	return common.Address{}, false
}

func (e *Engine) holdsBoth(ctx context.Context, token, quote, holder common.Address) bool {
	tb, err := e.chain.TokenBalance(ctx, token, holder)
	if err != nil || tb == nil || tb.Sign() <= 0 {
		return false
	}
	qb, err := e.chain.TokenBalance(ctx, quote, holder)
	if err != nil || qb == nil || qb.Sign() <= 0 {
		return false
	}
	return true
}

func (e *Engine) heuristic(ctx context.Context, token, quote common.Address, firstActive, head uint64) (common.Address, error) {
	sample, sampleEnd, err := e.collectSample(ctx, token, firstActive, head)
	if err != nil {
		return common.Address{}, fmt.Errorf("collect sample: %w", err)
	}
	if len(sample) == 0 {
		return common.Address{}, ErrNoCandidate
	}

	touches := make(map[common.Address]int)
	tokenTxs := make(map[common.Address]map[common.Hash]struct{})
	note := func(addr common.Address, tx common.Hash) {
		if addr == (common.Address{}) || addr == token || addr == quote {
			return
		}
		touches[addr]++
		if tokenTxs[addr] == nil {
			tokenTxs[addr] = make(map[common.Hash]struct{})
		}
		tokenTxs[addr][tx] = struct{}{}
	}
	for _, tr := range sample {
		note(tr.From, tr.TxHash)
		note(tr.To, tr.TxHash)
	}

	candidates := topCandidates(touches, e.cfg.TopK)

	quoteLogs, err := e.reader.Range(ctx, quote, firstActive, sampleEnd)
	if err != nil {
		return common.Address{}, fmt.Errorf("quote logs: %w", err)
	}
	quoteTouches := make(map[common.Address]int)
	quoteTxs := make(map[common.Address]map[common.Hash]struct{})
	launchTxs := make(map[common.Hash]struct{})
	for _, tr := range quoteLogs {
		for _, addr := range [2]common.Address{tr.From, tr.To} {
			quoteTouches[addr]++
			if quoteTxs[addr] == nil {
				quoteTxs[addr] = make(map[common.Hash]struct{})
			}
			quoteTxs[addr][tr.TxHash] = struct{}{}
			if e.isLaunchPath(addr) {
				launchTxs[tr.TxHash] = struct{}{}
			}
		}
	}
	for _, tr := range sample {
		if e.isLaunchPath(tr.From) || e.isLaunchPath(tr.To) {
			launchTxs[tr.TxHash] = struct{}{}
		}
	}

	var best common.Address
	var bestScore float64
	for _, cand := range candidates {
		if ok, err := e.chain.IsContract(ctx, cand); err != nil || !ok {
			continue
		}
		f := Features{
			TokenTouches: touches[cand],
			QuoteTouches: quoteTouches[cand],
			TxOverlap:    overlap(tokenTxs[cand], quoteTxs[cand]),
			OnLaunchPath: overlap(tokenTxs[cand], launchTxs) > 0,
			HoldsBoth:    e.holdsBoth(ctx, token, quote, cand),
		}
		score := Score(f, e.cfg)
		fmt.Printf("[DISCOVERY] Candidate %s: tokenTouches=%d quoteTouches=%d overlap=%d launchPath=%v holdsBoth=%v score=%.1f\n",
			cand.Hex(), f.TokenTouches, f.QuoteTouches, f.TxOverlap, f.OnLaunchPath, f.HoldsBoth, score)
		if score > bestScore {
			best, bestScore = cand, score
		}
	}

	if bestScore == 0 {
		return common.Address{}, ErrNoCandidate
	}
	return best, nil
}

// collectSample walks forward from the first-active block in chunks until it
// has gathered at least SampleLogs token transfers (or hits the head).
// Returns the sample and the last block it covered.
func (e *Engine) collectSample(ctx context.Context, token common.Address, firstActive, head uint64) ([]models.TransferEvent, uint64, error) {
	chunk := e.cfg.SampleChunk
	if chunk == 0 {
		chunk = 5_000
	}
	var sample []models.TransferEvent
	from := firstActive
	end := firstActive
	for from <= head && len(sample) < e.cfg.SampleLogs {
		to := from + chunk - 1
		if to > head {
			to = head
		}
		logs, err := e.reader.Range(ctx, token, from, to)
		if err != nil {
			return nil, 0, err
		}
		sample = append(sample, logs...)
		end = to
		from = to + 1
	}
	if len(sample) > e.cfg.SampleLogs {
		sample = sample[:e.cfg.SampleLogs]
		end = sample[len(sample)-1].Block
	}
	return sample, end, nil
}

func (e *Engine) isLaunchPath(addr common.Address) bool {
	for _, lp := range e.cfg.LaunchPaths {
		if addr == lp {
			return true
		}
	}
	return false
}

// topCandidates returns the K most frequently touched addresses, ordered by
// touch count descending with address as a stable tiebreaker.
func topCandidates(touches map[common.Address]int, k int) []common.Address {
	addrs := make([]common.Address, 0, len(touches))
	for a := range touches {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool {
		if touches[addrs[i]] != touches[addrs[j]] {
			return touches[addrs[i]] > touches[addrs[j]]
		}
		return addrs[i].Cmp(addrs[j]) < 0
	})
	if k > 0 && len(addrs) > k {
		addrs = addrs[:k]
	}
	return addrs
}

func overlap(a map[common.Hash]struct{}, b map[common.Hash]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for h := range a {
		if _, ok := b[h]; ok {
			n++
		}
	}
	return n
}
