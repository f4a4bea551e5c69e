package indexer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kjannette/curvescan-backend/internal/config"
	"github.com/kjannette/curvescan-backend/internal/discovery"
	"github.com/kjannette/curvescan-backend/internal/ethereum"
	"github.com/kjannette/curvescan-backend/internal/events"
	"github.com/kjannette/curvescan-backend/internal/external"
	"github.com/kjannette/curvescan-backend/internal/graduation"
	"github.com/kjannette/curvescan-backend/internal/ledger"
	"github.com/kjannette/curvescan-backend/internal/models"
	"github.com/kjannette/curvescan-backend/internal/reconstruct"
	"github.com/kjannette/curvescan-backend/internal/repository"
)

// Deps bundles everything a project loop needs. All loops share one set.
type Deps struct {
	Cfg      *config.Config
	Chain    *ethereum.Client
	Reader   *ethereum.Reader
	Locator  *ethereum.Locator
	Discover *discovery.Engine
	Detector *graduation.Detector
	Projects *repository.ProjectRepo
	Markets  *repository.MarketRepo
	Trades   *repository.TradeRepo
	Costs    *repository.AddressCostRepo
	Taxes    *repository.TaxRepo
	States   *repository.StateRepo
	Balances *repository.BalanceRepo
	Bus      *events.Bus
	Cache    *PriceCache

	// Gecko is optional; without it USD conversion is unavailable and
	// everything stays quote-denominated.
	Gecko *external.CoinGeckoClient
}

// Orchestrator runs the indexing loop for one project: initialize, then
// poll forward in bounded block batches until the context is cancelled.
// All mutation of the project's rows happens on this single goroutine.
type Orchestrator struct {
	deps    Deps
	project *models.Project

	token       common.Address
	quote       common.Address
	launchPaths []common.Address
	launchNet   common.Address
	whale       *big.Int

	internalMarket *models.Market
	externalMarket *models.Market

	// per-batch block-header timestamp memo
	blockTimes map[uint64]time.Time
}

func NewOrchestrator(deps Deps, project *models.Project) *Orchestrator {
	o := &Orchestrator{
		deps:    deps,
		project: project,
		token:   common.HexToAddress(project.TokenAddress),
		quote:   common.HexToAddress(project.QuoteAddress),
		whale:   new(big.Int),
	}
	for _, a := range deps.Cfg.LaunchPathAddresses {
		o.launchPaths = append(o.launchPaths, common.HexToAddress(a))
	}
	if deps.Cfg.LaunchPathNetAddress != "" {
		o.launchNet = common.HexToAddress(deps.Cfg.LaunchPathNetAddress)
	}
	if w, ok := new(big.Int).SetString(deps.Cfg.WhaleThresholdQuote, 10); ok {
		o.whale = w
	}
	return o
}

// Run drives the loop. Transient errors back off and retry; only context
// cancellation ends it.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		err := o.initialize(ctx)
		if err == nil {
			break
		}
		backoff := time.Duration(o.deps.Cfg.ErrorBackoffSeconds) * time.Second
		if ethereum.IsRateLimited(err) {
			backoff = time.Duration(o.deps.Cfg.RateLimitBackoffSeconds) * time.Second
		}
		fmt.Printf("[INDEX %d] Initialize failed: %v (retrying in %s)\n", o.project.ID, err, backoff)
		sleep(ctx, backoff)
		if ctx.Err() != nil {
			return
		}
	}

	pollInterval := time.Duration(o.deps.Cfg.PollIntervalSeconds) * time.Second
	gradTicker := time.NewTicker(time.Duration(o.deps.Cfg.GraduationCheckSeconds) * time.Second)
	defer gradTicker.Stop()

	fmt.Printf("[INDEX %d] Polling %s every %s\n", o.project.ID, o.project.TokenAddress, pollInterval)

	for {
		select {
		case <-ctx.Done():
			fmt.Printf("[INDEX %d] Loop stopped\n", o.project.ID)
			return
		case <-gradTicker.C:
			o.checkGraduation(ctx)
			o.refreshPrice(ctx)
		default:
		}

		if o.project.Phase == models.PhaseInternal && o.internalMarket == nil {
			o.discoverMarket(ctx)
		}

		processed, err := o.processBatch(ctx)
		switch {
		case err != nil:
			backoff := time.Duration(o.deps.Cfg.ErrorBackoffSeconds) * time.Second
			if ethereum.IsRateLimited(err) {
				backoff = time.Duration(o.deps.Cfg.RateLimitBackoffSeconds) * time.Second
			}
			fmt.Printf("[INDEX %d] Batch failed: %v (backing off %s)\n", o.project.ID, err, backoff)
			_ = o.deps.States.AddFailures(ctx, o.project.ID, 1)
			sleep(ctx, backoff)
		case !processed:
			sleep(ctx, pollInterval)
		}
	}
}

// initialize restores persisted state before any chain read, then resolves
// token metadata, graduation, the first-active block and the cursor row.
func (o *Orchestrator) initialize(ctx context.Context) error {
	// restore markets and last-known price from the DB first so reads have
	// something to serve even when the RPC endpoint is down
	markets, err := o.deps.Markets.ListByProject(ctx, o.project.ID)
	if err != nil {
		return fmt.Errorf("restore markets: %w", err)
	}
	for i := range markets {
		m := &markets[i]
		if !m.IsOpen() {
			continue
		}
		switch m.Venue {
		case models.VenueInternal:
			o.internalMarket = m
		case models.VenueExternal:
			o.externalMarket = m
		}
	}
	if o.project.LastSpotPrice != nil {
		venue := models.VenueInternal
		if o.project.Phase == models.PhaseExternal {
			venue = models.VenueExternal
		}
		o.deps.Cache.Set(o.project.ID, models.PriceState{
			SpotPrice: *o.project.LastSpotPrice,
			Venue:     venue,
			UpdatedAt: time.Now(),
		})
	}

	o.readMetadata(ctx)

	if o.externalMarket == nil {
		o.checkGraduation(ctx)
	}

	if o.project.FirstActiveBlock == nil {
		first, err := o.deps.Locator.FirstActiveBlock(ctx, o.token)
		if err != nil {
			return fmt.Errorf("first active block: %w", err)
		}
		if err := o.deps.Projects.SetFirstActiveBlock(ctx, o.project.ID, first); err != nil {
			return fmt.Errorf("persist first active block: %w", err)
		}
		o.project.FirstActiveBlock = &first
		fmt.Printf("[INDEX %d] First active block: %d\n", o.project.ID, first)
	}

	// cursor starts just below the first-active block so that block itself
	// is the first one processed
	seed := *o.project.FirstActiveBlock
	if seed > 0 {
		seed--
	}
	if err := o.deps.States.Ensure(ctx, o.project.ID, seed); err != nil {
		return fmt.Errorf("ensure cursor: %w", err)
	}

	if o.project.Phase == models.PhaseInternal && o.internalMarket == nil {
		o.discoverMarket(ctx)
	}

	o.refreshPrice(ctx)
	return nil
}

// readMetadata probes optional token getters. Everything here is
// best-effort: tokens without the getters simply leave nulls behind.
func (o *Orchestrator) readMetadata(ctx context.Context) {
	var recipient *string
	for _, sig := range []string{"taxRecipient()", "taxWallet()"} {
		addr, err := o.deps.Chain.AddressHint(ctx, o.token, sig)
		if err != nil || addr == (common.Address{}) {
			continue
		}
		hex := addr.Hex()
		recipient = &hex
		break
	}

	supply, err := o.deps.Chain.TotalSupply(ctx, o.token)
	if err != nil {
		supply = nil
	}

	var bps *int
	for _, sig := range []string{"buyTaxBps()", "buyTax()"} {
		v, err := o.deps.Chain.UintHint(ctx, o.token, sig)
		if err != nil || !v.IsInt64() || v.Int64() > 10_000 {
			continue
		}
		n := int(v.Int64())
		bps = &n
		break
	}

	if recipient == nil && supply == nil && bps == nil {
		return
	}
	if err := o.deps.Projects.UpdateMetadata(ctx, o.project.ID, recipient, supply, bps); err != nil {
		fmt.Printf("[INDEX %d] Metadata persist failed: %v\n", o.project.ID, err)
		return
	}
	o.project.TaxRecipient = recipient
	o.project.TotalSupply = supply
	o.project.BuyTaxBps = bps
}

// discoverMarket resolves the internal bonding-curve market and backfills
// any blocks indexed before discovery succeeded.
func (o *Orchestrator) discoverMarket(ctx context.Context) {
	if o.project.FirstActiveBlock == nil {
		return
	}
	head, err := o.deps.Chain.LatestBlock(ctx)
	if err != nil {
		return
	}

	addr, err := o.deps.Discover.Discover(ctx, o.token, o.quote, *o.project.FirstActiveBlock, head)
	if err != nil {
		// non-fatal; retried next cycle
		return
	}

	m, err := o.deps.Markets.Open(ctx, &models.Market{
		ProjectID:    o.project.ID,
		Venue:        models.VenueInternal,
		Address:      addr.Hex(),
		QuoteAddress: o.project.QuoteAddress,
		StartBlock:   *o.project.FirstActiveBlock,
	})
	if err != nil {
		fmt.Printf("[INDEX %d] Market persist failed: %v\n", o.project.ID, err)
		return
	}
	o.internalMarket = m
	fmt.Printf("[INDEX %d] Internal market discovered: %s\n", o.project.ID, addr.Hex())

	// blocks indexed while discovery was unresolved produced no trades;
	// re-run reconstruction over them now (inserts are idempotent)
	state, err := o.deps.States.Get(ctx, o.project.ID)
	if err != nil || state == nil {
		return
	}
	if state.LastProcessedBlock > *o.project.FirstActiveBlock {
		o.backfill(ctx, *o.project.FirstActiveBlock, state.LastProcessedBlock)
	}
}

func (o *Orchestrator) backfill(ctx context.Context, from, to uint64) {
	fmt.Printf("[INDEX %d] Backfilling internal trades over [%d, %d]\n", o.project.ID, from, to)
	batch := o.deps.Cfg.BatchBlocks
	for lo := from; lo <= to; lo += batch {
		hi := lo + batch - 1
		if hi > to {
			hi = to
		}
		if err := o.processRange(ctx, lo, hi); err != nil {
			fmt.Printf("[INDEX %d] Backfill range [%d, %d] failed: %v\n", o.project.ID, lo, hi, err)
			return
		}
	}
}

// processBatch advances the cursor by one bounded batch of safe blocks.
// Returns false when the chain has nothing new to offer.
func (o *Orchestrator) processBatch(ctx context.Context) (bool, error) {
	head, err := o.deps.Chain.LatestBlock(ctx)
	if err != nil {
		return false, fmt.Errorf("head: %w", err)
	}
	if head < o.deps.Cfg.Confirmations {
		return false, nil
	}
	safe := head - o.deps.Cfg.Confirmations

	state, err := o.deps.States.Get(ctx, o.project.ID)
	if err != nil {
		return false, fmt.Errorf("cursor: %w", err)
	}
	if state == nil || state.LastProcessedBlock >= safe {
		return false, nil
	}

	from := state.LastProcessedBlock + 1
	to := from + o.deps.Cfg.BatchBlocks - 1
	if to > safe {
		to = safe
	}

	if err := o.processRange(ctx, from, to); err != nil {
		return false, err
	}
	if err := o.deps.States.Advance(ctx, o.project.ID, to); err != nil {
		return false, fmt.Errorf("advance cursor: %w", err)
	}
	return true, nil
}

// processRange scans one block range and persists everything found in it.
// Safe to repeat over the same range: all inserts are keyed.
func (o *Orchestrator) processRange(ctx context.Context, from, to uint64) error {
	tokenTr, err := o.deps.Reader.Range(ctx, o.token, from, to)
	if err != nil {
		return fmt.Errorf("token logs [%d, %d]: %w", from, to, err)
	}
	quoteTr, err := o.deps.Reader.Range(ctx, o.quote, from, to)
	if err != nil {
		return fmt.Errorf("quote logs [%d, %d]: %w", from, to, err)
	}
	if len(tokenTr) == 0 && len(quoteTr) == 0 {
		return nil
	}

	o.blockTimes = make(map[uint64]time.Time)
	o.stampTimes(ctx, tokenTr)
	o.stampTimes(ctx, quoteTr)

	o.applyBalances(ctx, tokenTr)

	var trades []*models.Trade
	if o.internalMarket != nil {
		trades = append(trades, o.internalTrades(tokenTr, quoteTr, from, to)...)
	}
	if o.externalMarket != nil {
		external, err := o.externalTrades(ctx, from, to)
		if err != nil {
			return err
		}
		trades = append(trades, external...)
	}
	o.insertTrades(ctx, trades)

	o.insertTaxInflows(ctx, tokenTr, quoteTr)
	return nil
}

func (o *Orchestrator) internalTrades(tokenTr, quoteTr []models.TransferEvent, from, to uint64) []*models.Trade {
	m := o.internalMarket
	if to < m.StartBlock || (m.EndBlock != nil && from > *m.EndBlock) {
		return nil
	}
	groups := reconstruct.GroupByMarket(tokenTr, quoteTr, common.HexToAddress(m.Address))
	trades := reconstruct.Trades(groups, reconstruct.Params{
		ProjectID:     o.project.ID,
		Market:        common.HexToAddress(m.Address),
		Venue:         models.VenueInternal,
		LaunchPaths:   o.launchPaths,
		LaunchPathNet: o.launchNet,
	})

	out := trades[:0]
	for _, t := range trades {
		if m.Covers(t.Block) {
			out = append(out, t)
		}
	}
	return out
}

// externalTrades converts canonical swap events on the DEX pair into trade
// records; no inference needed post-graduation.
func (o *Orchestrator) externalTrades(ctx context.Context, from, to uint64) ([]*models.Trade, error) {
	m := o.externalMarket
	pair := common.HexToAddress(m.Address)
	swaps, err := o.deps.Chain.SwapLogs(ctx, pair, from, to)
	if err != nil {
		return nil, fmt.Errorf("swap logs [%d, %d]: %w", from, to, err)
	}

	tokenIs0 := m.Token0 != nil && common.HexToAddress(*m.Token0) == o.token

	var out []*models.Trade
	for _, s := range swaps {
		t := swapToTrade(&s, o.project.ID, m.Address, tokenIs0)
		if t == nil {
			continue
		}
		t.Timestamp = o.timeFor(ctx, s.Block)
		out = append(out, t)
	}
	return out, nil
}

// swapToTrade maps one decoded Swap event to a trade record, orienting the
// pair's amount0/amount1 legs by which side holds the project token.
// Returns nil for degenerate swaps (both legs zero on one side).
func swapToTrade(s *models.SwapEvent, projectID int64, marketAddress string, tokenIs0 bool) *models.Trade {
	tokenIn, tokenOut := s.Amount0In, s.Amount0Out
	quoteIn, quoteOut := s.Amount1In, s.Amount1Out
	if !tokenIs0 {
		tokenIn, tokenOut, quoteIn, quoteOut = quoteIn, quoteOut, tokenIn, tokenOut
	}

	t := &models.Trade{
		ProjectID:     projectID,
		Venue:         models.VenueExternal,
		MarketAddress: marketAddress,
		TxHash:        s.TxHash.Hex(),
		LogIndex:      s.LogIndex,
		Block:         s.Block,
		Trader:        s.To.Hex(),
	}
	switch {
	case quoteIn.Sign() > 0 && tokenOut.Sign() > 0:
		t.Side = models.SideBuy
		t.QuoteIn = quoteIn
		t.QuoteInGross = quoteIn
		t.TokenOut = tokenOut
		t.Price = bigRatio(quoteIn, tokenOut)
	case tokenIn.Sign() > 0 && quoteOut.Sign() > 0:
		t.Side = models.SideSell
		t.TokenIn = tokenIn
		t.QuoteOut = quoteOut
		t.Price = bigRatio(quoteOut, tokenIn)
	default:
		return nil
	}
	return t
}

// insertTrades persists trades idempotently, runs the cost ledger on the
// ones that actually landed and emits trade/whale events for them.
func (o *Orchestrator) insertTrades(ctx context.Context, trades []*models.Trade) {
	for _, t := range trades {
		inserted, err := o.deps.Trades.InsertIgnore(ctx, t)
		if err != nil {
			fmt.Printf("[INDEX %d] Trade insert failed (%s): %v\n", o.project.ID, t.TxHash, err)
			continue
		}
		if !inserted {
			continue
		}

		cost, err := o.deps.Costs.Get(ctx, o.project.ID, t.Trader)
		if err != nil {
			fmt.Printf("[INDEX %d] Cost load failed (%s), ledger update skipped: %v\n", o.project.ID, t.Trader, err)
		} else {
			ledger.Apply(cost, t)
			if err := o.deps.Costs.Save(ctx, cost); err != nil {
				fmt.Printf("[INDEX %d] Cost save failed (%s): %v\n", o.project.ID, t.Trader, err)
			}
		}

		vol := t.QuoteVolume()
		o.deps.Bus.Publish(events.Event{
			Type: events.TypeTrade, ProjectID: o.project.ID, Trade: t, Volume: vol,
		})
		if vol.Cmp(o.whale) >= 0 {
			o.deps.Bus.Publish(events.Event{
				Type: events.TypeWhaleAlert, ProjectID: o.project.ID, Trade: t, Volume: vol,
			})
		}
	}
}

func (o *Orchestrator) insertTaxInflows(ctx context.Context, tokenTr, quoteTr []models.TransferEvent) {
	p := reconstruct.TaxParams{
		ProjectID:     o.project.ID,
		Token:         o.token,
		Quote:         o.quote,
		LaunchPaths:   o.launchPaths,
		LaunchPathNet: o.launchNet,
	}
	if o.project.TaxRecipient != nil {
		p.TaxRecipient = common.HexToAddress(*o.project.TaxRecipient)
	}
	if o.internalMarket != nil {
		p.Market = common.HexToAddress(o.internalMarket.Address)
	}

	for _, in := range reconstruct.TaxInflows(tokenTr, quoteTr, p) {
		if _, err := o.deps.Taxes.InsertIgnore(ctx, in); err != nil {
			fmt.Printf("[INDEX %d] Tax insert failed (%s): %v\n", o.project.ID, in.TxHash, err)
		}
	}
}

// applyBalances folds every transfer into the running balance table, not
// just the ones that became trades.
func (o *Orchestrator) applyBalances(ctx context.Context, transfers []models.TransferEvent) {
	deltas := make(map[common.Address]*big.Int)
	add := func(addr common.Address, amount *big.Int) {
		if addr == (common.Address{}) {
			return // mint/burn party
		}
		d, ok := deltas[addr]
		if !ok {
			d = new(big.Int)
			deltas[addr] = d
		}
		d.Add(d, amount)
	}
	for _, tr := range transfers {
		add(tr.To, tr.Amount)
		add(tr.From, new(big.Int).Neg(tr.Amount))
	}
	for addr, delta := range deltas {
		if err := o.deps.Balances.ApplyDelta(ctx, o.project.ID, addr.Hex(), delta); err != nil {
			fmt.Printf("[INDEX %d] Balance update failed (%s): %v\n", o.project.ID, addr.Hex(), err)
		}
	}
}

// checkGraduation runs the detector and, on a confirmed pairing, closes the
// internal market, opens the external one and flips the phase.
func (o *Orchestrator) checkGraduation(ctx context.Context) {
	if o.externalMarket != nil {
		return
	}
	info, err := o.deps.Detector.Check(ctx, o.token)
	if err != nil || info == nil {
		return
	}

	head, err := o.deps.Chain.LatestBlock(ctx)
	if err != nil {
		return
	}

	if o.internalMarket != nil {
		if err := o.deps.Markets.Close(ctx, o.internalMarket.ID, head); err != nil {
			fmt.Printf("[INDEX %d] Close internal market failed: %v\n", o.project.ID, err)
			return
		}
		end := head
		o.internalMarket.EndBlock = &end
	}

	t0, t1 := info.Token0.Hex(), info.Token1.Hex()
	m, err := o.deps.Markets.Open(ctx, &models.Market{
		ProjectID:    o.project.ID,
		Venue:        models.VenueExternal,
		Address:      info.Pair.Hex(),
		QuoteAddress: o.project.QuoteAddress,
		Token0:       &t0,
		Token1:       &t1,
		StartBlock:   head,
	})
	if err != nil {
		fmt.Printf("[INDEX %d] Open external market failed: %v\n", o.project.ID, err)
		return
	}
	o.externalMarket = m

	if err := o.deps.Projects.SetPhase(ctx, o.project.ID, models.PhaseExternal); err != nil {
		fmt.Printf("[INDEX %d] Phase flip failed: %v\n", o.project.ID, err)
	}
	o.project.Phase = models.PhaseExternal

	o.deps.Cache.Set(o.project.ID, models.PriceState{
		SpotPrice:     bigRatio(info.ReserveQuote, info.ReserveToken),
		ReserveQuote:  info.ReserveQuote,
		ReserveToken:  info.ReserveToken,
		TokenIsToken0: info.TokenIsToken0,
		Venue:         models.VenueExternal,
		UpdatedAt:     time.Now(),
	})

	fmt.Printf("[INDEX %d] GRADUATED to external market %s at block %d\n", o.project.ID, info.Pair.Hex(), head)
	o.deps.Bus.Publish(events.Event{
		Type: events.TypePhaseChange, ProjectID: o.project.ID, Phase: models.PhaseExternal,
	})
}

// refreshPrice re-reads reserves and updates the cache plus the best-effort
// persisted snapshot.
func (o *Orchestrator) refreshPrice(ctx context.Context) {
	var st models.PriceState

	switch {
	case o.externalMarket != nil:
		pair := common.HexToAddress(o.externalMarket.Address)
		r0, r1, err := o.deps.Chain.PairReserves(ctx, pair)
		if err != nil {
			return
		}
		tokenIs0 := o.externalMarket.Token0 != nil &&
			common.HexToAddress(*o.externalMarket.Token0) == o.token
		rq, rt := r1, r0
		if !tokenIs0 {
			rq, rt = r0, r1
		}
		st = models.PriceState{
			SpotPrice:     bigRatio(rq, rt),
			ReserveQuote:  rq,
			ReserveToken:  rt,
			TokenIsToken0: tokenIs0,
			Venue:         models.VenueExternal,
		}
	case o.internalMarket != nil:
		market := common.HexToAddress(o.internalMarket.Address)
		rq, err := o.deps.Chain.TokenBalance(ctx, o.quote, market)
		if err != nil {
			return
		}
		rt, err := o.deps.Chain.TokenBalance(ctx, o.token, market)
		if err != nil {
			return
		}
		st = models.PriceState{
			SpotPrice:    bigRatio(rq, rt),
			ReserveQuote: rq,
			ReserveToken: rt,
			Venue:        models.VenueInternal,
		}
	default:
		return
	}

	st.UpdatedAt = time.Now()
	o.deps.Cache.Set(o.project.ID, st)
	if st.SpotPrice > 0 {
		if err := o.deps.Projects.SetSpotPrice(ctx, o.project.ID, st.SpotPrice); err != nil {
			fmt.Printf("[INDEX %d] Spot price persist failed: %v\n", o.project.ID, err)
		}
	}
}

// stampTimes fills transfer timestamps from block headers, memoized per
// batch and best-effort.
func (o *Orchestrator) stampTimes(ctx context.Context, transfers []models.TransferEvent) {
	for i := range transfers {
		transfers[i].Time = o.timeFor(ctx, transfers[i].Block)
	}
}

func (o *Orchestrator) timeFor(ctx context.Context, block uint64) time.Time {
	if t, ok := o.blockTimes[block]; ok {
		return t
	}
	t, err := o.deps.Chain.BlockTime(ctx, block)
	if err != nil {
		t = time.Now().UTC()
	}
	if o.blockTimes != nil {
		o.blockTimes[block] = t
	}
	return t
}

func bigRatio(num, den *big.Int) float64 {
	if den == nil || den.Sign() == 0 || num == nil {
		return 0
	}
	r, _ := new(big.Float).Quo(new(big.Float).SetInt(num), new(big.Float).SetInt(den)).Float64()
	return r
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
