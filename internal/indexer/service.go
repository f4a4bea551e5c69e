package indexer

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/kjannette/curvescan-backend/internal/amm"
	"github.com/kjannette/curvescan-backend/internal/ledger"
	"github.com/kjannette/curvescan-backend/internal/models"
)

// Service tracks projects and runs one Orchestrator goroutine per tracked
// project. It is also the read front: price, trades, cost positions, tax
// totals and the what-if simulators.
type Service struct {
	mu    sync.Mutex
	deps  Deps
	loops map[int64]context.CancelFunc
	wg    sync.WaitGroup
}

func NewService(deps Deps) *Service {
	return &Service{
		deps:  deps,
		loops: make(map[int64]context.CancelFunc),
	}
}

// Track registers (or re-reads) a project and starts its indexing loop.
// Tracking an already-tracked token is a no-op.
func (s *Service) Track(ctx context.Context, name, tokenAddress, quoteAddress string) (*models.Project, error) {
	project, err := s.deps.Projects.Create(ctx, name, tokenAddress, quoteAddress)
	if err != nil {
		return nil, fmt.Errorf("register project: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, running := s.loops[project.ID]; running {
		fmt.Printf("[SERVICE] Project %d already tracked\n", project.ID)
		return project, nil
	}
	s.startLocked(ctx, project)
	return project, nil
}

// StartAll resumes the loop for every project already in the database.
func (s *Service) StartAll(ctx context.Context) error {
	projects, err := s.deps.Projects.List(ctx)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range projects {
		p := projects[i]
		if _, running := s.loops[p.ID]; running {
			continue
		}
		s.startLocked(ctx, &p)
	}
	fmt.Printf("[SERVICE] Tracking %d project(s)\n", len(s.loops))
	return nil
}

func (s *Service) startLocked(ctx context.Context, project *models.Project) {
	loopCtx, cancel := context.WithCancel(ctx)
	s.loops[project.ID] = cancel

	o := NewOrchestrator(s.deps, project)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		o.Run(loopCtx)
	}()
	fmt.Printf("[SERVICE] Started loop for project %d (%s)\n", project.ID, project.TokenAddress)
}

// Stop cancels every loop and waits for them to drain.
func (s *Service) Stop() {
	s.mu.Lock()
	for id, cancel := range s.loops {
		cancel()
		delete(s.loops, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
	fmt.Println("[SERVICE] Stopped")
}

// Price returns the cached price snapshot for a project.
func (s *Service) Price(projectID int64) (models.PriceState, bool) {
	return s.deps.Cache.Get(projectID)
}

// PriceUSD converts the cached quote-denominated spot price to USD using
// the quote asset's market price.
func (s *Service) PriceUSD(ctx context.Context, projectID int64) (float64, error) {
	st, ok := s.deps.Cache.Get(projectID)
	if !ok {
		return 0, fmt.Errorf("no price for project %d", projectID)
	}
	if s.deps.Gecko == nil {
		return 0, fmt.Errorf("USD pricing not configured")
	}
	quoteUSD, err := s.deps.Gecko.QuoteUSDPrice(ctx)
	if err != nil {
		return 0, fmt.Errorf("quote USD price: %w", err)
	}
	return st.SpotPrice * quoteUSD, nil
}

func (s *Service) RecentTrades(ctx context.Context, projectID int64, limit int) ([]models.Trade, error) {
	return s.deps.Trades.Recent(ctx, projectID, limit)
}

// Position returns the persisted cost row for an address together with its
// derived open position.
func (s *Service) Position(ctx context.Context, projectID int64, address string) (*models.AddressCost, *ledger.Position, error) {
	cost, err := s.deps.Costs.Get(ctx, projectID, address)
	if err != nil {
		return nil, nil, err
	}
	pos := ledger.OpenPosition(cost)
	return cost, &pos, nil
}

func (s *Service) TaxTotals(ctx context.Context, projectID int64) (*models.TaxTotals, error) {
	project, err := s.deps.Projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("project %d not found", projectID)
	}
	return s.deps.Taxes.Totals(ctx, projectID, project.QuoteAddress)
}

// SimulateBuyback runs a buyback plan against the project's cached
// reserves. Explicit reserves in params override the cache.
func (s *Service) SimulateBuyback(projectID int64, params amm.BuybackParams) (*amm.BuybackResult, error) {
	if err := s.fillReserves(projectID, &params.Reserves); err != nil {
		return nil, err
	}
	return amm.SimulateBuyback(params)
}

// SimulateDump estimates the price impact of a single large sell.
func (s *Service) SimulateDump(projectID int64, reserves amm.Reserves, sellAmount *big.Int) (*amm.DumpResult, error) {
	if err := s.fillReserves(projectID, &reserves); err != nil {
		return nil, err
	}
	return amm.SimulateDump(reserves, sellAmount)
}

func (s *Service) fillReserves(projectID int64, r *amm.Reserves) error {
	if r.Quote != nil && r.Token != nil {
		return nil
	}
	st, ok := s.deps.Cache.Get(projectID)
	if !ok || st.ReserveQuote == nil || st.ReserveToken == nil {
		return fmt.Errorf("no cached reserves for project %d; pass them explicitly", projectID)
	}
	r.Quote = new(big.Int).Set(st.ReserveQuote)
	r.Token = new(big.Int).Set(st.ReserveToken)
	return nil
}
