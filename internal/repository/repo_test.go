package repository_test

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/kjannette/curvescan-backend/internal/models"
	"github.com/kjannette/curvescan-backend/internal/repository"
	"github.com/kjannette/curvescan-backend/internal/testutil"
)

const (
	testToken = "0x00000000000000000000000000000000000c0ffe"
	testQuote = "0x000000000000000000000000000000000000beef"
)

// uniqueHash builds a per-run tx hash so repeated test runs do not trip
// over the idempotent-insert keys left by earlier runs.
func uniqueHash(tag byte) string {
	return fmt.Sprintf("0x%02x%062x", tag, time.Now().UnixNano())
}

func setupProject(t *testing.T) (context.Context, *repository.ProjectRepo, *models.Project) {
	t.Helper()
	pool := testutil.SetupPool(t)
	ctx := context.Background()

	if err := repository.Migrate(ctx, pool); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	repo := repository.NewProjectRepo(pool)
	p, err := repo.Create(ctx, "repo-test", testToken, testQuote)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return ctx, repo, p
}

// ---------- ProjectRepo ----------

func TestProjectRepo(t *testing.T) {
	ctx, repo, p := setupProject(t)
	if p.ID == 0 {
		t.Fatal("expected non-zero ID")
	}
	if p.Phase != models.PhaseInternal {
		t.Fatalf("phase: got %s, want INTERNAL", p.Phase)
	}
	t.Logf("Created project: id=%d token=%s", p.ID, p.TokenAddress)

	// Create is register-or-get
	again, err := repo.Create(ctx, "repo-test", testToken, testQuote)
	if err != nil {
		t.Fatalf("Create again: %v", err)
	}
	if again.ID != p.ID {
		t.Fatalf("re-register returned a new row: %d vs %d", again.ID, p.ID)
	}

	// metadata round trip, NUMERIC(78,0) included
	recipient := "0x0000000000000000000000000000000000000tax"
	bps := 100
	supply, _ := new(big.Int).SetString("1000000000000000000000000000", 10)
	if err := repo.UpdateMetadata(ctx, p.ID, &recipient, supply, &bps); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}
	if err := repo.SetFirstActiveBlock(ctx, p.ID, 12345); err != nil {
		t.Fatalf("SetFirstActiveBlock: %v", err)
	}

	got, err := repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.TotalSupply == nil || got.TotalSupply.Cmp(supply) != 0 {
		t.Fatalf("total supply mismatch: got %v", got.TotalSupply)
	}
	if got.FirstActiveBlock == nil || *got.FirstActiveBlock != 12345 {
		t.Fatalf("first active block mismatch: got %v", got.FirstActiveBlock)
	}
	t.Logf("Metadata: supply=%v bps=%v first=%v", got.TotalSupply, *got.BuyTaxBps, *got.FirstActiveBlock)

	// phase transition is one-way
	if err := repo.SetPhase(ctx, p.ID, models.PhaseExternal); err != nil {
		t.Fatalf("SetPhase: %v", err)
	}
	if err := repo.SetPhase(ctx, p.ID, models.PhaseInternal); err != nil {
		t.Fatalf("SetPhase revert attempt: %v", err)
	}
	got, err = repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Phase != models.PhaseExternal {
		t.Fatalf("phase reverted: got %s", got.Phase)
	}
	t.Logf("Phase after revert attempt: %s", got.Phase)
}

// ---------- MarketRepo ----------

func TestMarketRepo(t *testing.T) {
	ctx, _, p := setupProject(t)
	pool := testutil.SetupPool(t)
	repo := repository.NewMarketRepo(pool)

	m, err := repo.Open(ctx, &models.Market{
		ProjectID:    p.ID,
		Venue:        models.VenueInternal,
		Address:      "0x0000000000000000000000000000000000111111",
		QuoteAddress: testQuote,
		StartBlock:   12345,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !m.IsOpen() {
		t.Fatal("expected open market")
	}
	t.Logf("Opened market: id=%d venue=%s", m.ID, m.Venue)

	open, err := repo.GetOpen(ctx, p.ID, models.VenueInternal)
	if err != nil {
		t.Fatalf("GetOpen: %v", err)
	}
	if open == nil || open.ID != m.ID {
		t.Fatalf("GetOpen: got %+v", open)
	}

	// a second open internal market violates the partial unique index
	if _, err := repo.Open(ctx, &models.Market{
		ProjectID:    p.ID,
		Venue:        models.VenueInternal,
		Address:      "0x0000000000000000000000000000000000222222",
		QuoteAddress: testQuote,
		StartBlock:   12400,
	}); err == nil {
		t.Fatal("expected second open internal market to be rejected")
	}

	if err := repo.Close(ctx, m.ID, 20000); err != nil {
		t.Fatalf("Close: %v", err)
	}
	open, err = repo.GetOpen(ctx, p.ID, models.VenueInternal)
	if err != nil {
		t.Fatalf("GetOpen after close: %v", err)
	}
	if open != nil {
		t.Fatalf("market still open after close: %+v", open)
	}
	t.Log("Close: OK")
}

// ---------- TradeRepo ----------

func TestTradeRepo(t *testing.T) {
	ctx, _, p := setupProject(t)
	pool := testutil.SetupPool(t)
	repo := repository.NewTradeRepo(pool)

	trade := &models.Trade{
		ProjectID:     p.ID,
		Venue:         models.VenueInternal,
		MarketAddress: "0x0000000000000000000000000000000000111111",
		TxHash:        uniqueHash(0xaa),
		LogIndex:      0,
		Block:         12350,
		Timestamp:     time.Now(),
		Trader:        "0x0000000000000000000000000000000000333333",
		Side:          models.SideBuy,
		QuoteIn:       big.NewInt(99),
		QuoteInGross:  big.NewInt(100),
		TokenOut:      big.NewInt(1000),
		Price:         0.099,
	}

	inserted, err := repo.InsertIgnore(ctx, trade)
	if err != nil {
		t.Fatalf("InsertIgnore: %v", err)
	}
	if !inserted {
		t.Fatal("expected first insert to land")
	}

	// same (tx_hash, log_index) is a no-op
	inserted, err = repo.InsertIgnore(ctx, trade)
	if err != nil {
		t.Fatalf("InsertIgnore duplicate: %v", err)
	}
	if inserted {
		t.Fatal("duplicate insert reported as new")
	}
	t.Log("InsertIgnore idempotency: OK")

	recent, err := repo.Recent(ctx, p.ID, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) == 0 {
		t.Fatal("expected trades")
	}
	got := recent[0]
	if got.QuoteIn.Cmp(big.NewInt(99)) != 0 || got.QuoteInGross.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("amount round trip: net=%v gross=%v", got.QuoteIn, got.QuoteInGross)
	}
	if got.QuoteOut != nil || got.TokenIn != nil {
		t.Fatalf("expected nil sell-side amounts, got out=%v in=%v", got.QuoteOut, got.TokenIn)
	}
	t.Logf("Recent: %d trades, first price=%.4f", len(recent), got.Price)

	stats, err := repo.Stats(ctx, p.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.BuyCount == 0 {
		t.Fatal("expected at least one buy in stats")
	}
	t.Logf("Stats: total=%d buys=%d sells=%d", stats.TotalTrades, stats.BuyCount, stats.SellCount)
}

// ---------- AddressCostRepo ----------

func TestAddressCostRepo(t *testing.T) {
	ctx, _, p := setupProject(t)
	pool := testutil.SetupPool(t)
	repo := repository.NewAddressCostRepo(pool)
	addr := "0x0000000000000000000000000000000000333333"

	// unknown address reads as a zeroed ledger
	c, err := repo.Get(ctx, p.ID, addr)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c.NetQuoteSpent.Sign() != 0 {
		t.Fatalf("expected zeroed ledger, got %v", c.NetQuoteSpent)
	}

	c.NetQuoteSpent = big.NewInt(99)
	c.GrossQuoteSpent = big.NewInt(100)
	c.TokensReceived = big.NewInt(1000)
	c.AvgCostNet = 0.099
	c.AvgCostGross = 0.1
	if err := repo.Save(ctx, c); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// supersede with a fresh running total
	c.TokensSold = big.NewInt(400)
	c.QuoteReceived = big.NewInt(50)
	if err := repo.Save(ctx, c); err != nil {
		t.Fatalf("Save update: %v", err)
	}

	got, err := repo.Get(ctx, p.ID, addr)
	if err != nil {
		t.Fatalf("Get after save: %v", err)
	}
	if got.TokensSold.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("tokens sold: got %v, want 400", got.TokensSold)
	}
	if got.AvgCostNet != 0.099 {
		t.Fatalf("avg cost net: got %v", got.AvgCostNet)
	}
	t.Logf("Ledger: spent=%v received=%v sold=%v", got.NetQuoteSpent, got.TokensReceived, got.TokensSold)

	top, err := repo.TopHolders(ctx, p.ID, 5)
	if err != nil {
		t.Fatalf("TopHolders: %v", err)
	}
	t.Logf("TopHolders: %d rows", len(top))
}

// ---------- TaxRepo ----------

func TestTaxRepo(t *testing.T) {
	ctx, _, p := setupProject(t)
	pool := testutil.SetupPool(t)
	repo := repository.NewTaxRepo(pool)

	in := &models.TaxInflow{
		ProjectID:    p.ID,
		TxHash:       uniqueHash(0xbb),
		LogIndex:     2,
		Block:        12351,
		Timestamp:    time.Now(),
		TokenAddress: testQuote,
		Amount:       big.NewInt(1),
	}
	inserted, err := repo.InsertIgnore(ctx, in)
	if err != nil {
		t.Fatalf("InsertIgnore: %v", err)
	}
	if !inserted {
		t.Fatal("expected first insert to land")
	}
	inserted, err = repo.InsertIgnore(ctx, in)
	if err != nil {
		t.Fatalf("InsertIgnore duplicate: %v", err)
	}
	if inserted {
		t.Fatal("duplicate insert reported as new")
	}

	tokenIn := &models.TaxInflow{
		ProjectID:    p.ID,
		TxHash:       uniqueHash(0xbc),
		LogIndex:     0,
		Block:        12352,
		Timestamp:    time.Now(),
		TokenAddress: testToken,
		Amount:       big.NewInt(50),
	}
	if _, err := repo.InsertIgnore(ctx, tokenIn); err != nil {
		t.Fatalf("InsertIgnore token leg: %v", err)
	}

	totals, err := repo.Totals(ctx, p.ID, testQuote)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if totals.QuoteTotal.Sign() <= 0 || totals.TokenTotal.Sign() <= 0 {
		t.Fatalf("totals: quote=%v token=%v", totals.QuoteTotal, totals.TokenTotal)
	}
	t.Logf("Totals: quote=%v token=%v inflows=%d", totals.QuoteTotal, totals.TokenTotal, totals.Inflows)
}

// ---------- StateRepo ----------

func TestStateRepo(t *testing.T) {
	ctx, _, p := setupProject(t)
	pool := testutil.SetupPool(t)
	repo := repository.NewStateRepo(pool)

	if err := repo.Ensure(ctx, p.ID, 12345); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	// second Ensure with a different seed is a no-op
	if err := repo.Ensure(ctx, p.ID, 99999); err != nil {
		t.Fatalf("Ensure again: %v", err)
	}

	s, err := repo.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s == nil || s.LastProcessedBlock != 12345 {
		t.Fatalf("cursor: got %+v, want seed 12345", s)
	}

	if err := repo.Advance(ctx, p.ID, 12400); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	// moving backwards must not regress the cursor
	if err := repo.Advance(ctx, p.ID, 12000); err != nil {
		t.Fatalf("Advance backwards: %v", err)
	}
	s, err = repo.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get after advance: %v", err)
	}
	if s.LastProcessedBlock != 12400 {
		t.Fatalf("cursor regressed: got %d, want 12400", s.LastProcessedBlock)
	}
	t.Logf("Cursor: %d", s.LastProcessedBlock)

	if err := repo.AddFailures(ctx, p.ID, 3); err != nil {
		t.Fatalf("AddFailures: %v", err)
	}
}

// ---------- BalanceRepo ----------

func TestBalanceRepo(t *testing.T) {
	ctx, _, p := setupProject(t)
	pool := testutil.SetupPool(t)
	repo := repository.NewBalanceRepo(pool)
	addr := "0x0000000000000000000000000000000000444444"

	if err := repo.ApplyDelta(ctx, p.ID, addr, big.NewInt(1000)); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if err := repo.ApplyDelta(ctx, p.ID, addr, big.NewInt(-300)); err != nil {
		t.Fatalf("ApplyDelta negative: %v", err)
	}

	b, err := repo.Get(ctx, p.ID, addr)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if b.Balance.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("balance: got %v, want 700", b.Balance)
	}

	// over-withdrawal clamps at zero instead of going negative
	if err := repo.ApplyDelta(ctx, p.ID, addr, big.NewInt(-5000)); err != nil {
		t.Fatalf("ApplyDelta overdraw: %v", err)
	}
	b, err = repo.Get(ctx, p.ID, addr)
	if err != nil {
		t.Fatalf("Get after overdraw: %v", err)
	}
	if b.Balance.Sign() != 0 {
		t.Fatalf("balance: got %v, want 0", b.Balance)
	}
	t.Log("Zero clamp: OK")

	top, err := repo.Top(ctx, p.ID, 10)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	t.Logf("Top: %d rows", len(top))
}
