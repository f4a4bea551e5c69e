package reconstruct

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kjannette/curvescan-backend/internal/models"
)

var (
	tokenAddr  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	quoteAddr  = common.HexToAddress("0x2000000000000000000000000000000000000002")
	marketAddr = common.HexToAddress("0x3000000000000000000000000000000000000003")
	traderAddr = common.HexToAddress("0x4000000000000000000000000000000000000004")
	taxAddr    = common.HexToAddress("0x5000000000000000000000000000000000000005")
	otherAddr  = common.HexToAddress("0x6000000000000000000000000000000000000006")
	launchA    = common.HexToAddress("0x7000000000000000000000000000000000000007")
	launchNet  = common.HexToAddress("0x8000000000000000000000000000000000000008")
	routerAddr = common.HexToAddress("0x9000000000000000000000000000000000000009")
)

func tev(asset common.Address, tx byte, idx uint, from, to common.Address, amount int64) models.TransferEvent {
	return models.TransferEvent{
		Token:    asset,
		TxHash:   common.Hash{tx},
		LogIndex: idx,
		Block:    100,
		Time:     time.Unix(1_700_000_000, 0).UTC(),
		From:     from,
		To:       to,
		Amount:   big.NewInt(amount),
	}
}

func params() Params {
	return Params{
		ProjectID:     1,
		Market:        marketAddr,
		Venue:         models.VenueInternal,
		LaunchPaths:   []common.Address{launchA, launchNet},
		LaunchPathNet: launchNet,
	}
}

func reconstructOne(t *testing.T, token, quote []models.TransferEvent) *models.Trade {
	t.Helper()
	trades := Trades(GroupByMarket(token, quote, marketAddr), params())
	if len(trades) != 1 {
		t.Fatalf("expected exactly 1 trade, got %d", len(trades))
	}
	return trades[0]
}

func wantBig(t *testing.T, name string, got *big.Int, want int64) {
	t.Helper()
	if got == nil || got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("%s: got %v, want %d", name, got, want)
	}
}

func TestReconstruct_SimpleBuyWithTaxLeg(t *testing.T) {
	token := []models.TransferEvent{
		tev(tokenAddr, 1, 2, marketAddr, traderAddr, 1000),
	}
	quote := []models.TransferEvent{
		tev(quoteAddr, 1, 0, traderAddr, marketAddr, 99),
		tev(quoteAddr, 1, 1, traderAddr, taxAddr, 1),
	}

	tr := reconstructOne(t, token, quote)
	if tr.Side != models.SideBuy {
		t.Fatalf("side: got %s, want BUY", tr.Side)
	}
	wantBig(t, "tokenOut", tr.TokenOut, 1000)
	wantBig(t, "quoteInGross", tr.QuoteInGross, 100)
	wantBig(t, "quoteIn", tr.QuoteIn, 99)
	if tr.Price != 0.099 {
		t.Fatalf("price: got %v, want 0.099", tr.Price)
	}
	if tr.Trader != traderAddr.Hex() {
		t.Fatalf("trader: got %s, want %s", tr.Trader, traderAddr.Hex())
	}
	if tr.LogIndex != 0 {
		t.Fatalf("logIndex: got %d, want minimum 0", tr.LogIndex)
	}
}

func TestReconstruct_GrossNeverBelowNet(t *testing.T) {
	// Third-party quote flow into the market inflates the raw delta; the
	// trader-specific refinement shrinks gross and net clamps to it.
	token := []models.TransferEvent{
		tev(tokenAddr, 1, 3, marketAddr, traderAddr, 500),
	}
	quote := []models.TransferEvent{
		tev(quoteAddr, 1, 0, traderAddr, marketAddr, 40),
		tev(quoteAddr, 1, 1, otherAddr, marketAddr, 60),
	}

	tr := reconstructOne(t, token, quote)
	if tr.Side != models.SideBuy {
		t.Fatalf("side: got %s", tr.Side)
	}
	wantBig(t, "quoteInGross", tr.QuoteInGross, 40)
	wantBig(t, "quoteIn", tr.QuoteIn, 40) // clamped: net (100) may not exceed gross
	if tr.QuoteIn.Cmp(tr.QuoteInGross) > 0 {
		t.Fatal("invariant violated: net > gross")
	}
}

func TestReconstruct_SimpleSellRefinesQuoteOut(t *testing.T) {
	token := []models.TransferEvent{
		tev(tokenAddr, 2, 0, traderAddr, marketAddr, 2000),
	}
	quote := []models.TransferEvent{
		tev(quoteAddr, 2, 1, marketAddr, traderAddr, 95),
		tev(quoteAddr, 2, 2, marketAddr, otherAddr, 5),
	}

	tr := reconstructOne(t, token, quote)
	if tr.Side != models.SideSell {
		t.Fatalf("side: got %s, want SELL", tr.Side)
	}
	wantBig(t, "tokenIn", tr.TokenIn, 2000)
	// Refined to the trader's own leg, not the market-wide delta of 100.
	wantBig(t, "quoteOut", tr.QuoteOut, 95)
	if tr.Price != 0.0475 {
		t.Fatalf("price: got %v, want 0.0475", tr.Price)
	}
}

func TestReconstruct_SellViaLaunchPath(t *testing.T) {
	// Market receives tokens but pays out through the launch path.
	token := []models.TransferEvent{
		tev(tokenAddr, 3, 0, traderAddr, marketAddr, 1500),
	}
	quote := []models.TransferEvent{
		tev(quoteAddr, 3, 1, launchA, traderAddr, 70),
		tev(quoteAddr, 3, 2, launchA, otherAddr, 10),
	}

	tr := reconstructOne(t, token, quote)
	if tr.Side != models.SideSell {
		t.Fatalf("side: got %s, want SELL", tr.Side)
	}
	wantBig(t, "tokenIn", tr.TokenIn, 1500)
	wantBig(t, "quoteOut", tr.QuoteOut, 70)
}

func TestReconstruct_BuyViaRouterLaunchPathInference(t *testing.T) {
	// Token leaves the market but no quote reaches it: the trader paid the
	// launch path, with the net sub-address receiving the post-tax amount.
	token := []models.TransferEvent{
		tev(tokenAddr, 4, 4, marketAddr, traderAddr, 800),
	}
	quote := []models.TransferEvent{
		tev(quoteAddr, 4, 1, traderAddr, launchNet, 97),
		tev(quoteAddr, 4, 2, traderAddr, launchA, 3),
	}

	tr := reconstructOne(t, token, quote)
	if tr.Side != models.SideBuy {
		t.Fatalf("side: got %s, want BUY", tr.Side)
	}
	wantBig(t, "tokenOut", tr.TokenOut, 800)
	wantBig(t, "quoteInGross", tr.QuoteInGross, 100)
	wantBig(t, "quoteIn", tr.QuoteIn, 97)
}

func TestReconstruct_NonMatchingDeltasSkipped(t *testing.T) {
	// Token and quote both flow into the market: no recognizable trade.
	token := []models.TransferEvent{
		tev(tokenAddr, 5, 0, traderAddr, marketAddr, 100),
	}
	quote := []models.TransferEvent{
		tev(quoteAddr, 5, 1, traderAddr, marketAddr, 100),
	}

	trades := Trades(GroupByMarket(token, quote, marketAddr), params())
	if len(trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(trades))
	}
}

func TestReconstruct_TransferOnlyTxIgnored(t *testing.T) {
	// A wallet-to-wallet transfer never touches the market.
	token := []models.TransferEvent{
		tev(tokenAddr, 6, 0, traderAddr, otherAddr, 100),
	}

	groups := GroupByMarket(token, nil, marketAddr)
	if len(groups) != 0 {
		t.Fatalf("expected no groups, got %d", len(groups))
	}
}

func TestReconstruct_Idempotent(t *testing.T) {
	token := []models.TransferEvent{
		tev(tokenAddr, 7, 2, marketAddr, traderAddr, 1000),
	}
	quote := []models.TransferEvent{
		tev(quoteAddr, 7, 0, traderAddr, marketAddr, 50),
	}

	first := Trades(GroupByMarket(token, quote, marketAddr), params())
	second := Trades(GroupByMarket(token, quote, marketAddr), params())
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected 1 trade per run, got %d and %d", len(first), len(second))
	}
	a, b := first[0], second[0]
	if a.TxHash != b.TxHash || a.LogIndex != b.LogIndex {
		t.Fatal("reruns must produce the same uniqueness key")
	}
	if a.QuoteIn.Cmp(b.QuoteIn) != 0 || a.TokenOut.Cmp(b.TokenOut) != 0 {
		t.Fatal("reruns must produce identical amounts")
	}
}

func TestReconstruct_ThirdPartyFlowsExcluded(t *testing.T) {
	// Two buyers in one transaction: the trade is attributed to the larger
	// token recipient and narrowed to their flows.
	token := []models.TransferEvent{
		tev(tokenAddr, 8, 2, marketAddr, traderAddr, 900),
		tev(tokenAddr, 8, 3, marketAddr, otherAddr, 100),
	}
	quote := []models.TransferEvent{
		tev(quoteAddr, 8, 0, traderAddr, marketAddr, 90),
		tev(quoteAddr, 8, 1, otherAddr, marketAddr, 10),
	}

	tr := reconstructOne(t, token, quote)
	wantBig(t, "tokenOut", tr.TokenOut, 900)
	wantBig(t, "quoteInGross", tr.QuoteInGross, 90)
	if tr.Trader != traderAddr.Hex() {
		t.Fatalf("trader: got %s, want %s", tr.Trader, traderAddr.Hex())
	}
}

func TestGroupByMarket_OrdersByBlockThenLogIndex(t *testing.T) {
	mk := func(tx byte, block uint64, idx uint) models.TransferEvent {
		ev := tev(tokenAddr, tx, idx, marketAddr, traderAddr, 10)
		ev.Block = block
		return ev
	}
	token := []models.TransferEvent{
		mk(1, 200, 5),
		mk(2, 100, 9),
		mk(3, 100, 1),
	}

	groups := GroupByMarket(token, nil, marketAddr)
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	wantOrder := []common.Hash{{3}, {2}, {1}}
	for i, w := range wantOrder {
		if groups[i].TxHash != w {
			t.Fatalf("group %d: got tx %v, want %v", i, groups[i].TxHash, w)
		}
	}
}
