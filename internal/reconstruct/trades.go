// Package reconstruct recovers semantic trade and tax events from raw
// ERC-20 transfer logs. The internal bonding-curve market emits no swap
// event, so sides, amounts and prices are all inferred from the net flow of
// each transaction relative to the market address.
package reconstruct

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kjannette/curvescan-backend/internal/models"
)

// Params configures trade reconstruction for one market.
type Params struct {
	ProjectID int64
	Market    common.Address
	Venue     models.Venue

	// LaunchPaths are the protocol routing addresses used for quote-flow
	// inference when the trader never pays the market directly.
	LaunchPaths []common.Address

	// LaunchPathNet, when set, is the launch-path sub-address whose inflow
	// represents the net (post-tax) amount; other launch-path recipients
	// receive tax legs.
	LaunchPathNet common.Address
}

// Trades converts transaction groups into trade records. Groups whose
// transfer deltas match no known pattern yield nothing; a group never yields
// more than one trade.
func Trades(groups []TxGroup, p Params) []*models.Trade {
	var out []*models.Trade
	for i := range groups {
		if t := tradeFromGroup(&groups[i], p); t != nil {
			out = append(out, t)
		}
	}
	return out
}

func tradeFromGroup(g *TxGroup, p Params) *models.Trade {
	tokenIn := sumTo(g.Token, p.Market)    // token into the market
	tokenOut := sumFrom(g.Token, p.Market) // token out of the market
	quoteIn := sumTo(g.Quote, p.Market)
	quoteOut := sumFrom(g.Quote, p.Market)

	deltaToken := new(big.Int).Sub(tokenIn, tokenOut)
	deltaQuote := new(big.Int).Sub(quoteIn, quoteOut)

	switch {
	case deltaQuote.Sign() > 0 && deltaToken.Sign() < 0:
		return buyTrade(g, p, deltaQuote, deltaToken, quoteIn)

	case deltaToken.Sign() > 0 && deltaQuote.Sign() < 0:
		return sellTrade(g, p, deltaQuote, deltaToken)

	case deltaToken.Sign() > 0 && quoteOut.Sign() == 0 && touchesLaunchPath(g, p.LaunchPaths):
		return sellViaLaunchPath(g, p, deltaToken)

	case deltaToken.Sign() < 0 && quoteIn.Sign() == 0:
		return buyViaRouter(g, p, deltaToken)
	}

	// Both deltas zero or non-matching signs: not a trade.
	return nil
}

// buyTrade handles the direct pattern: quote flowed into the market, token
// flowed out.
func buyTrade(g *TxGroup, p Params, deltaQuote, deltaToken, quoteToMarket *big.Int) *models.Trade {
	net := new(big.Int).Set(deltaQuote)
	gross := new(big.Int).Set(quoteToMarket) // may include pass-through amounts
	tokenOut := new(big.Int).Neg(deltaToken)

	trader := buyTrader(g, p.Market)
	if trader != (common.Address{}) {
		// Narrow to the trader's own sub-flows so unrelated third-party
		// transfers in the same transaction don't inflate the trade.
		if refined := sumFromTo(g.Token, p.Market, trader); refined.Sign() > 0 {
			tokenOut = refined
		}
		// Gross is the trader's full outlay: tax legs to other addresses in
		// the same transaction count toward what the trader actually paid.
		if refined := sumFrom(g.Quote, trader); refined.Sign() > 0 {
			gross = refined
		}
	}
	clampNet(net, gross)

	if tokenOut.Sign() <= 0 {
		return nil
	}
	return newTrade(g, p, models.SideBuy, trader, func(t *models.Trade) {
		t.QuoteIn = net
		t.QuoteInGross = gross
		t.TokenOut = tokenOut
		t.Price = ratio(net, tokenOut)
	})
}

// sellTrade handles the direct pattern: token flowed into the market, quote
// flowed out.
func sellTrade(g *TxGroup, p Params, deltaQuote, deltaToken *big.Int) *models.Trade {
	tokenIn := new(big.Int).Set(deltaToken)
	quoteOut := new(big.Int).Neg(deltaQuote)

	trader := sellTrader(g, p.Market)
	if trader != (common.Address{}) {
		if refined := sumFromTo(g.Token, trader, p.Market); refined.Sign() > 0 {
			tokenIn = refined
		}
		if refined := sumFromTo(g.Quote, p.Market, trader); refined.Sign() > 0 {
			quoteOut = refined
		}
	}

	if tokenIn.Sign() <= 0 {
		return nil
	}
	return newTrade(g, p, models.SideSell, trader, func(t *models.Trade) {
		t.TokenIn = tokenIn
		t.QuoteOut = quoteOut
		t.Price = ratio(quoteOut, tokenIn)
	})
}

// sellViaLaunchPath handles sells where the market paid the trader through
// the protocol's routing addresses instead of directly.
func sellViaLaunchPath(g *TxGroup, p Params, deltaToken *big.Int) *models.Trade {
	leg := largestTo(g.Token, p.Market)
	if leg == nil {
		return nil
	}
	trader := leg.From

	tokenIn := sumFromTo(g.Token, trader, p.Market)
	if tokenIn.Sign() == 0 {
		tokenIn = new(big.Int).Set(deltaToken)
	}
	quoteOut := new(big.Int)
	for _, lp := range p.LaunchPaths {
		quoteOut.Add(quoteOut, sumFromTo(g.Quote, lp, trader))
	}

	if tokenIn.Sign() <= 0 {
		return nil
	}
	return newTrade(g, p, models.SideSell, trader, func(t *models.Trade) {
		t.TokenIn = tokenIn
		t.QuoteOut = quoteOut
		t.Price = ratio(quoteOut, tokenIn)
	})
}

// buyViaRouter handles buys where the quote payment never reached the market
// directly: the trader paid a router or the protocol's launch path.
func buyViaRouter(g *TxGroup, p Params, deltaToken *big.Int) *models.Trade {
	leg := largestFrom(g.Token, p.Market)
	if leg == nil {
		return nil
	}
	trader := leg.To

	tokenOut := sumFromTo(g.Token, p.Market, trader)
	if tokenOut.Sign() == 0 {
		tokenOut = new(big.Int).Neg(deltaToken)
	}

	gross := sumFrom(g.Quote, trader)
	net := new(big.Int).Set(gross)
	if gross.Sign() == 0 {
		gross, net = launchPathQuote(g, p, trader)
		if gross.Sign() == 0 {
			return nil
		}
	} else if p.LaunchPathNet != (common.Address{}) {
		// The leg into the designated net sub-address is the post-tax
		// amount; anything else the trader paid out is tax or routing fees.
		if toNet := sumFromTo(g.Quote, trader, p.LaunchPathNet); toNet.Sign() > 0 {
			net = toNet
		}
	}
	clampNet(net, gross)

	if tokenOut.Sign() <= 0 {
		return nil
	}
	return newTrade(g, p, models.SideBuy, trader, func(t *models.Trade) {
		t.QuoteIn = net
		t.QuoteInGross = gross
		t.TokenOut = tokenOut
		t.Price = ratio(net, tokenOut)
	})
}

// launchPathQuote infers (gross, net) quote-in from what the trader sent to
// the launch-path addresses: gross is everything sent to any of them, net
// prefers the designated net sub-address when it received anything.
func launchPathQuote(g *TxGroup, p Params, trader common.Address) (*big.Int, *big.Int) {
	gross := new(big.Int)
	for _, lp := range p.LaunchPaths {
		gross.Add(gross, sumFromTo(g.Quote, trader, lp))
	}
	net := new(big.Int).Set(gross)
	if p.LaunchPathNet != (common.Address{}) {
		if toNet := sumFromTo(g.Quote, trader, p.LaunchPathNet); toNet.Sign() > 0 {
			net = toNet
		}
	}
	return gross, net
}

// buyTrader resolves the buyer: recipient of the token leg out of the
// market, falling back to the sender of the quote leg into it.
func buyTrader(g *TxGroup, market common.Address) common.Address {
	if leg := largestFrom(g.Token, market); leg != nil {
		return leg.To
	}
	if leg := largestTo(g.Quote, market); leg != nil {
		return leg.From
	}
	return common.Address{}
}

// sellTrader resolves the seller: sender of the token leg into the market,
// falling back to the recipient of the quote leg out of it.
func sellTrader(g *TxGroup, market common.Address) common.Address {
	if leg := largestTo(g.Token, market); leg != nil {
		return leg.From
	}
	if leg := largestFrom(g.Quote, market); leg != nil {
		return leg.To
	}
	return common.Address{}
}

func touchesLaunchPath(g *TxGroup, paths []common.Address) bool {
	for _, tr := range g.Quote {
		if containsAddr(paths, tr.From) || containsAddr(paths, tr.To) {
			return true
		}
	}
	for _, tr := range g.Token {
		if containsAddr(paths, tr.From) || containsAddr(paths, tr.To) {
			return true
		}
	}
	return false
}

// clampNet enforces net <= gross in place.
func clampNet(net, gross *big.Int) {
	if net.Cmp(gross) > 0 {
		net.Set(gross)
	}
}

// ratio returns num/den as a float64 price, 0 when den is zero.
func ratio(num, den *big.Int) float64 {
	if den.Sign() == 0 {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(num), new(big.Float).SetInt(den)).Float64()
	return f
}

func newTrade(g *TxGroup, p Params, side models.Side, trader common.Address, fill func(*models.Trade)) *models.Trade {
	t := &models.Trade{
		ProjectID:     p.ProjectID,
		Venue:         p.Venue,
		MarketAddress: p.Market.Hex(),
		TxHash:        g.TxHash.Hex(),
		LogIndex:      g.MinLogIndex(),
		Block:         g.Block,
		Timestamp:     g.Time,
		Trader:        trader.Hex(),
		Side:          side,
	}
	fill(t)
	return t
}
