package ledger

import (
	"math/big"
	"time"

	"github.com/kjannette/curvescan-backend/internal/models"
)

// Apply folds one trade into an address's running cost totals. BUY adds to
// spend and tokens received, SELL adds to tokens sold and quote received.
// The average cost is a trailing weighted average over all-time acquisitions
// (cumulative spend / cumulative tokens received), recomputed on every update.
func Apply(cost *models.AddressCost, trade *models.Trade) {
	switch trade.Side {
	case models.SideBuy:
		if trade.QuoteIn != nil {
			cost.NetQuoteSpent.Add(cost.NetQuoteSpent, trade.QuoteIn)
		}
		if trade.QuoteInGross != nil {
			cost.GrossQuoteSpent.Add(cost.GrossQuoteSpent, trade.QuoteInGross)
		}
		if trade.TokenOut != nil {
			cost.TokensReceived.Add(cost.TokensReceived, trade.TokenOut)
		}
	case models.SideSell:
		if trade.TokenIn != nil {
			cost.TokensSold.Add(cost.TokensSold, trade.TokenIn)
		}
		if trade.QuoteOut != nil {
			cost.QuoteReceived.Add(cost.QuoteReceived, trade.QuoteOut)
		}
	default:
		return
	}

	cost.AvgCostNet = avgCost(cost.NetQuoteSpent, cost.TokensReceived)
	cost.AvgCostGross = avgCost(cost.GrossQuoteSpent, cost.TokensReceived)
	cost.UpdatedAt = trade.Timestamp
	if cost.UpdatedAt.IsZero() {
		cost.UpdatedAt = time.Now()
	}
}

func avgCost(spent, received *big.Int) float64 {
	if received.Sign() <= 0 {
		return 0
	}
	avg, _ := new(big.Float).Quo(
		new(big.Float).SetInt(spent),
		new(big.Float).SetInt(received),
	).Float64()
	return avg
}

// Position is the open-position view derived from the running totals.
type Position struct {
	RemainingTokens    *big.Int
	RemainingCostNet   *big.Int
	RemainingCostGross *big.Int
	RealizedPnL        *big.Int
}

// OpenPosition pro-rates the cumulative spend over the unsold portion:
// remainingCost = spent - spent*sold/received, floored at zero. TokensSold
// exceeding TokensReceived (transfer-only inflows sold on-market) floors
// both the token remainder and the cost remainder at zero. Realized PnL is
// quote received from sales minus the pro-rated gross cost of the sold part.
func OpenPosition(cost *models.AddressCost) Position {
	pos := Position{
		RemainingTokens:    new(big.Int),
		RemainingCostNet:   new(big.Int),
		RemainingCostGross: new(big.Int),
		RealizedPnL:        new(big.Int),
	}

	remaining := new(big.Int).Sub(cost.TokensReceived, cost.TokensSold)
	if remaining.Sign() > 0 {
		pos.RemainingTokens.Set(remaining)
	}

	pos.RemainingCostNet = remainingCost(cost.NetQuoteSpent, cost.TokensSold, cost.TokensReceived)
	pos.RemainingCostGross = remainingCost(cost.GrossQuoteSpent, cost.TokensSold, cost.TokensReceived)

	soldCost := new(big.Int).Sub(cost.GrossQuoteSpent, pos.RemainingCostGross)
	pos.RealizedPnL.Sub(cost.QuoteReceived, soldCost)
	return pos
}

func remainingCost(spent, sold, received *big.Int) *big.Int {
	if received.Sign() <= 0 || spent.Sign() <= 0 {
		return new(big.Int)
	}
	soldShare := new(big.Int).Mul(spent, sold)
	soldShare.Quo(soldShare, received)
	rem := new(big.Int).Sub(spent, soldShare)
	if rem.Sign() < 0 {
		rem.SetInt64(0)
	}
	return rem
}
