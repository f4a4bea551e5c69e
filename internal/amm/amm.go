package amm

import (
	"fmt"
	"math/big"
	"time"
)

// Mode selects how buyback steps interact with the pool between buys.
type Mode string

const (
	// ModeIdeal applies each buy against the pool with no counter-flow.
	ModeIdeal Mode = "IDEAL"
	// ModeRealistic sells 30% of each step's purchase straight back into
	// the pool before the next step, dampening the price trajectory.
	ModeRealistic Mode = "REALISTIC"
)

// sellBackNum/sellBackDen is the realistic-mode counter-sell fraction.
const (
	sellBackNum = 3
	sellBackDen = 10
)

// Reserves is a constant-product pool snapshot, quote/token sides of the
// pair already resolved to the project's orientation.
type Reserves struct {
	Quote *big.Int
	Token *big.Int
}

func (r Reserves) valid() bool {
	return r.Quote != nil && r.Token != nil && r.Quote.Sign() > 0 && r.Token.Sign() > 0
}

// price returns quote per token implied by the reserves.
func (r Reserves) price() float64 {
	p, _ := new(big.Float).Quo(
		new(big.Float).SetInt(r.Quote),
		new(big.Float).SetInt(r.Token),
	).Float64()
	return p
}

type BuybackParams struct {
	Reserves     Reserves
	PerStep      *big.Int
	Budget       *big.Int
	StepInterval time.Duration
	Mode         Mode
	// SpotAnchor rescales all reported prices so the pre-simulation
	// reserve-implied price matches a live observed price. Zero disables it.
	SpotAnchor float64
}

type BuybackStep struct {
	Step     int           `json:"step"`
	QuoteIn  *big.Int      `json:"quoteIn"`
	TokenOut *big.Int      `json:"tokenOut"`
	Price    float64       `json:"price"`
	Offset   time.Duration `json:"offset"`
}

type BuybackResult struct {
	Steps              []BuybackStep `json:"steps"`
	TokensAcquired     *big.Int      `json:"tokensAcquired"`
	QuoteSpent         *big.Int      `json:"quoteSpent"`
	StartPrice         float64       `json:"startPrice"`
	EndPrice           float64       `json:"endPrice"`
	MaxSlippagePercent float64       `json:"maxSlippagePercent"`
	FinalReserves      Reserves      `json:"finalReserves"`
	TotalDuration      time.Duration `json:"totalDuration"`
}

// SimulateBuyback walks a quote budget into the pool in fixed-size steps,
// ceil(budget/perStep) of them with the remainder in the last. Pure math on
// the given reserves; nothing touches the chain.
func SimulateBuyback(p BuybackParams) (*BuybackResult, error) {
	if !p.Reserves.valid() {
		return nil, fmt.Errorf("buyback: reserves must be positive")
	}
	if p.PerStep == nil || p.PerStep.Sign() <= 0 {
		return nil, fmt.Errorf("buyback: per-step amount must be positive")
	}
	if p.Budget == nil || p.Budget.Sign() <= 0 {
		return nil, fmt.Errorf("buyback: budget must be positive")
	}

	rq := new(big.Int).Set(p.Reserves.Quote)
	rt := new(big.Int).Set(p.Reserves.Token)
	startPrice := p.Reserves.price()

	// Reported prices are optionally re-anchored to an observed spot price;
	// the underlying reserve math is untouched.
	scale := 1.0
	if p.SpotAnchor > 0 && startPrice > 0 {
		scale = p.SpotAnchor / startPrice
	}

	res := &BuybackResult{
		TokensAcquired: new(big.Int),
		QuoteSpent:     new(big.Int),
		StartPrice:     startPrice * scale,
	}

	remaining := new(big.Int).Set(p.Budget)
	for step := 0; remaining.Sign() > 0; step++ {
		in := p.PerStep
		if remaining.Cmp(p.PerStep) < 0 {
			in = remaining
		}

		tokenOut := swapOut(rq, rt, in)
		rq.Add(rq, in)
		rt.Sub(rt, tokenOut)

		if p.Mode == ModeRealistic && tokenOut.Sign() > 0 {
			sellBack := new(big.Int).Mul(tokenOut, big.NewInt(sellBackNum))
			sellBack.Div(sellBack, big.NewInt(sellBackDen))
			if sellBack.Sign() > 0 {
				quoteOut := swapOut(rt, rq, sellBack)
				rt.Add(rt, sellBack)
				rq.Sub(rq, quoteOut)
			}
		}

		price := Reserves{Quote: rq, Token: rt}.price() * scale
		res.Steps = append(res.Steps, BuybackStep{
			Step:     step + 1,
			QuoteIn:  new(big.Int).Set(in),
			TokenOut: tokenOut,
			Price:    price,
			Offset:   time.Duration(step) * p.StepInterval,
		})
		res.TokensAcquired.Add(res.TokensAcquired, tokenOut)
		res.QuoteSpent.Add(res.QuoteSpent, in)

		if res.StartPrice > 0 {
			slip := (price - res.StartPrice) / res.StartPrice * 100
			if slip > res.MaxSlippagePercent {
				res.MaxSlippagePercent = slip
			}
		}

		remaining.Sub(remaining, in)
	}

	res.EndPrice = Reserves{Quote: rq, Token: rt}.price() * scale
	res.FinalReserves = Reserves{Quote: rq, Token: rt}
	if n := len(res.Steps); n > 1 {
		res.TotalDuration = time.Duration(n-1) * p.StepInterval
	}
	return res, nil
}

type DumpResult struct {
	QuoteOut           *big.Int `json:"quoteOut"`
	NewReserves        Reserves `json:"newReserves"`
	PriceBefore        float64  `json:"priceBefore"`
	PriceAfter         float64  `json:"priceAfter"`
	PriceImpactPercent float64  `json:"priceImpactPercent"`
	// RequiredBuyback is the quote amount that restores the pre-dump
	// quote reserve, i.e. the shortfall the dump leaves behind.
	RequiredBuyback *big.Int `json:"requiredBuyback"`
}

// SimulateDump sells the given token amount into the pool in one shot.
func SimulateDump(r Reserves, sellAmount *big.Int) (*DumpResult, error) {
	if !r.valid() {
		return nil, fmt.Errorf("dump: reserves must be positive")
	}
	if sellAmount == nil || sellAmount.Sign() <= 0 {
		return nil, fmt.Errorf("dump: sell amount must be positive")
	}

	quoteOut := swapOut(r.Token, r.Quote, sellAmount)
	newQuote := new(big.Int).Sub(r.Quote, quoteOut)
	newToken := new(big.Int).Add(r.Token, sellAmount)

	before := r.price()
	after := Reserves{Quote: newQuote, Token: newToken}.price()
	impact := 0.0
	if before > 0 {
		impact = (after - before) / before * 100
	}

	return &DumpResult{
		QuoteOut:           quoteOut,
		NewReserves:        Reserves{Quote: newQuote, Token: newToken},
		PriceBefore:        before,
		PriceAfter:         after,
		PriceImpactPercent: impact,
		RequiredBuyback:    new(big.Int).Set(quoteOut),
	}, nil
}

// swapOut is the constant-product output for amountIn of the reserveIn
// asset: out = reserveOut - (reserveIn*reserveOut)/(reserveIn+amountIn).
func swapOut(reserveIn, reserveOut, amountIn *big.Int) *big.Int {
	k := new(big.Int).Mul(reserveIn, reserveOut)
	denom := new(big.Int).Add(reserveIn, amountIn)
	newOut := k.Div(k, denom)
	return new(big.Int).Sub(reserveOut, newOut)
}
