package reconstruct

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/kjannette/curvescan-backend/internal/models"
)

// TaxParams configures tax-inflow extraction for one project.
type TaxParams struct {
	ProjectID    int64
	Token        common.Address
	Quote        common.Address
	TaxRecipient common.Address // zero when the token exposes none
	Market       common.Address // zero while discovery is unresolved
	LaunchPaths  []common.Address

	// LaunchPathNet receives the post-tax payment on split-tax buys; its
	// inflow is the trade's net, never tax.
	LaunchPathNet common.Address
}

// TaxInflows identifies the transfer legs that constitute protocol tax.
//
// Two rules apply, in order. The split-tax rule: in a transaction where a
// market-like address paid out tokens (a buy), quote the buyer sent to the
// launch-path addresses is tax, even though it never touched the tax
// recipient. The generic rule: any token transfer into the tax recipient is
// token tax, and any quote transfer into the tax recipient is quote tax when
// the transaction also moved the project token. Legs consumed by the split
// rule are not double-counted by the generic one.
func TaxInflows(tokenTransfers, quoteTransfers []models.TransferEvent, p TaxParams) []*models.TaxInflow {
	var out []*models.TaxInflow
	seen := make(map[uint]struct{}) // consumed quote log indexes, per group

	for _, g := range GroupAll(tokenTransfers, quoteTransfers) {
		clear(seen)

		if len(g.Token) > 0 && len(g.Quote) > 0 {
			out = append(out, splitTaxLegs(&g, p, seen)...)
		}

		for _, tr := range g.Token {
			if p.TaxRecipient != (common.Address{}) && tr.To == p.TaxRecipient {
				out = append(out, inflow(&g, p, tr, p.Token))
			}
		}
		if len(g.Token) == 0 {
			// Quote tax only counts when the transaction also moved the
			// project token; a bare quote transfer to the recipient is just
			// a transfer.
			continue
		}
		for _, tr := range g.Quote {
			if p.TaxRecipient == (common.Address{}) || tr.To != p.TaxRecipient {
				continue
			}
			if _, consumed := seen[tr.LogIndex]; consumed {
				continue
			}
			out = append(out, inflow(&g, p, tr, p.Quote))
		}
	}
	return out
}

// splitTaxLegs applies the split-tax rule: derive the buyer from the largest
// token payout of a market-like address, then record the quote legs that
// buyer sent to the launch path (but not to the market or the tax recipient)
// as tax.
func splitTaxLegs(g *TxGroup, p TaxParams, seen map[uint]struct{}) []*models.TaxInflow {
	proxy := buyProxy(g, p.Market)
	if proxy == nil {
		return nil
	}
	trader, market := proxy.To, proxy.From

	var out []*models.TaxInflow
	for _, tr := range g.Quote {
		if tr.From != trader || !containsAddr(p.LaunchPaths, tr.To) {
			continue
		}
		if tr.To == market || tr.To == p.TaxRecipient || tr.To == p.LaunchPathNet {
			continue
		}
		out = append(out, inflow(g, p, tr, p.Quote))
		seen[tr.LogIndex] = struct{}{}
	}
	return out
}

// buyProxy picks the token leg that best represents a buy: the largest
// payout from the known market when set, otherwise the largest token
// transfer in the transaction.
func buyProxy(g *TxGroup, market common.Address) *models.TransferEvent {
	if market != (common.Address{}) {
		return largestFrom(g.Token, market)
	}
	var best *models.TransferEvent
	for i := range g.Token {
		tr := &g.Token[i]
		if best == nil || tr.Amount.Cmp(best.Amount) > 0 {
			best = tr
		}
	}
	return best
}

func inflow(g *TxGroup, p TaxParams, tr models.TransferEvent, asset common.Address) *models.TaxInflow {
	return &models.TaxInflow{
		ProjectID:    p.ProjectID,
		TxHash:       g.TxHash.Hex(),
		LogIndex:     tr.LogIndex,
		Block:        g.Block,
		Timestamp:    g.Time,
		TokenAddress: asset.Hex(),
		Amount:       tr.Amount,
	}
}
