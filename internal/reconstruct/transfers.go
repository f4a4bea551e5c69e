package reconstruct

import (
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kjannette/curvescan-backend/internal/models"
)

// TxGroup is every transfer of interest inside one transaction: the token
// transfers that touch the market plus all quote-asset transfers from the
// same transaction (tax and fee legs often route through addresses other
// than the market, so quote legs are never filtered by counterparty).
type TxGroup struct {
	TxHash common.Hash
	Block  uint64
	Time   time.Time
	Token  []models.TransferEvent
	Quote  []models.TransferEvent
}

// MinLogIndex is the trade ordering key: the minimum log index across every
// transfer in the group.
func (g *TxGroup) MinLogIndex() uint {
	min := ^uint(0)
	for _, tr := range g.Token {
		if tr.LogIndex < min {
			min = tr.LogIndex
		}
	}
	for _, tr := range g.Quote {
		if tr.LogIndex < min {
			min = tr.LogIndex
		}
	}
	if min == ^uint(0) {
		return 0
	}
	return min
}

// GroupByMarket builds one TxGroup per transaction in which at least one
// token transfer touches the market address. Groups come back ordered by
// (block, min log index).
func GroupByMarket(tokenTransfers, quoteTransfers []models.TransferEvent, market common.Address) []TxGroup {
	byTx := make(map[common.Hash]*TxGroup)
	for _, tr := range tokenTransfers {
		if tr.From != market && tr.To != market {
			continue
		}
		g := byTx[tr.TxHash]
		if g == nil {
			g = &TxGroup{TxHash: tr.TxHash, Block: tr.Block, Time: tr.Time}
			byTx[tr.TxHash] = g
		}
		g.Token = append(g.Token, tr)
	}
	if len(byTx) == 0 {
		return nil
	}
	// Second pass: token transfers in a grouped tx that do not touch the
	// market themselves (trader-to-trader legs, tax legs).
	for _, tr := range tokenTransfers {
		if tr.From == market || tr.To == market {
			continue
		}
		if g, ok := byTx[tr.TxHash]; ok {
			g.Token = append(g.Token, tr)
		}
	}
	for _, tr := range quoteTransfers {
		if g, ok := byTx[tr.TxHash]; ok {
			g.Quote = append(g.Quote, tr)
		}
	}

	groups := make([]TxGroup, 0, len(byTx))
	for _, g := range byTx {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Block != groups[j].Block {
			return groups[i].Block < groups[j].Block
		}
		return groups[i].MinLogIndex() < groups[j].MinLogIndex()
	})
	return groups
}

// GroupAll builds one group per transaction across both assets with no
// market filter. Used by the tax extractor, which has to see transactions
// the trade reconstructor would ignore.
func GroupAll(tokenTransfers, quoteTransfers []models.TransferEvent) []TxGroup {
	byTx := make(map[common.Hash]*TxGroup)
	get := func(tr models.TransferEvent) *TxGroup {
		g := byTx[tr.TxHash]
		if g == nil {
			g = &TxGroup{TxHash: tr.TxHash, Block: tr.Block, Time: tr.Time}
			byTx[tr.TxHash] = g
		}
		return g
	}
	for _, tr := range tokenTransfers {
		g := get(tr)
		g.Token = append(g.Token, tr)
	}
	for _, tr := range quoteTransfers {
		g := get(tr)
		g.Quote = append(g.Quote, tr)
	}

	groups := make([]TxGroup, 0, len(byTx))
	for _, g := range byTx {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Block != groups[j].Block {
			return groups[i].Block < groups[j].Block
		}
		return groups[i].MinLogIndex() < groups[j].MinLogIndex()
	})
	return groups
}

// --- flow helpers shared by trades.go and tax.go ---

// sumTo adds up transfer amounts into addr.
func sumTo(transfers []models.TransferEvent, addr common.Address) *big.Int {
	total := new(big.Int)
	for _, tr := range transfers {
		if tr.To == addr {
			total.Add(total, tr.Amount)
		}
	}
	return total
}

// sumFrom adds up transfer amounts out of addr.
func sumFrom(transfers []models.TransferEvent, addr common.Address) *big.Int {
	total := new(big.Int)
	for _, tr := range transfers {
		if tr.From == addr {
			total.Add(total, tr.Amount)
		}
	}
	return total
}

// sumFromTo adds up transfer amounts flowing from -> to.
func sumFromTo(transfers []models.TransferEvent, from, to common.Address) *big.Int {
	total := new(big.Int)
	for _, tr := range transfers {
		if tr.From == from && tr.To == to {
			total.Add(total, tr.Amount)
		}
	}
	return total
}

// largestFrom returns the biggest single transfer out of addr, or nil.
func largestFrom(transfers []models.TransferEvent, addr common.Address) *models.TransferEvent {
	var best *models.TransferEvent
	for i := range transfers {
		tr := &transfers[i]
		if tr.From != addr {
			continue
		}
		if best == nil || tr.Amount.Cmp(best.Amount) > 0 {
			best = tr
		}
	}
	return best
}

// largestTo returns the biggest single transfer into addr, or nil.
func largestTo(transfers []models.TransferEvent, addr common.Address) *models.TransferEvent {
	var best *models.TransferEvent
	for i := range transfers {
		tr := &transfers[i]
		if tr.To != addr {
			continue
		}
		if best == nil || tr.Amount.Cmp(best.Amount) > 0 {
			best = tr
		}
	}
	return best
}

func containsAddr(list []common.Address, addr common.Address) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}
