package graduation

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ChainReader is the subset of the chain client the detector needs.
type ChainReader interface {
	IsContract(ctx context.Context, addr common.Address) (bool, error)
	AddressHint(ctx context.Context, contract common.Address, signature string) (common.Address, error)
	PairReserves(ctx context.Context, pair common.Address) (*big.Int, *big.Int, error)
	PairToken0(ctx context.Context, pair common.Address) (common.Address, error)
	PairToken1(ctx context.Context, pair common.Address) (common.Address, error)
}

// Info describes a confirmed external market pairing.
type Info struct {
	Pair          common.Address
	Token0        common.Address
	Token1        common.Address
	TokenIsToken0 bool
	ReserveQuote  *big.Int
	ReserveToken  *big.Int
}

// Detector polls a token contract for an external DEX pairing. The token is
// considered graduated only once the pair exists, is a deployed contract,
// and reports nonzero reserves on both sides.
type Detector struct {
	chain ChainReader
	// signatures of the address getters probed on the token contract
	hints []string
}

func NewDetector(chain ChainReader, hintSignatures []string) *Detector {
	return &Detector{chain: chain, hints: hintSignatures}
}

// Check probes the token for a live external pair. A nil Info with nil error
// means not graduated yet; callers retry on their own timer.
func (d *Detector) Check(ctx context.Context, token common.Address) (*Info, error) {
	pair, err := d.findPair(ctx, token)
	if err != nil {
		return nil, err
	}
	if pair == (common.Address{}) {
		return nil, nil
	}

	isContract, err := d.chain.IsContract(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("graduation: code check for %s: %w", pair.Hex(), err)
	}
	if !isContract {
		return nil, nil
	}

	r0, r1, err := d.chain.PairReserves(ctx, pair)
	if err != nil {
		// Pair may predate its initialize call; treat as not yet liquid.
		return nil, nil
	}
	if r0.Sign() == 0 || r1.Sign() == 0 {
		return nil, nil
	}

	t0, err := d.chain.PairToken0(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("graduation: token0 for %s: %w", pair.Hex(), err)
	}
	t1, err := d.chain.PairToken1(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("graduation: token1 for %s: %w", pair.Hex(), err)
	}

	info := &Info{
		Pair:          pair,
		Token0:        t0,
		Token1:        t1,
		TokenIsToken0: t0 == token,
	}
	if info.TokenIsToken0 {
		info.ReserveToken, info.ReserveQuote = r0, r1
	} else {
		info.ReserveToken, info.ReserveQuote = r1, r0
	}
	return info, nil
}

// findPair tries each hint getter in order; reverts (tokens without the
// getter) are skipped, a zero address means no pairing yet.
func (d *Detector) findPair(ctx context.Context, token common.Address) (common.Address, error) {
	for _, sig := range d.hints {
		addr, err := d.chain.AddressHint(ctx, token, sig)
		if err != nil {
			continue
		}
		if addr != (common.Address{}) && addr != token {
			return addr, nil
		}
	}
	return common.Address{}, nil
}
