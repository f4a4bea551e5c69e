package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PairReserves reads getReserves() off a V2-style pool and returns
// (reserve0, reserve1).
func (c *Client) PairReserves(ctx context.Context, pair common.Address) (*big.Int, *big.Int, error) {
	ret, err := c.CallContract(ctx, pair, selGetReserves)
	if err != nil {
		return nil, nil, fmt.Errorf("getReserves: %w", err)
	}
	r0, ok0 := wordUint(ret, 0)
	r1, ok1 := wordUint(ret, 1)
	if !ok0 || !ok1 {
		return nil, nil, fmt.Errorf("getReserves: short return (%d bytes)", len(ret))
	}
	return r0, r1, nil
}

// PairToken0 reads token0() off a V2-style pool.
func (c *Client) PairToken0(ctx context.Context, pair common.Address) (common.Address, error) {
	ret, err := c.CallContract(ctx, pair, selToken0)
	if err != nil {
		return common.Address{}, fmt.Errorf("token0: %w", err)
	}
	addr, ok := wordAddress(ret)
	if !ok {
		return common.Address{}, fmt.Errorf("token0: short return (%d bytes)", len(ret))
	}
	return addr, nil
}

// PairToken1 reads token1() off a V2-style pool.
func (c *Client) PairToken1(ctx context.Context, pair common.Address) (common.Address, error) {
	ret, err := c.CallContract(ctx, pair, selToken1)
	if err != nil {
		return common.Address{}, fmt.Errorf("token1: %w", err)
	}
	addr, ok := wordAddress(ret)
	if !ok {
		return common.Address{}, fmt.Errorf("token1: short return (%d bytes)", len(ret))
	}
	return addr, nil
}

// TokenBalance reads balanceOf(holder) on an ERC-20 token.
func (c *Client) TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	ret, err := c.CallContract(ctx, token, balanceOfCalldata(holder))
	if err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}
	bal, ok := wordUint(ret, 0)
	if !ok {
		return nil, fmt.Errorf("balanceOf: short return (%d bytes)", len(ret))
	}
	return bal, nil
}

// TotalSupply reads totalSupply() on an ERC-20 token.
func (c *Client) TotalSupply(ctx context.Context, token common.Address) (*big.Int, error) {
	ret, err := c.CallContract(ctx, token, selTotalSupply)
	if err != nil {
		return nil, fmt.Errorf("totalSupply: %w", err)
	}
	supply, ok := wordUint(ret, 0)
	if !ok {
		return nil, fmt.Errorf("totalSupply: short return (%d bytes)", len(ret))
	}
	return supply, nil
}

// UintHint calls a no-argument uint getter (e.g. "buyTaxBps()") on a
// contract.
func (c *Client) UintHint(ctx context.Context, contract common.Address, signature string) (*big.Int, error) {
	ret, err := c.CallContract(ctx, contract, Selector(signature))
	if err != nil {
		return nil, err
	}
	v, ok := wordUint(ret, 0)
	if !ok {
		return nil, fmt.Errorf("%s: short return (%d bytes)", signature, len(ret))
	}
	return v, nil
}

// AddressHint calls a no-argument address getter (e.g. "pairAddress()") on a
// contract and returns the address it reports. Reverts and short returns
// come back as errors; a zero address is returned as-is for the caller to
// interpret.
func (c *Client) AddressHint(ctx context.Context, contract common.Address, signature string) (common.Address, error) {
	ret, err := c.CallContract(ctx, contract, Selector(signature))
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := wordAddress(ret)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: short return (%d bytes)", signature, len(ret))
	}
	return addr, nil
}
