package graduation

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	tokenAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	pairAddr  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	quoteAddr = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

type fakeChain struct {
	hints     map[string]common.Address
	contracts map[common.Address]bool
	reserve0  *big.Int
	reserve1  *big.Int
	resErr    error
	token0    common.Address
	token1    common.Address
}

func (f *fakeChain) IsContract(_ context.Context, addr common.Address) (bool, error) {
	return f.contracts[addr], nil
}

func (f *fakeChain) AddressHint(_ context.Context, _ common.Address, sig string) (common.Address, error) {
	addr, ok := f.hints[sig]
	if !ok {
		return common.Address{}, errors.New("execution reverted")
	}
	return addr, nil
}

func (f *fakeChain) PairReserves(_ context.Context, _ common.Address) (*big.Int, *big.Int, error) {
	if f.resErr != nil {
		return nil, nil, f.resErr
	}
	return f.reserve0, f.reserve1, nil
}

func (f *fakeChain) PairToken0(_ context.Context, _ common.Address) (common.Address, error) {
	return f.token0, nil
}

func (f *fakeChain) PairToken1(_ context.Context, _ common.Address) (common.Address, error) {
	return f.token1, nil
}

func liquidChain() *fakeChain {
	return &fakeChain{
		hints:     map[string]common.Address{"pairAddress()": pairAddr},
		contracts: map[common.Address]bool{pairAddr: true},
		reserve0:  big.NewInt(5_000_000),
		reserve1:  big.NewInt(10_000),
		token0:    tokenAddr,
		token1:    quoteAddr,
	}
}

func hints() []string {
	return []string{"pairAddress()", "uniswapPair()"}
}

func TestCheck_GraduatedWithLiquidPair(t *testing.T) {
	d := NewDetector(liquidChain(), hints())

	info, err := d.Check(context.Background(), tokenAddr)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if info == nil {
		t.Fatal("expected graduation info, got nil")
	}
	if info.Pair != pairAddr {
		t.Errorf("pair: got %s, want %s", info.Pair.Hex(), pairAddr.Hex())
	}
	if !info.TokenIsToken0 {
		t.Error("expected token to be token0")
	}
	if info.ReserveToken.Cmp(big.NewInt(5_000_000)) != 0 {
		t.Errorf("token reserve: got %v, want 5000000", info.ReserveToken)
	}
	if info.ReserveQuote.Cmp(big.NewInt(10_000)) != 0 {
		t.Errorf("quote reserve: got %v, want 10000", info.ReserveQuote)
	}
}

func TestCheck_TokenAsToken1SwapsReserves(t *testing.T) {
	chain := liquidChain()
	chain.token0, chain.token1 = quoteAddr, tokenAddr
	chain.reserve0, chain.reserve1 = big.NewInt(10_000), big.NewInt(5_000_000)

	info, err := NewDetector(chain, hints()).Check(context.Background(), tokenAddr)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if info == nil {
		t.Fatal("expected graduation info, got nil")
	}
	if info.TokenIsToken0 {
		t.Error("expected token to be token1")
	}
	if info.ReserveToken.Cmp(big.NewInt(5_000_000)) != 0 {
		t.Errorf("token reserve: got %v, want 5000000", info.ReserveToken)
	}
}

func TestCheck_ZeroAddressMeansNotGraduated(t *testing.T) {
	chain := liquidChain()
	chain.hints["pairAddress()"] = common.Address{}

	info, err := NewDetector(chain, hints()).Check(context.Background(), tokenAddr)
	if err != nil || info != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", info, err)
	}
}

func TestCheck_RevertingHintsMeanNotGraduated(t *testing.T) {
	chain := liquidChain()
	chain.hints = map[string]common.Address{}

	info, err := NewDetector(chain, hints()).Check(context.Background(), tokenAddr)
	if err != nil || info != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", info, err)
	}
}

func TestCheck_SecondHintUsedWhenFirstReverts(t *testing.T) {
	chain := liquidChain()
	chain.hints = map[string]common.Address{"uniswapPair()": pairAddr}

	info, err := NewDetector(chain, hints()).Check(context.Background(), tokenAddr)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if info == nil || info.Pair != pairAddr {
		t.Fatalf("expected pair via second hint, got %+v", info)
	}
}

func TestCheck_EOAPairNotGraduated(t *testing.T) {
	chain := liquidChain()
	chain.contracts[pairAddr] = false

	info, err := NewDetector(chain, hints()).Check(context.Background(), tokenAddr)
	if err != nil || info != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", info, err)
	}
}

func TestCheck_ZeroReservesNotGraduated(t *testing.T) {
	chain := liquidChain()
	chain.reserve1 = big.NewInt(0)

	info, err := NewDetector(chain, hints()).Check(context.Background(), tokenAddr)
	if err != nil || info != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", info, err)
	}
}

func TestCheck_ReserveReadErrorNotGraduated(t *testing.T) {
	chain := liquidChain()
	chain.resErr = errors.New("execution reverted")

	info, err := NewDetector(chain, hints()).Check(context.Background(), tokenAddr)
	if err != nil || info != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", info, err)
	}
}
