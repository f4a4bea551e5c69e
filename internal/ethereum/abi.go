package ethereum

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/kjannette/curvescan-backend/internal/models"
)

// Event topics and call selectors are computed from raw signatures. The
// indexer only ever packs no-argument getters and one-address getters, so a
// full ABI definition buys nothing over hand-rolled calldata.

var (
	transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	swapTopic     = crypto.Keccak256Hash([]byte("Swap(address,uint256,uint256,uint256,uint256,address)"))

	selTotalSupply = Selector("totalSupply()")
	selBalanceOf   = Selector("balanceOf(address)")
	selGetReserves = Selector("getReserves()")
	selToken0      = Selector("token0()")
	selToken1      = Selector("token1()")
)

// Selector returns the 4-byte function selector for a signature such as
// "pairAddress()".
func Selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

// balanceOfCalldata packs balanceOf(holder).
func balanceOfCalldata(holder common.Address) []byte {
	data := make([]byte, 4+32)
	copy(data, selBalanceOf)
	copy(data[4+12:], holder.Bytes())
	return data
}

// wordAddress reads an ABI-encoded address out of a 32-byte return word.
func wordAddress(ret []byte) (common.Address, bool) {
	if len(ret) < 32 {
		return common.Address{}, false
	}
	return common.BytesToAddress(ret[12:32]), true
}

// wordUint reads an ABI-encoded uint256 word at index i.
func wordUint(ret []byte, i int) (*big.Int, bool) {
	if len(ret) < (i+1)*32 {
		return nil, false
	}
	return new(big.Int).SetBytes(ret[i*32 : (i+1)*32]), true
}

func decodeTransfer(lg types.Log) (models.TransferEvent, bool) {
	if len(lg.Topics) != 3 || len(lg.Data) < 32 {
		return models.TransferEvent{}, false
	}
	return models.TransferEvent{
		Token:    lg.Address,
		TxHash:   lg.TxHash,
		LogIndex: lg.Index,
		Block:    lg.BlockNumber,
		From:     common.BytesToAddress(lg.Topics[1].Bytes()[12:]),
		To:       common.BytesToAddress(lg.Topics[2].Bytes()[12:]),
		Amount:   new(big.Int).SetBytes(lg.Data[:32]),
	}, true
}

func decodeSwap(lg types.Log) (models.SwapEvent, bool) {
	if len(lg.Topics) != 3 || len(lg.Data) < 4*32 {
		return models.SwapEvent{}, false
	}
	a0in, _ := wordUint(lg.Data, 0)
	a1in, _ := wordUint(lg.Data, 1)
	a0out, _ := wordUint(lg.Data, 2)
	a1out, _ := wordUint(lg.Data, 3)
	return models.SwapEvent{
		Pair:       lg.Address,
		TxHash:     lg.TxHash,
		LogIndex:   lg.Index,
		Block:      lg.BlockNumber,
		Sender:     common.BytesToAddress(lg.Topics[1].Bytes()[12:]),
		To:         common.BytesToAddress(lg.Topics[2].Bytes()[12:]),
		Amount0In:  a0in,
		Amount1In:  a1in,
		Amount0Out: a0out,
		Amount1Out: a1out,
	}, true
}
