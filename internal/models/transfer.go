package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TransferEvent is one decoded ERC-20 Transfer log. Token identifies the
// emitting contract (project token or quote asset). Time is filled in by the
// orchestrator from the block header; raw log fetches leave it zero.
type TransferEvent struct {
	Token    common.Address
	TxHash   common.Hash
	LogIndex uint
	Block    uint64
	Time     time.Time
	From     common.Address
	To       common.Address
	Amount   *big.Int
}

// SwapEvent is one decoded DEX pool Swap log (external markets only).
type SwapEvent struct {
	Pair       common.Address
	TxHash     common.Hash
	LogIndex   uint
	Block      uint64
	Time       time.Time
	Sender     common.Address
	To         common.Address
	Amount0In  *big.Int
	Amount1In  *big.Int
	Amount0Out *big.Int
	Amount1Out *big.Int
}
