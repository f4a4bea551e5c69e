package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"time"

	gethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/kjannette/curvescan-backend/internal/models"
)

// Client is a read-only wrapper around an Ethereum JSON-RPC endpoint. The
// indexer never signs or sends transactions; everything here is log filters,
// eth_call and header reads.
type Client struct {
	rpc *ethclient.Client
}

func NewClient(rpcURL string) (*Client, error) {
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial RPC: %w", err)
	}
	return &Client{rpc: rpc}, nil
}

func (c *Client) Close() { c.rpc.Close() }

// LatestBlock returns the current chain head number.
func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	return c.rpc.BlockNumber(ctx)
}

// BlockTime returns the timestamp of a block header.
func (c *Client) BlockTime(ctx context.Context, number uint64) (time.Time, error) {
	hdr, err := c.rpc.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return time.Time{}, fmt.Errorf("header %d: %w", number, err)
	}
	return time.Unix(int64(hdr.Time), 0).UTC(), nil
}

// IsContract reports whether addr has code deployed.
func (c *Client) IsContract(ctx context.Context, addr common.Address) (bool, error) {
	code, err := c.rpc.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

// CallContract performs a read-only eth_call and returns the raw result.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := map[string]interface{}{
		"to":   to.Hex(),
		"data": fmt.Sprintf("0x%x", data),
	}
	var result string
	err := c.rpc.Client().CallContext(ctx, &result, "eth_call", msg, "latest")
	if err != nil {
		return nil, err
	}
	return common.FromHex(result), nil
}

// TransferLogs fetches and decodes all ERC-20 Transfer logs emitted by token
// over [from, to] inclusive. Undecodable logs are skipped.
func (c *Client) TransferLogs(ctx context.Context, token common.Address, from, to uint64) ([]models.TransferEvent, error) {
	query := gethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{token},
		Topics:    [][]common.Hash{{transferTopic}},
	}
	logs, err := c.rpc.FilterLogs(ctx, query)
	if err != nil {
		return nil, err
	}

	out := make([]models.TransferEvent, 0, len(logs))
	for _, lg := range logs {
		ev, ok := decodeTransfer(lg)
		if !ok {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// SwapLogs fetches and decodes DEX pool Swap logs emitted by pair over
// [from, to] inclusive.
func (c *Client) SwapLogs(ctx context.Context, pair common.Address, from, to uint64) ([]models.SwapEvent, error) {
	query := gethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{pair},
		Topics:    [][]common.Hash{{swapTopic}},
	}
	logs, err := c.rpc.FilterLogs(ctx, query)
	if err != nil {
		return nil, err
	}

	out := make([]models.SwapEvent, 0, len(logs))
	for _, lg := range logs {
		ev, ok := decodeSwap(lg)
		if !ok {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}
