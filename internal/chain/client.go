package chain

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"swapSim/internal/model"
)

// Client wraps go-ethereum RPC and provides helper methods.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	retry     RetryPolicy

	mu      sync.RWMutex
	tsCache map[uint64]uint64
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string, retry RetryPolicy) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		retry:     retry,
		tsCache:   make(map[uint64]uint64),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	return c.ethClient.ChainID(ctx)
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// HeaderByNumber returns the block header by number.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	var header *types.Header
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		header, err = c.ethClient.HeaderByNumber(ctx, number)
		return err
	})
	return header, err
}

// Block returns the simulation context of a block.
func (c *Client) Block(ctx context.Context, number uint64) (model.EVMBlock, error) {
	header, err := c.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return model.EVMBlock{}, err
	}
	c.mu.Lock()
	c.tsCache[number] = header.Time
	c.mu.Unlock()
	return model.EVMBlock{
		Number:    header.Number.Uint64(),
		Timestamp: time.Unix(int64(header.Time), 0).UTC(),
		Hash:      header.Hash().Hex(),
	}, nil
}

// BlockTimestamp returns the block timestamp, using an in-memory cache.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.RLock()
	ts, ok := c.tsCache[number]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	header, err := c.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}

	ts = header.Time
	c.mu.Lock()
	c.tsCache[number] = ts
	c.mu.Unlock()

	return ts, nil
}

// CallContract performs an eth_call for a contract method.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.ethClient.CallContract(ctx, msg, blockNumber)
		return err
	})
	return out, err
}

// BalanceAt returns the ether balance of an account at a block.
func (c *Client) BalanceAt(ctx context.Context, addr common.Address, block uint64) (*big.Int, error) {
	var out *big.Int
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.ethClient.BalanceAt(ctx, addr, blockArg(block))
		return err
	})
	return out, err
}

// NonceAt returns the nonce of an account at a block.
func (c *Client) NonceAt(ctx context.Context, addr common.Address, block uint64) (uint64, error) {
	var out uint64
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.ethClient.NonceAt(ctx, addr, blockArg(block))
		return err
	})
	return out, err
}

// CodeAt returns the code of an account at a block.
func (c *Client) CodeAt(ctx context.Context, addr common.Address, block uint64) ([]byte, error) {
	var out []byte
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.ethClient.CodeAt(ctx, addr, blockArg(block))
		return err
	})
	return out, err
}

// StorageAt returns a storage slot of an account at a block.
func (c *Client) StorageAt(ctx context.Context, addr common.Address, slot common.Hash, block uint64) (common.Hash, error) {
	var out []byte
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.ethClient.StorageAt(ctx, addr, slot, blockArg(block))
		return err
	})
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(out), nil
}

// blockArg maps block 0 to the latest block.
func blockArg(block uint64) *big.Int {
	if block == 0 {
		return nil
	}
	return new(big.Int).SetUint64(block)
}
