package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"swapSim/internal/chain"
	"swapSim/internal/dex"
	"swapSim/internal/model"
	"swapSim/internal/simulation"
	"swapSim/internal/storage/sqlite"
)

func loadSnapshot(path string) (model.SnapshotFile, error) {
	if path == "" {
		return model.SnapshotFile{}, fmt.Errorf("snapshot path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.SnapshotFile{}, fmt.Errorf("read snapshot: %w", err)
	}
	var file model.SnapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return model.SnapshotFile{}, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	if len(file.Snapshots) == 0 {
		return model.SnapshotFile{}, fmt.Errorf("snapshot %s has no components", path)
	}
	return file, nil
}

// readCode loads contract bytecode from a file holding either hex text or raw bytes.
func readCode(path, what string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("%s path is required", what)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", what, err)
	}
	text := strings.TrimSpace(string(data))
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		code, err := hexutil.Decode(text)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", what, err)
		}
		return code, nil
	}
	if isHexText(text) {
		return hexutil.Decode("0x" + text)
	}
	return bytes.Clone(data), nil
}

func isHexText(s string) bool {
	if s == "" || len(s)%2 != 0 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

func connectChain(ctx context.Context, rpcURL string, maxRetries int, backoff time.Duration) (*chain.Client, error) {
	client, err := chain.NewClient(ctx, rpcURL, chain.RetryPolicy{MaxRetries: maxRetries, BaseDelay: backoff})
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	return client, nil
}

// resolveBlock fills a missing timestamp or hash from the chain.
func resolveBlock(ctx context.Context, client *chain.Client, block model.SnapshotBlock) (model.EVMBlock, error) {
	evm := model.EVMBlock{
		Number:    block.Number,
		Timestamp: time.Unix(block.Timestamp, 0).UTC(),
		Hash:      block.Hash,
	}
	if block.Timestamp != 0 && block.Hash != "" {
		return evm, nil
	}
	if client == nil {
		if block.Timestamp == 0 {
			return model.EVMBlock{}, fmt.Errorf("block %d has no timestamp and no rpc is configured", block.Number)
		}
		return evm, nil
	}
	resolved, err := client.Block(ctx, block.Number)
	if err != nil {
		return model.EVMBlock{}, fmt.Errorf("fetch block %d: %w", block.Number, err)
	}
	return resolved, nil
}

// loadTokens uses the tokens embedded in the snapshot, or fetches metadata for every
// referenced token when there are none.
func loadTokens(ctx context.Context, client *chain.Client, file model.SnapshotFile, extra []string, logger *zap.Logger) (model.TokenSet, error) {
	if len(file.Tokens) > 0 {
		return dex.LoadTokens(ctx, dex.StaticTokens(file.Tokens), dex.DefaultTokenPageSize)
	}
	if client == nil {
		return nil, fmt.Errorf("snapshot has no tokens and no rpc is configured")
	}
	addresses := append([]string(nil), extra...)
	for _, snap := range file.Snapshots {
		addresses = append(addresses, snap.Component.Tokens...)
	}
	source := dex.NewChainTokens(client, addresses, dex.NewTokenMetaCache(), logger)
	return dex.LoadTokens(ctx, source, dex.DefaultTokenPageSize)
}

// stateSource picks where non-mocked accounts are read from. The returned close
// function is never nil.
func stateSource(client *chain.Client, cachePath string, logger *zap.Logger) (simulation.StateSource, func() error, error) {
	noop := func() error { return nil }
	if client == nil {
		if cachePath != "" {
			return nil, noop, fmt.Errorf("state cache requires an rpc url")
		}
		return simulation.EmptySource{}, noop, nil
	}
	if cachePath == "" {
		return client, noop, nil
	}
	cache, err := sqlite.Open(cachePath, client, logger)
	if err != nil {
		return nil, noop, err
	}
	return cache, cache.Close, nil
}

func engineFactory(source simulation.StateSource, block model.EVMBlock, cacheSize int, logger *zap.Logger) dex.EngineFactory {
	return func(accounts simulation.PoolAccounts) (simulation.Engine, error) {
		return simulation.NewPoolEngine(simulation.EngineConfig{
			StateBlock:    block.Number,
			TempCacheSize: cacheSize,
		}, source, accounts, logger)
	}
}

// chainReader avoids handing a typed nil client to code that checks for nil.
func chainReader(client *chain.Client) dex.ChainReader {
	if client == nil {
		return nil
	}
	return client
}
