package sqlite

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"swapSim/internal/simulation"
)

type countingSource struct {
	simulation.EmptySource
	balances int
	codes    int
	slots    int
}

func (s *countingSource) BalanceAt(context.Context, common.Address, uint64) (*big.Int, error) {
	s.balances++
	return big.NewInt(42), nil
}

func (s *countingSource) CodeAt(context.Context, common.Address, uint64) ([]byte, error) {
	s.codes++
	return []byte{0x60, 0x00}, nil
}

func (s *countingSource) StorageAt(_ context.Context, _ common.Address, slot common.Hash, block uint64) (common.Hash, error) {
	s.slots++
	return common.BigToHash(new(big.Int).SetUint64(block)), nil
}

func TestCacheReadsThroughOncePerBlock(t *testing.T) {
	upstream := &countingSource{}
	cache, err := Open(filepath.Join(t.TempDir(), "state.db"), upstream, nil)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	slot := common.HexToHash("0x01")

	for i := 0; i < 2; i++ {
		balance, err := cache.BalanceAt(ctx, addr, 100)
		if err != nil {
			t.Fatalf("balance: %v", err)
		}
		if balance.Int64() != 42 {
			t.Fatalf("unexpected balance %s", balance)
		}
		value, err := cache.StorageAt(ctx, addr, slot, 100)
		if err != nil {
			t.Fatalf("storage: %v", err)
		}
		if value != common.BigToHash(big.NewInt(100)) {
			t.Fatalf("unexpected storage %s", value.Hex())
		}
		code, err := cache.CodeAt(ctx, addr, 100)
		if err != nil {
			t.Fatalf("code: %v", err)
		}
		if len(code) != 2 {
			t.Fatalf("unexpected code %x", code)
		}
	}
	if upstream.balances != 1 || upstream.slots != 1 || upstream.codes != 1 {
		t.Fatalf("expected one upstream read each, got balance=%d storage=%d code=%d", upstream.balances, upstream.slots, upstream.codes)
	}

	value, err := cache.StorageAt(ctx, addr, slot, 101)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	if value != common.BigToHash(big.NewInt(101)) || upstream.slots != 2 {
		t.Fatalf("expected a fresh read for a new block, got %s after %d reads", value.Hex(), upstream.slots)
	}
}

func TestCacheRequiresUpstream(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "state.db"), nil, nil); err == nil {
		t.Fatalf("expected error without upstream")
	}
}
