package simulation

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/uint256"
)

// DefaultTempCacheSize bounds the number of fetched storage slots kept per block.
const DefaultTempCacheSize = 1 << 16

type accountData struct {
	balance  *uint256.Int
	nonce    uint64
	code     []byte
	codeHash common.Hash
	exists   bool
}

func newAccountData(balance *uint256.Int, nonce uint64, code []byte, exists bool) *accountData {
	if balance == nil {
		balance = new(uint256.Int)
	}
	acc := &accountData{
		balance: balance,
		nonce:   nonce,
		code:    code,
		exists:  exists || nonce > 0 || !balance.IsZero() || len(code) > 0,
	}
	switch {
	case len(code) > 0:
		acc.codeHash = crypto.Keccak256Hash(code)
	case acc.exists:
		acc.codeHash = types.EmptyCodeHash
	}
	return acc
}

func (a *accountData) copy() *accountData {
	cp := *a
	cp.balance = new(uint256.Int).Set(a.balance)
	return &cp
}

type permanentAccount struct {
	info    *accountData
	mocked  bool
	storage map[common.Hash]common.Hash
}

type storageKey struct {
	addr common.Address
	slot common.Hash
}

// backend holds state that outlives a single call: initialized accounts and
// values fetched from the state source for the current state block.
type backend struct {
	source       StateSource
	block        uint64
	permanent    map[common.Address]*permanentAccount
	tempAccounts *lru.Cache[common.Address, *accountData]
	tempStorage  *lru.Cache[storageKey, common.Hash]
}

func newBackend(source StateSource, block uint64, cacheSize int) (*backend, error) {
	if source == nil {
		source = EmptySource{}
	}
	if cacheSize <= 0 {
		cacheSize = DefaultTempCacheSize
	}
	accounts, err := lru.New[common.Address, *accountData](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("account cache: %w", err)
	}
	storage, err := lru.New[storageKey, common.Hash](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("storage cache: %w", err)
	}
	return &backend{
		source:       source,
		block:        block,
		permanent:    make(map[common.Address]*permanentAccount),
		tempAccounts: accounts,
		tempStorage:  storage,
	}, nil
}

func (b *backend) purge() {
	b.tempAccounts.Purge()
	b.tempStorage.Purge()
}

func (b *backend) account(ctx context.Context, addr common.Address) (*accountData, error) {
	if p, ok := b.permanent[addr]; ok {
		return p.info, nil
	}
	if acc, ok := b.tempAccounts.Get(addr); ok {
		return acc, nil
	}

	balance, err := b.source.BalanceAt(ctx, addr, b.block)
	if err != nil {
		return nil, fmt.Errorf("balance of %s: %w", addr.Hex(), err)
	}
	nonce, err := b.source.NonceAt(ctx, addr, b.block)
	if err != nil {
		return nil, fmt.Errorf("nonce of %s: %w", addr.Hex(), err)
	}
	code, err := b.source.CodeAt(ctx, addr, b.block)
	if err != nil {
		return nil, fmt.Errorf("code of %s: %w", addr.Hex(), err)
	}
	bal, overflow := uint256.FromBig(balance)
	if overflow {
		return nil, fmt.Errorf("balance of %s overflows 256 bits", addr.Hex())
	}
	acc := newAccountData(bal, nonce, code, false)
	b.tempAccounts.Add(addr, acc)
	return acc, nil
}

func (b *backend) storage(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	p, known := b.permanent[addr]
	if known {
		if v, ok := p.storage[slot]; ok {
			return v, nil
		}
		if p.mocked {
			return common.Hash{}, nil
		}
	}

	key := storageKey{addr: addr, slot: slot}
	if v, ok := b.tempStorage.Get(key); ok {
		return v, nil
	}
	v, err := b.source.StorageAt(ctx, addr, slot, b.block)
	if err != nil {
		return common.Hash{}, fmt.Errorf("storage %s[%s]: %w", addr.Hex(), slot.Hex(), err)
	}
	b.tempStorage.Add(key, v)
	return v, nil
}
