package simulation

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"swapSim/internal/overwrite"
)

// DefaultGasLimit is used when Params.GasLimit is zero.
const DefaultGasLimit uint64 = 30_000_000

// AccountInfo seeds an account in the engine.
type AccountInfo struct {
	Balance *uint256.Int
	Nonce   uint64
	Code    []byte
}

// Params describes a single call.
type Params struct {
	Caller      common.Address
	To          common.Address
	Data        []byte
	Value       *uint256.Int
	GasLimit    uint64
	BlockNumber uint64
	Timestamp   uint64
	// Overrides are storage values applied for this call only.
	Overrides overwrite.Map
}

func (p Params) gasLimit() uint64 {
	if p.GasLimit == 0 {
		return DefaultGasLimit
	}
	return p.GasLimit
}

// StateUpdate is the net effect of a call on one account.
type StateUpdate struct {
	Storage map[common.Hash]common.Hash
	Balance *uint256.Int
}

// Result of a successful call. Failed calls return *simerr.ExecutionFailure.
type Result struct {
	Return       []byte
	StateUpdates map[common.Address]StateUpdate
	GasUsed      uint64
}

// StorageOverwrites extracts the storage part of the updates.
func StorageOverwrites(updates map[common.Address]StateUpdate) overwrite.Map {
	out := overwrite.Map{}
	for addr, upd := range updates {
		for slot, value := range upd.Storage {
			out.Set(addr, slot, value)
		}
	}
	return out
}

// Engine executes calls against a state that is never committed.
// A single Engine is not safe for interleaved use by independent trade chains:
// temporary storage is shared by every caller.
type Engine interface {
	// InitAccount installs an account. Mocked accounts never read storage from
	// the state source; unset slots read as zero.
	InitAccount(addr common.Address, info AccountInfo, mocked bool, permanentStorage map[common.Hash]common.Hash)
	Run(ctx context.Context, p Params) (*Result, error)
	// ClearTempStorage drops every value fetched from the state source.
	ClearTempStorage()
}

// StateSource provides chain state for accounts the engine does not know.
type StateSource interface {
	BalanceAt(ctx context.Context, addr common.Address, block uint64) (*big.Int, error)
	NonceAt(ctx context.Context, addr common.Address, block uint64) (uint64, error)
	CodeAt(ctx context.Context, addr common.Address, block uint64) ([]byte, error)
	StorageAt(ctx context.Context, addr common.Address, slot common.Hash, block uint64) (common.Hash, error)
}

// EmptySource reports every account as empty.
type EmptySource struct{}

func (EmptySource) BalanceAt(context.Context, common.Address, uint64) (*big.Int, error) {
	return new(big.Int), nil
}

func (EmptySource) NonceAt(context.Context, common.Address, uint64) (uint64, error) {
	return 0, nil
}

func (EmptySource) CodeAt(context.Context, common.Address, uint64) ([]byte, error) {
	return nil, nil
}

func (EmptySource) StorageAt(context.Context, common.Address, common.Hash, uint64) (common.Hash, error) {
	return common.Hash{}, nil
}
