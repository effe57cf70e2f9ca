package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"swapSim/internal/simerr"
)

// EngineConfig controls the EVM engine.
type EngineConfig struct {
	// StateBlock is the block the state source is read at.
	StateBlock uint64
	// TempCacheSize bounds cached source reads. Zero uses DefaultTempCacheSize.
	TempCacheSize int
	// ChainConfig selects the active forks. Nil enables every fork from genesis.
	ChainConfig *params.ChainConfig
	Coinbase    common.Address
}

// EVMEngine runs calls through go-ethereum's interpreter on an overlay state.
// Calls are serialized.
type EVMEngine struct {
	mu          sync.Mutex
	base        *backend
	chainConfig *params.ChainConfig
	coinbase    common.Address
	logger      *zap.Logger
}

func NewEVMEngine(cfg EngineConfig, source StateSource, logger *zap.Logger) (*EVMEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	chainConfig := cfg.ChainConfig
	if chainConfig == nil {
		chainConfig = params.AllDevChainProtocolChanges
	}
	base, err := newBackend(source, cfg.StateBlock, cfg.TempCacheSize)
	if err != nil {
		return nil, err
	}
	return &EVMEngine{
		base:        base,
		chainConfig: chainConfig,
		coinbase:    cfg.Coinbase,
		logger:      logger,
	}, nil
}

func (e *EVMEngine) InitAccount(addr common.Address, info AccountInfo, mocked bool, permanentStorage map[common.Hash]common.Hash) {
	e.mu.Lock()
	defer e.mu.Unlock()

	storage := make(map[common.Hash]common.Hash, len(permanentStorage))
	for k, v := range permanentStorage {
		storage[k] = v
	}
	var balance *uint256.Int
	if info.Balance != nil {
		balance = new(uint256.Int).Set(info.Balance)
	}
	e.base.permanent[addr] = &permanentAccount{
		info:    newAccountData(balance, info.Nonce, info.Code, true),
		mocked:  mocked,
		storage: storage,
	}
	e.logger.Debug("account initialized",
		zap.String("address", addr.Hex()),
		zap.Bool("mocked", mocked),
		zap.Int("code_size", len(info.Code)),
		zap.Int("permanent_slots", len(storage)),
	)
}

func (e *EVMEngine) ClearTempStorage() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.base.purge()
}

// SetStateBlock moves the state source to another block and drops cached reads.
func (e *EVMEngine) SetStateBlock(block uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.base.block == block {
		return
	}
	e.base.block = block
	e.base.purge()
}

func (e *EVMEngine) StateBlock() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.base.block
}

func (e *EVMEngine) Run(ctx context.Context, p Params) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	gasLimit := p.gasLimit()
	value := p.Value
	if value == nil {
		value = new(uint256.Int)
	}

	statedb := newOverlayState(ctx, e.base, p.Overrides)
	blockNumber := new(big.Int).SetUint64(p.BlockNumber)
	random := common.Hash{}
	blockCtx := vm.BlockContext{
		CanTransfer: core.CanTransfer,
		Transfer:    core.Transfer,
		GetHash:     func(n uint64) common.Hash { return common.Hash{} },
		Coinbase:    e.coinbase,
		BlockNumber: blockNumber,
		Time:        p.Timestamp,
		Difficulty:  new(big.Int),
		GasLimit:    gasLimit,
		BaseFee:     new(big.Int),
		BlobBaseFee: big.NewInt(1),
		Random:      &random,
	}
	evm := vm.NewEVM(blockCtx, statedb, e.chainConfig, vm.Config{})
	evm.SetTxContext(vm.TxContext{
		Origin:   p.Caller,
		GasPrice: new(big.Int),
	})
	stop := context.AfterFunc(ctx, evm.Cancel)
	defer stop()

	rules := e.chainConfig.Rules(blockNumber, true, p.Timestamp)
	to := p.To
	statedb.Prepare(rules, p.Caller, e.coinbase, &to, vm.ActivePrecompiles(rules), nil)

	intrinsic, err := core.IntrinsicGas(p.Data, nil, nil, false, rules.IsHomestead, rules.IsIstanbul, rules.IsShanghai)
	if err != nil {
		return nil, fmt.Errorf("intrinsic gas: %w", err)
	}
	if intrinsic > gasLimit {
		return nil, &simerr.ExecutionFailure{Data: "OutOfGas: intrinsic gas exceeds limit", GasUsed: gasLimit, HasGasUsed: true}
	}

	ret, leftover, callErr := evm.Call(p.Caller, p.To, p.Data, gasLimit-intrinsic, value)
	if statedb.err != nil {
		return nil, fmt.Errorf("read state: %w", statedb.err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gasUsed := gasLimit - leftover
	if callErr != nil {
		return nil, executionFailure(ret, gasUsed, callErr)
	}
	refund := statedb.GetRefund()
	if maxRefund := gasUsed / params.RefundQuotientEIP3529; refund > maxRefund {
		refund = maxRefund
	}
	gasUsed -= refund

	return &Result{
		Return:       ret,
		StateUpdates: statedb.updates(),
		GasUsed:      gasUsed,
	}, nil
}

func executionFailure(ret []byte, gasUsed uint64, err error) *simerr.ExecutionFailure {
	switch {
	case errors.Is(err, vm.ErrExecutionReverted):
		return &simerr.ExecutionFailure{Data: hexutil.Encode(ret), GasUsed: gasUsed, HasGasUsed: true}
	case errors.Is(err, vm.ErrOutOfGas), errors.Is(err, vm.ErrCodeStoreOutOfGas):
		return &simerr.ExecutionFailure{Data: "OutOfGas", GasUsed: gasUsed, HasGasUsed: true}
	default:
		return &simerr.ExecutionFailure{Data: err.Error(), GasUsed: gasUsed, HasGasUsed: true}
	}
}
