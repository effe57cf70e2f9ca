package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"swapSim/internal/adapter"
	"swapSim/internal/model"
	"swapSim/internal/pool"
	"swapSim/internal/simerr"
	"swapSim/internal/simulation"
)

const (
	attrPoolID          = "pool_id"
	attrBalanceOwner    = "balance_owner"
	attrStatelessAddr   = "stateless_contract_addr_"
	attrStatelessCode   = "stateless_contract_code_"
	callDirectivePrefix = "call"
)

// ChainReader is the chain access a decoder needs. *chain.Client implements it.
type ChainReader interface {
	ContractCaller
	CodeAt(ctx context.Context, addr common.Address, block uint64) ([]byte, error)
}

// EngineFactory builds a simulation engine with the given accounts installed.
type EngineFactory func(accounts simulation.PoolAccounts) (simulation.Engine, error)

// DecodeContext provides shared dependencies for decoding.
type DecodeContext struct {
	Context context.Context
	Chain   ChainReader
	Logger  *zap.Logger
}

// DecoderConfig holds what every decoded pool shares.
type DecoderConfig struct {
	AdapterCode []byte
	TokenCode   []byte
	// MinimumGas of zero asks the adapter's minGasUsage.
	MinimumGas  uint64
	TradingFee  *big.Rat
	// NewEngine defaults to an EVMEngine reading state through Chain.
	NewEngine EngineFactory
}

// SnapshotDecoder turns component snapshots into simulatable pool states.
type SnapshotDecoder struct {
	cfg DecoderConfig
}

func NewSnapshotDecoder(cfg DecoderConfig) (*SnapshotDecoder, error) {
	if len(cfg.AdapterCode) == 0 {
		return nil, fmt.Errorf("adapter code is empty")
	}
	if cfg.TradingFee == nil {
		cfg.TradingFee = new(big.Rat)
	}
	return &SnapshotDecoder{cfg: cfg}, nil
}

// DecodeSnapshot decodes every component. Components that fail are logged,
// reported and left out of the result.
func (d *SnapshotDecoder) DecodeSnapshot(dctx DecodeContext, snapshots map[string]model.ComponentSnapshot, tokens model.TokenSet, block model.EVMBlock) (map[string]*pool.State, []model.DecodeError) {
	logger := dctx.logger()
	ids := make([]string, 0, len(snapshots))
	for id := range snapshots {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	pools := make(map[string]*pool.State, len(snapshots))
	var failed []model.DecodeError
	for _, id := range ids {
		snap := snapshots[id]
		state, err := d.DecodePoolState(dctx, snap, tokens, block)
		if err != nil {
			logger.Error("decode snapshot failed", zap.String("component_id", snap.Component.ID), zap.Error(err))
			failed = append(failed, model.DecodeError{
				BlockNumber: block.Number,
				PoolID:      snap.Component.ID,
				Error:       err.Error(),
			})
			continue
		}
		pools[state.ID()] = state
	}
	return pools, failed
}

// DecodePoolState builds a pool from one snapshot. Errors are *simerr.DecodeError.
func (d *SnapshotDecoder) DecodePoolState(dctx DecodeContext, snap model.ComponentSnapshot, tokens model.TokenSet, block model.EVMBlock) (*pool.State, error) {
	ctx := dctx.context()
	component := snap.Component
	fail := func(msg string, err error) error {
		return &simerr.DecodeError{PoolID: component.ID, Msg: msg, Err: err}
	}

	poolTokens := make([]model.Token, 0, len(component.Tokens))
	for _, addr := range component.Tokens {
		t, err := tokens.Lookup(addr)
		if err != nil {
			return nil, fail("unsupported token", err)
		}
		poolTokens = append(poolTokens, t)
	}

	balances, err := DecodeBalances(snap.State.Balances, poolTokens)
	if err != nil {
		return nil, fail("balances", err)
	}

	poolID := component.ID
	if v := component.StaticAttributes[attrPoolID]; v != "" {
		poolID = v
	}

	tokenAddrs := make([]common.Address, 0, len(poolTokens))
	for _, t := range poolTokens {
		tokenAddrs = append(tokenAddrs, t.HexAddress())
	}
	engine, err := d.newEngine(dctx, simulation.PoolAccounts{
		Tokens:      tokenAddrs,
		TokenCode:   d.cfg.TokenCode,
		AdapterCode: d.cfg.AdapterCode,
	}, block)
	if err != nil {
		return nil, fail("engine", err)
	}

	stateless, err := d.statelessContracts(dctx, engine, snap, block)
	if err != nil {
		return nil, fail("stateless contracts", err)
	}
	for addr, code := range stateless {
		if len(code) > 0 {
			engine.InitAccount(addr, simulation.AccountInfo{Code: code}, false, nil)
		}
	}

	minimumGas := d.cfg.MinimumGas
	if minimumGas == 0 {
		gas, err := adapter.NewContract(engine, dctx.logger()).MinGasUsage(ctx)
		if err != nil {
			return nil, fail("minimum gas", err)
		}
		minimumGas = gas
	}

	state, err := pool.New(ctx, pool.Config{
		ID:                 poolID,
		Tokens:             poolTokens,
		Balances:           balances,
		Block:              block,
		Exchange:           DecodeExchange(component.ProtocolSystem),
		BalanceOwner:       snap.State.Attributes[attrBalanceOwner],
		TradingFee:         d.cfg.TradingFee,
		MinimumGas:         minimumGas,
		StatelessContracts: stateless,
	}, engine, dctx.logger())
	if err != nil {
		return nil, fail("pool state", err)
	}
	return state, nil
}

// ApplyUpdate moves a pool to a new block with the given hex balances.
func (d *SnapshotDecoder) ApplyUpdate(ctx context.Context, state *pool.State, balanceUpdates map[string]string, block model.EVMBlock) error {
	balances, err := DecodeBalances(balanceUpdates, state.Tokens())
	if err != nil {
		return &simerr.DecodeError{PoolID: state.ID(), Msg: "balance update", Err: err}
	}
	return state.Update(ctx, balances, block)
}

func (d *SnapshotDecoder) newEngine(dctx DecodeContext, accounts simulation.PoolAccounts, block model.EVMBlock) (simulation.Engine, error) {
	if d.cfg.NewEngine != nil {
		return d.cfg.NewEngine(accounts)
	}
	var source simulation.StateSource = simulation.EmptySource{}
	if src, ok := dctx.Chain.(simulation.StateSource); ok && src != nil {
		source = src
	}
	return simulation.NewPoolEngine(simulation.EngineConfig{StateBlock: block.Number}, source, accounts, dctx.logger())
}

// statelessContracts collects stateless_contract_addr_{i} entries, static attributes
// first. Missing code is fetched from the chain.
func (d *SnapshotDecoder) statelessContracts(dctx DecodeContext, engine simulation.Engine, snap model.ComponentSnapshot, block model.EVMBlock) (map[common.Address][]byte, error) {
	out := make(map[common.Address][]byte)
	static := snap.Component.StaticAttributes
	for i := 0; ; i++ {
		encoded, ok := static[fmt.Sprintf("%s%d", attrStatelessAddr, i)]
		if !ok {
			break
		}
		decoded, err := decodeHexString(encoded)
		if err != nil {
			return nil, fmt.Errorf("stateless contract %d: %w", i, err)
		}
		var addr common.Address
		if strings.HasPrefix(decoded, callDirectivePrefix) {
			addr, err = resolveCallDirective(dctx.context(), engine, decoded, block)
			if err != nil {
				return nil, fmt.Errorf("stateless contract %d: %w", i, err)
			}
		} else {
			if !common.IsHexAddress(decoded) {
				return nil, fmt.Errorf("stateless contract %d: invalid address %q", i, decoded)
			}
			addr = common.HexToAddress(decoded)
		}
		code, err := d.contractCode(dctx, addr, static[fmt.Sprintf("%s%d", attrStatelessCode, i)], block)
		if err != nil {
			return nil, err
		}
		out[addr] = code
	}

	attrs := snap.State.Attributes
	for i := 0; ; i++ {
		raw, ok := attrs[fmt.Sprintf("%s%d", attrStatelessAddr, i)]
		if !ok {
			break
		}
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("stateless contract %d: invalid address %q", i, raw)
		}
		addr := common.HexToAddress(raw)
		code, err := d.contractCode(dctx, addr, attrs[fmt.Sprintf("%s%d", attrStatelessCode, i)], block)
		if err != nil {
			return nil, err
		}
		out[addr] = code
	}
	return out, nil
}

func (d *SnapshotDecoder) contractCode(dctx DecodeContext, addr common.Address, encoded string, block model.EVMBlock) ([]byte, error) {
	if encoded != "" {
		code, err := hexutil.Decode(with0x(encoded))
		if err != nil {
			return nil, fmt.Errorf("code for %s: %w", addr.Hex(), err)
		}
		return code, nil
	}
	if dctx.Chain == nil {
		return nil, fmt.Errorf("code for %s: no chain client", addr.Hex())
	}
	code, err := dctx.Chain.CodeAt(dctx.context(), addr, block.Number)
	if err != nil {
		return nil, fmt.Errorf("code for %s: %w", addr.Hex(), err)
	}
	return code, nil
}

// resolveCallDirective simulates "call:<address>:<signature>" and decodes the
// returned address.
func resolveCallDirective(ctx context.Context, engine simulation.Engine, directive string, block model.EVMBlock) (common.Address, error) {
	parts := strings.Split(directive, ":")
	if len(parts) != 3 || !common.IsHexAddress(parts[1]) || parts[2] == "" {
		return common.Address{}, fmt.Errorf("malformed call directive %q", directive)
	}
	selector := crypto.Keccak256([]byte(parts[2]))[:4]
	res, err := engine.Run(ctx, simulation.Params{
		Caller:      simulation.ExternalAccount,
		To:          common.HexToAddress(parts[1]),
		Data:        selector,
		BlockNumber: block.Number,
		Timestamp:   uint64(time.Now().Unix()),
	})
	if err != nil {
		return common.Address{}, fmt.Errorf("resolve %q: %w", directive, err)
	}
	parsed, err := addressOutputInstance()
	if err != nil {
		return common.Address{}, err
	}
	values, err := parsed.Unpack("get", res.Return)
	if err != nil {
		return common.Address{}, fmt.Errorf("resolve %q: unpack: %w", directive, err)
	}
	if len(values) == 0 {
		return common.Address{}, fmt.Errorf("resolve %q: empty output", directive)
	}
	return asAddress(values[0])
}

// DecodeBalances converts big-endian hex on-chain balances to human amounts. Every
// key must be one of the tokens.
func DecodeBalances(raw map[string]string, tokens []model.Token) (map[string]*big.Rat, error) {
	set := model.NewTokenSet(tokens)
	out := make(map[string]*big.Rat, len(raw))
	for addr, encoded := range raw {
		t, err := set.Lookup(addr)
		if err != nil {
			return nil, err
		}
		amount, err := parseHexAmount(encoded)
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", addr, err)
		}
		out[t.Key()] = t.FromOnchainAmount(amount)
	}
	return out, nil
}

// DecodeExchange strips the "vm:" marker from a protocol system name.
func DecodeExchange(protocolSystem string) string {
	if i := strings.Index(protocolSystem, "vm:"); i >= 0 {
		return protocolSystem[i+len("vm:"):]
	}
	return protocolSystem
}

func parseHexAmount(encoded string) (*big.Int, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(encoded), "0x"), "0X")
	if digits == "" {
		return new(big.Int), nil
	}
	amount, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, &simerr.ConversionError{Input: encoded}
	}
	return amount, nil
}

func decodeHexString(encoded string) (string, error) {
	raw, err := hexutil.Decode(with0x(encoded))
	if err != nil {
		if errors.Is(err, hexutil.ErrEmptyString) {
			return "", fmt.Errorf("empty attribute")
		}
		return "", err
	}
	return string(raw), nil
}

func with0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}

func (c DecodeContext) context() context.Context {
	if c.Context == nil {
		return context.Background()
	}
	return c.Context
}

func (c DecodeContext) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
