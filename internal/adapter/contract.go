package adapter

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swapSim/internal/model"
	"swapSim/internal/overwrite"
	"swapSim/internal/simerr"
	"swapSim/internal/simulation"
)

// capabilityBlock is the block capability and gas queries run at; they must not
// depend on chain state.
const capabilityBlock = 1

// ErrZeroDenominator is returned for a price fraction the adapter reported with a zero denominator.
var ErrZeroDenominator = errors.New("fraction with zero denominator")

// Fraction is an adapter price.
type Fraction struct {
	Numerator   *big.Int
	Denominator *big.Int
}

// Rat converts f to a rational.
func (f Fraction) Rat() (*big.Rat, error) {
	if f.Denominator == nil || f.Denominator.Sign() == 0 {
		return nil, ErrZeroDenominator
	}
	return new(big.Rat).SetFrac(f.Numerator, f.Denominator), nil
}

// Trade is the adapter's swap result.
type Trade struct {
	CalculatedAmount *big.Int
	GasUsed          *big.Int
	Price            Fraction
}

// SwapResult pairs the trade with the storage it changed.
type SwapResult struct {
	Trade        Trade
	StateUpdates map[common.Address]simulation.StateUpdate
	// EngineGas is the gas the engine measured for the whole call.
	EngineGas uint64
}

// Contract calls the protocol adapter installed in an engine.
type Contract struct {
	address  common.Address
	engine   simulation.Engine
	gasLimit uint64
	logger   *zap.Logger
	now      func() time.Time
}

func NewContract(engine simulation.Engine, logger *zap.Logger) *Contract {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Contract{
		address:  simulation.AdapterAddress,
		engine:   engine,
		gasLimit: simulation.DefaultGasLimit,
		logger:   logger,
		now:      time.Now,
	}
}

func (c *Contract) Address() common.Address {
	return c.address
}

func (c *Contract) GasLimit() uint64 {
	return c.gasLimit
}

// PairID encodes a pool id as bytes32. Hex ids are decoded and left-aligned; other
// ids are used as raw bytes.
func PairID(poolID string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(poolID, "0x"), "0X"))
	if err != nil {
		raw = []byte(poolID)
	}
	if len(raw) > len(out) {
		return out, fmt.Errorf("pool id %q longer than 32 bytes", poolID)
	}
	copy(out[:], raw)
	return out, nil
}

// Price returns the adapter price for each of amounts.
func (c *Contract) Price(ctx context.Context, poolID string, sell, buy common.Address, amounts []*big.Int, block model.EVMBlock, overrides overwrite.Map) ([]*big.Rat, error) {
	pair, err := PairID(poolID)
	if err != nil {
		return nil, err
	}
	values, _, err := c.call(ctx, poolID, "price", block.Number, block.Unix(), overrides, pair, sell, buy, amounts)
	if err != nil {
		return nil, err
	}
	fractions := *abi.ConvertType(values[0], new([]Fraction)).(*[]Fraction)
	prices := make([]*big.Rat, 0, len(fractions))
	for _, f := range fractions {
		price, err := f.Rat()
		if err != nil {
			return nil, fmt.Errorf("price for pool %s: %w", poolID, err)
		}
		prices = append(prices, price)
	}
	return prices, nil
}

// Swap sells (or buys, when isBuy) amount of sell for buy.
func (c *Contract) Swap(ctx context.Context, poolID string, sell, buy common.Address, isBuy bool, amount *big.Int, block model.EVMBlock, overrides overwrite.Map) (SwapResult, error) {
	pair, err := PairID(poolID)
	if err != nil {
		return SwapResult{}, err
	}
	side := uint8(0)
	if isBuy {
		side = 1
	}
	values, res, err := c.call(ctx, poolID, "swap", block.Number, block.Unix(), overrides, pair, sell, buy, side, amount)
	if err != nil {
		return SwapResult{}, err
	}
	trade := *abi.ConvertType(values[0], new(Trade)).(*Trade)
	return SwapResult{Trade: trade, StateUpdates: res.StateUpdates, EngineGas: res.GasUsed}, nil
}

// GetLimits returns the adapter limits for a pair; index 0 is the sell limit.
func (c *Contract) GetLimits(ctx context.Context, poolID string, sell, buy common.Address, block model.EVMBlock, overrides overwrite.Map) ([]*big.Int, error) {
	pair, err := PairID(poolID)
	if err != nil {
		return nil, err
	}
	values, _, err := c.call(ctx, poolID, "getLimits", block.Number, block.Unix(), overrides, pair, sell, buy)
	if err != nil {
		return nil, err
	}
	limits, ok := values[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getLimits: unexpected output %T", values[0])
	}
	return limits, nil
}

// GetCapabilities returns the capabilities the adapter reports for a pair.
func (c *Contract) GetCapabilities(ctx context.Context, poolID string, sell, buy common.Address) (model.Capabilities, error) {
	pair, err := PairID(poolID)
	if err != nil {
		return 0, err
	}
	values, _, err := c.call(ctx, poolID, "getCapabilities", capabilityBlock, uint64(c.now().Unix()), nil, pair, sell, buy)
	if err != nil {
		return 0, err
	}
	raw, ok := values[0].([]uint8)
	if !ok {
		return 0, fmt.Errorf("getCapabilities: unexpected output %T", values[0])
	}
	caps := make([]model.Capability, 0, len(raw))
	for _, v := range raw {
		caps = append(caps, model.Capability(v))
	}
	return model.NewCapabilities(caps...), nil
}

// MinGasUsage returns the adapter's lower bound on swap gas.
func (c *Contract) MinGasUsage(ctx context.Context) (uint64, error) {
	values, _, err := c.call(ctx, "", "minGasUsage", capabilityBlock, uint64(c.now().Unix()), nil)
	if err != nil {
		return 0, err
	}
	gas, ok := values[0].(*big.Int)
	if !ok || !gas.IsUint64() {
		return 0, fmt.Errorf("minGasUsage: unexpected output %v", values[0])
	}
	return gas.Uint64(), nil
}

func (c *Contract) call(ctx context.Context, poolID, method string, blockNumber, timestamp uint64, overrides overwrite.Map, args ...interface{}) ([]interface{}, *simulation.Result, error) {
	adapterABI, err := SwapAdapterABI()
	if err != nil {
		return nil, nil, fmt.Errorf("parse adapter abi: %w", err)
	}
	data, err := adapterABI.Pack(method, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("pack %s: %w", method, err)
	}

	res, err := c.engine.Run(ctx, simulation.Params{
		Caller:      simulation.ExternalAccount,
		To:          c.address,
		Data:        data,
		GasLimit:    c.gasLimit,
		BlockNumber: blockNumber,
		Timestamp:   timestamp,
		Overrides:   overrides,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", method, simerr.Coerce(err, poolID, c.gasLimit))
	}

	values, err := adapterABI.Unpack(method, res.Return)
	if err != nil || len(values) == 0 {
		c.logger.Warn("failed to decode adapter output",
			zap.String("method", method),
			zap.String("pool_id", poolID),
			zap.Int("output_size", len(res.Return)),
			zap.Error(err),
		)
		if err == nil {
			err = errors.New("empty output")
		}
		return nil, nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, res, nil
}
