package pool

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"swapSim/internal/model"
	"swapSim/internal/overwrite"
	"swapSim/internal/simerr"
	"swapSim/internal/simulation"
)

// OutcomeKind tags the result of GetAmountOut.
type OutcomeKind int

const (
	Ok OutcomeKind = iota
	// PartialFill means the sell amount exceeded the pool's limit and the trade was
	// simulated at the limit.
	PartialFill
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Ok:
		return "ok"
	case PartialFill:
		return "partial"
	default:
		return "failed"
	}
}

// Outcome of a simulated trade. Amount, Gas and State are set unless Kind is Failed.
// Limit is set for PartialFill. Err is set for PartialFill and Failed.
type Outcome struct {
	Kind   OutcomeKind
	Amount *big.Rat
	Gas    uint64
	State  *State
	Limit  *big.Rat
	Err    error
}

func failed(err error) Outcome {
	return Outcome{Kind: Failed, Err: err}
}

// limitCeiling funds limit queries. It is far above any real limit so the query
// never depends on the limit itself.
var limitCeiling = new(big.Int).Div(simulation.MaxBalance.ToBig(), big.NewInt(100))

var onePercent = big.NewRat(1, 100)

// GetAmountOut simulates selling sellAmount of sell for buy. The receiver is not
// modified; the post-trade state is returned in the outcome.
func (s *State) GetAmountOut(ctx context.Context, sell model.Token, sellAmount *big.Rat, buy model.Token) Outcome {
	if err := s.lineage.enter(); err != nil {
		return failed(err)
	}
	defer s.lineage.exit()

	if sellAmount == nil || sellAmount.Sign() < 0 {
		return failed(fmt.Errorf("pool %s: sell amount must be non-negative", s.id))
	}

	if s.capabilities.Has(model.HardLimits) {
		limit, err := s.sellAmountLimit(ctx, sell, buy)
		if err != nil {
			return failed(err)
		}
		if sellAmount.Cmp(limit) > 0 {
			amount, gas, next, err := s.amountOut(ctx, sell, limit, buy)
			if err != nil {
				return failed(err)
			}
			return Outcome{
				Kind:   PartialFill,
				Amount: amount,
				Gas:    gas,
				State:  next,
				Limit:  limit,
				Err:    &simerr.SellLimitError{PoolID: s.id, Limit: sell.FormatAmount(limit)},
			}
		}
	}

	amount, gas, next, err := s.amountOut(ctx, sell, sellAmount, buy)
	if err != nil {
		return failed(err)
	}
	return Outcome{Kind: Ok, Amount: amount, Gas: gas, State: next}
}

func (s *State) amountOut(ctx context.Context, sell model.Token, sellAmount *big.Rat, buy model.Token) (*big.Rat, uint64, *State, error) {
	overrides, err := s.overwrites(ctx, sell, buy, nil)
	if err != nil {
		return nil, 0, nil, err
	}
	res, err := s.adapter.Swap(ctx, s.id, sell.HexAddress(), buy.HexAddress(), false, sell.ToOnchainAmount(sellAmount), s.block, overrides)
	if err != nil {
		return nil, 0, nil, err
	}

	next := s.duplicate()
	next.lasting = overwrite.Merge(next.lasting, simulation.StorageOverwrites(res.StateUpdates))

	if price, err := res.Trade.Price.Rat(); err == nil && price.Sign() != 0 {
		// Stored in human units like the spot prices from setSpotPrices; only the traded pair is replaced.
		price = s.scalePrice(price, sell, buy)
		next.spotPrices[pairOf(sell, buy)] = price
		next.spotPrices[pairOf(buy, sell)] = new(big.Rat).Inv(price)
	}

	gas := res.EngineGas
	if res.Trade.GasUsed != nil && res.Trade.GasUsed.IsUint64() {
		gas = res.Trade.GasUsed.Uint64()
	}
	return buy.FromOnchainAmount(res.Trade.CalculatedAmount), gas, next, nil
}

// GetSellAmountLimit returns the largest amount of sell the pool accepts for buy.
func (s *State) GetSellAmountLimit(ctx context.Context, sell, buy model.Token) (*big.Rat, error) {
	if err := s.lineage.enter(); err != nil {
		return nil, err
	}
	defer s.lineage.exit()
	return s.sellAmountLimit(ctx, sell, buy)
}

func (s *State) sellAmountLimit(ctx context.Context, sell, buy model.Token) (*big.Rat, error) {
	overrides, err := s.overwrites(ctx, sell, buy, limitCeiling)
	if err != nil {
		return nil, err
	}
	limits, err := s.adapter.GetLimits(ctx, s.id, sell.HexAddress(), buy.HexAddress(), s.block, overrides)
	if err != nil {
		return nil, err
	}
	if len(limits) == 0 || limits[0] == nil {
		return nil, fmt.Errorf("pool %s: adapter returned no limits for %s -> %s", s.id, sell, buy)
	}
	return sell.FromOnchainAmount(limits[0]), nil
}

// ClearAllCache resets per-block state: the engine's fetched storage, the lasting
// overwrites and the spot prices.
func (s *State) ClearAllCache(ctx context.Context) error {
	if err := s.lineage.enter(); err != nil {
		return err
	}
	defer s.lineage.exit()
	return s.clearAllCache(ctx)
}

func (s *State) clearAllCache(ctx context.Context) error {
	s.engine.ClearTempStorage()
	s.lasting = overwrite.Map{}
	return s.setSpotPrices(ctx)
}

// Update moves the state to a new block with the given balances, which replace the
// tracked ones per token, and clears every cache. Engines that support it are moved
// to read chain state at the new block.
func (s *State) Update(ctx context.Context, balances map[string]*big.Rat, block model.EVMBlock) error {
	if err := s.lineage.enter(); err != nil {
		return err
	}
	defer s.lineage.exit()

	next := make(map[string]*big.Rat, len(s.balances))
	for k, v := range s.balances {
		next[k] = v
	}
	for addr, amount := range balances {
		if amount.Sign() < 0 {
			return fmt.Errorf("pool %s: negative balance for token %s", s.id, addr)
		}
		next[model.NormalizeAddress(addr)] = amount
	}
	s.balances = next
	s.block = block
	if e, ok := s.engine.(stateBlockSetter); ok {
		e.SetStateBlock(block.Number)
	}
	return s.clearAllCache(ctx)
}

func (s *State) setSpotPrices(ctx context.Context) error {
	if err := s.ensureCapability(model.PriceFunction); err != nil {
		return err
	}
	prices := make(map[Pair]*big.Rat)
	for _, pair := range Permutations(s.tokens) {
		limit, err := s.sellAmountLimit(ctx, pair.Sell, pair.Buy)
		if err != nil {
			return fmt.Errorf("spot price %s -> %s: %w", pair.Sell, pair.Buy, err)
		}
		amount := pair.Sell.ToOnchainAmount(new(big.Rat).Mul(limit, onePercent))
		quoted, err := s.adapter.Price(ctx, s.id, pair.Sell.HexAddress(), pair.Buy.HexAddress(), []*big.Int{amount}, s.block, s.lasting)
		if err != nil {
			return fmt.Errorf("spot price %s -> %s: %w", pair.Sell, pair.Buy, err)
		}
		if len(quoted) == 0 {
			return fmt.Errorf("spot price %s -> %s: adapter returned no price", pair.Sell, pair.Buy)
		}
		prices[pairOf(pair.Sell, pair.Buy)] = s.scalePrice(quoted[0], pair.Sell, pair.Buy)
	}
	s.spotPrices = prices
	s.logger.Debug("spot prices updated", zap.Int("pairs", len(prices)))
	return nil
}

// scalePrice converts an adapter price to human units of buy per sell, floored to
// the buy token's decimals, unless the adapter already scales its prices.
func (s *State) scalePrice(price *big.Rat, sell, buy model.Token) *big.Rat {
	if s.capabilities.Has(model.ScaledPrice) {
		return price
	}
	return buy.FromOnchainFraction(new(big.Rat).Mul(price, new(big.Rat).SetInt(pow10(sell.Decimals))))
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// overwrites merges the lasting overwrites with the token overwrites for a trade.
// A nil maxAmount funds the trade up to the pool's sell limit.
func (s *State) overwrites(ctx context.Context, sell, buy model.Token, maxAmount *big.Int) (overwrite.Map, error) {
	tokenOverwrites, err := s.tokenOverwrites(ctx, sell, buy, maxAmount)
	if err != nil {
		return nil, err
	}
	return overwrite.Merge(s.lasting, tokenOverwrites), nil
}

// tokenOverwrites funds the external account with sell tokens and approves the
// adapter to spend them. Unless the adapter ignores token balances, the pool's own
// balances are overwritten to match the tracked ones.
func (s *State) tokenOverwrites(ctx context.Context, sell, buy model.Token, maxAmount *big.Int) (overwrite.Map, error) {
	var out overwrite.Map
	if !s.capabilities.Has(model.TokenBalanceIndependent) {
		out = s.balanceOverwrites()
	}

	if maxAmount == nil {
		limit, err := s.sellAmountLimit(ctx, sell, buy)
		if err != nil {
			return nil, err
		}
		maxAmount = sell.ToOnchainAmount(limit)
	}
	factory := overwrite.NewERC20Factory(sell.HexAddress())
	factory.SetBalance(maxAmount, simulation.ExternalAccount)
	factory.SetAllowance(maxAmount, simulation.ExternalAccount, simulation.AdapterAddress)
	s.logger.Debug("token overwrites",
		zap.String("token", sell.Key()),
		zap.String("owner", simulation.ExternalAccount.Hex()),
		zap.String("spender", simulation.AdapterAddress.Hex()),
		zap.String("amount", maxAmount.String()),
	)
	return overwrite.Merge(out, factory.Collect()), nil
}

func (s *State) balanceOverwrites() overwrite.Map {
	owner := s.balanceOwnerAddress()
	out := overwrite.Map{}
	for _, t := range s.tokens {
		factory := overwrite.NewERC20Factory(t.HexAddress())
		factory.SetBalance(t.ToOnchainAmount(s.balances[t.Key()]), owner)
		out = overwrite.Merge(out, factory.Collect())
	}
	return out
}
