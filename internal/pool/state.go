package pool

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swapSim/internal/adapter"
	"swapSim/internal/model"
	"swapSim/internal/overwrite"
	"swapSim/internal/simerr"
	"swapSim/internal/simulation"
)

// Adapter is the subset of the adapter contract a pool simulates through.
type Adapter interface {
	CapabilitySource
	Price(ctx context.Context, poolID string, sell, buy common.Address, amounts []*big.Int, block model.EVMBlock, overrides overwrite.Map) ([]*big.Rat, error)
	Swap(ctx context.Context, poolID string, sell, buy common.Address, isBuy bool, amount *big.Int, block model.EVMBlock, overrides overwrite.Map) (adapter.SwapResult, error)
	GetLimits(ctx context.Context, poolID string, sell, buy common.Address, block model.EVMBlock, overrides overwrite.Map) ([]*big.Int, error)
}

// stateBlockSetter is implemented by engines that read chain state at a movable
// block, such as *simulation.EVMEngine.
type stateBlockSetter interface {
	SetStateBlock(block uint64)
}

// Pair keys a spot price by canonical token addresses.
type Pair struct {
	Sell string
	Buy  string
}

func pairOf(sell, buy model.Token) Pair {
	return Pair{Sell: sell.Key(), Buy: buy.Key()}
}

// Config describes a pool as decoded from a snapshot.
type Config struct {
	ID       string
	Tokens   []model.Token
	Balances map[string]*big.Rat
	Block    model.EVMBlock
	Exchange string
	// BalanceOwner holds the pool's funds when it is not the pool contract itself.
	BalanceOwner       string
	TradingFee         *big.Rat
	MinimumGas         uint64
	StatelessContracts map[common.Address][]byte
	// Capabilities skips negotiation when non-zero.
	Capabilities model.Capabilities
	// SpotPrices skips the initial price queries when non-empty.
	SpotPrices map[Pair]*big.Rat
	// Adapter defaults to the adapter contract installed in the engine.
	Adapter Adapter
}

// State is a pool's simulatable state at one block. Simulations never modify a
// State; they return a new one sharing the same engine.
//
// States derived from one another share their engine and must not be used from
// several goroutines at once. Such use is reported as ErrConcurrentAccess.
type State struct {
	id                 string
	tokens             []model.Token
	balances           map[string]*big.Rat
	block              model.EVMBlock
	exchange           string
	balanceOwner       string
	tradingFee         *big.Rat
	minimumGas         uint64
	statelessContracts map[common.Address][]byte
	capabilities       model.Capabilities
	spotPrices         map[Pair]*big.Rat
	lasting            overwrite.Map

	engine  simulation.Engine
	adapter Adapter
	lineage *lineage
	logger  *zap.Logger
}

// New builds a ready state: capabilities are negotiated and spot prices computed
// unless cfg supplies them.
func New(ctx context.Context, cfg Config, engine simulation.Engine, logger *zap.Logger) (*State, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Tokens) == 0 {
		return nil, fmt.Errorf("pool %s has no tokens", cfg.ID)
	}
	balances := make(map[string]*big.Rat, len(cfg.Balances))
	for addr, amount := range cfg.Balances {
		balances[model.NormalizeAddress(addr)] = amount
	}
	for _, t := range cfg.Tokens {
		amount, ok := balances[t.Key()]
		if !ok {
			return nil, fmt.Errorf("pool %s: missing balance for token %s", cfg.ID, t)
		}
		if amount.Sign() < 0 {
			return nil, fmt.Errorf("pool %s: negative balance for token %s", cfg.ID, t)
		}
	}

	pa := cfg.Adapter
	if pa == nil {
		pa = adapter.NewContract(engine, logger)
	}
	tradingFee := cfg.TradingFee
	if tradingFee == nil {
		tradingFee = new(big.Rat)
	}
	s := &State{
		id:                 cfg.ID,
		tokens:             append([]model.Token(nil), cfg.Tokens...),
		balances:           balances,
		block:              cfg.Block,
		exchange:           cfg.Exchange,
		balanceOwner:       cfg.BalanceOwner,
		tradingFee:         tradingFee,
		minimumGas:         cfg.MinimumGas,
		statelessContracts: cfg.StatelessContracts,
		capabilities:       cfg.Capabilities,
		spotPrices:         make(map[Pair]*big.Rat, len(cfg.SpotPrices)),
		lasting:            overwrite.Map{},
		engine:             engine,
		adapter:            pa,
		lineage:            &lineage{},
		logger:             logger.With(zap.String("pool_id", cfg.ID)),
	}
	for k, v := range cfg.SpotPrices {
		s.spotPrices[k] = v
	}

	if s.capabilities == 0 {
		caps, err := NegotiateCapabilities(ctx, pa, s.id, s.tokens, s.logger)
		if err != nil {
			return nil, err
		}
		s.capabilities = caps
	}
	if len(s.spotPrices) == 0 {
		if err := s.setSpotPrices(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *State) ID() string                       { return s.id }
func (s *State) Exchange() string                 { return s.exchange }
func (s *State) Block() model.EVMBlock            { return s.block }
func (s *State) Capabilities() model.Capabilities { return s.capabilities }
func (s *State) TradingFee() *big.Rat             { return new(big.Rat).Set(s.tradingFee) }
func (s *State) MinimumGas() uint64               { return s.minimumGas }
func (s *State) BalanceOwner() string             { return s.balanceOwner }

func (s *State) Tokens() []model.Token {
	return append([]model.Token(nil), s.tokens...)
}

// Balance returns the tracked balance of a token.
func (s *State) Balance(t model.Token) (*big.Rat, bool) {
	b, ok := s.balances[t.Key()]
	if !ok {
		return nil, false
	}
	return new(big.Rat).Set(b), true
}

// SpotPrice returns the last computed price of sell in units of buy.
func (s *State) SpotPrice(sell, buy model.Token) (*big.Rat, bool) {
	p, ok := s.spotPrices[pairOf(sell, buy)]
	if !ok {
		return nil, false
	}
	return new(big.Rat).Set(p), true
}

// LastingOverwrites returns a copy of the storage carried over between trades.
func (s *State) LastingOverwrites() overwrite.Map {
	return s.lasting.Clone()
}

func (s *State) ensureCapability(c model.Capability) error {
	if !s.capabilities.Has(c) {
		return &simerr.CapabilityError{PoolID: s.id, Capability: c.String()}
	}
	return nil
}

func (s *State) balanceOwnerAddress() common.Address {
	if s.balanceOwner != "" {
		return common.HexToAddress(s.balanceOwner)
	}
	return common.HexToAddress(s.id)
}

// duplicate copies s for a trade: same engine and lineage, own overwrites.
func (s *State) duplicate() *State {
	cp := *s
	cp.balances = make(map[string]*big.Rat, len(s.balances))
	for k, v := range s.balances {
		cp.balances[k] = v
	}
	cp.spotPrices = make(map[Pair]*big.Rat, len(s.spotPrices))
	for k, v := range s.spotPrices {
		cp.spotPrices[k] = v
	}
	cp.lasting = s.lasting.Clone()
	return &cp
}

// Fork returns an independent copy with the same balances and spot prices and no
// lasting overwrites. It shares the engine and so the same concurrency lineage.
func (s *State) Fork() *State {
	cp := s.duplicate()
	cp.lasting = overwrite.Map{}
	return cp
}

// ForkWithEngine is Fork on another engine. The copy can be used concurrently with s.
func (s *State) ForkWithEngine(engine simulation.Engine) *State {
	cp := s.Fork()
	cp.engine = engine
	cp.adapter = adapter.NewContract(engine, s.logger)
	cp.lineage = &lineage{}
	return cp
}
