package runner

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"swapSim/internal/adapter"
	"swapSim/internal/dex"
	"swapSim/internal/model"
	"swapSim/internal/overwrite"
	"swapSim/internal/pool"
	"swapSim/internal/simulation"
)

var (
	tokenA = model.NewToken("A", "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", 18)
	tokenB = model.NewToken("B", "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", 18)
	tokenC = model.NewToken("C", "0xcccccccccccccccccccccccccccccccccccccccc", 18)
	tokens = model.NewTokenSet([]model.Token{tokenA, tokenB, tokenC})

	testBlock = model.EVMBlock{Number: 20_000_000, Timestamp: time.Unix(1_710_000_000, 0)}

	poolOne = "0x1111111111111111111111111111111111111111"
	poolTwo = "0x2222222222222222222222222222222222222222"
)

// 1000 tokens with 18 decimals.
const thousand = "0x3635c9adc5dea00000"

type fakeAdapter struct {
	failSell common.Address
}

func (f *fakeAdapter) GetCapabilities(context.Context, string, common.Address, common.Address) (model.Capabilities, error) {
	return model.NewCapabilities(model.SellOrder, model.PriceFunction), nil
}

func (f *fakeAdapter) Price(_ context.Context, _ string, _, _ common.Address, amounts []*big.Int, _ model.EVMBlock, _ overwrite.Map) ([]*big.Rat, error) {
	out := make([]*big.Rat, len(amounts))
	for i := range amounts {
		out[i] = big.NewRat(1, 1)
	}
	return out, nil
}

func (f *fakeAdapter) Swap(_ context.Context, _ string, sell, _ common.Address, _ bool, amount *big.Int, _ model.EVMBlock, _ overwrite.Map) (adapter.SwapResult, error) {
	if sell == f.failSell {
		return adapter.SwapResult{}, errors.New("boom")
	}
	return adapter.SwapResult{Trade: adapter.Trade{
		CalculatedAmount: new(big.Int).Set(amount),
		GasUsed:          big.NewInt(50_000),
		Price:            adapter.Fraction{Numerator: big.NewInt(1), Denominator: big.NewInt(1)},
	}}, nil
}

func (f *fakeAdapter) GetLimits(_ context.Context, _ string, sell, _ common.Address, _ model.EVMBlock, _ overwrite.Map) ([]*big.Int, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil)
	return []*big.Int{limit, limit}, nil
}

type nopEngine struct{}

func (nopEngine) InitAccount(common.Address, simulation.AccountInfo, bool, map[common.Hash]common.Hash) {}

func (nopEngine) Run(context.Context, simulation.Params) (*simulation.Result, error) {
	return nil, errors.New("not used")
}

func (nopEngine) ClearTempStorage() {}

type fakeDecoder struct {
	failSell common.Address
	mu       sync.Mutex
	decoded  []string
}

func (d *fakeDecoder) DecodePoolState(dctx dex.DecodeContext, snap model.ComponentSnapshot, set model.TokenSet, block model.EVMBlock) (*pool.State, error) {
	d.mu.Lock()
	d.decoded = append(d.decoded, snap.Component.ID)
	d.mu.Unlock()

	var poolTokens []model.Token
	for _, addr := range snap.Component.Tokens {
		t, err := set.Lookup(addr)
		if err != nil {
			return nil, err
		}
		poolTokens = append(poolTokens, t)
	}
	balances, err := dex.DecodeBalances(snap.State.Balances, poolTokens)
	if err != nil {
		return nil, err
	}
	return pool.New(dctx.Context, pool.Config{
		ID:       snap.Component.ID,
		Tokens:   poolTokens,
		Balances: balances,
		Block:    block,
		Exchange: dex.DecodeExchange(snap.Component.ProtocolSystem),
		Adapter:  &fakeAdapter{failSell: d.failSell},
	}, nopEngine{}, nil)
}

type memorySink struct {
	results      []model.SimulationResult
	failures     []model.SimulationFailure
	decodeErrors []model.DecodeError
	summaries    []model.PoolSummary
}

func (m *memorySink) PutResults(_ context.Context, r []model.SimulationResult) error {
	m.results = append(m.results, r...)
	return nil
}

func (m *memorySink) PutFailures(_ context.Context, f []model.SimulationFailure) error {
	m.failures = append(m.failures, f...)
	return nil
}

func (m *memorySink) PutDecodeErrors(_ context.Context, d []model.DecodeError) error {
	m.decodeErrors = append(m.decodeErrors, d...)
	return nil
}

func (m *memorySink) PutSummaries(_ context.Context, s []model.PoolSummary) error {
	m.summaries = append(m.summaries, s...)
	return nil
}

type fakeBalances struct {
	values map[common.Address]*big.Int
	owners []common.Address
}

func (f *fakeBalances) TokenBalance(_ context.Context, token, owner common.Address, _ uint64) (*big.Int, error) {
	f.owners = append(f.owners, owner)
	if v, ok := f.values[token]; ok {
		return v, nil
	}
	return new(big.Int), nil
}

func snapshot(id string, toks ...model.Token) model.ComponentSnapshot {
	snap := model.ComponentSnapshot{
		Component: model.ProtocolComponent{ID: id, ProtocolSystem: "vm:test"},
		State:     model.ProtocolState{ComponentID: id, Attributes: map[string]string{}, Balances: map[string]string{}},
	}
	for _, t := range toks {
		snap.Component.Tokens = append(snap.Component.Tokens, t.Address)
		snap.State.Balances[t.Address] = thousand
	}
	return snap
}

func testInput() Input {
	return Input{
		Block:  testBlock,
		Tokens: tokens,
		Snapshots: map[string]model.ComponentSnapshot{
			poolOne: snapshot(poolOne, tokenA, tokenB),
			poolTwo: snapshot(poolTwo, tokenA, tokenB, tokenC),
		},
	}
}

func TestRunSimulatesEveryPermutation(t *testing.T) {
	sink := &memorySink{}
	r := NewRunner(RunConfig{Concurrency: 2, SkipBalanceCheck: true}, &fakeDecoder{}, nil, nil, sink, nil)

	report, err := r.Run(context.Background(), testInput())
	require.NoError(t, err)
	require.NoError(t, report.Err())
	require.Len(t, report.Results, 2+6)
	require.Equal(t, report.Results, sink.results)

	first := report.Results[0]
	require.Equal(t, poolOne, first.PoolID)
	require.Equal(t, "test", first.Exchange)
	require.Equal(t, tokenA.Key(), first.SellToken)
	require.Equal(t, tokenB.Key(), first.BuyToken)
	require.Equal(t, "1.000000000000000000", first.SellAmount)
	require.Equal(t, "1.000000000000000000", first.BuyAmount)
	require.Equal(t, uint64(50_000), first.GasUsed)
	require.Equal(t, "ok", first.Outcome)

	require.Len(t, sink.summaries, 2)
	require.Equal(t, uint64(6), sink.summaries[1].Simulated)
	require.Equal(t, uint64(300_000), sink.summaries[1].TotalGas)
	require.Empty(t, sink.failures)
}

func TestRunCollectsFailuresPerPool(t *testing.T) {
	sink := &memorySink{}
	r := NewRunner(RunConfig{SkipBalanceCheck: true}, &fakeDecoder{failSell: tokenB.HexAddress()}, nil, nil, sink, nil)

	in := testInput()
	delete(in.Snapshots, poolTwo)
	report, err := r.Run(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, report.Failures[poolOne], 1)
	require.Equal(t, "Pool "+poolOne+" failed simulations: B -> A: boom", report.FailureMessage())
	require.ErrorContains(t, report.Err(), "failed simulations")
	require.Len(t, sink.failures, 1)
	require.Equal(t, uint64(1), sink.summaries[0].Failed)
	require.Equal(t, uint64(1), sink.summaries[0].Succeeded)
}

func TestRunValidatesExpectedComponents(t *testing.T) {
	decoder := &fakeDecoder{}
	r := NewRunner(RunConfig{
		SkipBalanceCheck: true,
		Expected:         []ExpectedComponent{{ID: "0x9999999999999999999999999999999999999999"}},
	}, decoder, nil, nil, nil, nil)
	_, err := r.Run(context.Background(), testInput())
	require.ErrorContains(t, err, "not found in protocol components")

	r = NewRunner(RunConfig{
		SkipBalanceCheck: true,
		Expected:         []ExpectedComponent{{ID: poolOne, Tokens: []string{tokenA.Address, tokenC.Address}}},
	}, decoder, nil, nil, nil, nil)
	_, err = r.Run(context.Background(), testInput())
	require.ErrorContains(t, err, "list mismatch for key 'tokens'")
	require.Empty(t, decoder.decoded)
}

func TestRunHonorsSkipSimulation(t *testing.T) {
	decoder := &fakeDecoder{}
	r := NewRunner(RunConfig{
		SkipBalanceCheck: true,
		Expected: []ExpectedComponent{
			{ID: "0x1111111111111111111111111111111111111111", Tokens: []string{"0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", tokenB.Address}},
			{ID: poolTwo, SkipSimulation: true},
		},
	}, decoder, nil, nil, nil, nil)

	report, err := r.Run(context.Background(), testInput())
	require.NoError(t, err)
	require.Equal(t, []string{poolOne}, decoder.decoded)
	require.Len(t, report.Results, 2)
}

func TestRunReportsMissingBalances(t *testing.T) {
	in := testInput()
	snap := in.Snapshots[poolOne]
	snap.State.Balances = nil
	in.Snapshots[poolOne] = snap

	r := NewRunner(RunConfig{SkipBalanceCheck: true}, &fakeDecoder{}, nil, nil, nil, nil)
	report, err := r.Run(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, report.DecodeErrors, 1)
	require.Equal(t, poolOne, report.DecodeErrors[0].PoolID)
	require.Contains(t, report.DecodeErrors[0].Error, "missing balances for pool")
	require.Error(t, report.Err())
}

func TestRunChecksBalances(t *testing.T) {
	onchain, ok := new(big.Int).SetString(thousand[2:], 16)
	require.True(t, ok)
	balances := &fakeBalances{values: map[common.Address]*big.Int{
		tokenA.HexAddress(): onchain,
		tokenB.HexAddress(): onchain,
		tokenC.HexAddress(): onchain,
	}}
	r := NewRunner(RunConfig{}, &fakeDecoder{}, nil, balances, nil, nil)
	_, err := r.Run(context.Background(), testInput())
	require.NoError(t, err)
	require.Contains(t, balances.owners, common.HexToAddress(poolOne))

	balances.values[tokenC.HexAddress()] = big.NewInt(1)
	_, err = r.Run(context.Background(), testInput())
	require.ErrorContains(t, err, "balance mismatch for "+poolTwo)
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	cfg := RunConfig{SkipBalanceCheck: true, CheckpointPath: path, CheckpointEnabled: true}

	report, err := NewRunner(cfg, &fakeDecoder{}, nil, nil, nil, nil).Run(context.Background(), testInput())
	require.NoError(t, err)
	require.Len(t, report.Results, 8)

	decoder := &fakeDecoder{}
	report, err = NewRunner(cfg, decoder, nil, nil, nil, nil).Run(context.Background(), testInput())
	require.NoError(t, err)
	require.Empty(t, report.Results)
	require.ElementsMatch(t, []string{poolOne, poolTwo}, report.Resumed)
	require.Empty(t, decoder.decoded)

	in := testInput()
	in.Block.Number++
	report, err = NewRunner(cfg, decoder, nil, nil, nil, nil).Run(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, report.Results, 8)
}
