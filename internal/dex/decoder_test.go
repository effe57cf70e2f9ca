package dex

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"swapSim/internal/adapter"
	"swapSim/internal/model"
	"swapSim/internal/simerr"
	"swapSim/internal/simulation"
)

var (
	tokenA = model.NewToken("DAI", "0x6B175474E89094C44Da98b954EedeAC495271d0F", 18)
	tokenB = model.NewToken("USDC", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", 6)

	statelessStatic = common.HexToAddress("0x1111111111111111111111111111111111111111")
	statelessState  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	registry        = common.HexToAddress("0x4444444444444444444444444444444444444444")
	resolved        = common.HexToAddress("0x3333333333333333333333333333333333333333")

	testBlock = model.EVMBlock{Number: 19_000_000, Timestamp: time.Unix(1_700_000_000, 0)}
)

type fakeEngine struct {
	t      *testing.T
	inits  map[common.Address]simulation.AccountInfo
	calls  []simulation.Params
	clears     int
	stateBlock uint64
}

func newFakeEngine(t *testing.T) *fakeEngine {
	return &fakeEngine{t: t, inits: make(map[common.Address]simulation.AccountInfo)}
}

func (f *fakeEngine) InitAccount(addr common.Address, info simulation.AccountInfo, _ bool, _ map[common.Hash]common.Hash) {
	f.inits[addr] = info
}

func (f *fakeEngine) ClearTempStorage() { f.clears++ }

func (f *fakeEngine) SetStateBlock(block uint64) { f.stateBlock = block }

func (f *fakeEngine) Run(_ context.Context, p simulation.Params) (*simulation.Result, error) {
	f.calls = append(f.calls, p)
	if p.To == registry {
		parsed, err := addressOutputInstance()
		if err != nil {
			f.t.Fatalf("address abi: %v", err)
		}
		out, err := parsed.Methods["get"].Outputs.Pack(resolved)
		if err != nil {
			f.t.Fatalf("pack address: %v", err)
		}
		return &simulation.Result{Return: out}, nil
	}
	if p.To != simulation.AdapterAddress {
		return nil, errors.New("unexpected call target")
	}

	adapterABI, err := adapter.SwapAdapterABI()
	if err != nil {
		f.t.Fatalf("adapter abi: %v", err)
	}
	method, err := adapterABI.MethodById(p.Data[:4])
	if err != nil {
		f.t.Fatalf("method: %v", err)
	}
	var values []interface{}
	switch method.Name {
	case "getCapabilities":
		values = []interface{}{[]uint8{uint8(model.SellOrder), uint8(model.PriceFunction)}}
	case "getLimits":
		values = []interface{}{[]*big.Int{big.NewInt(1_000_000), big.NewInt(1_000_000)}}
	case "price":
		values = []interface{}{[]adapter.Fraction{{Numerator: big.NewInt(1), Denominator: big.NewInt(2)}}}
	case "minGasUsage":
		values = []interface{}{big.NewInt(65_000)}
	default:
		f.t.Fatalf("unexpected method %s", method.Name)
	}
	out, err := method.Outputs.Pack(values...)
	if err != nil {
		f.t.Fatalf("pack %s: %v", method.Name, err)
	}
	return &simulation.Result{Return: out}, nil
}

type fakeChain struct {
	code  map[common.Address][]byte
	reads []common.Address
}

func (c *fakeChain) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeChain) CodeAt(_ context.Context, addr common.Address, _ uint64) ([]byte, error) {
	c.reads = append(c.reads, addr)
	return c.code[addr], nil
}

func newTestDecoder(t *testing.T, engine *fakeEngine) *SnapshotDecoder {
	decoder, err := NewSnapshotDecoder(DecoderConfig{
		AdapterCode: []byte{0x60, 0x00},
		TokenCode:   []byte{0x60, 0x01},
		MinimumGas:  80_000,
		NewEngine: func(simulation.PoolAccounts) (simulation.Engine, error) {
			return engine, nil
		},
	})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	return decoder
}

func hexUTF8(s string) string {
	return hexutil.Encode([]byte(s))
}

func testSnapshot(id string) model.ComponentSnapshot {
	return model.ComponentSnapshot{
		Component: model.ProtocolComponent{
			ID:             id,
			ProtocolSystem: "vm:balancer",
			Tokens:         []string{tokenA.Address, tokenB.Address},
			StaticAttributes: map[string]string{
				"stateless_contract_addr_0": hexUTF8(statelessStatic.Hex()),
				"stateless_contract_code_0": "0x6001",
			},
		},
		State: model.ProtocolState{
			ComponentID: id,
			Attributes:  map[string]string{},
			Balances: map[string]string{
				// 1000 DAI and 2000 USDC.
				strings.ToUpper(tokenA.Address[2:]): "0x3635c9adc5dea00000",
				tokenB.Address:                      "0x77359400",
			},
		},
	}
}

func TestDecodeExchange(t *testing.T) {
	cases := map[string]string{
		"vm:balancer": "balancer",
		"uniswap_v2":  "uniswap_v2",
		"vm:curve":    "curve",
	}
	for in, want := range cases {
		if got := DecodeExchange(in); got != want {
			t.Fatalf("DecodeExchange(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDecodeBalances(t *testing.T) {
	balances, err := DecodeBalances(map[string]string{
		tokenA.Address: "0x0de0b6b3a7640000",
		tokenB.Address: "0x",
	}, []model.Token{tokenA, tokenB})
	if err != nil {
		t.Fatalf("decode balances: %v", err)
	}
	if balances[tokenA.Key()].Cmp(big.NewRat(1, 1)) != 0 {
		t.Fatalf("unexpected balance A: %s", balances[tokenA.Key()])
	}
	if balances[tokenB.Key()].Sign() != 0 {
		t.Fatalf("expected zero balance B, got %s", balances[tokenB.Key()])
	}

	_, err = DecodeBalances(map[string]string{tokenA.Address: "0xzz"}, []model.Token{tokenA})
	var convErr *simerr.ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("expected conversion error, got %v", err)
	}

	if _, err := DecodeBalances(map[string]string{"0x5555555555555555555555555555555555555555": "0x1"}, []model.Token{tokenA}); err == nil {
		t.Fatalf("expected error for foreign token")
	}
}

func TestDecodePoolState(t *testing.T) {
	engine := newFakeEngine(t)
	decoder := newTestDecoder(t, engine)
	chain := &fakeChain{code: map[common.Address][]byte{
		statelessState: {0x60, 0x02},
		resolved:       {0x60, 0x03},
	}}

	snap := testSnapshot("0xcomponent")
	snap.Component.StaticAttributes["pool_id"] = "0xabcd"
	snap.Component.StaticAttributes["stateless_contract_addr_1"] = hexUTF8("call:" + registry.Hex() + ":getAddress()")
	snap.State.Attributes["balance_owner"] = "0xBA12222222228d8Ba445958a75a0704d566BF2C8"
	snap.State.Attributes["stateless_contract_addr_0"] = statelessState.Hex()

	tokens := model.NewTokenSet([]model.Token{tokenA, tokenB})
	state, err := decoder.DecodePoolState(DecodeContext{Chain: chain, Logger: zap.NewNop()}, snap, tokens, testBlock)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if state.ID() != "0xabcd" {
		t.Fatalf("expected pool_id override, got %s", state.ID())
	}
	if state.Exchange() != "balancer" {
		t.Fatalf("unexpected exchange %s", state.Exchange())
	}
	if state.BalanceOwner() != "0xBA12222222228d8Ba445958a75a0704d566BF2C8" {
		t.Fatalf("unexpected balance owner %s", state.BalanceOwner())
	}
	if state.MinimumGas() != 80_000 {
		t.Fatalf("unexpected minimum gas %d", state.MinimumGas())
	}
	if !state.Capabilities().Has(model.PriceFunction) {
		t.Fatalf("capabilities not negotiated: %s", state.Capabilities())
	}
	if got, _ := state.Balance(tokenA); got.Cmp(big.NewRat(1000, 1)) != 0 {
		t.Fatalf("unexpected DAI balance %s", got)
	}
	if got, _ := state.Balance(tokenB); got.Cmp(big.NewRat(2000, 1)) != 0 {
		t.Fatalf("unexpected USDC balance %s", got)
	}

	for addr, want := range map[common.Address]string{
		statelessStatic: "0x6001",
		statelessState:  "0x6002",
		resolved:        "0x6003",
	} {
		info, ok := engine.inits[addr]
		if !ok {
			t.Fatalf("stateless contract %s not installed", addr.Hex())
		}
		if got := hexutil.Encode(info.Code); got != want {
			t.Fatalf("code for %s = %s, want %s", addr.Hex(), got, want)
		}
	}
	if len(chain.reads) != 2 {
		t.Fatalf("expected code fetched for two contracts, got %d", len(chain.reads))
	}

	call := engine.calls[0]
	if call.To != registry || hexutil.Encode(call.Data) != "0x38cc4831" {
		t.Fatalf("unexpected directive call to %s data %x", call.To.Hex(), call.Data)
	}
	if call.Caller != simulation.ExternalAccount || call.BlockNumber != testBlock.Number {
		t.Fatalf("unexpected directive call params %+v", call)
	}
}

func TestDecodePoolStateRejectsMalformedDirective(t *testing.T) {
	decoder := newTestDecoder(t, newFakeEngine(t))
	snap := testSnapshot("0xcomponent")
	snap.Component.StaticAttributes["stateless_contract_addr_0"] = hexUTF8("call:nowhere")

	tokens := model.NewTokenSet([]model.Token{tokenA, tokenB})
	_, err := decoder.DecodePoolState(DecodeContext{}, snap, tokens, testBlock)
	var decodeErr *simerr.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if decodeErr.PoolID != "0xcomponent" {
		t.Fatalf("unexpected pool id %s", decodeErr.PoolID)
	}
}

func TestDecodeSnapshotReportsFailures(t *testing.T) {
	decoder := newTestDecoder(t, newFakeEngine(t))
	bad := testSnapshot("0xbad")
	bad.Component.Tokens = append(bad.Component.Tokens, "0x5555555555555555555555555555555555555555")

	tokens := model.NewTokenSet([]model.Token{tokenA, tokenB})
	pools, failed := decoder.DecodeSnapshot(DecodeContext{}, map[string]model.ComponentSnapshot{
		"0xgood": testSnapshot("0xgood"),
		"0xbad":  bad,
	}, tokens, testBlock)

	if len(pools) != 1 || pools["0xgood"] == nil {
		t.Fatalf("expected only the good pool, got %d", len(pools))
	}
	if len(failed) != 1 {
		t.Fatalf("expected one failure, got %d", len(failed))
	}
	if failed[0].PoolID != "0xbad" || failed[0].BlockNumber != testBlock.Number {
		t.Fatalf("unexpected failure %+v", failed[0])
	}
	if !strings.Contains(failed[0].Error, "unsupported token") {
		t.Fatalf("unexpected failure message %q", failed[0].Error)
	}
}

func TestApplyUpdate(t *testing.T) {
	engine := newFakeEngine(t)
	decoder := newTestDecoder(t, engine)
	tokens := model.NewTokenSet([]model.Token{tokenA, tokenB})
	state, err := decoder.DecodePoolState(DecodeContext{}, testSnapshot("0xpool"), tokens, testBlock)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	next := model.EVMBlock{Number: testBlock.Number + 1, Timestamp: testBlock.Timestamp.Add(12 * time.Second)}
	// 3000 USDC.
	if err := decoder.ApplyUpdate(context.Background(), state, map[string]string{tokenB.Address: "0xb2d05e00"}, next); err != nil {
		t.Fatalf("apply update: %v", err)
	}
	if state.Block().Number != next.Number {
		t.Fatalf("block not updated: %d", state.Block().Number)
	}
	if got, _ := state.Balance(tokenB); got.Cmp(big.NewRat(3000, 1)) != 0 {
		t.Fatalf("unexpected USDC balance %s", got)
	}
	if got, _ := state.Balance(tokenA); got.Cmp(big.NewRat(1000, 1)) != 0 {
		t.Fatalf("DAI balance changed: %s", got)
	}
	if engine.clears != 1 {
		t.Fatalf("expected caches cleared once, got %d", engine.clears)
	}
	if engine.stateBlock != next.Number {
		t.Fatalf("engine still reads at block %d", engine.stateBlock)
	}

	err = decoder.ApplyUpdate(context.Background(), state, map[string]string{"0x5555555555555555555555555555555555555555": "0x1"}, next)
	var decodeErr *simerr.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestDecodePoolStateQueriesMinimumGas(t *testing.T) {
	engine := newFakeEngine(t)
	decoder, err := NewSnapshotDecoder(DecoderConfig{
		AdapterCode: []byte{0x60, 0x00},
		TokenCode:   []byte{0x60, 0x01},
		NewEngine: func(simulation.PoolAccounts) (simulation.Engine, error) {
			return engine, nil
		},
	})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	tokens := model.NewTokenSet([]model.Token{tokenA, tokenB})
	state, err := decoder.DecodePoolState(DecodeContext{}, testSnapshot("0xpool"), tokens, testBlock)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.MinimumGas() != 65_000 {
		t.Fatalf("expected minimum gas from the adapter, got %d", state.MinimumGas())
	}
}
