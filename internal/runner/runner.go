package runner

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"swapSim/internal/aggregate"
	"swapSim/internal/dex"
	"swapSim/internal/model"
	"swapSim/internal/pool"
	"swapSim/internal/storage"
)

// DefaultSellFraction is the share of a pool's balance sold per permutation.
var DefaultSellFraction = big.NewRat(1, 1000)

// RunConfig holds runtime settings for a simulation run.
type RunConfig struct {
	Expected          []ExpectedComponent
	SkipBalanceCheck  bool
	Concurrency       int
	SellFraction      *big.Rat
	CheckpointPath    string
	CheckpointEnabled bool
}

// PoolDecoder builds a pool from a snapshot. Every call must return a pool with its
// own engine.
type PoolDecoder interface {
	DecodePoolState(dctx dex.DecodeContext, snap model.ComponentSnapshot, tokens model.TokenSet, block model.EVMBlock) (*pool.State, error)
}

// Input is the snapshot a run simulates.
type Input struct {
	Block     model.EVMBlock
	Tokens    model.TokenSet
	Snapshots map[string]model.ComponentSnapshot
}

// Runner decodes a snapshot and simulates every token permutation of every pool.
type Runner struct {
	cfg        RunConfig
	decoder    PoolDecoder
	chain      dex.ChainReader
	balances   BalanceReader
	sink       storage.Sink
	logger     *zap.Logger
	checkpoint *CheckpointStore
}

// NewRunner builds a Runner. chain and balances may be nil; sink may be nil when
// only the report is needed.
func NewRunner(cfg RunConfig, decoder PoolDecoder, chain dex.ChainReader, balances BalanceReader, sink storage.Sink, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.SellFraction == nil {
		cfg.SellFraction = DefaultSellFraction
	}
	return &Runner{
		cfg:        cfg,
		decoder:    decoder,
		chain:      chain,
		balances:   balances,
		sink:       sink,
		logger:     logger,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

type poolRun struct {
	results     []model.SimulationResult
	failures    []model.SimulationFailure
	decodeError *model.DecodeError
}

// Run validates the snapshot, simulates the selected pools and writes the output.
func (r *Runner) Run(ctx context.Context, in Input) (*Report, error) {
	if r.decoder == nil {
		return nil, fmt.Errorf("decoder is nil")
	}

	if err := ValidateComponents(r.cfg.Expected, in.Snapshots); err != nil {
		return nil, err
	}
	if !r.cfg.SkipBalanceCheck && r.balances != nil {
		if err := CheckBalances(ctx, r.balances, in.Snapshots, in.Block.Number, r.logger); err != nil {
			return nil, err
		}
	}

	report := &Report{Block: in.Block.Number, Failures: make(map[string][]model.SimulationFailure)}
	completed := make(map[string]struct{})
	if cp, ok, err := r.checkpoint.Load(); err != nil {
		return nil, err
	} else if ok && cp.Block == in.Block.Number {
		for _, id := range cp.Completed {
			completed[id] = struct{}{}
		}
		r.logger.Info("resume from checkpoint", zap.Uint64("block", cp.Block), zap.Int("completed", len(cp.Completed)))
	}

	var pending []string
	for _, id := range r.selectComponents(in.Snapshots) {
		if _, done := completed[id]; done {
			report.Resumed = append(report.Resumed, id)
			continue
		}
		pending = append(pending, id)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, id := range pending {
		snap := in.Snapshots[id]
		g.Go(func() error {
			run := r.runPool(gctx, snap, in)
			if err := gctx.Err(); err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			report.Results = append(report.Results, run.results...)
			if len(run.failures) > 0 {
				poolID := run.failures[0].PoolID
				report.Failures[poolID] = append(report.Failures[poolID], run.failures...)
			}
			if run.decodeError != nil {
				report.DecodeErrors = append(report.DecodeErrors, *run.decodeError)
			}
			completed[id] = struct{}{}
			return r.checkpoint.Save(in.Block.Number, completed)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortResults(report.Results)
	sort.Slice(report.DecodeErrors, func(i, j int) bool { return report.DecodeErrors[i].PoolID < report.DecodeErrors[j].PoolID })
	report.Summaries = aggregate.Summarize(report.Results)
	for _, s := range report.Summaries {
		r.logger.Info("pool summary",
			zap.String("pool_id", s.PoolID),
			zap.String("exchange", s.Exchange),
			zap.Uint64("simulated", s.Simulated),
			zap.Uint64("succeeded", s.Succeeded),
			zap.Uint64("partial", s.Partial),
			zap.Uint64("failed", s.Failed),
			zap.Uint64("max_gas", s.MaxGas),
		)
	}

	if err := r.write(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

// selectComponents returns the component ids to simulate: the expected ones not
// flagged skip_simulation, or every component when nothing is expected.
func (r *Runner) selectComponents(snapshots map[string]model.ComponentSnapshot) []string {
	byID := make(map[string]string, len(snapshots))
	for key, snap := range snapshots {
		byID[strings.ToLower(snap.Component.ID)] = key
	}

	var ids []string
	if len(r.cfg.Expected) == 0 {
		for key := range snapshots {
			ids = append(ids, key)
		}
	} else {
		for _, want := range r.cfg.Expected {
			if want.SkipSimulation {
				r.logger.Info("skip simulation", zap.String("component_id", want.ID))
				continue
			}
			if key, ok := byID[strings.ToLower(want.ID)]; ok {
				ids = append(ids, key)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

func (r *Runner) runPool(ctx context.Context, snap model.ComponentSnapshot, in Input) poolRun {
	decodeFailure := func(err error) poolRun {
		r.logger.Error("pool not simulated", zap.String("component_id", snap.Component.ID), zap.Error(err))
		return poolRun{decodeError: &model.DecodeError{
			BlockNumber: in.Block.Number,
			PoolID:      snap.Component.ID,
			Error:       err.Error(),
		}}
	}

	if len(snap.State.Balances) == 0 {
		return decodeFailure(fmt.Errorf("missing balances for pool %s", snap.Component.ID))
	}
	state, err := r.decoder.DecodePoolState(dex.DecodeContext{Context: ctx, Chain: r.chain, Logger: r.logger}, snap, in.Tokens, in.Block)
	if err != nil {
		return decodeFailure(err)
	}
	return r.simulatePool(ctx, state)
}

// simulatePool sells a fraction of the pool's balance for every ordered token pair.
func (r *Runner) simulatePool(ctx context.Context, state *pool.State) poolRun {
	var run poolRun
	for _, pair := range pool.Permutations(state.Tokens()) {
		sell, buy := pair.Sell, pair.Buy
		balance, ok := state.Balance(sell)
		if !ok {
			balance = new(big.Rat)
		}
		sellAmount := new(big.Rat).Mul(balance, r.cfg.SellFraction)

		out := state.GetAmountOut(ctx, sell, sellAmount, buy)
		result := model.SimulationResult{
			BlockNumber: state.Block().Number,
			PoolID:      state.ID(),
			Exchange:    state.Exchange(),
			SellToken:   sell.Key(),
			BuyToken:    buy.Key(),
			SellAmount:  sell.FormatAmount(sellAmount),
			GasUsed:     out.Gas,
			Outcome:     out.Kind.String(),
		}
		if out.Amount != nil {
			result.BuyAmount = buy.FormatAmount(out.Amount)
		}
		if out.Limit != nil {
			result.Limit = sell.FormatAmount(out.Limit)
		}
		if out.Err != nil {
			result.Error = out.Err.Error()
		}
		run.results = append(run.results, result)

		if out.Kind == pool.Failed {
			r.logger.Warn("simulation failed",
				zap.String("pool_id", state.ID()),
				zap.String("sell", sell.String()),
				zap.String("buy", buy.String()),
				zap.Error(out.Err),
			)
			run.failures = append(run.failures, model.SimulationFailure{
				PoolID:    state.ID(),
				SellToken: sell.String(),
				BuyToken:  buy.String(),
				Error:     out.Err.Error(),
			})
			continue
		}
		r.logger.Info("amount out",
			zap.String("pool_id", state.ID()),
			zap.String("sell_amount", result.SellAmount),
			zap.String("sell", sell.String()),
			zap.String("amount_out", result.BuyAmount),
			zap.String("buy", buy.String()),
			zap.Uint64("gas_used", out.Gas),
			zap.String("outcome", result.Outcome),
		)
	}
	return run
}

func (r *Runner) write(ctx context.Context, report *Report) error {
	if r.sink == nil {
		return nil
	}
	if err := r.sink.PutResults(ctx, report.Results); err != nil {
		return fmt.Errorf("store results: %w", err)
	}
	if err := r.sink.PutFailures(ctx, report.AllFailures()); err != nil {
		return fmt.Errorf("store failures: %w", err)
	}
	if err := r.sink.PutDecodeErrors(ctx, report.DecodeErrors); err != nil {
		return fmt.Errorf("store decode errors: %w", err)
	}
	if err := r.sink.PutSummaries(ctx, report.Summaries); err != nil {
		return fmt.Errorf("store summaries: %w", err)
	}
	return nil
}

func sortResults(results []model.SimulationResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.PoolID != b.PoolID {
			return a.PoolID < b.PoolID
		}
		if a.SellToken != b.SellToken {
			return a.SellToken < b.SellToken
		}
		return a.BuyToken < b.BuyToken
	})
}
