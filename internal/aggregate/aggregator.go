package aggregate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"swapSim/internal/model"
)

// SummaryWriter receives pool summaries. storage sinks and the Postgres store
// implement it.
type SummaryWriter interface {
	PutSummaries(ctx context.Context, summaries []model.PoolSummary) error
}

// Config controls aggregation behavior.
type Config struct {
	BatchSize int
	// RecomputeFrom re-aggregates from this block, ignoring saved state.
	RecomputeFrom uint64
	StateStore    StateStore
}

// Aggregator folds a results JSONL file into per-pool, per-block summaries.
type Aggregator struct {
	cfg          Config
	writer       SummaryWriter
	logger       *zap.Logger
	accumulators map[string]*Accumulator
}

func NewAggregator(cfg Config, writer SummaryWriter, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		cfg:          cfg,
		writer:       writer,
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
	}
}

// Run aggregates the results file at inputPath.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()
	return a.RunReader(ctx, file)
}

// RunReader aggregates JSON lines of simulation results read from r.
func (a *Aggregator) RunReader(ctx context.Context, r io.Reader) error {
	if a.writer == nil {
		return fmt.Errorf("summary writer is nil")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startBlock, err := a.loadStartBlock(ctx)
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	batch := make([]model.PoolSummary, 0, a.cfg.BatchSize)
	maxBlock := startBlock
	var total, skipped, failed int

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var record model.SimulationResult
		if err := json.Unmarshal(line, &record); err != nil {
			failed++
			a.logger.Warn("decode simulation result", zap.Error(err))
			continue
		}

		if record.BlockNumber <= startBlock {
			skipped++
			continue
		}

		key := poolKey(record.PoolID)
		acc := a.accumulators[key]
		if acc == nil {
			acc = NewAccumulator(record)
			a.accumulators[key] = acc
		} else if acc.BlockNumber != record.BlockNumber {
			batch = append(batch, acc.Summary())
			acc = NewAccumulator(record)
			a.accumulators[key] = acc
		}

		if err := acc.Add(record); err != nil {
			failed++
			a.logger.Warn("aggregate result", zap.Error(err), zap.String("pool_id", record.PoolID))
			continue
		}

		if record.BlockNumber > maxBlock {
			maxBlock = record.BlockNumber
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.flush(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
			if err := a.saveState(ctx, maxBlock); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}

	for _, acc := range a.accumulators {
		batch = append(batch, acc.Summary())
	}
	a.accumulators = make(map[string]*Accumulator)

	if err := a.flush(ctx, batch); err != nil {
		return err
	}
	if err := a.saveState(ctx, maxBlock); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", total),
		zap.Int("summaries", len(batch)),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)
	return nil
}

func (a *Aggregator) flush(ctx context.Context, batch []model.PoolSummary) error {
	if len(batch) == 0 {
		return nil
	}
	sortSummaries(batch)
	if err := a.writer.PutSummaries(ctx, batch); err != nil {
		return fmt.Errorf("write summaries: %w", err)
	}
	return nil
}

func (a *Aggregator) loadStartBlock(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

// saveState records the highest block whose summaries are all written. Blocks
// still held by an open accumulator are not yet safe.
func (a *Aggregator) saveState(ctx context.Context, maxBlock uint64) error {
	if a.cfg.StateStore == nil {
		return nil
	}
	safe := maxBlock
	if open := minOpenBlock(a.accumulators); open > 0 {
		safe = open - 1
	}
	return a.cfg.StateStore.Save(ctx, safe)
}

func minOpenBlock(acc map[string]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.BlockNumber < min {
			min = entry.BlockNumber
		}
	}
	return min
}
