package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"swapSim/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS simulation_results (
	block_number BIGINT NOT NULL,
	pool_id TEXT NOT NULL,
	sell_token TEXT NOT NULL,
	buy_token TEXT NOT NULL,
	exchange TEXT NOT NULL,
	sell_amount NUMERIC NOT NULL,
	buy_amount NUMERIC,
	gas_used BIGINT NOT NULL,
	outcome TEXT NOT NULL,
	sell_limit NUMERIC,
	error TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (block_number, pool_id, sell_token, buy_token)
);
CREATE TABLE IF NOT EXISTS simulation_failures (
	pool_id TEXT NOT NULL,
	sell_token TEXT NOT NULL,
	buy_token TEXT NOT NULL,
	error TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS decode_errors (
	block_number BIGINT NOT NULL,
	pool_id TEXT NOT NULL,
	error TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (block_number, pool_id)
);
CREATE TABLE IF NOT EXISTS pool_summaries (
	block_number BIGINT NOT NULL,
	pool_id TEXT NOT NULL,
	exchange TEXT NOT NULL,
	simulated BIGINT NOT NULL,
	succeeded BIGINT NOT NULL,
	partial BIGINT NOT NULL,
	failed BIGINT NOT NULL,
	total_gas BIGINT NOT NULL,
	max_gas BIGINT NOT NULL,
	success_rate NUMERIC,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (block_number, pool_id)
);
CREATE TABLE IF NOT EXISTS swapsim_state (
	name TEXT PRIMARY KEY,
	last_processed_block BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for simulation runs.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// EnsureSchema creates the tables the store writes to.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// PutResults upserts simulation results keyed by block, pool and pair.
func (s *Store) PutResults(ctx context.Context, results []model.SimulationResult) error {
	if len(results) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range results {
		batch.Queue(`
			INSERT INTO simulation_results (
				block_number, pool_id, sell_token, buy_token, exchange, sell_amount,
				buy_amount, gas_used, outcome, sell_limit, error
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (block_number, pool_id, sell_token, buy_token)
			DO UPDATE SET
				exchange = EXCLUDED.exchange,
				sell_amount = EXCLUDED.sell_amount,
				buy_amount = EXCLUDED.buy_amount,
				gas_used = EXCLUDED.gas_used,
				outcome = EXCLUDED.outcome,
				sell_limit = EXCLUDED.sell_limit,
				error = EXCLUDED.error
		`,
			int64(r.BlockNumber),
			r.PoolID,
			r.SellToken,
			r.BuyToken,
			r.Exchange,
			r.SellAmount,
			nullable(r.BuyAmount),
			int64(r.GasUsed),
			r.Outcome,
			nullable(r.Limit),
			nullable(r.Error),
		)
	}
	return s.sendBatch(ctx, batch, len(results))
}

// PutFailures appends failure records.
func (s *Store) PutFailures(ctx context.Context, failures []model.SimulationFailure) error {
	if len(failures) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, f := range failures {
		batch.Queue(`
			INSERT INTO simulation_failures (pool_id, sell_token, buy_token, error)
			VALUES ($1, $2, $3, $4)
		`, f.PoolID, f.SellToken, f.BuyToken, f.Error)
	}
	return s.sendBatch(ctx, batch, len(failures))
}

// PutDecodeErrors upserts components that failed to decode.
func (s *Store) PutDecodeErrors(ctx context.Context, decodeErrors []model.DecodeError) error {
	if len(decodeErrors) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range decodeErrors {
		batch.Queue(`
			INSERT INTO decode_errors (block_number, pool_id, error)
			VALUES ($1, $2, $3)
			ON CONFLICT (block_number, pool_id) DO UPDATE SET error = EXCLUDED.error
		`, int64(e.BlockNumber), e.PoolID, e.Error)
	}
	return s.sendBatch(ctx, batch, len(decodeErrors))
}

// PutSummaries inserts or updates per-pool summaries.
func (s *Store) PutSummaries(ctx context.Context, summaries []model.PoolSummary) error {
	if len(summaries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range summaries {
		batch.Queue(`
			INSERT INTO pool_summaries (
				block_number, pool_id, exchange, simulated, succeeded, partial, failed,
				total_gas, max_gas, success_rate, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
			ON CONFLICT (block_number, pool_id)
			DO UPDATE SET
				exchange = EXCLUDED.exchange,
				simulated = EXCLUDED.simulated,
				succeeded = EXCLUDED.succeeded,
				partial = EXCLUDED.partial,
				failed = EXCLUDED.failed,
				total_gas = EXCLUDED.total_gas,
				max_gas = EXCLUDED.max_gas,
				success_rate = EXCLUDED.success_rate,
				updated_at = now()
		`,
			int64(m.BlockNumber),
			m.PoolID,
			m.Exchange,
			int64(m.Simulated),
			int64(m.Succeeded),
			int64(m.Partial),
			int64(m.Failed),
			int64(m.TotalGas),
			int64(m.MaxGas),
			nullable(m.SuccessRate),
		)
	}
	return s.sendBatch(ctx, batch, len(summaries))
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_block for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM swapsim_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts last_processed_block for a name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO swapsim_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, int64(block))
	return err
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
