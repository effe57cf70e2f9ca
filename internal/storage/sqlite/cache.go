package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"swapSim/internal/simulation"
)

const schema = `
CREATE TABLE IF NOT EXISTS account_balance (
	block_number INTEGER NOT NULL,
	address TEXT NOT NULL,
	balance TEXT NOT NULL,
	PRIMARY KEY (block_number, address)
);
CREATE TABLE IF NOT EXISTS account_nonce (
	block_number INTEGER NOT NULL,
	address TEXT NOT NULL,
	nonce INTEGER NOT NULL,
	PRIMARY KEY (block_number, address)
);
CREATE TABLE IF NOT EXISTS account_code (
	block_number INTEGER NOT NULL,
	address TEXT NOT NULL,
	code BLOB,
	PRIMARY KEY (block_number, address)
);
CREATE TABLE IF NOT EXISTS storage_state (
	block_number INTEGER NOT NULL,
	address TEXT NOT NULL,
	slot TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (block_number, address, slot)
);
`

// Cache is a read-through state source persisting upstream reads per block.
type Cache struct {
	db       *sql.DB
	upstream simulation.StateSource
	logger   *zap.Logger
}

// Open opens or creates the cache database at dbPath in front of upstream.
func Open(dbPath string, upstream simulation.StateSource, logger *zap.Logger) (*Cache, error) {
	if upstream == nil {
		return nil, fmt.Errorf("upstream state source is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := filepath.Dir(dbPath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialise schema: %w", err)
	}
	return &Cache{db: db, upstream: upstream, logger: logger}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) BalanceAt(ctx context.Context, addr common.Address, block uint64) (*big.Int, error) {
	var balance string
	err := c.db.QueryRowContext(ctx,
		"SELECT balance FROM account_balance WHERE block_number = ? AND address = ?",
		block, addr.Hex(),
	).Scan(&balance)
	switch {
	case err == nil:
		if value, ok := new(big.Int).SetString(balance, 10); ok {
			return value, nil
		}
		c.logger.Warn("corrupt cached balance", zap.String("address", addr.Hex()), zap.String("value", balance))
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("read cached balance: %w", err)
	}

	value, err := c.upstream.BalanceAt(ctx, addr, block)
	if err != nil {
		return nil, err
	}
	if _, err := c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO account_balance (block_number, address, balance) VALUES (?, ?, ?)",
		block, addr.Hex(), value.String(),
	); err != nil {
		return nil, fmt.Errorf("cache balance: %w", err)
	}
	return value, nil
}

func (c *Cache) NonceAt(ctx context.Context, addr common.Address, block uint64) (uint64, error) {
	var nonce int64
	err := c.db.QueryRowContext(ctx,
		"SELECT nonce FROM account_nonce WHERE block_number = ? AND address = ?",
		block, addr.Hex(),
	).Scan(&nonce)
	if err == nil {
		return uint64(nonce), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("read cached nonce: %w", err)
	}

	value, err := c.upstream.NonceAt(ctx, addr, block)
	if err != nil {
		return 0, err
	}
	if _, err := c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO account_nonce (block_number, address, nonce) VALUES (?, ?, ?)",
		block, addr.Hex(), int64(value),
	); err != nil {
		return 0, fmt.Errorf("cache nonce: %w", err)
	}
	return value, nil
}

func (c *Cache) CodeAt(ctx context.Context, addr common.Address, block uint64) ([]byte, error) {
	var code []byte
	err := c.db.QueryRowContext(ctx,
		"SELECT code FROM account_code WHERE block_number = ? AND address = ?",
		block, addr.Hex(),
	).Scan(&code)
	if err == nil {
		return code, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read cached code: %w", err)
	}

	value, err := c.upstream.CodeAt(ctx, addr, block)
	if err != nil {
		return nil, err
	}
	if _, err := c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO account_code (block_number, address, code) VALUES (?, ?, ?)",
		block, addr.Hex(), value,
	); err != nil {
		return nil, fmt.Errorf("cache code: %w", err)
	}
	return value, nil
}

func (c *Cache) StorageAt(ctx context.Context, addr common.Address, slot common.Hash, block uint64) (common.Hash, error) {
	var valueHex string
	err := c.db.QueryRowContext(ctx,
		"SELECT value FROM storage_state WHERE block_number = ? AND address = ? AND slot = ?",
		block, addr.Hex(), slot.Hex(),
	).Scan(&valueHex)
	if err == nil {
		return common.HexToHash(valueHex), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return common.Hash{}, fmt.Errorf("read cached storage: %w", err)
	}

	value, err := c.upstream.StorageAt(ctx, addr, slot, block)
	if err != nil {
		return common.Hash{}, err
	}
	if _, err := c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO storage_state (block_number, address, slot, value) VALUES (?, ?, ?, ?)",
		block, addr.Hex(), slot.Hex(), value.Hex(),
	); err != nil {
		return common.Hash{}, fmt.Errorf("cache storage: %w", err)
	}
	return value, nil
}
