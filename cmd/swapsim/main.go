package main

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		os.Stderr.WriteString("load .env: " + err.Error() + "\n")
	}

	root := &cobra.Command{
		Use:          "swapsim",
		Short:        "Simulate swaps against DEX pool snapshots on a local EVM",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate every token pair of every pool in a snapshot",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().String("rpc", "", "Ethereum RPC URL")
	simulateCmd.Flags().String("snapshot", "", "component snapshot JSON")
	simulateCmd.Flags().String("assets", "", "test_assets.yaml with expected components")
	simulateCmd.Flags().String("test", "", "test name in the assets file (default: first)")
	simulateCmd.Flags().String("adapter-code", "", "adapter runtime bytecode (hex or binary file)")
	simulateCmd.Flags().String("token-code", "", "mock ERC20 runtime bytecode (hex or binary file)")
	simulateCmd.Flags().StringSlice("token", nil, "extra token addresses to load metadata for (comma-separated)")
	simulateCmd.Flags().String("out", "./data", "output directory for JSONL files")
	simulateCmd.Flags().String("parquet", "", "optional Parquet file for results")
	simulateCmd.Flags().String("pg-dsn", "", "optional Postgres DSN")
	simulateCmd.Flags().String("state-cache", "", "optional SQLite file caching RPC state reads")
	simulateCmd.Flags().Int("concurrency", 4, "pools simulated in parallel")
	simulateCmd.Flags().Bool("skip-balance-check", false, "skip on-chain balance checks")
	simulateCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	simulateCmd.Flags().Bool("checkpoint-enabled", false, "resume from and record checkpoints")
	simulateCmd.Flags().Int("max-retries", 5, "maximum RPC retry attempts")
	simulateCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial RPC retry backoff")
	simulateCmd.Flags().Int("temp-cache-size", 0, "cached state reads per engine (0 uses the default)")
	simulateCmd.Flags().Uint64("minimum-gas", 0, "minimum gas charged per trade")
	simulateCmd.Flags().String("trading-fee", "0", "trading fee as a decimal fraction")
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(simulateCmd)

	limitsCmd := &cobra.Command{
		Use:   "limits",
		Short: "Print sell amount limits for every token pair of a pool",
		RunE:  runLimits,
	}

	limitsCmd.Flags().String("rpc", "", "Ethereum RPC URL")
	limitsCmd.Flags().String("snapshot", "", "component snapshot JSON")
	limitsCmd.Flags().String("pool", "", "component id")
	limitsCmd.Flags().String("adapter-code", "", "adapter runtime bytecode (hex or binary file)")
	limitsCmd.Flags().String("token-code", "", "mock ERC20 runtime bytecode (hex or binary file)")
	limitsCmd.Flags().String("state-cache", "", "optional SQLite file caching RPC state reads")
	limitsCmd.Flags().Int("max-retries", 5, "maximum RPC retry attempts")
	limitsCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial RPC retry backoff")
	limitsCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(limitsCmd)

	slotCmd := &cobra.Command{
		Use:   "slot",
		Short: "Print the storage slot of a mapping entry",
		RunE:  runSlot,
	}

	slotCmd.Flags().String("key", "", "mapping key (address)")
	slotCmd.Flags().String("inner", "", "inner key for a nested mapping (address)")
	slotCmd.Flags().Uint64("index", 0, "mapping slot index")

	root.AddCommand(slotCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Fold simulation results into per-pool summaries",
		RunE:  runAggregate,
	}

	aggregateCmd.Flags().String("in", "", "input results JSONL")
	aggregateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	aggregateCmd.Flags().String("out", "", "output directory for summaries JSONL when no DSN is set")
	aggregateCmd.Flags().Int("batch-size", 1000, "summaries per write")
	aggregateCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	aggregateCmd.Flags().String("recompute-from", "", "recompute from block (decimal or 0x hex)")
	aggregateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(aggregateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
