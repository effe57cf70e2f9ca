package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swapSim/internal/chain"
	"swapSim/internal/config"
	"swapSim/internal/dex"
	"swapSim/internal/model"
	"swapSim/internal/runner"
	"swapSim/internal/storage"
	"swapSim/internal/storage/postgres"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	snapshot, err := loadSnapshot(cfg.Snapshot)
	if err != nil {
		return err
	}
	adapterCode, err := readCode(cfg.AdapterCode, "adapter code")
	if err != nil {
		return err
	}
	tokenCode, err := readCode(cfg.TokenCode, "token code")
	if err != nil {
		return err
	}
	tradingFee, err := model.ParseAmount(cfg.TradingFee)
	if err != nil {
		return fmt.Errorf("parse trading-fee: %w", err)
	}

	runCfg := runner.RunConfig{
		SkipBalanceCheck:  cfg.SkipBalanceCheck,
		Concurrency:       cfg.Concurrency,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
	}
	if cfg.Assets != "" {
		assets, err := config.LoadTestAssets(cfg.Assets)
		if err != nil {
			return err
		}
		test, err := assets.FindTest(cfg.TestName)
		if err != nil {
			return err
		}
		runCfg.Expected = expectedComponents(test)
		runCfg.SkipBalanceCheck = runCfg.SkipBalanceCheck || assets.SkipBalanceCheck
		if snapshot.Block.Number == 0 {
			snapshot.Block.Number = test.StopBlock
		}
		logger.Info("test assets loaded",
			zap.String("test", test.Name),
			zap.String("adapter_contract", assets.AdapterContract),
			zap.Int("expected_components", len(test.ExpectedComponents)),
			zap.Int("initialized_accounts", len(assets.AccountsFor(test))),
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var chainClient *chain.Client
	if cfg.RPCURL != "" {
		chainClient, err = connectChain(ctx, cfg.RPCURL, cfg.MaxRetries, cfg.RetryBackoff)
		if err != nil {
			return err
		}
		defer chainClient.Close()
	} else if !runCfg.SkipBalanceCheck {
		logger.Warn("no rpc configured, balance check disabled")
		runCfg.SkipBalanceCheck = true
	}

	block, err := resolveBlock(ctx, chainClient, snapshot.Block)
	if err != nil {
		return err
	}
	tokens, err := loadTokens(ctx, chainClient, snapshot, cfg.Tokens, logger)
	if err != nil {
		return err
	}

	source, closeSource, err := stateSource(chainClient, cfg.StateCache, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	decoder, err := dex.NewSnapshotDecoder(dex.DecoderConfig{
		AdapterCode: adapterCode,
		TokenCode:   tokenCode,
		MinimumGas:  cfg.MinimumGas,
		TradingFee:  tradingFee,
		NewEngine:   engineFactory(source, block, cfg.TempCacheSize, logger),
	})
	if err != nil {
		return err
	}

	sink, closeSink, err := openSinks(ctx, cfg)
	if err != nil {
		return err
	}

	var balances runner.BalanceReader
	if chainClient != nil {
		balances = dex.ChainBalances{Caller: chainClient}
	}
	r := runner.NewRunner(runCfg, decoder, chainReader(chainClient), balances, sink, logger)

	logger.Info("simulate start",
		zap.String("snapshot", cfg.Snapshot),
		zap.Uint64("block", block.Number),
		zap.Int("components", len(snapshot.Snapshots)),
		zap.Int("tokens", len(tokens)),
		zap.Int("concurrency", cfg.Concurrency),
		zap.String("out", cfg.Out),
		zap.Bool("parquet", cfg.Parquet != ""),
		zap.Bool("postgres", cfg.PGDSN != ""),
		zap.Bool("state_cache", cfg.StateCache != ""),
	)

	report, err := r.Run(ctx, runner.Input{Block: block, Tokens: tokens, Snapshots: snapshot.Snapshots})
	if closeErr := closeSink(); err == nil && closeErr != nil {
		err = fmt.Errorf("close sinks: %w", closeErr)
	}
	if err != nil {
		return err
	}

	logger.Info("simulate done",
		zap.Int("results", len(report.Results)),
		zap.Int("failures", len(report.AllFailures())),
		zap.Int("decode_errors", len(report.DecodeErrors)),
		zap.Int("resumed", len(report.Resumed)),
	)
	return report.Err()
}

// openSinks always writes JSONL and adds Parquet and Postgres when configured.
func openSinks(ctx context.Context, cfg config.Config) (storage.MultiSink, func() error, error) {
	sinks := storage.MultiSink{storage.NewJsonlStorage(cfg.Out)}
	closeAll := func() error { return sinks.Close() }

	if cfg.Parquet != "" {
		pq, err := storage.NewParquetStorage(cfg.Parquet)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, pq)
	}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			sinks.Close()
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		sinks = append(sinks, store)
		if err := store.EnsureSchema(ctx); err != nil {
			sinks.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
	}
	return sinks, closeAll, nil
}

func expectedComponents(test config.IntegrationTest) []runner.ExpectedComponent {
	out := make([]runner.ExpectedComponent, 0, len(test.ExpectedComponents))
	for _, c := range test.ExpectedComponents {
		out = append(out, runner.ExpectedComponent{
			ID:               c.ID,
			Tokens:           c.Tokens,
			StaticAttributes: c.StaticAttributes,
			SkipSimulation:   c.SkipSimulation,
		})
	}
	return out
}
