package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swapSim/internal/chain"
	"swapSim/internal/config"
	"swapSim/internal/dex"
	"swapSim/internal/pool"
)

func runLimits(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadLimits(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Pool == "" {
		return fmt.Errorf("pool id is required")
	}
	snapshot, err := loadSnapshot(cfg.Snapshot)
	if err != nil {
		return err
	}
	snap, ok := snapshot.Snapshots[cfg.Pool]
	if !ok {
		for id, candidate := range snapshot.Snapshots {
			if strings.EqualFold(id, cfg.Pool) {
				snap, ok = candidate, true
				break
			}
		}
	}
	if !ok {
		return fmt.Errorf("pool %s not found in snapshot", cfg.Pool)
	}
	adapterCode, err := readCode(cfg.AdapterCode, "adapter code")
	if err != nil {
		return err
	}
	tokenCode, err := readCode(cfg.TokenCode, "token code")
	if err != nil {
		return err
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
	}

	block, err := resolveBlock(ctx, chainClient, snapshot.Block)
	if err != nil {
		return err
	}
	tokens, err := loadTokens(ctx, chainClient, snapshot, nil, logger)
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
		NewEngine:   engineFactory(source, block, 0, logger),
	})
	if err != nil {
		return err
	}
	state, err := decoder.DecodePoolState(dex.DecodeContext{Context: ctx, Chain: chainReader(chainClient), Logger: logger}, snap, tokens, block)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "pool %s (%s) at block %d, capabilities %s\n", state.ID(), state.Exchange(), block.Number, state.Capabilities())
	for _, pair := range pool.Permutations(state.Tokens()) {
		limit, err := state.GetSellAmountLimit(ctx, pair.Sell, pair.Buy)
		if err != nil {
			logger.Warn("limit query failed", zap.String("sell", pair.Sell.String()), zap.String("buy", pair.Buy.String()), zap.Error(err))
			fmt.Fprintf(out, "%s -> %s: error: %v\n", pair.Sell, pair.Buy, err)
			continue
		}
		fmt.Fprintf(out, "%s -> %s: %s\n", pair.Sell, pair.Buy, pair.Sell.FormatAmount(limit))
	}
	return nil
}
