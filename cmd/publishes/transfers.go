package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"publishScope/internal/config"
	"publishScope/internal/explorer"
	"publishScope/internal/metrics"
	"publishScope/internal/transfers"
)

func runTransfers(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd, config.Config.ValidateTransfers)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	explorerClient, err := explorer.NewClient(explorer.Options{
		BaseURL: cfg.ExplorerURL,
		APIKey:  cfg.ExplorerAPIKey,
		Timeout: cfg.CallTimeout,
		RPS:     cfg.ExplorerRPS,
		Metrics: metrics.Explorer{},
	})
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg.Storage, retryPolicy(cfg), logger)
	if err != nil {
		return err
	}
	defer closeStore()

	p := transfers.New(explorerClient, store, transfers.Options{
		TokenContract: cfg.Transfers.TokenContract,
		HubAddress:    cfg.Transfers.HubAddress,
		Symbol:        cfg.Transfers.Symbol,
		HolderRows:    cfg.Transfers.HolderRows,
		TransferRows:  cfg.Transfers.TransferRows,
		MaxPages:      cfg.Transfers.MaxPages,
		Workers:       cfg.Workers,
		Retry:         retryPolicy(cfg),
		Metrics:       metrics.NewPipeline("transfers"),
	}, logger)

	logger.Info("transfers start",
		zap.String("token_contract", cfg.Transfers.TokenContract),
		zap.String("hub", cfg.Transfers.HubAddress),
		zap.String("store", cfg.Storage.Redacted()),
		zap.Int("workers", cfg.Workers),
	)

	res, err := p.Run(ctx)
	pushMetrics(ctx, cfg, "transfers", logger)
	if err != nil {
		return fmt.Errorf("transfers: %w", err)
	}
	logger.Info("transfers finished",
		zap.Int("holders", res.Holders),
		zap.Int("holder_failures", res.HolderFailures),
		zap.Int("matched", res.Matched),
		zap.Int64("inserted", res.Inserted),
	)
	return nil
}
