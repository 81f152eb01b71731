package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"publishScope/internal/config"
)

func runInitDB(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd, config.Config.ValidateStorage)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.Storage, retryPolicy(cfg), logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.EnsurePublishesSchema(ctx); err != nil {
		return err
	}
	if err := store.EnsureTransfersSchema(ctx); err != nil {
		return err
	}

	logger.Info("database ready",
		zap.String("store", cfg.Storage.Redacted()),
		zap.Bool("timescale", cfg.Storage.Timescale),
	)
	return nil
}
