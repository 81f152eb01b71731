package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"publishScope/internal/chain"
	"publishScope/internal/config"
	"publishScope/internal/enrich"
	"publishScope/internal/explorer"
	"publishScope/internal/extract"
	"publishScope/internal/metrics"
	"publishScope/internal/pipeline"
	"publishScope/internal/storage"
)

func runPublishes(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd, config.Config.ValidatePipeline)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nodeURL, err := cfg.NodeURL()
	if err != nil {
		return err
	}
	retry := retryPolicy(cfg)

	chainClient, err := chain.NewClient(ctx, nodeURL, cfg.CallTimeout)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	var chainID *big.Int
	err = withRetry(ctx, retry, "chain id", logger, func(ctx context.Context) error {
		chainID, err = chainClient.GetChainID(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}

	fetcher, err := extract.NewFetcher(chainClient, cfg.Contract, cfg.BatchSize, logger)
	if err != nil {
		return err
	}

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

	observers := []enrich.Observer{enrich.LogObserver{Logger: logger}, metrics.EnrichObserver{}}
	if cfg.FailuresOut != "" {
		observers = append(observers, enrich.NewFailureSink(storage.NewJSONLWriter(cfg.FailuresOut), logger))
	}
	enricher := enrich.New(explorerClient, enrich.Options{
		Workers:   cfg.Workers,
		Attempts:  cfg.EnrichAttempts,
		Delay:     cfg.EnrichDelay,
		CacheTTL:  cfg.EnrichCacheTTL,
		CacheSize: cfg.EnrichCacheSize,
		Observers: observers,
	}, logger)

	store, closeStore, err := openStore(ctx, cfg.Storage, retry, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var watermark storage.WatermarkStore = store
	if cfg.WatermarkFile != "" {
		watermark = storage.NewFileWatermarkStore(cfg.WatermarkFile)
	}

	p := pipeline.New(fetcher, enricher, store, watermark, pipeline.Options{
		Lookback:         cfg.Lookback,
		Retry:            retry,
		StrictEnrichment: cfg.StrictEnrichment,
		Metrics:          metrics.NewPipeline("publishes"),
	}, logger)

	logger.Info("publishes start",
		zap.String("chain_id", chainID.String()),
		zap.String("contract", cfg.Contract),
		zap.String("explorer", cfg.ExplorerURL),
		zap.String("store", cfg.Storage.Redacted()),
		zap.String("watermark_file", cfg.WatermarkFile),
		zap.Uint64("lookback", cfg.Lookback),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.Int("workers", cfg.Workers),
		zap.Bool("strict_enrichment", cfg.StrictEnrichment),
		zap.Duration("interval", cfg.Interval),
	)

	if cfg.Interval > 0 {
		return p.Loop(ctx, cfg.Interval, func(pipeline.Result, error) {
			pushMetrics(ctx, cfg, "publishes", logger)
		})
	}

	res, err := p.Run(ctx)
	pushMetrics(ctx, cfg, "publishes", logger)
	if err != nil {
		return err
	}
	logger.Info("publishes finished",
		zap.String("state", res.State.String()),
		zap.Bool("no_events", res.NoEvents),
		zap.Uint64("from", res.From),
		zap.Uint64("to", res.To),
		zap.Int("events", res.Events),
		zap.Int("records", res.Records),
		zap.Int64("inserted", res.Inserted),
		zap.Int("rejected", len(res.Report.Rejected())),
		zap.Int("failed", len(res.Report.Failed())),
		zap.Uint64("watermark", res.Watermark),
	)
	return nil
}
