package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"publishScope/internal/config"
	"publishScope/internal/pipeline"
	"publishScope/internal/storage"
	"publishScope/internal/storage/duckdb"
	"publishScope/internal/storage/postgres"
)

type backend interface {
	storage.PublishLoader
	storage.TransferLoader
	storage.WatermarkStore
}

// openStore connects to the configured backend, retrying transient failures.
func openStore(ctx context.Context, s config.Storage, policy pipeline.RetryPolicy, logger *zap.Logger) (backend, func(), error) {
	var (
		store     backend
		closeFunc func()
	)
	err := withRetry(ctx, policy, "open store", logger, func(ctx context.Context) error {
		var err error
		store, closeFunc, err = dialStore(ctx, s, logger)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return store, closeFunc, nil
}

func dialStore(ctx context.Context, s config.Storage, logger *zap.Logger) (backend, func(), error) {
	switch s.Backend {
	case config.BackendPostgres:
		store, err := postgres.NewStore(ctx, postgres.Options{
			DSN:       s.PostgresDSN(),
			PgBouncer: s.PgBouncer,
			Timescale: s.Timescale,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return store, store.Close, nil
	case config.BackendDuckDB:
		if s.MotherDuckToken == "" {
			if dir := filepath.Dir(s.DuckDBPath); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, nil, fmt.Errorf("create duckdb dir: %w", err)
				}
			}
		}
		store, err := duckdb.Open(ctx, s.DuckDBDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("open duckdb: %w", err)
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Warn("close duckdb", zap.Error(err))
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", s.Backend)
	}
}
