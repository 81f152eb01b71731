package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"publishScope/internal/config"
	"publishScope/internal/metrics"
	"publishScope/internal/pipeline"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the CLI and returns the process exit code.
func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	return pipeline.ExitCode(root.Execute())
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "publishes",
		Short:        "OriginTrail publishes ETL",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Load new ServiceAgreementV1Created events into the publishes table",
		RunE:  runPublishes,
	}
	addStorageFlags(runCmd)
	runCmd.Flags().String("rpc", "", "chain RPC URL")
	runCmd.Flags().String("node-api-key", "", "node provider API key")
	runCmd.Flags().String("contract", "", "ServiceAgreementV1 contract address")
	runCmd.Flags().Uint64("lookback", 500, "blocks to scan when no watermark exists")
	runCmd.Flags().Uint64("batch-size", 2000, "blocks per eth_getLogs call")
	runCmd.Flags().String("explorer-api-key", "", "explorer API key")
	runCmd.Flags().Int("workers", 2, "concurrent explorer lookups")
	runCmd.Flags().Bool("strict-enrichment", false, "abort when a lookup cannot be verified")
	runCmd.Flags().String("watermark-file", "", "keep the watermark in a local file instead of the database")
	runCmd.Flags().String("failures-out", "", "JSONL file for rejected and failed lookups")
	runCmd.Flags().String("metrics-push-url", "", "Pushgateway URL")
	runCmd.Flags().Duration("interval", 0, "repeat runs on this interval (0 runs once)")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(runCmd)

	transfersCmd := &cobra.Command{
		Use:   "transfers",
		Short: "Load publisher token transfers to the hub contract",
		RunE:  runTransfers,
	}
	addStorageFlags(transfersCmd)
	transfersCmd.Flags().String("explorer-api-key", "", "explorer API key")
	transfersCmd.Flags().Int("workers", 2, "concurrent holder fetches")
	transfersCmd.Flags().Int("max-pages", 0, "maximum pages per holder (0 reads until empty)")
	transfersCmd.Flags().String("metrics-push-url", "", "Pushgateway URL")
	transfersCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(transfersCmd)

	initCmd := &cobra.Command{
		Use:   "init-db",
		Short: "Create tables and verify their schema",
		RunE:  runInitDB,
	}
	addStorageFlags(initCmd)
	initCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(initCmd)

	return root
}

func addStorageFlags(cmd *cobra.Command) {
	cmd.Flags().String("store", "postgres", "storage backend (postgres, duckdb)")
	cmd.Flags().String("db-host", "", "database host")
	cmd.Flags().Int("db-port", 0, "database port")
	cmd.Flags().String("db-user", "", "database user")
	cmd.Flags().String("db-password", "", "database password")
	cmd.Flags().String("db-name", "", "database name")
	cmd.Flags().Bool("pgbouncer", false, "connect through PgBouncer (simple query protocol)")
	cmd.Flags().Bool("timescale", false, "create the transfers table as a hypertable")
	cmd.Flags().String("duckdb-path", "./data/duckdb.db", "local DuckDB file")
	cmd.Flags().String("motherduck-token", "", "MotherDuck token")
	cmd.Flags().String("motherduck-database", "", "MotherDuck database")
}

// setup loads and validates configuration and builds the logger.
func setup(cmd *cobra.Command, validate func(config.Config) error) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := validate(cfg); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		_ = logger.Sync()
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func pushMetrics(ctx context.Context, cfg config.Config, job string, logger *zap.Logger) {
	if cfg.MetricsPushURL == "" {
		return
	}
	if err := metrics.Push(context.WithoutCancel(ctx), cfg.MetricsPushURL, job); err != nil {
		logger.Warn("push metrics failed", zap.Error(err))
	}
}

func retryPolicy(cfg config.Config) pipeline.RetryPolicy {
	return pipeline.RetryPolicy{
		Attempts:   cfg.MaxAttempts,
		Delay:      cfg.RetryDelay,
		Multiplier: 1,
		Retryable:  pipeline.Retryable,
	}
}

// withRetry runs a startup call under the same bound as the pipeline stages.
func withRetry(ctx context.Context, policy pipeline.RetryPolicy, op string, logger *zap.Logger, fn func(context.Context) error) error {
	return policy.Do(ctx, fn, func(attempt int, err error) {
		logger.Warn("startup call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	})
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
