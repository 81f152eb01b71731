package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Lookback != 500 || cfg.BatchSize != 2000 {
		t.Fatalf("unexpected range defaults: %+v", cfg)
	}
	if cfg.MaxAttempts != 3 || cfg.RetryDelay != 5*time.Second {
		t.Fatalf("unexpected retry defaults: %d %s", cfg.MaxAttempts, cfg.RetryDelay)
	}
	if cfg.Storage.Backend != BackendPostgres {
		t.Fatalf("unexpected backend: %s", cfg.Storage.Backend)
	}
}

func TestLoadEnvAndFlags(t *testing.T) {
	t.Setenv("PUBLISHES_NODE_API_KEY", "node-key")
	t.Setenv("PUBLISHES_EXPLORER_API_KEY", "explorer-key")
	t.Setenv("PUBLISHES_DB_PORT", "6432")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("workers", 2, "")
	flags.String("store", "postgres", "")
	if err := flags.Parse([]string{"--workers=7", "--store=DuckDB"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NodeAPIKey != "node-key" || cfg.ExplorerAPIKey != "explorer-key" {
		t.Fatalf("env keys not loaded: %+v", cfg)
	}
	if cfg.Storage.DBPort != 6432 {
		t.Fatalf("db port mismatch: %d", cfg.Storage.DBPort)
	}
	if cfg.Workers != 7 {
		t.Fatalf("flag workers mismatch: %d", cfg.Workers)
	}
	if cfg.Storage.Backend != BackendDuckDB {
		t.Fatalf("backend should be normalized: %s", cfg.Storage.Backend)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "publishes.yaml")
	content := "lookback: 42\nexplorer-api-key: from-file\nstrict-enrichment: true\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Lookback != 42 || cfg.ExplorerAPIKey != "from-file" || !cfg.StrictEnrichment {
		t.Fatalf("config file values not applied: %+v", cfg)
	}
}

func TestValidatePipelineMissing(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	err = cfg.ValidatePipeline()
	var cfgErr *Error
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	want := []string{"node-api-key", "explorer-api-key", "db-host", "db-port", "db-user", "db-password", "db-name"}
	for _, key := range want {
		if !contains(cfgErr.Missing, key) {
			t.Fatalf("missing %s not reported: %v", key, cfgErr.Missing)
		}
	}
	if !strings.Contains(err.Error(), "node-api-key") {
		t.Fatalf("error message should list keys: %s", err)
	}
}

func TestValidatePipelineOK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.ValidatePipeline(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateInvalidValues(t *testing.T) {
	cfg := validConfig()
	cfg.Workers = 0
	cfg.Storage.Backend = "sqlite"

	var cfgErr *Error
	if err := cfg.ValidatePipeline(); !errors.As(err, &cfgErr) || len(cfgErr.Invalid) != 2 {
		t.Fatalf("expected two invalid settings, got %v", err)
	}
}

func TestValidateMotherDuck(t *testing.T) {
	cfg := validConfig()
	cfg.Storage = Storage{Backend: BackendDuckDB, MotherDuckDatabase: "origintrail"}

	var cfgErr *Error
	if err := cfg.ValidateStorage(); !errors.As(err, &cfgErr) || !contains(cfgErr.Missing, "motherduck-token") {
		t.Fatalf("expected missing motherduck token, got %v", err)
	}

	cfg.Storage.MotherDuckToken = "tok en"
	if err := cfg.ValidateStorage(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dsn := cfg.Storage.DuckDBDSN(); dsn != "md:origintrail?motherduck_token=tok+en" {
		t.Fatalf("dsn mismatch: %s", dsn)
	}
}

func TestNodeURL(t *testing.T) {
	cfg := Config{RPCURL: "https://node.example/rpc", NodeAPIKey: "k1"}
	got, err := cfg.NodeURL()
	if err != nil {
		t.Fatalf("node url: %v", err)
	}
	if got != "https://node.example/rpc?apikey=k1" {
		t.Fatalf("node url mismatch: %s", got)
	}
}

func TestPostgresDSN(t *testing.T) {
	s := Storage{DBHost: "db", DBPort: 5432, DBUser: "u", DBPassword: "p@ss", DBName: "tsdb", DBSSLMode: "require"}
	if got := s.PostgresDSN(); got != "postgres://u:p%40ss@db:5432/tsdb?sslmode=require" {
		t.Fatalf("dsn mismatch: %s", got)
	}
	s.Backend = BackendPostgres
	if strings.Contains(s.Redacted(), "p@ss") {
		t.Fatalf("redacted dsn leaks password")
	}
}

func validConfig() Config {
	return Config{
		RPCURL:         "https://node.example/rpc",
		NodeAPIKey:     "node",
		Contract:       "0xB20F6F3B9176D4B284bA26b80833ff5bFe6db28F",
		BatchSize:      2000,
		ExplorerURL:    "https://explorer.example",
		ExplorerAPIKey: "explorer",
		Workers:        2,
		EnrichAttempts: 2,
		MaxAttempts:    3,
		CallTimeout:    time.Second,
		Storage: Storage{
			Backend:    BackendPostgres,
			DBHost:     "localhost",
			DBPort:     5432,
			DBUser:     "etl",
			DBPassword: "secret",
			DBName:     "publishes",
		},
	}
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
