package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	BackendPostgres = "postgres"
	BackendDuckDB   = "duckdb"
)

// Config holds configuration values loaded from flags, env, or config file.
// It is built once at startup and passed by value.
type Config struct {
	RPCURL     string
	NodeAPIKey string
	Contract   string
	Lookback   uint64
	BatchSize  uint64

	ExplorerURL    string
	ExplorerAPIKey string
	ExplorerRPS    int

	Workers          int
	EnrichAttempts   int
	EnrichDelay      time.Duration
	EnrichCacheTTL   time.Duration
	EnrichCacheSize  int
	StrictEnrichment bool

	MaxAttempts int
	RetryDelay  time.Duration
	CallTimeout time.Duration

	Storage Storage

	Transfers Transfers

	WatermarkFile  string
	FailuresOut    string
	MetricsPushURL string
	Interval       time.Duration
	LogLevel       string
}

// Storage selects and parameterizes the persisted storage backend.
type Storage struct {
	Backend    string
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	PgBouncer  bool
	Timescale  bool

	DuckDBPath         string
	MotherDuckToken    string
	MotherDuckDatabase string
}

// Transfers configures the publisher transfers pipeline.
type Transfers struct {
	TokenContract string
	HubAddress    string
	Symbol        string
	HolderRows    int
	TransferRows  int
	MaxPages      int
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PUBLISHES")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("rpc", "https://origintrail.api.onfinality.io/rpc")
	v.SetDefault("contract", "0xB20F6F3B9176D4B284bA26b80833ff5bFe6db28F")
	v.SetDefault("lookback", uint64(500))
	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("explorer-url", "https://origintrail.api.subscan.io")
	v.SetDefault("explorer-rps", 5)
	v.SetDefault("workers", 2)
	v.SetDefault("enrich-attempts", 2)
	v.SetDefault("enrich-delay", time.Second)
	v.SetDefault("enrich-cache-ttl", time.Hour)
	v.SetDefault("enrich-cache-size", 4096)
	v.SetDefault("strict-enrichment", false)
	v.SetDefault("max-attempts", 3)
	v.SetDefault("retry-delay", 5*time.Second)
	v.SetDefault("call-timeout", 30*time.Second)
	v.SetDefault("store", BackendPostgres)
	v.SetDefault("db-sslmode", "require")
	v.SetDefault("duckdb-path", "./data/duckdb.db")
	v.SetDefault("token-contract", "0x5cac41237127f94c2d21dae0b14bfefa99880630")
	v.SetDefault("hub-address", "0x61bb5f3db740a9cb3451049c5166f319a18927eb")
	v.SetDefault("symbol", "TRAC")
	v.SetDefault("holder-rows", 100)
	v.SetDefault("transfer-rows", 40)
	v.SetDefault("max-pages", 0)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:           v.GetString("rpc"),
		NodeAPIKey:       v.GetString("node-api-key"),
		Contract:         v.GetString("contract"),
		Lookback:         v.GetUint64("lookback"),
		BatchSize:        v.GetUint64("batch-size"),
		ExplorerURL:      v.GetString("explorer-url"),
		ExplorerAPIKey:   v.GetString("explorer-api-key"),
		ExplorerRPS:      v.GetInt("explorer-rps"),
		Workers:          v.GetInt("workers"),
		EnrichAttempts:   v.GetInt("enrich-attempts"),
		EnrichDelay:      v.GetDuration("enrich-delay"),
		EnrichCacheTTL:   v.GetDuration("enrich-cache-ttl"),
		EnrichCacheSize:  v.GetInt("enrich-cache-size"),
		StrictEnrichment: v.GetBool("strict-enrichment"),
		MaxAttempts:      v.GetInt("max-attempts"),
		RetryDelay:       v.GetDuration("retry-delay"),
		CallTimeout:      v.GetDuration("call-timeout"),
		Storage: Storage{
			Backend:            strings.ToLower(strings.TrimSpace(v.GetString("store"))),
			DBHost:             v.GetString("db-host"),
			DBPort:             v.GetInt("db-port"),
			DBUser:             v.GetString("db-user"),
			DBPassword:         v.GetString("db-password"),
			DBName:             v.GetString("db-name"),
			DBSSLMode:          v.GetString("db-sslmode"),
			PgBouncer:          v.GetBool("pgbouncer"),
			Timescale:          v.GetBool("timescale"),
			DuckDBPath:         v.GetString("duckdb-path"),
			MotherDuckToken:    v.GetString("motherduck-token"),
			MotherDuckDatabase: v.GetString("motherduck-database"),
		},
		Transfers: Transfers{
			TokenContract: v.GetString("token-contract"),
			HubAddress:    v.GetString("hub-address"),
			Symbol:        v.GetString("symbol"),
			HolderRows:    v.GetInt("holder-rows"),
			TransferRows:  v.GetInt("transfer-rows"),
			MaxPages:      v.GetInt("max-pages"),
		},
		WatermarkFile:  v.GetString("watermark-file"),
		FailuresOut:    v.GetString("failures-out"),
		MetricsPushURL: v.GetString("metrics-push-url"),
		Interval:       v.GetDuration("interval"),
		LogLevel:       v.GetString("log-level"),
	}

	return cfg, nil
}

// NodeURL returns the RPC endpoint with the provider API key attached.
func (c Config) NodeURL() (string, error) {
	u, err := url.Parse(c.RPCURL)
	if err != nil {
		return "", fmt.Errorf("parse rpc url: %w", err)
	}
	if c.NodeAPIKey != "" {
		q := u.Query()
		q.Set("apikey", c.NodeAPIKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// PostgresDSN builds a postgres connection URL from the discrete parameters.
func (s Storage) PostgresDSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(s.DBUser, s.DBPassword),
		Host:   s.DBHost + ":" + strconv.Itoa(s.DBPort),
		Path:   "/" + s.DBName,
	}
	if s.DBSSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{s.DBSSLMode}}.Encode()
	}
	return u.String()
}

// DuckDBDSN returns a MotherDuck DSN when a token is configured, otherwise the local path.
func (s Storage) DuckDBDSN() string {
	if s.MotherDuckToken != "" {
		return fmt.Sprintf("md:%s?motherduck_token=%s", s.MotherDuckDatabase, url.QueryEscape(s.MotherDuckToken))
	}
	return s.DuckDBPath
}

// Redacted describes the storage target without credentials.
func (s Storage) Redacted() string {
	switch s.Backend {
	case BackendPostgres:
		return fmt.Sprintf("postgres://***@%s:%d/%s", s.DBHost, s.DBPort, s.DBName)
	case BackendDuckDB:
		if s.MotherDuckToken != "" {
			return "md:" + s.MotherDuckDatabase
		}
		return s.DuckDBPath
	default:
		return s.Backend
	}
}
