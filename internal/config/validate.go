package config

import (
	"fmt"
	"strings"
)

// Error reports missing or invalid settings detected at startup.
type Error struct {
	Missing []string
	Invalid []string
}

func (e *Error) Error() string {
	parts := make([]string, 0, 2)
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required settings: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid settings: "+strings.Join(e.Invalid, ", "))
	}
	return "configuration error: " + strings.Join(parts, "; ")
}

type checker struct {
	err Error
}

func (c *checker) require(key, value string) {
	if strings.TrimSpace(value) == "" {
		c.err.Missing = append(c.err.Missing, key)
	}
}

func (c *checker) invalid(format string, args ...interface{}) {
	c.err.Invalid = append(c.err.Invalid, fmt.Sprintf(format, args...))
}

func (c *checker) result() error {
	if len(c.err.Missing) == 0 && len(c.err.Invalid) == 0 {
		return nil
	}
	out := c.err
	return &out
}

// ValidatePipeline checks the settings needed by the publishes pipeline.
func (c Config) ValidatePipeline() error {
	var ch checker
	ch.require("rpc", c.RPCURL)
	ch.require("node-api-key", c.NodeAPIKey)
	ch.require("contract", c.Contract)
	ch.require("explorer-url", c.ExplorerURL)
	ch.require("explorer-api-key", c.ExplorerAPIKey)
	if c.Workers < 1 || c.Workers > 32 {
		ch.invalid("workers=%d (want 1..32)", c.Workers)
	}
	if c.BatchSize == 0 {
		ch.invalid("batch-size must be greater than zero")
	}
	if c.MaxAttempts < 1 {
		ch.invalid("max-attempts=%d (want >= 1)", c.MaxAttempts)
	}
	if c.EnrichAttempts < 1 {
		ch.invalid("enrich-attempts=%d (want >= 1)", c.EnrichAttempts)
	}
	if c.CallTimeout <= 0 {
		ch.invalid("call-timeout must be positive")
	}
	c.Storage.check(&ch)
	return ch.result()
}

// ValidateTransfers checks the settings needed by the transfers pipeline.
func (c Config) ValidateTransfers() error {
	var ch checker
	ch.require("explorer-url", c.ExplorerURL)
	ch.require("explorer-api-key", c.ExplorerAPIKey)
	ch.require("token-contract", c.Transfers.TokenContract)
	ch.require("hub-address", c.Transfers.HubAddress)
	if c.Workers < 1 || c.Workers > 32 {
		ch.invalid("workers=%d (want 1..32)", c.Workers)
	}
	if c.Transfers.TransferRows <= 0 || c.Transfers.HolderRows <= 0 {
		ch.invalid("holder-rows and transfer-rows must be positive")
	}
	c.Storage.check(&ch)
	return ch.result()
}

// ValidateStorage checks only the storage settings.
func (c Config) ValidateStorage() error {
	var ch checker
	c.Storage.check(&ch)
	return ch.result()
}

func (s Storage) check(ch *checker) {
	switch s.Backend {
	case BackendPostgres:
		ch.require("db-host", s.DBHost)
		if s.DBPort == 0 {
			ch.err.Missing = append(ch.err.Missing, "db-port")
		}
		ch.require("db-user", s.DBUser)
		ch.require("db-password", s.DBPassword)
		ch.require("db-name", s.DBName)
	case BackendDuckDB:
		if s.MotherDuckToken != "" || s.MotherDuckDatabase != "" {
			ch.require("motherduck-token", s.MotherDuckToken)
			ch.require("motherduck-database", s.MotherDuckDatabase)
		} else {
			ch.require("duckdb-path", s.DuckDBPath)
		}
	default:
		ch.invalid("store=%q (want %s or %s)", s.Backend, BackendPostgres, BackendDuckDB)
	}
}
