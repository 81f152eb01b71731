// Package duckdb persists publishes into a local DuckDB file or MotherDuck.
package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	duckdbdrv "github.com/duckdb/duckdb-go/v2"

	"publishScope/internal/model"
	"publishScope/internal/storage"
)

const defaultStateName = "publishes"

// Store is a DuckDB-backed loader and watermark store.
type Store struct {
	db        *sql.DB
	stateName string
}

var (
	_ storage.PublishLoader  = (*Store)(nil)
	_ storage.TransferLoader = (*Store)(nil)
	_ storage.WatermarkStore = (*Store)(nil)
)

// Open connects to dsn: a file path, "" for in-memory, or md:<db>?motherduck_token=...
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open duckdb: %v", model.ErrStorageUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping duckdb: %v", model.ErrStorageUnavailable, err)
	}
	return &Store{db: db, stateName: defaultStateName}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const createPublishes = `
	CREATE TABLE IF NOT EXISTS publishes (
		message VARCHAR,
		asset_id VARCHAR,
		block_number BIGINT,
		time_asset_created TIMESTAMP,
		time_of_transaction TIMESTAMP,
		trac_price DECIMAL(38,18),
		epochs_number INTEGER,
		epoch_length_days DECIMAL(38,18),
		publisher_address VARCHAR,
		sent_address VARCHAR,
		transaction_hash VARCHAR PRIMARY KEY,
		block_hash VARCHAR
	)`

const createTransfers = `
	CREATE TABLE IF NOT EXISTS publisher_transfers (
		hash VARCHAR NOT NULL,
		create_at TIMESTAMP NOT NULL,
		value DECIMAL(38,18),
		symbol VARCHAR,
		pubber VARCHAR,
		PRIMARY KEY (hash, create_at)
	)`

const createState = `
	CREATE TABLE IF NOT EXISTS pipeline_state (
		name VARCHAR PRIMARY KEY,
		last_processed_block BIGINT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`

func (s *Store) EnsurePublishesSchema(ctx context.Context) error {
	return s.ensureTable(ctx, storage.PublishesTable, storage.PublishesColumns, createPublishes)
}

func (s *Store) EnsureTransfersSchema(ctx context.Context) error {
	return s.ensureTable(ctx, storage.TransfersTable, storage.TransfersColumns, createTransfers)
}

func (s *Store) ensureTable(ctx context.Context, table string, expected []storage.Column, ddl string) error {
	actual, err := s.columns(ctx, table)
	if err != nil {
		return err
	}
	if err := storage.CheckColumns(table, expected, actual); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return classify("create "+table, err)
	}
	return nil
}

func (s *Store) columns(ctx context.Context, table string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = ?
	`, table)
	if err != nil {
		return nil, classify("inspect "+table, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, classify("scan columns", err)
		}
		out[strings.ToLower(name)] = dataType
	}
	return out, classify("read columns", rows.Err())
}

// LoadPublishes inserts records in one transaction and returns how many rows
// were new.
func (s *Store) LoadPublishes(ctx context.Context, records []model.PublishRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`
		INSERT INTO publishes (%s)
		VALUES (?, ?, ?, ?, ?, CAST(? AS DECIMAL(38,18)), ?, CAST(? AS DECIMAL(38,18)), ?, ?, ?, ?)
		ON CONFLICT (transaction_hash) DO NOTHING
	`, storage.ColumnNames(storage.PublishesColumns))

	return s.insert(ctx, storage.PublishesTable, query, len(records), func(i int) []interface{} {
		r := records[i]
		return []interface{}{
			r.Message,
			r.AssetID,
			int64(r.BlockNumber),
			r.TimeAssetCreated.UTC(),
			r.TimeOfTransaction.UTC(),
			r.TracPrice.String(),
			int64(r.EpochsNumber),
			r.EpochLengthDays.String(),
			r.PublisherAddress,
			r.SentAddress,
			r.TransactionHash,
			r.BlockHash,
		}
	})
}

func (s *Store) LoadTransfers(ctx context.Context, transfers []model.PublisherTransfer) (int64, error) {
	if len(transfers) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`
		INSERT INTO publisher_transfers (%s)
		VALUES (?, ?, CAST(? AS DECIMAL(38,18)), ?, ?)
		ON CONFLICT (hash, create_at) DO NOTHING
	`, storage.ColumnNames(storage.TransfersColumns))

	return s.insert(ctx, storage.TransfersTable, query, len(transfers), func(i int) []interface{} {
		t := transfers[i]
		return []interface{}{t.Hash, t.CreateAt.UTC(), t.Value.String(), t.Symbol, t.Pubber}
	})
}

// insert counts the table before and after so the result only includes rows
// that did not conflict.
func (s *Store) insert(ctx context.Context, table, query string, n int, args func(int) []interface{}) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify("begin", err)
	}
	defer tx.Rollback()

	countQuery := "SELECT count(*) FROM " + table
	var before, after int64
	if err := tx.QueryRowContext(ctx, countQuery).Scan(&before); err != nil {
		return 0, classify("count "+table, err)
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, classify("prepare insert", err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return 0, classify("insert into "+table, err)
		}
	}

	if err := tx.QueryRowContext(ctx, countQuery).Scan(&after); err != nil {
		return 0, classify("count "+table, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, classify("commit", err)
	}
	return after - before, nil
}

// LoadWatermark returns the stored watermark, falling back to MAX(block_number).
func (s *Store) LoadWatermark(ctx context.Context) (uint64, bool, error) {
	if _, err := s.db.ExecContext(ctx, createState); err != nil {
		return 0, false, classify("create pipeline_state", err)
	}

	var block int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_processed_block FROM pipeline_state WHERE name = ?`, s.stateName).Scan(&block)
	if err == nil {
		return uint64(block), true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, classify("load watermark", err)
	}

	cols, err := s.columns(ctx, storage.PublishesTable)
	if err != nil {
		return 0, false, err
	}
	if len(cols) == 0 {
		return 0, false, nil
	}

	var maxBlock sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(block_number) FROM publishes`).Scan(&maxBlock); err != nil {
		return 0, false, classify("max block", err)
	}
	if !maxBlock.Valid {
		return 0, false, nil
	}
	return uint64(maxBlock.Int64), true, nil
}

func (s *Store) SaveWatermark(ctx context.Context, block uint64) error {
	if _, err := s.db.ExecContext(ctx, createState); err != nil {
		return classify("create pipeline_state", err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_state (name, last_processed_block, updated_at)
		VALUES (?, ?, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = EXCLUDED.updated_at
	`, s.stateName, int64(block))
	return classify("save watermark", err)
}

// classify marks connection, network and IO failures as ErrStorageUnavailable.
// Constraint, conversion and catalog errors are returned unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", model.ErrStorageUnavailable, op, err)
	}

	var dbErr *duckdbdrv.Error
	if errors.As(err, &dbErr) && connectionError(dbErr.Type) {
		return fmt.Errorf("%w: %s: %v", model.ErrStorageUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func connectionError(t duckdbdrv.ErrorType) bool {
	switch t {
	case duckdbdrv.ErrorTypeConnection,
		duckdbdrv.ErrorTypeNetwork,
		duckdbdrv.ErrorTypeIO,
		duckdbdrv.ErrorTypeHTTP:
		return true
	default:
		return false
	}
}
