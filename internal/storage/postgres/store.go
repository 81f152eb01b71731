// Package postgres persists publishes and publisher transfers in Postgres or TimescaleDB.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"publishScope/internal/model"
	"publishScope/internal/storage"
)

const (
	defaultBatchSize = 500
	defaultStateName = "publishes"
)

// Options configures a Store.
type Options struct {
	DSN string
	// PgBouncer switches to the simple query protocol so no prepared
	// statements survive across pooled server connections.
	PgBouncer bool
	Timescale bool
	BatchSize int
	StateName string
}

// Store provides Postgres persistence for the publishes pipelines.
type Store struct {
	pool      *pgxpool.Pool
	timescale bool
	batchSize int
	stateName string
}

var (
	_ storage.PublishLoader  = (*Store)(nil)
	_ storage.TransferLoader = (*Store)(nil)
	_ storage.WatermarkStore = (*Store)(nil)
)

func NewStore(ctx context.Context, opts Options) (*Store, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse pg dsn: %w", err)
	}
	if opts.PgBouncer {
		cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, classify("connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, classify("ping", err)
	}

	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.StateName == "" {
		opts.StateName = defaultStateName
	}
	return &Store{
		pool:      pool,
		timescale: opts.Timescale,
		batchSize: opts.BatchSize,
		stateName: opts.StateName,
	}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const createPublishes = `
	CREATE TABLE IF NOT EXISTS publishes (
		message VARCHAR(100),
		asset_id VARCHAR(100),
		block_number BIGINT,
		time_asset_created TIMESTAMPTZ,
		time_of_transaction TIMESTAMPTZ,
		trac_price NUMERIC,
		epochs_number INTEGER,
		epoch_length_days NUMERIC,
		publisher_address VARCHAR(100),
		sent_address VARCHAR(100),
		transaction_hash VARCHAR(100) PRIMARY KEY,
		block_hash VARCHAR(100)
	)`

const createTransfers = `
	CREATE TABLE IF NOT EXISTS publisher_transfers (
		hash VARCHAR(100) NOT NULL,
		create_at TIMESTAMPTZ NOT NULL,
		value NUMERIC,
		symbol VARCHAR(20),
		pubber VARCHAR(100),
		PRIMARY KEY (hash, create_at)
	)`

const createState = `
	CREATE TABLE IF NOT EXISTS indexer_state (
		name TEXT PRIMARY KEY,
		last_processed_block BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

// EnsurePublishesSchema verifies an existing publishes table and creates it otherwise.
func (s *Store) EnsurePublishesSchema(ctx context.Context) error {
	return s.ensureTable(ctx, storage.PublishesTable, storage.PublishesColumns, createPublishes)
}

// EnsureTransfersSchema creates publisher_transfers and, when enabled, turns it
// into a hypertable partitioned on create_at.
func (s *Store) EnsureTransfersSchema(ctx context.Context) error {
	if err := s.ensureTable(ctx, storage.TransfersTable, storage.TransfersColumns, createTransfers); err != nil {
		return err
	}
	if !s.timescale {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`SELECT create_hypertable('publisher_transfers', 'create_at', if_not_exists => TRUE, migrate_data => TRUE)`)
	return classify("create hypertable", err)
}

func (s *Store) ensureTable(ctx context.Context, table string, expected []storage.Column, ddl string) error {
	actual, err := s.columns(ctx, table)
	if err != nil {
		return err
	}
	if err := storage.CheckColumns(table, expected, actual); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return classify("create "+table, err)
	}
	return nil
}

func (s *Store) columns(ctx context.Context, table string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
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
	return out, classify("inspect "+table, rows.Err())
}

// LoadPublishes inserts records, skipping transaction hashes that already exist.
func (s *Store) LoadPublishes(ctx context.Context, records []model.PublishRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`
		INSERT INTO publishes (%s)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (transaction_hash) DO NOTHING
	`, storage.ColumnNames(storage.PublishesColumns))

	return s.insertBatches(ctx, len(records), func(batch *pgx.Batch, i int) {
		r := records[i]
		batch.Queue(query,
			r.Message,
			r.AssetID,
			int64(r.BlockNumber),
			r.TimeAssetCreated,
			r.TimeOfTransaction,
			numeric(r.TracPrice),
			int64(r.EpochsNumber),
			numeric(r.EpochLengthDays),
			r.PublisherAddress,
			r.SentAddress,
			r.TransactionHash,
			r.BlockHash,
		)
	})
}

// LoadTransfers inserts transfers, skipping (hash, create_at) pairs that already exist.
func (s *Store) LoadTransfers(ctx context.Context, transfers []model.PublisherTransfer) (int64, error) {
	if len(transfers) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`
		INSERT INTO publisher_transfers (%s)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (hash, create_at) DO NOTHING
	`, storage.ColumnNames(storage.TransfersColumns))

	return s.insertBatches(ctx, len(transfers), func(batch *pgx.Batch, i int) {
		t := transfers[i]
		batch.Queue(query, t.Hash, t.CreateAt, numeric(t.Value), t.Symbol, t.Pubber)
	})
}

// insertBatches commits all rows in one transaction and sums affected rows.
func (s *Store) insertBatches(ctx context.Context, n int, queue func(*pgx.Batch, int)) (int64, error) {
	var inserted int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for start := 0; start < n; start += s.batchSize {
			end := start + s.batchSize
			if end > n {
				end = n
			}
			batch := &pgx.Batch{}
			for i := start; i < end; i++ {
				queue(batch, i)
			}

			br := tx.SendBatch(ctx, batch)
			for i := start; i < end; i++ {
				tag, err := br.Exec()
				if err != nil {
					br.Close()
					return err
				}
				inserted += tag.RowsAffected()
			}
			if err := br.Close(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, classify("insert", err)
	}
	return inserted, nil
}

// LoadWatermark returns the stored watermark, falling back to the highest
// block already present in publishes.
func (s *Store) LoadWatermark(ctx context.Context) (uint64, bool, error) {
	if _, err := s.pool.Exec(ctx, createState); err != nil {
		return 0, false, classify("create indexer_state", err)
	}

	var block int64
	err := s.pool.QueryRow(ctx,
		`SELECT last_processed_block FROM indexer_state WHERE name=$1`, s.stateName).Scan(&block)
	if err == nil {
		return uint64(block), true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, classify("load watermark", err)
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT to_regclass('publishes') IS NOT NULL`).Scan(&exists); err != nil {
		return 0, false, classify("lookup publishes", err)
	}
	if !exists {
		return 0, false, nil
	}

	var maxBlock *int64
	if err := s.pool.QueryRow(ctx, `SELECT MAX(block_number) FROM publishes`).Scan(&maxBlock); err != nil {
		return 0, false, classify("max block", err)
	}
	if maxBlock == nil {
		return 0, false, nil
	}
	return uint64(*maxBlock), true, nil
}

// SaveWatermark upserts the watermark row.
func (s *Store) SaveWatermark(ctx context.Context, block uint64) error {
	if _, err := s.pool.Exec(ctx, createState); err != nil {
		return classify("create indexer_state", err)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, s.stateName, int64(block))
	return classify("save watermark", err)
}

func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

// classify maps driver errors onto the pipeline error taxonomy. Server-side
// errors other than connection failures are returned unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, model.ErrSchemaConflict) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if !connectionError(pgErr.Code) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%w: %s: %v", model.ErrStorageUnavailable, op, err)
}

func connectionError(code string) bool {
	switch {
	case strings.HasPrefix(code, "08"):
		return true
	case code == "53300", code == "57P01", code == "57P02", code == "57P03":
		return true
	default:
		return false
	}
}
