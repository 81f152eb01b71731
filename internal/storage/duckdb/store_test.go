package duckdb

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	duckdbdrv "github.com/duckdb/duckdb-go/v2"
	"github.com/shopspring/decimal"

	"publishScope/internal/model"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func publishRecord(hash string, block uint64) model.PublishRecord {
	return model.PublishRecord{
		Message:           model.StatusSuccess,
		AssetID:           "42",
		BlockNumber:       block,
		TimeAssetCreated:  time.Unix(1700000000, 0).UTC(),
		TimeOfTransaction: time.Unix(1700000100, 0).UTC(),
		TracPrice:         decimal.RequireFromString("5.000000000000000001"),
		EpochsNumber:      2,
		EpochLengthDays:   decimal.NewFromInt(30),
		PublisherAddress:  "0x1",
		SentAddress:       "0x2",
		TransactionHash:   hash,
		BlockHash:         "0xblock",
	}
}

func TestLoadPublishesIdempotent(t *testing.T) {
	ctx := context.Background()
	store := openMemory(t)
	if err := store.EnsurePublishesSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := store.EnsurePublishesSchema(ctx); err != nil {
		t.Fatalf("ensure schema twice: %v", err)
	}

	records := []model.PublishRecord{publishRecord("0xaa", 100), publishRecord("0xbb", 101)}
	inserted, err := store.LoadPublishes(ctx, records)
	if err != nil || inserted != 2 {
		t.Fatalf("first load: inserted=%d err=%v", inserted, err)
	}

	again := append(records, publishRecord("0xcc", 102))
	inserted, err = store.LoadPublishes(ctx, again)
	if err != nil || inserted != 1 {
		t.Fatalf("second load: inserted=%d err=%v", inserted, err)
	}

	var count int
	if err := store.db.QueryRow(`SELECT count(*) FROM publishes`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 rows, got %d", count)
	}

	var price string
	if err := store.db.QueryRow(`SELECT CAST(trac_price AS VARCHAR) FROM publishes WHERE transaction_hash = '0xaa'`).Scan(&price); err != nil {
		t.Fatalf("read price: %v", err)
	}
	if !decimal.RequireFromString(price).Equal(decimal.RequireFromString("5.000000000000000001")) {
		t.Fatalf("price lost precision: %s", price)
	}
}

func TestLoadTransfersIdempotent(t *testing.T) {
	ctx := context.Background()
	store := openMemory(t)
	if err := store.EnsureTransfersSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	transfers := []model.PublisherTransfer{
		{Hash: "0x1", CreateAt: time.Unix(1700000000, 0).UTC(), Value: decimal.RequireFromString("1.5"), Symbol: "TRAC", Pubber: "0xp"},
		{Hash: "0x1", CreateAt: time.Unix(1700000001, 0).UTC(), Value: decimal.NewFromInt(2), Symbol: "TRAC", Pubber: "0xp"},
	}
	if n, err := store.LoadTransfers(ctx, transfers); err != nil || n != 2 {
		t.Fatalf("first load: %d %v", n, err)
	}
	if n, err := store.LoadTransfers(ctx, transfers); err != nil || n != 0 {
		t.Fatalf("second load: %d %v", n, err)
	}
}

func TestWatermark(t *testing.T) {
	ctx := context.Background()
	store := openMemory(t)

	if _, ok, err := store.LoadWatermark(ctx); err != nil || ok {
		t.Fatalf("expected no watermark: ok=%v err=%v", ok, err)
	}

	if err := store.EnsurePublishesSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if _, err := store.LoadPublishes(ctx, []model.PublishRecord{publishRecord("0xaa", 250)}); err != nil {
		t.Fatalf("load: %v", err)
	}
	block, ok, err := store.LoadWatermark(ctx)
	if err != nil || !ok || block != 250 {
		t.Fatalf("fallback watermark mismatch: %d %v %v", block, ok, err)
	}

	if err := store.SaveWatermark(ctx, 300); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveWatermark(ctx, 310); err != nil {
		t.Fatalf("save again: %v", err)
	}
	block, ok, err = store.LoadWatermark(ctx)
	if err != nil || !ok || block != 310 {
		t.Fatalf("stored watermark mismatch: %d %v %v", block, ok, err)
	}
}

func TestSchemaConflict(t *testing.T) {
	ctx := context.Background()
	store := openMemory(t)
	if _, err := store.db.Exec(`CREATE TABLE publishes (transaction_hash VARCHAR PRIMARY KEY, block_number VARCHAR)`); err != nil {
		t.Fatalf("create conflicting table: %v", err)
	}

	err := store.EnsurePublishesSchema(ctx)
	if !errors.Is(err, model.ErrSchemaConflict) {
		t.Fatalf("expected schema conflict, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	if classify("noop", nil) != nil {
		t.Fatalf("nil should stay nil")
	}

	for _, err := range []error{
		driver.ErrBadConn,
		context.DeadlineExceeded,
		&duckdbdrv.Error{Type: duckdbdrv.ErrorTypeConnection, Msg: "Connection Error: lost"},
		&duckdbdrv.Error{Type: duckdbdrv.ErrorTypeIO, Msg: "IO Error: could not write"},
		&duckdbdrv.Error{Type: duckdbdrv.ErrorTypeHTTP, Msg: "HTTP Error: 503"},
	} {
		if got := classify("insert", err); !errors.Is(got, model.ErrStorageUnavailable) {
			t.Fatalf("%v should be storage unavailable: %v", err, got)
		}
	}

	constraint := classify("insert", &duckdbdrv.Error{Type: duckdbdrv.ErrorTypeConstraint, Msg: "Constraint Error: duplicate key"})
	if errors.Is(constraint, model.ErrStorageUnavailable) {
		t.Fatalf("constraint errors are not transient: %v", constraint)
	}
	var dbErr *duckdbdrv.Error
	if !errors.As(constraint, &dbErr) || dbErr.Type != duckdbdrv.ErrorTypeConstraint {
		t.Fatalf("driver error should stay inspectable: %v", constraint)
	}

	if got := classify("insert", context.Canceled); errors.Is(got, model.ErrStorageUnavailable) {
		t.Fatalf("cancellation is not a storage failure: %v", got)
	}
}

func TestConversionErrorNotRetryable(t *testing.T) {
	ctx := context.Background()
	store := openMemory(t)
	if _, err := store.db.ExecContext(ctx, createState); err != nil {
		t.Fatalf("create state: %v", err)
	}

	_, err := store.db.ExecContext(ctx,
		`INSERT INTO pipeline_state VALUES ('publishes', CAST('not a block' AS BIGINT), now())`)
	if err == nil {
		t.Fatalf("expected conversion error")
	}
	if got := classify("save watermark", err); errors.Is(got, model.ErrStorageUnavailable) {
		t.Fatalf("conversion errors are not transient: %v", got)
	}
}
