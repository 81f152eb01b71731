// Package storage defines the sinks the pipelines write to.
package storage

import (
	"context"

	"publishScope/internal/model"
)

// PublishLoader persists publish records with a do-nothing upsert on transaction_hash.
type PublishLoader interface {
	EnsurePublishesSchema(ctx context.Context) error
	// LoadPublishes returns the number of rows actually inserted.
	LoadPublishes(ctx context.Context, records []model.PublishRecord) (int64, error)
}

// TransferLoader persists publisher transfers keyed by (hash, create_at).
type TransferLoader interface {
	EnsureTransfersSchema(ctx context.Context) error
	LoadTransfers(ctx context.Context, transfers []model.PublisherTransfer) (int64, error)
}

// WatermarkStore persists the highest block already committed.
type WatermarkStore interface {
	LoadWatermark(ctx context.Context) (uint64, bool, error)
	SaveWatermark(ctx context.Context, block uint64) error
}
