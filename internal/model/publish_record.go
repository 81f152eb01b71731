package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PublishRecord is one row of the publishes table.
type PublishRecord struct {
	Message           string          `json:"message"`
	AssetID           string          `json:"asset_id"`
	BlockNumber       uint64          `json:"block_number"`
	TimeAssetCreated  time.Time       `json:"time_asset_created"`
	TimeOfTransaction time.Time       `json:"time_of_transaction"`
	TracPrice         decimal.Decimal `json:"trac_price"`
	EpochsNumber      uint64          `json:"epochs_number"`
	EpochLengthDays   decimal.Decimal `json:"epoch_length_days"`
	PublisherAddress  string          `json:"publisher_address"`
	SentAddress       string          `json:"sent_address"`
	TransactionHash   string          `json:"transaction_hash"`
	BlockHash         string          `json:"block_hash"`
}
