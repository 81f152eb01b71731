package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transfer is an ERC-20 transfer as reported by the explorer.
type Transfer struct {
	Hash     string `json:"hash"`
	CreateAt int64  `json:"create_at"`
	From     string `json:"from"`
	To       string `json:"to"`
	Value    string `json:"value"`
	Symbol   string `json:"symbol"`
	Contract string `json:"contract"`
	Decimals int    `json:"decimals"`
}

// PublisherTransfer is one row of the publisher_transfers table.
type PublisherTransfer struct {
	Hash     string          `json:"hash"`
	CreateAt time.Time       `json:"create_at"`
	Value    decimal.Decimal `json:"value"`
	Symbol   string          `json:"symbol"`
	Pubber   string          `json:"pubber"`
}
