package model

import (
	"math/big"
	"strings"
)

// RawEvent is one decoded ServiceAgreementV1Created log.
type RawEvent struct {
	AssetContract   string   `json:"asset_contract"`
	TokenID         *big.Int `json:"token_id"`
	StartTime       uint64   `json:"start_time"`
	EpochsNumber    uint64   `json:"epochs_number"`
	EpochLength     *big.Int `json:"epoch_length"`
	TokenAmount     *big.Int `json:"token_amount"`
	TxHash          string   `json:"tx_hash"`
	BlockHash       string   `json:"block_hash"`
	BlockNumber     uint64   `json:"block_number"`
	LogIndex        uint64   `json:"log_index"`
	ContractAddress string   `json:"contract_address"`
}

// NormalizeHash lower-cases a hex hash so that node and explorer values join.
func NormalizeHash(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}
