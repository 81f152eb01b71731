package model

// StatusSuccess is the explorer message that marks a usable transaction.
const StatusSuccess = "Success"

// Enrichment is the explorer view of a transaction.
type Enrichment struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	TxHash    string `json:"tx_hash"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// Successful reports whether the explorer marked the transaction as successful.
func (e Enrichment) Successful() bool {
	return e.Message == StatusSuccess
}
