package model

// EnrichmentFailure records a transaction hash that produced no enrichment.
type EnrichmentFailure struct {
	TxHash  string `json:"tx_hash"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
	At      string `json:"at"`
}
