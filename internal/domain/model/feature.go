package model

// NeutralHistoryFeature is used for history-derived features when no
// historical corpus is available.
const NeutralHistoryFeature = 0.5

// FeatureVector is the numeric projection of one transaction. It is
// recomputed for every analysis and never persisted.
type FeatureVector struct {
	TransactionID        string  `json:"transaction_id"`
	LogAmount            float64 `json:"log_amount"`
	Hour                 float64 `json:"hour"`
	Weekday              float64 `json:"weekday"`
	CounterpartyFreq     float64 `json:"counterparty_freq"`
	Velocity             float64 `json:"velocity"`
	HistoricalAmountRank float64 `json:"historical_amount_rank"`
}
