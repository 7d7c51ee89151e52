package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxAbsAmount bounds the magnitude of an accepted amount. Larger values
// overflow the float statistics and cannot be encoded in a result.
var MaxAbsAmount = decimal.New(1, 15)

// Transaction is a single financial movement submitted for analysis.
// It is immutable once constructed.
type Transaction struct {
	timestamp    time.Time
	amount       decimal.Decimal
	metadata     map[string]string
	id           string
	counterparty string
	category     string
}

// TransactionInput carries the raw fields of a transaction before validation.
// A zero Timestamp means "unknown" and is replaced by the analysis time.
type TransactionInput struct {
	Timestamp    time.Time
	Amount       decimal.Decimal
	Metadata     map[string]string
	ID           string
	Counterparty string
	Category     string
}

// NewTransaction validates input and builds an immutable Transaction.
// index is the position in the submitted batch and is used for error
// reporting and for synthesising an ID when none was supplied.
func NewTransaction(in TransactionInput, index int, now time.Time) (Transaction, error) {
	counterparty := strings.TrimSpace(in.Counterparty)
	if counterparty == "" {
		return Transaction{}, &InputError{Index: index, Field: "counterparty", Reason: "is required"}
	}

	if in.Amount.Abs().GreaterThan(MaxAbsAmount) {
		return Transaction{}, &InputError{Index: index, Field: "amount", Reason: "exceeds the supported magnitude of 1e15"}
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = fmt.Sprintf("txn_%d", index)
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = now
	}

	var md map[string]string
	if len(in.Metadata) > 0 {
		md = make(map[string]string, len(in.Metadata))
		for k, v := range in.Metadata {
			md[k] = v
		}
	}

	return Transaction{
		id:           id,
		timestamp:    ts.UTC(),
		amount:       in.Amount,
		counterparty: counterparty,
		category:     strings.TrimSpace(in.Category),
		metadata:     md,
	}, nil
}

// NewBatch validates every input and returns the ordered batch. An empty
// batch is rejected.
func NewBatch(inputs []TransactionInput, now time.Time) ([]Transaction, error) {
	if len(inputs) == 0 {
		return nil, NewBatchError("transactions", "batch is empty")
	}

	batch := make([]Transaction, 0, len(inputs))
	for i, in := range inputs {
		txn, err := NewTransaction(in, i, now)
		if err != nil {
			return nil, err
		}
		batch = append(batch, txn)
	}
	return batch, nil
}

func (t Transaction) ID() string              { return t.id }
func (t Transaction) Timestamp() time.Time    { return t.timestamp }
func (t Transaction) Amount() decimal.Decimal { return t.amount }
func (t Transaction) Counterparty() string    { return t.counterparty }
func (t Transaction) Category() string        { return t.category }
func (t Transaction) AmountFloat() float64    { return t.amount.InexactFloat64() }

// Metadata returns a copy of the transaction metadata.
func (t Transaction) Metadata() map[string]string {
	if t.metadata == nil {
		return nil
	}
	md := make(map[string]string, len(t.metadata))
	for k, v := range t.metadata {
		md[k] = v
	}
	return md
}

type transactionJSON struct {
	Timestamp    time.Time         `json:"timestamp"`
	Amount       decimal.Decimal   `json:"amount"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	ID           string            `json:"id"`
	Counterparty string            `json:"counterparty"`
	Category     string            `json:"category,omitempty"`
}

// MarshalJSON encodes the transaction for corpus storage.
func (t Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(transactionJSON{
		Timestamp:    t.timestamp,
		Amount:       t.amount,
		Metadata:     t.metadata,
		ID:           t.id,
		Counterparty: t.counterparty,
		Category:     t.category,
	})
}

// UnmarshalJSON decodes a stored transaction without re-validating it.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var raw transactionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = Transaction{
		timestamp:    raw.Timestamp,
		amount:       raw.Amount,
		metadata:     raw.Metadata,
		id:           raw.ID,
		counterparty: raw.Counterparty,
		category:     raw.Category,
	}
	return nil
}
