package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultCorpusCap bounds the historical corpus.
const DefaultCorpusCap = 10000

// CorpusEntry is one past analysis retained for context.
type CorpusEntry struct {
	Timestamp    time.Time      `json:"timestamp"`
	SubjectID    string         `json:"subject_id"`
	TenantID     uuid.UUID      `json:"tenant_id"`
	Transactions []Transaction  `json:"transactions"`
	Result       AnalysisResult `json:"result"`
}

// HistoricalCorpus is an append-only, FIFO-evicted sequence of corpus
// entries ordered oldest first. It is not safe for concurrent use; stores
// wrap it with their own locking.
type HistoricalCorpus struct {
	entries  []CorpusEntry
	capacity int
}

// NewHistoricalCorpus returns an empty corpus bounded to capacity entries.
// A non-positive capacity falls back to DefaultCorpusCap.
func NewHistoricalCorpus(capacity int) *HistoricalCorpus {
	if capacity <= 0 {
		capacity = DefaultCorpusCap
	}
	return &HistoricalCorpus{capacity: capacity}
}

// Append adds an entry and evicts the oldest entries past the cap. It
// returns the number of evicted entries.
func (c *HistoricalCorpus) Append(entry CorpusEntry) int {
	c.entries = append(c.entries, entry)
	evicted := len(c.entries) - c.capacity
	if evicted <= 0 {
		return 0
	}
	kept := make([]CorpusEntry, c.capacity)
	copy(kept, c.entries[evicted:])
	c.entries = kept
	return evicted
}

// Len returns the number of retained entries.
func (c *HistoricalCorpus) Len() int { return len(c.entries) }

// Cap returns the configured capacity.
func (c *HistoricalCorpus) Cap() int { return c.capacity }

// Recent returns up to limit entries, newest first.
func (c *HistoricalCorpus) Recent(limit int) []CorpusEntry {
	if limit <= 0 || limit > len(c.entries) {
		limit = len(c.entries)
	}
	out := make([]CorpusEntry, 0, limit)
	for i := len(c.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, c.entries[i])
	}
	return out
}

// CorpusAmounts flattens entries into at most limit amounts, taking the
// newest entries first.
func CorpusAmounts(entries []CorpusEntry, limit int) []float64 {
	var amounts []float64
	for _, e := range entries {
		for _, t := range e.Transactions {
			if limit > 0 && len(amounts) >= limit {
				return amounts
			}
			amounts = append(amounts, t.AmountFloat())
		}
	}
	return amounts
}

// SubjectTimestamps returns the timestamps of every corpus transaction
// belonging to subjectID within tenantID.
func SubjectTimestamps(entries []CorpusEntry, tenantID uuid.UUID, subjectID string) []time.Time {
	var ts []time.Time
	for _, e := range entries {
		if e.TenantID != tenantID || e.SubjectID != subjectID {
			continue
		}
		for _, t := range e.Transactions {
			ts = append(ts, t.Timestamp())
		}
	}
	return ts
}
