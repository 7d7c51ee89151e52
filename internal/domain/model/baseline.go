package model

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// PatternMix holds the share of a batch falling into each tracked
// categorical counter.
type PatternMix struct {
	Micro float64 `json:"micro"`
	Large float64 `json:"large"`
	Round float64 `json:"round"`
}

// Sum returns the sum of all counters.
func (m PatternMix) Sum() float64 {
	return m.Micro + m.Large + m.Round
}

// BatchStats is the direct behavioural summary of one batch.
type BatchStats struct {
	AverageAmount float64    `json:"average_amount"`
	Frequency     float64    `json:"frequency"`
	PatternMix    PatternMix `json:"pattern_mix"`
	Count         int        `json:"count"`
}

// BehaviorBaseline is the exponentially smoothed profile of one subject
// within one tenant.
type BehaviorBaseline struct {
	LastUpdated   time.Time  `json:"last_updated"`
	SubjectID     string     `json:"subject_id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	PatternMix    PatternMix `json:"pattern_mix"`
	AverageAmount float64    `json:"average_amount"`
	Frequency     float64    `json:"frequency"`
	UpdateCount   int        `json:"update_count"`
}

// NewBaselineFromStats seeds a baseline from the first batch seen for a
// subject.
func NewBaselineFromStats(tenantID uuid.UUID, subjectID string, stats BatchStats, now time.Time) BehaviorBaseline {
	return BehaviorBaseline{
		TenantID:      tenantID,
		SubjectID:     subjectID,
		AverageAmount: nonNegative(stats.AverageAmount),
		Frequency:     nonNegative(stats.Frequency),
		PatternMix: PatternMix{
			Micro: nonNegative(stats.PatternMix.Micro),
			Large: nonNegative(stats.PatternMix.Large),
			Round: nonNegative(stats.PatternMix.Round),
		},
		UpdateCount: 1,
		LastUpdated: now,
	}
}

// IsZero reports whether the baseline has never been seeded.
func (b BehaviorBaseline) IsZero() bool {
	return b.UpdateCount == 0
}

// Blend applies baseline_new = alpha*stats + (1-alpha)*baseline_old and
// returns the result. An unseeded baseline is cold-started from stats.
func (b BehaviorBaseline) Blend(stats BatchStats, alpha float64, now time.Time) BehaviorBaseline {
	if b.IsZero() {
		return NewBaselineFromStats(b.TenantID, b.SubjectID, stats, now)
	}
	return BehaviorBaseline{
		TenantID:      b.TenantID,
		SubjectID:     b.SubjectID,
		AverageAmount: smooth(b.AverageAmount, stats.AverageAmount, alpha),
		Frequency:     smooth(b.Frequency, stats.Frequency, alpha),
		PatternMix: PatternMix{
			Micro: smooth(b.PatternMix.Micro, stats.PatternMix.Micro, alpha),
			Large: smooth(b.PatternMix.Large, stats.PatternMix.Large, alpha),
			Round: smooth(b.PatternMix.Round, stats.PatternMix.Round, alpha),
		},
		UpdateCount: b.UpdateCount + 1,
		LastUpdated: now,
	}
}

// smooth computes old + alpha*(current-old), which equals
// alpha*current + (1-alpha)*old and leaves old untouched when they agree.
func smooth(old, current, alpha float64) float64 {
	return nonNegative(old + alpha*(current-old))
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}
