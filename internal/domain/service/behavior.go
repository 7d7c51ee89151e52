package service

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/bibbank/risk-engine/internal/domain/model"
	"github.com/bibbank/risk-engine/internal/domain/valueobject"
)

// Deviation is one behavioural test that exceeded its threshold.
type Deviation struct {
	Type     valueobject.PatternType
	Severity valueobject.Severity
	Current  float64
	Baseline float64
	Ratio    float64
}

// BehaviorReport is the output of the behavioural baseline manager.
type BehaviorReport struct {
	Baseline   model.BehaviorBaseline
	Deviations []Deviation
	Stats      model.BatchStats
	Score      int
	ColdStart  bool
}

// BehaviorManager compares a batch against a subject's smoothed baseline
// and computes the next baseline.
type BehaviorManager struct {
	cfg            BehaviorConfig
	microThreshold decimal.Decimal
	roundUnit      decimal.Decimal
	roundMinimum   decimal.Decimal
}

// NewBehaviorManager creates a BehaviorManager. The micro and round
// definitions are shared with the pattern detectors.
func NewBehaviorManager(cfg EngineConfig) *BehaviorManager {
	return &BehaviorManager{
		cfg:            cfg.Behavior,
		microThreshold: cfg.Micro.MicroThreshold,
		roundUnit:      cfg.AmountPatterns.RoundUnit,
		roundMinimum:   cfg.AmountPatterns.RoundMinimum,
	}
}

// Stats summarises the batch. Frequency is the mean trailing-24h count of
// same-subject transactions, taken from the velocity features.
func (m *BehaviorManager) Stats(batch []model.Transaction, features []model.FeatureVector) model.BatchStats {
	if len(batch) == 0 {
		return model.BatchStats{}
	}

	var micro, large, round int
	sum := decimal.Zero
	for _, t := range batch {
		amount := t.Amount()
		sum = sum.Add(amount.Abs())

		if model.IsMicroAmount(amount, m.microThreshold) {
			micro++
		}
		if amount.Abs().GreaterThanOrEqual(m.cfg.LargeAmount) {
			large++
		}
		if amount.IsPositive() && amount.GreaterThanOrEqual(m.roundMinimum) && amount.Mod(m.roundUnit).IsZero() {
			round++
		}
	}

	frequency := 0.0
	if len(features) > 0 {
		velocities := make([]float64, len(features))
		for i, f := range features {
			velocities[i] = f.Velocity
		}
		frequency = stat.Mean(velocities, nil) * 24
	}

	n := float64(len(batch))
	return model.BatchStats{
		Count:         len(batch),
		AverageAmount: sum.Div(decimal.NewFromInt(int64(len(batch)))).InexactFloat64(),
		Frequency:     frequency,
		PatternMix: model.PatternMix{
			Micro: float64(micro) / n,
			Large: float64(large) / n,
			Round: float64(round) / n,
		},
	}
}

// Analyze tests stats against baseline. An unseeded baseline is a cold
// start and yields no deviations.
func (m *BehaviorManager) Analyze(stats model.BatchStats, baseline model.BehaviorBaseline) BehaviorReport {
	report := BehaviorReport{Stats: stats, Baseline: baseline}
	if baseline.IsZero() {
		report.ColdStart = true
		return report
	}

	// Frequency deviation.
	if ratio, ok := relativeDeviation(stats.Frequency, baseline.Frequency); ok && ratio > m.cfg.FrequencyAnomaly {
		sev := valueobject.SeverityMedium
		if ratio > m.cfg.FrequencyHigh {
			sev = valueobject.SeverityHigh
		}
		report.Deviations = append(report.Deviations, Deviation{
			Type: valueobject.PatternFrequencyDeviation, Severity: sev,
			Current: stats.Frequency, Baseline: baseline.Frequency, Ratio: ratio,
		})
	}

	// Amount deviation.
	if ratio, ok := relativeDeviation(stats.AverageAmount, baseline.AverageAmount); ok && ratio > m.cfg.AmountAnomaly {
		sev := valueobject.SeverityMedium
		if ratio > m.cfg.AmountHigh {
			sev = valueobject.SeverityHigh
		}
		report.Deviations = append(report.Deviations, Deviation{
			Type: valueobject.PatternAmountDeviation, Severity: sev,
			Current: stats.AverageAmount, Baseline: baseline.AverageAmount, Ratio: ratio,
		})
	}

	// Pattern-mix deviation.
	if ratio, ok := mixDeviation(stats.PatternMix, baseline.PatternMix); ok && ratio > m.cfg.PatternMixAnomaly {
		sev := valueobject.SeverityLow
		if ratio > m.cfg.PatternMixMedium {
			sev = valueobject.SeverityMedium
		}
		report.Deviations = append(report.Deviations, Deviation{
			Type: valueobject.PatternMixDeviation, Severity: sev,
			Current: stats.PatternMix.Sum(), Baseline: baseline.PatternMix.Sum(), Ratio: ratio,
		})
	}

	score := 0
	for _, d := range report.Deviations {
		score += m.cfg.SeverityWeights.For(d.Severity)
	}
	report.Score = clampScore(score)

	return report
}

// Update blends stats into baseline with the configured smoothing factor.
func (m *BehaviorManager) Update(baseline model.BehaviorBaseline, stats model.BatchStats, now time.Time) model.BehaviorBaseline {
	return baseline.Blend(stats, m.cfg.Alpha, now)
}

// relativeDeviation returns |current-baseline|/baseline; ok is false when
// the baseline is zero and the test must be skipped.
func relativeDeviation(current, baseline float64) (float64, bool) {
	if baseline == 0 {
		return 0, false
	}
	return math.Abs(current-baseline) / baseline, true
}

// mixDeviation averages the relative deviation of every counter with a
// non-zero baseline.
func mixDeviation(current, baseline model.PatternMix) (float64, bool) {
	pairs := [][2]float64{
		{current.Micro, baseline.Micro},
		{current.Large, baseline.Large},
		{current.Round, baseline.Round},
	}
	sum, n := 0.0, 0
	for _, p := range pairs {
		if r, ok := relativeDeviation(p[0], p[1]); ok {
			sum += r
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// Patterns renders the deviations as detected patterns.
func (r BehaviorReport) Patterns() []model.DetectedPattern {
	patterns := make([]model.DetectedPattern, 0, len(r.Deviations))
	for _, d := range r.Deviations {
		patterns = append(patterns, model.DetectedPattern{
			Type: d.Type,
			Description: fmt.Sprintf("%s: current %.2f vs baseline %.2f (%.0f%% deviation)",
				d.Type.Label(), d.Current, d.Baseline, d.Ratio*100),
			Severity: d.Severity,
			Evidence: map[string]any{
				"current":   d.Current,
				"baseline":  d.Baseline,
				"deviation": d.Ratio,
			},
		})
	}
	return patterns
}
