package service

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/bibbank/risk-engine/internal/domain/model"
	"github.com/bibbank/risk-engine/internal/domain/valueobject"
)

// AggregateInput carries the channel scores into aggregation.
type AggregateInput struct {
	Pattern          int
	Behavior         int
	Anomaly          int
	TransactionCount int
	// Degraded is set when a detector ran on defaults because its state
	// could not be read.
	Degraded bool
}

// Verdict is the aggregated score triple plus recommendations.
type Verdict struct {
	Recommendations []model.Recommendation
	SubScores       model.SubScores
	OverallScore    int
	Probability     int
	Confidence      int
}

// Aggregator merges channel scores into one weighted verdict.
type Aggregator struct {
	cfg AggregateConfig
}

// NewAggregator creates an Aggregator.
func NewAggregator(cfg AggregateConfig) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// FrequencyRisk maps a raw transaction count onto its band score.
func (a *Aggregator) FrequencyRisk(count int) int {
	b, s := a.cfg.FrequencyBands, a.cfg.FrequencyScores
	switch {
	case count < b[0]:
		return s[0]
	case count <= b[1]:
		return s[1]
	case count <= b[2]:
		return s[2]
	default:
		return s[3]
	}
}

// Aggregate computes the overall score, damped probability, agreement-based
// confidence and tiered recommendations.
func (a *Aggregator) Aggregate(in AggregateInput) Verdict {
	sub := model.SubScores{
		Pattern:   clampScore(in.Pattern),
		Behavior:  clampScore(in.Behavior),
		Anomaly:   clampScore(in.Anomaly),
		Frequency: a.FrequencyRisk(in.TransactionCount),
	}

	overall := roundScore(
		float64(sub.Pattern)*a.cfg.PatternWeight +
			float64(sub.Behavior)*a.cfg.BehaviorWeight +
			float64(sub.Anomaly)*a.cfg.AnomalyWeight +
			float64(sub.Frequency)*a.cfg.FrequencyWeight,
	)
	probability := roundScore(math.Min(100, float64(overall)*a.cfg.ProbabilityDamping))

	confidence := a.confidence(sub)
	if in.Degraded {
		confidence = clampScore(confidence - a.cfg.DegradedConfidencePenalty)
	}

	return Verdict{
		SubScores:       sub,
		OverallScore:    overall,
		Probability:     probability,
		Confidence:      confidence,
		Recommendations: a.recommend(overall, sub),
	}
}

// confidence is max(0, 100 - 2*stddev) over the non-zero sub-scores.
func (a *Aggregator) confidence(sub model.SubScores) int {
	var nonZero []float64
	for _, s := range []int{sub.Pattern, sub.Behavior, sub.Anomaly, sub.Frequency} {
		if s != 0 {
			nonZero = append(nonZero, float64(s))
		}
	}
	if len(nonZero) == 0 {
		return 100
	}
	_, sd := stat.PopMeanStdDev(nonZero, nil)
	return roundScore(math.Max(0, 100-2*sd))
}

func (a *Aggregator) recommend(overall int, sub model.SubScores) []model.Recommendation {
	var recs []model.Recommendation

	switch {
	case overall > 70:
		recs = append(recs,
			model.Recommendation{
				Priority:    valueobject.PriorityCritical,
				Action:      "Immediate investigation",
				Description: "Open a fraud investigation for this batch and hold pending payments to the flagged counterparties.",
			},
			model.Recommendation{
				Priority:    valueobject.PriorityCritical,
				Action:      "Raise security alert",
				Description: "Notify the security team so account access and approval rights can be reviewed.",
			},
		)
	case overall >= 40:
		recs = append(recs,
			model.Recommendation{
				Priority:    valueobject.PriorityMedium,
				Action:      "Enhanced monitoring",
				Description: "Place the subject under enhanced transaction monitoring for the next review cycle.",
			},
			model.Recommendation{
				Priority:    valueobject.PriorityMedium,
				Action:      "Pattern review",
				Description: "Have an analyst review the detected patterns against supporting documentation.",
			},
		)
	default:
		recs = append(recs, model.Recommendation{
			Priority:    valueobject.PriorityLow,
			Action:      "Continue standard monitoring",
			Description: "No elevated risk detected; keep the subject on the standard monitoring schedule.",
		})
	}

	if sub.Pattern > 50 {
		recs = append(recs, model.Recommendation{
			Priority:    valueobject.PriorityHigh,
			Action:      "Micro-skimming investigation",
			Description: "Audit micro-transactions and residue patterns for the flagged counterparties.",
		})
	}
	if sub.Behavior > 50 {
		recs = append(recs, model.Recommendation{
			Priority:    valueobject.PriorityHigh,
			Action:      "Verify behaviour with account holder",
			Description: "Contact the account holder to confirm the change in transaction behaviour.",
		})
	}
	if sub.Anomaly > 50 {
		recs = append(recs, model.Recommendation{
			Priority:    valueobject.PriorityMedium,
			Action:      "Review statistical outliers",
			Description: "Check each outlying transaction against invoices or approvals.",
		})
	}

	return recs
}
