package service

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/bibbank/risk-engine/internal/domain/model"
	"github.com/bibbank/risk-engine/internal/domain/valueobject"
)

// LensFinding is one lens firing on one transaction.
type LensFinding struct {
	Lens     valueobject.LensTag
	Reason   string
	Severity valueobject.Severity
	Weight   int
}

// Outlier is a transaction flagged by at least one lens.
type Outlier struct {
	TransactionID string
	Findings      []LensFinding
	Amount        float64
	Score         int
}

// AnomalyReport is the output of the statistical anomaly detector.
type AnomalyReport struct {
	Outliers []Outlier
	// Abstentions records every lens that lacked data for this batch.
	Abstentions []*model.InsufficientDataError
	Score       int
}

// StatisticalDetector flags outlying amounts through three independent
// lenses: parametric z-score, IQR fences, and local density.
type StatisticalDetector struct {
	cfg StatisticalConfig
}

// NewStatisticalDetector creates a StatisticalDetector.
func NewStatisticalDetector(cfg StatisticalConfig) *StatisticalDetector {
	return &StatisticalDetector{cfg: cfg}
}

// Analyze evaluates the batch. reference holds historical amounts that
// widen the parametric and IQR distributions; it never lowers the
// minimum-sample guards, which apply to the batch itself.
func (d *StatisticalDetector) Analyze(batch []model.Transaction, reference []float64) AnomalyReport {
	amounts := make([]float64, len(batch))
	for i, t := range batch {
		amounts[i] = t.AmountFloat()
	}
	dist := append(append(make([]float64, 0, len(amounts)+len(reference)), amounts...), reference...)

	findings := make([][]LensFinding, len(batch))
	var report AnomalyReport

	lenses := []func([]float64, []float64, [][]LensFinding) error{
		d.parametric,
		d.iqr,
		d.density,
	}
	for _, lens := range lenses {
		if err := lens(amounts, dist, findings); err != nil {
			var insufficient *model.InsufficientDataError
			if errors.As(err, &insufficient) {
				report.Abstentions = append(report.Abstentions, insufficient)
			}
		}
	}

	for i, f := range findings {
		if len(f) == 0 {
			continue
		}
		score := 0
		for _, finding := range f {
			score += finding.Weight
		}
		report.Outliers = append(report.Outliers, Outlier{
			TransactionID: batch[i].ID(),
			Amount:        amounts[i],
			Findings:      f,
			Score:         clampScore(score),
		})
	}
	report.Score = clampScore(len(report.Outliers) * d.cfg.PerAnomaly)

	return report
}

func (d *StatisticalDetector) parametric(amounts, dist []float64, out [][]LensFinding) error {
	if len(amounts) < d.cfg.ParametricMinSamples {
		return &model.InsufficientDataError{Lens: string(valueobject.LensParametric), Have: len(amounts), Need: d.cfg.ParametricMinSamples}
	}
	if len(dist) < 2 {
		return nil
	}
	m, sd := stat.MeanStdDev(dist, nil)
	if sd == 0 || math.IsNaN(sd) {
		return nil
	}

	for i, a := range amounts {
		sigma := math.Abs(a-m) / sd
		switch {
		case sigma > d.cfg.HighSigma:
			out[i] = append(out[i], LensFinding{
				Lens:     valueobject.LensParametric,
				Severity: valueobject.SeverityHigh,
				Weight:   d.cfg.ParametricHighWeight,
				Reason: fmt.Sprintf("amount %.2f is %.2fσ from mean %.2f (threshold %.0fσ, stddev %.2f)",
					a, sigma, m, d.cfg.HighSigma, sd),
			})
		case sigma > d.cfg.MediumSigma:
			out[i] = append(out[i], LensFinding{
				Lens:     valueobject.LensParametric,
				Severity: valueobject.SeverityMedium,
				Weight:   d.cfg.ParametricMedWeight,
				Reason: fmt.Sprintf("amount %.2f is %.2fσ from mean %.2f (threshold %.0fσ, stddev %.2f)",
					a, sigma, m, d.cfg.MediumSigma, sd),
			})
		}
	}
	return nil
}

func (d *StatisticalDetector) iqr(amounts, dist []float64, out [][]LensFinding) error {
	if len(amounts) < d.cfg.IQRMinSamples {
		return &model.InsufficientDataError{Lens: string(valueobject.LensIQR), Have: len(amounts), Need: d.cfg.IQRMinSamples}
	}
	sorted := append([]float64(nil), dist...)
	sort.Float64s(sorted)

	q1 := stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	q3 := stat.Quantile(0.75, stat.LinInterp, sorted, nil)
	spread := q3 - q1
	if spread == 0 {
		return nil
	}
	lower := q1 - d.cfg.IQRMultiplier*spread
	upper := q3 + d.cfg.IQRMultiplier*spread

	for i, a := range amounts {
		if a >= lower && a <= upper {
			continue
		}
		out[i] = append(out[i], LensFinding{
			Lens:     valueobject.LensIQR,
			Severity: valueobject.SeverityMedium,
			Weight:   d.cfg.IQRWeight,
			Reason: fmt.Sprintf("amount %.2f outside IQR fences [%.2f, %.2f] (Q1 %.2f, Q3 %.2f, IQR %.2f)",
				a, lower, upper, q1, q3, spread),
		})
	}
	return nil
}

func (d *StatisticalDetector) density(amounts, _ []float64, out [][]LensFinding) error {
	k := d.cfg.DensityNeighbor
	if len(amounts) <= k {
		return &model.InsufficientDataError{Lens: string(valueobject.LensDensity), Have: len(amounts), Need: k + 1}
	}

	distances := make([]float64, 0, len(amounts)-1)
	for i, a := range amounts {
		distances = distances[:0]
		for j, b := range amounts {
			if i == j {
				continue
			}
			distances = append(distances, math.Abs(a-b))
		}
		sort.Float64s(distances)

		kth := distances[k-1]
		if kth <= d.cfg.IsolationDistance {
			continue
		}
		out[i] = append(out[i], LensFinding{
			Lens:     valueobject.LensDensity,
			Severity: valueobject.SeverityLow,
			Weight:   d.cfg.DensityWeight,
			Reason: fmt.Sprintf("amount %.2f has its %d-nearest neighbour %.2f away (isolation distance %.2f)",
				a, k, kth, d.cfg.IsolationDistance),
		})
	}
	return nil
}

// Patterns renders the outliers as detected patterns.
func (r AnomalyReport) Patterns() []model.DetectedPattern {
	patterns := make([]model.DetectedPattern, 0, len(r.Outliers))
	for _, o := range r.Outliers {
		lenses := make([]string, 0, len(o.Findings))
		reasons := make([]string, 0, len(o.Findings))
		severity := valueobject.SeverityLow
		for _, f := range o.Findings {
			lenses = append(lenses, string(f.Lens))
			reasons = append(reasons, f.Reason)
			if f.Severity.Rank() > severity.Rank() {
				severity = f.Severity
			}
		}
		patterns = append(patterns, model.DetectedPattern{
			Type:        valueobject.PatternStatisticalOutlier,
			Description: fmt.Sprintf("Transaction %s: %s", o.TransactionID, strings.Join(reasons, "; ")),
			Severity:    severity,
			Evidence: map[string]any{
				"transaction_id": o.TransactionID,
				"amount":         o.Amount,
				"lenses":         lenses,
				"reasons":        reasons,
				"score":          o.Score,
			},
			Contribution: o.Score,
		})
	}
	return patterns
}
