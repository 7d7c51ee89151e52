package service

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/bibbank/risk-engine/internal/domain/model"
	"github.com/bibbank/risk-engine/internal/domain/valueobject"
)

// AmountReport is the output of the amount-shape detector.
type AmountReport struct {
	Patterns []model.DetectedPattern
	Score    int
}

// AmountPatternDetector flags round-number amounts, amounts placed just
// under approval thresholds, counterparties absorbing an outsized share of
// the batch volume, months with unusually many payments to one
// counterparty, and amounts far above a counterparty's own mean.
type AmountPatternDetector struct {
	cfg AmountPatternConfig
}

// NewAmountPatternDetector creates an AmountPatternDetector.
func NewAmountPatternDetector(cfg AmountPatternConfig) *AmountPatternDetector {
	thresholds := append([]decimal.Decimal(nil), cfg.EvasionThresholds...)
	sort.Slice(thresholds, func(i, j int) bool { return thresholds[i].LessThan(thresholds[j]) })
	cfg.EvasionThresholds = thresholds
	return &AmountPatternDetector{cfg: cfg}
}

// Analyze runs every amount-shape rule over the batch.
func (d *AmountPatternDetector) Analyze(batch []model.Transaction) AmountReport {
	var report AmountReport

	for _, t := range batch {
		if p, ok := d.roundDollar(t); ok {
			report.add(p)
		}
		if p, ok := d.thresholdEvasion(t); ok {
			report.add(p)
		}
	}
	for _, p := range d.vendorConcentration(batch) {
		report.add(p)
	}
	for _, p := range d.frequencySpikes(batch) {
		report.add(p)
	}
	for _, p := range d.counterpartyOutliers(batch) {
		report.add(p)
	}

	return report
}

func (r *AmountReport) add(p model.DetectedPattern) {
	r.Patterns = append(r.Patterns, p)
	if p.Contribution > r.Score {
		r.Score = p.Contribution
	}
}

func (d *AmountPatternDetector) roundDollar(t model.Transaction) (model.DetectedPattern, bool) {
	amount := t.Amount()
	if !amount.IsPositive() || amount.LessThan(d.cfg.RoundMinimum) {
		return model.DetectedPattern{}, false
	}
	if !amount.Mod(d.cfg.RoundUnit).IsZero() {
		return model.DetectedPattern{}, false
	}

	return model.DetectedPattern{
		Type: valueobject.PatternRoundDollar,
		Description: fmt.Sprintf("Transaction %s to %s is an exact multiple of %s (%s)",
			t.ID(), t.Counterparty(), d.cfg.RoundUnit.String(), amount.String()),
		Severity: valueobject.SeverityMedium,
		Evidence: map[string]any{
			"transaction_id": t.ID(),
			"counterparty":   t.Counterparty(),
			"amount":         amount.String(),
			"round_unit":     d.cfg.RoundUnit.String(),
		},
		Contribution: d.cfg.RoundContribution,
	}, true
}

// evasionWindow is max(EvasionMinWindow, EvasionWindowPct x threshold).
func (d *AmountPatternDetector) evasionWindow(threshold decimal.Decimal) decimal.Decimal {
	pct := threshold.Mul(decimal.NewFromFloat(d.cfg.EvasionWindowPct))
	return decimal.Max(d.cfg.EvasionMinWindow, pct)
}

func (d *AmountPatternDetector) thresholdEvasion(t model.Transaction) (model.DetectedPattern, bool) {
	amount := t.Amount()
	if !amount.IsPositive() {
		return model.DetectedPattern{}, false
	}

	for _, threshold := range d.cfg.EvasionThresholds {
		window := d.evasionWindow(threshold)
		lower := threshold.Sub(window)
		if amount.LessThan(lower) || amount.GreaterThanOrEqual(threshold) {
			continue
		}

		gap := threshold.Sub(amount)
		return model.DetectedPattern{
			Type: valueobject.PatternThresholdEvasion,
			Description: fmt.Sprintf("Transaction %s to %s of %s sits %s below the %s approval threshold",
				t.ID(), t.Counterparty(), amount.String(), gap.String(), threshold.String()),
			Severity: valueobject.SeverityHigh,
			Evidence: map[string]any{
				"transaction_id": t.ID(),
				"counterparty":   t.Counterparty(),
				"amount":         amount.String(),
				"threshold":      threshold.String(),
				"gap":            gap.String(),
				"window":         window.String(),
			},
			Contribution: d.cfg.EvasionContribution,
		}, true
	}
	return model.DetectedPattern{}, false
}

func (d *AmountPatternDetector) vendorConcentration(batch []model.Transaction) []model.DetectedPattern {
	volume := make(map[string]decimal.Decimal)
	total := decimal.Zero
	for _, t := range batch {
		if !t.Amount().IsPositive() {
			continue
		}
		volume[t.Counterparty()] = volume[t.Counterparty()].Add(t.Amount())
		total = total.Add(t.Amount())
	}
	if len(volume) < d.cfg.ConcentrationMinCounterparties || !total.IsPositive() {
		return nil
	}

	names := make([]string, 0, len(volume))
	for name := range volume {
		names = append(names, name)
	}
	sort.Strings(names)

	var patterns []model.DetectedPattern
	for _, name := range names {
		share := volume[name].Div(total).InexactFloat64()
		if share <= d.cfg.ConcentrationThreshold {
			continue
		}
		contribution := int(math.Min(95, 60+share*100))
		severity := valueobject.SeverityMedium
		if contribution >= 80 {
			severity = valueobject.SeverityHigh
		}
		patterns = append(patterns, model.DetectedPattern{
			Type: valueobject.PatternVendorConcentration,
			Description: fmt.Sprintf("%s received %.1f%% of the batch volume (%s of %s)",
				name, share*100, volume[name].String(), total.String()),
			Severity: severity,
			Evidence: map[string]any{
				"counterparty": name,
				"share":        share,
				"volume":       volume[name].String(),
				"batch_volume": total.String(),
			},
			Contribution: contribution,
		})
	}
	return patterns
}

func groupByCounterparty(batch []model.Transaction) (map[string][]model.Transaction, []string) {
	groups := make(map[string][]model.Transaction)
	for _, t := range batch {
		groups[t.Counterparty()] = append(groups[t.Counterparty()], t)
	}
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return groups, names
}

// frequencySpikes compares each calendar month's payment count to a
// counterparty against that counterparty's other active months.
func (d *AmountPatternDetector) frequencySpikes(batch []model.Transaction) []model.DetectedPattern {
	groups, names := groupByCounterparty(batch)

	var patterns []model.DetectedPattern
	for _, name := range names {
		perMonth := make(map[string]int)
		for _, t := range groups[name] {
			perMonth[t.Timestamp().UTC().Format("2006-01")]++
		}
		if len(perMonth) < d.cfg.SpikeMinMonths {
			continue
		}

		months := make([]string, 0, len(perMonth))
		counts := make([]float64, 0, len(perMonth))
		for month := range perMonth {
			months = append(months, month)
		}
		sort.Strings(months)
		for _, month := range months {
			counts = append(counts, float64(perMonth[month]))
		}

		mean, sd := stat.MeanStdDev(counts, nil)
		if sd == 0 || math.IsNaN(sd) {
			continue
		}
		limit := mean + d.cfg.SpikeSigma*sd
		for i, month := range months {
			count := counts[i]
			if count <= limit || int(count) < d.cfg.SpikeMinCount {
				continue
			}
			contribution := roundScore(math.Min(90, 50+(count-mean)*5))
			patterns = append(patterns, model.DetectedPattern{
				Type: valueobject.PatternFrequencySpike,
				Description: fmt.Sprintf("%s received %d payments in %s against a typical %.1f per month",
					name, int(count), month, mean),
				Severity: valueobject.SeverityMedium,
				Evidence: map[string]any{
					"counterparty": name,
					"month":        month,
					"count":        int(count),
					"monthly_mean": mean,
					"monthly_std":  sd,
				},
				Contribution: contribution,
			})
		}
	}
	return patterns
}

// counterpartyOutliers flags amounts more than OutlierSigma sample standard
// deviations above the mean of the same counterparty's payments in the batch.
func (d *AmountPatternDetector) counterpartyOutliers(batch []model.Transaction) []model.DetectedPattern {
	groups, names := groupByCounterparty(batch)

	var patterns []model.DetectedPattern
	for _, name := range names {
		txns := groups[name]
		if len(txns) < d.cfg.OutlierMinSamples {
			continue
		}
		amounts := make([]float64, len(txns))
		for i, t := range txns {
			amounts[i] = t.AmountFloat()
		}

		mean, sd := stat.MeanStdDev(amounts, nil)
		if sd == 0 || math.IsNaN(sd) {
			continue
		}
		limit := mean + d.cfg.OutlierSigma*sd
		for i, t := range txns {
			if amounts[i] <= limit {
				continue
			}
			sigma := (amounts[i] - mean) / sd
			contribution := roundScore((sigma-d.cfg.OutlierSigma)*20 + 70)
			severity := valueobject.SeverityMedium
			if contribution >= 80 {
				severity = valueobject.SeverityHigh
			}
			patterns = append(patterns, model.DetectedPattern{
				Type: valueobject.PatternCounterpartyOutlier,
				Description: fmt.Sprintf("Transaction %s to %s of %s is %.1f standard deviations above the counterparty mean of %.2f",
					t.ID(), name, t.Amount().String(), sigma, mean),
				Severity: severity,
				Evidence: map[string]any{
					"transaction_id": t.ID(),
					"counterparty":   name,
					"amount":         t.Amount().String(),
					"mean":           mean,
					"std":            sd,
					"sigma":          sigma,
				},
				Contribution: contribution,
			})
		}
	}
	return patterns
}
