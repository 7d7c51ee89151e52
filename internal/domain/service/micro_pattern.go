package service

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/bibbank/risk-engine/internal/domain/model"
	"github.com/bibbank/risk-engine/internal/domain/valueobject"
)

const maxSampleTransactions = 5

// VendorRisk is the micro-pattern verdict for one counterparty.
type VendorRisk struct {
	Profile            model.CounterpartyProfile
	Flags              []valueobject.SuspiciousFlag
	SampleTransactions []string
	Actions            []string
	ResidueProportion  float64
	DominantResidue    int
	Score              int
}

// MicroReport is the output of the micro-pattern detector.
type MicroReport struct {
	// Vendors holds the top-N flagged counterparties, highest score first.
	Vendors []VendorRisk
	// Deltas holds one batch-only profile per counterparty seen, carrying
	// the flags derived for the merged profile. The learner applies them.
	Deltas []model.CounterpartyProfile
	Score  int
}

// MicroPatternDetector looks for sub-unit skimming and systematic residue
// manipulation per counterparty.
type MicroPatternDetector struct {
	cfg MicroConfig
}

// NewMicroPatternDetector creates a MicroPatternDetector.
func NewMicroPatternDetector(cfg MicroConfig) *MicroPatternDetector {
	return &MicroPatternDetector{cfg: cfg}
}

// Analyze evaluates the batch against the stored profiles. stored may be
// nil when no history is available.
func (d *MicroPatternDetector) Analyze(batch []model.Transaction, stored map[string]model.CounterpartyProfile, now time.Time) MicroReport {
	deltas := make(map[string]*model.CounterpartyProfile)
	samples := make(map[string][]string)
	order := make([]string, 0)

	// 1. Build the batch delta per counterparty.
	for _, t := range batch {
		name := t.Counterparty()
		delta, ok := deltas[name]
		if !ok {
			delta = model.NewCounterpartyProfile(name)
			delta.UpdatedAt = now
			deltas[name] = delta
			order = append(order, name)
		}
		delta.Observe(t.Amount(), d.cfg.MicroThreshold, d.cfg.TinyThreshold)

		if model.IsMicroAmount(t.Amount(), d.cfg.MicroThreshold) && len(samples[name]) < maxSampleTransactions {
			samples[name] = append(samples[name], t.ID())
		}
	}

	report := MicroReport{Deltas: make([]model.CounterpartyProfile, 0, len(order))}

	// 2. Evaluate the merged profile of every counterparty.
	for _, name := range order {
		delta := deltas[name]
		merged := delta.Merge(model.CounterpartyProfile{})
		if prev, ok := stored[name]; ok {
			merged = prev.Merge(*delta)
		}

		risk, flagged := d.evaluate(merged)
		delta.SuspiciousFlags = risk.Flags
		report.Deltas = append(report.Deltas, *delta)

		if !flagged {
			continue
		}
		risk.SampleTransactions = samples[name]
		report.Vendors = append(report.Vendors, risk)
	}

	// 3. Rank and keep the top N.
	sort.SliceStable(report.Vendors, func(i, j int) bool {
		if report.Vendors[i].Score != report.Vendors[j].Score {
			return report.Vendors[i].Score > report.Vendors[j].Score
		}
		return report.Vendors[i].Profile.Name < report.Vendors[j].Profile.Name
	})
	if len(report.Vendors) > d.cfg.TopN {
		report.Vendors = report.Vendors[:d.cfg.TopN]
	}
	if len(report.Vendors) > 0 {
		report.Score = report.Vendors[0].Score
	}

	return report
}

// evaluate derives flags and a score for one merged profile.
func (d *MicroPatternDetector) evaluate(p model.CounterpartyProfile) (VendorRisk, bool) {
	risk := VendorRisk{Profile: p}

	if p.TotalTransactions < d.cfg.MinCount {
		return risk, false
	}
	microRatio, ok := p.MicroRatio()
	if !ok {
		return risk, false
	}
	tinyRatio, _ := p.TinyRatio()

	if p.MicroAmount.GreaterThanOrEqual(d.cfg.CumulativeThreshold) {
		risk.Flags = append(risk.Flags, valueobject.FlagCumulativeMicro)
	}
	if p.MicroTransactions >= d.cfg.MinCount {
		risk.Flags = append(risk.Flags, valueobject.FlagHighFrequencyMicro)
	}
	if microRatio > d.cfg.MicroRatio {
		risk.Flags = append(risk.Flags, valueobject.FlagMajorityMicro)
	}
	if tinyRatio > d.cfg.TinyRatio {
		risk.Flags = append(risk.Flags, valueobject.FlagHighTinyRatio)
	}
	if digit, share, ok := p.DominantResidue(); ok {
		risk.DominantResidue = digit
		risk.ResidueProportion = share
		if p.ResidueSamples() >= d.cfg.ResidueMinSamples && share > d.cfg.ResidueDominance {
			risk.Flags = append(risk.Flags, valueobject.FlagSystematicResidue)
		}
	}

	if len(risk.Flags) == 0 {
		return risk, false
	}

	score := 0
	for _, f := range risk.Flags {
		score += d.cfg.Weights.For(f)
	}
	score += d.baseTerm(p)
	risk.Score = clampScore(score)
	risk.Actions = actionsFor(risk.Flags)

	return risk, true
}

// baseTerm scales with cumulative micro amount and micro frequency; each
// half contributes at most 10 points.
func (d *MicroPatternDetector) baseTerm(p model.CounterpartyProfile) int {
	amountTerm := 0.0
	if d.cfg.CumulativeThreshold.IsPositive() {
		amountTerm = p.MicroAmount.Div(d.cfg.CumulativeThreshold).InexactFloat64() * 5
	}
	countTerm := float64(p.MicroTransactions) / float64(d.cfg.MinCount) * 5
	return int(math.Min(10, amountTerm) + math.Min(10, countTerm))
}

func actionsFor(flags []valueobject.SuspiciousFlag) []string {
	var actions []string
	seen := make(map[string]bool)
	add := func(a string) {
		if !seen[a] {
			seen[a] = true
			actions = append(actions, a)
		}
	}
	for _, f := range flags {
		switch f {
		case valueobject.FlagCumulativeMicro, valueobject.FlagHighFrequencyMicro, valueobject.FlagMajorityMicro:
			add("Verify vendor legitimacy and contract terms")
		case valueobject.FlagHighTinyRatio:
			add("Audit the approval workflow for sub-cent payments")
		case valueobject.FlagSystematicResidue:
			add("Review the rounding algorithm for systematic residue manipulation")
		}
	}
	return actions
}

// Patterns renders the flagged vendors as detected patterns.
func (r MicroReport) Patterns() []model.DetectedPattern {
	patterns := make([]model.DetectedPattern, 0, len(r.Vendors))
	for _, v := range r.Vendors {
		flags := make([]string, 0, len(v.Flags))
		for _, f := range v.Flags {
			flags = append(flags, f.String())
		}

		evidence := map[string]any{
			"counterparty":        v.Profile.Name,
			"flags":               flags,
			"total_transactions":  v.Profile.TotalTransactions,
			"micro_transactions":  v.Profile.MicroTransactions,
			"micro_amount":        v.Profile.MicroAmount.String(),
			"tiny_transactions":   v.Profile.TinyTransactions,
			"sample_transactions": v.SampleTransactions,
			"recommended_actions": v.Actions,
			"score":               v.Score,
		}
		if v.ResidueProportion > 0 {
			evidence["dominant_residue"] = v.DominantResidue
			evidence["residue_proportion"] = v.ResidueProportion
		}

		patterns = append(patterns, model.DetectedPattern{
			Type: valueobject.PatternMicroSkimming,
			Description: fmt.Sprintf("%s: %d of %d transactions are micro-amounts totalling %s [%s]",
				v.Profile.Name, v.Profile.MicroTransactions, v.Profile.TotalTransactions,
				v.Profile.MicroAmount.String(), strings.Join(flags, ", ")),
			Severity:     severityForScore(v.Score),
			Evidence:     evidence,
			Contribution: v.Score,
		})
	}
	return patterns
}

func severityForScore(score int) valueobject.Severity {
	switch {
	case score >= 70:
		return valueobject.SeverityHigh
	case score >= 40:
		return valueobject.SeverityMedium
	default:
		return valueobject.SeverityLow
	}
}
