package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bibbank/risk-engine/internal/domain/valueobject"
)

// ResidueBuckets is the number of residue histogram buckets (digits 0-9).
const ResidueBuckets = 10

var thousand = decimal.NewFromInt(1000)

// ResidueDigit returns floor(|amount| x 1000) mod 10, the third decimal digit.
func ResidueDigit(amount decimal.Decimal) int {
	scaled := amount.Abs().Mul(thousand).Floor()
	return int(scaled.Mod(decimal.NewFromInt(ResidueBuckets)).IntPart())
}

// IsMicroAmount reports 0 < amount <= threshold.
func IsMicroAmount(amount, threshold decimal.Decimal) bool {
	return amount.IsPositive() && amount.LessThanOrEqual(threshold)
}

// CounterpartyProfile aggregates everything the micro-pattern detector has
// seen for one counterparty. The same type is used for the stored running
// profile and for the per-batch delta applied to it.
type CounterpartyProfile struct {
	UpdatedAt         time.Time                    `json:"updated_at"`
	TotalAmount       decimal.Decimal              `json:"total_amount"`
	MicroAmount       decimal.Decimal              `json:"micro_amount"`
	Name              string                       `json:"name"`
	SuspiciousFlags   []valueobject.SuspiciousFlag `json:"suspicious_flags"`
	ResidueHistogram  [ResidueBuckets]int          `json:"residue_histogram"`
	TotalTransactions int                          `json:"total_transactions"`
	MicroTransactions int                          `json:"micro_transactions"`
	TinyTransactions  int                          `json:"tiny_transactions"`
}

// NewCounterpartyProfile returns an empty profile for the named counterparty.
func NewCounterpartyProfile(name string) *CounterpartyProfile {
	return &CounterpartyProfile{
		Name:        name,
		TotalAmount: decimal.Zero,
		MicroAmount: decimal.Zero,
	}
}

// Observe folds a single amount into the profile.
func (p *CounterpartyProfile) Observe(amount, microThreshold, tinyThreshold decimal.Decimal) {
	p.TotalTransactions++
	p.TotalAmount = p.TotalAmount.Add(amount)
	p.ResidueHistogram[ResidueDigit(amount)]++

	if IsMicroAmount(amount, microThreshold) {
		p.MicroTransactions++
		p.MicroAmount = p.MicroAmount.Add(amount)
	}
	if IsMicroAmount(amount, tinyThreshold) {
		p.TinyTransactions++
	}
}

// Merge returns a new profile holding the counts of p plus delta. Flags are
// not merged; they are re-derived by the detector.
func (p CounterpartyProfile) Merge(delta CounterpartyProfile) CounterpartyProfile {
	merged := CounterpartyProfile{
		Name:              p.Name,
		TotalTransactions: p.TotalTransactions + delta.TotalTransactions,
		TotalAmount:       p.TotalAmount.Add(delta.TotalAmount),
		MicroTransactions: p.MicroTransactions + delta.MicroTransactions,
		MicroAmount:       p.MicroAmount.Add(delta.MicroAmount),
		TinyTransactions:  p.TinyTransactions + delta.TinyTransactions,
		UpdatedAt:         p.UpdatedAt,
	}
	if merged.Name == "" {
		merged.Name = delta.Name
	}
	if delta.UpdatedAt.After(merged.UpdatedAt) {
		merged.UpdatedAt = delta.UpdatedAt
	}
	for i := range merged.ResidueHistogram {
		merged.ResidueHistogram[i] = p.ResidueHistogram[i] + delta.ResidueHistogram[i]
	}
	return merged
}

// ResidueSamples returns the number of observations in the residue histogram.
func (p CounterpartyProfile) ResidueSamples() int {
	total := 0
	for _, c := range p.ResidueHistogram {
		total += c
	}
	return total
}

// MicroRatio returns micro/total. ok is false when the profile is empty.
func (p CounterpartyProfile) MicroRatio() (ratio float64, ok bool) {
	if p.TotalTransactions == 0 {
		return 0, false
	}
	return float64(p.MicroTransactions) / float64(p.TotalTransactions), true
}

// TinyRatio returns tiny/total. ok is false when the profile is empty.
func (p CounterpartyProfile) TinyRatio() (ratio float64, ok bool) {
	if p.TotalTransactions == 0 {
		return 0, false
	}
	return float64(p.TinyTransactions) / float64(p.TotalTransactions), true
}

// DominantResidue returns the most populated non-zero residue bucket and
// its share of all residue samples. ok is false when there are no samples
// or every sample falls in bucket zero.
func (p CounterpartyProfile) DominantResidue() (digit int, proportion float64, ok bool) {
	samples := p.ResidueSamples()
	if samples == 0 {
		return 0, 0, false
	}
	best := -1
	for d := 1; d < ResidueBuckets; d++ {
		if p.ResidueHistogram[d] == 0 {
			continue
		}
		if best < 0 || p.ResidueHistogram[d] > p.ResidueHistogram[best] {
			best = d
		}
	}
	if best < 0 {
		return 0, 0, false
	}
	return best, float64(p.ResidueHistogram[best]) / float64(samples), true
}

// HasFlag reports whether the given flag is set.
func (p CounterpartyProfile) HasFlag(f valueobject.SuspiciousFlag) bool {
	for _, have := range p.SuspiciousFlags {
		if have == f {
			return true
		}
	}
	return false
}
