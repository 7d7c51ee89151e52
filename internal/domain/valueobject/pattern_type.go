package valueobject

import "fmt"

// PatternType tags a detected pattern in an analysis result.
type PatternType string

const (
	PatternMicroSkimming       PatternType = "MICRO_SKIMMING"
	PatternRoundDollar         PatternType = "ROUND_DOLLAR_PATTERN"
	PatternThresholdEvasion    PatternType = "THRESHOLD_EVASION"
	PatternVendorConcentration PatternType = "VENDOR_CONCENTRATION"
	PatternStatisticalOutlier  PatternType = "STATISTICAL_OUTLIER"
	PatternFrequencyDeviation  PatternType = "FREQUENCY_DEVIATION"
	PatternAmountDeviation     PatternType = "AMOUNT_DEVIATION"
	PatternMixDeviation        PatternType = "PATTERN_MIX_DEVIATION"
	PatternFrequencySpike      PatternType = "FREQUENCY_SPIKE"
	PatternCounterpartyOutlier PatternType = "COUNTERPARTY_OUTLIER"
)

// ParsePatternType validates a persisted pattern type.
func ParsePatternType(s string) (PatternType, error) {
	switch p := PatternType(s); p {
	case PatternMicroSkimming, PatternRoundDollar, PatternThresholdEvasion,
		PatternVendorConcentration, PatternStatisticalOutlier,
		PatternFrequencyDeviation, PatternAmountDeviation, PatternMixDeviation,
		PatternFrequencySpike, PatternCounterpartyOutlier:
		return p, nil
	default:
		return "", fmt.Errorf("invalid pattern type: %s", s)
	}
}

// Label returns the human-readable name of the pattern.
func (p PatternType) Label() string {
	switch p {
	case PatternMicroSkimming:
		return "Micro-Transaction Skimming"
	case PatternRoundDollar:
		return "Round Dollar Pattern"
	case PatternThresholdEvasion:
		return "Threshold Evasion"
	case PatternVendorConcentration:
		return "Vendor Concentration"
	case PatternStatisticalOutlier:
		return "Statistical Outlier"
	case PatternFrequencyDeviation:
		return "Frequency Deviation"
	case PatternAmountDeviation:
		return "Amount Deviation"
	case PatternMixDeviation:
		return "Pattern Mix Deviation"
	case PatternFrequencySpike:
		return "Frequency Spike"
	case PatternCounterpartyOutlier:
		return "Counterparty Outlier"
	default:
		return string(p)
	}
}

// LensTag names the statistical lens that flagged an outlier.
type LensTag string

const (
	LensParametric LensTag = "PARAMETRIC_OUTLIER"
	LensIQR        LensTag = "IQR_OUTLIER"
	LensDensity    LensTag = "ISOLATED_OUTLIER"
)

// Priority orders recommendations.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

// Rank orders priorities from LOW=1 to CRITICAL=4.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}
