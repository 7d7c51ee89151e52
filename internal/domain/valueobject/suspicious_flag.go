package valueobject

import (
	"encoding/json"
	"fmt"
)

// SuspiciousFlag is one of the closed set of reasons a counterparty can be
// flagged by micro-pattern analysis.
type SuspiciousFlag struct {
	value string
}

var (
	FlagCumulativeMicro    = SuspiciousFlag{value: "CUMULATIVE_MICRO_AMOUNT"}
	FlagHighFrequencyMicro = SuspiciousFlag{value: "HIGH_FREQUENCY_MICRO"}
	FlagMajorityMicro      = SuspiciousFlag{value: "MAJORITY_MICRO_TRANSACTIONS"}
	FlagHighTinyRatio      = SuspiciousFlag{value: "HIGH_TINY_RATIO"}
	FlagSystematicResidue  = SuspiciousFlag{value: "SYSTEMATIC_RESIDUE_PATTERN"}
)

// AllSuspiciousFlags lists every flag in evaluation order.
var AllSuspiciousFlags = []SuspiciousFlag{
	FlagCumulativeMicro,
	FlagHighFrequencyMicro,
	FlagMajorityMicro,
	FlagHighTinyRatio,
	FlagSystematicResidue,
}

// SuspiciousFlagFromString reconstructs a flag from its string representation.
func SuspiciousFlagFromString(s string) (SuspiciousFlag, error) {
	for _, f := range AllSuspiciousFlags {
		if f.value == s {
			return f, nil
		}
	}
	return SuspiciousFlag{}, fmt.Errorf("invalid suspicious flag: %s", s)
}

// String returns the string representation.
func (f SuspiciousFlag) String() string {
	return f.value
}

// IsZero returns true if the flag has not been set.
func (f SuspiciousFlag) IsZero() bool {
	return f.value == ""
}

// MarshalJSON encodes the flag as its string form.
func (f SuspiciousFlag) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.value)
}

// UnmarshalJSON decodes a flag from its string form.
func (f *SuspiciousFlag) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := SuspiciousFlagFromString(raw)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// FlagWeights holds the risk points contributed by each suspicious flag.
type FlagWeights struct {
	CumulativeMicro    int
	HighFrequencyMicro int
	MajorityMicro      int
	HighTinyRatio      int
	SystematicResidue  int
}

// For returns the weight of the given flag. Unknown flags weigh nothing.
func (w FlagWeights) For(f SuspiciousFlag) int {
	switch f {
	case FlagCumulativeMicro:
		return w.CumulativeMicro
	case FlagHighFrequencyMicro:
		return w.HighFrequencyMicro
	case FlagMajorityMicro:
		return w.MajorityMicro
	case FlagHighTinyRatio:
		return w.HighTinyRatio
	case FlagSystematicResidue:
		return w.SystematicResidue
	default:
		return 0
	}
}

// DefaultFlagWeights returns the stock weighting of suspicious flags.
func DefaultFlagWeights() FlagWeights {
	return FlagWeights{
		CumulativeMicro:    25,
		HighFrequencyMicro: 20,
		MajorityMicro:      15,
		HighTinyRatio:      20,
		SystematicResidue:  30,
	}
}
