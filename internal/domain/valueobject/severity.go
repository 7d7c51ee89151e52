package valueobject

import (
	"encoding/json"
	"fmt"
)

// Severity grades a single detected pattern.
type Severity struct {
	value string
}

var (
	SeverityLow    = Severity{value: "LOW"}
	SeverityMedium = Severity{value: "MEDIUM"}
	SeverityHigh   = Severity{value: "HIGH"}
)

// SeverityFromString reconstructs a Severity from its string representation.
func SeverityFromString(s string) (Severity, error) {
	switch s {
	case "LOW":
		return SeverityLow, nil
	case "MEDIUM":
		return SeverityMedium, nil
	case "HIGH":
		return SeverityHigh, nil
	default:
		return Severity{}, fmt.Errorf("invalid severity: %s", s)
	}
}

// String returns the string representation.
func (s Severity) String() string {
	return s.value
}

// Rank orders severities: LOW=1, MEDIUM=2, HIGH=3, unset=0.
func (s Severity) Rank() int {
	switch s.value {
	case "LOW":
		return 1
	case "MEDIUM":
		return 2
	case "HIGH":
		return 3
	default:
		return 0
	}
}

// IsZero returns true if the Severity has not been set.
func (s Severity) IsZero() bool {
	return s.value == ""
}

// Equal checks equality with another Severity.
func (s Severity) Equal(other Severity) bool {
	return s.value == other.value
}

// MarshalJSON encodes the severity as its string form.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.value)
}

// UnmarshalJSON decodes a severity from its string form.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := SeverityFromString(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// SeverityWeights maps each severity to the points it contributes to a
// behavioral score.
type SeverityWeights struct {
	High   int
	Medium int
	Low    int
}

// For returns the weight for the given severity.
func (w SeverityWeights) For(s Severity) int {
	switch s {
	case SeverityHigh:
		return w.High
	case SeverityMedium:
		return w.Medium
	case SeverityLow:
		return w.Low
	default:
		return 0
	}
}
