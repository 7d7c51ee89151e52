package valueobject

import "fmt"

// RiskLevel is the band an overall score falls into. Bands are ordered, so
// levels compare by severity as well as by identity.
type RiskLevel struct {
	name  string
	floor int // lowest overall score in the band
	rank  int
}

var (
	RiskLevelLow      = RiskLevel{name: "LOW", floor: 0, rank: 1}
	RiskLevelMedium   = RiskLevel{name: "MEDIUM", floor: 35, rank: 2}
	RiskLevelHigh     = RiskLevel{name: "HIGH", floor: 60, rank: 3}
	RiskLevelCritical = RiskLevel{name: "CRITICAL", floor: 80, rank: 4}
)

// riskBands is ordered from the most to the least severe band.
var riskBands = []RiskLevel{RiskLevelCritical, RiskLevelHigh, RiskLevelMedium, RiskLevelLow}

// RiskLevelFromString parses a persisted level name.
func RiskLevelFromString(s string) (RiskLevel, error) {
	for _, band := range riskBands {
		if band.name == s {
			return band, nil
		}
	}
	return RiskLevel{}, fmt.Errorf("invalid risk level: %q", s)
}

// RiskLevelFromScore returns the highest band whose floor the score reaches.
// Scores below zero fall into LOW.
func RiskLevelFromScore(score int) RiskLevel {
	for _, band := range riskBands {
		if score >= band.floor {
			return band
		}
	}
	return RiskLevelLow
}

func (r RiskLevel) String() string { return r.name }

// Floor is the lowest overall score that maps to this level.
func (r RiskLevel) Floor() int { return r.floor }

// IsZero reports whether the level is unset.
func (r RiskLevel) IsZero() bool { return r.rank == 0 }

func (r RiskLevel) Equal(other RiskLevel) bool { return r.rank == other.rank }

// AtLeast reports whether r is as severe as other or more.
func (r RiskLevel) AtLeast(other RiskLevel) bool { return r.rank >= other.rank }

// MarshalText encodes the level name; JSON uses it for the string form.
func (r RiskLevel) MarshalText() ([]byte, error) {
	return []byte(r.name), nil
}

// UnmarshalText accepts a level name. The empty string leaves the level unset.
func (r *RiskLevel) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*r = RiskLevel{}
		return nil
	}
	parsed, err := RiskLevelFromString(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
