package valueobject_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/risk-engine/internal/domain/valueobject"
)

func TestRiskLevel_FromScore(t *testing.T) {
	tests := []struct {
		name     string
		score    int
		expected valueobject.RiskLevel
	}{
		{"zero is LOW", 0, valueobject.RiskLevelLow},
		{"34 is LOW", 34, valueobject.RiskLevelLow},
		{"35 is MEDIUM", 35, valueobject.RiskLevelMedium},
		{"59 is MEDIUM", 59, valueobject.RiskLevelMedium},
		{"60 is HIGH", 60, valueobject.RiskLevelHigh},
		{"80 is CRITICAL", 80, valueobject.RiskLevelCritical},
		{"100 is CRITICAL", 100, valueobject.RiskLevelCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.expected.Equal(valueobject.RiskLevelFromScore(tt.score)))
		})
	}
}

func TestRiskLevel_FromString(t *testing.T) {
	tests := []struct {
		input    string
		expected valueobject.RiskLevel
		wantErr  bool
	}{
		{"LOW", valueobject.RiskLevelLow, false},
		{"MEDIUM", valueobject.RiskLevelMedium, false},
		{"HIGH", valueobject.RiskLevelHigh, false},
		{"CRITICAL", valueobject.RiskLevelCritical, false},
		{"INVALID", valueobject.RiskLevel{}, true},
		{"", valueobject.RiskLevel{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := valueobject.RiskLevelFromString(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.expected.Equal(result))
		})
	}
}

func TestRiskLevel_Ordering(t *testing.T) {
	levels := []valueobject.RiskLevel{
		valueobject.RiskLevelLow, valueobject.RiskLevelMedium,
		valueobject.RiskLevelHigh, valueobject.RiskLevelCritical,
	}
	for i, lower := range levels {
		assert.True(t, valueobject.RiskLevelFromScore(lower.Floor()).Equal(lower), lower.String())
		if lower.Floor() > 0 {
			assert.False(t, valueobject.RiskLevelFromScore(lower.Floor()-1).Equal(lower), lower.String())
		}
		for _, higher := range levels[i:] {
			assert.True(t, higher.AtLeast(lower), "%s >= %s", higher, lower)
		}
		for _, higher := range levels[i+1:] {
			assert.False(t, lower.AtLeast(higher), "%s < %s", lower, higher)
		}
	}
	assert.True(t, valueobject.RiskLevelFromScore(-5).Equal(valueobject.RiskLevelLow))
	assert.True(t, valueobject.RiskLevel{}.IsZero())
}

func TestRiskLevel_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Level valueobject.RiskLevel `json:"level"`
	}{valueobject.RiskLevelHigh})
	require.NoError(t, err)
	assert.JSONEq(t, `{"level":"HIGH"}`, string(data))

	var got valueobject.RiskLevel
	require.NoError(t, json.Unmarshal([]byte(`"CRITICAL"`), &got))
	assert.Equal(t, valueobject.RiskLevelCritical, got)

	require.NoError(t, json.Unmarshal([]byte(`""`), &got))
	assert.True(t, got.IsZero())

	require.Error(t, json.Unmarshal([]byte(`"SEVERE"`), &got))
}

func TestSeverityWeights_For(t *testing.T) {
	w := valueobject.SeverityWeights{High: 30, Medium: 15, Low: 5}

	assert.Equal(t, 30, w.For(valueobject.SeverityHigh))
	assert.Equal(t, 15, w.For(valueobject.SeverityMedium))
	assert.Equal(t, 5, w.For(valueobject.SeverityLow))
	assert.Equal(t, 0, w.For(valueobject.Severity{}))
}

func TestSeverity_JSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(valueobject.SeverityHigh)
	require.NoError(t, err)
	assert.JSONEq(t, `"HIGH"`, string(data))

	var s valueobject.Severity
	require.NoError(t, json.Unmarshal([]byte(`"MEDIUM"`), &s))
	assert.True(t, s.Equal(valueobject.SeverityMedium))

	require.Error(t, json.Unmarshal([]byte(`"SEVERE"`), &s))
}

func TestFlagWeights_CoverEveryFlag(t *testing.T) {
	w := valueobject.DefaultFlagWeights()

	for _, f := range valueobject.AllSuspiciousFlags {
		t.Run(f.String(), func(t *testing.T) {
			assert.Positive(t, w.For(f), "flag %s has no weight", f)
		})
	}
	assert.Equal(t, 30, w.For(valueobject.FlagSystematicResidue))
	assert.Equal(t, 0, w.For(valueobject.SuspiciousFlag{}))
}

func TestSuspiciousFlag_FromString(t *testing.T) {
	f, err := valueobject.SuspiciousFlagFromString("HIGH_FREQUENCY_MICRO")
	require.NoError(t, err)
	assert.Equal(t, valueobject.FlagHighFrequencyMicro, f)

	_, err = valueobject.SuspiciousFlagFromString("MYSTERY")
	require.Error(t, err)
}

func TestParsePatternType(t *testing.T) {
	p, err := valueobject.ParsePatternType("THRESHOLD_EVASION")
	require.NoError(t, err)
	assert.Equal(t, valueobject.PatternThresholdEvasion, p)
	assert.Equal(t, "Threshold Evasion", p.Label())

	_, err = valueobject.ParsePatternType("UNKNOWN")
	require.Error(t, err)
}

func TestPriority_Rank(t *testing.T) {
	assert.Greater(t, valueobject.PriorityCritical.Rank(), valueobject.PriorityHigh.Rank())
	assert.Greater(t, valueobject.PriorityHigh.Rank(), valueobject.PriorityMedium.Rank())
	assert.Greater(t, valueobject.PriorityMedium.Rank(), valueobject.PriorityLow.Rank())
}
