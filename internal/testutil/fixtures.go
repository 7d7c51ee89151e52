package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/risk-engine/internal/domain/model"
	"github.com/bibbank/risk-engine/internal/domain/valueobject"
)

// Fixed identifiers for deterministic testing.
var (
	TestTenantID  = uuid.MustParse("00000000-0000-0000-0000-000000000010")
	TestSubjectID = "acct-0001"
	TestNow       = time.Date(2024, 6, 3, 14, 30, 0, 0, time.UTC)
)

// NewAnalysis builds a valid analysis for TestTenantID with one detected
// pattern and one recommendation.
func NewAnalysis(t *testing.T, subjectID string, overall int) *model.Analysis {
	t.Helper()
	result := model.AnalysisResult{
		OverallScore: overall,
		Probability:  overall * 8 / 10,
		Confidence:   90,
		SubScores:    model.SubScores{Pattern: overall, Frequency: 10},
		DetectedPatterns: []model.DetectedPattern{{
			Type:         valueobject.PatternRoundDollar,
			Description:  "Round dollar amount: 5000",
			Severity:     valueobject.SeverityMedium,
			Contribution: 75,
			Evidence:     map[string]any{"transaction_id": "t-1", "amount": "5000"},
		}},
		Recommendations: []model.Recommendation{{
			Priority:    valueobject.PriorityMedium,
			Action:      "Enhanced monitoring",
			Description: "Increase monitoring frequency for this subject",
		}},
	}
	a, err := model.NewAnalysis(TestTenantID, subjectID, 3, result, TestNow)
	require.NoError(t, err)
	return a
}
