package model

import (
	"github.com/bibbank/risk-engine/internal/domain/valueobject"
)

// DetectedPattern is one suspicious pattern reported in an analysis result.
type DetectedPattern struct {
	Evidence     map[string]any          `json:"evidence,omitempty"`
	Type         valueobject.PatternType `json:"type"`
	Description  string                  `json:"description"`
	Severity     valueobject.Severity    `json:"severity"`
	Contribution int                     `json:"contribution"`
}

// Recommendation is a prioritised follow-up action.
type Recommendation struct {
	Priority    valueobject.Priority `json:"priority"`
	Action      string               `json:"action"`
	Description string               `json:"description"`
}

// SubScores are the per-channel scores fed into aggregation.
type SubScores struct {
	Pattern   int `json:"pattern"`
	Behavior  int `json:"behavior"`
	Anomaly   int `json:"anomaly"`
	Frequency int `json:"frequency"`
}

// AnalysisResult is the verdict for one batch.
type AnalysisResult struct {
	RiskLevel        valueobject.RiskLevel `json:"risk_level"`
	DetectedPatterns []DetectedPattern     `json:"detected_patterns"`
	Recommendations  []Recommendation      `json:"recommendations"`
	Warnings         []string              `json:"warnings,omitempty"`
	SubScores        SubScores             `json:"sub_scores"`
	OverallScore     int                   `json:"overall_score"`
	Probability      int                   `json:"probability"`
	Confidence       int                   `json:"confidence"`
}

// PatternNames returns the distinct pattern types in detection order.
func (r AnalysisResult) PatternNames() []string {
	seen := make(map[valueobject.PatternType]bool, len(r.DetectedPatterns))
	names := make([]string, 0, len(r.DetectedPatterns))
	for _, p := range r.DetectedPatterns {
		if seen[p.Type] {
			continue
		}
		seen[p.Type] = true
		names = append(names, string(p.Type))
	}
	return names
}

// AddWarning appends a warning to the result.
func (r *AnalysisResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}
