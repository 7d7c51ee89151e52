package event

import (
	"time"

	"github.com/google/uuid"
)

const (
	// EventTypeAnalysisCompleted is emitted when a batch analysis finishes.
	EventTypeAnalysisCompleted = "risk.analysis.completed"

	// EventTypeHighRiskDetected is emitted when an analysis lands in the CRITICAL band.
	EventTypeHighRiskDetected = "risk.high_risk.detected"
)

// DomainEvent is implemented by every event raised by the analysis aggregate.
type DomainEvent interface {
	EventType() string
	AggregateID() uuid.UUID
}

// AnalysisCompleted is published after every successful analysis. It is the
// payload handed to the alerting collaborator.
type AnalysisCompleted struct {
	CompletedAt      time.Time `json:"completed_at"`
	SubjectID        string    `json:"subject_id"`
	RiskLevel        string    `json:"risk_level"`
	Patterns         []string  `json:"patterns"`
	Warnings         []string  `json:"warnings,omitempty"`
	OverallScore     int       `json:"overall_score"`
	Probability      int       `json:"probability"`
	Confidence       int       `json:"confidence"`
	TransactionCount int       `json:"transaction_count"`
	AnalysisID       uuid.UUID `json:"analysis_id"`
	TenantID         uuid.UUID `json:"tenant_id"`
}

// NewAnalysisCompleted builds an AnalysisCompleted event.
func NewAnalysisCompleted(
	analysisID, tenantID uuid.UUID,
	subjectID string,
	overallScore, probability, confidence int,
	riskLevel string,
	patterns, warnings []string,
	transactionCount int,
	completedAt time.Time,
) AnalysisCompleted {
	return AnalysisCompleted{
		AnalysisID:       analysisID,
		TenantID:         tenantID,
		SubjectID:        subjectID,
		OverallScore:     overallScore,
		Probability:      probability,
		Confidence:       confidence,
		RiskLevel:        riskLevel,
		Patterns:         patterns,
		Warnings:         warnings,
		TransactionCount: transactionCount,
		CompletedAt:      completedAt,
	}
}

// EventType returns the event type identifier.
func (e AnalysisCompleted) EventType() string {
	return EventTypeAnalysisCompleted
}

// AggregateID returns the analysis ID as the aggregate identifier.
func (e AnalysisCompleted) AggregateID() uuid.UUID {
	return e.AnalysisID
}

// HighRiskDetected is published when an analysis scores in the CRITICAL band
// so the alerting collaborator can escalate.
type HighRiskDetected struct {
	DetectedAt      time.Time `json:"detected_at"`
	SubjectID       string    `json:"subject_id"`
	Patterns        []string  `json:"patterns"`
	Recommendations []string  `json:"recommendations"`
	OverallScore    int       `json:"overall_score"`
	AnalysisID      uuid.UUID `json:"analysis_id"`
	TenantID        uuid.UUID `json:"tenant_id"`
}

// NewHighRiskDetected builds a HighRiskDetected event.
func NewHighRiskDetected(
	analysisID, tenantID uuid.UUID,
	subjectID string,
	overallScore int,
	patterns, recommendations []string,
	detectedAt time.Time,
) HighRiskDetected {
	return HighRiskDetected{
		AnalysisID:      analysisID,
		TenantID:        tenantID,
		SubjectID:       subjectID,
		OverallScore:    overallScore,
		Patterns:        patterns,
		Recommendations: recommendations,
		DetectedAt:      detectedAt,
	}
}

// EventType returns the event type identifier.
func (e HighRiskDetected) EventType() string {
	return EventTypeHighRiskDetected
}

// AggregateID returns the analysis ID as the aggregate identifier.
func (e HighRiskDetected) AggregateID() uuid.UUID {
	return e.AnalysisID
}
