package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bibbank/risk-engine/internal/domain/event"
	"github.com/bibbank/risk-engine/internal/domain/valueobject"
)

// Analysis is the aggregate root recording one scored batch for a subject.
type Analysis struct {
	createdAt        time.Time
	subjectID        string
	result           AnalysisResult
	domainEvents     []event.DomainEvent
	transactionCount int
	tenantID         uuid.UUID
	id               uuid.UUID
}

// NewAnalysis records a completed analysis and raises its domain events.
func NewAnalysis(
	tenantID uuid.UUID,
	subjectID string,
	transactionCount int,
	result AnalysisResult,
	now time.Time,
) (*Analysis, error) {
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("tenant ID is required")
	}
	if strings.TrimSpace(subjectID) == "" {
		return nil, fmt.Errorf("subject ID is required")
	}
	if transactionCount <= 0 {
		return nil, fmt.Errorf("transaction count must be positive, got %d", transactionCount)
	}
	for name, v := range map[string]int{
		"overall score": result.OverallScore,
		"probability":   result.Probability,
		"confidence":    result.Confidence,
	} {
		if v < 0 || v > 100 {
			return nil, fmt.Errorf("%s must be between 0 and 100, got %d", name, v)
		}
	}
	if result.RiskLevel.IsZero() {
		result.RiskLevel = valueobject.RiskLevelFromScore(result.OverallScore)
	}

	a := &Analysis{
		id:               uuid.New(),
		tenantID:         tenantID,
		subjectID:        subjectID,
		transactionCount: transactionCount,
		result:           result,
		createdAt:        now.UTC(),
	}

	a.domainEvents = append(a.domainEvents, event.NewAnalysisCompleted(
		a.id, a.tenantID, a.subjectID,
		result.OverallScore, result.Probability, result.Confidence,
		result.RiskLevel.String(), result.PatternNames(), result.Warnings,
		a.transactionCount, a.createdAt,
	))

	if result.RiskLevel.AtLeast(valueobject.RiskLevelCritical) {
		actions := make([]string, 0, len(result.Recommendations))
		for _, r := range result.Recommendations {
			actions = append(actions, r.Action)
		}
		a.domainEvents = append(a.domainEvents, event.NewHighRiskDetected(
			a.id, a.tenantID, a.subjectID,
			result.OverallScore, result.PatternNames(), actions, a.createdAt,
		))
	}

	return a, nil
}

// ReconstructAnalysis rebuilds an Analysis from persisted data (no validation, no events).
func ReconstructAnalysis(
	id, tenantID uuid.UUID,
	subjectID string,
	transactionCount int,
	result AnalysisResult,
	createdAt time.Time,
) *Analysis {
	return &Analysis{
		id:               id,
		tenantID:         tenantID,
		subjectID:        subjectID,
		transactionCount: transactionCount,
		result:           result,
		createdAt:        createdAt,
		domainEvents:     make([]event.DomainEvent, 0),
	}
}

// --- Accessors ---

func (a *Analysis) ID() uuid.UUID                    { return a.id }
func (a *Analysis) TenantID() uuid.UUID              { return a.tenantID }
func (a *Analysis) SubjectID() string                { return a.subjectID }
func (a *Analysis) TransactionCount() int            { return a.transactionCount }
func (a *Analysis) Result() AnalysisResult           { return a.result }
func (a *Analysis) RiskLevel() valueobject.RiskLevel { return a.result.RiskLevel }
func (a *Analysis) CreatedAt() time.Time             { return a.createdAt }

// DomainEvents returns all accumulated domain events and clears them.
func (a *Analysis) DomainEvents() []event.DomainEvent {
	evts := a.domainEvents
	a.domainEvents = make([]event.DomainEvent, 0)
	return evts
}
