package port

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bibbank/risk-engine/internal/domain/event"
	"github.com/bibbank/risk-engine/internal/domain/model"
)

// ErrNotFound is returned by stores when the requested record does not exist.
var ErrNotFound = errors.New("not found")

// AnalysisRepository defines the persistence port for completed analyses.
type AnalysisRepository interface {
	// Save persists a completed analysis.
	Save(ctx context.Context, analysis *model.Analysis) error

	// FindByID retrieves an analysis by its unique identifier.
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Analysis, error)

	// FindBySubject lists the most recent analyses for a subject.
	FindBySubject(ctx context.Context, tenantID uuid.UUID, subjectID string, limit, offset int) ([]*model.Analysis, error)
}

// BaselineStore is the key-value collaborator holding behaviour baselines,
// keyed by tenant and subject. Get returns a zero baseline and no error
// when the subject is unknown.
type BaselineStore interface {
	GetBaseline(ctx context.Context, tenantID uuid.UUID, subjectID string) (model.BehaviorBaseline, error)
	SetBaseline(ctx context.Context, baseline model.BehaviorBaseline) error
}

// BaselineUpdater is implemented by baseline stores that can apply a
// read-modify-write atomically across processes. fn may run more than once
// and must be free of side effects.
type BaselineUpdater interface {
	UpdateBaseline(
		ctx context.Context,
		tenantID uuid.UUID,
		subjectID string,
		fn func(current model.BehaviorBaseline) model.BehaviorBaseline,
	) (model.BehaviorBaseline, error)
}

// CorpusStore is the key-value collaborator holding one historical corpus
// per tenant.
type CorpusStore interface {
	// AppendEntry adds an entry to its tenant's corpus and evicts the
	// oldest past the cap in one atomic step.
	AppendEntry(ctx context.Context, entry model.CorpusEntry) error

	// RecentEntries returns up to limit entries of the tenant's corpus,
	// newest first.
	RecentEntries(ctx context.Context, tenantID uuid.UUID, limit int) ([]model.CorpusEntry, error)
}

// CounterpartyStore holds running counterparty profiles per tenant.
type CounterpartyStore interface {
	// GetProfiles returns the tenant's stored profiles for the given names.
	// Unknown names are absent from the map.
	GetProfiles(ctx context.Context, tenantID uuid.UUID, names []string) (map[string]model.CounterpartyProfile, error)

	// ApplyDeltas adds each delta to the tenant's stored profile atomically
	// per counterparty and records the derived flags.
	ApplyDeltas(ctx context.Context, tenantID uuid.UUID, deltas []model.CounterpartyProfile) error
}

// EventPublisher defines the port for publishing domain events to the
// alerting collaborator.
type EventPublisher interface {
	// Publish sends one or more domain events to the messaging infrastructure.
	Publish(ctx context.Context, events ...event.DomainEvent) error
}

// MetricsRecorder receives pipeline measurements. Implementations must be
// safe for concurrent use.
type MetricsRecorder interface {
	ObserveStage(stage string, d time.Duration)
	AnalysisCompleted(riskLevel string, overallScore int)
	LensAbstained(lens string)
	LearnerSkipped(step string)
}

// NopMetrics discards every measurement.
type NopMetrics struct{}

func (NopMetrics) ObserveStage(string, time.Duration) {}
func (NopMetrics) AnalysisCompleted(string, int)      {}
func (NopMetrics) LensAbstained(string)               {}
func (NopMetrics) LearnerSkipped(string)              {}
