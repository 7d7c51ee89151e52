package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/bibbank/risk-engine/internal/domain/model"
	"github.com/bibbank/risk-engine/internal/domain/port"
)

// Learner steps reported to metrics when skipped.
const (
	LearnStepBaseline      = "baseline"
	LearnStepCounterparty  = "counterparty"
	LearnStepCorpus        = "corpus"
	LearnStepAll           = "all"
	learnerCancelledReason = "analysis cancelled before learning; baseline and corpus left unchanged"
)

// Learner folds a completed analysis back into the shared state: the
// subject's baseline, the counterparty profiles, and the historical corpus.
type Learner struct {
	baselines      port.BaselineStore
	corpus         port.CorpusStore
	counterparties port.CounterpartyStore
	behavior       *BehaviorManager
	locks          *SubjectLocks
	metrics        port.MetricsRecorder
	logger         *slog.Logger
	tracer         trace.Tracer
}

// NewLearner creates a Learner. metrics may be nil.
func NewLearner(
	baselines port.BaselineStore,
	corpus port.CorpusStore,
	counterparties port.CounterpartyStore,
	behavior *BehaviorManager,
	locks *SubjectLocks,
	metrics port.MetricsRecorder,
	logger *slog.Logger,
) *Learner {
	if metrics == nil {
		metrics = port.NopMetrics{}
	}
	return &Learner{
		baselines:      baselines,
		corpus:         corpus,
		counterparties: counterparties,
		behavior:       behavior,
		locks:          locks,
		metrics:        metrics,
		logger:         logger,
		tracer:         otel.Tracer(tracerName),
	}
}

// Learn applies the outcome and returns a warning for every step it had
// to skip. Only a fully formed outcome may be passed; a cancelled context
// skips learning entirely. Once started, learning runs to completion
// even if ctx is cancelled so that no step is left half applied.
func (l *Learner) Learn(ctx context.Context, out *Outcome) []string {
	if out == nil {
		return nil
	}
	if ctx.Err() != nil {
		l.metrics.LearnerSkipped(LearnStepAll)
		return []string{learnerCancelledReason}
	}

	ctx = context.WithoutCancel(ctx)
	ctx, span := l.tracer.Start(ctx, "learn")
	defer span.End()

	var warnings []string

	// 1. Baseline read-modify-write, serialised per subject.
	if w := l.learnBaseline(ctx, out); w != "" {
		warnings = append(warnings, w)
	}

	// 2. Counterparty deltas.
	if len(out.Deltas) > 0 {
		if err := l.counterparties.ApplyDeltas(ctx, out.TenantID, out.Deltas); err != nil {
			warnings = append(warnings, l.skip(ctx, LearnStepCounterparty, out.SubjectID, "counterparty update", err))
		}
	}

	// 3. Corpus append.
	entry := model.CorpusEntry{
		Timestamp:    out.AnalyzedAt,
		TenantID:     out.TenantID,
		SubjectID:    out.SubjectID,
		Transactions: out.Batch,
		Result:       out.Result,
	}
	if err := l.corpus.AppendEntry(ctx, entry); err != nil {
		warnings = append(warnings, l.skip(ctx, LearnStepCorpus, out.SubjectID, "corpus append", err))
	}

	return warnings
}

func (l *Learner) learnBaseline(ctx context.Context, out *Outcome) string {
	if out.BaselineUnavailable {
		l.metrics.LearnerSkipped(LearnStepBaseline)
		return "baseline update skipped: stored baseline could not be read"
	}

	unlock := l.locks.Lock(out.TenantID.String() + "/" + out.SubjectID)
	defer unlock()

	blend := func(current model.BehaviorBaseline) model.BehaviorBaseline {
		current.TenantID = out.TenantID
		current.SubjectID = out.SubjectID
		return l.behavior.Update(current, out.Stats, out.AnalyzedAt)
	}

	var next model.BehaviorBaseline
	if updater, ok := l.baselines.(port.BaselineUpdater); ok {
		// Atomic across replicas sharing the store.
		var err error
		next, err = updater.UpdateBaseline(ctx, out.TenantID, out.SubjectID, blend)
		if err != nil {
			return l.skip(ctx, LearnStepBaseline, out.SubjectID, "baseline update", err)
		}
	} else {
		// Re-read under the lock so concurrent analyses apply in completion order.
		current, err := l.baselines.GetBaseline(ctx, out.TenantID, out.SubjectID)
		if err != nil {
			return l.skip(ctx, LearnStepBaseline, out.SubjectID, "baseline read", err)
		}
		next = blend(current)
		if err := l.baselines.SetBaseline(ctx, next); err != nil {
			return l.skip(ctx, LearnStepBaseline, out.SubjectID, "baseline write", err)
		}
	}

	l.logger.DebugContext(ctx, "baseline updated",
		"tenant_id", out.TenantID.String(),
		"subject_id", out.SubjectID,
		"update_count", next.UpdateCount,
		"average_amount", next.AverageAmount,
	)
	return ""
}

func (l *Learner) skip(ctx context.Context, step, subjectID, op string, err error) string {
	perr := model.NewPersistenceError(op, err)
	l.logger.WarnContext(ctx, "learner step skipped", "step", step, "subject_id", subjectID, "error", perr)
	l.metrics.LearnerSkipped(step)
	return perr.Error() + "; " + step + " not updated"
}
