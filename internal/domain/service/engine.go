package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/bibbank/risk-engine/internal/domain/model"
	"github.com/bibbank/risk-engine/internal/domain/port"
	"github.com/bibbank/risk-engine/internal/domain/valueobject"
)

const tracerName = "github.com/bibbank/risk-engine/internal/domain/service"

// Outcome is everything one analysis produced. The learner consumes it.
type Outcome struct {
	AnalyzedAt time.Time
	TenantID   uuid.UUID
	SubjectID  string
	Batch      []model.Transaction
	Features   []model.FeatureVector
	Deltas     []model.CounterpartyProfile
	Stats      model.BatchStats
	Result     model.AnalysisResult
	// BaselineUnavailable is set when the stored baseline could not be
	// read; the learner must not overwrite it with a cold start.
	BaselineUnavailable bool
}

// Engine runs the scoring pipeline: extract, three detectors in parallel,
// aggregate. It reads state through the injected stores but never writes.
type Engine struct {
	extractor      *FeatureExtractor
	micro          *MicroPatternDetector
	amounts        *AmountPatternDetector
	statistical    *StatisticalDetector
	behavior       *BehaviorManager
	aggregator     *Aggregator
	baselines      port.BaselineStore
	corpus         port.CorpusStore
	counterparties port.CounterpartyStore
	metrics        port.MetricsRecorder
	logger         *slog.Logger
	tracer         trace.Tracer
	now            func() time.Time
	cfg            EngineConfig
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithMetrics sets the metrics recorder.
func WithMetrics(m port.MetricsRecorder) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine wires the pipeline.
func NewEngine(
	cfg EngineConfig,
	baselines port.BaselineStore,
	corpus port.CorpusStore,
	counterparties port.CounterpartyStore,
	logger *slog.Logger,
	opts ...EngineOption,
) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	e := &Engine{
		cfg:            cfg,
		extractor:      NewFeatureExtractor(cfg.Statistical.CorpusSeedLimit),
		micro:          NewMicroPatternDetector(cfg.Micro),
		amounts:        NewAmountPatternDetector(cfg.AmountPatterns),
		statistical:    NewStatisticalDetector(cfg.Statistical),
		behavior:       NewBehaviorManager(cfg),
		aggregator:     NewAggregator(cfg.Aggregate),
		baselines:      baselines,
		corpus:         corpus,
		counterparties: counterparties,
		metrics:        port.NopMetrics{},
		logger:         logger,
		tracer:         otel.Tracer(tracerName),
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Behavior exposes the baseline manager for the learner.
func (e *Engine) Behavior() *BehaviorManager { return e.behavior }

// Analyze scores a validated batch for subjectID within tenantID. Every
// piece of learned state it reads is scoped to that tenant. It fails only
// on an empty batch or a cancelled context; persistence failures degrade
// the result and are reported in its warnings.
func (e *Engine) Analyze(ctx context.Context, tenantID uuid.UUID, subjectID string, batch []model.Transaction) (*Outcome, error) {
	if len(batch) == 0 {
		return nil, model.NewBatchError("transactions", "batch is empty")
	}

	ctx, span := e.tracer.Start(ctx, "engine.analyze", trace.WithAttributes(
		attribute.String("tenant_id", tenantID.String()),
		attribute.String("subject_id", subjectID),
		attribute.Int("transactions", len(batch)),
	))
	defer span.End()

	out := &Outcome{TenantID: tenantID, SubjectID: subjectID, Batch: batch, AnalyzedAt: e.now()}
	var warnings []string
	degraded := false

	// 1. Load historical context.
	history, err := e.corpus.RecentEntries(ctx, tenantID, e.cfg.Statistical.CorpusSeedLimit)
	if err != nil {
		perr := model.NewPersistenceError("corpus read", err)
		e.logger.WarnContext(ctx, "historical corpus unavailable", "subject_id", subjectID, "error", perr)
		warnings = append(warnings, perr.Error()+"; history-derived features use neutral defaults")
		history = nil
		degraded = true
	}

	// 2. Extract features.
	start := time.Now()
	out.Features = e.extractor.Extract(tenantID, subjectID, batch, history)
	e.metrics.ObserveStage("extract", time.Since(start))

	// 3. Run the detectors concurrently.
	var (
		micro       MicroReport
		amounts     AmountReport
		anomalies   AnomalyReport
		behavior    BehaviorReport
		patternWarn []string
		behaveWarn  []string
	)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		gctx, s := e.tracer.Start(gctx, "detect.pattern")
		defer s.End()
		t0 := time.Now()

		stored, err := e.counterparties.GetProfiles(gctx, tenantID, counterpartyNames(batch))
		if err != nil {
			perr := model.NewPersistenceError("counterparty read", err)
			e.logger.WarnContext(gctx, "counterparty profiles unavailable", "subject_id", subjectID, "error", perr)
			patternWarn = append(patternWarn, perr.Error()+"; micro-pattern analysis used this batch only")
			stored = nil
		}
		micro = e.micro.Analyze(batch, stored, out.AnalyzedAt)
		amounts = e.amounts.Analyze(batch)

		e.metrics.ObserveStage("detect.pattern", time.Since(t0))
		return gctx.Err()
	})

	g.Go(func() error {
		_, s := e.tracer.Start(gctx, "detect.statistical")
		defer s.End()
		t0 := time.Now()

		anomalies = e.statistical.Analyze(batch, model.CorpusAmounts(history, e.cfg.Statistical.CorpusSeedLimit))
		for _, a := range anomalies.Abstentions {
			e.logger.DebugContext(gctx, "statistical lens abstained", "lens", a.Lens, "have", a.Have, "need", a.Need)
			e.metrics.LensAbstained(a.Lens)
		}

		e.metrics.ObserveStage("detect.statistical", time.Since(t0))
		return gctx.Err()
	})

	g.Go(func() error {
		gctx, s := e.tracer.Start(gctx, "detect.behavior")
		defer s.End()
		t0 := time.Now()

		stats := e.behavior.Stats(batch, out.Features)
		baseline, err := e.baselines.GetBaseline(gctx, tenantID, subjectID)
		if err != nil {
			perr := model.NewPersistenceError("baseline read", err)
			e.logger.WarnContext(gctx, "behaviour baseline unavailable", "subject_id", subjectID, "error", perr)
			behaveWarn = append(behaveWarn, perr.Error()+"; behavioural score degraded to neutral")
			out.BaselineUnavailable = true
			behavior = BehaviorReport{Stats: stats}
		} else {
			behavior = e.behavior.Analyze(stats, baseline)
		}
		out.Stats = stats

		e.metrics.ObserveStage("detect.behavior", time.Since(t0))
		return gctx.Err()
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analysis abandoned: %w", err)
	}
	if len(patternWarn) > 0 || len(behaveWarn) > 0 {
		degraded = true
	}
	warnings = append(warnings, patternWarn...)
	warnings = append(warnings, behaveWarn...)

	// 4. Aggregate.
	_, aggSpan := e.tracer.Start(ctx, "aggregate")
	patternScore := micro.Score
	if amounts.Score > patternScore {
		patternScore = amounts.Score
	}
	verdict := e.aggregator.Aggregate(AggregateInput{
		Pattern:          patternScore,
		Behavior:         behavior.Score,
		Anomaly:          anomalies.Score,
		TransactionCount: len(batch),
		Degraded:         degraded,
	})
	aggSpan.End()

	patterns := make([]model.DetectedPattern, 0)
	patterns = append(patterns, micro.Patterns()...)
	patterns = append(patterns, amounts.Patterns...)
	patterns = append(patterns, anomalies.Patterns()...)
	patterns = append(patterns, behavior.Patterns()...)

	out.Deltas = micro.Deltas
	out.Result = model.AnalysisResult{
		OverallScore:     verdict.OverallScore,
		Probability:      verdict.Probability,
		Confidence:       verdict.Confidence,
		RiskLevel:        valueobject.RiskLevelFromScore(verdict.OverallScore),
		SubScores:        verdict.SubScores,
		DetectedPatterns: patterns,
		Recommendations:  verdict.Recommendations,
		Warnings:         warnings,
	}

	span.SetAttributes(
		attribute.Int("overall_score", verdict.OverallScore),
		attribute.Int("patterns", len(patterns)),
	)
	e.metrics.AnalysisCompleted(out.Result.RiskLevel.String(), verdict.OverallScore)

	return out, nil
}

func counterpartyNames(batch []model.Transaction) []string {
	seen := make(map[string]bool)
	names := make([]string, 0)
	for _, t := range batch {
		if !seen[t.Counterparty()] {
			seen[t.Counterparty()] = true
			names = append(names, t.Counterparty())
		}
	}
	return names
}
