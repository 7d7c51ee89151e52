package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bibbank/risk-engine/internal/domain/port"
)

const meterName = "github.com/bibbank/risk-engine"

var _ port.MetricsRecorder = (*Recorder)(nil)

// Recorder publishes pipeline measurements through an OpenTelemetry meter.
type Recorder struct {
	stageLatency   metric.Float64Histogram
	analyses       metric.Int64Counter
	overallScore   metric.Int64Histogram
	lensAbstained  metric.Int64Counter
	learnerSkipped metric.Int64Counter
}

// NewRecorder creates the instruments on the given provider.
func NewRecorder(provider metric.MeterProvider) (*Recorder, error) {
	meter := provider.Meter(meterName)

	stageLatency, err := meter.Float64Histogram("risk_stage_duration_seconds",
		metric.WithDescription("Latency of each scoring pipeline stage."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create stage histogram: %w", err)
	}
	analyses, err := meter.Int64Counter("risk_analyses_total",
		metric.WithDescription("Completed analyses by risk level."))
	if err != nil {
		return nil, fmt.Errorf("failed to create analyses counter: %w", err)
	}
	overallScore, err := meter.Int64Histogram("risk_overall_score",
		metric.WithDescription("Distribution of overall risk scores."),
		metric.WithExplicitBucketBoundaries(10, 20, 35, 50, 60, 70, 80, 90, 100))
	if err != nil {
		return nil, fmt.Errorf("failed to create score histogram: %w", err)
	}
	lensAbstained, err := meter.Int64Counter("risk_lens_abstained_total",
		metric.WithDescription("Statistical lenses that abstained for lack of data."))
	if err != nil {
		return nil, fmt.Errorf("failed to create abstention counter: %w", err)
	}
	learnerSkipped, err := meter.Int64Counter("risk_learner_skipped_total",
		metric.WithDescription("Learner steps skipped after a persistence failure or cancellation."))
	if err != nil {
		return nil, fmt.Errorf("failed to create learner counter: %w", err)
	}

	return &Recorder{
		stageLatency:   stageLatency,
		analyses:       analyses,
		overallScore:   overallScore,
		lensAbstained:  lensAbstained,
		learnerSkipped: learnerSkipped,
	}, nil
}

func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	r.stageLatency.Record(context.Background(), d.Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)))
}

func (r *Recorder) AnalysisCompleted(riskLevel string, overallScore int) {
	attrs := metric.WithAttributes(attribute.String("risk_level", riskLevel))
	r.analyses.Add(context.Background(), 1, attrs)
	r.overallScore.Record(context.Background(), int64(overallScore), attrs)
}

func (r *Recorder) LensAbstained(lens string) {
	r.lensAbstained.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("lens", lens)))
}

func (r *Recorder) LearnerSkipped(step string) {
	r.learnerSkipped.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("step", step)))
}
