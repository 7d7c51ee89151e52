package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bibbank/risk-engine/internal/application/dto"
	"github.com/bibbank/risk-engine/internal/domain/model"
	"github.com/bibbank/risk-engine/internal/domain/port"
	"github.com/bibbank/risk-engine/internal/domain/service"
)

// AnalyzeTransactions is the use case for scoring a transaction batch.
type AnalyzeTransactions struct {
	repo      port.AnalysisRepository
	publisher port.EventPublisher
	engine    *service.Engine
	learner   *service.Learner
	logger    *slog.Logger
	now       func() time.Time
}

// NewAnalyzeTransactions creates a new AnalyzeTransactions use case.
func NewAnalyzeTransactions(
	repo port.AnalysisRepository,
	publisher port.EventPublisher,
	engine *service.Engine,
	learner *service.Learner,
	logger *slog.Logger,
) *AnalyzeTransactions {
	return &AnalyzeTransactions{
		repo:      repo,
		publisher: publisher,
		engine:    engine,
		learner:   learner,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Execute validates the batch, scores it, folds the outcome into the
// learned state, persists the analysis and publishes its events. Only an
// invalid batch or an abandoned analysis returns an error; storage and
// messaging failures are reported as warnings on the response.
func (uc *AnalyzeTransactions) Execute(ctx context.Context, req dto.AnalyzeTransactionsRequest) (dto.AnalysisResponse, error) {
	// 1. Validate the request and build the batch.
	if req.TenantID == uuid.Nil {
		return dto.AnalysisResponse{}, model.NewBatchError("tenant_id", "is required")
	}
	subjectID := strings.TrimSpace(req.SubjectID)
	if subjectID == "" {
		return dto.AnalysisResponse{}, model.NewBatchError("subject_id", "is required")
	}
	inputs, err := req.ToInputs()
	if err != nil {
		return dto.AnalysisResponse{}, err
	}
	batch, err := model.NewBatch(inputs, uc.now())
	if err != nil {
		return dto.AnalysisResponse{}, err
	}

	// 2. Run the scoring pipeline.
	outcome, err := uc.engine.Analyze(ctx, req.TenantID, subjectID, batch)
	if err != nil {
		return dto.AnalysisResponse{}, fmt.Errorf("failed to analyze transactions: %w", err)
	}

	// 3. Fold the outcome into baseline, profiles and corpus.
	result := outcome.Result
	for _, w := range uc.learner.Learn(ctx, outcome) {
		result.AddWarning(w)
	}

	// 4. Create the analysis aggregate.
	analysis, err := model.NewAnalysis(req.TenantID, subjectID, len(batch), result, outcome.AnalyzedAt)
	if err != nil {
		return dto.AnalysisResponse{}, fmt.Errorf("failed to create analysis: %w", err)
	}
	resp := dto.FromModel(analysis)

	// 5. Persist the analysis.
	if err := uc.repo.Save(ctx, analysis); err != nil {
		perr := model.NewPersistenceError("analysis save", err)
		uc.logger.ErrorContext(ctx, "failed to save analysis",
			"analysis_id", analysis.ID(), "subject_id", subjectID, "error", perr)
		resp.Warnings = append(resp.Warnings, perr.Error()+"; analysis cannot be retrieved later")
	}

	// 6. Publish domain events to the alerting collaborator.
	if events := analysis.DomainEvents(); len(events) > 0 {
		if err := uc.publisher.Publish(ctx, events...); err != nil {
			uc.logger.ErrorContext(ctx, "failed to publish events",
				"analysis_id", analysis.ID(), "subject_id", subjectID, "error", err)
			resp.Warnings = append(resp.Warnings, fmt.Sprintf("failed to publish events: %v", err))
		}
	}

	uc.logger.InfoContext(ctx, "analysis completed",
		"analysis_id", analysis.ID(),
		"subject_id", subjectID,
		"transactions", len(batch),
		"overall_score", resp.OverallScore,
		"risk_level", resp.RiskLevel,
		"warnings", len(resp.Warnings),
	)

	return resp, nil
}
