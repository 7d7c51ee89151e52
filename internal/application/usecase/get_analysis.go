package usecase

import (
	"context"
	"fmt"

	"github.com/bibbank/risk-engine/internal/application/dto"
	"github.com/bibbank/risk-engine/internal/domain/port"
)

// GetAnalysis is the use case for retrieving a stored analysis.
type GetAnalysis struct {
	repo port.AnalysisRepository
}

// NewGetAnalysis creates a new GetAnalysis use case.
func NewGetAnalysis(repo port.AnalysisRepository) *GetAnalysis {
	return &GetAnalysis{repo: repo}
}

// Execute retrieves an analysis by ID.
func (uc *GetAnalysis) Execute(ctx context.Context, req dto.GetAnalysisRequest) (dto.AnalysisResponse, error) {
	analysis, err := uc.repo.FindByID(ctx, req.TenantID, req.AnalysisID)
	if err != nil {
		return dto.AnalysisResponse{}, fmt.Errorf("failed to find analysis: %w", err)
	}
	if analysis == nil {
		return dto.AnalysisResponse{}, fmt.Errorf("analysis %s: %w", req.AnalysisID, port.ErrNotFound)
	}

	return dto.FromModel(analysis), nil
}
