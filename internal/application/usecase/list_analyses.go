package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/bibbank/risk-engine/internal/application/dto"
	"github.com/bibbank/risk-engine/internal/domain/model"
	"github.com/bibbank/risk-engine/internal/domain/port"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ListAnalyses is the use case for paging through a subject's analyses.
type ListAnalyses struct {
	repo port.AnalysisRepository
}

// NewListAnalyses creates a new ListAnalyses use case.
func NewListAnalyses(repo port.AnalysisRepository) *ListAnalyses {
	return &ListAnalyses{repo: repo}
}

// Execute returns the subject's analyses, newest first. Limit defaults to 20
// and is capped at 100.
func (uc *ListAnalyses) Execute(ctx context.Context, req dto.ListAnalysesRequest) (dto.ListAnalysesResponse, error) {
	subjectID := strings.TrimSpace(req.SubjectID)
	if subjectID == "" {
		return dto.ListAnalysesResponse{}, model.NewBatchError("subject_id", "is required")
	}
	if req.Offset < 0 {
		return dto.ListAnalysesResponse{}, model.NewBatchError("offset", "must not be negative")
	}

	limit := req.Limit
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	analyses, err := uc.repo.FindBySubject(ctx, req.TenantID, subjectID, limit, req.Offset)
	if err != nil {
		return dto.ListAnalysesResponse{}, fmt.Errorf("failed to list analyses: %w", err)
	}

	resp := dto.ListAnalysesResponse{Analyses: make([]dto.AnalysisResponse, 0, len(analyses))}
	for _, a := range analyses {
		resp.Analyses = append(resp.Analyses, dto.FromModel(a))
	}
	return resp, nil
}
