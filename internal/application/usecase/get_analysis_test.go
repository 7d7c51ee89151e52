package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/risk-engine/internal/application/dto"
	"github.com/bibbank/risk-engine/internal/application/usecase"
	"github.com/bibbank/risk-engine/internal/domain/model"
	"github.com/bibbank/risk-engine/internal/domain/port"
	"github.com/bibbank/risk-engine/internal/domain/valueobject"
)

func TestGetAnalysis_Execute(t *testing.T) {
	t.Run("successfully retrieves an analysis", func(t *testing.T) {
		tenantID := uuid.New()
		analysisID := uuid.New()
		now := time.Now().UTC()

		analysis := model.ReconstructAnalysis(analysisID, tenantID, "acct-7", 4, model.AnalysisResult{
			OverallScore: 12,
			Probability:  10,
			Confidence:   90,
			RiskLevel:    valueobject.RiskLevelLow,
		}, now)

		repo := &mockAnalysisRepository{
			findByIDFunc: func(_ context.Context, tid, id uuid.UUID) (*model.Analysis, error) {
				assert.Equal(t, tenantID, tid)
				assert.Equal(t, analysisID, id)
				return analysis, nil
			},
		}

		uc := usecase.NewGetAnalysis(repo)

		req := dto.GetAnalysisRequest{TenantID: tenantID, AnalysisID: analysisID}
		resp, err := uc.Execute(context.Background(), req)

		require.NoError(t, err)
		assert.Equal(t, analysisID, resp.ID)
		assert.Equal(t, tenantID, resp.TenantID)
		assert.Equal(t, "acct-7", resp.SubjectID)
		assert.Equal(t, "LOW", resp.RiskLevel)
		assert.Equal(t, 12, resp.OverallScore)
		assert.Equal(t, 4, resp.TransactionCount)
	})

	t.Run("fails when analysis not found", func(t *testing.T) {
		repo := &mockAnalysisRepository{
			findByIDFunc: func(_ context.Context, _, _ uuid.UUID) (*model.Analysis, error) {
				return nil, fmt.Errorf("lookup: %w", port.ErrNotFound)
			},
		}

		uc := usecase.NewGetAnalysis(repo)

		_, err := uc.Execute(context.Background(), dto.GetAnalysisRequest{TenantID: uuid.New(), AnalysisID: uuid.New()})

		require.Error(t, err)
		assert.True(t, errors.Is(err, port.ErrNotFound))
		assert.Contains(t, err.Error(), "failed to find analysis")
	})

	t.Run("nil analysis maps to not found", func(t *testing.T) {
		repo := &mockAnalysisRepository{
			findByIDFunc: func(_ context.Context, _, _ uuid.UUID) (*model.Analysis, error) {
				return nil, nil
			},
		}

		uc := usecase.NewGetAnalysis(repo)

		_, err := uc.Execute(context.Background(), dto.GetAnalysisRequest{TenantID: uuid.New(), AnalysisID: uuid.New()})

		require.Error(t, err)
		assert.True(t, errors.Is(err, port.ErrNotFound))
	})
}
