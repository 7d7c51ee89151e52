package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bibbank/risk-engine/internal/domain/model"
	"github.com/bibbank/risk-engine/internal/domain/port"
	"github.com/bibbank/risk-engine/internal/domain/valueobject"
)

var _ port.AnalysisRepository = (*AnalysisRepository)(nil)

const analysisColumns = `id, tenant_id, subject_id, transaction_count, risk_level, result, created_at`

// AnalysisRepository implements port.AnalysisRepository using PostgreSQL.
type AnalysisRepository struct {
	pool *pgxpool.Pool
}

// NewAnalysisRepository creates a new PostgreSQL-backed analysis repository.
func NewAnalysisRepository(pool *pgxpool.Pool) *AnalysisRepository {
	return &AnalysisRepository{pool: pool}
}

// Save persists an analysis and its detected patterns in one transaction.
func (r *AnalysisRepository) Save(ctx context.Context, analysis *model.Analysis) error {
	result := analysis.Result()
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode analysis result: %w", err)
	}

	return WithTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			INSERT INTO analyses (
				id, tenant_id, subject_id, transaction_count,
				overall_score, probability, confidence, risk_level,
				result, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				overall_score = EXCLUDED.overall_score,
				probability = EXCLUDED.probability,
				confidence = EXCLUDED.confidence,
				risk_level = EXCLUDED.risk_level,
				result = EXCLUDED.result
		`
		_, err := tx.Exec(ctx, query,
			analysis.ID(),
			analysis.TenantID(),
			analysis.SubjectID(),
			analysis.TransactionCount(),
			result.OverallScore,
			result.Probability,
			result.Confidence,
			analysis.RiskLevel().String(),
			payload,
			analysis.CreatedAt(),
		)
		if err != nil {
			return fmt.Errorf("failed to save analysis: %w", err)
		}

		// Delete existing patterns and insert fresh ones.
		if _, err := tx.Exec(ctx, `DELETE FROM analysis_patterns WHERE analysis_id = $1`, analysis.ID()); err != nil {
			return fmt.Errorf("failed to delete old patterns: %w", err)
		}

		batch := &pgx.Batch{}
		for i, p := range result.DetectedPatterns {
			batch.Queue(
				`INSERT INTO analysis_patterns (analysis_id, tenant_id, position, pattern_type, severity, contribution)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				analysis.ID(), analysis.TenantID(), i, string(p.Type), p.Severity.String(), p.Contribution,
			)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to save patterns: %w", err)
		}
		return nil
	})
}

// FindByID retrieves an analysis by its unique identifier.
func (r *AnalysisRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Analysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM analyses WHERE tenant_id = $1 AND id = $2`

	analysis, err := scanAnalysis(r.pool.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("analysis %s: %w", id, port.ErrNotFound)
		}
		return nil, err
	}
	return analysis, nil
}

// FindBySubject lists the most recent analyses for a subject.
func (r *AnalysisRepository) FindBySubject(ctx context.Context, tenantID uuid.UUID, subjectID string, limit, offset int) ([]*model.Analysis, error) {
	query := `SELECT ` + analysisColumns + `
		FROM analyses
		WHERE tenant_id = $1 AND subject_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.pool.Query(ctx, query, tenantID, subjectID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	var analyses []*model.Analysis
	for rows.Next() {
		analysis, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, analysis)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analyses: %w", err)
	}

	return analyses, nil
}

func scanAnalysis(row pgx.Row) (*model.Analysis, error) {
	var (
		id               uuid.UUID
		tenantID         uuid.UUID
		subjectID        string
		transactionCount int
		riskLevelStr     string
		payload          []byte
		createdAt        time.Time
	)

	if err := row.Scan(&id, &tenantID, &subjectID, &transactionCount, &riskLevelStr, &payload, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan analysis: %w", err)
	}

	var result model.AnalysisResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to decode analysis result: %w", err)
	}

	riskLevel, err := valueobject.RiskLevelFromString(riskLevelStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse risk level: %w", err)
	}
	result.RiskLevel = riskLevel

	return model.ReconstructAnalysis(id, tenantID, subjectID, transactionCount, result, createdAt.UTC()), nil
}
