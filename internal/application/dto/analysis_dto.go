package dto

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bibbank/risk-engine/internal/domain/model"
)

// TransactionDTO is one transaction as submitted by a caller. Amount is a
// decimal string so that no precision is lost in transit.
type TransactionDTO struct {
	Timestamp    *time.Time        `json:"timestamp,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	ID           string            `json:"id"`
	Amount       string            `json:"amount"`
	Counterparty string            `json:"counterparty"`
	Category     string            `json:"category,omitempty"`
}

// AnalyzeTransactionsRequest is the input DTO for the AnalyzeTransactions use case.
type AnalyzeTransactionsRequest struct {
	SubjectID    string           `json:"subject_id"`
	Transactions []TransactionDTO `json:"transactions"`
	TenantID     uuid.UUID        `json:"tenant_id"`
}

// ToInputs parses the wire transactions into domain inputs. Amount and
// counterparty are mandatory.
func (r AnalyzeTransactionsRequest) ToInputs() ([]model.TransactionInput, error) {
	inputs := make([]model.TransactionInput, 0, len(r.Transactions))
	for i, t := range r.Transactions {
		raw := strings.TrimSpace(t.Amount)
		if raw == "" {
			return nil, &model.InputError{Index: i, Field: "amount", Reason: "is required"}
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, &model.InputError{Index: i, Field: "amount", Reason: "is not a decimal number"}
		}

		in := model.TransactionInput{
			ID:           t.ID,
			Amount:       amount,
			Counterparty: t.Counterparty,
			Category:     t.Category,
			Metadata:     t.Metadata,
		}
		if t.Timestamp != nil {
			in.Timestamp = *t.Timestamp
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// PatternDTO is a detected pattern in a response.
type PatternDTO struct {
	Evidence     map[string]any `json:"evidence,omitempty"`
	Type         string         `json:"type"`
	Description  string         `json:"description"`
	Severity     string         `json:"severity"`
	Contribution int            `json:"contribution"`
}

// RecommendationDTO is a recommendation in a response.
type RecommendationDTO struct {
	Priority    string `json:"priority"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

// AnalysisResponse is the output DTO returned after an analysis.
type AnalysisResponse struct {
	CreatedAt        time.Time           `json:"created_at"`
	SubjectID        string              `json:"subject_id"`
	RiskLevel        string              `json:"risk_level"`
	DetectedPatterns []PatternDTO        `json:"detected_patterns"`
	Recommendations  []RecommendationDTO `json:"recommendations"`
	Warnings         []string            `json:"warnings,omitempty"`
	SubScores        model.SubScores     `json:"sub_scores"`
	OverallScore     int                 `json:"overall_score"`
	Probability      int                 `json:"probability"`
	Confidence       int                 `json:"confidence"`
	TransactionCount int                 `json:"transaction_count"`
	ID               uuid.UUID           `json:"id"`
	TenantID         uuid.UUID           `json:"tenant_id"`
}

// GetAnalysisRequest is the input DTO for retrieving an analysis.
type GetAnalysisRequest struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	AnalysisID uuid.UUID `json:"analysis_id"`
}

// FromModel maps a domain model to the response DTO.
func FromModel(a *model.Analysis) AnalysisResponse {
	result := a.Result()

	patterns := make([]PatternDTO, 0, len(result.DetectedPatterns))
	for _, p := range result.DetectedPatterns {
		patterns = append(patterns, PatternDTO{
			Type:         string(p.Type),
			Description:  p.Description,
			Severity:     p.Severity.String(),
			Evidence:     p.Evidence,
			Contribution: p.Contribution,
		})
	}

	recs := make([]RecommendationDTO, 0, len(result.Recommendations))
	for _, r := range result.Recommendations {
		recs = append(recs, RecommendationDTO{
			Priority:    string(r.Priority),
			Action:      r.Action,
			Description: r.Description,
		})
	}

	return AnalysisResponse{
		ID:               a.ID(),
		TenantID:         a.TenantID(),
		SubjectID:        a.SubjectID(),
		TransactionCount: a.TransactionCount(),
		OverallScore:     result.OverallScore,
		Probability:      result.Probability,
		Confidence:       result.Confidence,
		RiskLevel:        result.RiskLevel.String(),
		SubScores:        result.SubScores,
		DetectedPatterns: patterns,
		Recommendations:  recs,
		Warnings:         result.Warnings,
		CreatedAt:        a.CreatedAt(),
	}
}

// ListAnalysesRequest is the input DTO for listing a subject's analyses.
type ListAnalysesRequest struct {
	SubjectID string    `json:"subject_id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Limit     int       `json:"limit"`
	Offset    int       `json:"offset"`
}

// ListAnalysesResponse is the output DTO for ListAnalyses.
type ListAnalysesResponse struct {
	Analyses []AnalysisResponse `json:"analyses"`
}
