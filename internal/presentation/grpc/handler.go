package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bibbank/risk-engine/internal/application/dto"
	"github.com/bibbank/risk-engine/internal/auth"
	"github.com/bibbank/risk-engine/internal/domain/model"
	"github.com/bibbank/risk-engine/internal/domain/port"
)

// Analyzer scores a batch.
type Analyzer interface {
	Execute(ctx context.Context, req dto.AnalyzeTransactionsRequest) (dto.AnalysisResponse, error)
}

// AnalysisGetter fetches one stored analysis.
type AnalysisGetter interface {
	Execute(ctx context.Context, req dto.GetAnalysisRequest) (dto.AnalysisResponse, error)
}

// AnalysisLister pages through a subject's analyses.
type AnalysisLister interface {
	Execute(ctx context.Context, req dto.ListAnalysesRequest) (dto.ListAnalysesResponse, error)
}

var _ RiskEngineServiceServer = (*RiskEngineHandler)(nil)

// RiskEngineHandler implements RiskEngineServiceServer on top of the use cases.
type RiskEngineHandler struct {
	UnimplementedRiskEngineServiceServer
	analyze Analyzer
	get     AnalysisGetter
	list    AnalysisLister
	logger  *slog.Logger
}

// NewRiskEngineHandler creates a new gRPC handler.
func NewRiskEngineHandler(analyze Analyzer, get AnalysisGetter, list AnalysisLister, logger *slog.Logger) *RiskEngineHandler {
	return &RiskEngineHandler{
		analyze: analyze,
		get:     get,
		list:    list,
		logger:  logger,
	}
}

// AnalyzeTransactions scores a batch for the caller's tenant.
func (h *RiskEngineHandler) AnalyzeTransactions(ctx context.Context, req *AnalyzeTransactionsRequest) (*AnalyzeTransactionsResponse, error) {
	claims, err := auth.Require(ctx, auth.SubmitRoles...)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	txs := make([]dto.TransactionDTO, 0, len(req.Transactions))
	for i, t := range req.Transactions {
		if t == nil {
			return nil, status.Errorf(codes.InvalidArgument, "transactions[%d] is required", i)
		}
		d := dto.TransactionDTO{
			ID:           t.ID,
			Amount:       t.Amount,
			Counterparty: t.Counterparty,
			Category:     t.Category,
			Metadata:     t.Metadata,
		}
		if t.Timestamp != "" {
			ts, err := time.Parse(time.RFC3339, t.Timestamp)
			if err != nil {
				return nil, status.Errorf(codes.InvalidArgument, "invalid transactions[%d].timestamp: %v", i, err)
			}
			d.Timestamp = &ts
		}
		txs = append(txs, d)
	}

	resp, err := h.analyze.Execute(ctx, dto.AnalyzeTransactionsRequest{
		TenantID:     claims.TenantID,
		SubjectID:    req.SubjectID,
		Transactions: txs,
	})
	if err != nil {
		return nil, h.toStatus(err, "analyze transactions",
			slog.String("tenant_id", claims.TenantID.String()),
			slog.String("subject_id", req.SubjectID),
		)
	}

	return &AnalyzeTransactionsResponse{Analysis: toAnalysisMsg(resp)}, nil
}

// GetAnalysis returns a stored analysis of the caller's tenant.
func (h *RiskEngineHandler) GetAnalysis(ctx context.Context, req *GetAnalysisRequest) (*GetAnalysisResponse, error) {
	claims, err := auth.Require(ctx, auth.ReadRoles...)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	id, err := uuid.Parse(req.ID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid id: %v", err)
	}

	resp, err := h.get.Execute(ctx, dto.GetAnalysisRequest{TenantID: claims.TenantID, AnalysisID: id})
	if err != nil {
		return nil, h.toStatus(err, "get analysis", slog.String("analysis_id", id.String()))
	}

	return &GetAnalysisResponse{Analysis: toAnalysisMsg(resp)}, nil
}

// ListAnalyses pages through a subject's analyses, newest first.
func (h *RiskEngineHandler) ListAnalyses(ctx context.Context, req *ListAnalysesRequest) (*ListAnalysesResponse, error) {
	claims, err := auth.Require(ctx, auth.ReadRoles...)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	resp, err := h.list.Execute(ctx, dto.ListAnalysesRequest{
		TenantID:  claims.TenantID,
		SubjectID: req.SubjectID,
		Limit:     int(req.Limit),
		Offset:    int(req.Offset),
	})
	if err != nil {
		return nil, h.toStatus(err, "list analyses", slog.String("subject_id", req.SubjectID))
	}

	out := &ListAnalysesResponse{Analyses: make([]*AnalysisMsg, 0, len(resp.Analyses))}
	for _, a := range resp.Analyses {
		out.Analyses = append(out.Analyses, toAnalysisMsg(a))
	}
	return out, nil
}

// toStatus maps use case errors onto gRPC codes. Only unexpected failures
// are logged at ERROR; their detail never reaches the caller.
func (h *RiskEngineHandler) toStatus(err error, op string, attrs ...any) error {
	var inputErr *model.InputError
	switch {
	case errors.As(err, &inputErr):
		h.logger.Info("rejected "+op, append(attrs, slog.String("error", inputErr.Error()))...)
		return status.Error(codes.InvalidArgument, inputErr.Error())
	case errors.Is(err, port.ErrNotFound):
		return status.Error(codes.NotFound, "analysis not found")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	default:
		h.logger.Error(fmt.Sprintf("failed to %s", op), append(attrs, slog.String("error", err.Error()))...)
		return status.Error(codes.Internal, "internal error")
	}
}

func toAnalysisMsg(r dto.AnalysisResponse) *AnalysisMsg {
	patterns := make([]*PatternMsg, 0, len(r.DetectedPatterns))
	for _, p := range r.DetectedPatterns {
		patterns = append(patterns, &PatternMsg{
			Type:         p.Type,
			Description:  p.Description,
			Severity:     p.Severity,
			Evidence:     p.Evidence,
			Contribution: int32(p.Contribution),
		})
	}
	recs := make([]*RecommendationMsg, 0, len(r.Recommendations))
	for _, rec := range r.Recommendations {
		recs = append(recs, &RecommendationMsg{
			Priority:    rec.Priority,
			Action:      rec.Action,
			Description: rec.Description,
		})
	}

	return &AnalysisMsg{
		ID:               r.ID.String(),
		TenantID:         r.TenantID.String(),
		SubjectID:        r.SubjectID,
		TransactionCount: int32(r.TransactionCount),
		OverallScore:     int32(r.OverallScore),
		Probability:      int32(r.Probability),
		Confidence:       int32(r.Confidence),
		RiskLevel:        r.RiskLevel,
		SubScores: &SubScoresMsg{
			Pattern:   int32(r.SubScores.Pattern),
			Behavior:  int32(r.SubScores.Behavior),
			Anomaly:   int32(r.SubScores.Anomaly),
			Frequency: int32(r.SubScores.Frequency),
		},
		DetectedPatterns: patterns,
		Recommendations:  recs,
		Warnings:         r.Warnings,
		CreatedAt:        r.CreatedAt.Format(time.RFC3339Nano),
	}
}
