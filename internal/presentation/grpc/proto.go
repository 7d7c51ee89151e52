package grpc

// Stand-in for generated code from bib/risk/v1/risk.proto. Messages travel
// with the JSON codec registered in codec.go.

import (
	"context"

	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "bib.risk.v1.RiskEngineService"

// Full method names, as seen by interceptors.
const (
	MethodAnalyzeTransactions = "/" + ServiceName + "/AnalyzeTransactions"
	MethodGetAnalysis         = "/" + ServiceName + "/GetAnalysis"
	MethodListAnalyses        = "/" + ServiceName + "/ListAnalyses"
)

// TransactionMsg is one transaction in an AnalyzeTransactionsRequest.
// Timestamp is RFC 3339 and optional.
type TransactionMsg struct {
	Metadata     map[string]string `json:"metadata,omitempty"`
	ID           string            `json:"id"`
	Amount       string            `json:"amount"`
	Counterparty string            `json:"counterparty"`
	Category     string            `json:"category,omitempty"`
	Timestamp    string            `json:"timestamp,omitempty"`
}

// AnalyzeTransactionsRequest is the AnalyzeTransactions request message.
type AnalyzeTransactionsRequest struct {
	SubjectID    string            `json:"subject_id"`
	Transactions []*TransactionMsg `json:"transactions"`
}

// PatternMsg is a detected pattern.
type PatternMsg struct {
	Evidence     map[string]any `json:"evidence,omitempty"`
	Type         string         `json:"type"`
	Description  string         `json:"description"`
	Severity     string         `json:"severity"`
	Contribution int32          `json:"contribution"`
}

// RecommendationMsg is a recommended action.
type RecommendationMsg struct {
	Priority    string `json:"priority"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

// SubScoresMsg carries the four channel scores.
type SubScoresMsg struct {
	Pattern   int32 `json:"pattern"`
	Behavior  int32 `json:"behavior"`
	Anomaly   int32 `json:"anomaly"`
	Frequency int32 `json:"frequency"`
}

// AnalysisMsg is a completed analysis.
type AnalysisMsg struct {
	SubScores        *SubScoresMsg        `json:"sub_scores"`
	ID               string               `json:"id"`
	TenantID         string               `json:"tenant_id"`
	SubjectID        string               `json:"subject_id"`
	RiskLevel        string               `json:"risk_level"`
	CreatedAt        string               `json:"created_at"`
	DetectedPatterns []*PatternMsg        `json:"detected_patterns"`
	Recommendations  []*RecommendationMsg `json:"recommendations"`
	Warnings         []string             `json:"warnings,omitempty"`
	OverallScore     int32                `json:"overall_score"`
	Probability      int32                `json:"probability"`
	Confidence       int32                `json:"confidence"`
	TransactionCount int32                `json:"transaction_count"`
}

// AnalyzeTransactionsResponse is the AnalyzeTransactions response message.
type AnalyzeTransactionsResponse struct {
	Analysis *AnalysisMsg `json:"analysis"`
}

// GetAnalysisRequest is the GetAnalysis request message.
type GetAnalysisRequest struct {
	ID string `json:"id"`
}

// GetAnalysisResponse is the GetAnalysis response message.
type GetAnalysisResponse struct {
	Analysis *AnalysisMsg `json:"analysis"`
}

// ListAnalysesRequest is the ListAnalyses request message.
type ListAnalysesRequest struct {
	SubjectID string `json:"subject_id"`
	Limit     int32  `json:"limit"`
	Offset    int32  `json:"offset"`
}

// ListAnalysesResponse is the ListAnalyses response message.
type ListAnalysesResponse struct {
	Analyses []*AnalysisMsg `json:"analyses"`
}

// RiskEngineServiceServer is the server API for RiskEngineService.
type RiskEngineServiceServer interface {
	AnalyzeTransactions(context.Context, *AnalyzeTransactionsRequest) (*AnalyzeTransactionsResponse, error)
	GetAnalysis(context.Context, *GetAnalysisRequest) (*GetAnalysisResponse, error)
	ListAnalyses(context.Context, *ListAnalysesRequest) (*ListAnalysesResponse, error)
	mustEmbedUnimplementedRiskEngineServiceServer()
}

// UnimplementedRiskEngineServiceServer provides forward-compatible defaults.
type UnimplementedRiskEngineServiceServer struct{}

func (UnimplementedRiskEngineServiceServer) AnalyzeTransactions(context.Context, *AnalyzeTransactionsRequest) (*AnalyzeTransactionsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method AnalyzeTransactions not implemented")
}
func (UnimplementedRiskEngineServiceServer) GetAnalysis(context.Context, *GetAnalysisRequest) (*GetAnalysisResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetAnalysis not implemented")
}
func (UnimplementedRiskEngineServiceServer) ListAnalyses(context.Context, *ListAnalysesRequest) (*ListAnalysesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListAnalyses not implemented")
}
func (UnimplementedRiskEngineServiceServer) mustEmbedUnimplementedRiskEngineServiceServer() {}

// RegisterRiskEngineServiceServer registers srv with s.
func RegisterRiskEngineServiceServer(s grpclib.ServiceRegistrar, srv RiskEngineServiceServer) {
	s.RegisterService(&riskEngineServiceDesc, srv)
}

var riskEngineServiceDesc = grpclib.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RiskEngineServiceServer)(nil),
	Methods: []grpclib.MethodDesc{
		{MethodName: "AnalyzeTransactions", Handler: analyzeTransactionsHandler},
		{MethodName: "GetAnalysis", Handler: getAnalysisHandler},
		{MethodName: "ListAnalyses", Handler: listAnalysesHandler},
	},
	Streams:  []grpclib.StreamDesc{},
	Metadata: "bib/risk/v1/risk.proto",
}

func analyzeTransactionsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpclib.UnaryServerInterceptor) (any, error) {
	req := new(AnalyzeTransactionsRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RiskEngineServiceServer).AnalyzeTransactions(ctx, req)
	}
	info := &grpclib.UnaryServerInfo{Server: srv, FullMethod: MethodAnalyzeTransactions}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return srv.(RiskEngineServiceServer).AnalyzeTransactions(ctx, req.(*AnalyzeTransactionsRequest))
	})
}

func getAnalysisHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpclib.UnaryServerInterceptor) (any, error) {
	req := new(GetAnalysisRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RiskEngineServiceServer).GetAnalysis(ctx, req)
	}
	info := &grpclib.UnaryServerInfo{Server: srv, FullMethod: MethodGetAnalysis}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return srv.(RiskEngineServiceServer).GetAnalysis(ctx, req.(*GetAnalysisRequest))
	})
}

func listAnalysesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpclib.UnaryServerInterceptor) (any, error) {
	req := new(ListAnalysesRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RiskEngineServiceServer).ListAnalyses(ctx, req)
	}
	info := &grpclib.UnaryServerInfo{Server: srv, FullMethod: MethodListAnalyses}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return srv.(RiskEngineServiceServer).ListAnalyses(ctx, req.(*ListAnalysesRequest))
	})
}
