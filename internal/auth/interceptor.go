package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type contextKey struct{}

// ContextWithClaims attaches claims to ctx.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// ClaimsFromContext returns the claims attached by the interceptor.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(contextKey{}).(*Claims)
	return claims, ok && claims != nil
}

// TokenValidator is satisfied by JWTService.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// UnaryServerInterceptor authenticates every unary call except skipMethods
// and attaches the validated claims to the handler context.
func UnaryServerInterceptor(validator TokenValidator, skipMethods ...string) grpc.UnaryServerInterceptor {
	skip := make(map[string]struct{}, len(skipMethods))
	for _, m := range skipMethods {
		skip[m] = struct{}{}
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := skip[info.FullMethod]; ok {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing authorization header")
		}

		token := strings.TrimSpace(strings.TrimPrefix(values[0], "Bearer "))
		claims, err := validator.ValidateToken(token)
		if err != nil {
			return nil, status.Errorf(codes.Unauthenticated, "invalid token: %v", err)
		}

		return handler(ContextWithClaims(ctx, claims), req)
	}
}

// Require checks that ctx carries claims with one of roles.
func Require(ctx context.Context, roles ...string) (*Claims, error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	if !claims.HasAnyRole(roles...) {
		return nil, status.Error(codes.PermissionDenied, "insufficient permissions")
	}
	return claims, nil
}

// TenantHeader carries the tenant when token validation is disabled.
const TenantHeader = "x-tenant-id"

// TrustedTenantInterceptor is installed instead of UnaryServerInterceptor when
// authentication is disabled. It grants every role to the tenant named in the
// x-tenant-id header and must only be used on trusted networks.
func TrustedTenantInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get(TenantHeader)
		if len(values) == 0 {
			return handler(ctx, req)
		}
		tenantID, err := uuid.Parse(values[0])
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid %s: %v", TenantHeader, err)
		}
		claims := &Claims{
			TenantID: tenantID,
			Roles:    []string{RoleAdmin, RoleAnalyst, RoleAuditor, RoleService},
		}
		return handler(ContextWithClaims(ctx, claims), req)
	}
}
