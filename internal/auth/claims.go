// Package auth validates bearer tokens on the risk engine's RPC surface and
// carries the caller's tenant and roles through the request context.
package auth

import (
	"slices"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the JWT claims issued to risk engine callers.
type Claims struct {
	jwt.RegisteredClaims
	TenantID uuid.UUID `json:"tenant_id"`
	Roles    []string  `json:"roles"`
}

// HasRole reports whether the claims carry role.
func (c Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// HasAnyRole reports whether the claims carry at least one of roles.
func (c Claims) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if c.HasRole(r) {
			return true
		}
	}
	return false
}

const (
	// RoleAdmin may submit batches and read any analysis of its tenant.
	RoleAdmin = "admin"
	// RoleAnalyst reads analyses and submits batches for investigation.
	RoleAnalyst = "analyst"
	// RoleAuditor only reads analyses.
	RoleAuditor = "auditor"
	// RoleService is held by upstream services that stream batches in.
	RoleService = "service"
)

// Role sets per operation.
var (
	SubmitRoles = []string{RoleAdmin, RoleAnalyst, RoleService}
	ReadRoles   = []string{RoleAdmin, RoleAnalyst, RoleAuditor, RoleService}
)
