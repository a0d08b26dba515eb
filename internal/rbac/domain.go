package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/autobid/autobid-admin/internal/platform/httpx"
)

var (
	// ErrUnauthenticated indicates that no session could be resolved for the caller.
	ErrUnauthenticated = fmt.Errorf("rbac: %w", httpx.ErrUnauthorized)
	// ErrForbidden indicates that the caller is not allowed to perform the operation.
	ErrForbidden = fmt.Errorf("rbac: %w", httpx.ErrForbidden)
	// ErrPrincipalNotFound indicates a valid session without a matching admin user.
	ErrPrincipalNotFound = errors.New("rbac: principal not found")
)

// Role represents the administrative role assigned to a principal.
type Role string

const (
	RoleSuperAdmin      Role = "super_admin"
	RoleModerator       Role = "moderator"
	RoleOperationsAdmin Role = "operations_admin"
	RoleFinanceAdmin    Role = "finance_admin"
	RoleSupportAdmin    Role = "support_admin"
)

// Roles lists every declared role in declaration order.
func Roles() []Role {
	return []Role{
		RoleSuperAdmin,
		RoleModerator,
		RoleOperationsAdmin,
		RoleFinanceAdmin,
		RoleSupportAdmin,
	}
}

// ParseRole maps a stored role name onto a declared Role.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.TrimSpace(strings.ToLower(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("rbac: unknown role %q", raw)
	}
	return role, nil
}

// Valid reports whether the role is part of the declared set.
func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// Label returns a human readable role name.
func (r Role) Label() string {
	parts := strings.Split(string(r), "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// Principal describes the authenticated admin making a request.
type Principal struct {
	ID    string
	Email string
	Role  Role
}

// Can reports whether the principal's role grants the capability.
func (p Principal) Can(capability Capability) bool {
	return HasPermission(p.Role, capability)
}

type principalContextKey struct{}

// ContextWithPrincipal stores the resolved principal for the current request.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal resolved by the guard.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
