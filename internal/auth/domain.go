package auth

import (
	"time"

	"github.com/autobid/autobid-admin/internal/rbac"
)

// AdminUser is a console account joined with its role name.
type AdminUser struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	RoleName     string
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
}

// ErrPrincipalNotFound is returned when a session does not map to an
// active admin with a known role.
var ErrPrincipalNotFound = rbac.ErrPrincipalNotFound

// Principal converts the account into the RBAC principal. Unknown role
// names are rejected instead of being mapped to a default role.
func (u *AdminUser) Principal() (rbac.Principal, error) {
	if u == nil || !u.IsActive {
		return rbac.Principal{}, ErrPrincipalNotFound
	}
	role, err := rbac.ParseRole(u.RoleName)
	if err != nil {
		return rbac.Principal{}, ErrPrincipalNotFound
	}
	return rbac.Principal{ID: u.ID, Email: u.Email, Role: role}, nil
}
