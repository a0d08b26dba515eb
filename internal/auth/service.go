package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/autobid/autobid-admin/internal/rbac"
	"github.com/autobid/autobid-admin/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Authenticate validates email/password credentials. Inactive accounts and
// accounts with an unknown role cannot log in.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*AdminUser, rbac.Principal, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, rbac.Principal{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, rbac.Principal{}, shared.ErrInvalidCredentials
	}
	principal, err := user.Principal()
	if err != nil {
		return nil, rbac.Principal{}, shared.ErrInvalidCredentials
	}
	return user, principal, nil
}

// RecordLogin stamps the login time on the account.
func (s *Service) RecordLogin(ctx context.Context, userID string) error {
	return s.repo.TouchLogin(ctx, userID, s.now())
}

// Principal resolves the admin behind a session user id.
func (s *Service) Principal(ctx context.Context, userID string) (rbac.Principal, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return rbac.Principal{}, ErrPrincipalNotFound
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return rbac.Principal{}, ErrPrincipalNotFound
		}
		return rbac.Principal{}, fmt.Errorf("auth: load admin: %w", err)
	}
	return user.Principal()
}

// HashPassword returns a bcrypt hash suitable for admin_users.password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
