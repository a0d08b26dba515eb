package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/autobid/autobid-admin/internal/platform/db"
	"github.com/autobid/autobid-admin/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*AdminUser, error)
	FindByID(ctx context.Context, id string) (*AdminUser, error)
	TouchLogin(ctx context.Context, id string, at time.Time) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(q db.DBTX) *PGRepository {
	return &PGRepository{db: q}
}

const selectAdminUser = `SELECT u.id::text, u.email, u.full_name, u.password_hash,
       COALESCE(r.role_name, ''), u.is_active, u.last_login_at, u.created_at
FROM admin_users u
LEFT JOIN admin_roles r ON r.id = u.role_id`

// FindByEmail fetches an admin by case-insensitive email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*AdminUser, error) {
	row := r.db.QueryRow(ctx, selectAdminUser+` WHERE lower(u.email) = $1`, strings.ToLower(strings.TrimSpace(email)))
	return scanAdminUser(row)
}

// FindByID fetches an admin by primary key.
func (r *PGRepository) FindByID(ctx context.Context, id string) (*AdminUser, error) {
	row := r.db.QueryRow(ctx, selectAdminUser+` WHERE u.id = $1`, id)
	return scanAdminUser(row)
}

// TouchLogin stamps the last successful login.
func (r *PGRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.Exec(ctx, `UPDATE admin_users SET last_login_at = $2 WHERE id = $1`, id, at.UTC()); err != nil {
		return fmt.Errorf("auth: touch login: %w", err)
	}
	return nil
}

func scanAdminUser(row pgx.Row) (*AdminUser, error) {
	var u AdminUser
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.RoleName, &u.IsActive, &u.LastLoginAt, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("auth: scan admin user: %w", err)
	}
	return &u, nil
}

var _ Repository = (*PGRepository)(nil)
