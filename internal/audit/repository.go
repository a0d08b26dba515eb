package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/autobid/autobid-admin/internal/platform/db"
)

// PGRepository reads the audit log from Postgres.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a PGRepository.
func NewRepository(q db.DBTX) *PGRepository {
	return &PGRepository{db: q}
}

const timelineSelect = `SELECT l.created_at,
       l.admin_id::text AS admin_id,
       COALESCE(u.email, '') AS admin_email,
       l.action,
       l.resource_type,
       l.resource_id,
       l.details
FROM admin_audit_log l
LEFT JOIN admin_users u ON u.id = l.admin_id
WHERE ($1::timestamptz IS NULL OR l.created_at >= $1)
  AND ($2::timestamptz IS NULL OR l.created_at < $2)
  AND ($3::text IS NULL OR u.email ILIKE '%' || $3 || '%')
  AND ($4::text IS NULL OR l.action = $4)
  AND ($5::text IS NULL OR l.resource_type = $5)
ORDER BY l.created_at DESC, l.id DESC`

// TimelineWindow returns one window of records.
func (r *PGRepository) TimelineWindow(ctx context.Context, q Query) ([]TimelineRow, error) {
	rows, err := r.db.Query(ctx, timelineSelect+` OFFSET $6 LIMIT $7`,
		q.FromAt, q.ToAt, q.Actor, q.Action, q.ResourceType, q.OffsetRows, q.LimitRows)
	if err != nil {
		return nil, fmt.Errorf("query audit window: %w", err)
	}
	return collectRows(rows)
}

// TimelineAll returns every matching record.
func (r *PGRepository) TimelineAll(ctx context.Context, q Query) ([]TimelineRow, error) {
	rows, err := r.db.Query(ctx, timelineSelect,
		q.FromAt, q.ToAt, q.Actor, q.Action, q.ResourceType)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	return collectRows(rows)
}

func collectRows(rows pgx.Rows) ([]TimelineRow, error) {
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[TimelineRow])
	if err != nil {
		return nil, fmt.Errorf("scan audit rows: %w", err)
	}
	return out, nil
}
