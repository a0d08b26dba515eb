package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/autobid/autobid-admin/internal/platform/db"
)

// Repository reads and writes dashboard snapshots.
type Repository interface {
	LatestMetrics(ctx context.Context) (Metrics, error)
	SnapshotMetrics(ctx context.Context, day time.Time) (Metrics, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(q db.DBTX) *PGRepository {
	return &PGRepository{db: q}
}

const latestMetricsSQL = `SELECT metric_date, pending_kyc_reviews, active_auctions,
       total_revenue_today::float8, active_users
FROM admin_dashboard_metrics
ORDER BY metric_date DESC
LIMIT 1`

// LatestMetrics returns the most recent snapshot by metric_date.
func (r *PGRepository) LatestMetrics(ctx context.Context) (Metrics, error) {
	m, err := scanMetrics(r.db.QueryRow(ctx, latestMetricsSQL))
	if errors.Is(err, pgx.ErrNoRows) {
		return Metrics{}, ErrNoMetrics
	}
	if err != nil {
		return Metrics{}, fmt.Errorf("dashboard: latest metrics: %w", err)
	}
	return m, m.Validate()
}

const snapshotMetricsSQL = `INSERT INTO admin_dashboard_metrics
    (metric_date, pending_kyc_reviews, active_auctions, total_revenue_today, active_users)
SELECT $1::date,
       (SELECT COUNT(*) FROM kyc_verifications WHERE status = 'pending'),
       (SELECT COUNT(*) FROM auctions WHERE status = 'live'),
       (SELECT COALESCE(SUM(amount), 0) FROM payments
         WHERE status = 'verified' AND verified_at >= $1::date AND verified_at < $1::date + 1),
       (SELECT COUNT(*) FROM users WHERE last_active_at >= $1::date - 30)
ON CONFLICT (metric_date) DO UPDATE SET
    pending_kyc_reviews = EXCLUDED.pending_kyc_reviews,
    active_auctions = EXCLUDED.active_auctions,
    total_revenue_today = EXCLUDED.total_revenue_today,
    active_users = EXCLUDED.active_users,
    updated_at = NOW()
RETURNING metric_date, pending_kyc_reviews, active_auctions, total_revenue_today::float8, active_users`

// SnapshotMetrics computes and upserts the snapshot for day.
func (r *PGRepository) SnapshotMetrics(ctx context.Context, day time.Time) (Metrics, error) {
	m, err := scanMetrics(r.db.QueryRow(ctx, snapshotMetricsSQL, day.UTC().Format("2006-01-02")))
	if err != nil {
		return Metrics{}, fmt.Errorf("dashboard: snapshot metrics: %w", err)
	}
	return m, nil
}

func scanMetrics(row pgx.Row) (Metrics, error) {
	var m Metrics
	err := row.Scan(&m.MetricDate, &m.PendingKYCReviews, &m.ActiveAuctions, &m.TotalRevenueToday, &m.ActiveUsers)
	return m, err
}

var _ Repository = (*PGRepository)(nil)
