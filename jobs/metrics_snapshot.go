package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/autobid/autobid-admin/internal/dashboard"
	jobmetrics "github.com/autobid/autobid-admin/internal/jobs"
)

// MetricsSnapshotter persists a dashboard metrics row for a day.
type MetricsSnapshotter interface {
	SnapshotMetrics(ctx context.Context, day time.Time) (dashboard.Metrics, error)
}

// MetricsSnapshotJob records the daily admin_dashboard_metrics row.
type MetricsSnapshotJob struct {
	Repo    MetricsSnapshotter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewMetricsSnapshotJob wires dependencies for the snapshot handler.
func NewMetricsSnapshotJob(repo MetricsSnapshotter, logger *slog.Logger, metrics *jobmetrics.Metrics) *MetricsSnapshotJob {
	return &MetricsSnapshotJob{
		Repo:    repo,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes metrics:snapshot tasks.
func (j *MetricsSnapshotJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Repo == nil {
		return errors.New("metrics snapshot: handler not configured")
	}
	var payload MetricsSnapshotPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	day := j.now()
	if payload.Day != "" {
		parsed, err := time.Parse(dayLayout, payload.Day)
		if err != nil {
			return asynq.SkipRetry
		}
		day = parsed
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	run := metrics.Track(TaskMetricsSnapshot)
	defer func() { err = run.End(err) }()

	logger := jobLogger(j.Logger, TaskMetricsSnapshot).With(slog.String("day", day.Format(dayLayout)))
	m, err := j.Repo.SnapshotMetrics(ctx, day)
	if err != nil {
		logger.Error("snapshot metrics", slog.Any("error", err))
		return err
	}
	logger.Info("recorded dashboard metrics",
		slog.Int("active_auctions", m.ActiveAuctions),
		slog.Int("pending_kyc_reviews", m.PendingKYCReviews),
		slog.Int("active_users", m.ActiveUsers))
	return nil
}

func (j *MetricsSnapshotJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
