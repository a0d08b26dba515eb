package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/autobid/autobid-admin/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// CountdownRefresher recomputes time_remaining_seconds and the final-two-minute
// flag for monitored auctions.
type CountdownRefresher interface {
	RefreshCountdowns(ctx context.Context) (int64, error)
}

// MonitoringRefreshJob keeps the monitoring countdowns current.
type MonitoringRefreshJob struct {
	Refresher CountdownRefresher
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewMonitoringRefreshJob wires dependencies for the refresh handler.
func NewMonitoringRefreshJob(refresher CountdownRefresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *MonitoringRefreshJob {
	return &MonitoringRefreshJob{Refresher: refresher, Logger: logger, Metrics: metrics}
}

// Handle processes monitoring:refresh tasks.
func (j *MonitoringRefreshJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Refresher == nil {
		return errors.New("monitoring refresh: handler not configured")
	}
	var payload MonitoringRefreshPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	run := metrics.Track(TaskMonitoringRefresh)
	defer func() { err = run.End(err) }()

	logger := jobLogger(j.Logger, TaskMonitoringRefresh)
	if payload.Source != "" {
		logger = logger.With(slog.String("source", payload.Source))
	}
	n, err := j.Refresher.RefreshCountdowns(ctx)
	if err != nil {
		logger.Error("refresh countdowns", slog.Any("error", err))
		return err
	}
	metrics.AddRows(TaskMonitoringRefresh, n)
	if n > 0 {
		logger.Debug("refreshed countdowns", slog.Int64("rows", n))
	}
	return nil
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}
