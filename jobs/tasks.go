package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueMonitoring carries countdown refreshes and is served first.
	QueueMonitoring = "monitoring"
	// QueueDefault carries everything else.
	QueueDefault = "default"

	// TaskMonitoringRefresh recomputes monitoring countdowns.
	TaskMonitoringRefresh = "monitoring:refresh"
	// TaskMetricsSnapshot records the daily dashboard metrics row.
	TaskMetricsSnapshot = "metrics:snapshot"

	// RefreshSourceSchedule marks refreshes enqueued by the scheduler.
	RefreshSourceSchedule = "schedule"

	dayLayout = "2006-01-02"
)

// MonitoringRefreshPayload is the monitoring:refresh task body.
type MonitoringRefreshPayload struct {
	Source string `json:"source,omitempty"`
}

// MetricsSnapshotPayload is the metrics:snapshot task body. An empty Day
// means today in UTC.
type MetricsSnapshotPayload struct {
	Day string `json:"day,omitempty"`
}

// NewMonitoringRefreshTask constructs a monitoring:refresh task. A late
// refresh is superseded by the next tick, so it is never retried.
func NewMonitoringRefreshTask(source string) (*asynq.Task, error) {
	data, err := json.Marshal(MonitoringRefreshPayload{Source: source})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMonitoringRefresh, data,
		asynq.Queue(QueueMonitoring),
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Second)), nil
}

// NewMetricsSnapshotTask constructs a metrics:snapshot task for day
// (YYYY-MM-DD, empty for today).
func NewMetricsSnapshotTask(day string) (*asynq.Task, error) {
	data, err := json.Marshal(MetricsSnapshotPayload{Day: day})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMetricsSnapshot, data,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Minute)), nil
}
