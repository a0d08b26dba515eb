package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/autobid/autobid-admin/internal/platform/httpx"
)

// Jobs are the handlers a worker serves. A nil job is not registered.
type Jobs struct {
	Refresh  *MonitoringRefreshJob
	Snapshot *MetricsSnapshotJob
}

// Schedule drives the periodic enqueues. Zero fields disable an entry.
type Schedule struct {
	RefreshEvery time.Duration
	SnapshotCron string
}

// WorkerConfig collects what the worker process needs.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Jobs        Jobs
	Schedule    Schedule
}

// Worker serves the monitoring and default queues and owns the scheduler
// that feeds them.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// NewWorker builds the server, the task mux and the scheduler.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux, err := newServeMux(cfg.Jobs)
	if err != nil {
		return nil, err
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		// Countdown ticks go stale within seconds; snapshots can wait.
		Queues:          map[string]int{QueueMonitoring: 6, QueueDefault: 2},
		ShutdownTimeout: 10 * time.Second,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Warn("job failed",
				slog.String("task", task.Type()),
				slog.Int("retried", retried),
				slog.Int("max_retry", maxRetry),
				slog.Any("error", err))
		}),
	})
	scheduler, err := newScheduler(cfg.RedisOpts, cfg.Schedule, logger)
	if err != nil {
		return nil, err
	}
	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: logger}, nil
}

func newServeMux(jobs Jobs) (*asynq.ServeMux, error) {
	if jobs.Refresh == nil && jobs.Snapshot == nil {
		return nil, errors.New("jobs: no handlers configured")
	}
	mux := asynq.NewServeMux()
	if jobs.Refresh != nil {
		mux.HandleFunc(TaskMonitoringRefresh, jobs.Refresh.Handle)
	}
	if jobs.Snapshot != nil {
		mux.HandleFunc(TaskMetricsSnapshot, jobs.Snapshot.Handle)
	}
	return mux, nil
}

func newScheduler(opts asynq.RedisClientOpt, s Schedule, logger *slog.Logger) (*asynq.Scheduler, error) {
	if s.RefreshEvery <= 0 && s.SnapshotCron == "" {
		return nil, nil
	}
	scheduler := asynq.NewScheduler(opts, &asynq.SchedulerOpts{
		Location: time.UTC,
		EnqueueErrorHandler: func(task *asynq.Task, _ []asynq.Option, err error) {
			logger.Error("scheduled enqueue", slog.String("task", task.Type()), slog.Any("error", err))
		},
	})
	if s.RefreshEvery > 0 {
		task, err := NewMonitoringRefreshTask(RefreshSourceSchedule)
		if err != nil {
			return nil, err
		}
		if _, err := scheduler.Register("@every "+s.RefreshEvery.String(), task); err != nil {
			return nil, fmt.Errorf("jobs: schedule %s: %w", TaskMonitoringRefresh, err)
		}
	}
	if s.SnapshotCron != "" {
		task, err := NewMetricsSnapshotTask("")
		if err != nil {
			return nil, err
		}
		if _, err := scheduler.Register(s.SnapshotCron, task); err != nil {
			return nil, fmt.Errorf("jobs: schedule %s: %w", TaskMetricsSnapshot, err)
		}
	}
	return scheduler, nil
}

// Run processes tasks until ctx ends, then drains in-flight work.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return errors.New("jobs: worker not configured")
	}
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("jobs: start server: %w", err)
	}
	defer w.server.Shutdown()
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return fmt.Errorf("jobs: start scheduler: %w", err)
		}
		defer w.scheduler.Shutdown()
	}
	w.logger.Info("worker running", slog.Bool("scheduler", w.scheduler != nil))
	<-ctx.Done()
	w.logger.Info("worker stopping")
	return ctx.Err()
}

// ErrInvalidDay rejects snapshot days that are not YYYY-MM-DD.
var ErrInvalidDay = errors.New("jobs: day must be YYYY-MM-DD")

// Client enqueues on-demand work.
type Client struct {
	client *asynq.Client
}

// NewClient constructs a queue client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueMetricsSnapshot queues a dashboard snapshot for day, or for today
// when day is empty.
func (c *Client) EnqueueMetricsSnapshot(ctx context.Context, day string) (*asynq.TaskInfo, error) {
	if day != "" {
		if _, err := time.Parse(dayLayout, day); err != nil {
			return nil, ErrInvalidDay
		}
	}
	task, err := NewMetricsSnapshotTask(day)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// QueueInspector reads queue state.
type QueueInspector interface {
	Queues() ([]string, error)
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// SnapshotEnqueuer queues on-demand dashboard snapshots.
type SnapshotEnqueuer interface {
	EnqueueMetricsSnapshot(ctx context.Context, day string) (*asynq.TaskInfo, error)
}

// Handler serves the /admin/jobs endpoints.
type Handler struct {
	inspector QueueInspector
	enqueuer  SnapshotEnqueuer
	logger    *slog.Logger
}

// NewHandler constructs a Handler. Either dependency may be nil.
func NewHandler(inspector QueueInspector, enqueuer SnapshotEnqueuer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, enqueuer: enqueuer, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Post("/metrics-snapshot", h.enqueueSnapshot)
}

type queueHealth struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Failed    int    `json:"failed"`
}

type healthReport struct {
	Queues []queueHealth `json:"queues"`
}

// health reports every queue the worker serves. Queues that never held a
// task are not known to Redis yet and report zeros.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	report := healthReport{}
	known := map[string]bool{}
	if h.inspector != nil {
		names, err := h.inspector.Queues()
		if err != nil {
			h.logger.Warn("jobs health", slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", err.Error())
			return
		}
		for _, name := range names {
			known[name] = true
		}
	}
	for _, queue := range []string{QueueMonitoring, QueueDefault} {
		out := queueHealth{Queue: queue}
		if known[queue] {
			info, err := h.inspector.GetQueueInfo(queue)
			if err != nil {
				h.logger.Warn("jobs health", slog.String("queue", queue), slog.Any("error", err))
				httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", err.Error())
				return
			}
			out.Pending, out.Active, out.Scheduled = info.Pending, info.Active, info.Scheduled
			out.Retry, out.Failed = info.Retry, info.Failed
		}
		report.Queues = append(report.Queues, out)
	}
	httpx.JSON(w, http.StatusOK, report)
}

type snapshotRequest struct {
	Day string `json:"day"`
}

type snapshotQueued struct {
	TaskID string `json:"task_id"`
	Queue  string `json:"queue"`
	Day    string `json:"day,omitempty"`
}

func (h *Handler) enqueueSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "job client not configured")
		return
	}
	var req snapshotRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	info, err := h.enqueuer.EnqueueMetricsSnapshot(r.Context(), req.Day)
	switch {
	case errors.Is(err, ErrInvalidDay):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	case err != nil:
		h.logger.Error("enqueue metrics snapshot", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("metrics snapshot queued", slog.String("task_id", info.ID), slog.String("day", req.Day))
	httpx.JSON(w, http.StatusAccepted, snapshotQueued{TaskID: info.ID, Queue: info.Queue, Day: req.Day})
}
