package dashboard

import (
	"context"
	"errors"
	"time"
)

// Service exposes dashboard metrics.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Latest returns the newest snapshot.
func (s *Service) Latest(ctx context.Context) (Metrics, error) {
	return s.repo.LatestMetrics(ctx)
}

// LatestOrZero returns the newest snapshot, or a zero snapshot when none has
// been recorded yet. Other errors are returned with the zero value.
func (s *Service) LatestOrZero(ctx context.Context) (Metrics, error) {
	m, err := s.repo.LatestMetrics(ctx)
	if errors.Is(err, ErrNoMetrics) {
		return Metrics{}, nil
	}
	if err != nil {
		return Metrics{}, err
	}
	return m, nil
}

// Snapshot records today's metrics in UTC.
func (s *Service) Snapshot(ctx context.Context) (Metrics, error) {
	return s.repo.SnapshotMetrics(ctx, s.now().UTC())
}
