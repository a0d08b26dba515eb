package auctions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/autobid/autobid-admin/internal/platform/httpx"
	"github.com/autobid/autobid-admin/internal/rbac"
)

// Service coordinates monitoring reads and moderation actions.
type Service struct {
	repo      Repository
	cache     *Cache
	logger    *slog.Logger
	validator *validator.Validate
	loads     singleflight.Group
}

// NewService constructs a Service. cache may be nil.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger, validator: validator.New()}
}

// monitoringLoadTimeout bounds a shared load once it is detached from the
// caller that started it.
const monitoringLoadTimeout = 15 * time.Second

// ListMonitoring returns monitored auctions, urgent first. Concurrent callers
// share one load; a caller that gives up does not cancel it for the others.
func (s *Service) ListMonitoring(ctx context.Context) ([]MonitorItem, error) {
	ch := s.loads.DoChan("monitoring", func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), monitoringLoadTimeout)
		defer cancel()
		return s.cache.FetchList(loadCtx, s.repo.ListMonitoring)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		items := res.Val.([]MonitorItem)
		out := make([]MonitorItem, len(items))
		copy(out, items)
		SortItems(out)
		return out, nil
	}
}

type flagRequest struct {
	AuctionID string `validate:"required,uuid"`
	Reason    string `validate:"required,max=500"`
}

// FlagAuction flags an auction on behalf of actor. The capability is checked
// here as well as at the route so every entry point is covered.
func (s *Service) FlagAuction(ctx context.Context, actor rbac.Principal, auctionID, reason string) error {
	if actor.ID == "" {
		return rbac.ErrUnauthenticated
	}
	if !actor.Can(rbac.CapAuctionFlag) {
		return rbac.ErrForbidden
	}
	req := flagRequest{AuctionID: strings.TrimSpace(auctionID), Reason: strings.TrimSpace(reason)}
	if err := s.validator.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	if err := s.repo.FlagAuction(ctx, FlagInput{AuctionID: req.AuctionID, AdminID: actor.ID, Reason: req.Reason}); err != nil {
		return err
	}
	s.logger.Info("auction flagged",
		slog.String("auction_id", req.AuctionID),
		slog.String("admin_id", actor.ID),
		slog.String("role", string(actor.Role)))
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump monitoring cache", slog.Any("error", err))
	}
	return nil
}

// RefreshCountdowns recomputes countdowns and invalidates the cached list
// when anything changed.
func (s *Service) RefreshCountdowns(ctx context.Context) (int64, error) {
	n, err := s.repo.RefreshCountdowns(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("bump monitoring cache", slog.Any("error", err))
		}
	}
	return n, nil
}
