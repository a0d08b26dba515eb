package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Query is the repository-level form of TimelineFilters.
type Query struct {
	FromAt       pgtype.Timestamptz
	ToAt         pgtype.Timestamptz
	Actor        pgtype.Text
	Action       pgtype.Text
	ResourceType pgtype.Text
	OffsetRows   int32
	LimitRows    int32
}

// Repository reads admin_audit_log.
type Repository interface {
	TimelineWindow(ctx context.Context, q Query) ([]TimelineRow, error)
	TimelineAll(ctx context.Context, q Query) ([]TimelineRow, error)
}

// Result wraps a timeline page with paging info.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

// Service coordinates audit log reads.
type Service struct {
	repo Repository
}

// NewService builds an audit Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of audit records, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	q := buildQuery(filters)
	q.OffsetRows = int32((page - 1) * pageSize)
	q.LimitRows = int32(pageSize + 1)

	rows, err := s.repo.TimelineWindow(ctx, q)
	if err != nil {
		return Result{}, fmt.Errorf("audit: timeline: %w", err)
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every record matching filters without paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	rows, err := s.repo.TimelineAll(ctx, buildQuery(filters))
	if err != nil {
		return nil, fmt.Errorf("audit: export: %w", err)
	}
	return rows, nil
}

// buildQuery treats To as an inclusive calendar day.
func buildQuery(filters TimelineFilters) Query {
	to := filters.To
	if !to.IsZero() {
		to = to.Add(24 * time.Hour)
	}
	return Query{
		FromAt:       toPgTime(filters.From),
		ToAt:         toPgTime(to),
		Actor:        optionalText(filters.Actor),
		Action:       optionalText(filters.Action),
		ResourceType: optionalText(filters.ResourceType),
	}
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
