package auctions

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/autobid/autobid-admin/internal/audit"
	"github.com/autobid/autobid-admin/internal/platform/db"
)

// Repository defines persistence for auction monitoring.
type Repository interface {
	ListMonitoring(ctx context.Context) ([]MonitorItem, error)
	FlagAuction(ctx context.Context, in FlagInput) error
	RefreshCountdowns(ctx context.Context) (int64, error)
}

// Pool is the subset of *pgxpool.Pool the repository needs.
type Pool interface {
	db.DBTX
	db.TxBeginner
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const listMonitoringSQL = `SELECT m.id::text, m.auction_id::text, m.time_remaining_seconds,
       m.is_final_two_minutes, m.is_flagged, m.flag_reason, m.monitored_by::text,
       a.id::text, a.title, COALESCE(a.current_highest_bid, 0)::float8, a.status, a.end_time
FROM admin_auction_monitoring m
JOIN auctions a ON a.id = m.auction_id
ORDER BY m.is_final_two_minutes DESC, m.time_remaining_seconds ASC, m.id`

// ListMonitoring returns every monitored auction, urgent first.
func (r *PGRepository) ListMonitoring(ctx context.Context) ([]MonitorItem, error) {
	rows, err := r.pool.Query(ctx, listMonitoringSQL)
	if err != nil {
		return nil, fmt.Errorf("auctions: list monitoring: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanMonitorItem)
	if err != nil {
		return nil, fmt.Errorf("auctions: list monitoring: %w", err)
	}
	SortItems(items)
	return items, nil
}

func scanMonitorItem(row pgx.CollectableRow) (MonitorItem, error) {
	var (
		item   MonitorItem
		status string
	)
	if err := row.Scan(
		&item.ID, &item.AuctionID, &item.TimeRemainingSeconds,
		&item.IsFinalTwoMinutes, &item.IsFlagged, &item.FlagReason, &item.MonitoredBy,
		&item.Auction.ID, &item.Auction.Title, &item.Auction.CurrentHighestBid, &status, &item.Auction.EndTime,
	); err != nil {
		return MonitorItem{}, err
	}
	parsed, err := ParseAuctionStatus(status)
	if err != nil {
		return MonitorItem{}, err
	}
	item.Auction.Status = parsed
	if err := item.Validate(); err != nil {
		return MonitorItem{}, err
	}
	return item, nil
}

const flagAuctionSQL = `UPDATE admin_auction_monitoring
SET is_flagged = TRUE, flag_reason = $2, monitored_by = $3, updated_at = NOW()
WHERE auction_id = $1`

// FlagAuction marks the auction flagged and appends the audit record in one
// transaction. Either both persist or neither does.
func (r *PGRepository) FlagAuction(ctx context.Context, in FlagInput) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, flagAuctionSQL, in.AuctionID, in.Reason, in.AdminID)
		if err != nil {
			return fmt.Errorf("auctions: flag: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return audit.Append(ctx, tx, audit.Entry{
			AdminID:      in.AdminID,
			Action:       ActionAuctionFlagged,
			ResourceType: ResourceAuction,
			ResourceID:   in.AuctionID,
			Details:      map[string]any{"reason": in.Reason},
		})
	})
}

const refreshCountdownsSQL = `UPDATE admin_auction_monitoring m
SET time_remaining_seconds = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM (a.end_time - NOW()))))::int,
    is_final_two_minutes = a.end_time > NOW() AND a.end_time - NOW() <= INTERVAL '2 minutes',
    updated_at = NOW()
FROM auctions a
WHERE a.id = m.auction_id
  AND (a.status = 'live' OR m.time_remaining_seconds > 0)`

// RefreshCountdowns recomputes time remaining from auction end times.
func (r *PGRepository) RefreshCountdowns(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, refreshCountdownsSQL)
	if err != nil {
		return 0, fmt.Errorf("auctions: refresh countdowns: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)
