package auctions

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/autobid/autobid-admin/internal/platform/httpx"
)

// Audit vocabulary for auction moderation.
const (
	ActionAuctionFlagged = "auction.flagged"
	ResourceAuction      = "auction"
)

// MaxFlagReasonLength bounds the free-text reason stored with a flag.
const MaxFlagReasonLength = 500

var (
	// ErrNotFound is returned when no monitoring row exists for an auction.
	ErrNotFound = fmt.Errorf("auctions: auction not monitored: %w", httpx.ErrNotFound)
	// ErrInvalidRow is returned when the database holds a value outside the domain.
	ErrInvalidRow = errors.New("auctions: invalid row")
)

// AuctionStatus is the auction lifecycle state.
type AuctionStatus string

const (
	StatusDraft           AuctionStatus = "draft"
	StatusPendingApproval AuctionStatus = "pending_approval"
	StatusScheduled       AuctionStatus = "scheduled"
	StatusLive            AuctionStatus = "live"
	StatusEnded           AuctionStatus = "ended"
	StatusCancelled       AuctionStatus = "cancelled"
	StatusInTransaction   AuctionStatus = "in_transaction"
	StatusSold            AuctionStatus = "sold"
	StatusDealFailed      AuctionStatus = "deal_failed"
)

var knownStatuses = map[AuctionStatus]struct{}{
	StatusDraft:           {},
	StatusPendingApproval: {},
	StatusScheduled:       {},
	StatusLive:            {},
	StatusEnded:           {},
	StatusCancelled:       {},
	StatusInTransaction:   {},
	StatusSold:            {},
	StatusDealFailed:      {},
}

// ParseAuctionStatus rejects values outside the closed set.
func ParseAuctionStatus(raw string) (AuctionStatus, error) {
	s := AuctionStatus(raw)
	if _, ok := knownStatuses[s]; !ok {
		return "", fmt.Errorf("%w: unknown auction status %q", ErrInvalidRow, raw)
	}
	return s, nil
}

// Auction is the subset of auction data the console displays.
type Auction struct {
	ID                string        `json:"id"`
	Title             string        `json:"title"`
	CurrentHighestBid float64       `json:"current_highest_bid"`
	Status            AuctionStatus `json:"status"`
	EndTime           time.Time     `json:"end_time"`
}

// MonitorItem is one row of admin_auction_monitoring joined with its auction.
type MonitorItem struct {
	ID                   string  `json:"id"`
	AuctionID            string  `json:"auction_id"`
	TimeRemainingSeconds int     `json:"time_remaining_seconds"`
	IsFinalTwoMinutes    bool    `json:"is_final_two_minutes"`
	IsFlagged            bool    `json:"is_flagged"`
	FlagReason           *string `json:"flag_reason"`
	MonitoredBy          *string `json:"monitored_by"`
	// Auction keeps the relation name existing API consumers read.
	Auction Auction `json:"auctions"`
}

// Validate checks invariants the database schema does not enforce.
func (m MonitorItem) Validate() error {
	if m.ID == "" || m.AuctionID == "" {
		return fmt.Errorf("%w: monitoring row without id", ErrInvalidRow)
	}
	if m.TimeRemainingSeconds < 0 {
		return fmt.Errorf("%w: negative time remaining for %s", ErrInvalidRow, m.AuctionID)
	}
	if m.Auction.ID != m.AuctionID {
		return fmt.Errorf("%w: auction mismatch for %s", ErrInvalidRow, m.ID)
	}
	return nil
}

// SortItems orders urgent auctions first, then by least time remaining.
// Equal keys keep their incoming order.
func SortItems(items []MonitorItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].IsFinalTwoMinutes != items[j].IsFinalTwoMinutes {
			return items[i].IsFinalTwoMinutes
		}
		return items[i].TimeRemainingSeconds < items[j].TimeRemainingSeconds
	})
}

// FlagInput carries a validated flag request to the repository.
type FlagInput struct {
	AuctionID string
	AdminID   string
	Reason    string
}
