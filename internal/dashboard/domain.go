package dashboard

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoMetrics is returned when no snapshot has been recorded yet.
	ErrNoMetrics = errors.New("dashboard: no metrics snapshot recorded")
	// ErrInvalidMetrics is returned for snapshots with impossible values.
	ErrInvalidMetrics = errors.New("dashboard: invalid metrics row")
)

// Metrics is one daily snapshot from admin_dashboard_metrics.
type Metrics struct {
	MetricDate        time.Time `json:"metric_date"`
	PendingKYCReviews int       `json:"pending_kyc_reviews"`
	ActiveAuctions    int       `json:"active_auctions"`
	TotalRevenueToday float64   `json:"total_revenue_today"`
	ActiveUsers       int       `json:"active_users"`
}

// Validate rejects negative counters.
func (m Metrics) Validate() error {
	if m.PendingKYCReviews < 0 || m.ActiveAuctions < 0 || m.ActiveUsers < 0 || m.TotalRevenueToday < 0 {
		return fmt.Errorf("%w: negative value for %s", ErrInvalidMetrics, m.MetricDate.Format("2006-01-02"))
	}
	return nil
}
