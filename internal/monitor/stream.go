package monitor

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/autobid/autobid-admin/internal/rbac"
)

const writeTimeout = 5 * time.Second

// StreamHandler upgrades viewers to a websocket and runs one Feed per
// connection.
type StreamHandler struct {
	logger   *slog.Logger
	lister   Lister
	changes  Subscriber
	interval time.Duration
	observer FeedObserver
	origins  []string

	newTicker func(time.Duration) Ticker
}

// NewStreamHandler constructs a StreamHandler. origins lists the host
// patterns allowed to open cross-origin sockets.
func NewStreamHandler(logger *slog.Logger, lister Lister, changes Subscriber, interval time.Duration, observer FeedObserver, origins []string) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{
		logger:   logger,
		lister:   lister,
		changes:  changes,
		interval: interval,
		observer: observer,
		origins:  origins,
	}
}

// MountRoutes registers GET /auctions/monitor/stream behind auction.monitor.
func (h *StreamHandler) MountRoutes(r chi.Router, guard rbac.Middleware) {
	r.With(guard.RequireCapability(rbac.CapAuctionMonitor)).Get("/auctions/monitor/stream", h.serve)
}

func (h *StreamHandler) serve(w http.ResponseWriter, r *http.Request) {
	// The server's read and write timeouts would otherwise cut the socket.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Warn("monitor stream accept", slog.Any("error", err))
		return
	}
	defer func() { _ = conn.CloseNow() }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if h.observer != nil {
		h.observer.AddFeedViewers(1)
		defer h.observer.AddFeedViewers(-1)
	}

	// Viewers never send data; the read loop only notices the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	feed := &Feed{
		Lister:    h.lister,
		Changes:   h.changes,
		Interval:  h.interval,
		Observer:  h.observer,
		NewTicker: h.newTicker,
	}
	err = feed.Run(ctx, func(ctx context.Context, evt Event) error {
		writeCtx, cancelWrite := context.WithTimeout(ctx, writeTimeout)
		defer cancelWrite()
		return wsjson.Write(writeCtx, conn, evt)
	})
	if err != nil && ctx.Err() == nil {
		h.logger.Warn("monitor stream write", slog.Any("error", err))
		_ = conn.Close(websocket.StatusInternalError, "write failed")
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "closed")
}
