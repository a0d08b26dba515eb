package realtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Publisher receives notifications from a Listener.
type Publisher interface {
	Publish(n Notification)
}

// notifyConn is the subset of *pgx.Conn used to LISTEN.
type notifyConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
}

// Listener holds one Postgres connection in LISTEN mode and forwards every
// NOTIFY on its channels to a Publisher.
type Listener struct {
	pool     *pgxpool.Pool
	out      Publisher
	logger   *slog.Logger
	channels []string
}

// NewListener constructs a Listener for the given Postgres channels.
func NewListener(pool *pgxpool.Pool, out Publisher, logger *slog.Logger, channels ...string) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{pool: pool, out: out, logger: logger, channels: channels}
}

// Run acquires a dedicated connection and forwards notifications until ctx
// ends. Connection failures are returned to the caller; Run does not retry.
func (l *Listener) Run(ctx context.Context) error {
	pooled, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("realtime: acquire listen conn: %w", err)
	}
	// A LISTENing connection must not go back to the pool.
	conn := pooled.Hijack()
	defer func() { _ = conn.Close(context.Background()) }()
	return listen(ctx, conn, l.out, l.logger, l.channels)
}

func listen(ctx context.Context, conn notifyConn, out Publisher, logger *slog.Logger, channels []string) error {
	for _, channel := range channels {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
			return fmt.Errorf("realtime: listen %s: %w", channel, err)
		}
		logger.Info("listening for notifications", slog.String("channel", channel))
	}
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("realtime: wait for notification: %w", err)
		}
		out.Publish(Notification{Topic: n.Channel, Payload: n.Payload})
	}
}
