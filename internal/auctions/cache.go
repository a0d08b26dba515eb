package auctions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "autobid:monitoring:version"
	// ChangedChannel carries version bumps between console instances.
	ChangedChannel = "admin.monitoring.changed"
)

// Cache keeps the monitoring list in Redis under a versioned key. Bumping the
// version invalidates every instance at once.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (c *Cache) listKey(ctx context.Context) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("autobid:monitoring:list:%d", ver), nil
}

// FetchList loads the cached list or populates it using loader. Redis
// failures are logged and the list is served from loader alone.
func (c *Cache) FetchList(ctx context.Context, loader func(context.Context) ([]MonitorItem, error)) ([]MonitorItem, error) {
	if c == nil || c.client == nil || c.ttl <= 0 {
		return loader(ctx)
	}
	key, err := c.listKey(ctx)
	if err != nil {
		c.logger.Warn("monitoring cache version", slog.Any("error", err))
		return loader(ctx)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var items []MonitorItem
		if err := json.Unmarshal(payload, &items); err == nil {
			return items, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("monitoring cache read", slog.String("key", key), slog.Any("error", err))
	}
	items, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("monitoring cache write", slog.String("key", key), slog.Any("error", err))
	}
	return items, nil
}

// Bump invalidates the cached list and announces the change.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, ChangedChannel, strconv.FormatInt(ver, 10)).Err()
}

// Subscribe calls fn for every bump published by any instance until ctx ends.
func (c *Cache) Subscribe(ctx context.Context, fn func()) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, ChangedChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("auctions: subscribe %s: %w", ChangedChannel, err)
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				fn()
			}
		}
	}()
	return nil
}
