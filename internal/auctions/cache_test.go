package auctions

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoggedCache(t *testing.T) (*Cache, *miniredis.Miniredis, *strings.Builder) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	var logs strings.Builder
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	return NewCache(client, time.Minute, logger), mr, &logs
}

func TestFetchListServesLoadedItemsWhenWriteFails(t *testing.T) {
	cache, mr, logs := newLoggedCache(t)
	want := []MonitorItem{item("a", 120, false)}

	items, err := cache.FetchList(context.Background(), func(context.Context) ([]MonitorItem, error) {
		mr.SetError("READONLY You can't write against a read only replica.")
		return want, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(items))
	assert.Contains(t, logs.String(), "monitoring cache write")

	mr.SetError("")
	assert.False(t, mr.Exists("autobid:monitoring:list:1"))
}

func TestFetchListFallsBackToLoaderWhenRedisIsDown(t *testing.T) {
	cache, mr, logs := newLoggedCache(t)
	mr.SetError("LOADING Redis is loading the dataset in memory")

	var calls int
	items, err := cache.FetchList(context.Background(), func(context.Context) ([]MonitorItem, error) {
		calls++
		return []MonitorItem{item("b", 30, true)}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(items))
	assert.Equal(t, 1, calls)
	assert.Contains(t, logs.String(), "monitoring cache version")
}
