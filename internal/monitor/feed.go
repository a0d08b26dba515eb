// Package monitor streams the live auction monitoring list to viewers.
package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/autobid/autobid-admin/internal/auctions"
	"github.com/autobid/autobid-admin/internal/realtime"
)

// ChangeTopic is the Postgres channel announcing monitoring row changes.
const ChangeTopic = "admin_auction_monitoring"

// DefaultInterval is the polling period when none is configured.
const DefaultInterval = 10 * time.Second

// Event types delivered to a Sink.
const (
	EventSnapshot = "snapshot"
	EventError    = "error"
)

// Refresh triggers reported to the FeedObserver.
const (
	TriggerInitial = "initial"
	TriggerTick    = "tick"
	TriggerChange  = "change"
)

// Event is one update for a viewer.
type Event struct {
	Type  string                 `json:"type"`
	Data  []auctions.MonitorItem `json:"data"`
	Error string                 `json:"error,omitempty"`
	At    time.Time              `json:"at"`
}

// Sink consumes feed events. An error from the sink stops the feed.
type Sink func(ctx context.Context, evt Event) error

// Lister loads the current monitoring list.
type Lister interface {
	ListMonitoring(ctx context.Context) ([]auctions.MonitorItem, error)
}

// Subscriber provides change notifications by topic.
type Subscriber interface {
	Subscribe(topic string, buffer int) (<-chan realtime.Notification, func())
}

// Ticker abstracts time.Ticker so tests can drive the feed.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// FeedObserver records refresh outcomes and connected viewers, typically as
// metrics.
type FeedObserver interface {
	ObserveFeedRefresh(trigger string, err error)
	AddFeedViewers(delta int)
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// Feed re-reads the monitoring list on a timer and on change notifications.
type Feed struct {
	Lister   Lister
	Changes  Subscriber
	Interval time.Duration
	Observer FeedObserver

	NewTicker func(time.Duration) Ticker
	Now       func() time.Time
}

// Run delivers a snapshot immediately, then on every tick and change
// notification, until ctx ends or the sink fails. Bursts of notifications
// collapse into a single refresh. The ticker and subscription are released
// before Run returns.
func (f *Feed) Run(ctx context.Context, sink Sink) error {
	if f.Lister == nil {
		return errors.New("monitor: feed has no lister")
	}
	interval := f.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	newTicker := f.NewTicker
	if newTicker == nil {
		newTicker = func(d time.Duration) Ticker { return timeTicker{t: time.NewTicker(d)} }
	}

	var changes <-chan realtime.Notification
	if f.Changes != nil {
		ch, release := f.Changes.Subscribe(ChangeTopic, 1)
		defer release()
		changes = ch
	}
	ticker := newTicker(interval)
	defer ticker.Stop()

	if err := f.refresh(ctx, sink, TriggerInitial); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			if err := f.refresh(ctx, sink, TriggerTick); err != nil {
				return err
			}
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if err := f.refresh(ctx, sink, TriggerChange); err != nil {
				return err
			}
		}
	}
}

// refresh loads the list once. Load failures become error events; only sink
// failures are returned.
func (f *Feed) refresh(ctx context.Context, sink Sink, trigger string) error {
	items, err := f.Lister.ListMonitoring(ctx)
	if ctx.Err() != nil {
		return nil
	}
	if f.Observer != nil {
		f.Observer.ObserveFeedRefresh(trigger, err)
	}
	evt := Event{Type: EventSnapshot, Data: items, At: f.now()}
	if err != nil {
		evt = Event{Type: EventError, Error: err.Error(), At: f.now()}
	} else if evt.Data == nil {
		evt.Data = []auctions.MonitorItem{}
	}
	return sink(ctx, evt)
}

func (f *Feed) now() time.Time {
	if f.Now != nil {
		return f.Now().UTC()
	}
	return time.Now().UTC()
}
