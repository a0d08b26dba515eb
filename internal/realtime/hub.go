// Package realtime fans change notifications out to in-process subscribers.
package realtime

import "sync"

// Notification is one change signal received on a topic.
type Notification struct {
	Topic   string
	Payload string
}

// Hub delivers notifications to the subscribers of their topic. Delivery never
// blocks the publisher: a subscriber whose buffer is full misses the
// notification, so subscribers must treat a signal as "something changed".
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Notification]struct{}
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: map[string]map[chan Notification]struct{}{}}
}

// Subscribe registers interest in topic. The returned release func removes the
// subscription and closes the channel; calling it more than once is safe.
func (h *Hub) Subscribe(topic string, buffer int) (<-chan Notification, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Notification, buffer)
	h.mu.Lock()
	if h.subs[topic] == nil {
		h.subs[topic] = map[chan Notification]struct{}{}
	}
	h.subs[topic][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { h.unsubscribe(topic, ch) })
	}
}

func (h *Hub) unsubscribe(topic string, ch chan Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[topic]
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(h.subs, topic)
	}
	close(ch)
}

// Publish delivers n to every subscriber of n.Topic without blocking.
func (h *Hub) Publish(n Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[n.Topic] {
		select {
		case ch <- n:
		default:
		}
	}
}

// Subscribers reports the number of live subscriptions on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}
