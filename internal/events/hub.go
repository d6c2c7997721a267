package events

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

const defaultSubscriberBuffer = 256

// Hub fans events out to subscribers. Delivery never blocks the publisher:
// a subscriber whose buffer is full misses the event and the drop is counted.
type Hub struct {
	mu   sync.RWMutex
	subs []*subscriber

	published atomic.Uint64
	dropped   atomic.Uint64
}

type subscriber struct {
	ch    chan Event
	types []EventType // empty means every type
}

func (s *subscriber) wants(t EventType) bool {
	return len(s.types) == 0 || slices.Contains(s.types, t)
}

// NewHub creates a hub with no subscribers.
func NewHub() *Hub {
	return &Hub{}
}

// Publish stamps e if it has no timestamp and offers it to every interested
// subscriber. Publishing on a nil Hub is a no-op so components can run
// without one.
func (h *Hub) Publish(e Event) {
	if h == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	h.published.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if !s.wants(e.Type) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel receiving events of the given types, or of
// every type when none are given. The caller must keep draining it.
func (h *Hub) Subscribe(bufSize int, types ...EventType) <-chan Event {
	if bufSize <= 0 {
		bufSize = defaultSubscriberBuffer
	}
	s := &subscriber{ch: make(chan Event, bufSize), types: slices.Clone(types)}

	h.mu.Lock()
	h.subs = append(h.subs, s)
	h.mu.Unlock()
	return s.ch
}

// Unsubscribe stops delivery to ch. It does not close ch.
func (h *Hub) Unsubscribe(ch <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = slices.DeleteFunc(h.subs, func(s *subscriber) bool {
		return (<-chan Event)(s.ch) == ch
	})
}

// Stats reports how many events were published and how many deliveries
// were dropped.
func (h *Hub) Stats() (published, dropped uint64) {
	return h.published.Load(), h.dropped.Load()
}

// EmitTransition publishes a controller transition outcome.
func (h *Hub) EmitTransition(data TransitionData) {
	h.Publish(Event{Type: EventTransition, Source: "override", Data: data})
}

// EmitBadge publishes a badge change.
func (h *Hub) EmitBadge(text string) {
	h.Publish(Event{Type: EventBadge, Source: "badge", Data: BadgeData{Text: text}})
}

// EmitSweep publishes the result of one TTL sweep.
func (h *Hub) EmitSweep(result string, expiresAt int64) {
	h.Publish(Event{Type: EventSweep, Source: "scheduler", Data: SweepData{Result: result, ExpiresAt: expiresAt}})
}
