// Package bus implements the in-process progress hub: one publisher side
// fanning stage updates out to connected push-channel subscribers.
package bus

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/recallhq/recall/domain/progress"
)

// subscriberBuffer is the per-subscriber event queue length. A subscriber
// whose queue is full has events dropped rather than blocking publishers.
const subscriberBuffer = 64

// Subscriber is one connected push-channel client.
type Subscriber struct {
	id     string
	userID string
	events chan progress.Event
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// UserID returns the identifying principal, empty for firehose consumers.
func (s *Subscriber) UserID() string { return s.userID }

// Events returns the receive channel. It is closed on Unsubscribe and on
// hub shutdown.
func (s *Subscriber) Events() <-chan progress.Event { return s.events }

// Hub is the process-wide progress bus with an init → serve → shutdown
// lifecycle. Publishing never blocks: slow subscribers lose events.
type Hub struct {
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	closed      bool
}

// NewHub creates a Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:      logger,
		subscribers: make(map[string]*Subscriber),
	}
}

// Subscribe registers a client identified by userID. Events whose user id
// is set and differs from userID are filtered at this edge; an empty
// userID receives everything.
func (h *Hub) Subscribe(userID string) *Subscriber {
	sub := &Subscriber{
		id:     uuid.NewString(),
		userID: userID,
		events: make(chan progress.Event, subscriberBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.events)
		return sub
	}
	h.subscribers[sub.id] = sub
	return sub
}

// Unsubscribe removes a client and closes its event channel.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub.id]; !ok {
		return
	}
	delete(h.subscribers, sub.id)
	close(sub.events)
}

// Publish fans an event out to all connected subscribers. Events are
// dropped per-subscriber when a queue is full so one slow client cannot
// stall the pipelines.
func (h *Hub) Publish(event progress.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}

	for _, sub := range h.subscribers {
		if sub.userID != "" && event.UserID() != "" && sub.userID != event.UserID() {
			continue
		}
		select {
		case sub.events <- event:
		default:
			h.logger.Debug("dropping progress event for slow subscriber",
				"subscriber", sub.id,
				"channel", string(event.Channel()),
			)
		}
	}
}

// SubscriberCount returns the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Shutdown closes all subscriber channels and rejects further publishes.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subscribers {
		close(sub.events)
		delete(h.subscribers, id)
	}
}

var _ progress.Publisher = (*Hub)(nil)
