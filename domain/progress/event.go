// Package progress defines the stage-update events that ingestion and
// query processing publish for connected clients.
package progress

import (
	"fmt"
	"time"

	"github.com/recallhq/recall/domain/document"
)

// Channel names an event stream.
type Channel string

// Fixed channels.
const (
	ChannelEmbeddings  Channel = "embeddings:progress"
	ChannelRAGProgress Channel = "rag:progress"
	ChannelRAGComplete Channel = "rag:complete"
	ChannelRAGError    Channel = "rag:error"
)

// SyncProgress returns the per-source sync progress channel.
func SyncProgress(source document.Source) Channel {
	return Channel(fmt.Sprintf("sync:%s:progress", source))
}

// SyncComplete returns the per-source sync completion channel.
func SyncComplete(source document.Source) Channel {
	return Channel(fmt.Sprintf("sync:%s:complete", source))
}

// SyncError returns the per-source sync error channel.
func SyncError(source document.Source) Channel {
	return Channel(fmt.Sprintf("sync:%s:error", source))
}

// Event is one stage update. Delivery is best-effort push to currently
// connected subscribers; events are never persisted or replayed.
type Event struct {
	channel   Channel
	scopeID   string
	userID    string
	timestamp time.Time
	payload   map[string]any
}

// NewEvent creates an Event stamped with the current time.
func NewEvent(channel Channel, scopeID, userID string, payload map[string]any) Event {
	return Event{
		channel:   channel,
		scopeID:   scopeID,
		userID:    userID,
		timestamp: time.Now().UTC(),
		payload:   payload,
	}
}

// Channel returns the event stream name.
func (e Event) Channel() Channel { return e.channel }

// ScopeID returns the sync or query id the event belongs to.
func (e Event) ScopeID() string { return e.scopeID }

// UserID returns the principal the event concerns; consumers use it to
// filter at the push-channel edge.
func (e Event) UserID() string { return e.userID }

// Timestamp returns when the event was emitted.
func (e Event) Timestamp() time.Time { return e.timestamp }

// Payload returns the stage data.
func (e Event) Payload() map[string]any { return e.payload }

// Publisher accepts events for fan-out.
type Publisher interface {
	Publish(event Event)
}

// NopPublisher discards all events.
type NopPublisher struct{}

// Publish discards the event.
func (NopPublisher) Publish(Event) {}

// StagePayload builds the conventional payload for a stage update.
func StagePayload(stage, message string, percentage int, counts map[string]int) map[string]any {
	p := map[string]any{
		"stage":      stage,
		"message":    message,
		"percentage": percentage,
	}
	for k, v := range counts {
		p[k] = v
	}
	return p
}
