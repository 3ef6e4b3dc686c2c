package events

import "time"

// Event defines the contract for gateway lifecycle events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "SESSION_ROTATED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Lifecycle event codes emitted by the gateway.
const (
	TypeSessionRotated      = "SESSION_ROTATED"
	TypeSessionRevoked      = "SESSION_REVOKED"
	TypeRefreshReuse        = "REFRESH_REUSE_DETECTED"
	TypeStreamOpened        = "STREAM_OPENED"
	TypeStreamClosed        = "STREAM_CLOSED"
	TypeGenerationCancelled = "GENERATION_CANCELLED"
)

// BaseEvent helps embed common logic if needed,
// strictly creating valid implementations is preferred though.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// NewSessionRotated builds the event recorded when a refresh token is
// successfully exchanged for a new pair.
func NewSessionRotated(subject, family string) BaseEvent {
	return BaseEvent{
		Type:       TypeSessionRotated,
		Data:       map[string]interface{}{"subject": subject, "family": family},
		OccurredAt: time.Now(),
	}
}

// NewRefreshReuse builds the event recorded when an already-consumed refresh
// token is presented again. Consumers treat this as a possible token theft.
func NewRefreshReuse(subject, family string) BaseEvent {
	return BaseEvent{
		Type:       TypeRefreshReuse,
		Data:       map[string]interface{}{"subject": subject, "family": family},
		OccurredAt: time.Now(),
	}
}
