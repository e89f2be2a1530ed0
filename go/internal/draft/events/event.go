package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names a domain event. The string value is also the last token
// of the NATS subject the event is published on.
type EventType string

const (
	EventTypeDraftCreated   EventType = "draft_created"
	EventTypeDraftStarted   EventType = "draft_started"
	EventTypePickStarted    EventType = "pick_started"
	EventTypePickMade       EventType = "pick_made"
	EventTypeDraftPaused    EventType = "draft_paused"
	EventTypeDraftResumed   EventType = "draft_resumed"
	EventTypeDraftCompleted EventType = "draft_completed"
	EventTypeDraftCancelled EventType = "draft_cancelled"
)

// Known reports whether t is one of the event types above.
func (t EventType) Known() bool {
	switch t {
	case EventTypeDraftCreated, EventTypeDraftStarted, EventTypePickStarted, EventTypePickMade,
		EventTypeDraftPaused, EventTypeDraftResumed, EventTypeDraftCompleted, EventTypeDraftCancelled:
		return true
	}
	return false
}

// Event is one row of the draft outbox.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	SessionID uuid.UUID       `json:"session_id"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
}

// New marshals payload into an unsent event.
func New(sessionID uuid.UUID, eventType EventType, payload any, at time.Time) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:        uuid.New(),
		SessionID: sessionID,
		Type:      eventType,
		Payload:   raw,
		CreatedAt: at,
	}, nil
}

// SubjectPrefix is the root of every draft event subject.
const SubjectPrefix = "draft.events"

// Subject returns the NATS subject for the event.
func Subject(sessionID uuid.UUID, eventType EventType) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, sessionID, eventType)
}

// Subject returns the NATS subject e is published on.
func (e Event) Subject() string {
	return Subject(e.SessionID, e.Type)
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", e.Type, err)
	}
	return nil
}
