package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/leaguedraft/go/internal/draft/events"
	"github.com/mcdev12/leaguedraft/go/internal/draft/session"
)

// MessageTypeStateSync is sent once when a socket subscribes, before any
// broadcast event.
const MessageTypeStateSync = "state_sync"

// MessageTypeYourTurn goes only to the sockets of the team on the clock. Its
// data is the pick_started payload.
const MessageTypeYourTurn = "your_turn"

// DraftEvent is the frame written to websocket subscribers.
type DraftEvent struct {
	ID        string          `json:"id"`
	DraftID   string          `json:"draft_id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewDraftEvent wraps an outbox event for websocket delivery.
func NewDraftEvent(evt events.Event) *DraftEvent {
	return &DraftEvent{
		ID:        evt.ID.String(),
		DraftID:   evt.SessionID.String(),
		Type:      string(evt.Type),
		Timestamp: evt.CreatedAt,
		Data:      evt.Payload,
	}
}

func newYourTurnEvent(evt events.Event) *DraftEvent {
	frame := NewDraftEvent(evt)
	frame.ID = evt.ID.String() + "-your-turn"
	frame.Type = MessageTypeYourTurn
	return frame
}

func newStateSyncEvent(status *session.Status, at time.Time) (*DraftEvent, error) {
	data, err := json.Marshal(status)
	if err != nil {
		return nil, fmt.Errorf("marshal status: %w", err)
	}
	return &DraftEvent{
		ID:        fmt.Sprintf("%s-%d", status.SessionID, status.Version),
		DraftID:   status.SessionID.String(),
		Type:      MessageTypeStateSync,
		Timestamp: at,
		Data:      data,
	}, nil
}

// ParseEventPayload decodes the frame data into the payload struct for its
// type.
func ParseEventPayload(event *DraftEvent) (interface{}, error) {
	var payload interface{}
	switch events.EventType(event.Type) {
	case events.EventTypeDraftCreated:
		payload = &events.DraftCreatedPayload{}
	case events.EventTypeDraftStarted:
		payload = &events.DraftStartedPayload{}
	case events.EventTypePickStarted, MessageTypeYourTurn:
		payload = &events.PickStartedPayload{}
	case events.EventTypePickMade:
		payload = &events.PickMadePayload{}
	case events.EventTypeDraftPaused:
		payload = &events.DraftPausedPayload{}
	case events.EventTypeDraftResumed:
		payload = &events.DraftResumedPayload{}
	case events.EventTypeDraftCompleted:
		payload = &events.DraftCompletedPayload{}
	case events.EventTypeDraftCancelled:
		payload = &events.DraftCancelledPayload{}
	case MessageTypeStateSync:
		payload = &session.Status{}
	default:
		return nil, fmt.Errorf("unknown event type: %s", event.Type)
	}

	if err := json.Unmarshal(event.Data, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
