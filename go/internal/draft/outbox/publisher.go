package outbox

import (
	"context"

	"github.com/mcdev12/leaguedraft/go/internal/draft/events"
	"github.com/rs/zerolog/log"
)

// Publisher delivers one outbox event to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event events.Event) error

func (f PublisherFunc) Publish(ctx context.Context, event events.Event) error { return f(ctx, event) }

// LogPublisher logs events instead of publishing them. Used when no NATS
// server is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, event events.Event) error {
	log.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", string(event.Type)).
		Str("draft_id", event.SessionID.String()).
		RawJSON("payload", event.Payload).
		Msg("publishing event")
	return nil
}
