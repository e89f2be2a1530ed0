package orchestrator

import (
	"context"

	"github.com/mcdev12/leaguedraft/go/internal/draft/events"
	"github.com/mcdev12/leaguedraft/go/internal/draft/session"
)

// armsTimer reports whether an event may move the next deadline earlier.
func armsTimer(t events.EventType) bool {
	switch t {
	case events.EventTypeDraftStarted, events.EventTypePickStarted, events.EventTypeDraftResumed:
		return true
	}
	return false
}

// HandleEvent wakes the scheduler for events that arm a pick timer. It is
// the handler for the JetStream consumer.
func (o *Orchestrator) HandleEvent(_ context.Context, event events.Event) error {
	if armsTimer(event.Type) {
		o.Wake()
	}
	return nil
}

// Notifier wakes the scheduler straight from an in-process App.
func (o *Orchestrator) Notifier() session.Notifier {
	return session.NotifierFunc(func(ctx context.Context, evts []events.Event) {
		for _, e := range evts {
			if armsTimer(e.Type) {
				o.Wake()
				return
			}
		}
	})
}
