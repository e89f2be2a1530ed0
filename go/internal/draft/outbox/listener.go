package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

type ListenerConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // channel the outbox trigger notifies
	FallbackInterval time.Duration // how often to poll for missed events
	MaxRetries       int
	RetryDelay       time.Duration
	PingInterval     time.Duration
	BatchSize        int
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel:    "draft_outbox_events",
		FallbackInterval: 30 * time.Second,
		MaxRetries:       5,
		RetryDelay:       200 * time.Millisecond,
		PingInterval:     90 * time.Second,
		BatchSize:        100,
	}
}

// Listener relays outbox rows as soon as the insert trigger announces them,
// with a periodic sweep for anything a dropped connection missed.
type Listener struct {
	*relay
	listener *pq.Listener
	cfg      ListenerConfig
	active   atomic.Bool
	closed   atomic.Bool
}

func NewListener(db *sql.DB, publisher Publisher, cfg ListenerConfig, metrics MetricsCollector) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().Str("channel", cfg.NotifyChannel).Msg("listening for notifications")

	retry := RetryConfig{MaxRetries: cfg.MaxRetries, RetryDelay: cfg.RetryDelay}
	return &Listener{
		relay:    newRelay(NewPostgresRepository(db), publisher, metrics, clockwork.NewRealClock(), retry, cfg.BatchSize),
		listener: l,
		cfg:      cfg,
	}, nil
}

// Start blocks until ctx is cancelled.
func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("listener started")

	pingTicker := l.clock.NewTicker(l.cfg.PingInterval)
	fallbackTicker := l.clock.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	l.active.Store(true)
	// rows written while the relay was down
	l.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			l.active.Store(false)
			return l.Stop()
		case note := <-l.listener.Notify:
			if note == nil {
				// connection was re-established; notifications may be lost
				l.sweep(ctx)
				continue
			}
			if err := l.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle notification")
			}
		case <-fallbackTicker.Chan():
			l.sweep(ctx)
		case <-pingTicker.Chan():
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

// Stop closes the LISTEN connection. Calling it again is a no-op.
func (l *Listener) Stop() error {
	if l.closed.Swap(true) {
		return nil
	}
	return l.listener.Close()
}

// Running reports whether the notification loop is active.
func (l *Listener) Running() bool {
	return l.active.Load()
}

// handleNotification relays the session named by the notified row. Earlier
// unsent rows of that session go first, so a row is never published ahead
// of one that failed before it. Rows already sent by a sweep are skipped.
func (l *Listener) handleNotification(ctx context.Context, extra string) error {
	id, err := uuid.Parse(extra)
	if err != nil {
		return fmt.Errorf("invalid event ID in notification: %w", err)
	}

	event, err := l.repo.FetchByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch outbox event: %w", err)
	}
	if event.SentAt != nil {
		return nil
	}

	sent, err := l.drainSession(ctx, event.SessionID)
	if err != nil {
		return fmt.Errorf("failed to publish events for draft %s: %w", event.SessionID, err)
	}
	log.Debug().
		Str("event_id", id.String()).
		Str("draft_id", event.SessionID.String()).
		Int("sent", sent).
		Msg("published pending draft events")
	return nil
}

func (l *Listener) sweep(ctx context.Context) {
	if _, err := l.drain(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("failed to process unsent events")
	}
}
