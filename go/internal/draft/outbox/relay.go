package outbox

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/leaguedraft/go/internal/draft/events"
	"github.com/rs/zerolog/log"
)

// RetryConfig bounds publish attempts. Attempt n waits RetryDelay*n.
type RetryConfig struct {
	MaxRetries int
	RetryDelay time.Duration
}

// relay publishes outbox rows and marks them sent. Worker and Listener
// differ only in what triggers a delivery.
type relay struct {
	repo      Repository
	publisher Publisher
	metrics   MetricsCollector
	clock     clockwork.Clock
	retry     RetryConfig
	batchSize int

	processed atomic.Uint64
	lastEvent atomic.Int64 // unix nanos of the last successful publish
}

func newRelay(repo Repository, publisher Publisher, metrics MetricsCollector, clock clockwork.Clock, retry RetryConfig, batchSize int) *relay {
	if metrics == nil {
		metrics = NoOpMetricsCollector{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &relay{
		repo:      repo,
		publisher: NewMetricPublisher(publisher, metrics, clock),
		metrics:   metrics,
		clock:     clock,
		retry:     retry,
		batchSize: batchSize,
	}
}

// Stats returns the number of events published and when the last one was.
func (r *relay) Stats() (uint64, time.Time) {
	var last time.Time
	if n := r.lastEvent.Load(); n != 0 {
		last = time.Unix(0, n).UTC()
	}
	return r.processed.Load(), last
}

// deliver publishes one event and marks it sent.
func (r *relay) deliver(ctx context.Context, event events.Event) error {
	if err := r.publishWithRetry(ctx, event); err != nil {
		return err
	}
	now := r.clock.Now()
	if err := r.repo.MarkSent(ctx, event.ID, now); err != nil {
		return fmt.Errorf("failed to mark event %s as sent: %w", event.ID, err)
	}
	r.processed.Add(1)
	r.lastEvent.Store(now.UnixNano())
	return nil
}

// drain publishes one batch of unsent events in insertion order. Events of
// a session after a failed one are held back so subscribers never see them
// out of order.
func (r *relay) drain(ctx context.Context) (int, error) {
	start := r.clock.Now()
	unsent, err := r.repo.FetchUnsent(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch unsent events: %w", err)
	}
	if len(unsent) == 0 {
		r.metrics.RecordOutboxLag(0)
		return 0, nil
	}

	sent := 0
	blocked := make(map[string]bool)
	for _, event := range unsent {
		key := event.SessionID.String()
		if blocked[key] {
			continue
		}
		if err := r.deliver(ctx, event); err != nil {
			if ctx.Err() != nil {
				return sent, ctx.Err()
			}
			blocked[key] = true
			log.Error().Err(err).
				Str("event_id", event.ID.String()).
				Str("draft_id", key).
				Msg("failed to relay event")
			continue
		}
		sent++
	}

	r.metrics.RecordBatchProcessed(sent, r.clock.Since(start))
	if pending, err := r.repo.CountPending(ctx); err == nil {
		r.metrics.RecordOutboxLag(pending)
	}
	log.Debug().Int("total", len(unsent)).Int("sent", sent).Msg("processed outbox batch")
	return sent, nil
}

// drainSession publishes the unsent events of one session in seq order and
// stops at the first failure, leaving the rest for a later pass.
func (r *relay) drainSession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	unsent, err := r.repo.FetchUnsentForSession(ctx, sessionID, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch unsent events: %w", err)
	}
	sent := 0
	for _, event := range unsent {
		if err := r.deliver(ctx, event); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

func (r *relay) publishWithRetry(ctx context.Context, event events.Event) error {
	var lastErr error

	for attempt := 0; attempt <= r.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			if delay := r.retry.RetryDelay * time.Duration(attempt); delay > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-r.clock.After(delay):
				}
			}
		}

		if err := r.publisher.Publish(ctx, event); err != nil {
			lastErr = err
			r.metrics.RecordPublishAttempt(event.Type, attempt+1, false)
			log.Warn().Err(err).
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("failed to publish, retrying")
			continue
		}

		r.metrics.RecordPublishAttempt(event.Type, attempt+1, true)
		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("publish succeeded after retry")
		}
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", r.retry.MaxRetries+1, lastErr)
}
