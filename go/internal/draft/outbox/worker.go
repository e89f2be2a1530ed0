package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int
	RetryDelay   time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
		MaxRetries:   3,
		RetryDelay:   time.Second,
	}
}

// Worker relays the outbox by polling. It is the relay used with the
// in-memory store and as a fallback when LISTEN/NOTIFY is unavailable.
type Worker struct {
	*relay
	config Config

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewWorker(repo Repository, publisher Publisher, cfg Config, metrics MetricsCollector, clock clockwork.Clock) *Worker {
	return &Worker{
		relay:  newRelay(repo, publisher, metrics, clock, RetryConfig{MaxRetries: cfg.MaxRetries, RetryDelay: cfg.RetryDelay}, cfg.BatchSize),
		config: cfg,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker already running")
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	log.Info().
		Dur("poll_interval", w.config.PollInterval).
		Int("batch_size", w.config.BatchSize).
		Msg("outbox worker started")
	return nil
}

func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker not running")
	}
	w.running = false
	close(w.stopChan)
	w.mu.Unlock()

	w.wg.Wait()
	log.Info().Msg("outbox worker stopped")
	return nil
}

// Running reports whether the poll loop is active.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// ProcessOnce relays a single batch.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	return w.drain(ctx)
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := w.clock.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.process(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.Chan():
			w.process(ctx)
		}
	}
}

func (w *Worker) process(ctx context.Context) {
	if _, err := w.drain(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("failed to process outbox")
	}
}
