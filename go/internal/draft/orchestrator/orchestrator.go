package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/leaguedraft/go/internal/draft/session"
	"github.com/mcdev12/leaguedraft/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Engine is what the orchestrator needs from the draft engine. Both the
// in-process *session.App and the remote *session.Client satisfy it.
type Engine interface {
	NextDeadline(ctx context.Context) (*time.Time, error)
	DuePicks(ctx context.Context, limit int) ([]session.DuePick, error)
	ExpirePick(ctx context.Context, id uuid.UUID, expectedPickIndex int) (*models.DraftPick, error)
}

var (
	_ Engine = (*session.App)(nil)
	_ Engine = (*session.Client)(nil)
)

type Config struct {
	BatchSize  int           // how many due picks to fetch at once
	NumWorkers int           // size of the expiry worker pool
	IdlePoll   time.Duration // longest sleep when nothing is armed
	// MaxFetchRetries bounds consecutive deadline fetch failures before
	// RunScheduler gives up.
	MaxFetchRetries int
	// A session whose expiry fails is not dispatched again until its
	// backoff, starting at ExpiryBackoff and capped at MaxExpiryBackoff,
	// has elapsed.
	ExpiryBackoff    time.Duration
	MaxExpiryBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize:       100,
		NumWorkers:      10,
		IdlePoll:        5 * time.Second,
		MaxFetchRetries:  3,
		ExpiryBackoff:    time.Second,
		MaxExpiryBackoff: 30 * time.Second,
	}
}

// Orchestrator drives pick expiry. It sleeps until the earliest armed
// deadline, then hands every due pick to a worker that calls ExpirePick.
// Several orchestrators may run against the same engine; the engine's
// expected pick index check makes duplicate expiries harmless.
type Orchestrator struct {
	engine     Engine
	cfg        Config
	clock      clockwork.Clock
	wakeCh     chan struct{}
	instanceID string

	// in-flight sessions, so one slow expiry is not queued twice
	inFlight   map[uuid.UUID]bool
	failing    map[uuid.UUID]*expiryRetry
	inFlightMu sync.Mutex
}

type expiryRetry struct {
	backoff *backoff.ExponentialBackOff
	next    time.Time
}

func NewOrchestrator(engine Engine, cfg Config, clock clockwork.Clock) *Orchestrator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.IdlePoll <= 0 {
		cfg.IdlePoll = DefaultConfig().IdlePoll
	}
	if cfg.ExpiryBackoff <= 0 {
		cfg.ExpiryBackoff = DefaultConfig().ExpiryBackoff
	}
	if cfg.MaxExpiryBackoff < cfg.ExpiryBackoff {
		cfg.MaxExpiryBackoff = cfg.ExpiryBackoff
	}
	return &Orchestrator{
		engine:     engine,
		cfg:        cfg,
		clock:      clock,
		wakeCh:     make(chan struct{}, 1),
		instanceID: uuid.New().String()[:8],
		inFlight:   make(map[uuid.UUID]bool),
		failing:    make(map[uuid.UUID]*expiryRetry),
	}
}

// Wake makes the scheduler re-read the next deadline. It never blocks.
func (o *Orchestrator) Wake() {
	select {
	case o.wakeCh <- struct{}{}:
	default:
	}
}

// RunScheduler loops until ctx is cancelled, sleeping until the next
// deadline and expiring due picks.
func (o *Orchestrator) RunScheduler(ctx context.Context) error {
	log.Info().Str("instance", o.instanceID).Int("workers", o.cfg.NumWorkers).Msg("scheduler started")

	workCh := make(chan session.DuePick, o.cfg.NumWorkers*2)
	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	for i := 0; i < o.cfg.NumWorkers; i++ {
		wg.Add(1)
		go o.worker(workerCtx, &wg, i, workCh)
	}

	defer func() {
		log.Info().Str("instance", o.instanceID).Msg("shutting down workers")
		cancelWorkers()
		close(workCh)
		wg.Wait()
		log.Info().Str("instance", o.instanceID).Msg("all workers shut down")
	}()

	timer := o.clock.NewTimer(o.cfg.IdlePoll)
	defer stopAndDrainTimer(timer)

	retryCount := 0
	for {
		select {
		case <-o.wakeCh:
		default:
		}

		next, err := o.engine.NextDeadline(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			retryCount++
			if retryCount > o.cfg.MaxFetchRetries {
				log.Error().Err(err).Str("instance", o.instanceID).Msg("error fetching next deadline after retries")
				return err
			}
			log.Error().
				Err(err).
				Int("retry", retryCount).
				Str("instance", o.instanceID).
				Msg("error fetching next deadline, retrying")
			if !o.sleep(ctx, timer, time.Second*time.Duration(retryCount), false) {
				return nil
			}
			continue
		}
		retryCount = 0

		if next == nil {
			log.Debug().Str("instance", o.instanceID).Dur("idle_poll", o.cfg.IdlePoll).Msg("no armed picks")
			if !o.sleep(ctx, timer, o.cfg.IdlePoll, true) {
				return nil
			}
			continue
		}

		if wait := next.Sub(o.clock.Now()); wait > 0 {
			if wait > o.cfg.IdlePoll {
				wait = o.cfg.IdlePoll
			}
			if !o.sleep(ctx, timer, wait, true) {
				return nil
			}
			if o.clock.Now().Before(*next) {
				continue
			}
		}

		due, err := o.engine.DuePicks(ctx, o.cfg.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Str("instance", o.instanceID).Msg("error fetching due picks")
			if !o.sleep(ctx, timer, time.Second, false) {
				return nil
			}
			continue
		}

		queued := 0
		for _, d := range due {
			if o.backingOff(d.SessionID) {
				log.Debug().Str("draft_id", d.SessionID.String()).Msg("skipping draft until expiry retry is due")
				continue
			}
			if !o.claim(d.SessionID) {
				log.Debug().Str("draft_id", d.SessionID.String()).Msg("skipping draft already in flight")
				continue
			}
			select {
			case <-ctx.Done():
				o.release(d.SessionID)
				return nil
			case workCh <- d:
				queued++
			}
		}
		if len(due) > 0 {
			log.Debug().
				Int("count_due", len(due)).
				Int("queued", queued).
				Str("instance", o.instanceID).
				Msg("dispatched due picks")
		}

		// Everything due is already being worked or backing off; wait
		// instead of spinning on the same deadline.
		if queued == 0 {
			if !o.sleep(ctx, timer, time.Second, true) {
				return nil
			}
		}
	}
}

// sleep waits for d, a wake-up (when wakeable) or cancellation. It reports
// false when ctx is done.
func (o *Orchestrator) sleep(ctx context.Context, timer clockwork.Timer, d time.Duration, wakeable bool) bool {
	stopAndDrainTimer(timer)
	timer.Reset(d)

	wake := o.wakeCh
	if !wakeable {
		wake = nil
	}
	select {
	case <-timer.Chan():
		return true
	case <-wake:
		return true
	case <-ctx.Done():
		log.Info().Str("instance", o.instanceID).Msg("scheduler shutting down")
		return false
	}
}

func (o *Orchestrator) claim(id uuid.UUID) bool {
	o.inFlightMu.Lock()
	defer o.inFlightMu.Unlock()
	if o.inFlight[id] {
		return false
	}
	o.inFlight[id] = true
	return true
}

func (o *Orchestrator) release(id uuid.UUID) {
	o.inFlightMu.Lock()
	delete(o.inFlight, id)
	o.inFlightMu.Unlock()
}

// recordFailure pushes the session's next expiry attempt out by its
// backoff.
func (o *Orchestrator) recordFailure(id uuid.UUID) time.Duration {
	o.inFlightMu.Lock()
	defer o.inFlightMu.Unlock()
	r, ok := o.failing[id]
	if !ok {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = o.cfg.ExpiryBackoff
		b.MaxInterval = o.cfg.MaxExpiryBackoff
		b.MaxElapsedTime = 0
		b.Clock = o.clock
		b.Reset()
		r = &expiryRetry{backoff: b}
		o.failing[id] = r
	}
	wait := r.backoff.NextBackOff()
	r.next = o.clock.Now().Add(wait)
	return wait
}

func (o *Orchestrator) clearFailure(id uuid.UUID) {
	o.inFlightMu.Lock()
	delete(o.failing, id)
	o.inFlightMu.Unlock()
}

func (o *Orchestrator) backingOff(id uuid.UUID) bool {
	o.inFlightMu.Lock()
	defer o.inFlightMu.Unlock()
	r, ok := o.failing[id]
	return ok && o.clock.Now().Before(r.next)
}

// stopAndDrainTimer stops a timer and drains a pending fire so a later
// Reset starts clean.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
