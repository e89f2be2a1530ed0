package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/leaguedraft/go/internal/draft/events"
	"github.com/mcdev12/leaguedraft/go/internal/models"
	"github.com/rs/zerolog/log"
)

// PlayerDirectory is the roster source of truth consulted before a pick is
// validated against the session pool.
type PlayerDirectory interface {
	IsEligible(ctx context.Context, leagueID, seasonID, playerID uuid.UUID) (bool, error)
	ListEligible(ctx context.Context, leagueID, seasonID uuid.UUID) ([]uuid.UUID, error)
}

// Notifier is told about committed events. It is informed, not consulted:
// failures are its own concern.
type Notifier interface {
	Notify(ctx context.Context, evts []events.Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, evts []events.Event)

func (f NotifierFunc) Notify(ctx context.Context, evts []events.Event) { f(ctx, evts) }

// Config tunes the engine.
type Config struct {
	// LateGrace accepts picks requested up to this long after the deadline,
	// and delays the expiry transition by the same amount.
	LateGrace         time.Duration
	RecentPicksWindow int
	// MaxCommitAttempts bounds re-validation after a version conflict.
	MaxCommitAttempts int
}

func DefaultConfig() Config {
	return Config{
		RecentPicksWindow: defaultRecentPicksWindow,
		MaxCommitAttempts: 3,
	}
}

// Option configures an App.
type Option func(*App)

func WithConfig(cfg Config) Option {
	return func(a *App) { a.cfg = cfg }
}

func WithAutoPickStrategy(strat AutoPickStrategy) Option {
	return func(a *App) { a.strategy = strat }
}

func WithNotifier(n Notifier) Option {
	return func(a *App) { a.notifiers = append(a.notifiers, n) }
}

// App handles draft session business logic
type App struct {
	store     Store
	directory PlayerDirectory
	clock     *TurnClock
	strategy  AutoPickStrategy
	notifiers []Notifier
	locks     *sessionLocks
	cfg       Config
}

// NewApp creates a new session App. directory may be nil, in which case
// pool membership is the only eligibility check.
func NewApp(store Store, directory PlayerDirectory, clock clockwork.Clock, opts ...Option) *App {
	a := &App{
		store:     store,
		directory: directory,
		clock:     NewTurnClock(clock),
		strategy:  BestAvailableStrategy{},
		locks:     newSessionLocks(),
		cfg:       DefaultConfig(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.cfg.MaxCommitAttempts <= 0 {
		a.cfg.MaxCommitAttempts = 1
	}
	return a
}

// Clock exposes the engine clock to transports that stamp requests.
func (a *App) Clock() *TurnClock {
	return a.clock
}

// CreateSessionRequest describes a new draft.
type CreateSessionRequest struct {
	LeagueID         uuid.UUID
	SeasonID         uuid.UUID
	Teams            []uuid.UUID
	TotalRounds      int
	PickTimerSeconds int
	// PlayerPool is the ranked eligible pool. When empty it is loaded from
	// the player directory.
	PlayerPool []uuid.UUID
	Metadata   json.RawMessage
}

// CreateSession computes the draft order and persists a scheduled session.
// A session with zero rounds has nothing to pick and is created completed.
func (a *App) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	if err := a.validateCreateSessionRequest(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	order, err := GenerateOrder(req.Teams, req.TotalRounds)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	pool := req.PlayerPool
	if len(pool) == 0 && a.directory != nil {
		pool, err = a.directory.ListEligible(ctx, req.LeagueID, req.SeasonID)
		if err != nil {
			return nil, fmt.Errorf("failed to load player pool: %w", err)
		}
	}
	if err := validatePool(pool); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	now := a.clock.Now()
	s := &Session{
		ID:          uuid.New(),
		LeagueID:    req.LeagueID,
		SeasonID:    req.SeasonID,
		TotalRounds: req.TotalRounds,
		Teams:       append([]uuid.UUID(nil), req.Teams...),
		Order:       order,
		PickTimer:   time.Duration(req.PickTimerSeconds) * time.Second,
		State:       Scheduled{},
		Pool:        append([]uuid.UUID(nil), pool...),
		Metadata:    req.Metadata,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if len(order) == 0 {
		s.State = Completed{CompletedAt: now}
	}

	created, err := events.New(s.ID, events.EventTypeDraftCreated, events.DraftCreatedPayload{
		LeagueID:         s.LeagueID.String(),
		SeasonID:         s.SeasonID.String(),
		Status:           string(s.Status()),
		TotalRounds:      s.TotalRounds,
		TotalPicks:       len(order),
		PickTimerSeconds: req.PickTimerSeconds,
		CreatedAt:        now,
	}, now)
	if err != nil {
		return nil, err
	}

	if err := a.store.Create(ctx, s, []events.Event{created}); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	a.notify(ctx, []events.Event{created})

	log.Info().
		Str("draft_id", s.ID.String()).
		Int("teams", len(s.Teams)).
		Int("rounds", s.TotalRounds).
		Str("status", string(s.Status())).
		Msg("draft session created")
	return s, nil
}

// GetSession returns a snapshot of the session.
func (a *App) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	s, err := a.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// ListPicks returns the committed picks in order.
func (a *App) ListPicks(ctx context.Context, id uuid.UUID) ([]models.DraftPick, error) {
	s, err := a.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Picks, nil
}

// GetStatus projects the latest committed snapshot. It takes no session lock.
func (a *App) GetStatus(ctx context.Context, id uuid.UUID) (*Status, error) {
	s, err := a.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	st := Project(s, a.clock, a.cfg.RecentPicksWindow)
	return &st, nil
}

// StartSession moves a scheduled session to active and arms pick 1.
func (a *App) StartSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	return a.mutate(ctx, id, func(s *Session) (*mutation, error) {
		next, err := Transition(s.State, EventStart, a.clock, s.PickTimer)
		if err != nil {
			return nil, err
		}
		s.State = next
		now := a.clock.Now()
		s.StartedAt = &now

		started, err := events.New(s.ID, events.EventTypeDraftStarted, events.DraftStartedPayload{
			StartedAt:   now,
			TotalRounds: s.TotalRounds,
			TotalPicks:  len(s.Order),
		}, now)
		if err != nil {
			return nil, err
		}
		first, err := pickStartedEvent(s)
		if err != nil {
			return nil, err
		}
		return &mutation{events: []events.Event{started, first}}, nil
	})
}

// PauseSession stops the clock and keeps the cursor.
func (a *App) PauseSession(ctx context.Context, id uuid.UUID, reason string) (*Session, error) {
	return a.mutate(ctx, id, func(s *Session) (*mutation, error) {
		next, err := Transition(s.State, EventPause, a.clock, s.PickTimer)
		if err != nil {
			return nil, err
		}
		s.State = next
		now := a.clock.Now()

		paused, err := events.New(s.ID, events.EventTypeDraftPaused, events.DraftPausedPayload{
			PausedAt:  now,
			Reason:    reason,
			PickIndex: s.Cursor,
		}, now)
		if err != nil {
			return nil, err
		}
		return &mutation{events: []events.Event{paused}}, nil
	})
}

// ResumeSession re-arms the current pick with a full fresh window.
func (a *App) ResumeSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	return a.mutate(ctx, id, func(s *Session) (*mutation, error) {
		next, err := Transition(s.State, EventResume, a.clock, s.PickTimer)
		if err != nil {
			return nil, err
		}
		s.State = next
		timer := s.Timer()

		resumed, err := events.New(s.ID, events.EventTypeDraftResumed, events.DraftResumedPayload{
			ResumedAt: timer.StartedAt,
			TimeoutAt: timer.ExpiresAt,
		}, timer.StartedAt)
		if err != nil {
			return nil, err
		}
		again, err := pickStartedEvent(s)
		if err != nil {
			return nil, err
		}
		return &mutation{events: []events.Event{resumed, again}}, nil
	})
}

// CancelSession ends a non-terminal session. Picks waiting on the session
// gate observe ErrSessionNotActive afterwards.
func (a *App) CancelSession(ctx context.Context, id uuid.UUID, reason string) (*Session, error) {
	return a.mutate(ctx, id, func(s *Session) (*mutation, error) {
		next, err := Transition(s.State, EventCancel, a.clock, s.PickTimer)
		if err != nil {
			return nil, err
		}
		cancelled := next.(Cancelled)
		cancelled.Reason = reason
		s.State = cancelled

		evt, err := events.New(s.ID, events.EventTypeDraftCancelled, events.DraftCancelledPayload{
			CancelledAt: cancelled.CancelledAt,
			Reason:      reason,
			PickIndex:   s.Cursor,
		}, cancelled.CancelledAt)
		if err != nil {
			return nil, err
		}
		return &mutation{events: []events.Event{evt}}, nil
	})
}

// SubmitPick validates and commits a pick for the team on the clock.
func (a *App) SubmitPick(ctx context.Context, req SubmitPickRequest) (*models.DraftPick, error) {
	if req.RequestedAt.IsZero() {
		req.RequestedAt = a.clock.Now()
	}

	// Turn checks and the directory lookup run on a snapshot so no roster
	// I/O happens while the session is held.
	snapshot, err := a.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if err := validateTurn(snapshot, req.TeamID); err != nil {
		return nil, err
	}
	if a.directory != nil {
		ok, err := a.directory.IsEligible(ctx, snapshot.LeagueID, snapshot.SeasonID, req.PlayerID)
		if err != nil {
			return nil, fmt.Errorf("failed to check player eligibility: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: player %s", ErrPlayerNotEligible, req.PlayerID)
		}
	}

	var committed models.DraftPick
	_, err = a.mutate(ctx, req.SessionID, func(s *Session) (*mutation, error) {
		if err := validateTurn(s, req.TeamID); err != nil {
			return nil, err
		}
		if err := validateSelection(s, req.PlayerID, req.RequestedAt, a.cfg.LateGrace); err != nil {
			return nil, err
		}
		playerID := req.PlayerID
		pick, evts, err := applyPick(s, &playerID, false, a.clock)
		if err != nil {
			return nil, err
		}
		committed = pick
		return &mutation{picks: []models.DraftPick{pick}, events: evts}, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("draft_id", req.SessionID.String()).
		Str("team_id", req.TeamID.String()).
		Str("player_id", req.PlayerID.String()).
		Int("overall_pick", committed.OverallPick).
		Msg("pick committed")
	return &committed, nil
}

// ExpirePick is the autopick-or-skip transition for a pick whose window has
// closed. expectedPickIndex guards against acting on a pick that a human
// already committed.
func (a *App) ExpirePick(ctx context.Context, id uuid.UUID, expectedPickIndex int) (*models.DraftPick, error) {
	var committed models.DraftPick
	_, err := a.mutate(ctx, id, func(s *Session) (*mutation, error) {
		timer := s.Timer()
		if timer == nil {
			return nil, fmt.Errorf("%w: session %s is %s", ErrSessionNotActive, s.ID, s.Status())
		}
		if s.Cursor != expectedPickIndex {
			return nil, fmt.Errorf("%w: cursor at %d, expected %d", ErrStalePick, s.Cursor, expectedPickIndex)
		}
		if now := a.clock.Now(); now.Before(timer.ExpiresAt.Add(a.cfg.LateGrace)) {
			return nil, fmt.Errorf("%w: %s left", ErrPickWindowOpen, timer.ExpiresAt.Add(a.cfg.LateGrace).Sub(now))
		}

		var playerID *uuid.UUID
		if choice, ok := a.strategy.Select(s.ID, s.Order[s.Cursor], s.Available()); ok {
			playerID = &choice
		}
		pick, evts, err := applyPick(s, playerID, true, a.clock)
		if err != nil {
			return nil, err
		}
		committed = pick
		return &mutation{picks: []models.DraftPick{pick}, events: evts}, nil
	})
	if err != nil {
		return nil, err
	}

	ev := log.Info().
		Str("draft_id", id.String()).
		Str("team_id", committed.TeamID.String()).
		Int("overall_pick", committed.OverallPick)
	if committed.Skipped() {
		ev.Msg("pick expired with empty pool, slot skipped")
	} else {
		ev.Str("player_id", committed.PlayerID.String()).Msg("pick expired, auto-picked")
	}
	return &committed, nil
}

// NextDeadline returns the earliest armed deadline, grace included.
func (a *App) NextDeadline(ctx context.Context) (*time.Time, error) {
	next, err := a.store.NextDeadline(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch next deadline: %w", err)
	}
	if next != nil {
		t := next.Add(a.cfg.LateGrace)
		next = &t
	}
	return next, nil
}

// DuePicks returns sessions whose pick can be expired now.
func (a *App) DuePicks(ctx context.Context, limit int) ([]DuePick, error) {
	due, err := a.store.ListDue(ctx, a.clock.Now().Add(-a.cfg.LateGrace), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due picks: %w", err)
	}
	return due, nil
}

// mutation is what a mutate callback wants persisted alongside the session.
type mutation struct {
	picks  []models.DraftPick
	events []events.Event
}

// mutate runs fn against a private copy of the latest session while holding
// the session gate, then writes it back conditionally. A lost conditional
// write re-runs fn against fresh state so every check sees the winner.
func (a *App) mutate(ctx context.Context, id uuid.UUID, fn func(s *Session) (*mutation, error)) (*Session, error) {
	unlock := a.locks.lock(id)
	defer unlock()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current, err := a.store.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get session: %w", err)
		}

		next := current.Clone()
		m, err := fn(next)
		if err != nil {
			return nil, err
		}
		next.Version = current.Version + 1
		next.UpdatedAt = a.clock.Now()

		err = a.store.Commit(ctx, Commit{
			Session:         next,
			ExpectedVersion: current.Version,
			NewPicks:        m.picks,
			Events:          m.events,
		})
		if errors.Is(err, ErrVersionConflict) && attempt < a.cfg.MaxCommitAttempts {
			log.Debug().
				Str("draft_id", id.String()).
				Int("attempt", attempt).
				Msg("session version conflict, retrying")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to commit session: %w", err)
		}

		a.notify(ctx, m.events)
		return next, nil
	}
}

func (a *App) notify(ctx context.Context, evts []events.Event) {
	if len(evts) == 0 {
		return
	}
	for _, n := range a.notifiers {
		n.Notify(ctx, evts)
	}
}

func (a *App) validateCreateSessionRequest(req CreateSessionRequest) error {
	if req.PickTimerSeconds <= 0 {
		return fmt.Errorf("%w: pick timer must be positive", ErrInvalidDraftConfiguration)
	}
	if req.TotalRounds < 0 {
		return fmt.Errorf("%w: rounds must not be negative", ErrInvalidDraftConfiguration)
	}
	if len(req.Metadata) > 0 && !json.Valid(req.Metadata) {
		return fmt.Errorf("%w: metadata is not valid JSON", ErrInvalidDraftConfiguration)
	}
	return nil
}

func validatePool(pool []uuid.UUID) error {
	seen := make(map[uuid.UUID]struct{}, len(pool))
	for _, id := range pool {
		if id == uuid.Nil {
			return fmt.Errorf("%w: player id is empty", ErrInvalidDraftConfiguration)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate player %s in pool", ErrInvalidDraftConfiguration, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
