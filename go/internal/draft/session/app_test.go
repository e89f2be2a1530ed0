package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/leaguedraft/go/internal/draft/events"
	"github.com/mcdev12/leaguedraft/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	mu         sync.Mutex
	pool       []uuid.UUID
	ineligible map[uuid.UUID]bool
	err        error
	calls      int

	// entered and release let a test hold a pick inside the directory call.
	entered chan struct{}
	release chan struct{}
}

func (d *fakeDirectory) IsEligible(ctx context.Context, _, _, playerID uuid.UUID) (bool, error) {
	d.mu.Lock()
	d.calls++
	entered, release := d.entered, d.release
	err := d.err
	ineligible := d.ineligible[playerID]
	d.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
		<-release
	}
	if err != nil {
		return false, err
	}
	return !ineligible, nil
}

func (d *fakeDirectory) ListEligible(context.Context, uuid.UUID, uuid.UUID) ([]uuid.UUID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uuid.UUID(nil), d.pool...), d.err
}

func (d *fakeDirectory) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type testEnv struct {
	app   *App
	clock *clockwork.FakeClock
	store *MemoryStore
	dir   *fakeDirectory
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	fake := clockwork.NewFakeClockAt(time.Date(2026, 9, 1, 19, 0, 0, 0, time.UTC))
	store := NewMemoryStore()
	dir := &fakeDirectory{ineligible: map[uuid.UUID]bool{}}
	return &testEnv{
		app:   NewApp(store, dir, fake, opts...),
		clock: fake,
		store: store,
		dir:   dir,
	}
}

func players(n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = uuid.New()
	}
	return out
}

func (e *testEnv) createStarted(t *testing.T, teams []uuid.UUID, rounds int, pool []uuid.UUID) *Session {
	t.Helper()
	ctx := context.Background()
	s, err := e.app.CreateSession(ctx, CreateSessionRequest{
		LeagueID:         uuid.New(),
		SeasonID:         uuid.New(),
		Teams:            teams,
		TotalRounds:      rounds,
		PickTimerSeconds: 30,
		PlayerPool:       pool,
	})
	require.NoError(t, err)
	s, err = e.app.StartSession(ctx, s.ID)
	require.NoError(t, err)
	return s
}

func (e *testEnv) pick(id, team, player uuid.UUID) (*models.DraftPick, error) {
	return e.app.SubmitPick(context.Background(), SubmitPickRequest{SessionID: id, TeamID: team, PlayerID: player})
}

func eventTypes(evts []events.Event) []events.EventType {
	out := make([]events.EventType, len(evts))
	for i, e := range evts {
		out[i] = e.Type
	}
	return out
}

func TestSnakeDraftScenario(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	teamA, teamB := uuid.New(), uuid.New()
	pool := players(5)
	p1, p2, p3, p4 := pool[0], pool[1], pool[2], pool[3]

	s, err := env.app.CreateSession(ctx, CreateSessionRequest{
		LeagueID:         uuid.New(),
		SeasonID:         uuid.New(),
		Teams:            []uuid.UUID{teamA, teamB},
		TotalRounds:      2,
		PickTimerSeconds: 30,
		PlayerPool:       pool,
	})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{teamA, teamB, teamB, teamA}, s.Order)
	assert.Equal(t, models.SessionStatusScheduled, s.Status())
	assert.Zero(t, s.CurrentRound())

	_, err = env.app.StartSession(ctx, s.ID)
	require.NoError(t, err)

	st, err := env.app.GetStatus(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, st.Status)
	assert.Equal(t, teamA, *st.CurrentTeamID)
	assert.Equal(t, 1, st.CurrentRound)
	assert.Equal(t, 1, st.CurrentPick)
	assert.Equal(t, 30*time.Second, st.TimeRemaining())

	env.clock.Advance(time.Second)
	_, err = env.pick(s.ID, teamA, p1)
	require.NoError(t, err)
	st, err = env.app.GetStatus(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, teamB, *st.CurrentTeamID)

	env.clock.Advance(time.Second)
	_, err = env.pick(s.ID, teamB, p1)
	assert.ErrorIs(t, err, ErrPlayerAlreadyPicked)

	_, err = env.pick(s.ID, teamB, p2)
	require.NoError(t, err)
	st, err = env.app.GetStatus(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, teamB, *st.CurrentTeamID)
	assert.Equal(t, 2, st.CurrentRound)
	assert.Equal(t, 1, st.PickInRound)

	env.clock.Advance(time.Second)
	_, err = env.pick(s.ID, teamB, p3)
	require.NoError(t, err)
	st, err = env.app.GetStatus(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, teamA, *st.CurrentTeamID)

	env.clock.Advance(time.Second)
	last, err := env.pick(s.ID, teamA, p4)
	require.NoError(t, err)
	assert.Equal(t, 4, last.OverallPick)
	assert.Equal(t, 2, last.Round)
	assert.Equal(t, 2, last.PickNumber)

	st, err = env.app.GetStatus(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, st.Status)
	assert.Nil(t, st.CurrentTeamID)
	assert.Equal(t, 4, st.CurrentPickIndex)
	assert.Equal(t, 4, st.CompletedPicks)
	assert.Zero(t, st.TimeRemainingMs)
	assert.Equal(t, []uuid.UUID{pool[4]}, st.AvailablePlayers)
	require.Len(t, st.RecentPicks, 4)
	assert.Equal(t, p4, *st.RecentPicks[0].PlayerID)
	assert.Equal(t, p1, *st.RecentPicks[3].PlayerID)

	_, err = env.pick(s.ID, teamA, pool[4])
	assert.ErrorIs(t, err, ErrSessionNotActive)

	picks, err := env.app.ListPicks(ctx, s.ID)
	require.NoError(t, err)
	slots := map[[2]int]bool{}
	for i, p := range picks {
		slots[[2]int{p.Round, p.PickNumber}] = true
		if i > 0 {
			assert.True(t, p.PickedAt.After(picks[i-1].PickedAt))
		}
	}
	assert.Equal(t, map[[2]int]bool{{1, 1}: true, {1, 2}: true, {2, 1}: true, {2, 2}: true}, slots)

	assert.Equal(t, []events.EventType{
		events.EventTypeDraftCreated,
		events.EventTypeDraftStarted,
		events.EventTypePickStarted,
		events.EventTypePickMade,
		events.EventTypePickStarted,
		events.EventTypePickMade,
		events.EventTypePickStarted,
		events.EventTypePickMade,
		events.EventTypePickStarted,
		events.EventTypePickMade,
		events.EventTypeDraftCompleted,
	}, eventTypes(env.store.Events(s.ID)))
}

func TestSubmitPickValidationOrder(t *testing.T) {
	ctx := context.Background()
	teamA, teamB := uuid.New(), uuid.New()

	t.Run("not active wins over every other check", func(t *testing.T) {
		env := newTestEnv(t)
		pool := players(3)
		s, err := env.app.CreateSession(ctx, CreateSessionRequest{
			Teams: []uuid.UUID{teamA, teamB}, TotalRounds: 1, PickTimerSeconds: 30, PlayerPool: pool,
		})
		require.NoError(t, err)

		_, err = env.pick(s.ID, teamB, uuid.New())
		assert.ErrorIs(t, err, ErrSessionNotActive)
		assert.Zero(t, env.dir.callCount())
	})

	t.Run("not your turn before pool and window", func(t *testing.T) {
		env := newTestEnv(t)
		pool := players(3)
		s := env.createStarted(t, []uuid.UUID{teamA, teamB}, 2, pool)
		_, err := env.pick(s.ID, teamA, pool[0])
		require.NoError(t, err)

		env.clock.Advance(time.Hour)
		_, err = env.pick(s.ID, teamA, pool[0])
		assert.ErrorIs(t, err, ErrNotYourTurn)
		assert.Equal(t, 1, env.dir.callCount())
	})

	t.Run("already picked before window", func(t *testing.T) {
		env := newTestEnv(t)
		pool := players(3)
		s := env.createStarted(t, []uuid.UUID{teamA, teamB}, 2, pool)
		_, err := env.pick(s.ID, teamA, pool[0])
		require.NoError(t, err)

		env.clock.Advance(time.Hour)
		_, err = env.pick(s.ID, teamB, pool[0])
		assert.ErrorIs(t, err, ErrPlayerAlreadyPicked)
	})

	t.Run("window expired", func(t *testing.T) {
		env := newTestEnv(t)
		pool := players(3)
		s := env.createStarted(t, []uuid.UUID{teamA, teamB}, 2, pool)

		env.clock.Advance(31 * time.Second)
		_, err := env.pick(s.ID, teamA, pool[0])
		assert.ErrorIs(t, err, ErrPickWindowExpired)
	})

	t.Run("pick at the deadline is accepted", func(t *testing.T) {
		env := newTestEnv(t)
		pool := players(3)
		s := env.createStarted(t, []uuid.UUID{teamA, teamB}, 2, pool)

		env.clock.Advance(30 * time.Second)
		_, err := env.pick(s.ID, teamA, pool[0])
		assert.NoError(t, err)
	})

	t.Run("directory rejects before pool check", func(t *testing.T) {
		env := newTestEnv(t)
		pool := players(3)
		s := env.createStarted(t, []uuid.UUID{teamA, teamB}, 2, pool)
		_, err := env.pick(s.ID, teamA, pool[0])
		require.NoError(t, err)

		env.dir.mu.Lock()
		env.dir.ineligible[pool[0]] = true
		env.dir.mu.Unlock()
		_, err = env.pick(s.ID, teamB, pool[0])
		assert.ErrorIs(t, err, ErrPlayerNotEligible)
	})

	t.Run("player outside pool", func(t *testing.T) {
		env := newTestEnv(t)
		s := env.createStarted(t, []uuid.UUID{teamA, teamB}, 2, players(3))
		_, err := env.pick(s.ID, teamA, uuid.New())
		assert.ErrorIs(t, err, ErrPlayerNotEligible)
	})

	t.Run("directory failure", func(t *testing.T) {
		env := newTestEnv(t)
		pool := players(3)
		s := env.createStarted(t, []uuid.UUID{teamA, teamB}, 2, pool)
		env.dir.err = errors.New("roster down")
		_, err := env.pick(s.ID, teamA, pool[0])
		assert.ErrorContains(t, err, "roster down")
	})

	t.Run("unknown session", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.pick(uuid.New(), teamA, uuid.New())
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestSubmitPickLateGrace(t *testing.T) {
	env := newTestEnv(t, WithConfig(Config{LateGrace: 5 * time.Second, MaxCommitAttempts: 3}))
	teamA, teamB := uuid.New(), uuid.New()
	pool := players(4)
	s := env.createStarted(t, []uuid.UUID{teamA, teamB}, 2, pool)

	env.clock.Advance(33 * time.Second)
	_, err := env.pick(s.ID, teamA, pool[0])
	require.NoError(t, err)

	env.clock.Advance(36 * time.Second)
	_, err = env.pick(s.ID, teamB, pool[1])
	assert.ErrorIs(t, err, ErrPickWindowExpired)
}

func TestPauseResumeResetsTimer(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	teamA, teamB := uuid.New(), uuid.New()
	pool := players(4)
	s := env.createStarted(t, []uuid.UUID{teamA, teamB}, 2, pool)

	env.clock.Advance(20 * time.Second)
	paused, err := env.app.PauseSession(ctx, s.ID, "commissioner break")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusPaused, paused.Status())
	assert.Nil(t, paused.Timer())
	assert.Equal(t, 0, paused.Cursor)

	st, err := env.app.GetStatus(ctx, s.ID)
	require.NoError(t, err)
	assert.Zero(t, st.TimeRemainingMs)
	assert.Nil(t, st.TimerExpiresAt)
	assert.Equal(t, teamA, *st.CurrentTeamID)

	_, err = env.pick(s.ID, teamA, pool[0])
	assert.ErrorIs(t, err, ErrSessionNotActive)

	_, err = env.app.PauseSession(ctx, s.ID, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	env.clock.Advance(10 * time.Minute)
	resumed, err := env.app.ResumeSession(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, resumed.Timer())

	st, err = env.app.GetStatus(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, st.TimeRemaining())

	_, err = env.pick(s.ID, teamA, pool[0])
	assert.NoError(t, err)
}

func TestCancelSession(t *testing.T) {
	ctx := context.Background()
	teamA, teamB := uuid.New(), uuid.New()

	t.Run("cancel active", func(t *testing.T) {
		env := newTestEnv(t)
		pool := players(4)
		s := env.createStarted(t, []uuid.UUID{teamA, teamB}, 2, pool)

		cancelled, err := env.app.CancelSession(ctx, s.ID, "weather")
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusCancelled, cancelled.Status())
		assert.Equal(t, "weather", cancelled.Record().CancelReason)
		assert.Nil(t, cancelled.CurrentTeam())

		_, err = env.pick(s.ID, teamA, pool[0])
		assert.ErrorIs(t, err, ErrSessionNotActive)

		_, err = env.app.CancelSession(ctx, s.ID, "again")
		assert.ErrorIs(t, err, ErrInvalidTransition)
		_, err = env.app.StartSession(ctx, s.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("cancel scheduled and paused", func(t *testing.T) {
		env := newTestEnv(t)
		s, err := env.app.CreateSession(ctx, CreateSessionRequest{
			Teams: []uuid.UUID{teamA, teamB}, TotalRounds: 1, PickTimerSeconds: 30,
		})
		require.NoError(t, err)
		_, err = env.app.CancelSession(ctx, s.ID, "")
		assert.NoError(t, err)

		s = env.createStarted(t, []uuid.UUID{teamA, teamB}, 1, players(2))
		_, err = env.app.PauseSession(ctx, s.ID, "")
		require.NoError(t, err)
		_, err = env.app.CancelSession(ctx, s.ID, "")
		assert.NoError(t, err)
	})

	t.Run("cancel completed is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		pool := players(1)
		s := env.createStarted(t, []uuid.UUID{teamA}, 1, pool)
		_, err := env.pick(s.ID, teamA, pool[0])
		require.NoError(t, err)

		_, err = env.app.CancelSession(ctx, s.ID, "")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("in-flight pick observes cancel", func(t *testing.T) {
		env := newTestEnv(t)
		pool := players(4)
		s := env.createStarted(t, []uuid.UUID{teamA, teamB}, 2, pool)

		env.dir.mu.Lock()
		env.dir.entered = make(chan struct{})
		env.dir.release = make(chan struct{})
		env.dir.mu.Unlock()

		errCh := make(chan error, 1)
		go func() {
			_, err := env.pick(s.ID, teamA, pool[0])
			errCh <- err
		}()

		<-env.dir.entered
		_, err := env.app.CancelSession(ctx, s.ID, "admin")
		require.NoError(t, err)
		close(env.dir.release)

		assert.ErrorIs(t, <-errCh, ErrSessionNotActive)

		picks, err := env.app.ListPicks(ctx, s.ID)
		require.NoError(t, err)
		assert.Empty(t, picks)
	})
}

func TestExpirePick(t *testing.T) {
	ctx := context.Background()
	teamA, teamB := uuid.New(), uuid.New()

	t.Run("auto-picks best available", func(t *testing.T) {
		env := newTestEnv(t)
		pool := players(4)
		s := env.createStarted(t, []uuid.UUID{teamA, teamB}, 2, pool)

		_, err := env.app.ExpirePick(ctx, s.ID, 0)
		assert.ErrorIs(t, err, ErrPickWindowOpen)

		env.clock.Advance(30 * time.Second)
		pick, err := env.app.ExpirePick(ctx, s.ID, 0)
		require.NoError(t, err)
		assert.True(t, pick.AutoPicked)
		assert.Equal(t, teamA, pick.TeamID)
		assert.Equal(t, pool[0], *pick.PlayerID)

		st, err := env.app.GetStatus(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, teamB, *st.CurrentTeamID)
		assert.Equal(t, 30*time.Second, st.TimeRemaining())

		_, err = env.app.ExpirePick(ctx, s.ID, 0)
		assert.ErrorIs(t, err, ErrStalePick)
	})

	t.Run("skips when pool is empty", func(t *testing.T) {
		env := newTestEnv(t)
		pool := players(1)
		s := env.createStarted(t, []uuid.UUID{teamA, teamB}, 1, pool)

		_, err := env.pick(s.ID, teamA, pool[0])
		require.NoError(t, err)

		env.clock.Advance(31 * time.Second)
		pick, err := env.app.ExpirePick(ctx, s.ID, 1)
		require.NoError(t, err)
		assert.True(t, pick.Skipped())
		assert.Equal(t, teamB, pick.TeamID)

		got, err := env.app.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusCompleted, got.Status())
		assert.Equal(t, 2, got.Cursor)
	})

	t.Run("not active", func(t *testing.T) {
		env := newTestEnv(t)
		s, err := env.app.CreateSession(ctx, CreateSessionRequest{
			Teams: []uuid.UUID{teamA}, TotalRounds: 1, PickTimerSeconds: 30,
		})
		require.NoError(t, err)
		_, err = env.app.ExpirePick(ctx, s.ID, 0)
		assert.ErrorIs(t, err, ErrSessionNotActive)
	})

	t.Run("late human pick loses to autopick on back-to-back turn", func(t *testing.T) {
		env := newTestEnv(t)
		pool := players(4)
		s := env.createStarted(t, []uuid.UUID{teamA, teamB}, 2, pool)
		_, err := env.pick(s.ID, teamA, pool[0])
		require.NoError(t, err)

		stamped := env.clock.Now().Add(29 * time.Second)
		env.clock.Advance(31 * time.Second)
		_, err = env.app.ExpirePick(ctx, s.ID, 1)
		require.NoError(t, err)

		_, err = env.app.SubmitPick(ctx, SubmitPickRequest{
			SessionID: s.ID, TeamID: teamB, PlayerID: pool[3], RequestedAt: stamped,
		})
		assert.ErrorIs(t, err, ErrPickWindowExpired)

		got, err := env.app.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Cursor)
	})

	t.Run("random strategy stays in pool", func(t *testing.T) {
		env := newTestEnv(t, WithAutoPickStrategy(NewRandomStrategyWithSeed(7)))
		pool := players(6)
		s := env.createStarted(t, []uuid.UUID{teamA, teamB}, 1, pool)

		env.clock.Advance(31 * time.Second)
		pick, err := env.app.ExpirePick(ctx, s.ID, 0)
		require.NoError(t, err)
		assert.Contains(t, pool, *pick.PlayerID)
	})
}

func TestDuePicksAndNextDeadline(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	next, err := env.app.NextDeadline(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)

	first := env.createStarted(t, []uuid.UUID{uuid.New()}, 1, players(1))
	env.clock.Advance(10 * time.Second)
	second := env.createStarted(t, []uuid.UUID{uuid.New()}, 1, players(1))

	next, err = env.app.NextDeadline(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, first.Timer().ExpiresAt, *next)

	due, err := env.app.DuePicks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	env.clock.Advance(25 * time.Second)
	due, err = env.app.DuePicks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, first.ID, due[0].SessionID)

	env.clock.Advance(10 * time.Second)
	due, err = env.app.DuePicks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, second.ID, due[1].SessionID)

	due, err = env.app.DuePicks(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestAtMostOneWinner(t *testing.T) {
	env := newTestEnv(t)
	teamA, teamB := uuid.New(), uuid.New()
	pool := players(64)
	s := env.createStarted(t, []uuid.UUID{teamA, teamB}, 2, pool)

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		notTurn   atomic.Int32
		other     atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(player uuid.UUID) {
			defer wg.Done()
			<-start
			_, err := env.pick(s.ID, teamA, player)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrNotYourTurn):
				notTurn.Add(1)
			default:
				other.Add(1)
			}
		}(pool[i%4])
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(31), notTurn.Load())
	assert.Zero(t, other.Load())

	got, err := env.app.GetSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Cursor)
	assert.Len(t, got.Picks, 1)
	assert.Zero(t, env.app.locks.size())
}

func TestPickRacingExpiry(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	teamA, teamB := uuid.New(), uuid.New()
	pool := players(8)
	s := env.createStarted(t, []uuid.UUID{teamA, teamB}, 2, pool)
	stamped := env.clock.Now().Add(30 * time.Second)
	env.clock.Advance(30 * time.Second)

	var wg sync.WaitGroup
	var humanErr, autoErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, humanErr = env.app.SubmitPick(ctx, SubmitPickRequest{SessionID: s.ID, TeamID: teamA, PlayerID: pool[5], RequestedAt: stamped})
	}()
	go func() {
		defer wg.Done()
		_, autoErr = env.app.ExpirePick(ctx, s.ID, 0)
	}()
	wg.Wait()

	assert.True(t, (humanErr == nil) != (autoErr == nil), "human=%v auto=%v", humanErr, autoErr)

	got, err := env.app.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, got.Picks, 1)
	assert.Equal(t, 1, got.Picks[0].OverallPick)
}

// racingStore lets a second engine instance commit just before the first
// instance's conditional write.
type racingStore struct {
	*MemoryStore
	once sync.Once
	race func()
}

func (r *racingStore) Commit(ctx context.Context, c Commit) error {
	r.once.Do(r.race)
	return r.MemoryStore.Commit(ctx, c)
}

func TestVersionConflictRevalidates(t *testing.T) {
	ctx := context.Background()
	fake := clockwork.NewFakeClock()
	shared := NewMemoryStore()
	teamA, teamB := uuid.New(), uuid.New()
	pool := players(4)

	other := NewApp(shared, nil, fake)
	s, err := other.CreateSession(ctx, CreateSessionRequest{
		Teams: []uuid.UUID{teamA, teamB}, TotalRounds: 2, PickTimerSeconds: 30, PlayerPool: pool,
	})
	require.NoError(t, err)
	_, err = other.StartSession(ctx, s.ID)
	require.NoError(t, err)

	var otherErr error
	store := &racingStore{MemoryStore: shared}
	store.race = func() {
		_, otherErr = other.SubmitPick(ctx, SubmitPickRequest{SessionID: s.ID, TeamID: teamA, PlayerID: pool[1]})
	}
	app := NewApp(store, nil, fake)

	_, err = app.SubmitPick(ctx, SubmitPickRequest{SessionID: s.ID, TeamID: teamA, PlayerID: pool[0]})
	require.NoError(t, otherErr)
	assert.ErrorIs(t, err, ErrNotYourTurn)

	got, err := app.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, got.Picks, 1)
	assert.Equal(t, pool[1], *got.Picks[0].PlayerID)
}

func TestVersionConflictExhausted(t *testing.T) {
	ctx := context.Background()
	fake := clockwork.NewFakeClock()
	shared := NewMemoryStore()
	other := NewApp(shared, nil, fake)
	s, err := other.CreateSession(ctx, CreateSessionRequest{
		Teams: []uuid.UUID{uuid.New()}, TotalRounds: 1, PickTimerSeconds: 30,
	})
	require.NoError(t, err)

	store := &racingStore{MemoryStore: shared}
	store.race = func() {
		_, err := other.PauseSession(ctx, s.ID, "")
		assert.ErrorIs(t, err, ErrInvalidTransition)
		_, err = other.CancelSession(ctx, s.ID, "raced")
		assert.NoError(t, err)
	}
	app := NewApp(store, nil, fake, WithConfig(Config{MaxCommitAttempts: 1}))

	_, err = app.StartSession(ctx, s.ID)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestCreateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("zero rounds completes immediately", func(t *testing.T) {
		env := newTestEnv(t)
		s, err := env.app.CreateSession(ctx, CreateSessionRequest{
			Teams: []uuid.UUID{uuid.New(), uuid.New()}, TotalRounds: 0, PickTimerSeconds: 30,
		})
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusCompleted, s.Status())
		assert.Empty(t, s.Order)
		assert.Nil(t, s.CurrentTeam())

		_, err = env.app.StartSession(ctx, s.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)

		st, err := env.app.GetStatus(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusCompleted, st.Status)
		assert.Zero(t, st.TotalPicks)
	})

	t.Run("pool loaded from directory", func(t *testing.T) {
		env := newTestEnv(t)
		env.dir.pool = players(3)
		s, err := env.app.CreateSession(ctx, CreateSessionRequest{
			Teams: []uuid.UUID{uuid.New()}, TotalRounds: 1, PickTimerSeconds: 30,
		})
		require.NoError(t, err)
		assert.Equal(t, env.dir.pool, s.Pool)
	})

	t.Run("metadata kept", func(t *testing.T) {
		env := newTestEnv(t)
		s, err := env.app.CreateSession(ctx, CreateSessionRequest{
			Teams: []uuid.UUID{uuid.New()}, TotalRounds: 1, PickTimerSeconds: 30,
			Metadata: json.RawMessage(`{"venue":"clubhouse"}`),
		})
		require.NoError(t, err)
		got, err := env.app.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"venue":"clubhouse"}`, string(got.Metadata))
	})

	invalid := []struct {
		name string
		req  CreateSessionRequest
	}{
		{name: "no teams", req: CreateSessionRequest{TotalRounds: 1, PickTimerSeconds: 30}},
		{name: "duplicate teams", req: func() CreateSessionRequest {
			a := uuid.New()
			return CreateSessionRequest{Teams: []uuid.UUID{a, a}, TotalRounds: 1, PickTimerSeconds: 30}
		}()},
		{name: "negative rounds", req: CreateSessionRequest{Teams: []uuid.UUID{uuid.New()}, TotalRounds: -1, PickTimerSeconds: 30}},
		{name: "zero timer", req: CreateSessionRequest{Teams: []uuid.UUID{uuid.New()}, TotalRounds: 1}},
		{name: "duplicate pool", req: func() CreateSessionRequest {
			p := uuid.New()
			return CreateSessionRequest{Teams: []uuid.UUID{uuid.New()}, TotalRounds: 1, PickTimerSeconds: 30, PlayerPool: []uuid.UUID{p, p}}
		}()},
		{name: "bad metadata", req: CreateSessionRequest{Teams: []uuid.UUID{uuid.New()}, TotalRounds: 1, PickTimerSeconds: 30, Metadata: json.RawMessage(`{`)}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.app.CreateSession(ctx, tt.req)
			assert.ErrorIs(t, err, ErrInvalidDraftConfiguration)
		})
	}
}

func TestNotifierReceivesCommittedEvents(t *testing.T) {
	var (
		mu  sync.Mutex
		got []events.EventType
	)
	env := newTestEnv(t, WithNotifier(NotifierFunc(func(_ context.Context, evts []events.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, eventTypes(evts)...)
	})))
	teamA := uuid.New()
	pool := players(1)
	s := env.createStarted(t, []uuid.UUID{teamA}, 1, pool)

	_, err := env.pick(s.ID, uuid.New(), pool[0])
	require.ErrorIs(t, err, ErrNotYourTurn)
	_, err = env.pick(s.ID, teamA, pool[0])
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []events.EventType{
		events.EventTypeDraftCreated,
		events.EventTypeDraftStarted,
		events.EventTypePickStarted,
		events.EventTypePickMade,
		events.EventTypeDraftCompleted,
	}, got)
}

func TestCursorMonotonic(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	teams := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	pool := players(20)
	s := env.createStarted(t, teams, 4, pool)

	prev := -1
	for i := 0; i < len(s.Order); i++ {
		got, err := env.app.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.Greater(t, got.Cursor, prev)
		assert.LessOrEqual(t, got.Cursor, len(got.Order))
		prev = got.Cursor

		env.clock.Advance(time.Second)
		if i%3 == 0 {
			env.clock.Advance(30 * time.Second)
			_, err = env.app.ExpirePick(ctx, s.ID, got.Cursor)
		} else {
			_, err = env.pick(s.ID, *got.CurrentTeam(), got.Available()[len(got.Available())-1])
		}
		require.NoError(t, err)
	}

	got, err := env.app.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, len(got.Order), got.Cursor)
	assert.Equal(t, models.SessionStatusCompleted, got.Status())

	seen := map[uuid.UUID]bool{}
	for _, p := range got.Picks {
		require.NotNil(t, p.PlayerID)
		assert.False(t, seen[*p.PlayerID])
		seen[*p.PlayerID] = true
	}
}

func TestStrategyByName(t *testing.T) {
	assert.IsType(t, &RandomStrategy{}, StrategyByName("random"))
	assert.IsType(t, BestAvailableStrategy{}, StrategyByName("best_available"))
	assert.IsType(t, BestAvailableStrategy{}, StrategyByName(""))

	pool := players(3)
	got, ok := BestAvailableStrategy{}.Select(uuid.New(), uuid.New(), pool)
	require.True(t, ok)
	assert.Equal(t, pool[0], got)

	_, ok = BestAvailableStrategy{}.Select(uuid.New(), uuid.New(), nil)
	assert.False(t, ok)
}
