package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/leaguedraft/go/internal/draft/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoredSession(t *testing.T, store *MemoryStore) *Session {
	t.Helper()
	s := &Session{
		ID:          uuid.New(),
		TotalRounds: 1,
		Teams:       []uuid.UUID{uuid.New()},
		PickTimer:   30 * time.Second,
		State:       Scheduled{},
		Pool:        []uuid.UUID{uuid.New()},
		Version:     1,
	}
	s.Order = append([]uuid.UUID(nil), s.Teams...)
	require.NoError(t, store.Create(context.Background(), s, nil))
	return s
}

func TestMemoryStoreConditionalCommit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	s := newStoredSession(t, store)

	next := s.Clone()
	next.Version = 2
	require.NoError(t, store.Commit(ctx, Commit{Session: next, ExpectedVersion: 1}))

	stale := s.Clone()
	stale.Version = 2
	err := store.Commit(ctx, Commit{Session: stale, ExpectedVersion: 1})
	assert.ErrorIs(t, err, ErrVersionConflict)

	err = store.Commit(ctx, Commit{Session: &Session{ID: uuid.New()}, ExpectedVersion: 1})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.Error(t, store.Create(ctx, s, nil))
}

func TestMemoryStoreSnapshotsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	s := newStoredSession(t, store)

	snap, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	snap.Pool[0] = uuid.Nil
	snap.Teams = nil

	again, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Pool, again.Pool)
	assert.Equal(t, s.Teams, again.Teams)
}

func TestMemoryStoreOutbox(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	id := uuid.New()
	now := time.Now()

	var evts []events.Event
	for _, typ := range []events.EventType{events.EventTypeDraftCreated, events.EventTypeDraftStarted, events.EventTypePickStarted} {
		e, err := events.New(id, typ, map[string]string{"k": "v"}, now)
		require.NoError(t, err)
		evts = append(evts, e)
	}
	s := &Session{ID: id, State: Scheduled{}, Version: 1}
	require.NoError(t, store.Create(ctx, s, evts))

	pending, err := store.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, pending)

	batch, err := store.FetchUnsent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, evts[0].ID, batch[0].ID)

	require.NoError(t, store.MarkSent(ctx, batch[0].ID, now))
	batch, err = store.FetchUnsent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, evts[1].ID, batch[0].ID)

	got, err := store.FetchByID(ctx, evts[0].ID)
	require.NoError(t, err)
	assert.NotNil(t, got.SentAt)

	assert.Error(t, store.MarkSent(ctx, uuid.New(), now))
	_, err = store.FetchByID(ctx, uuid.New())
	assert.Error(t, err)
}
