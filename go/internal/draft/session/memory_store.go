package session

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/leaguedraft/go/internal/draft/events"
)

// MemoryStore keeps sessions and their outbox in process. It is used by the
// single-node server mode and by tests; it also serves as the outbox
// repository for the polling relay worker.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	outbox   []events.Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[uuid.UUID]*Session)}
}

func (m *MemoryStore) Create(_ context.Context, s *Session, evts []events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.ID]; exists {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	m.sessions[s.ID] = s.Clone()
	m.outbox = append(m.outbox, evts...)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Commit(_ context.Context, c Commit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.sessions[c.Session.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, c.Session.ID)
	}
	if current.Version != c.ExpectedVersion {
		return fmt.Errorf("%w: session %s at version %d, expected %d",
			ErrVersionConflict, c.Session.ID, current.Version, c.ExpectedVersion)
	}
	m.sessions[c.Session.ID] = c.Session.Clone()
	m.outbox = append(m.outbox, c.Events...)
	return nil
}

func (m *MemoryStore) NextDeadline(_ context.Context) (*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var next *time.Time
	for _, s := range m.sessions {
		if a, ok := s.State.(Active); ok {
			if next == nil || a.Timer.ExpiresAt.Before(*next) {
				t := a.Timer.ExpiresAt
				next = &t
			}
		}
	}
	return next, nil
}

func (m *MemoryStore) ListDue(_ context.Context, cutoff time.Time, limit int) ([]DuePick, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var due []DuePick
	for _, s := range m.sessions {
		if a, ok := s.State.(Active); ok && !a.Timer.ExpiresAt.After(cutoff) {
			due = append(due, DuePick{SessionID: s.ID, PickIndex: s.Cursor, ExpiresAt: a.Timer.ExpiresAt})
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ExpiresAt.Before(due[j].ExpiresAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// FetchUnsent returns unsent outbox events in insertion order.
func (m *MemoryStore) FetchUnsent(_ context.Context, limit int) ([]events.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []events.Event
	for _, e := range m.outbox {
		if e.SentAt != nil {
			continue
		}
		e.Payload = slices.Clone(e.Payload)
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// FetchUnsentForSession returns one session's unsent events in insertion
// order.
func (m *MemoryStore) FetchUnsentForSession(_ context.Context, sessionID uuid.UUID, limit int) ([]events.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []events.Event
	for _, e := range m.outbox {
		if e.SentAt != nil || e.SessionID != sessionID {
			continue
		}
		e.Payload = slices.Clone(e.Payload)
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) FetchByID(_ context.Context, id uuid.UUID) (*events.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.outbox {
		if e.ID == id {
			e.Payload = slices.Clone(e.Payload)
			return &e, nil
		}
	}
	return nil, fmt.Errorf("outbox event %s not found", id)
}

func (m *MemoryStore) MarkSent(_ context.Context, id uuid.UUID, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.outbox {
		if m.outbox[i].ID == id {
			t := sentAt
			m.outbox[i].SentAt = &t
			return nil
		}
	}
	return fmt.Errorf("outbox event %s not found", id)
}

func (m *MemoryStore) CountPending(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, e := range m.outbox {
		if e.SentAt == nil {
			n++
		}
	}
	return n, nil
}

// Events returns every outbox event recorded for a session, sent or not.
func (m *MemoryStore) Events(sessionID uuid.UUID) []events.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []events.Event
	for _, e := range m.outbox {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out
}
