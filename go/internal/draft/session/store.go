package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/leaguedraft/go/internal/draft/events"
	"github.com/mcdev12/leaguedraft/go/internal/models"
)

// Commit is one conditional write of a session. It succeeds only when the
// stored version still equals ExpectedVersion; otherwise the store returns
// ErrVersionConflict and writes nothing.
type Commit struct {
	Session         *Session
	ExpectedVersion int64
	NewPicks        []models.DraftPick
	Events          []events.Event
}

// DuePick identifies an active session whose pick window has closed.
type DuePick struct {
	SessionID uuid.UUID `json:"sessionId"`
	PickIndex int       `json:"pickIndex"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store persists sessions, their picks and their outbox events. Get returns
// a snapshot the caller owns. Transient failures surface as
// ErrStorageUnavailable.
type Store interface {
	Create(ctx context.Context, s *Session, evts []events.Event) error
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	Commit(ctx context.Context, c Commit) error
	// NextDeadline returns the earliest pick deadline among active sessions,
	// or nil when none is armed.
	NextDeadline(ctx context.Context) (*time.Time, error)
	// ListDue returns active sessions whose deadline is at or before cutoff.
	ListDue(ctx context.Context, cutoff time.Time, limit int) ([]DuePick, error)
}
