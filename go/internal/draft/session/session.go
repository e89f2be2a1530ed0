package session

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/leaguedraft/go/internal/models"
)

// Session is the draft aggregate: configuration, cursor, state and the
// picks committed so far.
type Session struct {
	ID          uuid.UUID
	LeagueID    uuid.UUID
	SeasonID    uuid.UUID
	TotalRounds int
	Teams       []uuid.UUID
	Order       []uuid.UUID
	PickTimer   time.Duration
	Cursor      int // index into Order of the pick on the clock
	State       State
	Pool        []uuid.UUID // ranked eligible players captured at creation
	Picks       []models.DraftPick
	Metadata    json.RawMessage
	Version     int64
	StartedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Status returns the status of the current state.
func (s *Session) Status() models.SessionStatus {
	return s.State.Status()
}

// CurrentTeam returns the team owning the pick at the cursor, or nil once
// the session is completed or cancelled.
func (s *Session) CurrentTeam() *uuid.UUID {
	if s.Status().Terminal() || s.Cursor >= len(s.Order) {
		return nil
	}
	team := s.Order[s.Cursor]
	return &team
}

// CurrentRound is 0 before the draft starts, otherwise the 1-based round of
// the cursor. A finished draft reports its last round.
func (s *Session) CurrentRound() int {
	if s.StartedAt == nil || len(s.Order) == 0 {
		return 0
	}
	if s.Cursor >= len(s.Order) {
		return s.TotalRounds
	}
	round, _ := SlotAt(s.Cursor, len(s.Teams))
	return round
}

// Timer returns the pick timer when the session is active.
func (s *Session) Timer() *PickTimer {
	if a, ok := s.State.(Active); ok {
		t := a.Timer
		return &t
	}
	return nil
}

// IsPicked reports whether playerID has already been taken in this session.
func (s *Session) IsPicked(playerID uuid.UUID) bool {
	for _, p := range s.Picks {
		if p.PlayerID != nil && *p.PlayerID == playerID {
			return true
		}
	}
	return false
}

// InPool reports whether playerID belongs to the session pool.
func (s *Session) InPool(playerID uuid.UUID) bool {
	return slices.Contains(s.Pool, playerID)
}

// Available returns the pool minus picked players, in rank order.
func (s *Session) Available() []uuid.UUID {
	picked := make(map[uuid.UUID]struct{}, len(s.Picks))
	for _, p := range s.Picks {
		if p.PlayerID != nil {
			picked[*p.PlayerID] = struct{}{}
		}
	}
	available := make([]uuid.UUID, 0, max(0, len(s.Pool)-len(picked)))
	for _, id := range s.Pool {
		if _, ok := picked[id]; !ok {
			available = append(available, id)
		}
	}
	return available
}

// Clone returns a deep copy so snapshots never share slices with the writer.
func (s *Session) Clone() *Session {
	c := *s
	c.Teams = slices.Clone(s.Teams)
	c.Order = slices.Clone(s.Order)
	c.Pool = slices.Clone(s.Pool)
	c.Picks = make([]models.DraftPick, len(s.Picks))
	for i, p := range s.Picks {
		c.Picks[i] = clonePick(p)
	}
	c.Metadata = slices.Clone(s.Metadata)
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	return &c
}

func clonePick(p models.DraftPick) models.DraftPick {
	if p.PlayerID != nil {
		id := *p.PlayerID
		p.PlayerID = &id
	}
	return p
}

// Record flattens the session into its persisted form.
func (s *Session) Record() models.DraftSession {
	r := models.DraftSession{
		ID:               s.ID,
		LeagueID:         s.LeagueID,
		SeasonID:         s.SeasonID,
		Status:           s.Status(),
		TotalRounds:      s.TotalRounds,
		Teams:            slices.Clone(s.Teams),
		DraftOrder:       slices.Clone(s.Order),
		CurrentRound:     s.CurrentRound(),
		CurrentPickIndex: s.Cursor,
		CurrentTeamID:    s.CurrentTeam(),
		PickTimerSeconds: int(s.PickTimer / time.Second),
		PlayerPool:       slices.Clone(s.Pool),
		Metadata:         slices.Clone(s.Metadata),
		Version:          s.Version,
		StartedAt:        s.StartedAt,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}

	switch st := s.State.(type) {
	case Active:
		r.TimerStartedAt = &st.Timer.StartedAt
		r.TimerExpiresAt = &st.Timer.ExpiresAt
	case Paused:
		r.PausedAt = &st.PausedAt
	case Completed:
		r.CompletedAt = &st.CompletedAt
	case Cancelled:
		r.CancelledAt = &st.CancelledAt
		r.CancelReason = st.Reason
	}
	return r
}

// FromRecord rebuilds a session from its persisted form and picks.
func FromRecord(r models.DraftSession, picks []models.DraftPick) (*Session, error) {
	s := &Session{
		ID:          r.ID,
		LeagueID:    r.LeagueID,
		SeasonID:    r.SeasonID,
		TotalRounds: r.TotalRounds,
		Teams:       slices.Clone(r.Teams),
		Order:       slices.Clone(r.DraftOrder),
		PickTimer:   time.Duration(r.PickTimerSeconds) * time.Second,
		Cursor:      r.CurrentPickIndex,
		Pool:        slices.Clone(r.PlayerPool),
		Picks:       picks,
		Metadata:    slices.Clone(r.Metadata),
		Version:     r.Version,
		StartedAt:   r.StartedAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}

	switch r.Status {
	case models.SessionStatusScheduled:
		s.State = Scheduled{}
	case models.SessionStatusActive:
		if r.TimerStartedAt == nil || r.TimerExpiresAt == nil {
			return nil, fmt.Errorf("active session %s has no pick timer", r.ID)
		}
		s.State = Active{Timer: PickTimer{StartedAt: *r.TimerStartedAt, ExpiresAt: *r.TimerExpiresAt}}
	case models.SessionStatusPaused:
		s.State = Paused{PausedAt: derefTime(r.PausedAt)}
	case models.SessionStatusCompleted:
		s.State = Completed{CompletedAt: derefTime(r.CompletedAt)}
	case models.SessionStatusCancelled:
		s.State = Cancelled{CancelledAt: derefTime(r.CancelledAt), Reason: r.CancelReason}
	default:
		return nil, fmt.Errorf("unknown session status %q", r.Status)
	}

	if s.Cursor < 0 || s.Cursor > len(s.Order) {
		return nil, fmt.Errorf("session %s cursor %d out of range", r.ID, s.Cursor)
	}
	if len(s.Picks) != s.Cursor {
		return nil, fmt.Errorf("session %s has %d picks at cursor %d", r.ID, len(s.Picks), s.Cursor)
	}
	return s, nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
