package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SessionStatus defines the status of a draft session.
type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusPaused    SessionStatus = "paused"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusCancelled
}

// DraftSession is the persisted record of one draft.
type DraftSession struct {
	ID               uuid.UUID       `json:"id"`
	LeagueID         uuid.UUID       `json:"league_id"`
	SeasonID         uuid.UUID       `json:"season_id"`
	Status           SessionStatus   `json:"status"`
	TotalRounds      int             `json:"total_rounds"`
	Teams            []uuid.UUID     `json:"teams"`
	DraftOrder       []uuid.UUID     `json:"draft_order"`
	CurrentRound     int             `json:"current_round"`
	CurrentPickIndex int             `json:"current_pick_index"`
	CurrentTeamID    *uuid.UUID      `json:"current_team_id,omitempty"`
	PickTimerSeconds int             `json:"pick_timer_seconds"`
	TimerStartedAt   *time.Time      `json:"timer_started_at,omitempty"`
	TimerExpiresAt   *time.Time      `json:"timer_expires_at,omitempty"`
	PlayerPool       []uuid.UUID     `json:"player_pool"` // ranked, captured at creation
	CancelReason     string          `json:"cancel_reason,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	Version          int64           `json:"version"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	PausedAt         *time.Time      `json:"paused_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// TotalPicks returns the number of slots in the draft order.
func (s *DraftSession) TotalPicks() int {
	return len(s.DraftOrder)
}
