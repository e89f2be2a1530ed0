package events

import (
	"time"
)

// Event payload types shared by the session engine, the outbox relay, the
// orchestrator and the gateway.

// DraftCreatedPayload is the payload for a draft_created event
type DraftCreatedPayload struct {
	LeagueID         string    `json:"league_id"`
	SeasonID         string    `json:"season_id"`
	Status           string    `json:"status"`
	TotalRounds      int       `json:"total_rounds"`
	TotalPicks       int       `json:"total_picks"`
	PickTimerSeconds int       `json:"pick_timer_seconds"`
	CreatedAt        time.Time `json:"created_at"`
}

// DraftStartedPayload is the payload for a draft_started event
type DraftStartedPayload struct {
	StartedAt   time.Time `json:"started_at"`
	TotalRounds int       `json:"total_rounds"`
	TotalPicks  int       `json:"total_picks"`
}

// PickStartedPayload is the "your turn" notification for the team on the clock
type PickStartedPayload struct {
	TeamID         string    `json:"team_id"`
	Round          int       `json:"round"`
	Pick           int       `json:"pick"`
	OverallPick    int       `json:"overall_pick"`
	PickIndex      int       `json:"pick_index"`
	StartedAt      time.Time `json:"started_at"`
	TimeoutAt      time.Time `json:"timeout_at"`
	TimePerPickSec int       `json:"time_per_pick_sec"`
}

// PickMadePayload is the payload for a pick_made event
type PickMadePayload struct {
	PickID      string    `json:"pick_id"`
	TeamID      string    `json:"team_id"`
	PlayerID    string    `json:"player_id,omitempty"` // empty when the slot was skipped
	Round       int       `json:"round"`
	Pick        int       `json:"pick"`
	OverallPick int       `json:"overall_pick"`
	AutoPicked  bool      `json:"auto_picked"`
	MadeAt      time.Time `json:"made_at"`
}

// DraftPausedPayload is the payload for a draft_paused event
type DraftPausedPayload struct {
	PausedAt  time.Time `json:"paused_at"`
	Reason    string    `json:"reason,omitempty"`
	PickIndex int       `json:"pick_index"`
}

// DraftResumedPayload is the payload for a draft_resumed event
type DraftResumedPayload struct {
	ResumedAt time.Time `json:"resumed_at"`
	TimeoutAt time.Time `json:"timeout_at"`
}

// DraftCompletedPayload is the payload for a draft_completed event
type DraftCompletedPayload struct {
	CompletedAt time.Time `json:"completed_at"`
	Duration    string    `json:"duration"`
	TotalPicks  int       `json:"total_picks"`
}

// DraftCancelledPayload is the payload for a draft_cancelled event
type DraftCancelledPayload struct {
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason,omitempty"`
	PickIndex   int       `json:"pick_index"`
}
