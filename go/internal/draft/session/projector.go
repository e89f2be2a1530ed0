package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/leaguedraft/go/internal/models"
)

const defaultRecentPicksWindow = 5

// Status is the read model served to polling and subscribing clients.
type Status struct {
	SessionID        uuid.UUID            `json:"sessionId"`
	Status           models.SessionStatus `json:"status"`
	CurrentRound     int                  `json:"currentRound"`
	CurrentPick      int                  `json:"currentPick"` // overall, 1-based; 0 before start
	CurrentPickIndex int                  `json:"currentPickIndex"`
	PickInRound      int                  `json:"pickInRound"`
	CurrentTeamID    *uuid.UUID           `json:"currentTeamId"`
	TimeRemainingMs  int64                `json:"timeRemainingMs"`
	TimerExpiresAt   *time.Time           `json:"timerExpiresAt,omitempty"`
	RecentPicks      []models.DraftPick   `json:"recentPicks"`
	AvailablePlayers []uuid.UUID          `json:"availablePlayers"`
	TotalPicks       int                  `json:"totalPicks"`
	CompletedPicks   int                  `json:"completedPicks"`
	Version          int64                `json:"version"`
}

// TimeRemaining returns the remaining pick time as a duration.
func (s Status) TimeRemaining() time.Duration {
	return time.Duration(s.TimeRemainingMs) * time.Millisecond
}

// Project builds the read model from a snapshot. It never mutates s; an
// expired timer is reported as zero remaining and left for the expiry driver.
func Project(s *Session, clock *TurnClock, window int) Status {
	if window <= 0 {
		window = defaultRecentPicksWindow
	}

	st := Status{
		SessionID:        s.ID,
		Status:           s.Status(),
		CurrentRound:     s.CurrentRound(),
		CurrentPickIndex: s.Cursor,
		CurrentTeamID:    s.CurrentTeam(),
		RecentPicks:      recentPicks(s.Picks, window),
		AvailablePlayers: s.Available(),
		TotalPicks:       len(s.Order),
		CompletedPicks:   len(s.Picks),
		Version:          s.Version,
	}

	if s.StartedAt != nil && s.Cursor < len(s.Order) && !s.Status().Terminal() {
		st.CurrentPick = s.Cursor + 1
		_, st.PickInRound = SlotAt(s.Cursor, len(s.Teams))
	}

	if timer := s.Timer(); timer != nil {
		st.TimeRemainingMs = clock.Remaining(timer).Milliseconds()
		expires := timer.ExpiresAt
		st.TimerExpiresAt = &expires
	}
	return st
}

// recentPicks returns up to window picks, most recent first.
func recentPicks(picks []models.DraftPick, window int) []models.DraftPick {
	n := min(window, len(picks))
	out := make([]models.DraftPick, 0, n)
	for i := len(picks) - 1; i >= len(picks)-n; i-- {
		out = append(out, clonePick(picks[i]))
	}
	return out
}
