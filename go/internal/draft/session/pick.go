package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/leaguedraft/go/internal/draft/events"
	"github.com/mcdev12/leaguedraft/go/internal/models"
)

// SubmitPickRequest is a team's attempt to pick a player.
type SubmitPickRequest struct {
	SessionID   uuid.UUID
	TeamID      uuid.UUID
	PlayerID    uuid.UUID
	RequestedAt time.Time // zero means now
}

// validateTurn checks that the session accepts picks and that teamID is on
// the clock.
func validateTurn(s *Session, teamID uuid.UUID) error {
	if _, ok := s.State.(Active); !ok {
		return fmt.Errorf("%w: session %s is %s", ErrSessionNotActive, s.ID, s.Status())
	}
	current := s.CurrentTeam()
	if current == nil || *current != teamID {
		return fmt.Errorf("%w: team %s is not on the clock", ErrNotYourTurn, teamID)
	}
	return nil
}

// validateSelection checks pool membership and the pick window. A request
// stamped before the current window opened targeted a pick that has already
// been committed.
func validateSelection(s *Session, playerID uuid.UUID, requestedAt time.Time, grace time.Duration) error {
	if s.IsPicked(playerID) {
		return fmt.Errorf("%w: player %s", ErrPlayerAlreadyPicked, playerID)
	}
	if !s.InPool(playerID) {
		return fmt.Errorf("%w: player %s is not in the draft pool", ErrPlayerNotEligible, playerID)
	}

	timer := s.Timer()
	if timer == nil {
		return fmt.Errorf("%w: no pick on the clock", ErrSessionNotActive)
	}
	if requestedAt.Before(timer.StartedAt) || requestedAt.After(timer.ExpiresAt.Add(grace)) {
		return fmt.Errorf("%w: pick window closed at %s", ErrPickWindowExpired, timer.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

// applyPick commits a pick for the team on the clock and advances the
// cursor. The session is either re-armed for the next pick or completed.
// A nil playerID records a skipped slot. s must already be validated and
// must be a private copy.
func applyPick(s *Session, playerID *uuid.UUID, auto bool, clock *TurnClock) (models.DraftPick, []events.Event, error) {
	if s.Cursor >= len(s.Order) {
		return models.DraftPick{}, nil, fmt.Errorf("%w: cursor at end of draft order", ErrSessionNotActive)
	}

	now := clock.Now()
	if n := len(s.Picks); n > 0 && now.Before(s.Picks[n-1].PickedAt) {
		now = s.Picks[n-1].PickedAt
	}

	round, pickNumber := SlotAt(s.Cursor, len(s.Teams))
	pick := models.DraftPick{
		ID:          uuid.New(),
		SessionID:   s.ID,
		Round:       round,
		PickNumber:  pickNumber,
		OverallPick: s.Cursor + 1,
		TeamID:      s.Order[s.Cursor],
		PlayerID:    playerID,
		AutoPicked:  auto,
		PickedAt:    now,
	}

	made := events.PickMadePayload{
		PickID:      pick.ID.String(),
		TeamID:      pick.TeamID.String(),
		Round:       pick.Round,
		Pick:        pick.PickNumber,
		OverallPick: pick.OverallPick,
		AutoPicked:  auto,
		MadeAt:      now,
	}
	if playerID != nil {
		made.PlayerID = playerID.String()
	}
	madeEvent, err := events.New(s.ID, events.EventTypePickMade, made, now)
	if err != nil {
		return models.DraftPick{}, nil, err
	}

	s.Picks = append(s.Picks, pick)
	s.Cursor++
	evts := []events.Event{madeEvent}

	if s.Cursor == len(s.Order) {
		next, err := Transition(s.State, EventComplete, clock, s.PickTimer)
		if err != nil {
			return models.DraftPick{}, nil, err
		}
		s.State = next
		completed, err := completedEvent(s, now)
		if err != nil {
			return models.DraftPick{}, nil, err
		}
		return pick, append(evts, completed), nil
	}

	s.State = Active{Timer: clock.Arm(s.PickTimer)}
	started, err := pickStartedEvent(s)
	if err != nil {
		return models.DraftPick{}, nil, err
	}
	return pick, append(evts, started), nil
}

// pickStartedEvent announces the pick at the cursor to the team on the clock.
func pickStartedEvent(s *Session) (events.Event, error) {
	timer := s.Timer()
	if timer == nil {
		return events.Event{}, fmt.Errorf("%w: no pick on the clock", ErrSessionNotActive)
	}
	round, pickNumber := SlotAt(s.Cursor, len(s.Teams))
	return events.New(s.ID, events.EventTypePickStarted, events.PickStartedPayload{
		TeamID:         s.Order[s.Cursor].String(),
		Round:          round,
		Pick:           pickNumber,
		OverallPick:    s.Cursor + 1,
		PickIndex:      s.Cursor,
		StartedAt:      timer.StartedAt,
		TimeoutAt:      timer.ExpiresAt,
		TimePerPickSec: int(s.PickTimer / time.Second),
	}, timer.StartedAt)
}

func completedEvent(s *Session, at time.Time) (events.Event, error) {
	var duration time.Duration
	if s.StartedAt != nil {
		duration = at.Sub(*s.StartedAt)
	}
	return events.New(s.ID, events.EventTypeDraftCompleted, events.DraftCompletedPayload{
		CompletedAt: at,
		Duration:    duration.String(),
		TotalPicks:  len(s.Order),
	}, at)
}
