package models

import (
	"time"

	"github.com/google/uuid"
)

// DraftPick represents a single committed pick in a draft session.
type DraftPick struct {
	ID          uuid.UUID  `json:"id"`
	SessionID   uuid.UUID  `json:"session_id"`
	Round       int        `json:"round"`
	PickNumber  int        `json:"pick_number"`  // pick number in the round
	OverallPick int        `json:"overall_pick"` // pick number overall
	TeamID      uuid.UUID  `json:"team_id"`
	PlayerID    *uuid.UUID `json:"player_id,omitempty"` // nil when the slot was skipped
	AutoPicked  bool       `json:"auto_picked"`
	PickedAt    time.Time  `json:"picked_at"`
}

// Skipped reports whether the slot expired with nobody left to pick.
func (p DraftPick) Skipped() bool {
	return p.PlayerID == nil
}
