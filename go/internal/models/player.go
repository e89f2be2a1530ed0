package models

import (
	"github.com/google/uuid"
)

// Player is a draftable player as known by the roster directory.
type Player struct {
	ID         uuid.UUID `json:"id"`
	ExternalID string    `json:"external_id"`
	FullName   string    `json:"full_name"`
	Position   string    `json:"position"`
	Rank       int       `json:"rank"` // lower is better
	Eligible   bool      `json:"eligible"`
}
