package session

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateOrder returns the flattened snake order for teams over rounds.
// Odd rounds use teams as given, even rounds use them reversed.
func GenerateOrder(teams []uuid.UUID, rounds int) ([]uuid.UUID, error) {
	if err := validateTeams(teams); err != nil {
		return nil, err
	}
	if rounds < 0 {
		return nil, fmt.Errorf("%w: rounds must not be negative", ErrInvalidDraftConfiguration)
	}

	numTeams := len(teams)
	order := make([]uuid.UUID, 0, rounds*numTeams)
	for round := 1; round <= rounds; round++ {
		isReversed := round%2 == 0
		for i := 0; i < numTeams; i++ {
			idx := i
			if isReversed {
				idx = numTeams - 1 - i
			}
			order = append(order, teams[idx])
		}
	}
	return order, nil
}

// SlotAt maps a zero-based index into the draft order to a 1-based round and
// pick number within that round.
func SlotAt(index, teamCount int) (round, pickNumber int) {
	if teamCount <= 0 {
		return 0, 0
	}
	return index/teamCount + 1, index%teamCount + 1
}

func validateTeams(teams []uuid.UUID) error {
	if len(teams) == 0 {
		return fmt.Errorf("%w: team list is empty", ErrInvalidDraftConfiguration)
	}
	seen := make(map[uuid.UUID]struct{}, len(teams))
	for _, t := range teams {
		if t == uuid.Nil {
			return fmt.Errorf("%w: team id is empty", ErrInvalidDraftConfiguration)
		}
		if _, dup := seen[t]; dup {
			return fmt.Errorf("%w: duplicate team %s", ErrInvalidDraftConfiguration, t)
		}
		seen[t] = struct{}{}
	}
	return nil
}
