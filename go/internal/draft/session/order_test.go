package session

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOrder(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	tests := []struct {
		name   string
		teams  []uuid.UUID
		rounds int
		want   []uuid.UUID
	}{
		{name: "three teams three rounds", teams: []uuid.UUID{a, b, c}, rounds: 3, want: []uuid.UUID{a, b, c, c, b, a, a, b, c}},
		{name: "two teams two rounds", teams: []uuid.UUID{a, b}, rounds: 2, want: []uuid.UUID{a, b, b, a}},
		{name: "single team", teams: []uuid.UUID{a}, rounds: 3, want: []uuid.UUID{a, a, a}},
		{name: "zero rounds", teams: []uuid.UUID{a, b}, rounds: 0, want: []uuid.UUID{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GenerateOrder(tt.teams, tt.rounds)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			again, err := GenerateOrder(tt.teams, tt.rounds)
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestGenerateOrderRoundsAlternate(t *testing.T) {
	teams := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	order, err := GenerateOrder(teams, 5)
	require.NoError(t, err)
	require.Len(t, order, 20)

	for r := 1; r <= 5; r++ {
		round := order[(r-1)*len(teams) : r*len(teams)]
		for i := range teams {
			want := teams[i]
			if r%2 == 0 {
				want = teams[len(teams)-1-i]
			}
			assert.Equal(t, want, round[i], "round %d position %d", r, i)
		}
	}
}

func TestGenerateOrderInvalid(t *testing.T) {
	a := uuid.New()

	tests := []struct {
		name   string
		teams  []uuid.UUID
		rounds int
	}{
		{name: "empty teams", teams: nil, rounds: 1},
		{name: "duplicate team", teams: []uuid.UUID{a, a}, rounds: 1},
		{name: "nil team", teams: []uuid.UUID{uuid.Nil}, rounds: 1},
		{name: "negative rounds", teams: []uuid.UUID{a}, rounds: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GenerateOrder(tt.teams, tt.rounds)
			assert.ErrorIs(t, err, ErrInvalidDraftConfiguration)
		})
	}
}

func TestSlotAt(t *testing.T) {
	round, pick := SlotAt(0, 3)
	assert.Equal(t, 1, round)
	assert.Equal(t, 1, pick)

	round, pick = SlotAt(4, 3)
	assert.Equal(t, 2, round)
	assert.Equal(t, 2, pick)

	round, pick = SlotAt(5, 0)
	assert.Zero(t, round)
	assert.Zero(t, pick)
}
