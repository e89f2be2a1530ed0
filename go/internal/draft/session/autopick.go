package session

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AutoPickStrategy chooses a player for an expired pick from the available
// players in rank order. ok is false when nobody is left.
type AutoPickStrategy interface {
	Select(sessionID uuid.UUID, teamID uuid.UUID, available []uuid.UUID) (playerID uuid.UUID, ok bool)
}

// BestAvailableStrategy takes the highest ranked player still available.
type BestAvailableStrategy struct{}

func (BestAvailableStrategy) Select(_ uuid.UUID, _ uuid.UUID, available []uuid.UUID) (uuid.UUID, bool) {
	if len(available) == 0 {
		return uuid.Nil, false
	}
	return available[0], true
}

// RandomStrategy picks uniformly among the available players.
type RandomStrategy struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomStrategy constructs a RandomStrategy with its own seed.
func NewRandomStrategy() *RandomStrategy {
	return NewRandomStrategyWithSeed(time.Now().UnixNano())
}

func NewRandomStrategyWithSeed(seed int64) *RandomStrategy {
	return &RandomStrategy{rng: rand.New(rand.NewSource(seed))}
}

func (s *RandomStrategy) Select(_ uuid.UUID, _ uuid.UUID, available []uuid.UUID) (uuid.UUID, bool) {
	if len(available) == 0 {
		return uuid.Nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return available[s.rng.Intn(len(available))], true
}

// StrategyByName maps a configuration value to a strategy. Unknown names
// fall back to best available.
func StrategyByName(name string) AutoPickStrategy {
	switch name {
	case "random":
		return NewRandomStrategy()
	default:
		return BestAvailableStrategy{}
	}
}
