package roster

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/leaguedraft/go/internal/draft/session"
	"github.com/mcdev12/leaguedraft/go/internal/models"
	"gopkg.in/yaml.v3"
)

// Directory is the player eligibility source consulted by the draft engine.
type Directory interface {
	IsEligible(ctx context.Context, leagueID, seasonID, playerID uuid.UUID) (bool, error)
	ListEligible(ctx context.Context, leagueID, seasonID uuid.UUID) ([]uuid.UUID, error)
}

var (
	_ session.PlayerDirectory = (*StaticDirectory)(nil)
	_ session.PlayerDirectory = (*PostgresDirectory)(nil)
)

type scope struct {
	leagueID uuid.UUID
	seasonID uuid.UUID
}

// StaticDirectory serves a fixed player list. Players can be excluded per
// league and season, e.g. keepers already on a roster.
type StaticDirectory struct {
	mu       sync.RWMutex
	players  map[uuid.UUID]models.Player
	excluded map[scope]map[uuid.UUID]bool
}

func NewStaticDirectory(players []models.Player) *StaticDirectory {
	d := &StaticDirectory{
		players:  make(map[uuid.UUID]models.Player, len(players)),
		excluded: make(map[scope]map[uuid.UUID]bool),
	}
	for _, p := range players {
		d.players[p.ID] = p
	}
	return d
}

// Exclude marks players ineligible for one league season.
func (d *StaticDirectory) Exclude(leagueID, seasonID uuid.UUID, playerIDs ...uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := scope{leagueID, seasonID}
	if d.excluded[key] == nil {
		d.excluded[key] = make(map[uuid.UUID]bool)
	}
	for _, id := range playerIDs {
		d.excluded[key][id] = true
	}
}

func (d *StaticDirectory) IsEligible(_ context.Context, leagueID, seasonID, playerID uuid.UUID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.players[playerID]
	if !ok || !p.Eligible {
		return false, nil
	}
	return !d.excluded[scope{leagueID, seasonID}][playerID], nil
}

// ListEligible returns eligible players best rank first.
func (d *StaticDirectory) ListEligible(_ context.Context, leagueID, seasonID uuid.UUID) ([]uuid.UUID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	excluded := d.excluded[scope{leagueID, seasonID}]
	var eligible []models.Player
	for _, p := range d.players {
		if p.Eligible && !excluded[p.ID] {
			eligible = append(eligible, p)
		}
	}
	sortByRank(eligible)

	ids := make([]uuid.UUID, len(eligible))
	for i, p := range eligible {
		ids[i] = p.ID
	}
	return ids, nil
}

// sortByRank orders players by rank, unranked (zero) last, ties by id so
// the pool is deterministic.
func sortByRank(players []models.Player) {
	sort.Slice(players, func(i, j int) bool {
		a, b := players[i], players[j]
		if (a.Rank == 0) != (b.Rank == 0) {
			return b.Rank == 0
		}
		if a.Rank != b.Rank {
			return a.Rank < b.Rank
		}
		return a.ID.String() < b.ID.String()
	})
}

type playersFile struct {
	Players []struct {
		ID         string `yaml:"id"`
		ExternalID string `yaml:"external_id"`
		FullName   string `yaml:"full_name"`
		Position   string `yaml:"position"`
		Rank       int    `yaml:"rank"`
		Eligible   *bool  `yaml:"eligible"`
	} `yaml:"players"`
}

// LoadPlayersFile reads a YAML player list. Players default to eligible.
func LoadPlayersFile(path string) ([]models.Player, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read players file: %w", err)
	}

	var file playersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse players file: %w", err)
	}

	players := make([]models.Player, 0, len(file.Players))
	for i, p := range file.Players {
		id, err := uuid.Parse(p.ID)
		if err != nil {
			return nil, fmt.Errorf("player %d: invalid id %q: %w", i, p.ID, err)
		}
		eligible := true
		if p.Eligible != nil {
			eligible = *p.Eligible
		}
		players = append(players, models.Player{
			ID:         id,
			ExternalID: p.ExternalID,
			FullName:   p.FullName,
			Position:   p.Position,
			Rank:       p.Rank,
			Eligible:   eligible,
		})
	}
	return players, nil
}
