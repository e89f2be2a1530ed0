package roster

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/leaguedraft/go/internal/draft/session"
	"github.com/mcdev12/leaguedraft/go/internal/models"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresDirectory reads eligibility from the draft_players table.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

// Migrate applies the embedded schema. Statements are idempotent.
func (d *PostgresDirectory) Migrate(ctx context.Context) error {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(files)

	for _, name := range files {
		body, err := migrations.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := d.pool.Exec(ctx, string(body)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
		log.Info().Str("migration", name).Msg("applied migration")
	}
	return nil
}

func (d *PostgresDirectory) IsEligible(ctx context.Context, leagueID, seasonID, playerID uuid.UUID) (bool, error) {
	var eligible bool
	err := d.pool.QueryRow(ctx, `
		SELECT p.eligible AND NOT EXISTS (
			SELECT 1 FROM draft_player_exclusions x
			WHERE x.league_id = $1 AND x.season_id = $2 AND x.player_id = p.id
		)
		FROM draft_players p
		WHERE p.id = $3`,
		leagueID, seasonID, playerID,
	).Scan(&eligible)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: check player %s: %v", session.ErrStorageUnavailable, playerID, err)
	}
	return eligible, nil
}

// ListEligible returns eligible players best rank first, unranked last.
func (d *PostgresDirectory) ListEligible(ctx context.Context, leagueID, seasonID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT p.id
		FROM draft_players p
		WHERE p.eligible AND NOT EXISTS (
			SELECT 1 FROM draft_player_exclusions x
			WHERE x.league_id = $1 AND x.season_id = $2 AND x.player_id = p.id
		)
		ORDER BY p.rank = 0, p.rank, p.id::text`,
		leagueID, seasonID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list eligible players: %v", session.ErrStorageUnavailable, err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("%w: scan eligible players: %v", session.ErrStorageUnavailable, err)
	}
	return ids, nil
}

// UpsertPlayers inserts or updates players in one batch and returns how
// many rows changed.
func (d *PostgresDirectory) UpsertPlayers(ctx context.Context, players []models.Player) (int64, error) {
	batch := &pgx.Batch{}
	for _, p := range players {
		batch.Queue(`
			INSERT INTO draft_players (id, external_id, full_name, position, rank, eligible)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				external_id = EXCLUDED.external_id,
				full_name   = EXCLUDED.full_name,
				position    = EXCLUDED.position,
				rank        = EXCLUDED.rank,
				eligible    = EXCLUDED.eligible,
				updated_at  = now()`,
			p.ID, p.ExternalID, p.FullName, p.Position, p.Rank, p.Eligible,
		)
	}

	results := d.pool.SendBatch(ctx, batch)
	defer results.Close()

	var affected int64
	for _, p := range players {
		tag, err := results.Exec()
		if err != nil {
			return affected, fmt.Errorf("failed to upsert player %s: %w", p.ID, err)
		}
		affected += tag.RowsAffected()
	}
	return affected, nil
}

// Exclude marks players ineligible for one league season.
func (d *PostgresDirectory) Exclude(ctx context.Context, leagueID, seasonID uuid.UUID, playerIDs ...uuid.UUID) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO draft_player_exclusions (league_id, season_id, player_id)
		SELECT $1, $2, unnest($3::uuid[])
		ON CONFLICT DO NOTHING`,
		leagueID, seasonID, playerIDs,
	)
	if err != nil {
		return fmt.Errorf("failed to exclude players: %w", err)
	}
	return nil
}
