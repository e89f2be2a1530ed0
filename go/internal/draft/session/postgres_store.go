package session

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mcdev12/leaguedraft/go/internal/draft/events"
	"github.com/mcdev12/leaguedraft/go/internal/models"
	"github.com/mcdev12/leaguedraft/go/internal/sqlutil"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"
)

//go:embed migrations/*.sql
var migrations embed.FS

var errCorruptSession = errors.New("corrupt session row")

// PostgresStore persists sessions with lib/pq. Every write runs in one
// transaction: the version-checked session update, the new pick rows and
// the outbox rows commit together.
type PostgresStore struct {
	db    *sql.DB
	retry sqlutil.RetryConfig
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, retry: sqlutil.DefaultRetryConfig()}
}

// WithRetryConfig overrides the transient failure retry policy.
func (p *PostgresStore) WithRetryConfig(cfg sqlutil.RetryConfig) *PostgresStore {
	p.retry = cfg
	return p
}

// Migrate applies the embedded schema. Statements are idempotent.
func (p *PostgresStore) Migrate(ctx context.Context) error {
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
		if _, err := p.db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
		log.Info().Str("migration", name).Msg("applied migration")
	}
	return nil
}

func (p *PostgresStore) Create(ctx context.Context, s *Session, evts []events.Event) error {
	rec := s.Record()
	return p.withRetry(ctx, "create session", func() error {
		return sqlutil.Run(ctx, p.db, newQueries, func(q *queries) error {
			if err := q.insertSession(ctx, rec); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: session %s already exists", ErrInvalidDraftConfiguration, rec.ID)
				}
				return err
			}
			return q.insertEvents(ctx, evts)
		})
	})
}

func (p *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	var out *Session
	err := p.withRetry(ctx, "get session", func() error {
		opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
		return sqlutil.RunTx(ctx, p.db, opts, newQueries, func(q *queries) error {
			rec, err := q.getSession(ctx, id)
			if err != nil {
				return err
			}
			picks, err := q.listPicks(ctx, id)
			if err != nil {
				return err
			}
			s, err := FromRecord(*rec, picks)
			if err != nil {
				return fmt.Errorf("%w: %v", errCorruptSession, err)
			}
			out = s
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *PostgresStore) Commit(ctx context.Context, c Commit) error {
	rec := c.Session.Record()
	return p.withRetry(ctx, "commit session", func() error {
		return sqlutil.Run(ctx, p.db, newQueries, func(q *queries) error {
			n, err := q.updateSession(ctx, rec, c.ExpectedVersion)
			if err != nil {
				return err
			}
			if n == 0 {
				exists, err := q.sessionExists(ctx, rec.ID)
				if err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("%w: %s", ErrSessionNotFound, rec.ID)
				}
				return fmt.Errorf("%w: session %s moved past version %d", ErrVersionConflict, rec.ID, c.ExpectedVersion)
			}
			for _, pick := range c.NewPicks {
				if err := q.insertPick(ctx, pick); err != nil {
					if isUniqueViolation(err) {
						return fmt.Errorf("%w: pick slot %d already taken", ErrVersionConflict, pick.OverallPick)
					}
					return err
				}
			}
			return q.insertEvents(ctx, c.Events)
		})
	})
}

func (p *PostgresStore) NextDeadline(ctx context.Context) (*time.Time, error) {
	var next sql.NullTime
	err := p.withRetry(ctx, "fetch next deadline", func() error {
		return p.db.QueryRowContext(ctx,
			`SELECT MIN(timer_expires_at) FROM draft_sessions WHERE status = $1`,
			models.SessionStatusActive,
		).Scan(&next)
	})
	if err != nil {
		return nil, err
	}
	return sqlutil.FromSqlTime(next), nil
}

func (p *PostgresStore) ListDue(ctx context.Context, cutoff time.Time, limit int) ([]DuePick, error) {
	if limit <= 0 {
		limit = 100
	}
	var due []DuePick
	err := p.withRetry(ctx, "list due sessions", func() error {
		due = due[:0]
		rows, err := p.db.QueryContext(ctx, `
			SELECT id, current_pick_index, timer_expires_at
			FROM draft_sessions
			WHERE status = $1 AND timer_expires_at <= $2
			ORDER BY timer_expires_at
			LIMIT $3`,
			models.SessionStatusActive, cutoff, limit,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var d DuePick
			if err := rows.Scan(&d.SessionID, &d.PickIndex, &d.ExpiresAt); err != nil {
				return err
			}
			due = append(due, d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return due, nil
}

// withRetry retries transient failures and reports exhaustion as
// ErrStorageUnavailable. Domain outcomes pass through untouched.
func (p *PostgresStore) withRetry(ctx context.Context, op string, fn func() error) error {
	err := sqlutil.Retry(ctx, p.retry, fn, isPermanent)
	if err == nil || isPermanent(err) || ctx.Err() != nil {
		return err
	}
	log.Error().Err(err).Str("op", op).Msg("storage unavailable")
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}

func isPermanent(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrInvalidDraftConfiguration) ||
		errors.Is(err, errCorruptSession)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// queries binds hand-written statements to one transaction.
type queries struct {
	tx *sql.Tx
}

func newQueries(tx *sql.Tx) *queries {
	return &queries{tx: tx}
}

const sessionColumns = `id, league_id, season_id, status, total_rounds, teams, draft_order,
	current_round, current_pick_index, current_team_id, pick_timer_seconds,
	timer_started_at, timer_expires_at, player_pool, cancel_reason, metadata, version,
	started_at, paused_at, completed_at, cancelled_at, created_at, updated_at`

func (q *queries) insertSession(ctx context.Context, r models.DraftSession) error {
	_, err := q.tx.ExecContext(ctx, `INSERT INTO draft_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		sessionArgs(r)...,
	)
	return err
}

func (q *queries) updateSession(ctx context.Context, r models.DraftSession, expectedVersion int64) (int64, error) {
	args := append(sessionArgs(r), expectedVersion)
	res, err := q.tx.ExecContext(ctx, `UPDATE draft_sessions SET
			league_id = $2, season_id = $3, status = $4, total_rounds = $5, teams = $6, draft_order = $7,
			current_round = $8, current_pick_index = $9, current_team_id = $10, pick_timer_seconds = $11,
			timer_started_at = $12, timer_expires_at = $13, player_pool = $14, cancel_reason = $15,
			metadata = $16, version = $17, started_at = $18, paused_at = $19, completed_at = $20,
			cancelled_at = $21, created_at = $22, updated_at = $23
		WHERE id = $1 AND version = $24`,
		args...,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func sessionArgs(r models.DraftSession) []any {
	return []any{
		r.ID, r.LeagueID, r.SeasonID, r.Status, r.TotalRounds,
		pq.StringArray(sqlutil.UUIDsToStrings(r.Teams)),
		pq.StringArray(sqlutil.UUIDsToStrings(r.DraftOrder)),
		r.CurrentRound, r.CurrentPickIndex, sqlutil.ToNullUUID(r.CurrentTeamID), r.PickTimerSeconds,
		sqlutil.ToSqlTime(r.TimerStartedAt), sqlutil.ToSqlTime(r.TimerExpiresAt),
		pq.StringArray(sqlutil.UUIDsToStrings(r.PlayerPool)),
		sqlutil.ToSqlString(r.CancelReason), sqlutil.ToNullRawMessage(r.Metadata), r.Version,
		sqlutil.ToSqlTime(r.StartedAt), sqlutil.ToSqlTime(r.PausedAt),
		sqlutil.ToSqlTime(r.CompletedAt), sqlutil.ToSqlTime(r.CancelledAt),
		r.CreatedAt, r.UpdatedAt,
	}
}

func (q *queries) getSession(ctx context.Context, id uuid.UUID) (*models.DraftSession, error) {
	var (
		r                                models.DraftSession
		teams, order, pool               pq.StringArray
		currentTeam                      uuid.NullUUID
		timerStarted, timerExpires       sql.NullTime
		startedAt, pausedAt, completedAt sql.NullTime
		cancelledAt                      sql.NullTime
		cancelReason                     sql.NullString
		metadata                         pqtype.NullRawMessage
	)
	err := q.tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM draft_sessions WHERE id = $1`, id).Scan(
		&r.ID, &r.LeagueID, &r.SeasonID, &r.Status, &r.TotalRounds, &teams, &order,
		&r.CurrentRound, &r.CurrentPickIndex, &currentTeam, &r.PickTimerSeconds,
		&timerStarted, &timerExpires, &pool, &cancelReason, &metadata, &r.Version,
		&startedAt, &pausedAt, &completedAt, &cancelledAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if r.Teams, err = sqlutil.StringsToUUIDs(teams); err != nil {
		return nil, fmt.Errorf("%w: teams: %v", errCorruptSession, err)
	}
	if r.DraftOrder, err = sqlutil.StringsToUUIDs(order); err != nil {
		return nil, fmt.Errorf("%w: draft order: %v", errCorruptSession, err)
	}
	if r.PlayerPool, err = sqlutil.StringsToUUIDs(pool); err != nil {
		return nil, fmt.Errorf("%w: player pool: %v", errCorruptSession, err)
	}
	r.CurrentTeamID = sqlutil.FromNullUUID(currentTeam)
	r.TimerStartedAt = sqlutil.FromSqlTime(timerStarted)
	r.TimerExpiresAt = sqlutil.FromSqlTime(timerExpires)
	r.CancelReason = sqlutil.FromSqlString(cancelReason, "")
	r.Metadata = sqlutil.FromNullRawMessage(metadata)
	r.StartedAt = sqlutil.FromSqlTime(startedAt)
	r.PausedAt = sqlutil.FromSqlTime(pausedAt)
	r.CompletedAt = sqlutil.FromSqlTime(completedAt)
	r.CancelledAt = sqlutil.FromSqlTime(cancelledAt)
	return &r, nil
}

func (q *queries) sessionExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := q.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM draft_sessions WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (q *queries) listPicks(ctx context.Context, sessionID uuid.UUID) ([]models.DraftPick, error) {
	rows, err := q.tx.QueryContext(ctx, `
		SELECT id, session_id, round, pick_number, overall_pick, team_id, player_id, auto_picked, picked_at
		FROM draft_session_picks
		WHERE session_id = $1
		ORDER BY overall_pick`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var picks []models.DraftPick
	for rows.Next() {
		var (
			p      models.DraftPick
			player uuid.NullUUID
		)
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Round, &p.PickNumber, &p.OverallPick,
			&p.TeamID, &player, &p.AutoPicked, &p.PickedAt); err != nil {
			return nil, err
		}
		p.PlayerID = sqlutil.FromNullUUID(player)
		picks = append(picks, p)
	}
	return picks, rows.Err()
}

func (q *queries) insertPick(ctx context.Context, p models.DraftPick) error {
	_, err := q.tx.ExecContext(ctx, `
		INSERT INTO draft_session_picks
			(id, session_id, round, pick_number, overall_pick, team_id, player_id, auto_picked, picked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.SessionID, p.Round, p.PickNumber, p.OverallPick, p.TeamID,
		sqlutil.ToNullUUID(p.PlayerID), p.AutoPicked, p.PickedAt,
	)
	return err
}

func (q *queries) insertEvents(ctx context.Context, evts []events.Event) error {
	for _, e := range evts {
		_, err := q.tx.ExecContext(ctx, `
			INSERT INTO draft_outbox (id, session_id, event_type, payload, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			e.ID, e.SessionID, e.Type, []byte(e.Payload), e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert %s outbox event: %w", e.Type, err)
		}
	}
	return nil
}
