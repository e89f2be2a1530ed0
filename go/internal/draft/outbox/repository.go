package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/leaguedraft/go/internal/draft/events"
	"github.com/mcdev12/leaguedraft/go/internal/sqlutil"
)

// ErrEventNotFound is returned when an outbox row does not exist.
var ErrEventNotFound = errors.New("outbox event not found")

// Repository is what the relays need from the outbox table. Events are
// written by the session store in the same write as the session itself.
type Repository interface {
	FetchUnsent(ctx context.Context, limit int) ([]events.Event, error)
	FetchUnsentForSession(ctx context.Context, sessionID uuid.UUID, limit int) ([]events.Event, error)
	FetchByID(ctx context.Context, id uuid.UUID) (*events.Event, error)
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	CountPending(ctx context.Context) (int, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ Repository = (*PostgresRepository)(nil)

const outboxColumns = `id, session_id, event_type, payload, created_at, sent_at`

func (r *PostgresRepository) FetchUnsent(ctx context.Context, limit int) ([]events.Event, error) {
	return r.queryEvents(ctx, `
		SELECT `+outboxColumns+`
		FROM draft_outbox
		WHERE sent_at IS NULL
		ORDER BY seq
		LIMIT $1`, limit)
}

// FetchUnsentForSession returns one session's unsent events in seq order.
func (r *PostgresRepository) FetchUnsentForSession(ctx context.Context, sessionID uuid.UUID, limit int) ([]events.Event, error) {
	return r.queryEvents(ctx, `
		SELECT `+outboxColumns+`
		FROM draft_outbox
		WHERE sent_at IS NULL AND session_id = $1
		ORDER BY seq
		LIMIT $2`, sessionID, limit)
}

func (r *PostgresRepository) queryEvents(ctx context.Context, query string, args ...any) ([]events.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) FetchByID(ctx context.Context, id uuid.UUID) (*events.Event, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+outboxColumns+` FROM draft_outbox WHERE id = $1`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *PostgresRepository) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE draft_outbox SET sent_at = $2 WHERE id = $1 AND sent_at IS NULL`, id, sentAt)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM draft_outbox WHERE sent_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending outbox events: %w", err)
	}
	return n, nil
}

// PingContext lets the health checker reach the database.
func (r *PostgresRepository) PingContext(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (*events.Event, error) {
	var (
		e       events.Event
		payload []byte
		sentAt  sql.NullTime
	)
	if err := s.Scan(&e.ID, &e.SessionID, &e.Type, &payload, &e.CreatedAt, &sentAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan outbox event: %w", err)
	}
	e.Payload = payload
	e.SentAt = sqlutil.FromSqlTime(sentAt)
	return &e, nil
}
