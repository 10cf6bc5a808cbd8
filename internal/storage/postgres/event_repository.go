package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tho-bre/event-flow/internal/domain"
)

// EventRepository stores events and their tap ledgers. It serves the
// catalog, ledger and report services.
type EventRepository struct {
	conn
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{conn: conn{pool: pool}}
}

func (r *EventRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const eventColumns = `id, owner_id, name, starts_at, ends_at, total, version, created_at`

func scanEvent(row pgx.Row) (domain.Event, error) {
	var e domain.Event
	err := row.Scan(&e.ID, &e.OwnerID, &e.Name, &e.StartsAt, &e.EndsAt, &e.Total, &e.Version, &e.CreatedAt)
	return e, err
}

func (r *EventRepository) CreateEvent(ctx context.Context, event domain.Event) error {
	const stmt = `
INSERT INTO events (id, owner_id, name, starts_at, ends_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.exec(ctx, stmt, event.ID, event.OwnerID, event.Name, event.StartsAt, event.EndsAt, event.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) || isInvalidUUID(err) {
			return domain.ErrAssociationNotFound
		}
		if isCheckViolation(err) {
			return domain.ErrInvalidRange
		}
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (r *EventRepository) ListEvents(ctx context.Context, ownerID string) ([]domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE owner_id = $1 ORDER BY starts_at, created_at`

	rows, err := r.query(ctx, query, ownerID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

func (r *EventRepository) GetEvent(ctx context.Context, ownerID, eventID string) (domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1 AND owner_id = $2`

	e, err := scanEvent(r.queryRow(ctx, query, eventID, ownerID))
	if err != nil {
		if isInvalidUUID(err) || errors.Is(err, pgx.ErrNoRows) {
			return domain.Event{}, domain.ErrEventNotFound
		}
		return domain.Event{}, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (r *EventRepository) UpdateEvent(ctx context.Context, event domain.Event) error {
	const stmt = `
UPDATE events SET name = $3, starts_at = $4, ends_at = $5
WHERE id = $1 AND owner_id = $2`

	tag, err := r.exec(ctx, stmt, event.ID, event.OwnerID, event.Name, event.StartsAt, event.EndsAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrEventNotFound
		}
		if isCheckViolation(err) {
			return domain.ErrInvalidRange
		}
		return fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

func (r *EventRepository) DeleteEvent(ctx context.Context, ownerID, eventID string) error {
	tag, err := r.exec(ctx, `DELETE FROM events WHERE id = $1 AND owner_id = $2`, eventID, ownerID)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrEventNotFound
		}
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

// AppendTap bumps the event version and total and writes the tap in one
// transaction. The UPDATE only matches while the stored version equals
// expectedVersion and the total stays non-negative.
func (r *EventRepository) AppendTap(ctx context.Context, ownerID string, expectedVersion int64, tap domain.Tap) (domain.Event, error) {
	const bump = `
UPDATE events SET total = total + $4, version = version + 1
WHERE id = $1 AND owner_id = $2 AND version = $3 AND total + $4 >= 0
RETURNING ` + eventColumns

	const insert = `INSERT INTO taps (event_id, seq, kind, recorded_at) VALUES ($1, $2, $3, $4)`

	var updated domain.Event
	err := r.WithTx(ctx, func(txCtx context.Context) error {
		e, err := scanEvent(r.queryRow(txCtx, bump, tap.EventID, ownerID, expectedVersion, tap.Kind.Delta()))
		if errors.Is(err, pgx.ErrNoRows) {
			return r.appendRejection(txCtx, ownerID, tap.EventID, expectedVersion)
		}
		if err != nil {
			if isInvalidUUID(err) {
				return domain.ErrEventNotFound
			}
			return fmt.Errorf("bump event version: %w", err)
		}
		if _, err := r.exec(txCtx, insert, e.ID, e.Version, tap.Kind, tap.At); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrVersionConflict
			}
			return fmt.Errorf("insert tap: %w", err)
		}
		updated = e
		return nil
	})
	if err != nil {
		return domain.Event{}, err
	}
	return updated, nil
}

// appendRejection explains why the conditional UPDATE matched no row.
func (r *EventRepository) appendRejection(ctx context.Context, ownerID, eventID string, expectedVersion int64) error {
	var version int64
	err := r.queryRow(ctx, `SELECT version FROM events WHERE id = $1 AND owner_id = $2`, eventID, ownerID).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("read event version: %w", err)
	}
	if version != expectedVersion {
		return domain.ErrVersionConflict
	}
	return domain.ErrTotalAtZero
}

func (r *EventRepository) ListTaps(ctx context.Context, ownerID, eventID string) ([]domain.Tap, error) {
	if _, err := r.GetEvent(ctx, ownerID, eventID); err != nil {
		return nil, err
	}
	return r.taps(ctx, `
SELECT event_id, seq, kind, recorded_at FROM taps
WHERE event_id = $1 ORDER BY seq`, eventID)
}

func (r *EventRepository) RecentTaps(ctx context.Context, ownerID, eventID string, limit int) ([]domain.Tap, error) {
	if _, err := r.GetEvent(ctx, ownerID, eventID); err != nil {
		return nil, err
	}
	return r.taps(ctx, `
SELECT event_id, seq, kind, recorded_at FROM taps
WHERE event_id = $1 ORDER BY seq DESC LIMIT $2`, eventID, limit)
}

func (r *EventRepository) taps(ctx context.Context, query string, args ...any) ([]domain.Tap, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list taps: %w", err)
	}
	defer rows.Close()

	var out []domain.Tap
	for rows.Next() {
		var t domain.Tap
		if err := rows.Scan(&t.EventID, &t.Seq, &t.Kind, &t.At); err != nil {
			return nil, fmt.Errorf("scan tap: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list taps: %w", err)
	}
	return out, nil
}
