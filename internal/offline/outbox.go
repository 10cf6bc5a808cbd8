// Package offline keeps a scanner usable without connectivity: taps that
// cannot reach the server are queued in a local SQLite outbox and
// replayed in order once the server answers again.
package offline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tho-bre/event-flow/internal/domain"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const outboxSchema = `
CREATE TABLE IF NOT EXISTS outbox (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id     TEXT    NOT NULL,
	direction    TEXT    NOT NULL,
	at_nanos     INTEGER NOT NULL,
	queued_nanos INTEGER NOT NULL
);`

// QueuedTap is a tap waiting to be sent. ID orders taps as the device
// recorded them.
type QueuedTap struct {
	ID        int64
	EventID   string
	Direction domain.Direction
	At        time.Time
	QueuedAt  time.Time
}

// Outbox is the device-local tap queue.
type Outbox struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
}

const outboxPoolSize = 2

// OpenOutbox opens or creates the outbox database at path. The parent
// directory must exist.
func OpenOutbox(path string, logger *slog.Logger) (*Outbox, error) {
	if path == "" {
		return nil, fmt.Errorf("outbox: path is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    outboxPoolSize,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox: open %s: %w", path, err)
	}
	logger.Debug("outbox opened", "path", path)
	return &Outbox{pool: pool, logger: logger, path: path}, nil
}

func prepareConn(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("outbox: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, outboxSchema, nil); err != nil {
		return fmt.Errorf("outbox: schema: %w", err)
	}
	return nil
}

func (o *Outbox) Close() error {
	if err := o.pool.Close(); err != nil {
		return fmt.Errorf("outbox: close %s: %w", o.path, err)
	}
	return nil
}

// Enqueue appends a tap and returns its queue id.
func (o *Outbox) Enqueue(ctx context.Context, tap QueuedTap) (int64, error) {
	conn, err := o.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("outbox: take: %w", err)
	}
	defer o.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO outbox (event_id, direction, at_nanos, queued_nanos) VALUES (?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{tap.EventID, string(tap.Direction), tap.At.UnixNano(), tap.QueuedAt.UnixNano()},
		})
	if err != nil {
		return 0, fmt.Errorf("outbox: enqueue: %w", err)
	}
	return conn.LastInsertRowID(), nil
}

// Pending returns up to limit queued taps, oldest first.
func (o *Outbox) Pending(ctx context.Context, limit int) ([]QueuedTap, error) {
	conn, err := o.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("outbox: take: %w", err)
	}
	defer o.pool.Put(conn)

	var out []QueuedTap
	err = sqlitex.Execute(conn,
		`SELECT id, event_id, direction, at_nanos, queued_nanos FROM outbox ORDER BY id LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, QueuedTap{
					ID:        stmt.ColumnInt64(0),
					EventID:   stmt.ColumnText(1),
					Direction: domain.Direction(stmt.ColumnText(2)),
					At:        time.Unix(0, stmt.ColumnInt64(3)).UTC(),
					QueuedAt:  time.Unix(0, stmt.ColumnInt64(4)).UTC(),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("outbox: pending: %w", err)
	}
	return out, nil
}

// Remove deletes a queued tap once it was sent or dropped.
func (o *Outbox) Remove(ctx context.Context, id int64) error {
	conn, err := o.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("outbox: take: %w", err)
	}
	defer o.pool.Put(conn)

	if err := sqlitex.Execute(conn, `DELETE FROM outbox WHERE id = ?`, &sqlitex.ExecOptions{Args: []any{id}}); err != nil {
		return fmt.Errorf("outbox: remove %d: %w", id, err)
	}
	return nil
}

// Len counts the queued taps.
func (o *Outbox) Len(ctx context.Context) (int, error) {
	conn, err := o.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("outbox: take: %w", err)
	}
	defer o.pool.Put(conn)

	n := 0
	err = sqlitex.Execute(conn, `SELECT count(*) FROM outbox`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			n = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("outbox: len: %w", err)
	}
	return n, nil
}
