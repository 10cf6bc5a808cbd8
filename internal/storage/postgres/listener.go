package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tho-bre/event-flow/internal/domain"
)

// ChangeChannel is the NOTIFY channel fed by the events trigger.
const ChangeChannel = "event_changes"

// Listener forwards event change notifications to publish. It takes one
// connection out of the pool for as long as Run is active.
type Listener struct {
	pool    *pgxpool.Pool
	publish func(domain.Change)
	logger  *slog.Logger
	backoff time.Duration
}

func NewListener(pool *pgxpool.Pool, publish func(domain.Change), logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		pool:    pool,
		publish: publish,
		logger:  logger,
		backoff: time.Second,
	}
}

// Run listens until ctx is done, reconnecting after connection errors.
func (l *Listener) Run(ctx context.Context) error {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warn("change listener interrupted", "err", err, "retry_in", l.backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.backoff):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	pooled, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen conn: %w", err)
	}
	// A LISTENing connection must not go back to the pool.
	c := pooled.Hijack()
	defer c.Close(context.Background())

	if _, err := c.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	l.logger.Info("listening for event changes", "channel", ChangeChannel)

	for {
		n, err := c.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		change, err := decodeChange(n.Payload)
		if err != nil {
			l.logger.Warn("bad change payload", "err", err, "payload", n.Payload)
			continue
		}
		l.publish(change)
	}
}

func decodeChange(payload string) (domain.Change, error) {
	var c domain.Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return domain.Change{}, err
	}
	if c.EventID == "" {
		return domain.Change{}, errors.New("missing event_id")
	}
	return c, nil
}
