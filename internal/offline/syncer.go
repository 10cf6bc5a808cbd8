package offline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tho-bre/event-flow/internal/client"
	"github.com/tho-bre/event-flow/internal/clock"
	"github.com/tho-bre/event-flow/internal/domain"
)

// TapSender delivers one tap to the server.
type TapSender interface {
	Tap(ctx context.Context, eventID string, dir domain.Direction, at time.Time) (client.TapResult, error)
}

// Queue is the local store for taps that could not be sent.
type Queue interface {
	Enqueue(ctx context.Context, tap QueuedTap) (int64, error)
	Pending(ctx context.Context, limit int) ([]QueuedTap, error)
	Remove(ctx context.Context, id int64) error
	Len(ctx context.Context) (int, error)
}

// Syncer sends taps while the server is reachable and queues them
// otherwise. Taps are always stamped on the device so a replayed tap
// keeps the instant it was recorded.
type Syncer struct {
	sender TapSender
	queue  Queue
	clock  clock.Clock
	logger *slog.Logger

	// flushMu serializes replays so queued taps leave in order.
	flushMu sync.Mutex
	mu      sync.Mutex
	online  bool
}

func NewSyncer(sender TapSender, queue Queue, clk clock.Clock, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Syncer{
		sender: sender,
		queue:  queue,
		clock:  clk,
		logger: logger,
		online: true,
	}
}

// TapOutcome tells the operator what happened to a tap. Total and Version
// are only known when the tap was sent.
type TapOutcome struct {
	Queued  bool
	Total   int
	Version int64
	At      time.Time
}

func (s *Syncer) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *Syncer) setOnline(online bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.online != online
	s.online = online
	return changed
}

// Tap records one tap. Server rejections are returned as is; transport
// failures switch the syncer offline and queue the tap. While taps are
// still queued new taps join the queue behind them.
func (s *Syncer) Tap(ctx context.Context, eventID string, dir domain.Direction) (TapOutcome, error) {
	at := s.clock.Now()

	if s.Online() {
		pending, err := s.queue.Len(ctx)
		if err != nil {
			return TapOutcome{}, err
		}
		if pending == 0 {
			res, err := s.sender.Tap(ctx, eventID, dir, at)
			if err == nil {
				return TapOutcome{Total: res.Total, Version: res.Version, At: res.Timestamp}, nil
			}
			if !client.IsTransient(err) {
				return TapOutcome{}, err
			}
			s.goOffline(err)
		}
	}

	if _, err := s.queue.Enqueue(ctx, QueuedTap{EventID: eventID, Direction: dir, At: at, QueuedAt: s.clock.Now()}); err != nil {
		return TapOutcome{}, err
	}
	return TapOutcome{Queued: true, At: at}, nil
}

func (s *Syncer) goOffline(cause error) {
	if s.setOnline(false) {
		s.logger.Warn("server unreachable, queueing taps", "err", cause)
	}
}

// FlushReport summarizes one replay.
type FlushReport struct {
	Sent      int
	Dropped   int
	Remaining int
}

const flushBatch = 100

// ErrSessionRejected stops a replay when the server no longer accepts the
// device's session. Queued taps are kept for after the next sign in.
var ErrSessionRejected = errors.New("session rejected by server")

// Flush replays queued taps in order. A tap the server rejects for good
// (event over, ledger empty, event gone) is dropped and logged so the
// device re-syncs on the server total. A transport failure stops the
// replay and switches the syncer offline.
func (s *Syncer) Flush(ctx context.Context) (rep FlushReport, err error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	defer func() {
		if n, err := s.queue.Len(ctx); err == nil {
			rep.Remaining = n
		}
	}()

	for {
		batch, err := s.queue.Pending(ctx, flushBatch)
		if err != nil {
			return rep, err
		}
		if len(batch) == 0 {
			s.setOnline(true)
			return rep, nil
		}
		for _, q := range batch {
			_, err := s.sender.Tap(ctx, q.EventID, q.Direction, q.At)
			switch {
			case err == nil:
				rep.Sent++
			case client.IsTransient(err):
				s.goOffline(err)
				return rep, nil
			case errors.Is(err, domain.ErrAuthFailed), errors.Is(err, domain.ErrAccountNotActivated):
				return rep, fmt.Errorf("%w: %w", ErrSessionRejected, err)
			case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrValidation):
				rep.Dropped++
				s.logger.Warn("dropping queued tap",
					"event_id", q.EventID,
					"direction", q.Direction,
					"at", q.At,
					"err", err,
				)
			default:
				return rep, err
			}
			if err := s.queue.Remove(ctx, q.ID); err != nil {
				return rep, err
			}
		}
	}
}

// SetConnectivity is the Monitor callback. A successful probe replays
// whatever is queued.
func (s *Syncer) SetConnectivity(ctx context.Context, online bool) {
	if !online {
		s.goOffline(errors.New("health probe failed"))
		return
	}
	rep, err := s.Flush(ctx)
	if err != nil {
		s.logger.Error("replay queued taps", "err", err)
		return
	}
	if rep.Sent > 0 || rep.Dropped > 0 {
		s.logger.Info("replayed queued taps", "sent", rep.Sent, "dropped", rep.Dropped, "remaining", rep.Remaining)
	}
}
