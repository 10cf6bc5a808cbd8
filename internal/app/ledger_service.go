package app

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/tho-bre/event-flow/internal/clock"
	"github.com/tho-bre/event-flow/internal/domain"
)

// LedgerRepository persists an event's tap log and running total.
//
// AppendTap must apply the tap and the total change as one conditional
// write: it succeeds only while the stored version equals
// expectedVersion, and returns domain.ErrVersionConflict otherwise.
type LedgerRepository interface {
	GetEvent(ctx context.Context, ownerID, eventID string) (domain.Event, error)
	AppendTap(ctx context.Context, ownerID string, expectedVersion int64, tap domain.Tap) (domain.Event, error)
	RecentTaps(ctx context.Context, ownerID, eventID string, limit int) ([]domain.Tap, error)
}

type LedgerService struct {
	repo        LedgerRepository
	clock       clock.Clock
	maxAttempts int
	retryBudget time.Duration
	maxEntries  int64
}

const (
	// DefaultRetryBudget bounds how long a tap keeps retrying after lost
	// version races before it fails with ErrVersionConflict.
	DefaultRetryBudget = 5 * time.Second
	retryBaseDelay     = time.Millisecond
	retryMaxDelay      = 32 * time.Millisecond
	// DefaultMaxLogEntries keeps a serialized log under the 1 MiB document
	// ceiling of hosted document stores at roughly 48 bytes per tap.
	DefaultMaxLogEntries = 20000
	maxRecentTaps        = 50
)

func NewLedgerService(repo LedgerRepository, clk clock.Clock, opts ...LedgerServiceOption) *LedgerService {
	svc := &LedgerService{
		repo:        repo,
		clock:       clk,
		retryBudget: DefaultRetryBudget,
		maxEntries:  DefaultMaxLogEntries,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type LedgerServiceOption func(*LedgerService)

// WithMaxAttempts caps how often a tap is tried when it keeps losing
// version races. Zero, the default, leaves only the retry budget.
func WithMaxAttempts(n int) LedgerServiceOption {
	return func(s *LedgerService) {
		if n >= 0 {
			s.maxAttempts = n
		}
	}
}

// WithRetryBudget bounds the time spent retrying one tap.
func WithRetryBudget(d time.Duration) LedgerServiceOption {
	return func(s *LedgerService) {
		if d > 0 {
			s.retryBudget = d
		}
	}
}

// WithMaxLogEntries caps the log length; taps past the cap are rejected.
func WithMaxLogEntries(n int64) LedgerServiceOption {
	return func(s *LedgerService) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

type RecordTapInput struct {
	OwnerID   string
	EventID   string
	Direction domain.Direction
	// At is the client-side tap instant, set when a device replays a
	// queued tap. Zero means now.
	At time.Time
}

type RecordTapResult struct {
	Total   int
	Version int64
	Tap     domain.Tap
}

func (s *LedgerService) RecordTap(ctx context.Context, in RecordTapInput) (RecordTapResult, error) {
	if in.Direction != domain.DirectionIncrement && in.Direction != domain.DirectionDecrement {
		return RecordTapResult{}, domain.ErrInvalidDirection
	}

	at := in.At.UTC()
	if in.At.IsZero() {
		at = s.clock.Now()
	}
	kind := in.Direction.Kind()

	deadline := time.NewTimer(s.retryBudget)
	defer deadline.Stop()

	for attempt := 0; s.maxAttempts == 0 || attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return RecordTapResult{}, ctx.Err()
			case <-deadline.C:
				return RecordTapResult{}, domain.ErrVersionConflict
			case <-time.After(retryDelay(attempt)):
			}
		}

		event, err := s.repo.GetEvent(ctx, in.OwnerID, in.EventID)
		if err != nil {
			return RecordTapResult{}, err
		}
		if !event.Covers(at) {
			return RecordTapResult{}, domain.ErrEventNotActive
		}
		if kind == domain.TapExit && event.Total <= 0 {
			return RecordTapResult{}, domain.ErrTotalAtZero
		}
		if event.Version >= s.maxEntries {
			return RecordTapResult{}, domain.ErrLedgerFull
		}

		tap := domain.Tap{
			EventID: event.ID,
			Seq:     event.Version + 1,
			Kind:    kind,
			At:      at,
		}
		updated, err := s.repo.AppendTap(ctx, in.OwnerID, event.Version, tap)
		if errors.Is(err, domain.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return RecordTapResult{}, err
		}
		return RecordTapResult{
			Total:   updated.Total,
			Version: updated.Version,
			Tap:     tap,
		}, nil
	}
	return RecordTapResult{}, domain.ErrVersionConflict
}

// retryDelay is full-jitter exponential backoff capped at retryMaxDelay.
func retryDelay(attempt int) time.Duration {
	ceiling := retryBaseDelay << min(attempt-1, 5)
	if ceiling > retryMaxDelay {
		ceiling = retryMaxDelay
	}
	return retryBaseDelay + rand.N(ceiling)
}

// RecentTaps returns up to limit taps, newest first.
func (s *LedgerService) RecentTaps(ctx context.Context, ownerID, eventID string, limit int) ([]domain.Tap, error) {
	if limit <= 0 || limit > maxRecentTaps {
		limit = maxRecentTaps
	}
	return s.repo.RecentTaps(ctx, ownerID, eventID, limit)
}
