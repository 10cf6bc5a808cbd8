package offline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tho-bre/event-flow/internal/client"
	"github.com/tho-bre/event-flow/internal/clock"
	"github.com/tho-bre/event-flow/internal/domain"
)

type sentTap struct {
	eventID string
	dir     domain.Direction
	at      time.Time
}

// fakeServer keeps a total per event and can be switched off.
type fakeServer struct {
	mu      sync.Mutex
	down    bool
	total   map[string]int
	sent    []sentTap
	rejects map[string]error
}

func newFakeServer() *fakeServer {
	return &fakeServer{total: map[string]int{}, rejects: map[string]error{}}
}

func (f *fakeServer) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

func (f *fakeServer) Tap(_ context.Context, eventID string, dir domain.Direction, at time.Time) (client.TapResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return client.TapResult{}, errors.New("dial tcp: connection refused")
	}
	if err, ok := f.rejects[eventID]; ok {
		return client.TapResult{}, err
	}
	delta := dir.Kind().Delta()
	if f.total[eventID]+delta < 0 {
		zero := 0
		return client.TapResult{}, &client.APIError{Status: 409, Code: "total_at_zero", Total: &zero}
	}
	f.total[eventID] += delta
	f.sent = append(f.sent, sentTap{eventID, dir, at})
	return client.TapResult{Total: f.total[eventID], Version: int64(len(f.sent)), Timestamp: at}, nil
}

func (f *fakeServer) Health(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errors.New("dial tcp: connection refused")
	}
	return nil
}

func newTestSyncer(t *testing.T, srv *fakeServer) (*Syncer, *Outbox, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Date(2025, 5, 17, 10, 0, 0, 0, time.UTC))
	outbox := openTestOutbox(t)
	return NewSyncer(srv, outbox, clk, nil), outbox, clk
}

func TestSyncer_SendsWhileOnline(t *testing.T) {
	t.Parallel()
	srv := newFakeServer()
	syncer, outbox, clk := newTestSyncer(t, srv)

	out, err := syncer.Tap(context.Background(), "ev-1", domain.DirectionIncrement)
	if err != nil {
		t.Fatalf("tap: %v", err)
	}
	if out.Queued || out.Total != 1 || !out.At.Equal(clk.Now()) {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if n, _ := outbox.Len(context.Background()); n != 0 {
		t.Fatalf("expected empty outbox, got %d", n)
	}
}

func TestSyncer_RejectionIsNotQueued(t *testing.T) {
	t.Parallel()
	srv := newFakeServer()
	syncer, outbox, _ := newTestSyncer(t, srv)

	_, err := syncer.Tap(context.Background(), "ev-1", domain.DirectionDecrement)
	if !errors.Is(err, domain.ErrTotalAtZero) {
		t.Fatalf("expected total at zero, got %v", err)
	}
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Total == nil {
		t.Fatalf("expected the server total with the rejection, got %v", err)
	}
	if !syncer.Online() {
		t.Fatal("a rejection must not switch the syncer offline")
	}
	if n, _ := outbox.Len(context.Background()); n != 0 {
		t.Fatalf("expected empty outbox, got %d", n)
	}
}

func TestSyncer_QueuesContendedTap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv := newFakeServer()
	syncer, outbox, _ := newTestSyncer(t, srv)

	srv.mu.Lock()
	srv.rejects["ev-1"] = &client.APIError{Status: 409, Code: "version_conflict"}
	srv.mu.Unlock()

	out, err := syncer.Tap(ctx, "ev-1", domain.DirectionIncrement)
	if err != nil {
		t.Fatalf("tap: %v", err)
	}
	if !out.Queued {
		t.Fatalf("expected the tap kept for replay, got %+v", out)
	}
	if n, _ := outbox.Len(ctx); n != 1 {
		t.Fatalf("expected one queued tap, got %d", n)
	}

	srv.mu.Lock()
	delete(srv.rejects, "ev-1")
	srv.mu.Unlock()
	rep, err := syncer.Flush(ctx)
	if err != nil || rep.Sent != 1 || rep.Remaining != 0 {
		t.Fatalf("unexpected replay %+v (%v)", rep, err)
	}
	if srv.total["ev-1"] != 1 {
		t.Fatalf("expected server total 1, got %d", srv.total["ev-1"])
	}
}

func TestSyncer_QueuesOfflineAndReplaysInOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv := newFakeServer()
	syncer, outbox, clk := newTestSyncer(t, srv)

	srv.setDown(true)
	var stamps []time.Time
	for _, dir := range []domain.Direction{domain.DirectionIncrement, domain.DirectionIncrement, domain.DirectionDecrement} {
		clk.Advance(time.Minute)
		stamps = append(stamps, clk.Now())
		out, err := syncer.Tap(ctx, "ev-1", dir)
		if err != nil {
			t.Fatalf("tap: %v", err)
		}
		if !out.Queued {
			t.Fatalf("expected queued outcome, got %+v", out)
		}
	}
	if syncer.Online() {
		t.Fatal("expected syncer offline after transport failure")
	}

	// Still down: the replay stops at the first tap.
	rep, err := syncer.Flush(ctx)
	if err != nil || rep.Sent != 0 || rep.Remaining != 3 {
		t.Fatalf("unexpected flush while down %+v (%v)", rep, err)
	}

	srv.setDown(false)
	syncer.SetConnectivity(ctx, true)

	if n, _ := outbox.Len(ctx); n != 0 {
		t.Fatalf("expected drained outbox, got %d", n)
	}
	if !syncer.Online() {
		t.Fatal("expected syncer online after replay")
	}
	if len(srv.sent) != 3 || srv.total["ev-1"] != 1 {
		t.Fatalf("unexpected server state %+v", srv.sent)
	}
	for i, s := range srv.sent {
		if !s.at.Equal(stamps[i]) {
			t.Fatalf("tap %d replayed with %v, want device time %v", i, s.at, stamps[i])
		}
	}
	if srv.sent[2].dir != domain.DirectionDecrement {
		t.Fatalf("replay out of order: %+v", srv.sent)
	}
}

func TestSyncer_NewTapsWaitBehindQueue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv := newFakeServer()
	syncer, _, _ := newTestSyncer(t, srv)

	srv.setDown(true)
	if _, err := syncer.Tap(ctx, "ev-1", domain.DirectionIncrement); err != nil {
		t.Fatalf("tap: %v", err)
	}
	srv.setDown(false)
	// The server is back but the syncer has not heard it yet.
	out, err := syncer.Tap(ctx, "ev-1", domain.DirectionDecrement)
	if err != nil || !out.Queued {
		t.Fatalf("expected queued decrement, got %+v (%v)", out, err)
	}

	rep, err := syncer.Flush(ctx)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if rep.Sent != 2 || rep.Dropped != 0 || srv.total["ev-1"] != 0 {
		t.Fatalf("unexpected replay %+v, total %d", rep, srv.total["ev-1"])
	}
}

func TestSyncer_DropsRejectedReplays(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv := newFakeServer()
	syncer, outbox, _ := newTestSyncer(t, srv)

	srv.setDown(true)
	for _, tap := range []struct {
		event string
		dir   domain.Direction
	}{
		{"ev-1", domain.DirectionDecrement},
		{"ev-gone", domain.DirectionIncrement},
		{"ev-over", domain.DirectionIncrement},
		{"ev-1", domain.DirectionIncrement},
	} {
		if _, err := syncer.Tap(ctx, tap.event, tap.dir); err != nil {
			t.Fatalf("tap: %v", err)
		}
	}
	srv.mu.Lock()
	srv.rejects["ev-gone"] = &client.APIError{Status: 404, Code: "event_not_found"}
	srv.rejects["ev-over"] = &client.APIError{Status: 409, Code: "event_not_active"}
	srv.mu.Unlock()
	srv.setDown(false)

	rep, err := syncer.Flush(ctx)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if rep.Sent != 1 || rep.Dropped != 3 || rep.Remaining != 0 {
		t.Fatalf("unexpected replay %+v", rep)
	}
	if srv.total["ev-1"] != 1 {
		t.Fatalf("expected server total 1, got %d", srv.total["ev-1"])
	}
	if n, _ := outbox.Len(ctx); n != 0 {
		t.Fatalf("expected drained outbox, got %d", n)
	}
}

func TestSyncer_SessionRejectionKeepsQueue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv := newFakeServer()
	syncer, outbox, _ := newTestSyncer(t, srv)

	srv.setDown(true)
	if _, err := syncer.Tap(ctx, "ev-1", domain.DirectionIncrement); err != nil {
		t.Fatalf("tap: %v", err)
	}
	srv.mu.Lock()
	srv.rejects["ev-1"] = &client.APIError{Status: 401, Code: "unauthorized"}
	srv.mu.Unlock()
	srv.setDown(false)

	rep, err := syncer.Flush(ctx)
	if !errors.Is(err, ErrSessionRejected) || !errors.Is(err, domain.ErrAuthFailed) {
		t.Fatalf("expected session rejection, got %v", err)
	}
	if rep.Remaining != 1 {
		t.Fatalf("expected tap kept, got %+v", rep)
	}
	if n, _ := outbox.Len(ctx); n != 1 {
		t.Fatalf("expected 1 queued tap, got %d", n)
	}
}
