package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tho-bre/event-flow/internal/app"
	"github.com/tho-bre/event-flow/internal/auth"
	"github.com/tho-bre/event-flow/internal/clock"
	"github.com/tho-bre/event-flow/internal/domain"
	"github.com/tho-bre/event-flow/internal/realtime"
	"github.com/tho-bre/event-flow/internal/report"
	"github.com/tho-bre/event-flow/internal/storage/memory"
	api "github.com/tho-bre/event-flow/internal/transport/http"
)

func TestAPIError_Unwrap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *APIError
		want error
	}{
		{"known code", &APIError{Status: 409, Code: "total_at_zero"}, domain.ErrTotalAtZero},
		{"class of known code", &APIError{Status: 409, Code: "event_not_active"}, domain.ErrInvalidState},
		{"unknown conflict", &APIError{Status: 409, Code: "something_new"}, domain.ErrInvalidState},
		{"plain not found", &APIError{Status: 404, Code: "not_found"}, domain.ErrNotFound},
		{"pending", &APIError{Status: 403, Code: "pending_activation"}, domain.ErrPendingActivation},
		{"bad request", &APIError{Status: 400, Code: "invalid_request_body"}, domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if !errors.Is(tt.err, tt.want) {
				t.Fatalf("expected %v to match %v", tt.err, tt.want)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", errors.New("dial tcp: connection refused"), true},
		{"server error", &APIError{Status: 502}, true},
		{"rejection", &APIError{Status: 409, Code: "total_at_zero"}, false},
		{"contended event", &APIError{Status: 409, Code: "version_conflict"}, true},
		{"canceled", context.Canceled, false},
	}

	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Fatalf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestClient_TapSendsBearerAndDecodesRejection(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"invalid state: total is already zero","code":"total_at_zero","total":0}`))
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL+"/", WithToken("efs_abc"))
	at := time.Date(2025, 5, 17, 10, 5, 0, 0, time.UTC)
	_, err := c.Tap(context.Background(), "ev-1", domain.DirectionDecrement, at)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Total == nil || *apiErr.Total != 0 || !errors.Is(err, domain.ErrTotalAtZero) {
		t.Fatalf("unexpected error %+v", apiErr)
	}
	if gotAuth != "Bearer efs_abc" {
		t.Fatalf("unexpected authorization header %q", gotAuth)
	}
	if gotBody["direction"] != "decrement" || gotBody["at"] != "2025-05-17T10:05:00Z" {
		t.Fatalf("unexpected body %v", gotBody)
	}
}

type fakePDF struct{}

func (fakePDF) Render(context.Context, report.Document) ([]byte, error) {
	return []byte("%PDF-1.4"), nil
}

func TestClient_AgainstAPI(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 5, 17, 10, 0, 0, 0, time.UTC)
	clk := clock.NewManual(start.Add(15 * time.Minute))
	store := memory.New()
	gate := app.NewGateService(store, clk, app.WithHashParams(auth.Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 16, SaltLen: 8}))
	changes := realtime.NewBroker[domain.Change]()
	t.Cleanup(changes.Close)

	srv := httptest.NewServer(api.NewRouter(api.Services{
		Gate:    gate,
		Catalog: app.NewCatalogService(store, clk),
		Ledger:  app.NewLedgerService(store, clk),
		Reports: app.NewReportService(store, time.UTC),
		PDF:     fakePDF{},
		Changes: changes,
		Clock:   clk,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	c := New(srv.URL)

	if err := c.Health(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}
	if err := c.Register(ctx, "club@example.org", "s3cret!", "Club"); !errors.Is(err, domain.ErrPendingActivation) {
		t.Fatalf("expected pending activation, got %v", err)
	}
	if _, err := c.Login(ctx, "club@example.org", "s3cret!"); !errors.Is(err, domain.ErrAccountNotActivated) {
		t.Fatalf("expected account not activated, got %v", err)
	}
	if _, err := gate.SetActivation(ctx, "club@example.org", true); err != nil {
		t.Fatalf("activate: %v", err)
	}
	session, err := c.Login(ctx, "club@example.org", "s3cret!")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if c.Token() != session.Token || session.Association.Name != "Club" {
		t.Fatalf("unexpected session %+v", session)
	}

	ev, err := c.CreateEvent(ctx, "Soirée", start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	if ev.Status != "active" {
		t.Fatalf("expected active event, got %q", ev.Status)
	}

	res, err := c.Tap(ctx, ev.ID, domain.DirectionIncrement, time.Time{})
	if err != nil {
		t.Fatalf("tap: %v", err)
	}
	if res.Total != 1 || res.Version != 1 || !res.Timestamp.Equal(clk.Now()) {
		t.Fatalf("unexpected tap result %+v", res)
	}
	if _, err := c.Tap(ctx, ev.ID, domain.DirectionIncrement, start.Add(2*time.Hour)); !errors.Is(err, domain.ErrEventNotActive) {
		t.Fatalf("expected event not active, got %v", err)
	}

	taps, err := c.RecentTaps(ctx, ev.ID, 5)
	if err != nil || len(taps) != 1 || taps[0].Kind != "entry" {
		t.Fatalf("unexpected recent taps %+v (%v)", taps, err)
	}

	rep, err := c.Report(ctx, ev.ID, "30min")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(rep.Buckets) != 2 || rep.Buckets[0].Net != 1 || rep.Total != 1 {
		t.Fatalf("unexpected report %+v", rep)
	}

	pdf, name, err := c.ReportPDF(ctx, ev.ID, "1hour")
	if err != nil {
		t.Fatalf("report pdf: %v", err)
	}
	if string(pdf) != "%PDF-1.4" || name != "soir-e-1hour.pdf" {
		t.Fatalf("unexpected pdf %q named %q", pdf, name)
	}

	if _, err := c.Event(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := c.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := c.Events(ctx); !errors.Is(err, domain.ErrAuthFailed) {
		t.Fatalf("expected unauthorized after logout, got %v", err)
	}
}
