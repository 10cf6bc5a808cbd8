package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tho-bre/event-flow/internal/app"
	"github.com/tho-bre/event-flow/internal/clock"
	"github.com/tho-bre/event-flow/internal/domain"
)

type stubCatalog struct {
	event  domain.Event
	create app.CreateEventInput
	update app.UpdateEventInput
	err    error
}

func (s *stubCatalog) CreateEvent(_ context.Context, in app.CreateEventInput) (domain.Event, error) {
	s.create = in
	return s.event, s.err
}

func (s *stubCatalog) ListEvents(context.Context, string) ([]domain.Event, error) {
	return []domain.Event{s.event}, s.err
}

func (s *stubCatalog) GetEvent(context.Context, string, string) (domain.Event, error) {
	return s.event, s.err
}

func (s *stubCatalog) UpdateEvent(_ context.Context, in app.UpdateEventInput) (domain.Event, error) {
	s.update = in
	return s.event, s.err
}

func (s *stubCatalog) DeleteEvent(context.Context, string, string) error {
	return s.err
}

func (s *stubCatalog) Summary(context.Context, string) (domain.Summary, error) {
	return domain.Summary{Events: 1, Active: 1, Attendees: s.event.Total}, s.err
}

func TestHandleCreateEvent(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 5, 17, 20, 0, 0, 0, time.UTC)
	event := domain.Event{ID: "ev-1", Name: "Bal", StartsAt: start, EndsAt: start.Add(4 * time.Hour)}
	clk := clock.NewFixed(start.Add(-time.Hour))

	tests := []struct {
		name           string
		body           string
		serviceErr     error
		expectedStatus int
		expectedSubstr string
	}{
		{
			name:           "success",
			body:           `{"name":"Bal","starts_at":"2025-05-17T20:00:00Z","ends_at":"2025-05-18T00:00:00Z"}`,
			expectedStatus: http.StatusCreated,
			expectedSubstr: `"status":"upcoming"`,
		},
		{
			name:           "missing end",
			body:           `{"name":"Bal","starts_at":"2025-05-17T20:00:00Z"}`,
			expectedStatus: http.StatusBadRequest,
			expectedSubstr: codeMissingRequiredField,
		},
		{
			name:           "bad timestamp",
			body:           `{"name":"Bal","starts_at":"tonight","ends_at":"2025-05-18T00:00:00Z"}`,
			expectedStatus: http.StatusBadRequest,
			expectedSubstr: codeInvalidRequestBody,
		},
		{
			name:           "blank name",
			body:           `{"name":" ","starts_at":"2025-05-17T20:00:00Z","ends_at":"2025-05-18T00:00:00Z"}`,
			serviceErr:     domain.ErrEventNameRequired,
			expectedStatus: http.StatusBadRequest,
			expectedSubstr: codeEventNameRequired,
		},
		{
			name:           "internal error",
			body:           `{"name":"Bal","starts_at":"2025-05-17T20:00:00Z","ends_at":"2025-05-18T00:00:00Z"}`,
			serviceErr:     errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := &stubCatalog{event: event, err: tt.serviceErr}
			req := routed(httptest.NewRequest(http.MethodPost, "/events", bytes.NewBufferString(tt.body)), "", domain.Association{ID: "assoc-1"})
			rec := httptest.NewRecorder()
			HandleCreateEvent(svc, clk, discardLogger()).ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d (%s)", tt.expectedStatus, rec.Code, rec.Body.String())
			}
			if tt.expectedSubstr != "" && !strings.Contains(rec.Body.String(), tt.expectedSubstr) {
				t.Fatalf("expected response to contain %q, got %q", tt.expectedSubstr, rec.Body.String())
			}
			if rec.Code == http.StatusCreated && svc.create.OwnerID != "assoc-1" {
				t.Fatalf("expected the owner taken from the session, got %q", svc.create.OwnerID)
			}
		})
	}
}

func TestHandleUpdateEvent_PartialFields(t *testing.T) {
	t.Parallel()

	svc := &stubCatalog{event: domain.Event{ID: "ev-1", Name: "Renamed"}}
	req := routed(httptest.NewRequest(http.MethodPatch, "/events/ev-1", bytes.NewBufferString(`{"name":"Renamed"}`)), "ev-1", domain.Association{ID: "assoc-1"})
	rec := httptest.NewRecorder()
	HandleUpdateEvent(svc, clock.NewSystem(), discardLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	in := svc.update
	if in.EventID != "ev-1" || in.OwnerID != "assoc-1" || in.Name == nil || *in.Name != "Renamed" {
		t.Fatalf("unexpected update input %+v", in)
	}
	if in.StartsAt != nil || in.EndsAt != nil {
		t.Fatalf("expected untouched window, got %+v", in)
	}
}

func TestHandleGetEvent_NotFound(t *testing.T) {
	t.Parallel()

	svc := &stubCatalog{err: domain.ErrEventNotFound}
	req := routed(httptest.NewRequest(http.MethodGet, "/events/nope", nil), "nope", domain.Association{ID: "assoc-1"})
	rec := httptest.NewRecorder()
	HandleGetEvent(svc, clock.NewSystem(), discardLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), codeEventNotFound) {
		t.Fatalf("expected 404 event_not_found, got %d %s", rec.Code, rec.Body.String())
	}
}
