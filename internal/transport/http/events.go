package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tho-bre/event-flow/internal/app"
	"github.com/tho-bre/event-flow/internal/clock"
	"github.com/tho-bre/event-flow/internal/domain"
)

// EventCatalog is the minimal interface needed to manage events.
type EventCatalog interface {
	CreateEvent(ctx context.Context, in app.CreateEventInput) (domain.Event, error)
	ListEvents(ctx context.Context, ownerID string) ([]domain.Event, error)
	GetEvent(ctx context.Context, ownerID, eventID string) (domain.Event, error)
	UpdateEvent(ctx context.Context, in app.UpdateEventInput) (domain.Event, error)
	DeleteEvent(ctx context.Context, ownerID, eventID string) error
	Summary(ctx context.Context, ownerID string) (domain.Summary, error)
}

type eventResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	Total     int       `json:"total"`
	Version   int64     `json:"version"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func toEventResponse(e domain.Event, now time.Time) eventResponse {
	return eventResponse{
		ID:        e.ID,
		Name:      e.Name,
		StartsAt:  e.StartsAt,
		EndsAt:    e.EndsAt,
		Total:     e.Total,
		Version:   e.Version,
		Status:    string(e.Status(now)),
		CreatedAt: e.CreatedAt,
	}
}

type eventRequest struct {
	Name     *string    `json:"name"`
	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`
}

func HandleListEvents(svc EventCatalog, clk clock.Clock, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := svc.ListEvents(r.Context(), associationFrom(r.Context()).ID)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		now := clk.Now()
		resp := make([]eventResponse, 0, len(events))
		for _, e := range events {
			resp = append(resp, toEventResponse(e, now))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func HandleCreateEvent(svc EventCatalog, clk clock.Clock, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req eventRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Name == nil || req.StartsAt == nil || req.EndsAt == nil {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "name, starts_at and ends_at are required")
			return
		}
		event, err := svc.CreateEvent(r.Context(), app.CreateEventInput{
			OwnerID:  associationFrom(r.Context()).ID,
			Name:     *req.Name,
			StartsAt: *req.StartsAt,
			EndsAt:   *req.EndsAt,
		})
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, toEventResponse(event, clk.Now()))
	}
}

func HandleGetEvent(svc EventCatalog, clk clock.Clock, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		event, err := svc.GetEvent(r.Context(), associationFrom(r.Context()).ID, chi.URLParam(r, "eventID"))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toEventResponse(event, clk.Now()))
	}
}

func HandleUpdateEvent(svc EventCatalog, clk clock.Clock, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req eventRequest
		if !decodeBody(w, r, &req) {
			return
		}
		event, err := svc.UpdateEvent(r.Context(), app.UpdateEventInput{
			OwnerID:  associationFrom(r.Context()).ID,
			EventID:  chi.URLParam(r, "eventID"),
			Name:     req.Name,
			StartsAt: req.StartsAt,
			EndsAt:   req.EndsAt,
		})
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toEventResponse(event, clk.Now()))
	}
}

func HandleDeleteEvent(svc EventCatalog, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := svc.DeleteEvent(r.Context(), associationFrom(r.Context()).ID, chi.URLParam(r, "eventID"))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type summaryResponse struct {
	Events    int `json:"events"`
	Upcoming  int `json:"upcoming"`
	Active    int `json:"active"`
	Past      int `json:"past"`
	Attendees int `json:"attendees"`
}

func HandleSummary(svc EventCatalog, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := svc.Summary(r.Context(), associationFrom(r.Context()).ID)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, summaryResponse(sum))
	}
}
