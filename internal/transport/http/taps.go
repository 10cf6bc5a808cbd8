package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tho-bre/event-flow/internal/app"
	"github.com/tho-bre/event-flow/internal/domain"
)

// TapRecorder is the minimal interface needed to record and list taps.
type TapRecorder interface {
	RecordTap(ctx context.Context, in app.RecordTapInput) (app.RecordTapResult, error)
	RecentTaps(ctx context.Context, ownerID, eventID string, limit int) ([]domain.Tap, error)
}

// EventReader lets the tap handler report the current total after a
// rejected tap.
type EventReader interface {
	GetEvent(ctx context.Context, ownerID, eventID string) (domain.Event, error)
}

type tapRequest struct {
	Direction string     `json:"direction"`
	At        *time.Time `json:"at,omitempty"`
}

type tapResponse struct {
	Seq       int64     `json:"seq"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

type recordTapResponse struct {
	Total     int       `json:"total"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func HandleRecordTap(svc TapRecorder, events EventReader, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tapRequest
		if !decodeBody(w, r, &req) {
			return
		}
		dir, err := domain.ParseDirection(req.Direction)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		owner := associationFrom(r.Context()).ID
		eventID := chi.URLParam(r, "eventID")
		in := app.RecordTapInput{OwnerID: owner, EventID: eventID, Direction: dir}
		if req.At != nil {
			in.At = *req.At
		}

		res, err := svc.RecordTap(r.Context(), in)
		if errors.Is(err, domain.ErrInvalidState) {
			status, code := classify(err)
			body := errorResponse{Error: err.Error(), Code: code}
			if event, gerr := events.GetEvent(r.Context(), owner, eventID); gerr == nil {
				body.Total = &event.Total
			}
			writeErrorBody(w, status, body)
			return
		}
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, recordTapResponse{
			Total:     res.Total,
			Version:   res.Version,
			Timestamp: res.Tap.At,
		})
	}
}

const defaultRecentTaps = 5

func HandleRecentTaps(svc TapRecorder, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultRecentTaps
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, codeValidation, "limit must be a positive integer")
				return
			}
			limit = n
		}

		taps, err := svc.RecentTaps(r.Context(), associationFrom(r.Context()).ID, chi.URLParam(r, "eventID"), limit)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		resp := make([]tapResponse, 0, len(taps))
		for _, t := range taps {
			resp = append(resp, tapResponse{Seq: t.Seq, Kind: string(t.Kind), Timestamp: t.At})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
