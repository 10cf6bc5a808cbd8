package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tho-bre/event-flow/internal/aggregate"
	"github.com/tho-bre/event-flow/internal/app"
	"github.com/tho-bre/event-flow/internal/clock"
	"github.com/tho-bre/event-flow/internal/report"
)

// Reporter builds attendance reports.
type Reporter interface {
	Report(ctx context.Context, ownerID, eventID string, width aggregate.Width) (app.Report, error)
	Location() *time.Location
}

// PDFPrinter turns a report document into PDF bytes.
type PDFPrinter interface {
	Render(ctx context.Context, doc report.Document) ([]byte, error)
}

type bucketResponse struct {
	Label   string    `json:"label"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Entries int       `json:"entries"`
	Exits   int       `json:"exits"`
	Net     int       `json:"net"`
}

type reportResponse struct {
	Event    eventResponse    `json:"event"`
	Interval string           `json:"interval"`
	Buckets  []bucketResponse `json:"buckets"`
	Total    int              `json:"total"`
}

// loadReport resolves the interval query parameter (30min by default) and
// builds the report, answering errors itself.
func loadReport(w http.ResponseWriter, r *http.Request, svc Reporter, logger *slog.Logger) (app.Report, bool) {
	width := aggregate.Width30m
	if v := r.URL.Query().Get("interval"); v != "" {
		parsed, err := aggregate.ParseWidth(v)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return app.Report{}, false
		}
		width = parsed
	}
	rep, err := svc.Report(r.Context(), associationFrom(r.Context()).ID, chi.URLParam(r, "eventID"), width)
	if err != nil {
		writeServiceError(w, r, logger, err)
		return app.Report{}, false
	}
	return rep, true
}

func document(rep app.Report, loc *time.Location, now time.Time) report.Document {
	return report.Document{
		Event:     rep.Event,
		Width:     rep.Width,
		Buckets:   aggregate.Collect(rep.Buckets),
		Location:  loc,
		Generated: now,
	}
}

func HandleReport(svc Reporter, clk clock.Clock, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, ok := loadReport(w, r, svc, logger)
		if !ok {
			return
		}
		resp := reportResponse{
			Event:    toEventResponse(rep.Event, clk.Now()),
			Interval: rep.Width.String(),
			Buckets:  []bucketResponse{},
			Total:    rep.Event.Total,
		}
		for b := range rep.Buckets {
			resp.Buckets = append(resp.Buckets, bucketResponse(b))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func HandleReportHTML(svc Reporter, clk clock.Clock, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, ok := loadReport(w, r, svc, logger)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := report.RenderHTML(w, document(rep, svc.Location(), clk.Now())); err != nil {
			logger.Error("render report html", "event_id", rep.Event.ID, "err", err)
		}
	}
}

func HandleReportPDF(svc Reporter, pdf PDFPrinter, clk clock.Clock, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, ok := loadReport(w, r, svc, logger)
		if !ok {
			return
		}
		out, err := pdf.Render(r.Context(), document(rep, svc.Location(), clk.Now()))
		if err != nil {
			logger.Error("render report pdf", "event_id", rep.Event.ID, "err", err)
			writeError(w, http.StatusServiceUnavailable, codePDFUnavailable, "pdf rendering unavailable")
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, reportFilename(rep)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out)
	}
}

var unsafeFilename = regexp.MustCompile(`[^a-z0-9]+`)

// reportFilename is the event name reduced to lowercase ascii words plus
// the interval, e.g. "gala-2025-30min.pdf".
func reportFilename(rep app.Report) string {
	slug := strings.Trim(unsafeFilename.ReplaceAllString(strings.ToLower(rep.Event.Name), "-"), "-")
	if slug == "" {
		slug = "report"
	}
	return slug + "-" + rep.Width.String() + ".pdf"
}
