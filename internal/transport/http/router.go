package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tho-bre/event-flow/internal/clock"
)

const defaultWatchPing = 30 * time.Second

// Services are the collaborators the API is built on.
type Services struct {
	Gate    Gate
	Catalog EventCatalog
	Ledger  TapRecorder
	Reports Reporter
	PDF     PDFPrinter
	Changes ChangeSubscriber
	Clock   clock.Clock
	Logger  *slog.Logger

	CORSOrigins []string
	// WatchPing is the websocket ping and session recheck period.
	WatchPing time.Duration
	// AuthLimiter throttles register and login per client address.
	AuthLimiter *RateLimiter
}

// NewRouter wires every route behind the request logger and CORS.
func NewRouter(s Services) http.Handler {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := s.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}
	ping := s.WatchPing
	if ping <= 0 {
		ping = defaultWatchPing
	}

	r := chi.NewRouter()
	r.NotFound(NotFoundHandler().ServeHTTP)
	r.MethodNotAllowed(MethodNotAllowedHandler().ServeHTTP)

	r.Get("/health", HealthHandler)
	r.Head("/health", HealthHandler)

	r.Route("/auth", func(r chi.Router) {
		throttled := r.With(Throttle(s.AuthLimiter, clk, logger))
		throttled.Post("/register", HandleRegister(s.Gate, logger))
		throttled.Post("/login", HandleLogin(s.Gate, logger))
		r.Post("/logout", HandleLogout(s.Gate, logger))
	})

	r.Group(func(r chi.Router) {
		r.Use(RequireSession(s.Gate, logger))

		r.Get("/me", HandleMe())

		r.Route("/events", func(r chi.Router) {
			r.Get("/", HandleListEvents(s.Catalog, clk, logger))
			r.Post("/", HandleCreateEvent(s.Catalog, clk, logger))
			r.Get("/summary", HandleSummary(s.Catalog, logger))

			r.Route("/{eventID}", func(r chi.Router) {
				r.Get("/", HandleGetEvent(s.Catalog, clk, logger))
				r.Patch("/", HandleUpdateEvent(s.Catalog, clk, logger))
				r.Delete("/", HandleDeleteEvent(s.Catalog, logger))

				r.Post("/taps", HandleRecordTap(s.Ledger, s.Catalog, logger))
				r.Get("/taps", HandleRecentTaps(s.Ledger, logger))

				r.Get("/report", HandleReport(s.Reports, clk, logger))
				r.Get("/report.html", HandleReportHTML(s.Reports, clk, logger))
				r.Get("/report.pdf", HandleReportPDF(s.Reports, s.PDF, clk, logger))

				r.Get("/watch", HandleWatch(s.Catalog, s.Changes, s.Gate, ping, logger))
			})
		})
	})

	return RequestLogger(CORS(s.CORSOrigins, r), logger)
}
