package http

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tho-bre/event-flow/internal/domain"
)

// RequestLogger logs basic request details and latency.
func RequestLogger(next http.Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade pass through the logger.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// SessionResolver maps a bearer token to its association.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (domain.Association, error)
}

type associationKey struct{}

// RequireSession rejects requests without a valid bearer token and stores
// the resolved association in the request context.
func RequireSession(resolver SessionResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "bearer token required")
				return
			}
			assoc, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				writeServiceError(w, r, logger, err)
				return
			}
			ctx := context.WithValue(r.Context(), associationKey{}, assoc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func associationFrom(ctx context.Context) domain.Association {
	assoc, _ := ctx.Value(associationKey{}).(domain.Association)
	return assoc
}

// bearerToken reads the Authorization header. Browsers cannot set headers
// on websocket handshakes, so an access_token query parameter is accepted
// as well.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}
