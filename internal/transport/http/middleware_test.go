package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tho-bre/event-flow/internal/domain"
)

func TestRequestLogger_LogsStatusAndPath(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, nil))

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/events", nil)
	rec := httptest.NewRecorder()

	RequestLogger(handler, logger).ServeHTTP(rec, req)

	out := buf.String()
	for _, want := range []string{"method=POST", "path=/events", "status=201", "duration="} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in log, got %q", want, out)
		}
	}
}

func TestRequestLogger_DefaultsTo200(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, nil))

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	RequestLogger(handler, logger).ServeHTTP(rec, req)

	if out := buf.String(); !strings.Contains(out, "status=200") {
		t.Fatalf("expected default status 200 in log, got %q", out)
	}
}

type stubResolver struct {
	token string
	assoc domain.Association
	err   error
}

func (s stubResolver) Resolve(_ context.Context, token string) (domain.Association, error) {
	if s.err != nil {
		return domain.Association{}, s.err
	}
	if token != s.token {
		return domain.Association{}, domain.ErrAuthFailed
	}
	return s.assoc, nil
}

func TestRequireSession(t *testing.T) {
	t.Parallel()

	assoc := domain.Association{ID: "a1", Name: "Club", Active: true}

	tests := []struct {
		name       string
		header     string
		query      string
		resolver   stubResolver
		wantStatus int
		wantCode   string
	}{
		{name: "bearer header", header: "Bearer efs_ok", resolver: stubResolver{token: "efs_ok", assoc: assoc}, wantStatus: http.StatusOK},
		{name: "query token", query: "?access_token=efs_ok", resolver: stubResolver{token: "efs_ok", assoc: assoc}, wantStatus: http.StatusOK},
		{name: "missing token", resolver: stubResolver{token: "efs_ok"}, wantStatus: http.StatusUnauthorized, wantCode: codeUnauthorized},
		{name: "wrong scheme", header: "Basic abc", resolver: stubResolver{token: "efs_ok"}, wantStatus: http.StatusUnauthorized, wantCode: codeUnauthorized},
		{name: "unknown token", header: "Bearer efs_nope", resolver: stubResolver{token: "efs_ok"}, wantStatus: http.StatusUnauthorized, wantCode: codeUnauthorized},
		{
			name:       "deactivated account",
			header:     "Bearer efs_ok",
			resolver:   stubResolver{err: domain.ErrAccountNotActivated},
			wantStatus: http.StatusForbidden,
			wantCode:   codeAccountNotActivated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var seen domain.Association
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = associationFrom(r.Context())
				w.WriteHeader(http.StatusOK)
			})
			req := httptest.NewRequest(http.MethodGet, "/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			RequireSession(tt.resolver, slog.Default())(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantStatus == http.StatusOK {
				if seen.ID != assoc.ID {
					t.Fatalf("expected association in context, got %+v", seen)
				}
				return
			}
			var resp errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Code != tt.wantCode {
				t.Fatalf("expected code %s, got %s", tt.wantCode, resp.Code)
			}
		})
	}
}
