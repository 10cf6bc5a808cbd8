package http

import (
	"net/http/httptest"
	"testing"
)

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		method string
		body   string
	}{
		{"GET", "ok"},
		{"HEAD", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, "/health", nil)
		rec := httptest.NewRecorder()

		HealthHandler(rec, req)

		if rec.Code != 200 {
			t.Fatalf("%s: expected status 200, got %d", tt.method, rec.Code)
		}
		if got := rec.Body.String(); got != tt.body {
			t.Fatalf("%s: expected body %q, got %q", tt.method, tt.body, got)
		}
		if rec.Header().Get("Cache-Control") != "no-store" {
			t.Fatalf("%s: expected no-store", tt.method)
		}
	}
}
