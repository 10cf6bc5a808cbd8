package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tho-bre/event-flow/internal/app"
	"github.com/tho-bre/event-flow/internal/auth"
	"github.com/tho-bre/event-flow/internal/clock"
	"github.com/tho-bre/event-flow/internal/domain"
	"github.com/tho-bre/event-flow/internal/realtime"
	"github.com/tho-bre/event-flow/internal/report"
	"github.com/tho-bre/event-flow/internal/storage/memory"
	transporthttp "github.com/tho-bre/event-flow/internal/transport/http"
)

type pdfStub struct{}

func (pdfStub) Render(context.Context, report.Document) ([]byte, error) {
	return []byte("%PDF-1.4"), nil
}

type harness struct {
	t          *testing.T
	configPath string
	gate       *app.GateService
	down       atomic.Bool
	server     *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := clock.NewSystem()
	store := memory.New()
	changes := realtime.NewBroker[domain.Change]()
	t.Cleanup(changes.Close)

	h := &harness{
		t:          t,
		configPath: filepath.Join(t.TempDir(), "pointeuse", "config.yaml"),
		gate:       app.NewGateService(store, clk, app.WithHashParams(auth.Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 16, SaltLen: 8})),
	}
	api := transporthttp.NewRouter(transporthttp.Services{
		Gate:    h.gate,
		Catalog: app.NewCatalogService(store, clk),
		Ledger:  app.NewLedgerService(store, clk),
		Reports: app.NewReportService(store, time.UTC),
		PDF:     pdfStub{},
		Changes: changes,
		Clock:   clk,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	h.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.down.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		api.ServeHTTP(w, r)
	}))
	t.Cleanup(h.server.Close)
	return h
}

func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	full := append([]string{"--config", h.configPath, "--server", h.server.URL}, args...)
	err := run(context.Background(), full, strings.NewReader(stdin), &out, &errOut)
	return out.String(), err
}

func (h *harness) mustRun(stdin string, args ...string) string {
	h.t.Helper()
	out, err := h.run(stdin, args...)
	if err != nil {
		h.t.Fatalf("pointeuse %v: %v", args, err)
	}
	return out
}

func TestPointeuse_Flow(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("", "register", "--email", "club@example.org", "--password", "s3cret!", "--name", "Club")
	if !strings.Contains(out, "waiting for activation") {
		t.Fatalf("unexpected register output %q", out)
	}
	if _, err := h.run("", "login", "--email", "club@example.org", "--password", "s3cret!"); err == nil {
		t.Fatal("expected login to fail before activation")
	}
	if _, err := h.gate.SetActivation(context.Background(), "club@example.org", true); err != nil {
		t.Fatalf("activate: %v", err)
	}
	h.mustRun("", "login", "--email", "club@example.org", "--password", "s3cret!")

	cfg, err := loadClientConfig(h.configPath)
	if err != nil || !strings.HasPrefix(cfg.Token, auth.TokenPrefix) {
		t.Fatalf("expected the token saved, got %+v (%v)", cfg, err)
	}
	if info, err := os.Stat(h.configPath); err != nil || info.Mode().Perm() != 0o600 {
		t.Fatalf("expected config with mode 0600, got %v (%v)", info, err)
	}

	now := time.Now()
	eventID := strings.TrimSpace(h.mustRun("", "create",
		"--name", "Concert",
		"--start", now.Add(-time.Hour).Format(time.RFC3339),
		"--end", now.Add(time.Hour).Format(time.RFC3339),
	))
	if eventID == "" {
		t.Fatal("expected event id")
	}
	if out := h.mustRun("", "events"); !strings.Contains(out, "Concert") || !strings.Contains(out, "active") {
		t.Fatalf("unexpected events output %q", out)
	}

	if out := h.mustRun("", "tap", eventID); out != "total 1\n" {
		t.Fatalf("unexpected tap output %q", out)
	}
	if out := h.mustRun("", "tap", eventID, "-"); out != "total 0\n" {
		t.Fatalf("unexpected tap output %q", out)
	}
	if out := h.mustRun("", "tap", eventID, "-"); !strings.Contains(out, "total is 0") {
		t.Fatalf("expected rejection with total, got %q", out)
	}

	h.down.Store(true)
	if out := h.mustRun("", "tap", eventID, "+"); !strings.Contains(out, "offline: tap queued (1 waiting)") {
		t.Fatalf("expected queued tap, got %q", out)
	}
	if out := h.mustRun("", "tap", eventID, "+"); !strings.Contains(out, "(2 waiting)") {
		t.Fatalf("expected second queued tap, got %q", out)
	}
	if out := h.mustRun("", "sync"); out != "sent 0, dropped 0, queued 2\n" {
		t.Fatalf("unexpected sync while down %q", out)
	}

	h.down.Store(false)
	if out := h.mustRun("", "sync"); out != "sent 2, dropped 0, queued 0\n" {
		t.Fatalf("unexpected sync %q", out)
	}

	out = h.mustRun("+\n-\nnope\n+\nq\n", "scan", "--probe", "1h", eventID)
	for _, want := range []string{"Concert (active), total 2", "total 3", "total 2", "type + for an entry"} {
		if !strings.Contains(out, want) {
			t.Fatalf("scan output %q lacks %q", out, want)
		}
	}

	if out := h.mustRun("", "recent", "--limit", "2", eventID); strings.Count(out, "\n") != 2 || !strings.Contains(out, "entry") {
		t.Fatalf("unexpected recent output %q", out)
	}
	if out := h.mustRun("", "report", "--interval", "1hour", eventID); !strings.Contains(out, "total 3") {
		t.Fatalf("unexpected report output %q", out)
	}

	pdfPath := filepath.Join(t.TempDir(), "concert.pdf")
	h.mustRun("", "pdf", "--out", pdfPath, eventID)
	if data, err := os.ReadFile(pdfPath); err != nil || string(data) != "%PDF-1.4" {
		t.Fatalf("unexpected pdf %q (%v)", data, err)
	}

	h.mustRun("", "logout")
	if cfg, _ := loadClientConfig(h.configPath); cfg.Token != "" {
		t.Fatal("expected token cleared")
	}
	if _, err := h.run("", "events"); err == nil {
		t.Fatal("expected events to fail after logout")
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	t.Parallel()
	var out, errOut bytes.Buffer
	err := run(context.Background(), []string{"--config", filepath.Join(t.TempDir(), "c.yaml"), "dance"}, strings.NewReader(""), &out, &errOut)
	if err == nil || !strings.Contains(errOut.String(), "commands:") {
		t.Fatalf("expected usage and error, got %v %q", err, errOut.String())
	}
}

func TestParseWhen(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"2025-05-17 20:30", "2025-05-17T20:30", "2025-05-17T20:30:00+02:00"} {
		got, err := parseWhen(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if got.Minute() != 30 {
			t.Fatalf("%q parsed as %v", in, got)
		}
	}
	if _, err := parseWhen("tomorrow"); err == nil {
		t.Fatal("expected error")
	}
}

func TestLogin_PasswordNeedsTerminal(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("", "login", "--email", "club@example.org")
	if err == nil || !strings.Contains(err.Error(), "--password is required") {
		t.Fatalf("expected a missing password error, got %v", err)
	}
}
