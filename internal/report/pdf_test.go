package report

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/tho-bre/event-flow/internal/aggregate"
	"github.com/tho-bre/event-flow/internal/domain"
)

func sampleDocument() Document {
	start := time.Date(2025, 5, 17, 20, 0, 0, 0, time.UTC)
	event := domain.Event{ID: "ev-1", Name: "Bal", StartsAt: start, EndsAt: start.Add(time.Hour), Total: 3}
	log := []domain.Tap{
		{Seq: 1, Kind: domain.TapEntry, At: start.Add(5 * time.Minute)},
		{Seq: 2, Kind: domain.TapEntry, At: start.Add(10 * time.Minute)},
		{Seq: 3, Kind: domain.TapEntry, At: start.Add(40 * time.Minute)},
	}
	return Document{
		Event:     event,
		Width:     aggregate.Width30m,
		Buckets:   aggregate.Collect(aggregate.Buckets(log, event.StartsAt, event.EndsAt, aggregate.Width30m)),
		Location:  time.UTC,
		Generated: start.Add(2 * time.Hour),
	}
}

func TestPDFRenderer_MissingBrowser(t *testing.T) {
	t.Parallel()

	r := NewPDFRenderer(filepath.Join(t.TempDir(), "no-such-chromium"), time.Second)
	if _, err := r.Render(context.Background(), sampleDocument()); err == nil {
		t.Fatal("expected an error without a browser")
	}
}

func TestPDFRenderer_Render(t *testing.T) {
	var path string
	for _, name := range []string{"chromium", "chromium-browser", "google-chrome", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			path = p
			break
		}
	}
	if path == "" {
		t.Skip("skipping PDF rendering: no Chromium binary on PATH")
	}

	out, err := NewPDFRenderer(path, 30*time.Second).Render(context.Background(), sampleDocument())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF")) {
		t.Fatalf("expected PDF bytes, got %q", out[:min(len(out), 16)])
	}
}
