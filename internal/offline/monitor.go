package offline

import (
	"context"
	"log/slog"
	"time"
)

// Prober checks whether the server answers.
type Prober interface {
	Health(ctx context.Context) error
}

// Monitor polls the server health endpoint and reports every result to
// its callback. Transitions are logged.
type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	report   func(ctx context.Context, online bool)
}

func NewMonitor(prober Prober, interval time.Duration, logger *slog.Logger, report func(ctx context.Context, online bool)) *Monitor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := interval / 2
	if timeout <= 0 || timeout > 5*time.Second {
		timeout = 5 * time.Second
	}
	return &Monitor{
		prober:   prober,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		report:   report,
	}
}

// Run probes immediately and then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	known, last := false, false
	for {
		online := m.probe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !known || online != last {
			m.logger.Info("connectivity changed", "online", online)
		}
		known, last = true, online
		m.report(ctx, online)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Monitor) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.prober.Health(ctx) == nil
}
