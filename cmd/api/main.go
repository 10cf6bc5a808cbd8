package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/pflag"
	"github.com/tho-bre/event-flow/internal/app"
	"github.com/tho-bre/event-flow/internal/clock"
	"github.com/tho-bre/event-flow/internal/config"
	"github.com/tho-bre/event-flow/internal/domain"
	"github.com/tho-bre/event-flow/internal/realtime"
	"github.com/tho-bre/event-flow/internal/report"
	"github.com/tho-bre/event-flow/internal/storage/memory"
	"github.com/tho-bre/event-flow/internal/storage/postgres"
	transporthttp "github.com/tho-bre/event-flow/internal/transport/http"
	"github.com/tho-bre/event-flow/migrations"
)

const shutdownTimeout = 10 * time.Second

const usage = `usage: api [command]

commands:
  serve                     run the HTTP API (default)
  activate --email EMAIL    let an association sign in
  deactivate --email EMAIL  block an association and end its sessions
`

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := "serve", os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "activate":
		err = setActivation(ctx, cfg, logger, args, true)
	case "deactivate":
		err = setActivation(ctx, cfg, logger, args, false)
	case "help":
		fmt.Fprint(os.Stdout, usage)
	default:
		fmt.Fprint(os.Stderr, usage)
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		logger.Error(cmd+" failed", "err", err)
		os.Exit(1)
	}
}

// backend is the storage selected by STORAGE_DRIVER.
type backend struct {
	events   eventStore
	accounts app.AccountRepository
	changes  *realtime.Broker[domain.Change]
	// listen relays database notifications into changes; nil when the
	// store publishes directly.
	listen func(ctx context.Context) error
	close  func()
}

type eventStore interface {
	app.CatalogRepository
	app.LedgerRepository
	app.ReportRepository
}

func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backend, error) {
	changes := realtime.NewBroker[domain.Change]()

	if cfg.StorageDriver == config.DriverMemory {
		logger.Warn("using in-memory storage, data is lost on exit")
		store := memory.New(memory.WithChangeHook(changes.Publish))
		return &backend{
			events:   store,
			accounts: store,
			changes:  changes,
			close:    changes.Close,
		}, nil
	}

	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}
	if err := pool.Ping(startupCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	listener := postgres.NewListener(pool, changes.Publish, logger)
	return &backend{
		events:   postgres.NewEventRepository(pool),
		accounts: postgres.NewAccountRepository(pool),
		changes:  changes,
		listen:   listener.Run,
		close: func() {
			changes.Close()
			pool.Close()
		},
	}, nil
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close()

	if be.listen != nil {
		go func() {
			if err := be.listen(ctx); err != nil {
				logger.Error("change listener stopped", "err", err)
			}
		}()
	}

	clk := clock.NewSystem()
	gate := app.NewGateService(be.accounts, clk, app.WithSessionTTL(cfg.SessionTTL))
	var authLimiter *transporthttp.RateLimiter
	if cfg.AuthPerMinute > 0 {
		authLimiter = transporthttp.NewRateLimiter(cfg.AuthPerMinute, time.Minute)
	}
	handler := transporthttp.NewRouter(transporthttp.Services{
		Gate:    gate,
		Catalog: app.NewCatalogService(be.events, clk),
		Ledger: app.NewLedgerService(be.events, clk,
			app.WithMaxAttempts(cfg.TapMaxAttempts),
			app.WithRetryBudget(cfg.TapRetryBudget),
			app.WithMaxLogEntries(cfg.MaxLogEntries),
		),
		Reports:     app.NewReportService(be.events, cfg.Location()),
		PDF:         report.NewPDFRenderer(cfg.ChromiumPath, cfg.PDFTimeout),
		Changes:     be.changes,
		Clock:       clk,
		Logger:      logger,
		CORSOrigins: cfg.CORSOrigins,
		AuthLimiter: authLimiter,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("api listening", "port", cfg.Port, "storage", cfg.StorageDriver)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	// Watch sockets are hijacked and not tracked by Shutdown; closing the
	// broker ends them.
	be.changes.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server shutdown error", "err", err)
	}
	logger.Info("server stopped")
	return nil
}

func setActivation(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string, active bool) error {
	name := "activate"
	if !active {
		name = "deactivate"
	}
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	email := flags.String("email", "", "association email")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return fmt.Errorf("--email is required")
	}
	if cfg.StorageDriver == config.DriverMemory {
		return fmt.Errorf("%s needs a persistent storage driver", name)
	}

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close()

	gate := app.NewGateService(be.accounts, clock.NewSystem())
	assoc, err := gate.SetActivation(ctx, *email, active)
	if err != nil {
		return err
	}
	logger.Info("association updated", "id", assoc.ID, "email", assoc.Email, "active", assoc.Active)
	return nil
}
