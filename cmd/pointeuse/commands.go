package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"github.com/tho-bre/event-flow/internal/client"
	"github.com/tho-bre/event-flow/internal/clock"
	"github.com/tho-bre/event-flow/internal/domain"
	"github.com/tho-bre/event-flow/internal/offline"
	"golang.org/x/term"
)

type runFunc = func(ctx context.Context, e *env, args []string) error

var commands = map[string]command{
	"register": {
		name:    "register",
		summary: "ask for an association account (an operator activates it)",
		usage:   "--email EMAIL [--password PASSWORD] --name NAME",
		flags:   registerCmd,
	},
	"login": {
		name:    "login",
		summary: "sign in and remember the session",
		usage:   "--email EMAIL [--password PASSWORD]",
		flags:   loginCmd,
	},
	"logout": {
		name:    "logout",
		summary: "end the remembered session",
		flags:   noFlags(logout),
	},
	"events": {
		name:    "events",
		summary: "list the association's events",
		flags:   noFlags(listEvents),
	},
	"create": {
		name:    "create",
		summary: "create an event",
		usage:   "--name NAME --start TIME --end TIME",
		flags:   createCmd,
	},
	"tap": {
		name:    "tap",
		summary: "record one entry (+) or exit (-)",
		usage:   "EVENT_ID [+|-]",
		flags:   noFlags(tap),
	},
	"scan": {
		name:    "scan",
		summary: "read + and - lines from stdin and record them as taps",
		usage:   "[--probe DURATION] EVENT_ID",
		flags:   scanCmd,
	},
	"recent": {
		name:    "recent",
		summary: "show the latest taps of an event",
		usage:   "[--limit N] EVENT_ID",
		flags:   recentCmd,
	},
	"sync": {
		name:    "sync",
		summary: "replay taps queued while offline",
		flags:   noFlags(syncQueue),
	},
	"report": {
		name:    "report",
		summary: "print the attendance report of an event",
		usage:   "[--interval 30min|1hour|3hours] EVENT_ID",
		flags:   reportCmd,
	},
	"pdf": {
		name:    "pdf",
		summary: "download the PDF report of an event",
		usage:   "[--interval 30min|1hour|3hours] [--out FILE] EVENT_ID",
		flags:   pdfCmd,
	},
}

func noFlags(fn runFunc) func(*pflag.FlagSet) runFunc {
	return func(*pflag.FlagSet) runFunc { return fn }
}

func registerCmd(fs *pflag.FlagSet) runFunc {
	email := fs.String("email", "", "contact email")
	password := fs.String("password", "", "password (prompted when omitted)")
	name := fs.String("name", "", "association name")
	return func(ctx context.Context, e *env, _ []string) error {
		if err := e.promptPassword(password); err != nil {
			return err
		}
		err := e.api.Register(ctx, *email, *password, *name)
		if errors.Is(err, domain.ErrPendingActivation) {
			fmt.Fprintln(e.stdout, "account created, waiting for activation")
			return nil
		}
		return err
	}
}

func loginCmd(fs *pflag.FlagSet) runFunc {
	email := fs.String("email", "", "contact email")
	password := fs.String("password", "", "password (prompted when omitted)")
	return func(ctx context.Context, e *env, _ []string) error {
		if *email == "" {
			*email = e.cfg.Email
		}
		if err := e.promptPassword(password); err != nil {
			return err
		}
		session, err := e.api.Login(ctx, *email, *password)
		if err != nil {
			return err
		}
		e.cfg.Token = session.Token
		e.cfg.Email = session.Association.Email
		if err := e.save(); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "signed in as %s until %s\n", session.Association.Name, session.ExpiresAt.Local().Format(time.DateTime))
		return nil
	}
}

// promptPassword fills an empty password from the terminal with echo off.
func (e *env) promptPassword(password *string) error {
	if *password != "" {
		return nil
	}
	f, ok := e.stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return errors.New("--password is required when stdin is not a terminal")
	}
	fmt.Fprint(e.stderr, "Password: ")
	secret, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(e.stderr)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	*password = string(secret)
	return nil
}

func logout(ctx context.Context, e *env, _ []string) error {
	if e.cfg.Token == "" {
		return nil
	}
	if err := e.api.Logout(ctx); err != nil && !errors.Is(err, domain.ErrAuthFailed) {
		return err
	}
	e.cfg.Token = ""
	return e.save()
}

func listEvents(ctx context.Context, e *env, _ []string) error {
	events, err := e.api.Events(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTART\tEND\tSTATUS\tTOTAL")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			ev.ID, ev.Name,
			ev.StartsAt.Local().Format("2006-01-02 15:04"),
			ev.EndsAt.Local().Format("2006-01-02 15:04"),
			ev.Status, ev.Total,
		)
	}
	return tw.Flush()
}

// timeLayouts are accepted by --start and --end, local time unless the
// value carries an offset.
var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04"}

func parseWhen(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q (use YYYY-MM-DD HH:MM)", s)
}

func createCmd(fs *pflag.FlagSet) runFunc {
	name := fs.String("name", "", "event name")
	start := fs.String("start", "", "start time")
	end := fs.String("end", "", "end time")
	return func(ctx context.Context, e *env, _ []string) error {
		startsAt, err := parseWhen(*start)
		if err != nil {
			return err
		}
		endsAt, err := parseWhen(*end)
		if err != nil {
			return err
		}
		ev, err := e.api.CreateEvent(ctx, *name, startsAt, endsAt)
		if err != nil {
			return err
		}
		fmt.Fprintln(e.stdout, ev.ID)
		return nil
	}
}

func eventArg(args []string) (string, error) {
	if len(args) == 0 || args[0] == "" {
		return "", errors.New("event id required")
	}
	return args[0], nil
}

// openSyncer opens the outbox and a syncer on top of it. The caller
// closes the outbox.
func openSyncer(e *env) (*offline.Syncer, *offline.Outbox, error) {
	path := e.cfg.outboxPath(e.configPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("create outbox dir: %w", err)
	}
	outbox, err := offline.OpenOutbox(path, e.logger)
	if err != nil {
		return nil, nil, err
	}
	return offline.NewSyncer(e.api, outbox, clock.NewSystem(), e.logger), outbox, nil
}

func printOutcome(ctx context.Context, e *env, out offline.TapOutcome, err error, waiting func(context.Context) (int, error)) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Total != nil {
		fmt.Fprintf(e.stdout, "rejected: %s, total is %d\n", apiErr.Message, *apiErr.Total)
		return nil
	}
	if err != nil {
		return err
	}
	if out.Queued {
		n, _ := waiting(ctx)
		fmt.Fprintf(e.stdout, "offline: tap queued (%d waiting)\n", n)
		return nil
	}
	fmt.Fprintf(e.stdout, "total %d\n", out.Total)
	return nil
}

func tap(ctx context.Context, e *env, args []string) error {
	eventID, err := eventArg(args)
	if err != nil {
		return err
	}
	dir := domain.DirectionIncrement
	if len(args) > 1 {
		if dir, err = domain.ParseDirection(args[1]); err != nil {
			return err
		}
	}

	syncer, outbox, err := openSyncer(e)
	if err != nil {
		return err
	}
	defer outbox.Close()

	// Older queued taps go first.
	if _, err := syncer.Flush(ctx); err != nil {
		return err
	}
	out, err := syncer.Tap(ctx, eventID, dir)
	return printOutcome(ctx, e, out, err, outbox.Len)
}

func scanCmd(fs *pflag.FlagSet) runFunc {
	probe := fs.Duration("probe", 5*time.Second, "connectivity check period")
	return func(ctx context.Context, e *env, args []string) error {
		eventID, err := eventArg(args)
		if err != nil {
			return err
		}
		syncer, outbox, err := openSyncer(e)
		if err != nil {
			return err
		}
		defer outbox.Close()

		if ev, err := e.api.Event(ctx, eventID); err == nil {
			fmt.Fprintf(e.stdout, "%s (%s), total %d\n", ev.Name, ev.Status, ev.Total)
		} else if !client.IsTransient(err) {
			return err
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		monitor := offline.NewMonitor(e.api, *probe, e.logger, syncer.SetConnectivity)
		go func() { _ = monitor.Run(ctx) }()

		lines := bufio.NewScanner(e.stdin)
		for lines.Scan() {
			input := strings.TrimSpace(lines.Text())
			if input == "" {
				continue
			}
			if input == "q" || input == "quit" {
				break
			}
			dir, err := domain.ParseDirection(input)
			if err != nil {
				fmt.Fprintln(e.stdout, "type + for an entry, - for an exit, q to quit")
				continue
			}
			out, err := syncer.Tap(ctx, eventID, dir)
			if err := printOutcome(ctx, e, out, err, outbox.Len); err != nil {
				fmt.Fprintf(e.stdout, "error: %v\n", err)
			}
		}
		cancel()

		// One last replay before leaving.
		rep, err := syncer.Flush(context.WithoutCancel(ctx))
		if err != nil {
			return err
		}
		if rep.Remaining > 0 {
			fmt.Fprintf(e.stdout, "%d taps still queued, run pointeuse sync when online\n", rep.Remaining)
		}
		return lines.Err()
	}
}

func recentCmd(fs *pflag.FlagSet) runFunc {
	limit := fs.Int("limit", 5, "number of taps")
	return func(ctx context.Context, e *env, args []string) error {
		eventID, err := eventArg(args)
		if err != nil {
			return err
		}
		taps, err := e.api.RecentTaps(ctx, eventID, *limit)
		if err != nil {
			return err
		}
		for _, t := range taps {
			fmt.Fprintf(e.stdout, "%s  %s\n", t.Timestamp.Local().Format("15:04:05"), t.Kind)
		}
		return nil
	}
}

func syncQueue(ctx context.Context, e *env, _ []string) error {
	syncer, outbox, err := openSyncer(e)
	if err != nil {
		return err
	}
	defer outbox.Close()

	rep, err := syncer.Flush(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "sent %d, dropped %d, queued %d\n", rep.Sent, rep.Dropped, rep.Remaining)
	return nil
}

func reportCmd(fs *pflag.FlagSet) runFunc {
	interval := fs.String("interval", "30min", "slot width")
	return func(ctx context.Context, e *env, args []string) error {
		eventID, err := eventArg(args)
		if err != nil {
			return err
		}
		rep, err := e.api.Report(ctx, eventID, *interval)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "%s, %s\n\n", rep.Event.Name, rep.Event.StartsAt.Local().Format("02/01/2006"))
		tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "SLOT\tIN\tOUT\tNET\t")
		for _, b := range rep.Buckets {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%+d\t\n", b.Label, b.Entries, b.Exits, b.Net)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "\ntotal %d\n", rep.Total)
		return nil
	}
}

func pdfCmd(fs *pflag.FlagSet) runFunc {
	interval := fs.String("interval", "30min", "slot width")
	out := fs.StringP("out", "o", "", "output file (default: name suggested by the server)")
	return func(ctx context.Context, e *env, args []string) error {
		eventID, err := eventArg(args)
		if err != nil {
			return err
		}
		data, name, err := e.api.ReportPDF(ctx, eventID, *interval)
		if err != nil {
			return err
		}
		path := *out
		if path == "" {
			path = filepath.Base(name)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintln(e.stdout, path)
		return nil
	}
}
