// pointeuse is the door scanner client: it signs an association in, lists
// its events, records entries and exits, and exports reports. Taps made
// while the server is unreachable are queued on disk and replayed when it
// answers again.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/tho-bre/event-flow/internal/client"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every command runs with.
type env struct {
	configPath string
	cfg        clientConfig
	api        *client.Client
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
	logger     *slog.Logger
}

func (e *env) save() error {
	return saveClientConfig(e.configPath, e.cfg)
}

type command struct {
	name    string
	summary string
	usage   string
	flags   func(fs *pflag.FlagSet) func(ctx context.Context, e *env, args []string) error
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	global := pflag.NewFlagSet("pointeuse", pflag.ContinueOnError)
	global.SetOutput(stderr)
	global.SetInterspersed(false)
	configPath := global.String("config", defaultConfigPath(), "client config file")
	server := global.String("server", "", "API base URL (overrides the config file)")
	verbose := global.BoolP("verbose", "v", false, "log sync activity")
	global.Usage = func() { printUsage(stderr, global) }

	if err := global.Parse(args); err != nil {
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		printUsage(stderr, global)
		return pflag.ErrHelp
	}

	cmd, ok := commands[rest[0]]
	if !ok {
		printUsage(stderr, global)
		return fmt.Errorf("unknown command %q", rest[0])
	}

	cfg, err := loadClientConfig(*configPath)
	if err != nil {
		return err
	}
	if *server != "" {
		cfg.Server = *server
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	e := &env{
		configPath: *configPath,
		cfg:        cfg,
		api:        client.New(cfg.Server, client.WithToken(cfg.Token)),
		stdin:      stdin,
		stdout:     stdout,
		stderr:     stderr,
		logger:     slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})),
	}

	fs := pflag.NewFlagSet(cmd.name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: pointeuse %s %s\n\n%s\n\n", cmd.name, cmd.usage, cmd.summary)
		fs.PrintDefaults()
	}
	runCmd := cmd.flags(fs)
	if err := fs.Parse(rest[1:]); err != nil {
		return err
	}
	return runCmd(ctx, e, fs.Args())
}

func printUsage(w io.Writer, global *pflag.FlagSet) {
	fmt.Fprintln(w, "usage: pointeuse [global flags] <command> [flags]")
	fmt.Fprintln(w, "\ncommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-10s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w, "\nglobal flags:")
	global.PrintDefaults()
}
