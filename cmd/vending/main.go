// Command vending runs a simulated vending machine: an interactive terminal,
// a scripted demo, a concurrent customer simulation and tooling to print and
// check the transition graph.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/amp-labs/vending/catalog"
	"github.com/amp-labs/vending/cli"
	"github.com/amp-labs/vending/config"
	"github.com/amp-labs/vending/logger"
	"github.com/amp-labs/vending/money"
	"github.com/amp-labs/vending/shutdown"
	"github.com/amp-labs/vending/telemetry"
	"github.com/spf13/pflag"
)

const (
	appName         = "vending"
	shutdownTimeout = 5 * time.Second
)

var (
	errUnknownCommand = errors.New("unknown command")
	errFailed         = errors.New("command failed")
)

const usage = `Usage: vending <command> [flags]

Commands:
  interactive   drive the machine from a menu
  demo          replay the scripted scenarios
  catalog       list the items for sale
  graph         print the transition graph (mermaid or dot)
  validate      check the transition graph
  simulate      run concurrent customers against one machine

Run "vending <command> --help" for command flags.
`

func main() {
	ctx := shutdown.SetupHandler(context.Background())

	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)

	shutdown.Run()
	os.Exit(code)
}

// run loads configuration, sets up logging and telemetry and executes one
// command. It returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)

		return 2 //nolint:mnd
	}

	providers, err := telemetry.Initialize(ctx, cfg.Telemetry)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)

		return 2 //nolint:mnd
	}

	shutdown.BeforeShutdown(func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := providers.Shutdown(flushCtx); err != nil { //nolint:noinlineerr
			logger.Get().Error("Failed to shut down telemetry", "error", err)
		}
	})

	logger.ConfigureLogging(appName,
		append(cfg.Log.LoggerOptions(), logger.WithHandler(providers.LogHandler()))...)

	cli.SuppressBanners(cfg.NoBanner)

	a, err := newApp(cfg, stdout, stderr)
	if err != nil {
		logger.Get(ctx).Error("Failed to start", "error", err)

		return 1
	}

	if err := a.dispatch(ctx, args); err != nil { //nolint:noinlineerr
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}

		if !errors.Is(err, errFailed) {
			_, _ = fmt.Fprintln(stderr, err)
		}

		return 1
	}

	return 0
}

// app holds what every command needs.
type app struct {
	cfg       config.Config
	catalog   *catalog.Catalog
	formatter *money.Formatter
	stdout    io.Writer
	stderr    io.Writer
}

func newApp(cfg config.Config, stdout, stderr io.Writer) (*app, error) {
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:       cfg,
		catalog:   cat,
		formatter: money.NewFormatter(cfg.Currency, cfg.Language),
		stdout:    stdout,
		stderr:    stderr,
	}, nil
}

func (a *app) dispatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		_, _ = fmt.Fprint(a.stderr, usage)

		return errFailed
	}

	name, rest := args[0], args[1:]

	commands := map[string]func(context.Context, []string) error{
		"interactive": a.interactive,
		"demo":        a.demo,
		"catalog":     a.listCatalog,
		"graph":       a.graph,
		"validate":    a.validate,
		"simulate":    a.simulate,
	}

	cmd, ok := commands[name]
	if !ok {
		if name == "help" || name == "-h" || name == "--help" {
			_, _ = fmt.Fprint(a.stdout, usage)

			return nil
		}

		_, _ = fmt.Fprint(a.stderr, usage)

		return fmt.Errorf("%w: %q", errUnknownCommand, name)
	}

	return cmd(logger.WithSubsystem(ctx, name), rest)
}

func (a *app) flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.stderr)

	return fs
}

func (a *app) println(args ...any) {
	_, _ = fmt.Fprintln(a.stdout, args...)
}

func (a *app) print(s string) {
	_, _ = fmt.Fprint(a.stdout, s)
}
