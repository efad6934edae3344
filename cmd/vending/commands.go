package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/amp-labs/vending/cli"
	"github.com/amp-labs/vending/machine"
	"github.com/amp-labs/vending/simulation"
	"github.com/amp-labs/vending/statemachine"
	"github.com/amp-labs/vending/statemachine/validator"
	"github.com/amp-labs/vending/statemachine/visualizer"
)

func (a *app) newMachine() *machine.Machine {
	return machine.New(a.catalog, machine.WithID(a.cfg.MachineID))
}

func (a *app) interactive(ctx context.Context, args []string) error {
	fs := a.flags("interactive")
	if err := fs.Parse(args); err != nil { //nolint:noinlineerr
		return err
	}

	if err := a.serveMetrics(ctx); err != nil { //nolint:noinlineerr
		return err
	}

	session := &cli.Session{
		Machine:   a.newMachine(),
		Formatter: a.formatter,
		Prompter:  cli.Prompter{Stdin: os.Stdin, Stdout: os.Stdout},
		Out:       a.stdout,
	}

	return session.Run(ctx)
}

func (a *app) listCatalog(_ context.Context, args []string) error {
	fs := a.flags("catalog")
	asJSON := fs.Bool("json", false, "print the catalog as JSON")

	if err := fs.Parse(args); err != nil { //nolint:noinlineerr
		return err
	}

	if *asJSON {
		out, err := json.MarshalIndent(a.catalog.Items(), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal catalog: %w", err)
		}

		a.println(string(out))

		return nil
	}

	a.print(cli.CatalogTable(a.catalog, a.formatter))

	return nil
}

func (a *app) graph(_ context.Context, args []string) error {
	fs := a.flags("graph")
	format := fs.StringP("format", "f", "mermaid", "output format: mermaid or dot")
	highlight := fs.StringSlice("highlight", nil, "states to highlight")
	direction := fs.String("direction", "LR", "layout direction: LR or TD")
	noGuards := fs.Bool("no-guards", false, "omit guard conditions from edge labels")
	noOps := fs.Bool("noops", false, "include events that change nothing")
	fenced := fs.Bool("fenced", false, "wrap mermaid output in a markdown code fence")

	if err := fs.Parse(args); err != nil { //nolint:noinlineerr
		return err
	}

	f, err := visualizer.ParseFormat(*format)
	if err != nil {
		return err
	}

	states := make([]statemachine.State, 0, len(*highlight))

	for _, name := range *highlight {
		s, err := statemachine.ParseState(name)
		if err != nil {
			return err
		}

		states = append(states, s)
	}

	opts := visualizer.DefaultOptions().
		WithShowGuards(!*noGuards).
		WithShowNoOps(*noOps).
		WithDirection(*direction).
		WithHighlight(states...).
		WithFenced(*fenced)

	out, err := visualizer.Generate(f, opts)
	if err != nil {
		return err
	}

	a.print(out)

	return nil
}

func (a *app) validate(_ context.Context, args []string) error {
	fs := a.flags("validate")
	strict := fs.Bool("strict", false, "treat warnings as errors")

	if err := fs.Parse(args); err != nil { //nolint:noinlineerr
		return err
	}

	result := validator.Validate()
	if *strict {
		result = validator.ValidateStrict()
	}

	a.println(result.String())

	if result.HasErrors() {
		return errFailed
	}

	return nil
}

func (a *app) simulate(ctx context.Context, args []string) error {
	fs := a.flags("simulate")
	customers := fs.IntP("customers", "n", 100, "number of simulated customers") //nolint:mnd
	workers := fs.IntP("workers", "w", 4, "concurrent customers")                //nolint:mnd
	faultEvery := fs.Int("fault-every", 0, "every n-th customer faults and repairs the machine")
	cancelEvery := fs.Int("cancel-every", 0, "every n-th customer asks for a refund instead of buying")
	seed := fs.Uint64("seed", 1, "random seed")
	mailbox := fs.Int("mailbox", 64, "owner mailbox size") //nolint:mnd

	if err := fs.Parse(args); err != nil { //nolint:noinlineerr
		return err
	}

	if err := a.serveMetrics(ctx); err != nil { //nolint:noinlineerr
		return err
	}

	owner := machine.Serve(ctx, a.newMachine(), *mailbox)
	defer owner.Wait()
	defer owner.Stop()

	report, err := simulation.Run(ctx, owner, simulation.Options{
		Customers:   *customers,
		Workers:     *workers,
		FaultEvery:  *faultEvery,
		CancelEvery: *cancelEvery,
		Seed:        *seed,
	})
	if report != nil {
		a.printReport(report)
	}

	return err
}

func (a *app) printReport(r *simulation.Report) {
	a.print(cli.BannerAutoWidth(fmt.Sprintf("Simulation: %d customers", r.Customers), cli.AlignCenter))

	for _, id := range r.SoldItems() {
		a.println(fmt.Sprintf("  sold %-8s x%d", id, r.Sales[id]))
	}

	for _, kind := range statemachine.EventKinds() {
		if n := r.Events[kind.String()]; n > 0 {
			a.println(fmt.Sprintf("  %-14s %d events", kind, n))
		}
	}

	for reason, n := range r.Declines {
		a.println(fmt.Sprintf("  declined %-18s %d", reason, n))
	}

	a.println("  coins in:  " + a.formatter.Format(r.Coins))
	a.println("  revenue:   " + a.formatter.Format(r.Revenue))
	a.println("  change:    " + a.formatter.Format(r.Change))
	a.println("  refunds:   " + a.formatter.Format(r.Refunds))
	a.print(cli.StatusPanel(r.Final, a.catalog, a.formatter))
}
