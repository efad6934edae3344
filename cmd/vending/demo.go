package main

import (
	"context"
	"fmt"

	"github.com/amp-labs/vending/cli"
	"github.com/amp-labs/vending/machine"
	"github.com/amp-labs/vending/money"
	"github.com/amp-labs/vending/statemachine"
)

// step builds the next event against the machine, so selections resolve
// through its catalog. A nil step prints the status panel.
type step func(m *machine.Machine) statemachine.Event

type scenario struct {
	title string
	steps []step
}

func coin(amount string) step {
	return func(*machine.Machine) statemachine.Event {
		return statemachine.InsertCoin(money.MustParse(amount))
	}
}

func pick(id string) step {
	return func(m *machine.Machine) statemachine.Event {
		return m.SelectEvent(id)
	}
}

func fixed(ev statemachine.Event) step {
	return func(*machine.Machine) statemachine.Event {
		return ev
	}
}

// demoScenarios share one machine and run in order.
func demoScenarios() []scenario {
	return []scenario{
		{
			title: "Successful Purchase",
			steps: []step{
				nil,
				pick("SODA"),
				coin("1.00"),
				coin("0.50"),
				pick("SODA"),
				fixed(statemachine.Dispense()),
				nil,
			},
		},
		{
			title: "Insufficient Funds",
			steps: []step{
				coin("0.50"),
				pick("SODA"),
				coin("1.00"),
				pick("SODA"),
				fixed(statemachine.Dispense()),
			},
		},
		{
			title: "Change Return",
			steps: []step{
				coin("2.00"),
				pick("CANDY"),
				fixed(statemachine.ReturnChange()),
				nil,
			},
		},
		{
			title: "Out of Order",
			steps: []step{
				coin("1.50"),
				fixed(statemachine.Fault()),
				coin("0.50"),
				fixed(statemachine.ReturnChange()),
				fixed(statemachine.Repair()),
				nil,
			},
		},
	}
}

func (a *app) demo(ctx context.Context, args []string) error {
	fs := a.flags("demo")
	if err := fs.Parse(args); err != nil { //nolint:noinlineerr
		return err
	}

	m := machine.New(a.catalog, machine.WithID(a.cfg.MachineID))

	a.print(cli.BannerAutoWidth("Vending Machine Demo", cli.AlignCenter))
	a.print(cli.CatalogTable(a.catalog, a.formatter))

	for i, sc := range demoScenarios() {
		a.print(cli.DividerAutoWidth())
		a.println(fmt.Sprintf("=== Scenario %d: %s ===", i+1, sc.title))

		for _, s := range sc.steps {
			if s == nil {
				a.print(cli.StatusPanel(m.Status(), a.catalog, a.formatter))

				continue
			}

			ev := s(m)
			a.println(fmt.Sprintf("> %s", ev))
			a.println(cli.OutcomeLine(m.Dispatch(ctx, ev)))
		}
	}

	return nil
}
