// Package simulation drives one machine with many concurrent customers. Each
// customer is a task on a pond worker pool that talks to the machine through
// its Owner, so the machine sees interleaved purchase flows.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"facette.io/natsort"
	"github.com/alitto/pond/v2"
	"github.com/amp-labs/vending/logger"
	"github.com/amp-labs/vending/machine"
	"github.com/amp-labs/vending/money"
	"github.com/amp-labs/vending/statemachine"
)

var (
	// ErrNoCustomers is returned when Options asks for zero customers.
	ErrNoCustomers = errors.New("simulation needs at least one customer")
	// ErrMoneyNotConserved means coins in did not match sales, money out and
	// the final balance.
	ErrMoneyNotConserved = errors.New("money not conserved")
)

const (
	defaultWorkers = 4
	defaultSeed    = 1
)

// Coins are the denominations simulated customers insert.
var Coins = []money.Amount{5, 10, 25, 100} //nolint:gochecknoglobals

// Options controls a simulation run.
type Options struct {
	Customers int
	Workers   int
	// FaultEvery makes every n-th customer an operator who faults and repairs
	// the machine. Zero disables faults.
	FaultEvery int
	// CancelEvery makes every n-th customer walk away with a refund after
	// paying. Zero disables cancellations.
	CancelEvery int
	Seed        uint64
}

// Report sums up a run.
type Report struct {
	Customers int
	Events    map[string]int
	Declines  map[string]int
	Sales     map[string]int
	Coins     money.Amount
	Revenue   money.Amount
	Change    money.Amount
	Refunds   money.Amount
	Final     machine.Status
}

// SoldItems returns the ids of sold items in natural order.
func (r *Report) SoldItems() []string {
	ids := make([]string, 0, len(r.Sales))
	for id := range r.Sales {
		ids = append(ids, id)
	}

	natsort.Sort(ids)

	return ids
}

// Conserved checks coins in = revenue + change + refunds + balance left.
func (r *Report) Conserved() error {
	out := r.Revenue.Add(r.Change).Add(r.Refunds).Add(r.Final.Balance)
	if out != r.Coins {
		return fmt.Errorf("%w: coins %s, accounted for %s", ErrMoneyNotConserved, r.Coins, out)
	}

	return nil
}

type tally struct {
	mu     sync.Mutex
	report Report
}

func (t *tally) add(out machine.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := &t.report
	r.Events[out.Event.Kind.String()]++

	if !out.Accepted {
		r.Declines[out.Kind().String()]++

		return
	}

	if out.Event.Kind == statemachine.InsertCoinEvent {
		r.Coins = r.Coins.Add(out.Event.Amount)
	}

	if out.Sold != nil {
		r.Sales[out.Sold.ID]++
		r.Revenue = r.Revenue.Add(out.Sold.Price)
	}

	r.Change = r.Change.Add(out.Change)
	r.Refunds = r.Refunds.Add(out.Refund)
}

// Run sends opts.Customers purchase flows through owner and waits for all of
// them. The returned report is complete even when the money check fails.
func Run(ctx context.Context, owner *machine.Owner, opts Options) (*Report, error) {
	if opts.Customers <= 0 {
		return nil, ErrNoCustomers
	}

	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}

	if opts.Seed == 0 {
		opts.Seed = defaultSeed
	}

	ctx = logger.WithSubsystem(ctx, "simulation")
	log := logger.Get(ctx)

	log.Info("Starting simulation", "customers", opts.Customers, "workers", opts.Workers)

	t := &tally{report: Report{
		Customers: opts.Customers,
		Events:    make(map[string]int),
		Declines:  make(map[string]int),
		Sales:     make(map[string]int),
	}}

	pool := pond.NewPool(opts.Workers, pond.WithContext(ctx))
	defer pool.StopAndWait()

	group := pool.NewGroup()

	for i := range opts.Customers {
		c := customer{
			index: i,
			owner: owner,
			opts:  opts,
			rng:   rand.New(rand.NewPCG(opts.Seed, uint64(i))), //nolint:gosec
			tally: t,
		}

		group.SubmitErr(func() error {
			return c.run(ctx)
		})
	}

	if err := group.Wait(); err != nil { //nolint:noinlineerr
		return nil, fmt.Errorf("simulation aborted: %w", err)
	}

	final, err := owner.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read final status: %w", err)
	}

	t.mu.Lock()
	report := t.report
	t.mu.Unlock()

	report.Final = final

	log.Info("Simulation finished",
		"coins", report.Coins.String(),
		"revenue", report.Revenue.String(),
		"balance", final.Balance.String())

	return &report, report.Conserved()
}

type customer struct {
	index int
	owner *machine.Owner
	opts  Options
	rng   *rand.Rand
	tally *tally
}

func (c *customer) send(ctx context.Context, ev statemachine.Event) (machine.Outcome, error) {
	out, err := c.owner.Dispatch(ctx, ev)
	if err != nil {
		return out, err
	}

	c.tally.add(out)

	return out, nil
}

func (c *customer) every(n int) bool {
	return n > 0 && c.index%n == n-1
}

func (c *customer) run(ctx context.Context) error {
	if c.every(c.opts.FaultEvery) {
		return c.operator(ctx)
	}

	m := c.owner.Machine()
	items := m.Catalog().Items()
	item := items[c.rng.IntN(len(items))]

	paid := money.Zero

	for paid < item.Price {
		coin := Coins[c.rng.IntN(len(Coins))]

		out, err := c.send(ctx, statemachine.InsertCoin(coin))
		if err != nil {
			return err
		}

		if !out.Accepted {
			// Out of order; take back whatever is in the machine.
			_, err = c.send(ctx, statemachine.ReturnChange())

			return err
		}

		paid = paid.Add(coin)
	}

	if c.every(c.opts.CancelEvery) {
		_, err := c.send(ctx, statemachine.ReturnChange())

		return err
	}

	if _, err := c.send(ctx, m.SelectEvent(item.ID)); err != nil { //nolint:noinlineerr
		return err
	}

	out, err := c.send(ctx, statemachine.Dispense())
	if err != nil {
		return err
	}

	if !out.Accepted {
		_, err = c.send(ctx, statemachine.ReturnChange())
	}

	return err
}

func (c *customer) operator(ctx context.Context) error {
	if _, err := c.send(ctx, statemachine.Fault()); err != nil { //nolint:noinlineerr
		return err
	}

	if _, err := c.send(ctx, statemachine.ReturnChange()); err != nil { //nolint:noinlineerr
		return err
	}

	_, err := c.send(ctx, statemachine.Repair())

	return err
}
