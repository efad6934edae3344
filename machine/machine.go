// Package machine owns the mutable state of a vending machine. A Machine
// evaluates each event against the transition rules, checks the proposed
// result against the invariants and commits it atomically.
package machine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/amp-labs/vending/catalog"
	"github.com/amp-labs/vending/logger"
	"github.com/amp-labs/vending/money"
	"github.com/amp-labs/vending/statemachine"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Machine is a single vending machine. It is safe for concurrent use; events
// are applied one at a time in lock order.
type Machine struct {
	id      string
	label   string
	catalog *catalog.Catalog
	log     *slog.Logger
	tracer  trace.Tracer
	rules   func(statemachine.State, statemachine.Event, statemachine.Data) statemachine.Result

	mu    sync.Mutex
	state statemachine.State
	data  statemachine.Data
	// txID identifies the customer transaction; set while money or a
	// selection is held.
	txID string
}

// New creates a machine in Idle with no balance, selling from cat.
func New(cat *catalog.Catalog, opts ...Option) *Machine {
	if cat == nil {
		cat = catalog.Default()
	}

	m := &Machine{
		id:      uuid.NewString(),
		catalog: cat,
		tracer:  defaultTracer(),
		rules:   statemachine.Evaluate,
		state:   statemachine.Idle,
		data:    statemachine.InitialData(),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.label = machineLabel(m.id)

	recordStatus(m.label, m.Status())

	return m
}

// ID returns the machine id.
func (m *Machine) ID() string {
	return m.id
}

// Catalog returns the items the machine sells.
func (m *Machine) Catalog() *catalog.Catalog {
	return m.catalog
}

// Status returns a snapshot of the current state.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.statusLocked()
}

func (m *Machine) statusLocked() Status {
	return project(m.id, m.txID, m.state, m.data)
}

// Dispatch applies ev. A declined event, or one whose proposed result breaks
// an invariant, leaves the machine untouched.
func (m *Machine) Dispatch(ctx context.Context, ev statemachine.Event) Outcome {
	start := time.Now()

	ctx = logger.WithMachineId(ctx, m.id)

	ctx, span := m.startDispatchSpan(ctx, ev)
	defer span.End()

	m.mu.Lock()

	from := m.state
	prior := m.data
	txID := m.txID

	res := m.rules(from, ev, prior)

	if res.Accepted {
		if err := statemachine.CheckInvariants(res.Next, res.Data); err != nil { //nolint:noinlineerr
			res = violation(from, ev, prior, err)
		}
	}

	if res.Accepted {
		m.state = res.Next
		m.data = res.Data
		m.txID = nextTransaction(txID, res.Data)
	}

	status := m.statusLocked()

	if res.Accepted {
		// Gauges are set under the lock so they follow commit order.
		recordStatus(m.label, status)
	}

	m.mu.Unlock()

	out := Outcome{
		Event:    ev,
		From:     from,
		To:       res.Next,
		Accepted: res.Accepted,
		NoOp:     res.NoOp,
		Reason:   res.Decline,
		Message:  res.Message,
		Change:   res.Change,
		Refund:   res.Refund,
		Sold:     res.Sold,
		Status:   status,
	}

	// Log against the transaction the event belonged to, or the one it opened.
	if txID == "" {
		txID = status.TransactionID
	}

	if txID != "" {
		ctx = logger.WithTransactionId(ctx, txID)
	}

	elapsed := time.Since(start)

	finishDispatchSpan(span, out)
	recordOutcome(m.label, out, elapsed.Seconds())
	m.logOutcome(ctx, out, elapsed)

	return out
}

// violation turns an invariant failure into a decline that proposes nothing.
func violation(state statemachine.State, ev statemachine.Event, data statemachine.Data, err error) statemachine.Result {
	d := &statemachine.Decline{
		Kind:    statemachine.InvariantViolation,
		State:   state,
		Event:   ev.Kind,
		Message: "The machine refused an inconsistent transition.",
		Cause:   logger.Annotate(err, "state", state.String(), "event", ev.String()),
	}

	return statemachine.Result{
		Accepted: false,
		Next:     state,
		Data:     data,
		Decline:  d,
		Message:  d.Message,
	}
}

// nextTransaction keeps the current transaction id while money or a
// selection is held, opens one when a balance first appears and closes it
// when everything has been handed out.
func nextTransaction(current string, after statemachine.Data) string {
	holding := after.Balance.IsPositive() || after.Selection != nil

	switch {
	case !holding:
		return ""
	case current != "":
		return current
	default:
		return uuid.NewString()
	}
}

// InsertCoin adds amount to the balance.
func (m *Machine) InsertCoin(ctx context.Context, amount money.Amount) Outcome {
	return m.Dispatch(ctx, statemachine.InsertCoin(amount))
}

// SelectProduct selects the catalog item with the given id. An id the
// catalog does not carry is declined with UnknownItem.
func (m *Machine) SelectProduct(ctx context.Context, itemID string) Outcome {
	return m.Dispatch(ctx, m.SelectEvent(itemID))
}

// SelectEvent builds the SelectProduct event for itemID against this
// machine's catalog.
func (m *Machine) SelectEvent(itemID string) statemachine.Event {
	item, err := m.catalog.Lookup(itemID)
	if err != nil {
		return statemachine.SelectUnknown(itemID)
	}

	return statemachine.SelectProduct(item)
}

// Dispense releases the selected item and hands back any change.
func (m *Machine) Dispense(ctx context.Context) Outcome {
	return m.Dispatch(ctx, statemachine.Dispense())
}

// ReturnChange cancels the transaction and refunds the balance.
func (m *Machine) ReturnChange(ctx context.Context) Outcome {
	return m.Dispatch(ctx, statemachine.ReturnChange())
}

// MarkFault takes the machine out of order, keeping any balance.
func (m *Machine) MarkFault(ctx context.Context) Outcome {
	return m.Dispatch(ctx, statemachine.Fault())
}

// MarkRepaired returns the machine to service. The balance is left as is.
func (m *Machine) MarkRepaired(ctx context.Context) Outcome {
	return m.Dispatch(ctx, statemachine.Repair())
}

// Reset re-initialises the machine: Idle, no balance, no selection,
// operational. Identity and catalog are kept. Any held balance is dropped and
// reported in the log.
func (m *Machine) Reset(ctx context.Context) Status {
	ctx = logger.WithMachineId(ctx, m.id)

	m.mu.Lock()

	prevState := m.state
	discarded := m.data.Balance
	txID := m.txID

	m.state = statemachine.Idle
	m.data = statemachine.InitialData()
	m.txID = ""

	status := m.statusLocked()
	recordStatus(m.label, status)

	m.mu.Unlock()

	if txID != "" {
		ctx = logger.WithTransactionId(ctx, txID)
	}

	log := m.loggerFor(ctx)

	if discarded.IsPositive() {
		discardedCents.WithLabelValues(m.label).Add(float64(discarded.Cents()))
		log.WarnContext(ctx, "Machine reset discarded a balance",
			"from", prevState.String(), "discarded", discarded.String())
	} else {
		log.InfoContext(ctx, "Machine reset", "from", prevState.String())
	}

	return status
}

func (m *Machine) String() string {
	return fmt.Sprintf("Machine(%s)", m.id)
}
