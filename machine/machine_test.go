package machine

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/amp-labs/vending/catalog"
	"github.com/amp-labs/vending/money"
	"github.com/amp-labs/vending/statemachine"
	"github.com/neilotoole/slogt"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestMachine(t *testing.T, opts ...Option) *Machine {
	t.Helper()

	opts = append([]Option{WithID(t.Name()), WithLogger(slogt.New(t))}, opts...)

	return New(catalog.Default(), opts...)
}

func cents(c int64) money.Amount {
	return money.FromCents(c)
}

func TestNewMachine(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	st := m.Status()

	assert.Equal(t, t.Name(), m.ID())
	assert.Equal(t, statemachine.Idle, st.State)
	assert.Equal(t, "Idle", st.StateLabel)
	assert.True(t, st.Balance.IsZero())
	assert.False(t, st.HasSelection())
	assert.True(t, st.Operational)
	assert.Empty(t, st.TransactionID)
	assert.True(t, st.CanAcceptCoins)
	assert.False(t, st.CanSelect)
	assert.False(t, st.CanDispense)
	assert.False(t, st.CanReturnChange)

	assert.NotNil(t, New(nil).Catalog())
	assert.NotEmpty(t, New(nil).ID())
}

func TestHappyPath(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := newTestMachine(t)

	out := m.InsertCoin(ctx, cents(100))
	require.True(t, out.Accepted)
	assert.Equal(t, statemachine.CoinInserted, out.To)
	assert.Equal(t, "Inserted 1.00. Total: 1.00", out.Message)

	out = m.InsertCoin(ctx, cents(50))
	require.True(t, out.Accepted)
	assert.Equal(t, cents(150), out.Status.Balance)

	out = m.SelectProduct(ctx, "SODA")
	require.True(t, out.Accepted)
	assert.Equal(t, statemachine.ProductSelected, out.To)
	assert.Equal(t, "SODA", out.Status.SelectedItemID)
	assert.True(t, out.Status.CanDispense)

	out = m.Dispense(ctx)
	require.True(t, out.Accepted)
	require.NotNil(t, out.Sold)
	assert.Equal(t, "SODA", out.Sold.ID)
	assert.True(t, out.Change.IsZero())
	assert.Equal(t, "Dispensing Soda. Enjoy your Soda!", out.Message)
	assert.Equal(t, statemachine.Idle, out.Status.State)
	assert.True(t, out.Status.Balance.IsZero())
	assert.False(t, out.Status.HasSelection())
}

func TestInsufficientFunds(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := newTestMachine(t)

	m.InsertCoin(ctx, cents(100))

	out := m.SelectProduct(ctx, "SODA")
	require.False(t, out.Accepted)
	assert.Equal(t, statemachine.InsufficientFunds, out.Kind())
	assert.Equal(t, cents(50), out.Reason.Needed)
	assert.Equal(t, "Insufficient funds. Need 0.50 more for Soda", out.Message)
	require.ErrorIs(t, out.Err(), statemachine.ErrInsufficientFunds)

	st := m.Status()
	assert.Equal(t, statemachine.CoinInserted, st.State)
	assert.Equal(t, cents(100), st.Balance)
	assert.False(t, st.HasSelection())
}

func TestFaultDuringPendingBalance(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := newTestMachine(t)

	m.InsertCoin(ctx, cents(200))
	m.SelectProduct(ctx, "CHIPS")

	out := m.MarkFault(ctx)
	require.True(t, out.Accepted)
	assert.Equal(t, statemachine.OutOfOrder, out.To)
	assert.Equal(t, cents(200), out.Status.Balance)
	assert.False(t, out.Status.HasSelection())
	assert.False(t, out.Status.Operational)

	for _, declined := range []Outcome{
		m.InsertCoin(ctx, cents(25)),
		m.SelectProduct(ctx, "CANDY"),
		m.Dispense(ctx),
	} {
		assert.Equal(t, statemachine.MachineOutOfOrder, declined.Kind(), declined.Event.String())
	}

	out = m.ReturnChange(ctx)
	require.True(t, out.Accepted)
	assert.Equal(t, cents(200), out.Refund)
	assert.Equal(t, statemachine.OutOfOrder, out.To)
	assert.Equal(t, "Machine out of order. Returning 2.00", out.Message)

	out = m.ReturnChange(ctx)
	assert.Equal(t, statemachine.NothingToReturn, out.Kind())
}

func TestRepairCarriesBalance(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := newTestMachine(t)

	m.InsertCoin(ctx, cents(75))
	m.MarkFault(ctx)

	out := m.MarkRepaired(ctx)
	require.True(t, out.Accepted)
	assert.Equal(t, statemachine.Idle, out.To)
	assert.Equal(t, cents(75), out.Status.Balance)
	assert.True(t, out.Status.Operational)
	assert.NotEmpty(t, out.Status.TransactionID)

	// Idle reads the table literally even with money carried over.
	assert.Equal(t, statemachine.NothingToReturn, m.ReturnChange(ctx).Kind())
	assert.Equal(t, statemachine.NoFundsYet, m.SelectProduct(ctx, "CANDY").Kind())

	out = m.InsertCoin(ctx, cents(25))
	require.True(t, out.Accepted)
	assert.Equal(t, cents(100), out.Status.Balance)

	out = m.SelectProduct(ctx, "CANDY")
	require.True(t, out.Accepted)

	out = m.Dispense(ctx)
	require.True(t, out.Accepted)
	assert.True(t, out.Change.IsZero())
}

func TestRefundConservesMoney(t *testing.T) {
	t.Parallel()

	ctx := t.Context()

	tests := []struct {
		name  string
		coins []int64
		item  string
	}{
		{name: "coins only", coins: []int64{25, 25, 10}},
		{name: "after selection", coins: []int64{100, 100}, item: "SODA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := newTestMachine(t)

			var inserted int64

			for _, c := range tt.coins {
				require.True(t, m.InsertCoin(ctx, cents(c)).Accepted)

				inserted += c
			}

			if tt.item != "" {
				require.True(t, m.SelectProduct(ctx, tt.item).Accepted)
			}

			out := m.ReturnChange(ctx)
			require.True(t, out.Accepted)
			assert.Equal(t, cents(inserted), out.Refund)
			assert.Equal(t, cents(inserted), out.Returned())
			assert.Equal(t, statemachine.Idle, out.To)
			assert.True(t, out.Status.Balance.IsZero())
			assert.Empty(t, out.Status.TransactionID)
		})
	}
}

func TestDispenseArithmetic(t *testing.T) {
	t.Parallel()

	ctx := t.Context()

	tests := []struct {
		item   string
		paid   int64
		change int64
	}{
		{item: "SODA", paid: 150, change: 0},
		{item: "SODA", paid: 200, change: 50},
		{item: "CHIPS", paid: 200, change: 75},
		{item: "CANDY", paid: 500, change: 400},
	}

	for _, tt := range tests {
		t.Run(tt.item, func(t *testing.T) {
			t.Parallel()

			m := New(catalog.Default(), WithLogger(slogt.New(t)))

			m.InsertCoin(ctx, cents(tt.paid))
			require.True(t, m.SelectProduct(ctx, tt.item).Accepted)

			out := m.Dispense(ctx)
			require.True(t, out.Accepted)
			assert.Equal(t, cents(tt.change), out.Change)
			assert.Equal(t, cents(tt.paid), out.Sold.Price.Add(out.Change))
			assert.True(t, out.Status.Balance.IsZero())
		})
	}
}

func TestFaultIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := newTestMachine(t)

	m.InsertCoin(ctx, cents(50))
	first := m.MarkFault(ctx)
	second := m.MarkFault(ctx)

	require.True(t, second.Accepted)
	assert.True(t, second.NoOp)
	assert.False(t, second.Transitioned())
	assert.Equal(t, first.Status, second.Status)

	repaired := m.MarkRepaired(ctx)
	again := m.MarkRepaired(ctx)

	assert.True(t, repaired.Transitioned())
	assert.True(t, again.NoOp)
	assert.Equal(t, repaired.Status, again.Status)
}

func TestUnknownItem(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := newTestMachine(t)

	m.InsertCoin(ctx, cents(500))

	out := m.SelectProduct(ctx, "PIZZA")
	require.False(t, out.Accepted)
	assert.Equal(t, statemachine.UnknownItem, out.Kind())
	require.ErrorIs(t, out.Err(), statemachine.ErrUnknownItem)
	assert.Equal(t, statemachine.CoinInserted, m.Status().State)
}

func TestReselect(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := newTestMachine(t)

	m.InsertCoin(ctx, cents(150))
	require.True(t, m.SelectProduct(ctx, "SODA").Accepted)

	out := m.SelectProduct(ctx, "WATER")
	require.True(t, out.Accepted)
	assert.Equal(t, "WATER", out.Status.SelectedItemID)
	assert.Equal(t, "Changed selection to Water (1.00)", out.Message)

	out = m.Dispense(ctx)
	require.True(t, out.Accepted)
	assert.Equal(t, cents(50), out.Change)
}

func TestDeclinesDoNotMutate(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := newTestMachine(t)

	before := m.Status()

	declines := []statemachine.Event{
		statemachine.InsertCoin(cents(0)),
		statemachine.InsertCoin(cents(-5)),
		statemachine.Dispense(),
		statemachine.ReturnChange(),
		m.SelectEvent("SODA"),
		m.SelectEvent("NOPE"),
	}

	for _, ev := range declines {
		out := m.Dispatch(ctx, ev)
		assert.False(t, out.Accepted, ev.String())
		assert.Equal(t, before, out.Status, ev.String())
	}

	assert.Equal(t, before, m.Status())
}

func TestInvariantViolationIsRejected(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := newTestMachine(t)

	// A broken rule set that proposes a negative balance.
	m.rules = func(state statemachine.State, ev statemachine.Event, data statemachine.Data) statemachine.Result {
		data.Balance = cents(-1)

		return statemachine.Result{Accepted: true, Next: statemachine.CoinInserted, Data: data}
	}

	out := m.InsertCoin(ctx, cents(100))
	require.False(t, out.Accepted)
	assert.Equal(t, statemachine.InvariantViolation, out.Kind())
	require.ErrorIs(t, out.Err(), statemachine.ErrInvariantViolation)
	require.ErrorIs(t, out.Err(), statemachine.ErrNegativeBalance)
	assert.Equal(t, statemachine.Idle, m.Status().State)
	assert.True(t, m.Status().Balance.IsZero())

	assert.InDelta(t, 1, testutil.ToFloat64(invariantViolations.WithLabelValues(m.label)), 0)
}

func TestTransactionID(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := newTestMachine(t)

	assert.Empty(t, m.Status().TransactionID)

	first := m.InsertCoin(ctx, cents(100)).Status.TransactionID
	require.NotEmpty(t, first)

	assert.Equal(t, first, m.InsertCoin(ctx, cents(50)).Status.TransactionID)
	assert.Equal(t, first, m.SelectProduct(ctx, "SODA").Status.TransactionID)
	assert.Empty(t, m.Dispense(ctx).Status.TransactionID)

	second := m.InsertCoin(ctx, cents(25)).Status.TransactionID
	assert.NotEmpty(t, second)
	assert.NotEqual(t, first, second)
}

func TestStatusJSON(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := newTestMachine(t)

	m.InsertCoin(ctx, cents(125))
	m.SelectProduct(ctx, "CHIPS")

	out, err := m.Status().JSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))

	assert.Equal(t, "ProductSelected", decoded["state"])
	assert.Equal(t, "Product Selected", decoded["stateLabel"])
	assert.Equal(t, "1.25", decoded["balance"])
	assert.Equal(t, "CHIPS", decoded["selectedItemId"])
	assert.Equal(t, true, decoded["operational"])
	assert.Equal(t, true, decoded["canDispense"])
	assert.Equal(t, t.Name(), decoded["machineId"])

	assert.Equal(t, "Product Selected balance=1.25 selected=CHIPS", m.Status().String())
}

func TestReset(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := newTestMachine(t)

	m.InsertCoin(ctx, cents(300))
	m.MarkFault(ctx)

	st := m.Reset(ctx)
	assert.Equal(t, statemachine.Idle, st.State)
	assert.True(t, st.Balance.IsZero())
	assert.True(t, st.Operational)
	assert.Empty(t, st.TransactionID)
	assert.Equal(t, t.Name(), st.MachineID)

	assert.InDelta(t, 300, testutil.ToFloat64(discardedCents.WithLabelValues(m.label)), 0)

	// Reset of a clean machine discards nothing.
	m.Reset(ctx)
	assert.InDelta(t, 300, testutil.ToFloat64(discardedCents.WithLabelValues(m.label)), 0)
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := newTestMachine(t)

	m.InsertCoin(ctx, cents(200))
	m.SelectProduct(ctx, "NOPE")
	m.SelectProduct(ctx, "CHIPS")
	m.Dispense(ctx)
	m.MarkRepaired(ctx)

	label := m.label

	assert.InDelta(t, 1, testutil.ToFloat64(eventsTotal.WithLabelValues(label, "InsertCoin", "Idle", "accepted")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(eventsTotal.WithLabelValues(label, "SelectProduct", "CoinInserted", "declined")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(eventsTotal.WithLabelValues(label, "Repair", "Idle", "noop")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(declinesTotal.WithLabelValues(label, "UnknownItem")), 0)
	assert.InDelta(t, 200, testutil.ToFloat64(coinsCents.WithLabelValues(label)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(salesTotal.WithLabelValues(label, "CHIPS")), 0)
	assert.InDelta(t, 125, testutil.ToFloat64(revenueCents.WithLabelValues(label, "CHIPS")), 0)
	assert.InDelta(t, 75, testutil.ToFloat64(returnedCents.WithLabelValues(label, "change")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(transitionsTotal.WithLabelValues(label, "ProductSelected", "Idle")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(balanceCents.WithLabelValues(label)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(currentState.WithLabelValues(label, "Idle")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(currentState.WithLabelValues(label, "ProductSelected")), 0)
}

func TestMachineLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unknown", machineLabel(""))
	assert.Equal(t, machineLabel("a"), machineLabel("a"))
	assert.NotEqual(t, machineLabel("a"), machineLabel("b"))
}

func TestDispatchSpans(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})

	ctx := t.Context()
	m := newTestMachine(t, WithTracer(provider.Tracer(tracerName)))

	m.InsertCoin(ctx, cents(100))
	m.Dispense(ctx)

	m.rules = func(state statemachine.State, _ statemachine.Event, data statemachine.Data) statemachine.Result {
		data.Operational = false

		return statemachine.Result{Accepted: true, Next: state, Data: data}
	}

	m.MarkRepaired(ctx)

	spans := recorder.Ended()
	require.Len(t, spans, 3)

	attrs := func(span sdktrace.ReadOnlySpan) map[string]string {
		out := make(map[string]string)
		for _, kv := range span.Attributes() {
			out[string(kv.Key)] = kv.Value.Emit()
		}

		return out
	}

	for _, span := range spans {
		assert.Equal(t, "vending.dispatch", span.Name())
	}

	coin := attrs(spans[0])
	assert.Equal(t, "InsertCoin", coin["vending.event"])
	assert.Equal(t, "100", coin["vending.amount_cents"])
	assert.Equal(t, "accepted", coin["vending.outcome"])
	assert.Equal(t, "CoinInserted", coin["vending.to_state"])

	declined := attrs(spans[1])
	assert.Equal(t, "declined", declined["vending.outcome"])
	assert.Equal(t, "NoSelection", declined["vending.decline_reason"])
	assert.NotEqual(t, "Error", spans[1].Status().Code.String())

	assert.Equal(t, "Error", spans[2].Status().Code.String())
	assert.Equal(t, "InvariantViolation", attrs(spans[2])["vending.decline_reason"])
}

func TestConcurrentDispatchConservesMoney(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := newTestMachine(t)

	const workers = 8

	const perWorker = 50

	var (
		mu       sync.Mutex
		inserted int64
		returned int64
		revenue  int64
		wg       sync.WaitGroup
	)

	for w := range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range perWorker {
				var out Outcome

				switch (w + i) % 4 {
				case 0:
					out = m.InsertCoin(ctx, cents(25))
				case 1:
					out = m.SelectProduct(ctx, "CANDY")
				case 2:
					out = m.Dispense(ctx)
				default:
					out = m.ReturnChange(ctx)
				}

				mu.Lock()

				if out.Accepted && out.Event.Kind == statemachine.InsertCoinEvent {
					inserted += out.Event.Amount.Cents()
				}

				returned += out.Returned().Cents()

				if out.Sold != nil {
					revenue += out.Sold.Price.Cents()
				}

				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	st := m.Status()
	assert.Equal(t, inserted, returned+revenue+st.Balance.Cents())

	m.mu.Lock()
	defer m.mu.Unlock()

	require.NoError(t, statemachine.CheckInvariants(m.state, m.data))
}

// observedData rebuilds the transaction record from a status snapshot.
func observedData(t *testing.T, m *Machine, st Status) statemachine.Data {
	t.Helper()

	data := statemachine.Data{Balance: st.Balance, Operational: st.Operational}

	if st.HasSelection() {
		item, err := m.Catalog().Lookup(st.SelectedItemID)
		require.NoError(t, err)

		data.Selection = &item
	}

	return data
}

func TestRandomEventSequencesKeepInvariants(t *testing.T) {
	t.Parallel()

	coins := []int64{0, 5, 10, 25, 100, -50}
	ids := append(catalog.Default().IDs(), "NOPE")

	for _, seed := range []uint64{1, 7, 42, 1999, 31337} {
		t.Run(fmt.Sprint(seed), func(t *testing.T) {
			t.Parallel()

			ctx := t.Context()
			m := newTestMachine(t)
			rng := rand.New(rand.NewPCG(seed, seed)) //nolint:gosec

			var inserted, returned, revenue int64

			for step := range 500 {
				var out Outcome

				switch rng.IntN(6) {
				case 0:
					out = m.InsertCoin(ctx, cents(coins[rng.IntN(len(coins))]))
				case 1:
					out = m.SelectProduct(ctx, ids[rng.IntN(len(ids))])
				case 2:
					out = m.Dispense(ctx)
				case 3:
					out = m.ReturnChange(ctx)
				case 4:
					out = m.MarkFault(ctx)
				default:
					out = m.MarkRepaired(ctx)
				}

				if out.Accepted && out.Event.Kind == statemachine.InsertCoinEvent {
					inserted += out.Event.Amount.Cents()
				}

				returned += out.Returned().Cents()

				if out.Sold != nil {
					revenue += out.Sold.Price.Cents()
				}

				st := m.Status()

				require.NoError(t, statemachine.CheckInvariants(st.State, observedData(t, m, st)),
					"step %d after %s", step, out.Event)
				require.GreaterOrEqual(t, st.Balance.Cents(), int64(0), "step %d", step)
				require.Equal(t, st.State == statemachine.ProductSelected, st.HasSelection(), "step %d", step)
				require.Equal(t, inserted, returned+revenue+st.Balance.Cents(), "step %d", step)
			}
		})
	}
}

func TestSelectEvent(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)

	ev := m.SelectEvent("SODA")
	require.NotNil(t, ev.Item)
	assert.Equal(t, "SODA", ev.ItemID)

	ev = m.SelectEvent("NOPE")
	assert.Nil(t, ev.Item)
	assert.Equal(t, "NOPE", ev.ItemID)
}

func TestOutcomeHelpers(t *testing.T) {
	t.Parallel()

	accepted := Outcome{Accepted: true, From: statemachine.Idle, To: statemachine.CoinInserted}
	assert.NoError(t, accepted.Err())
	assert.Equal(t, statemachine.DeclineKind(0), accepted.Kind())
	assert.True(t, accepted.Transitioned())
	assert.Equal(t, "accepted", accepted.outcomeLabel())

	declined := Outcome{Reason: &statemachine.Decline{Kind: statemachine.NoSelection}}
	require.ErrorIs(t, declined.Err(), statemachine.ErrNoSelection)
	assert.Equal(t, "declined", declined.outcomeLabel())
	assert.False(t, declined.Transitioned())
}
