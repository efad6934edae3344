package statemachine

import (
	"errors"
	"testing"

	"github.com/amp-labs/vending/catalog"
	"github.com/amp-labs/vending/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	soda  = catalog.Item{ID: "SODA", Name: "Soda", Price: money.FromCents(150)}
	candy = catalog.Item{ID: "CANDY", Name: "Candy", Price: money.FromCents(100)}
)

func funded(cents int64) Data {
	d := InitialData()
	d.Balance = money.FromCents(cents)

	return d
}

func selected(cents int64, item catalog.Item) Data {
	d := funded(cents)
	d.Selection = &item

	return d
}

func faulted(cents int64) Data {
	d := funded(cents)
	d.Operational = false

	return d
}

func TestEvaluateAccepted(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		state       State
		data        Data
		event       Event
		wantNext    State
		wantBalance int64
		wantSel     string
		wantChange  int64
		wantRefund  int64
		wantNoOp    bool
	}{
		{"idle coin", Idle, InitialData(), InsertCoin(money.FromCents(100)), CoinInserted, 100, "", 0, 0, false},
		{"idle coin on carried balance", Idle, funded(50), InsertCoin(money.FromCents(25)), CoinInserted, 75, "", 0, 0, false},
		{"idle fault", Idle, InitialData(), Fault(), OutOfOrder, 0, "", 0, 0, false},
		{"idle repair", Idle, InitialData(), Repair(), Idle, 0, "", 0, 0, true},
		{"coin top up", CoinInserted, funded(100), InsertCoin(money.FromCents(50)), CoinInserted, 150, "", 0, 0, false},
		{"coin select exact", CoinInserted, funded(150), SelectProduct(soda), ProductSelected, 150, "SODA", 0, 0, false},
		{"coin return", CoinInserted, funded(120), ReturnChange(), Idle, 0, "", 0, 120, false},
		{"coin fault keeps balance", CoinInserted, funded(120), Fault(), OutOfOrder, 120, "", 0, 0, false},
		{"coin repair", CoinInserted, funded(120), Repair(), CoinInserted, 120, "", 0, 0, true},
		{"selected top up", ProductSelected, selected(150, soda), InsertCoin(money.FromCents(25)), ProductSelected, 175, "SODA", 0, 0, false},
		{"selected reselect", ProductSelected, selected(150, soda), SelectProduct(candy), ProductSelected, 150, "CANDY", 0, 0, false},
		{"dispense with change", ProductSelected, selected(200, soda), Dispense(), Idle, 0, "", 50, 0, false},
		{"dispense exact", ProductSelected, selected(150, soda), Dispense(), Idle, 0, "", 0, 0, false},
		{"selected return", ProductSelected, selected(200, candy), ReturnChange(), Idle, 0, "", 0, 200, false},
		{"selected fault clears selection", ProductSelected, selected(200, candy), Fault(), OutOfOrder, 200, "", 0, 0, false},
		{"faulted refund", OutOfOrder, faulted(150), ReturnChange(), OutOfOrder, 0, "", 0, 150, false},
		{"faulted fault", OutOfOrder, faulted(150), Fault(), OutOfOrder, 150, "", 0, 0, true},
		{"repair carries balance", OutOfOrder, faulted(150), Repair(), Idle, 150, "", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := Evaluate(tt.state, tt.event, tt.data)
			require.True(t, res.Accepted, "declined: %v", res.Err())
			require.NoError(t, res.Err())

			assert.Equal(t, tt.wantNext, res.Next)
			assert.Equal(t, money.FromCents(tt.wantBalance), res.Data.Balance)
			assert.Equal(t, tt.wantSel, res.Data.SelectedID())
			assert.Equal(t, money.FromCents(tt.wantChange), res.Change)
			assert.Equal(t, money.FromCents(tt.wantRefund), res.Refund)
			assert.Equal(t, tt.wantNoOp, res.NoOp)
			assert.NotEmpty(t, res.Message)
			require.NoError(t, CheckInvariants(res.Next, res.Data))
		})
	}
}

func TestEvaluateDeclined(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		state    State
		data     Data
		event    Event
		want     DeclineKind
		sentinel error
	}{
		{"idle zero coin", Idle, InitialData(), InsertCoin(money.Zero), InvalidAmount, ErrInvalidAmount},
		{"idle negative coin", Idle, InitialData(), InsertCoin(money.FromCents(-50)), InvalidAmount, ErrInvalidAmount},
		{"idle select", Idle, InitialData(), SelectProduct(soda), NoFundsYet, ErrNoFundsYet},
		{"idle select with carried balance", Idle, funded(500), SelectProduct(soda), NoFundsYet, ErrNoFundsYet},
		{"idle dispense", Idle, InitialData(), Dispense(), NothingToDispense, ErrNothingToDispense},
		{"idle return", Idle, InitialData(), ReturnChange(), NothingToReturn, ErrNothingToReturn},
		{"idle return with carried balance", Idle, funded(100), ReturnChange(), NothingToReturn, ErrNothingToReturn},
		{"idle unknown item", Idle, InitialData(), SelectUnknown("COFFEE"), UnknownItem, ErrUnknownItem},
		{"coin zero coin", CoinInserted, funded(100), InsertCoin(money.Zero), InvalidAmount, ErrInvalidAmount},
		{"coin short", CoinInserted, funded(100), SelectProduct(soda), InsufficientFunds, ErrInsufficientFunds},
		{"coin dispense", CoinInserted, funded(100), Dispense(), NoSelection, ErrNoSelection},
		{"coin unknown item", CoinInserted, funded(100), SelectUnknown("COFFEE"), UnknownItem, ErrUnknownItem},
		{"selected zero coin", ProductSelected, selected(100, candy), InsertCoin(money.Zero), InvalidAmount, ErrInvalidAmount},
		{"selected reselect short", ProductSelected, selected(100, candy), SelectProduct(soda), InsufficientFunds, ErrInsufficientFunds},
		{"faulted coin", OutOfOrder, faulted(0), InsertCoin(money.FromCents(50)), MachineOutOfOrder, ErrMachineOutOfOrder},
		{"faulted select", OutOfOrder, faulted(200), SelectProduct(soda), MachineOutOfOrder, ErrMachineOutOfOrder},
		{"faulted unknown item", OutOfOrder, faulted(200), SelectUnknown("COFFEE"), MachineOutOfOrder, ErrMachineOutOfOrder},
		{"faulted dispense", OutOfOrder, faulted(200), Dispense(), MachineOutOfOrder, ErrMachineOutOfOrder},
		{"faulted return empty", OutOfOrder, faulted(0), ReturnChange(), NothingToReturn, ErrNothingToReturn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := Evaluate(tt.state, tt.event, tt.data)
			require.False(t, res.Accepted)
			require.NotNil(t, res.Decline)

			assert.Equal(t, tt.want, res.Decline.Kind)
			assert.Equal(t, tt.state, res.Decline.State)
			assert.Equal(t, tt.event.Kind, res.Decline.Event)
			require.ErrorIs(t, res.Err(), tt.sentinel)

			// A decline proposes exactly the inputs.
			assert.Equal(t, tt.state, res.Next)
			assert.Equal(t, tt.data, res.Data)
			assert.True(t, res.Change.IsZero())
			assert.True(t, res.Refund.IsZero())
		})
	}
}

func TestInsufficientFundsReportsShortfall(t *testing.T) {
	t.Parallel()

	res := Evaluate(CoinInserted, SelectProduct(soda), funded(50))
	require.False(t, res.Accepted)
	assert.Equal(t, money.FromCents(100), res.Decline.Needed)
	assert.Contains(t, res.Message, "1.00")
	assert.Contains(t, res.Message, "Soda")
}

func TestDispenseReportsItem(t *testing.T) {
	t.Parallel()

	res := Evaluate(ProductSelected, Dispense(), selected(200, soda))
	require.True(t, res.Accepted)
	require.NotNil(t, res.Sold)
	assert.Equal(t, "SODA", res.Sold.ID)
	assert.Equal(t, money.FromCents(200), res.Sold.Price.Add(res.Change))
}

func TestDispenseDefensiveBranches(t *testing.T) {
	t.Parallel()

	res := Evaluate(ProductSelected, Dispense(), funded(200))
	require.False(t, res.Accepted)
	require.ErrorIs(t, res.Err(), ErrNoSelection)

	res = Evaluate(ProductSelected, Dispense(), selected(100, soda))
	require.False(t, res.Accepted)
	require.ErrorIs(t, res.Err(), ErrInsufficientFunds)
	assert.Equal(t, money.FromCents(50), res.Decline.Needed)
}

func TestEvaluateUnknownState(t *testing.T) {
	t.Parallel()

	res := Evaluate(State(42), Dispense(), InitialData())
	require.False(t, res.Accepted)
	require.ErrorIs(t, res.Err(), ErrInvariantViolation)
	require.ErrorIs(t, res.Err(), ErrUnknownState)

	res = Evaluate(Idle, Event{Kind: EventKind(42)}, InitialData())
	require.False(t, res.Accepted)
	require.ErrorIs(t, res.Err(), ErrUnknownEvent)
}

func TestEvaluateDoesNotAliasInput(t *testing.T) {
	t.Parallel()

	in := selected(200, soda)
	res := Evaluate(ProductSelected, SelectProduct(candy), in)
	require.True(t, res.Accepted)

	assert.Equal(t, "SODA", in.SelectedID())
	assert.Equal(t, "CANDY", res.Data.SelectedID())
}

func TestTableIsTotal(t *testing.T) {
	t.Parallel()

	for _, state := range States() {
		for _, kind := range EventKinds() {
			_, ok := table[state][kind]
			assert.True(t, ok, "missing rule for %s/%s", state, kind)
		}
	}
}

func TestEdgesMatchTable(t *testing.T) {
	t.Parallel()

	witness := func(e Edge) (Data, Event) {
		var data Data

		switch e.From {
		case Idle:
			data = InitialData()
		case CoinInserted:
			data = funded(500)
		case ProductSelected:
			data = selected(500, candy)
		case OutOfOrder:
			data = faulted(100)
		}

		switch e.Event {
		case InsertCoinEvent:
			return data, InsertCoin(money.FromCents(25))
		case SelectProductEvent:
			return data, SelectProduct(soda)
		case DispenseEvent:
			return data, Dispense()
		case ReturnChangeEvent:
			return data, ReturnChange()
		case FaultEvent:
			return data, Fault()
		default:
			return data, Repair()
		}
	}

	for _, e := range Edges() {
		data, ev := witness(e)
		res := Evaluate(e.From, ev, data)

		require.True(t, res.Accepted, "edge %s -> %s (%s) declined: %v", e.From, e.To, e.Label(), res.Err())
		assert.Equal(t, e.To, res.Next, "edge %s", e.Label())
		assert.Equal(t, e.NoOp, res.NoOp, "edge %s", e.Label())
	}
}

func TestEdgesFrom(t *testing.T) {
	t.Parallel()

	out := EdgesFrom(OutOfOrder)
	require.Len(t, out, 3)

	for _, e := range out {
		assert.Equal(t, OutOfOrder, e.From)
	}

	assert.Equal(t, "InsertCoin [amount > 0]", Edges()[0].Label())
}

func TestCapabilitiesOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Capabilities{CanAcceptCoins: true}, CapabilitiesOf(Idle, funded(100)))
	assert.Equal(t, Capabilities{CanAcceptCoins: true, CanSelect: true, CanReturnChange: true},
		CapabilitiesOf(CoinInserted, funded(100)))
	assert.Equal(t, Capabilities{CanAcceptCoins: true, CanSelect: true, CanDispense: true, CanReturnChange: true},
		CapabilitiesOf(ProductSelected, selected(100, candy)))
	assert.Equal(t, Capabilities{CanReturnChange: true}, CapabilitiesOf(OutOfOrder, faulted(100)))
	assert.Equal(t, Capabilities{}, CapabilitiesOf(OutOfOrder, faulted(0)))
}

func TestCheckInvariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		state State
		data  Data
		want  []error
	}{
		{"initial", Idle, InitialData(), nil},
		{"negative balance", CoinInserted, funded(-1), []error{ErrNegativeBalance}},
		{"selection outside ProductSelected", CoinInserted, selected(200, candy), []error{ErrSelectionMismatch}},
		{"no selection in ProductSelected", ProductSelected, funded(200), []error{ErrSelectionMismatch}},
		{"operational while faulted", OutOfOrder, funded(0), []error{ErrOperationalMismatch}},
		{"faulted while Idle", Idle, faulted(0), []error{ErrOperationalMismatch}},
		{"unfunded selection", ProductSelected, selected(50, soda), []error{ErrUnfundedSelection}},
		{"unknown state", State(9), InitialData(), []error{ErrUnknownState}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := CheckInvariants(tt.state, tt.data)
			if len(tt.want) == 0 {
				require.NoError(t, err)

				return
			}

			for _, want := range tt.want {
				require.ErrorIs(t, err, want)
			}
		})
	}
}

func TestParseState(t *testing.T) {
	t.Parallel()

	for _, s := range States() {
		got, err := ParseState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)

		got, err = ParseState(s.Label())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	got, err := ParseState("out of order")
	require.NoError(t, err)
	assert.Equal(t, OutOfOrder, got)

	_, err = ParseState("Vending")
	require.ErrorIs(t, err, ErrUnknownState)

	var s State
	require.NoError(t, s.UnmarshalText([]byte("productselected")))
	assert.Equal(t, ProductSelected, s)
}

func TestDeclineHelpers(t *testing.T) {
	t.Parallel()

	res := Evaluate(Idle, Dispense(), InitialData())
	err := res.Err()

	d, ok := AsDecline(err)
	require.True(t, ok)
	assert.Equal(t, NothingToDispense, d.Kind)
	assert.Equal(t, NothingToDispense, KindOf(err))
	assert.Equal(t, DeclineKind(0), KindOf(errors.New("boom")))
	assert.Equal(t, "NothingToDispense", d.Kind.String())
	assert.Contains(t, err.Error(), "Dispense declined in state Idle")
}
