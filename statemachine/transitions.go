// Package statemachine holds the transition rules of a vending machine: a pure
// function from (state, event, data) to a verdict. It owns no mutable state.
package statemachine

import (
	"fmt"

	"github.com/amp-labs/vending/money"
)

// rule evaluates one (state, event) cell of the transition table.
type rule func(state State, ev Event, data Data) Result

// table is the complete transition table. Every state has an entry for every
// event kind; the validator package checks this.
//
//nolint:gochecknoglobals
var table = map[State]map[EventKind]rule{
	Idle: {
		InsertCoinEvent:    insertCoin,
		SelectProductEvent: selectProduct,
		DispenseEvent:      declineWith(NothingToDispense, "Please insert coins and select a product first."),
		ReturnChangeEvent:  declineWith(NothingToReturn, "No money to return."),
		FaultEvent:         fault,
		RepairEvent:        noOp("Machine is already operational."),
	},
	CoinInserted: {
		InsertCoinEvent:    insertCoin,
		SelectProductEvent: selectProduct,
		DispenseEvent:      declineWith(NoSelection, "Please select a product first."),
		ReturnChangeEvent:  refundToIdle,
		FaultEvent:         fault,
		RepairEvent:        noOp("Machine is already operational."),
	},
	ProductSelected: {
		InsertCoinEvent:    insertCoin,
		SelectProductEvent: selectProduct,
		DispenseEvent:      dispense,
		ReturnChangeEvent:  refundToIdle,
		FaultEvent:         fault,
		RepairEvent:        noOp("Machine is already operational."),
	},
	OutOfOrder: {
		InsertCoinEvent:    declineWith(MachineOutOfOrder, "Machine is out of order. Cannot accept coins."),
		SelectProductEvent: selectProduct,
		DispenseEvent:      declineWith(MachineOutOfOrder, "Machine is out of order. Cannot dispense products."),
		ReturnChangeEvent:  refundWhileFaulted,
		FaultEvent:         noOp("Machine is already out of order."),
		RepairEvent:        repair,
	},
}

// Evaluate applies ev to (state, data) and returns the verdict. It never
// mutates its inputs and has no memory between calls.
func Evaluate(state State, ev Event, data Data) Result {
	row, ok := table[state]
	if !ok {
		return decline(state, ev, data, &Decline{
			Kind:    InvariantViolation,
			Message: "machine is in an unknown state",
			Cause:   fmt.Errorf("%w: %s", ErrUnknownState, state),
		})
	}

	fn, ok := row[ev.Kind]
	if !ok {
		return decline(state, ev, data, &Decline{
			Kind:    InvariantViolation,
			Message: "unsupported event",
			Cause:   fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Kind),
		})
	}

	return fn(state, ev, data)
}

func accept(next State, data Data, msg string) Result {
	return Result{
		Accepted: true,
		Next:     next,
		Data:     data,
		Message:  msg,
	}
}

func decline(state State, ev Event, data Data, d *Decline) Result {
	d.State = state
	d.Event = ev.Kind

	return Result{
		Accepted: false,
		Next:     state,
		Data:     data,
		Decline:  d,
		Message:  d.Message,
	}
}

func declineWith(kind DeclineKind, msg string) rule {
	return func(state State, ev Event, data Data) Result {
		return decline(state, ev, data, &Decline{Kind: kind, Message: msg})
	}
}

func noOp(msg string) rule {
	return func(state State, _ Event, data Data) Result {
		res := accept(state, data, msg)
		res.NoOp = true

		return res
	}
}

func insertCoin(state State, ev Event, data Data) Result {
	if !ev.Amount.IsPositive() {
		return decline(state, ev, data, &Decline{
			Kind:    InvalidAmount,
			Message: "Please insert a valid amount.",
		})
	}

	next := state
	if state == Idle {
		next = CoinInserted
	}

	data.Balance = data.Balance.Add(ev.Amount)

	return accept(next, data, fmt.Sprintf("Inserted %s. Total: %s", ev.Amount, data.Balance))
}

func selectProduct(state State, ev Event, data Data) Result {
	switch {
	case state == OutOfOrder:
		return decline(state, ev, data, &Decline{
			Kind:    MachineOutOfOrder,
			Message: "Machine is out of order. Cannot select products.",
		})
	case ev.Item == nil:
		return decline(state, ev, data, &Decline{
			Kind:    UnknownItem,
			Message: fmt.Sprintf("Unknown product %q.", ev.ItemID),
		})
	case state == Idle:
		return decline(state, ev, data, &Decline{
			Kind:    NoFundsYet,
			Message: "Please insert coins first.",
		})
	}

	item := *ev.Item

	if data.Balance < item.Price {
		needed := item.Price.Sub(data.Balance)

		return decline(state, ev, data, &Decline{
			Kind:    InsufficientFunds,
			Needed:  needed,
			Message: fmt.Sprintf("Insufficient funds. Need %s more for %s", needed, item.Name),
		})
	}

	verb := "Selected"
	if state == ProductSelected {
		verb = "Changed selection to"
	}

	data.Selection = &item

	return accept(ProductSelected, data, fmt.Sprintf("%s %s", verb, item))
}

func dispense(state State, ev Event, data Data) Result {
	if data.Selection == nil {
		return decline(state, ev, data, &Decline{
			Kind:    NoSelection,
			Message: "Cannot dispense product. No product selected.",
		})
	}

	item := *data.Selection

	if data.Balance < item.Price {
		return decline(state, ev, data, &Decline{
			Kind:    InsufficientFunds,
			Needed:  item.Price.Sub(data.Balance),
			Message: "Cannot dispense product. Insufficient funds.",
		})
	}

	change := data.Balance.Sub(item.Price)

	data.Balance = money.Zero
	data.Selection = nil

	msg := fmt.Sprintf("Dispensing %s. Enjoy your %s!", item.Name, item.Name)
	if change.IsPositive() {
		msg = fmt.Sprintf("Dispensing %s. Returning change: %s. Enjoy your %s!", item.Name, change, item.Name)
	}

	res := accept(Idle, data, msg)
	res.Change = change
	res.Sold = &item

	return res
}

func refundToIdle(_ State, _ Event, data Data) Result {
	refund := data.Balance

	data.Balance = money.Zero
	data.Selection = nil

	res := accept(Idle, data, fmt.Sprintf("Transaction cancelled. Returning %s", refund))
	res.Refund = refund

	return res
}

func refundWhileFaulted(state State, ev Event, data Data) Result {
	if !data.Balance.IsPositive() {
		return decline(state, ev, data, &Decline{
			Kind:    NothingToReturn,
			Message: "No money to return.",
		})
	}

	refund := data.Balance
	data.Balance = money.Zero

	res := accept(OutOfOrder, data, fmt.Sprintf("Machine out of order. Returning %s", refund))
	res.Refund = refund

	return res
}

func fault(_ State, _ Event, data Data) Result {
	data.Operational = false
	data.Selection = nil

	return accept(OutOfOrder, data, "Machine is now out of order.")
}

func repair(_ State, _ Event, data Data) Result {
	data.Operational = true

	return accept(Idle, data, "Machine is back in service.")
}
