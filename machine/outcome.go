package machine

import (
	"github.com/amp-labs/vending/catalog"
	"github.com/amp-labs/vending/money"
	"github.com/amp-labs/vending/statemachine"
)

// Outcome reports what happened to one dispatched event.
type Outcome struct {
	Event    statemachine.Event
	From     statemachine.State
	To       statemachine.State
	Accepted bool
	// NoOp is set for accepted events that changed nothing.
	NoOp bool
	// Reason is set when the event was declined.
	Reason  *statemachine.Decline
	Message string
	Change  money.Amount
	Refund  money.Amount
	// Sold is the item released by an accepted Dispense.
	Sold *catalog.Item
	// Status is the snapshot taken right after the event was applied or declined.
	Status Status
}

// Err returns the decline as an error, or nil when the event was accepted.
func (o Outcome) Err() error {
	if o.Reason == nil {
		return nil
	}

	return o.Reason
}

// Kind returns the decline kind, or 0 when accepted.
func (o Outcome) Kind() statemachine.DeclineKind {
	if o.Reason == nil {
		return 0
	}

	return o.Reason.Kind
}

// Transitioned reports whether the machine changed state.
func (o Outcome) Transitioned() bool {
	return o.Accepted && o.From != o.To
}

// Returned is the money handed back to the customer: change plus refund.
func (o Outcome) Returned() money.Amount {
	return o.Change.Add(o.Refund)
}

func (o Outcome) outcomeLabel() string {
	switch {
	case !o.Accepted:
		return "declined"
	case o.NoOp:
		return "noop"
	default:
		return "accepted"
	}
}
