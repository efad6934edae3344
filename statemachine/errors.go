package statemachine

import (
	"errors"
	"fmt"

	"github.com/amp-labs/vending/money"
)

// Predefined error types. Each DeclineKind maps to one sentinel so callers can
// use errors.Is on a *Decline.
var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrNoSelection        = errors.New("no product selected")
	ErrUnknownItem        = errors.New("unknown item")
	ErrMachineOutOfOrder  = errors.New("machine is out of order")
	ErrNothingToReturn    = errors.New("nothing to return")
	ErrNoFundsYet         = errors.New("no funds inserted")
	ErrNothingToDispense  = errors.New("nothing to dispense")
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrUnknownState indicates that a state name could not be parsed.
	ErrUnknownState = errors.New("unknown state")
	// ErrUnknownEvent indicates an event kind outside the declared set.
	ErrUnknownEvent = errors.New("unknown event")
)

// DeclineKind is the machine-readable reason an event was declined.
type DeclineKind uint8

const (
	InvalidAmount DeclineKind = iota + 1
	InsufficientFunds
	NoSelection
	UnknownItem
	MachineOutOfOrder
	NothingToReturn
	NoFundsYet
	NothingToDispense
	InvariantViolation
)

var declineNames = map[DeclineKind]string{
	InvalidAmount:      "InvalidAmount",
	InsufficientFunds:  "InsufficientFunds",
	NoSelection:        "NoSelection",
	UnknownItem:        "UnknownItem",
	MachineOutOfOrder:  "MachineOutOfOrder",
	NothingToReturn:    "NothingToReturn",
	NoFundsYet:         "NoFundsYet",
	NothingToDispense:  "NothingToDispense",
	InvariantViolation: "InvariantViolation",
}

var declineSentinels = map[DeclineKind]error{
	InvalidAmount:      ErrInvalidAmount,
	InsufficientFunds:  ErrInsufficientFunds,
	NoSelection:        ErrNoSelection,
	UnknownItem:        ErrUnknownItem,
	MachineOutOfOrder:  ErrMachineOutOfOrder,
	NothingToReturn:    ErrNothingToReturn,
	NoFundsYet:         ErrNoFundsYet,
	NothingToDispense:  ErrNothingToDispense,
	InvariantViolation: ErrInvariantViolation,
}

func (k DeclineKind) String() string {
	if name, ok := declineNames[k]; ok {
		return name
	}

	return fmt.Sprintf("DeclineKind(%d)", k)
}

// MarshalText implements encoding.TextMarshaler.
func (k DeclineKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Decline explains why an event was not applied. It is an error value, but a
// decline is an ordinary outcome of the machine and never fatal.
type Decline struct {
	Kind    DeclineKind
	State   State
	Event   EventKind
	Message string
	// Needed is the shortfall for InsufficientFunds.
	Needed money.Amount
	// Cause carries detail for InvariantViolation.
	Cause error
}

func (d *Decline) Error() string {
	return fmt.Sprintf("%s declined in state %s: %s", d.Event, d.State, d.Message)
}

// Unwrap returns the sentinel for the kind plus the cause, if any.
func (d *Decline) Unwrap() []error {
	errs := make([]error, 0, 2) //nolint:mnd

	if sentinel, ok := declineSentinels[d.Kind]; ok {
		errs = append(errs, sentinel)
	}

	if d.Cause != nil {
		errs = append(errs, d.Cause)
	}

	return errs
}

// AsDecline extracts a *Decline from err.
func AsDecline(err error) (*Decline, bool) {
	var d *Decline
	if errors.As(err, &d) {
		return d, true
	}

	return nil, false
}

// KindOf returns the decline kind carried by err, or 0 when err is not a decline.
func KindOf(err error) DeclineKind {
	if d, ok := AsDecline(err); ok {
		return d.Kind
	}

	return 0
}
