package statemachine

import (
	"fmt"
	"strings"

	"github.com/amp-labs/vending/catalog"
	"github.com/amp-labs/vending/money"
)

// State is the operating mode of a vending machine.
type State uint8

const (
	Idle State = iota
	CoinInserted
	ProductSelected
	OutOfOrder
)

var stateNames = [...]string{
	Idle:            "Idle",
	CoinInserted:    "CoinInserted",
	ProductSelected: "ProductSelected",
	OutOfOrder:      "OutOfOrder",
}

var stateLabels = [...]string{
	Idle:            "Idle",
	CoinInserted:    "Coin Inserted",
	ProductSelected: "Product Selected",
	OutOfOrder:      "Out of Order",
}

// States returns every state in declaration order.
func States() []State {
	return []State{Idle, CoinInserted, ProductSelected, OutOfOrder}
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}

	return fmt.Sprintf("State(%d)", s)
}

// Label is the human-facing name, e.g. "Coin Inserted".
func (s State) Label() string {
	if int(s) < len(stateLabels) {
		return stateLabels[s]
	}

	return s.String()
}

// Valid reports whether s is one of the declared states.
func (s State) Valid() bool {
	return int(s) < len(stateNames)
}

// ParseState accepts either the identifier ("CoinInserted") or the label
// ("coin inserted"), case-insensitively.
func ParseState(name string) (State, error) {
	for _, s := range States() {
		if strings.EqualFold(name, s.String()) || strings.EqualFold(name, s.Label()) {
			return s, nil
		}
	}

	return Idle, fmt.Errorf("%w: %q", ErrUnknownState, name)
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	v, err := ParseState(string(text))
	if err != nil {
		return err
	}

	*s = v

	return nil
}

// EventKind identifies what happened at the machine.
type EventKind uint8

const (
	InsertCoinEvent EventKind = iota
	SelectProductEvent
	DispenseEvent
	ReturnChangeEvent
	FaultEvent
	RepairEvent
)

var eventNames = [...]string{
	InsertCoinEvent:    "InsertCoin",
	SelectProductEvent: "SelectProduct",
	DispenseEvent:      "Dispense",
	ReturnChangeEvent:  "ReturnChange",
	FaultEvent:         "Fault",
	RepairEvent:        "Repair",
}

// EventKinds returns every event kind in declaration order.
func EventKinds() []EventKind {
	return []EventKind{
		InsertCoinEvent, SelectProductEvent, DispenseEvent,
		ReturnChangeEvent, FaultEvent, RepairEvent,
	}
}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}

	return fmt.Sprintf("EventKind(%d)", k)
}

// MarshalText implements encoding.TextMarshaler.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is a single input to the transition rules. Only the fields relevant to
// Kind are set; use the constructors below.
type Event struct {
	Kind   EventKind
	Amount money.Amount
	ItemID string
	// Item is nil when ItemID is not in the catalog.
	Item *catalog.Item
}

// InsertCoin is a coin or note of the given value.
func InsertCoin(amount money.Amount) Event {
	return Event{Kind: InsertCoinEvent, Amount: amount}
}

// SelectProduct chooses a catalog item.
func SelectProduct(item catalog.Item) Event {
	return Event{Kind: SelectProductEvent, ItemID: item.ID, Item: &item}
}

// SelectUnknown is a selection of an id the catalog does not carry.
func SelectUnknown(id string) Event {
	return Event{Kind: SelectProductEvent, ItemID: id}
}

// Dispense asks for the selected item.
func Dispense() Event {
	return Event{Kind: DispenseEvent}
}

// ReturnChange cancels the transaction and refunds the balance.
func ReturnChange() Event {
	return Event{Kind: ReturnChangeEvent}
}

// Fault takes the machine out of order.
func Fault() Event {
	return Event{Kind: FaultEvent}
}

// Repair returns a faulted machine to service.
func Repair() Event {
	return Event{Kind: RepairEvent}
}

func (e Event) String() string {
	switch e.Kind {
	case InsertCoinEvent:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Amount)
	case SelectProductEvent:
		return fmt.Sprintf("%s(%s)", e.Kind, e.ItemID)
	default:
		return e.Kind.String()
	}
}

// Data is the transaction record that travels with the state.
type Data struct {
	Balance     money.Amount
	Selection   *catalog.Item
	Operational bool
}

// InitialData is the record of a freshly initialised machine.
func InitialData() Data {
	return Data{
		Balance:     money.Zero,
		Selection:   nil,
		Operational: true,
	}
}

// SelectedID returns the selected item id, or "" when nothing is selected.
func (d Data) SelectedID() string {
	if d.Selection == nil {
		return ""
	}

	return d.Selection.ID
}

// Result is the verdict of the rules for one event. When Accepted is false,
// Next and Data equal the inputs.
type Result struct {
	Accepted bool
	// NoOp is set for accepted events that change nothing (Repair while
	// operational, Fault while already faulted).
	NoOp    bool
	Next    State
	Data    Data
	Decline *Decline
	Message string
	// Change is what Dispense hands back beyond the price.
	Change money.Amount
	// Refund is what ReturnChange hands back.
	Refund money.Amount
	// Sold is the item released by Dispense.
	Sold *catalog.Item
}

// Err returns the decline as an error, or nil when accepted.
func (r Result) Err() error {
	if r.Decline == nil {
		return nil
	}

	return r.Decline
}
