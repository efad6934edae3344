package statemachine

// Edge is one accepted transition of the table. Guard is a short
// human-readable condition, empty when the edge is unconditional.
type Edge struct {
	From  State     `json:"from"`
	To    State     `json:"to"`
	Event EventKind `json:"event"`
	Guard string    `json:"guard,omitempty"`
	// NoOp marks accepted events that leave state and data unchanged.
	NoOp bool `json:"noop,omitempty"`
}

// IsSelfLoop reports whether the edge starts and ends in the same state.
func (e Edge) IsSelfLoop() bool {
	return e.From == e.To
}

// Label is the edge text used by renderers, e.g. "InsertCoin [amount > 0]".
func (e Edge) Label() string {
	if e.Guard == "" {
		return e.Event.String()
	}

	return e.Event.String() + " [" + e.Guard + "]"
}

//nolint:gochecknoglobals
var edges = []Edge{
	{From: Idle, To: CoinInserted, Event: InsertCoinEvent, Guard: "amount > 0"},
	{From: Idle, To: OutOfOrder, Event: FaultEvent},
	{From: Idle, To: Idle, Event: RepairEvent, NoOp: true},

	{From: CoinInserted, To: CoinInserted, Event: InsertCoinEvent, Guard: "amount > 0"},
	{From: CoinInserted, To: ProductSelected, Event: SelectProductEvent, Guard: "balance >= price"},
	{From: CoinInserted, To: Idle, Event: ReturnChangeEvent},
	{From: CoinInserted, To: OutOfOrder, Event: FaultEvent},
	{From: CoinInserted, To: CoinInserted, Event: RepairEvent, NoOp: true},

	{From: ProductSelected, To: ProductSelected, Event: InsertCoinEvent, Guard: "amount > 0"},
	{From: ProductSelected, To: ProductSelected, Event: SelectProductEvent, Guard: "balance >= price"},
	{From: ProductSelected, To: Idle, Event: DispenseEvent},
	{From: ProductSelected, To: Idle, Event: ReturnChangeEvent},
	{From: ProductSelected, To: OutOfOrder, Event: FaultEvent},
	{From: ProductSelected, To: ProductSelected, Event: RepairEvent, NoOp: true},

	{From: OutOfOrder, To: OutOfOrder, Event: ReturnChangeEvent, Guard: "balance > 0"},
	{From: OutOfOrder, To: OutOfOrder, Event: FaultEvent, NoOp: true},
	{From: OutOfOrder, To: Idle, Event: RepairEvent},
}

// Edges returns the static transition graph. Declined cells have no edge.
func Edges() []Edge {
	out := make([]Edge, len(edges))
	copy(out, edges)

	return out
}

// EdgesFrom returns the edges leaving state.
func EdgesFrom(state State) []Edge {
	var out []Edge

	for _, e := range edges {
		if e.From == state {
			out = append(out, e)
		}
	}

	return out
}

// Capabilities are the per-state affordances shown to a customer.
type Capabilities struct {
	CanAcceptCoins  bool `json:"canAcceptCoins"`
	CanSelect       bool `json:"canSelect"`
	CanDispense     bool `json:"canDispense"`
	CanReturnChange bool `json:"canReturnChange"`
}

// CapabilitiesOf reports what a customer can do in state. OutOfOrder is the
// only state where a flag depends on the data: change can be returned only
// while a balance is held.
func CapabilitiesOf(state State, data Data) Capabilities {
	switch state {
	case Idle:
		return Capabilities{CanAcceptCoins: true}
	case CoinInserted:
		return Capabilities{CanAcceptCoins: true, CanSelect: true, CanReturnChange: true}
	case ProductSelected:
		return Capabilities{CanAcceptCoins: true, CanSelect: true, CanDispense: true, CanReturnChange: true}
	case OutOfOrder:
		return Capabilities{CanReturnChange: data.Balance.IsPositive()}
	default:
		return Capabilities{}
	}
}
