//nolint:lll,mnd // Long validation messages
package validator

import (
	"fmt"

	"github.com/amp-labs/vending/catalog"
	"github.com/amp-labs/vending/money"
	"github.com/amp-labs/vending/statemachine"
)

// Severity defines the severity level of a validation issue.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

// RuleResult contains both errors and warnings from a rule check.
type RuleResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// Rule defines a validation rule that can check a graph for specific issues.
type Rule interface {
	Name() string
	Severity() Severity
	Check(graph Graph) RuleResult
}

// DefaultRules returns the standard set of validation rules.
func DefaultRules() []Rule {
	return []Rule{
		&undeclaredStateRule{},
		&unreachableStateRule{},
		&noPathHomeRule{},
		&ambiguousEdgeRule{},
		&edgeAgreementRule{},
		&carriedBalanceRule{},
	}
}

// undeclaredStateRule checks that every edge endpoint is a declared state.
type undeclaredStateRule struct{}

func (r *undeclaredStateRule) Name() string {
	return "UndeclaredState"
}

func (r *undeclaredStateRule) Severity() Severity {
	return SeverityError
}

func (r *undeclaredStateRule) Check(graph Graph) RuleResult {
	var errors []ValidationError

	declared := make(map[statemachine.State]bool, len(graph.States))
	for _, s := range graph.States {
		declared[s] = true
	}

	for _, e := range graph.Edges {
		for _, s := range []statemachine.State{e.From, e.To} {
			if !declared[s] {
				errors = append(errors, ValidationError{
					Code:     "UNKNOWN_STATE",
					Message:  fmt.Sprintf("Edge %s -> %s references undeclared state '%s'", e.From, e.To, s),
					Location: Location{State: s.String(), Event: e.Event.String()},
				})
			}
		}
	}

	return RuleResult{Errors: errors}
}

// unreachableStateRule checks for states that cannot be reached from the initial state.
type unreachableStateRule struct{}

func (r *unreachableStateRule) Name() string {
	return "UnreachableState"
}

func (r *unreachableStateRule) Severity() Severity {
	return SeverityError
}

func (r *unreachableStateRule) Check(graph Graph) RuleResult {
	var errors []ValidationError

	reachable := reachableFrom(graph.Initial, adjacency(graph.Edges))

	for _, state := range graph.States {
		if !reachable[state] {
			errors = append(errors, ValidationError{
				Code:     "UNREACHABLE_STATE",
				Message:  fmt.Sprintf("State '%s' cannot be reached from initial state '%s'", state, graph.Initial),
				Location: Location{State: state.String()},
			})
		}
	}

	return RuleResult{Errors: errors}
}

// noPathHomeRule checks that the initial state can be reached again from every state.
type noPathHomeRule struct{}

func (r *noPathHomeRule) Name() string {
	return "NoPathHome"
}

func (r *noPathHomeRule) Severity() Severity {
	return SeverityError
}

func (r *noPathHomeRule) Check(graph Graph) RuleResult {
	var errors []ValidationError

	adj := adjacency(graph.Edges)

	for _, state := range graph.States {
		if !reachableFrom(state, adj)[graph.Initial] {
			errors = append(errors, ValidationError{
				Code:     "NO_PATH_HOME",
				Message:  fmt.Sprintf("State '%s' has no path back to '%s'", state, graph.Initial),
				Location: Location{State: state.String()},
			})
		}
	}

	return RuleResult{Errors: errors}
}

// ambiguousEdgeRule checks that each (state, event) pair has at most one edge.
type ambiguousEdgeRule struct{}

func (r *ambiguousEdgeRule) Name() string {
	return "AmbiguousEdge"
}

func (r *ambiguousEdgeRule) Severity() Severity {
	return SeverityError
}

func (r *ambiguousEdgeRule) Check(graph Graph) RuleResult {
	var errors []ValidationError

	type key struct {
		from  statemachine.State
		event statemachine.EventKind
	}

	seen := make(map[key]statemachine.State)

	for _, e := range graph.Edges {
		k := key{from: e.From, event: e.Event}

		if prev, dup := seen[k]; dup {
			errors = append(errors, ValidationError{
				Code:     "AMBIGUOUS_EDGE",
				Message:  fmt.Sprintf("Event %s from '%s' leads to both '%s' and '%s'", e.Event, e.From, prev, e.To),
				Location: Location{State: e.From.String(), Event: e.Event.String()},
			})

			continue
		}

		seen[k] = e.To
	}

	return RuleResult{Errors: errors}
}

// edgeAgreementRule replays every edge through the transition rules with a
// funded witness and checks the rules accept it with the same target.
type edgeAgreementRule struct{}

func (r *edgeAgreementRule) Name() string {
	return "EdgeAgreement"
}

func (r *edgeAgreementRule) Severity() Severity {
	return SeverityError
}

func (r *edgeAgreementRule) Check(graph Graph) RuleResult {
	var errors []ValidationError

	for _, e := range graph.Edges {
		data, ev := witness(e)
		res := statemachine.Evaluate(e.From, ev, data)

		switch {
		case !res.Accepted:
			errors = append(errors, ValidationError{
				Code:     "EDGE_DISAGREES",
				Message:  fmt.Sprintf("Edge %s -> %s is declined by the rules: %v", e.From, e.To, res.Err()),
				Location: Location{State: e.From.String(), Event: e.Event.String()},
			})
		case res.Next != e.To:
			errors = append(errors, ValidationError{
				Code:     "EDGE_DISAGREES",
				Message:  fmt.Sprintf("Edge %s -> %s leads to '%s' under the rules", e.From, e.To, res.Next),
				Location: Location{State: e.From.String(), Event: e.Event.String()},
			})
		case res.NoOp != e.NoOp:
			errors = append(errors, ValidationError{
				Code:     "EDGE_DISAGREES",
				Message:  fmt.Sprintf("Edge %s -> %s no-op flag is %t, rules say %t", e.From, e.To, e.NoOp, res.NoOp),
				Location: Location{State: e.From.String(), Event: e.Event.String()},
			})
		}
	}

	return RuleResult{Errors: errors}
}

// carriedBalanceRule warns about states that can hold a balance but offer no
// ReturnChange edge, so the balance can only leave through another purchase.
type carriedBalanceRule struct{}

func (r *carriedBalanceRule) Name() string {
	return "CarriedBalance"
}

func (r *carriedBalanceRule) Severity() Severity {
	return SeverityWarning
}

func (r *carriedBalanceRule) Check(graph Graph) RuleResult {
	var warnings []ValidationWarning

	holds := mayHoldBalance(graph)

	refunds := make(map[statemachine.State]bool)

	for _, e := range graph.Edges {
		if e.Event == statemachine.ReturnChangeEvent {
			refunds[e.From] = true
		}
	}

	for _, state := range graph.States {
		if holds[state] && !refunds[state] {
			warnings = append(warnings, ValidationWarning{
				Code:     "CARRIED_BALANCE",
				Message:  fmt.Sprintf("State '%s' can hold a balance but has no ReturnChange edge", state),
				Location: Location{State: state.String()},
			})
		}
	}

	return RuleResult{Warnings: warnings}
}

// Helper functions

//nolint:gochecknoglobals
var probeItem = catalog.Item{ID: "PROBE", Name: "Probe", Price: money.FromCents(100)}

// witness builds data and an event that should take edge e under the rules.
func witness(e statemachine.Edge) (statemachine.Data, statemachine.Event) {
	data := statemachine.InitialData()

	switch e.From {
	case statemachine.Idle:
	case statemachine.CoinInserted:
		data.Balance = money.FromCents(500)
	case statemachine.ProductSelected:
		item := probeItem
		data.Balance = money.FromCents(500)
		data.Selection = &item
	case statemachine.OutOfOrder:
		data.Balance = money.FromCents(100)
		data.Operational = false
	}

	switch e.Event {
	case statemachine.InsertCoinEvent:
		return data, statemachine.InsertCoin(money.FromCents(25))
	case statemachine.SelectProductEvent:
		return data, statemachine.SelectProduct(probeItem)
	case statemachine.DispenseEvent:
		return data, statemachine.Dispense()
	case statemachine.ReturnChangeEvent:
		return data, statemachine.ReturnChange()
	case statemachine.FaultEvent:
		return data, statemachine.Fault()
	default:
		return data, statemachine.Repair()
	}
}

func adjacency(edges []statemachine.Edge) map[statemachine.State][]statemachine.State {
	adj := make(map[statemachine.State][]statemachine.State)
	for _, e := range edges {
		adj[e.From] = append(adj[e.From], e.To)
	}

	return adj
}

func reachableFrom(start statemachine.State, adj map[statemachine.State][]statemachine.State) map[statemachine.State]bool {
	reachable := map[statemachine.State]bool{start: true}

	queue := []statemachine.State{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range adj[current] {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	return reachable
}

// mayHoldBalance computes, by fixpoint, which states can be entered with a
// positive balance. Coins create a balance; dispense and refunds clear it;
// every other event carries it over.
func mayHoldBalance(graph Graph) map[statemachine.State]bool {
	holds := make(map[statemachine.State]bool)

	for changed := true; changed; {
		changed = false

		for _, e := range graph.Edges {
			var positive bool

			switch e.Event {
			case statemachine.InsertCoinEvent:
				positive = true
			case statemachine.DispenseEvent, statemachine.ReturnChangeEvent:
				positive = false
			default:
				positive = holds[e.From]
			}

			if positive && !holds[e.To] {
				holds[e.To] = true
				changed = true
			}
		}
	}

	return holds
}
