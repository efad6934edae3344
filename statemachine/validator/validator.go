// Package validator checks the vending transition graph for structural
// problems: unreachable states, traps, ambiguous edges and edges that disagree
// with the transition rules.
package validator

import (
	"fmt"
	"strings"

	"github.com/amp-labs/vending/statemachine"
)

// Graph is the input to validation.
type Graph struct {
	Initial statemachine.State
	States  []statemachine.State
	Edges   []statemachine.Edge
}

// MachineGraph returns the graph of the vending machine's transition rules.
func MachineGraph() Graph {
	return Graph{
		Initial: statemachine.Idle,
		States:  statemachine.States(),
		Edges:   statemachine.Edges(),
	}
}

// ValidationResult contains the results of validating a graph.
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// ValidationError represents a validation error.
type ValidationError struct {
	Code     string   // Error code like "UNREACHABLE_STATE", "EDGE_DISAGREES"
	Message  string   // Human-readable error message
	Location Location // Where the error occurred
}

// ValidationWarning represents a non-critical issue.
type ValidationWarning struct {
	Code     string
	Message  string
	Location Location
}

// Location identifies where an issue occurred.
type Location struct {
	State string
	Event string
}

// Validate runs the default rules against the machine's own graph.
func Validate() ValidationResult {
	return ValidateWithRules(MachineGraph(), DefaultRules())
}

// ValidateStrict is Validate with warnings promoted to errors.
func ValidateStrict() ValidationResult {
	return ValidateWithRulesStrict(MachineGraph(), DefaultRules())
}

// ValidateWithRules validates using custom rules.
func ValidateWithRules(graph Graph, rules []Rule) ValidationResult {
	var result ValidationResult

	result.Valid = true

	for _, rule := range rules {
		ruleResult := rule.Check(graph)
		result.Errors = append(result.Errors, ruleResult.Errors...)
		result.Warnings = append(result.Warnings, ruleResult.Warnings...)
	}

	if len(result.Errors) > 0 {
		result.Valid = false
	}

	return result
}

// ValidateWithRulesStrict validates with strict mode (treats warnings as errors).
func ValidateWithRulesStrict(graph Graph, rules []Rule) ValidationResult {
	result := ValidateWithRules(graph, rules)

	for _, warning := range result.Warnings {
		result.Errors = append(result.Errors, ValidationError(warning))
	}

	result.Warnings = nil

	if len(result.Errors) > 0 {
		result.Valid = false
	}

	return result
}

// HasErrors returns true if the result has any errors.
func (r ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if the result has any warnings.
func (r ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Codes returns the error codes followed by the warning codes.
func (r ValidationResult) Codes() []string {
	codes := make([]string, 0, len(r.Errors)+len(r.Warnings))

	for _, e := range r.Errors {
		codes = append(codes, e.Code)
	}

	for _, w := range r.Warnings {
		codes = append(codes, w.Code)
	}

	return codes
}

// String returns a human-readable summary of validation results.
func (r ValidationResult) String() string {
	var sb strings.Builder

	if r.Valid {
		sb.WriteString("✓ Transition graph is valid\n")
	} else {
		sb.WriteString(fmt.Sprintf("✗ Transition graph has %d error(s)\n", len(r.Errors)))

		for _, err := range r.Errors {
			sb.WriteString(fmt.Sprintf("  [%s] %s%s\n", err.Code, err.Message, err.Location))
		}
	}

	if len(r.Warnings) > 0 {
		sb.WriteString(fmt.Sprintf("⚠ %d warning(s):\n", len(r.Warnings)))

		for _, warn := range r.Warnings {
			sb.WriteString(fmt.Sprintf("  [%s] %s%s\n", warn.Code, warn.Message, warn.Location))
		}
	}

	return sb.String()
}

func (l Location) String() string {
	switch {
	case l.State != "" && l.Event != "":
		return fmt.Sprintf(" (state: %s, event: %s)", l.State, l.Event)
	case l.State != "":
		return fmt.Sprintf(" (state: %s)", l.State)
	default:
		return ""
	}
}
