// Package visualizer renders the vending transition graph as Mermaid or
// Graphviz DOT text.
//
//nolint:varnamelen // short names idiomatic
package visualizer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/amp-labs/vending/statemachine"
)

// Visualizer errors.
var (
	ErrNoEdges       = errors.New("graph has no edges")
	ErrUnknownFormat = errors.New("unknown diagram format")
)

// Format selects the output language.
type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatDOT     Format = "dot"
)

// ParseFormat accepts "mermaid" or "dot" (also "graphviz").
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mermaid":
		return FormatMermaid, nil
	case "dot", "graphviz":
		return FormatDOT, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// Generate renders the machine's transition graph in the given format.
func Generate(format Format, opts Options) (string, error) {
	switch format {
	case FormatMermaid:
		return GenerateMermaidWithOptions(statemachine.Edges(), opts)
	case FormatDOT:
		return GenerateDOTWithOptions(statemachine.Edges(), opts)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// GenerateMermaid converts the machine's transition graph to a Mermaid state diagram.
func GenerateMermaid() (string, error) {
	return GenerateMermaidWithOptions(statemachine.Edges(), DefaultOptions())
}

// GenerateMermaidWithOptions generates a Mermaid diagram of edges.
func GenerateMermaidWithOptions(edges []statemachine.Edge, opts Options) (string, error) {
	if len(edges) == 0 {
		return "", ErrNoEdges
	}

	var sb strings.Builder

	if opts.Fenced {
		sb.WriteString("```mermaid\n")
	}

	sb.WriteString("stateDiagram-v2\n")

	if opts.Direction != "" {
		sb.WriteString(fmt.Sprintf("    direction %s\n", opts.Direction))
	}

	sb.WriteString(fmt.Sprintf("    [*] --> %s\n", statemachine.Idle))

	for _, state := range statemachine.States() {
		if state.Label() != state.String() {
			sb.WriteString(fmt.Sprintf("    %s: %s\n", state, state.Label()))
		}
	}

	for _, e := range edges {
		if e.NoOp && !opts.ShowNoOps {
			continue
		}

		sb.WriteString(fmt.Sprintf("    %s --> %s: %s\n", e.From, e.To, opts.edgeLabel(e)))
	}

	sb.WriteString("\n")
	sb.WriteString("    classDef faultState fill:#ffcdd2,stroke:#c62828,stroke-width:2px\n")
	sb.WriteString("    classDef highlighted fill:#fff9c4,stroke:#f57f17,stroke-width:3px\n")

	for _, state := range statemachine.States() {
		switch {
		case opts.highlighted(state):
			sb.WriteString(fmt.Sprintf("    class %s highlighted\n", state))
		case state == statemachine.OutOfOrder:
			sb.WriteString(fmt.Sprintf("    class %s faultState\n", state))
		}
	}

	if opts.Fenced {
		sb.WriteString("```\n")
	}

	return sb.String(), nil
}

// GenerateDOT converts the machine's transition graph to Graphviz DOT.
func GenerateDOT() (string, error) {
	return GenerateDOTWithOptions(statemachine.Edges(), DefaultOptions())
}

// GenerateDOTWithOptions generates a DOT digraph of edges.
func GenerateDOTWithOptions(edges []statemachine.Edge, opts Options) (string, error) {
	if len(edges) == 0 {
		return "", ErrNoEdges
	}

	rankdir := "LR"
	if opts.Direction == "TD" || opts.Direction == "TB" {
		rankdir = "TB"
	}

	var sb strings.Builder

	sb.WriteString("digraph vending {\n")
	sb.WriteString(fmt.Sprintf("    rankdir=%s;\n", rankdir))
	sb.WriteString("    node [shape=circle, style=filled, fillcolor=lightblue];\n")

	for _, state := range statemachine.States() {
		attrs := []string{fmt.Sprintf("label=%q", state.Label())}

		switch {
		case opts.highlighted(state):
			attrs = append(attrs, "fillcolor=lightgreen", "penwidth=3")
		case state == statemachine.OutOfOrder:
			attrs = append(attrs, "fillcolor=lightpink")
		}

		sb.WriteString(fmt.Sprintf("    %s [%s];\n", state, strings.Join(attrs, ", ")))
	}

	for _, e := range edges {
		if e.NoOp && !opts.ShowNoOps {
			continue
		}

		sb.WriteString(fmt.Sprintf("    %s -> %s [label=%q];\n", e.From, e.To, opts.edgeLabel(e)))
	}

	sb.WriteString("}\n")

	return sb.String(), nil
}
