package visualizer

import "github.com/amp-labs/vending/statemachine"

// Options configures the visualization output.
type Options struct {
	// ShowGuards labels conditional edges with their guard.
	ShowGuards bool

	// ShowNoOps includes accepted events that change nothing.
	ShowNoOps bool

	// Direction controls diagram flow: "TD" (top-down) or "LR" (left-right).
	Direction string

	// Highlight marks states, typically the current one.
	Highlight []statemachine.State

	// Fenced wraps Mermaid output in a markdown code fence.
	Fenced bool
}

// DefaultOptions returns sensible defaults for visualization.
func DefaultOptions() Options {
	return Options{
		ShowGuards: true,
		ShowNoOps:  false,
		Direction:  "LR",
		Fenced:     true,
	}
}

// WithShowGuards enables/disables guard labels.
func (o Options) WithShowGuards(show bool) Options {
	o.ShowGuards = show

	return o
}

// WithShowNoOps enables/disables no-op self loops.
func (o Options) WithShowNoOps(show bool) Options {
	o.ShowNoOps = show

	return o
}

// WithDirection sets the diagram direction.
func (o Options) WithDirection(direction string) Options {
	o.Direction = direction

	return o
}

// WithHighlight sets states to highlight.
func (o Options) WithHighlight(states ...statemachine.State) Options {
	o.Highlight = states

	return o
}

// WithFenced toggles the markdown code fence around Mermaid output.
func (o Options) WithFenced(fenced bool) Options {
	o.Fenced = fenced

	return o
}

func (o Options) highlighted(state statemachine.State) bool {
	for _, s := range o.Highlight {
		if s == state {
			return true
		}
	}

	return false
}

func (o Options) edgeLabel(e statemachine.Edge) string {
	if o.ShowGuards {
		return e.Label()
	}

	return e.Event.String()
}
