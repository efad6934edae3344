//nolint:varnamelen // Test file
package validator

import (
	"testing"

	"github.com/amp-labs/vending/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateMachineGraph(t *testing.T) {
	t.Parallel()

	result := Validate()
	require.True(t, result.Valid, result.String())
	assert.False(t, result.HasErrors())

	// Repair carries a balance into Idle, which has no refund edge.
	require.True(t, result.HasWarnings())
	assert.Equal(t, []string{"CARRIED_BALANCE"}, result.Codes())
	assert.Equal(t, "Idle", result.Warnings[0].Location.State)
	assert.Contains(t, result.String(), "Transition graph is valid")
}

func TestValidateStrict(t *testing.T) {
	t.Parallel()

	result := ValidateStrict()
	assert.False(t, result.Valid)
	assert.False(t, result.HasWarnings())
	assert.Equal(t, []string{"CARRIED_BALANCE"}, result.Codes())
	assert.Contains(t, result.String(), "(state: Idle)")
}

func TestValidateBrokenGraphs(t *testing.T) {
	t.Parallel()

	states := statemachine.States()

	tests := []struct {
		name       string
		edges      []statemachine.Edge
		wantErrors []string
	}{
		{
			name: "unreachable and trapped",
			edges: []statemachine.Edge{
				{From: statemachine.Idle, To: statemachine.CoinInserted, Event: statemachine.InsertCoinEvent},
				{From: statemachine.CoinInserted, To: statemachine.Idle, Event: statemachine.ReturnChangeEvent},
				{From: statemachine.ProductSelected, To: statemachine.Idle, Event: statemachine.DispenseEvent},
			},
			wantErrors: []string{"UNREACHABLE_STATE", "NO_PATH_HOME"},
		},
		{
			name: "ambiguous",
			edges: append(statemachine.Edges(),
				statemachine.Edge{From: statemachine.CoinInserted, To: statemachine.OutOfOrder, Event: statemachine.ReturnChangeEvent},
			),
			wantErrors: []string{"AMBIGUOUS_EDGE", "EDGE_DISAGREES"},
		},
		{
			name: "disagrees with rules",
			edges: append(statemachine.Edges(),
				statemachine.Edge{From: statemachine.Idle, To: statemachine.ProductSelected, Event: statemachine.SelectProductEvent},
			),
			wantErrors: []string{"EDGE_DISAGREES"},
		},
		{
			name: "undeclared state",
			edges: append(statemachine.Edges(),
				statemachine.Edge{From: statemachine.OutOfOrder, To: statemachine.State(7), Event: statemachine.DispenseEvent},
			),
			wantErrors: []string{"UNKNOWN_STATE", "EDGE_DISAGREES"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := ValidateWithRules(Graph{
				Initial: statemachine.Idle,
				States:  states,
				Edges:   tt.edges,
			}, DefaultRules())

			assert.False(t, result.Valid)

			codes := make(map[string]bool)
			for _, e := range result.Errors {
				codes[e.Code] = true
			}

			for _, want := range tt.wantErrors {
				assert.True(t, codes[want], "expected %s in %v", want, result.Codes())
			}
		})
	}
}

func TestMayHoldBalance(t *testing.T) {
	t.Parallel()

	holds := mayHoldBalance(MachineGraph())

	for _, s := range statemachine.States() {
		assert.True(t, holds[s], s.String())
	}

	onlyRefunds := mayHoldBalance(Graph{Edges: []statemachine.Edge{
		{From: statemachine.Idle, To: statemachine.OutOfOrder, Event: statemachine.FaultEvent},
		{From: statemachine.OutOfOrder, To: statemachine.Idle, Event: statemachine.RepairEvent},
	}})
	assert.Empty(t, onlyRefunds)
}
