package machine

import (
	"encoding/json"
	"fmt"

	"github.com/amp-labs/vending/money"
	"github.com/amp-labs/vending/statemachine"
)

// Status is a read-only snapshot of a machine, computed on demand.
type Status struct {
	MachineID      string             `json:"machineId"`
	State          statemachine.State `json:"state"`
	StateLabel     string             `json:"stateLabel"`
	Balance        money.Amount       `json:"balance"`
	SelectedItemID string             `json:"selectedItemId,omitempty"`
	Operational    bool               `json:"operational"`
	TransactionID  string             `json:"transactionId,omitempty"`

	statemachine.Capabilities
}

// HasSelection reports whether an item is selected.
func (s Status) HasSelection() bool {
	return s.SelectedItemID != ""
}

// JSON renders the status as indented JSON.
func (s Status) JSON() ([]byte, error) {
	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal status: %w", err)
	}

	return out, nil
}

func (s Status) String() string {
	sel := "none"
	if s.HasSelection() {
		sel = s.SelectedItemID
	}

	return fmt.Sprintf("%s balance=%s selected=%s", s.StateLabel, s.Balance, sel)
}

func project(id, txID string, state statemachine.State, data statemachine.Data) Status {
	return Status{
		MachineID:      id,
		State:          state,
		StateLabel:     state.Label(),
		Balance:        data.Balance,
		SelectedItemID: data.SelectedID(),
		Operational:    data.Operational,
		TransactionID:  txID,
		Capabilities:   statemachine.CapabilitiesOf(state, data),
	}
}
