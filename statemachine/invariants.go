package statemachine

import (
	"errors"
	"fmt"
)

var (
	// ErrNegativeBalance indicates a balance below zero.
	ErrNegativeBalance = errors.New("balance is negative")
	// ErrSelectionMismatch indicates a selection outside ProductSelected, or none inside it.
	ErrSelectionMismatch = errors.New("selection does not match state")
	// ErrOperationalMismatch indicates the operational flag disagrees with the state.
	ErrOperationalMismatch = errors.New("operational flag does not match state")
	// ErrUnfundedSelection indicates a selection priced above the balance.
	ErrUnfundedSelection = errors.New("selection is not covered by balance")
)

// CheckInvariants verifies the (state, data) pair a machine is about to
// commit. All violations are joined into the returned error.
func CheckInvariants(state State, data Data) error {
	var errs []error

	if !state.Valid() {
		errs = append(errs, fmt.Errorf("%w: %s", ErrUnknownState, state))
	}

	if data.Balance < 0 {
		errs = append(errs, fmt.Errorf("%w: %s", ErrNegativeBalance, data.Balance))
	}

	if (state == ProductSelected) != (data.Selection != nil) {
		errs = append(errs, fmt.Errorf("%w: state %s, selection %q", ErrSelectionMismatch, state, data.SelectedID()))
	}

	if (state == OutOfOrder) == data.Operational {
		errs = append(errs, fmt.Errorf("%w: state %s, operational %t", ErrOperationalMismatch, state, data.Operational))
	}

	if data.Selection != nil && data.Balance < data.Selection.Price {
		errs = append(errs, fmt.Errorf("%w: balance %s, price %s",
			ErrUnfundedSelection, data.Balance, data.Selection.Price))
	}

	return errors.Join(errs...)
}
