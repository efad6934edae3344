package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/amp-labs/vending/money"
	"github.com/manifoldco/promptui"
)

// ErrNotPositive is returned by ValidateCoin for zero or negative amounts.
var ErrNotPositive = errors.New("amount must be greater than zero")

// Prompter reads answers from a terminal.
type Prompter struct {
	Stdin  io.ReadCloser
	Stdout io.WriteCloser
}

func (p Prompter) PromptConfirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Stdin:     p.Stdin,
		Stdout:    p.Stdout,
	}

	_, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

// ValidateCoin accepts decimal amounts greater than zero.
func ValidateCoin(s string) error {
	amt, err := money.Parse(s)
	if err != nil {
		return err
	}

	if !amt.IsPositive() {
		return ErrNotPositive
	}

	return nil
}

// PromptAmount asks for a coin amount. The machine itself declines
// non-positive amounts; the prompt rejects them before they are sent.
func (p Prompter) PromptAmount(label string) (money.Amount, error) {
	prompt := promptui.Prompt{
		Label:    label,
		Default:  "1.00",
		Validate: ValidateCoin,
		Stdin:    p.Stdin,
		Stdout:   p.Stdout,
	}

	txt, err := prompt.Run()
	if err != nil {
		return money.Zero, err
	}

	amt, err := money.Parse(txt)
	if err != nil {
		return money.Zero, fmt.Errorf("invalid amount: %w", err)
	}

	return amt, nil
}
