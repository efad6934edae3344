package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/amp-labs/vending/logger"
	"github.com/amp-labs/vending/machine"
	"github.com/amp-labs/vending/money"
	"github.com/amp-labs/vending/statemachine"
	"github.com/manifoldco/promptui"
)

// Session is an interactive menu loop driving one machine.
type Session struct {
	Machine   *machine.Machine
	Formatter *money.Formatter
	Prompter  Prompter
	Out       io.Writer
}

// Run shows the status panel, asks for an action and applies it until the user
// quits, interrupts the prompt or ctx ends.
func (s *Session) Run(ctx context.Context) error {
	cat := s.Machine.Catalog()

	_, _ = fmt.Fprint(s.Out, BannerAutoWidth("Vending Machine", AlignCenter))

	for {
		if err := ctx.Err(); err != nil {
			return nil //nolint:nilerr
		}

		_, _ = fmt.Fprint(s.Out, StatusPanel(s.Machine.Status(), cat, s.Formatter))

		action, err := s.Prompter.SelectAction()
		if err != nil {
			return quitOn(err)
		}

		if action == ActionQuit {
			return nil
		}

		line, err := s.apply(ctx, action)
		if err != nil {
			return quitOn(err)
		}

		_, _ = fmt.Fprintln(s.Out, line)
	}
}

// apply runs one menu action and returns the line to show.
func (s *Session) apply(ctx context.Context, action Action) (string, error) {
	m := s.Machine

	var ev statemachine.Event

	switch action {
	case ActionInsertCoin:
		amt, err := s.Prompter.PromptAmount("Amount")
		if err != nil {
			return "", err
		}

		ev = statemachine.InsertCoin(amt)
	case ActionSelect:
		id, err := s.Prompter.SelectItem(m.Catalog(), s.Formatter)
		if err != nil {
			return "", err
		}

		ev = m.SelectEvent(id)
	case ActionDispense:
		ev = statemachine.Dispense()
	case ActionReturnChange:
		ev = statemachine.ReturnChange()
	case ActionFault:
		ev = statemachine.Fault()
	case ActionRepair:
		ev = statemachine.Repair()
	case ActionStatus:
		out, err := m.Status().JSON()
		if err != nil {
			return "", err
		}

		return string(out), nil
	case ActionReset:
		ok, err := s.Prompter.PromptConfirm("Reset the machine and discard any balance")
		if err != nil || !ok {
			return "Reset cancelled.", err
		}

		return "Machine reset: " + m.Reset(ctx).String(), nil
	case ActionQuit:
		return "", nil
	}

	return OutcomeLine(m.Dispatch(ctx, ev)), nil
}

// quitOn treats an interrupted or closed prompt as a normal exit.
func quitOn(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		logger.Get().Debug("prompt closed", "error", err)

		return nil
	}

	return err
}
