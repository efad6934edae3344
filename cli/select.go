package cli

import (
	"fmt"
	"strings"

	"github.com/amp-labs/vending/catalog"
	"github.com/amp-labs/vending/money"
	"github.com/manifoldco/promptui"
)

// Action is one entry of the interactive menu.
type Action string

const (
	ActionInsertCoin   Action = "Insert coin"
	ActionSelect       Action = "Select product"
	ActionDispense     Action = "Dispense"
	ActionReturnChange Action = "Return change"
	ActionFault        Action = "Mark out of order"
	ActionRepair       Action = "Mark repaired"
	ActionStatus       Action = "Show status (JSON)"
	ActionReset        Action = "Reset machine"
	ActionQuit         Action = "Quit"
)

// Actions lists the menu in display order.
func Actions() []Action {
	return []Action{
		ActionInsertCoin,
		ActionSelect,
		ActionDispense,
		ActionReturnChange,
		ActionFault,
		ActionRepair,
		ActionStatus,
		ActionReset,
		ActionQuit,
	}
}

// searchPrefix matches menu entries by case-insensitive prefix.
func searchPrefix(names []string) func(string, int) bool {
	return func(input string, index int) bool {
		if len(input) == 0 {
			return false
		}

		return strings.HasPrefix(strings.ToLower(names[index]), strings.ToLower(input))
	}
}

// SelectAction shows the main menu.
func (p Prompter) SelectAction() (Action, error) {
	actions := Actions()
	names := make([]string, len(actions))

	for i, a := range actions {
		names[i] = string(a)
	}

	sel := &promptui.Select{
		Label:    "What next?",
		Items:    names,
		Size:     len(names),
		Searcher: searchPrefix(names),
		Stdin:    p.Stdin,
		Stdout:   p.Stdout,
	}

	idx, _, err := sel.Run()
	if err != nil {
		return "", err
	}

	return actions[idx], nil
}

// ItemLabels renders catalog items as menu entries, e.g. "SODA  Soda  $ 1.50".
func ItemLabels(cat *catalog.Catalog, fmtr *money.Formatter) []string {
	items := cat.Items()
	labels := make([]string, len(items))

	for i, item := range items {
		labels[i] = fmt.Sprintf("%-6s %-10s %s", item.ID, item.Name, fmtr.Format(item.Price))
	}

	return labels
}

// SelectItem asks for a catalog item and returns its id.
func (p Prompter) SelectItem(cat *catalog.Catalog, fmtr *money.Formatter) (string, error) {
	labels := ItemLabels(cat, fmtr)

	sel := &promptui.Select{
		Label:    "Choose a product",
		Items:    labels,
		Searcher: searchPrefix(labels),
		Stdin:    p.Stdin,
		Stdout:   p.Stdout,
	}

	idx, _, err := sel.Run()
	if err != nil {
		return "", err
	}

	return cat.Items()[idx].ID, nil
}
