package cli

import (
	"fmt"
	"strings"

	"github.com/amp-labs/vending/catalog"
	"github.com/amp-labs/vending/machine"
	"github.com/amp-labs/vending/money"
)

const panelWidth = 44

func yesNo(b bool) string {
	if b {
		return "yes"
	}

	return "no"
}

// StatusPanel renders a status snapshot as a boxed panel.
func StatusPanel(st machine.Status, cat *catalog.Catalog, fmtr *money.Formatter) string {
	selected := "none"

	if st.HasSelection() {
		selected = st.SelectedItemID

		if item, err := cat.Lookup(st.SelectedItemID); err == nil {
			selected = fmt.Sprintf("%s (%s)", item.Name, fmtr.Format(item.Price))
		}
	}

	lines := []string{
		"State:     " + st.StateLabel,
		"Balance:   " + fmtr.Format(st.Balance),
		"Selected:  " + selected,
		"Coins: " + yesNo(st.CanAcceptCoins) +
			"  Select: " + yesNo(st.CanSelect) +
			"  Dispense: " + yesNo(st.CanDispense),
		"Return change: " + yesNo(st.CanReturnChange),
	}

	return Banner(strings.Join(lines, "\n"), panelWidth, AlignLeft)
}

// OutcomeLine renders one dispatched event as a single line, e.g.
// "✓ Inserted 1.00. Total: 1.00" or "✗ [InsufficientFunds] Insufficient funds...".
func OutcomeLine(out machine.Outcome) string {
	switch {
	case !out.Accepted:
		return fmt.Sprintf("✗ [%s] %s", out.Kind(), out.Message)
	case out.NoOp:
		return "· " + out.Message
	default:
		return "✓ " + out.Message
	}
}

// CatalogTable renders the catalog one item per line in catalog order.
func CatalogTable(cat *catalog.Catalog, fmtr *money.Formatter) string {
	var sb strings.Builder

	width := 0
	for _, item := range cat.Items() {
		width = max(width, len(item.ID))
	}

	for _, item := range cat.Items() {
		fmt.Fprintf(&sb, "%-*s  %-12s %s\n", width, item.ID, item.Name, fmtr.Format(item.Price))
	}

	return sb.String()
}
