package money

import (
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Formatter renders amounts for people, using the currency symbol and the
// number conventions of a language.
type Formatter struct {
	unit    currency.Unit
	printer *message.Printer
}

// NewFormatter returns a Formatter for the ISO 4217 currency code and the
// BCP 47 language tag. Unknown codes fall back to USD, unknown tags to English.
func NewFormatter(code string, lang string) *Formatter {
	unit, err := currency.ParseISO(code)
	if err != nil {
		unit = currency.USD
	}

	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.English
	}

	return &Formatter{
		unit:    unit,
		printer: message.NewPrinter(tag),
	}
}

// Format renders the amount with its currency symbol, e.g. "$ 1.50".
func (f *Formatter) Format(a Amount) string {
	return f.printer.Sprint(currency.Symbol(f.unit.Amount(a.Float64())))
}

// Currency returns the ISO code of the formatter's currency.
func (f *Formatter) Currency() string {
	return f.unit.String()
}
