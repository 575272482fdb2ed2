package notify

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Formatter formats numbers in template data for a locale.
type Formatter struct {
	printer *message.Printer
}

// NewFormatter returns a Formatter for the BCP 47 language tag, e.g. "en" or
// "de-CH".
func NewFormatter(locale string) (Formatter, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return Formatter{}, fmt.Errorf("invalid locale %q: %w", locale, err)
	}

	return Formatter{printer: message.NewPrinter(tag)}, nil
}

// Amount formats an amount with two decimal places and grouping.
func (f Formatter) Amount(d decimal.Decimal) string {
	return f.printer.Sprint(number.Decimal(d.Round(2).InexactFloat64(), number.Scale(2)))
}

// Percent formats a percentage with one decimal place, e.g. "90.0".
func (f Formatter) Percent(d decimal.Decimal) string {
	return f.printer.Sprint(number.Decimal(d.Round(1).InexactFloat64(), number.Scale(1)))
}
