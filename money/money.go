// Package money renders amounts for overlays.
package money

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Format renders amount with the symbol and precision of the ISO 4217 code.
// Unknown codes fall back to "<amount> <CODE>" with two decimals.
func Format(amount float64, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	unit, err := currency.ParseISO(code)
	if err != nil {
		return fmt.Sprintf("%.2f %s", amount, code)
	}

	scale, _ := currency.Standard.Rounding(unit)
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return sign + printer.Sprint(currency.Symbol(unit)) + printer.Sprintf("%.*f", scale, amount)
}

// ValidCode reports whether code is a known ISO 4217 currency.
func ValidCode(code string) bool {
	_, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	return err == nil
}
