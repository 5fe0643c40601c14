// Package money parses and formats the monetary strings the movement log and
// the API accept: either "1234.56" or the local "1.234,56" style, with or
// without an R$ prefix.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalid marks a monetary string that cannot be read as a number.
var ErrInvalid = errors.New("valor inválido")

// Parse reads a monetary string. A comma switches the interpretation to
// comma-decimal with periods as thousands separators.
func Parse(s string) (decimal.Decimal, error) {
	limpo := strings.NewReplacer("R$", "", " ", "", " ", "").Replace(s)
	if limpo == "" {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	if strings.Contains(limpo, ",") {
		limpo = strings.ReplaceAll(limpo, ".", "")
		limpo = strings.ReplaceAll(limpo, ",", ".")
	}
	d, err := decimal.NewFromString(limpo)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return d, nil
}

// Format renders an amount with two decimal places and a period separator,
// the form every log entry uses.
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}
