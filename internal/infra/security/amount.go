package security

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"event-billing/internal/domain"
)

// AmountPlaces is the number of fraction digits the gateway accepts.
const AmountPlaces = 3

// ParseAmount parses a decimal string. Non-numeric or negative input fails
// with domain.ErrAmountInvalid.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", domain.ErrAmountInvalid, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrAmountInvalid, s)
	}
	return d, nil
}

// FormatAmount rounds to three fraction digits and trims trailing zeros and a
// dangling decimal point: 10.000 -> "10", 10.500 -> "10.5", 10.125 -> "10.125".
func FormatAmount(d decimal.Decimal) (string, error) {
	if d.IsNegative() {
		return "", fmt.Errorf("%w: %s", domain.ErrAmountInvalid, d.String())
	}
	s := d.Round(AmountPlaces).StringFixed(AmountPlaces)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	return s, nil
}

// FormatPrice renders a per-item price as "<CURRENCY> <amount>".
func FormatPrice(currencyCode string, d decimal.Decimal) (string, error) {
	a, err := FormatAmount(d)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(strings.TrimSpace(currencyCode)) + " " + a, nil
}
