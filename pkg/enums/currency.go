package enums

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 code the marketplace settles in.
type Currency string

const (
	CurrencyKZT Currency = "KZT"
	CurrencyRUB Currency = "RUB"
	CurrencyUSD Currency = "USD"
)

// exponent is the number of minor units per major unit, as chat invoice
// APIs expect prices in the smallest unit.
var currencyExponents = map[Currency]int32{
	CurrencyKZT: 2,
	CurrencyRUB: 2,
	CurrencyUSD: 2,
}

func (c Currency) String() string {
	return string(c)
}

func (c Currency) IsValid() bool {
	_, ok := currencyExponents[c]
	return ok
}

// ToMinor converts a major-unit amount into integer minor units, rounding
// half away from zero.
func (c Currency) ToMinor(amount decimal.Decimal) int64 {
	return amount.Shift(currencyExponents[c]).Round(0).IntPart()
}

// ParseCurrency accepts codes in any case and surrounding whitespace.
func ParseCurrency(value string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(value)))
	if !c.IsValid() {
		return "", fmt.Errorf("unsupported currency %q", value)
	}
	return c, nil
}
