package earnings

import "github.com/shopspring/decimal"

// Split is the commission breakdown of one sale.
type Split struct {
	Gross      decimal.Decimal
	Commission decimal.Decimal
	Net        decimal.Decimal
}

// Compute returns gross = price*quantity, commission = round(gross*rate, 2)
// and net = gross - commission, so commission + net always equals gross.
func Compute(price decimal.Decimal, quantity int, rate decimal.Decimal) Split {
	gross := price.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
	commission := gross.Mul(rate).Round(2)
	return Split{
		Gross:      gross,
		Commission: commission,
		Net:        gross.Sub(commission),
	}
}
