package util

import "github.com/shopspring/decimal"

// MoneyPlaces is the precision used for prices, fees and PnL.
const MoneyPlaces = 8

// Round rounds half away from zero to places decimals.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// RoundMoney rounds to MoneyPlaces.
func RoundMoney(v float64) float64 {
	return Round(v, MoneyPlaces)
}

// TruncateAmount cuts qty down to places decimals so an order never exceeds
// what is held.
func TruncateAmount(qty float64, places int32) float64 {
	return decimal.NewFromFloat(qty).Truncate(places).InexactFloat64()
}

// FormatAmount renders v with exactly places decimals, the form order
// endpoints expect.
func FormatAmount(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}
