package domain

import "github.com/shopspring/decimal"

// CurrencyPrecision is the number of decimal places amounts are kept at.
const CurrencyPrecision = 2

// MaxOrderTotal is the largest amount the order total and line subtotal
// columns hold.
var MaxOrderTotal = decimal.RequireFromString("999999999999999999.99")

func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPrecision)
}

func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(CurrencyPrecision)
}
