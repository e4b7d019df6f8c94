package domain

import "github.com/shopspring/decimal"

func init() {
	// Amounts travel as JSON numbers in tool payloads.
	decimal.MarshalJSONWithoutQuotes = true
}

// RoundMoney rounds half away from zero to whole cents.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Money parses a literal amount, panicking on malformed input. Intended for constants.
func Money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
