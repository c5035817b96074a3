package models

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// ParsePrice разбирает цену, пришедшую строкой или числом.
// Пустые значения, null, "0" и всё, что не больше нуля, ценой не считаются.
func ParsePrice(value string) (decimal.Decimal, bool) {
	value = strings.TrimSpace(value)
	if value == "" || value == "0" || value == "null" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(value)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

// ParsePriceJSON - то же для сырого JSON-значения.
func ParsePriceJSON(raw []byte) (decimal.Decimal, bool) {
	if len(raw) == 0 {
		return decimal.Zero, false
	}
	v := gjson.ParseBytes(raw)
	switch v.Type {
	case gjson.String, gjson.Number:
		return ParsePrice(v.String())
	}
	return decimal.Zero, false
}

// ParsePriceResult - то же для значения, найденного через gjson.
func ParsePriceResult(v gjson.Result) (decimal.Decimal, bool) {
	switch v.Type {
	case gjson.String:
		return ParsePrice(v.Str)
	case gjson.Number:
		return ParsePrice(v.Raw)
	}
	return decimal.Zero, false
}
