package payments

import (
	"fmt"
	"strings"
)

var currencySymbols = map[string]string{
	"gbp": "£",
	"usd": "$",
	"eur": "€",
	"jpy": "¥",
}

// zero-decimal currencies are not divided into minor units
var zeroDecimal = map[string]bool{
	"jpy": true,
	"krw": true,
}

// FormatAmount renders minor units as "<symbol><major> <CODE>", e.g.
// FormatAmount(2500, "gbp") == "£25.00 GBP". Unknown currencies get no symbol.
func FormatAmount(unitAmount int64, currency string) string {
	code := strings.ToLower(strings.TrimSpace(currency))
	symbol := currencySymbols[code]
	upper := strings.ToUpper(code)
	if zeroDecimal[code] {
		return fmt.Sprintf("%s%d %s", symbol, unitAmount, upper)
	}
	sign, abs := "", unitAmount
	if abs < 0 {
		sign, abs = "-", -abs
	}
	return fmt.Sprintf("%s%s%d.%02d %s", sign, symbol, abs/100, abs%100, upper)
}
