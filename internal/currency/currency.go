// Package currency holds the supported display currencies and formats
// amounts for them.
package currency

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultCode is used when a user has no valid preference.
const DefaultCode = "INR"

// Info describes a supported currency.
type Info struct {
	Code   string `json:"code"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

var supported = map[string]Info{
	"INR": {"INR", "₹", "Indian Rupee"},
	"USD": {"USD", "$", "US Dollar"},
	"EUR": {"EUR", "€", "Euro"},
	"GBP": {"GBP", "£", "British Pound"},
	"JPY": {"JPY", "¥", "Japanese Yen"},
	"AUD": {"AUD", "A$", "Australian Dollar"},
	"CAD": {"CAD", "C$", "Canadian Dollar"},
	"CHF": {"CHF", "Fr", "Swiss Franc"},
	"CNY": {"CNY", "¥", "Chinese Yuan"},
	"SGD": {"SGD", "S$", "Singapore Dollar"},
	"HKD": {"HKD", "HK$", "Hong Kong Dollar"},
	"AED": {"AED", "د.إ", "UAE Dirham"},
}

var printer = message.NewPrinter(language.English)

// Valid reports whether code is supported.
func Valid(code string) bool {
	_, ok := supported[strings.ToUpper(code)]
	return ok
}

// Lookup returns the currency for code.
func Lookup(code string) (Info, bool) {
	info, ok := supported[strings.ToUpper(code)]
	return info, ok
}

// Symbol returns the display symbol for code, or the code itself when unknown.
func Symbol(code string) string {
	if info, ok := Lookup(code); ok {
		return info.Symbol
	}
	return code
}

// List returns all supported currencies sorted by name.
func List() []Info {
	out := make([]Info, 0, len(supported))
	for _, info := range supported {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Format renders amount with thousands separators and two decimals, prefixed
// by the currency symbol. Unknown codes format as INR.
func Format(amount decimal.Decimal, code string) string {
	info, ok := Lookup(code)
	if !ok {
		info = supported[DefaultCode]
	}
	return FormatWithSymbol(amount, info.Symbol)
}

// FormatWithSymbol is Format with an explicit symbol, for users with a
// custom symbol preference.
func FormatWithSymbol(amount decimal.Decimal, symbol string) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}
	f, _ := amount.Round(2).Float64()
	return sign + symbol + printer.Sprintf("%.2f", f)
}
