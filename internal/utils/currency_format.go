package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// currencyPrecision lists ISO 4217 minor units that differ from the default of 2.
var currencyPrecision = map[string]int32{
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0,
	"KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0, "VND": 0, "VUV": 0, "XAF": 0,
	"XOF": 0, "XPF": 0,
}

// CurrencyPrecision returns the number of minor-unit digits for an ISO 4217 code.
func CurrencyPrecision(code string) int32 {
	if p, ok := currencyPrecision[strings.ToUpper(code)]; ok {
		return p
	}
	return 2
}

// FormatAmount renders amount with the precision of its currency followed by the code.
// Example: 12.3456 USD returns "12.35 USD", 1200 JPY returns "1200 JPY".
func FormatAmount(amount decimal.Decimal, code string) string {
	return FormatWithPrecision(amount, CurrencyPrecision(code)) + " " + strings.ToUpper(code)
}

// FormatWithPrecision formats an amount with the given precision, padding zeros.
func FormatWithPrecision(amount decimal.Decimal, precision int32) string {
	return amount.StringFixed(precision)
}
