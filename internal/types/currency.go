package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// currencyExponents lists the currencies whose minor unit is not 1/100
var currencyExponents = map[string]int32{
	"BIF": 0,
	"CLP": 0,
	"DJF": 0,
	"GNF": 0,
	"JPY": 0,
	"KMF": 0,
	"KRW": 0,
	"PYG": 0,
	"RWF": 0,
	"UGX": 0,
	"VND": 0,
	"VUV": 0,
	"XAF": 0,
	"XOF": 0,
	"XPF": 0,

	"BHD": 3,
	"IQD": 3,
	"JOD": 3,
	"KWD": 3,
	"LYD": 3,
	"OMR": 3,
	"TND": 3,
}

// NormalizeCurrency upper-cases and validates a three letter ISO code
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", fmt.Errorf("invalid currency code: %q", code)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("invalid currency code: %q", code)
		}
	}
	return code, nil
}

// CurrencyExponent returns the number of minor unit digits of a currency
func CurrencyExponent(code string) int32 {
	if exp, ok := currencyExponents[strings.ToUpper(code)]; ok {
		return exp
	}
	return 2
}

// MinorToMajor converts an amount in minor units to a decimal in major units
func MinorToMajor(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -CurrencyExponent(currency))
}

// MajorToMinor converts a major unit decimal to minor units, rounding half
// away from zero
func MajorToMinor(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(CurrencyExponent(currency)).Round(0).IntPart()
}
