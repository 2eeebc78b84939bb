// Package currency converts between the platform's decimal amounts and the
// gateway's integer minor-unit representation.
package currency

import (
	"github.com/shopspring/decimal"
)

// places maps ISO 4217 codes to their decimal-place count. Currencies missing
// from the table use the default of 2.
var places = map[string]int32{
	"BIF": 0,
	"CLP": 0,
	"DJF": 0,
	"GNF": 0,
	"ISK": 0,
	"JPY": 0,
	"KMF": 0,
	"KRW": 0,
	"PYG": 0,
	"RWF": 0,
	"UGX": 0,
	"UYI": 0,
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

const defaultPlaces = 2

// Places returns the number of decimal places for a currency code.
func Places(currency string) int32 {
	if p, ok := places[currency]; ok {
		return p
	}
	return defaultPlaces
}

// ToMinorUnits converts a decimal amount to the gateway's integer minor
// units, e.g. EUR 12.34 -> 1234, JPY 500 -> 500.
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(Places(currency)).Round(0).IntPart()
}

// ToDecimal converts integer minor units back to a decimal amount, rounding
// half up at the currency's precision so cent values survive the round trip.
func ToDecimal(minor int64, currency string) decimal.Decimal {
	p := Places(currency)
	return decimal.NewFromInt(minor).Shift(-p).Round(p)
}
