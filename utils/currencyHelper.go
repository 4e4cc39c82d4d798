package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CurrencyCode is one of the two currencies the system supports. KES is
// the pivot currency; every stored rate is quoted against it.
type CurrencyCode string

const (
	CurrencyKES CurrencyCode = "KES"
	CurrencyUSD CurrencyCode = "USD"
)

// ResolveCurrencyCode maps free-form input to a supported currency.
// Unknown or empty codes resolve to KES.
func ResolveCurrencyCode(code string) CurrencyCode {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case string(CurrencyUSD):
		return CurrencyUSD
	default:
		return CurrencyKES
	}
}

// Round2 rounds to 2 decimal places, half away from zero.
func Round2(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// ConvertAmount converts amount between currencies using a pivot rate
// quoted as "1 KES = rate units of the other currency".
//
// Invalid input never fails: a non-positive rate or an unsupported pair
// yields the original amount rounded. This sits on the display path
// where blocking rendering is worse than showing an unconverted number.
func ConvertAmount(amount decimal.Decimal, fromCurrency CurrencyCode, toCurrency CurrencyCode, rate decimal.Decimal) decimal.Decimal {
	if fromCurrency == toCurrency {
		return Round2(amount)
	}
	if !rate.IsPositive() {
		return Round2(amount)
	}
	if fromCurrency == CurrencyKES && toCurrency == CurrencyUSD {
		return Round2(amount.Mul(rate))
	}
	if fromCurrency == CurrencyUSD && toCurrency == CurrencyKES {
		return Round2(amount.Div(rate))
	}
	// only KES<->USD is supported
	return Round2(amount)
}

// NormalizeInvoiceAmount re-expresses a document amount in the current
// display currency. recordRate and currentDisplayRate are quoted as KES
// per USD, matching the exchange_rate stored on documents.
//
// A USD document converted to KES keeps its own locked rate when one
// exists; the live rate is only a fallback. A KES document converted to
// USD always uses the live rate, since no historical rate ever applied
// to it.
func NormalizeInvoiceAmount(amount decimal.Decimal, recordCurrency string, recordRate *decimal.Decimal, targetCurrency CurrencyCode, currentDisplayRate decimal.Decimal) decimal.Decimal {
	resolved := ResolveCurrencyCode(recordCurrency)
	if resolved == targetCurrency {
		// same currency: preserve the exact historical value
		return Round2(amount)
	}

	switch {
	case resolved == CurrencyUSD && targetCurrency == CurrencyKES:
		rate := currentDisplayRate
		if recordRate != nil && recordRate.IsPositive() {
			rate = *recordRate
		}
		if !rate.IsPositive() {
			return Round2(amount)
		}
		return Round2(amount.Mul(rate))
	case resolved == CurrencyKES && targetCurrency == CurrencyUSD:
		if !currentDisplayRate.IsPositive() {
			return Round2(amount)
		}
		return Round2(amount.Div(currentDisplayRate))
	}
	return Round2(amount)
}
