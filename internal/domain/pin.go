package domain

import "github.com/shopspring/decimal"

// pinScale is the stored precision for USD snapshots. Balances compare with a
// 0.01 drift tolerance, so six fractional digits keeps division artifacts out.
const pinScale = 6

// PinUSD computes the USD-equivalent snapshot for an amount in the given
// currency. Rates are expressed as units per USD; USD passes through
// unchanged regardless of the rate argument.
func PinUSD(amount, rate decimal.Decimal, currency string) decimal.Decimal {
	if currency == CurrencyUSD {
		return amount
	}
	return amount.DivRound(rate, pinScale)
}

// ValidAmount reports whether an operation amount is acceptable.
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive()
}

// ValidRate reports whether an exchange rate is acceptable. Rates are units
// per USD and must be strictly positive.
func ValidRate(rate decimal.Decimal) bool {
	return rate.IsPositive()
}
