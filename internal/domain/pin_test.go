package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPinUSD(t *testing.T) {
	// 90 EUR at 0.90 per USD is exactly 100 USD.
	got := PinUSD(decimal.NewFromInt(90), decimal.RequireFromString("0.90"), "EUR")
	assert.True(t, got.Equal(decimal.NewFromInt(100)), "got %s", got)

	// Non-terminating divisions round at six fractional digits.
	got = PinUSD(decimal.NewFromInt(100), decimal.NewFromInt(3), "CUP")
	assert.Equal(t, "33.333333", got.String())

	// USD passes through untouched, whatever the rate says.
	got = PinUSD(decimal.RequireFromString("250.50"), decimal.NewFromInt(7), CurrencyUSD)
	assert.True(t, got.Equal(decimal.RequireFromString("250.50")))
}

func TestValidAmountAndRate(t *testing.T) {
	assert.True(t, ValidAmount(decimal.RequireFromString("0.01")))
	assert.False(t, ValidAmount(decimal.Zero))
	assert.False(t, ValidAmount(decimal.NewFromInt(-5)))

	assert.True(t, ValidRate(decimal.RequireFromString("320")))
	assert.False(t, ValidRate(decimal.Zero))
	assert.False(t, ValidRate(decimal.NewFromInt(-1)))
}
