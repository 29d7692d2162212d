package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimal places used across the ledger. Prices carry more precision than
// balances because they are the quotient of two large accumulator values.
const (
	PricePlaces  = 10
	AmountPlaces = 8
)

// DerivePrice computes the model price TotalInvestment / TotalTokenSupply.
// Supply is validated non-zero at bootstrap, so no division-by-zero path
// exists at runtime.
func DerivePrice(totalInvestment, totalTokenSupply decimal.Decimal) decimal.Decimal {
	return totalInvestment.DivRound(totalTokenSupply, PricePlaces)
}

// TokensFor converts a currency amount into tokens at the given price.
func TokensFor(currencyAmount, price decimal.Decimal) decimal.Decimal {
	return currencyAmount.DivRound(price, AmountPlaces)
}

// CurrencyFor converts a token amount into currency at the given price.
// Multiplication is exact in decimal arithmetic; the result is rounded to
// ledger precision.
func CurrencyFor(tokenAmount, price decimal.Decimal) decimal.Decimal {
	return tokenAmount.Mul(price).Round(AmountPlaces)
}

// ParsePositiveAmount parses a decimal string and requires it to be
// strictly positive.
func ParsePositiveAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be positive, got %s", d)
	}
	return d, nil
}

// ParseRate parses a fee/commission rate and requires 0 <= rate < 1.
func ParseRate(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid rate %q: %w", s, err)
	}
	if d.IsNegative() || d.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("rate must be in [0, 1), got %s", d)
	}
	return d, nil
}
