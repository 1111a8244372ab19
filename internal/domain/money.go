package domain

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// LineTotal multiplies the unit price by the count without any rounding.
func LineTotal(unitPrice decimal.Decimal, count int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(count)))
}

// MinorUnits converts an amount to the smallest currency unit. Amounts with
// sub-minor precision are rejected instead of rounded.
func MinorUnits(amount decimal.Decimal) (int64, error) {
	minor := amount.Mul(hundred)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, Validationf("amount %s has more than two decimal places", amount.String())
	}
	if minor.IsNegative() {
		return 0, Validationf("amount %s is negative", amount.String())
	}
	return minor.IntPart(), nil
}
