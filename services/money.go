package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const moneyPlaces = 2

// Round2 rounds to the ledger's two fractional digits.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}

// ValidateAmount accepts strictly positive amounts with at most two
// fractional digits. Extra precision is rejected rather than rounded away.
func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if !d.Equal(Round2(d)) {
		return fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, moneyPlaces)
	}
	return nil
}

// ValidateSignedAmount is ValidateAmount for admin adjustments, where the
// sign picks credit or debit.
func ValidateSignedAmount(d decimal.Decimal) error {
	if d.IsZero() {
		return fmt.Errorf("%w: must not be zero", ErrInvalidAmount)
	}
	return ValidateAmount(d.Abs())
}

// ParseAmount parses a decimal string such as "30.00".
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, raw)
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// Minor converts to integer minor units (paise, cents) for gateway APIs.
func Minor(d decimal.Decimal) int64 {
	return Round2(d).Shift(moneyPlaces).IntPart()
}

// FromMinor is the inverse of Minor.
func FromMinor(v int64) decimal.Decimal {
	return decimal.New(v, -moneyPlaces)
}
