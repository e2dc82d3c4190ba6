package model

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
)

// ParsePositiveAmount parses a user-entered decimal amount string and
// reports whether it is a strictly positive value. Empty strings and zero
// parse cleanly to (zero, false).
func ParsePositiveAmount(s string) (decimal.Decimal, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, false
	}
	return d, d.IsPositive()
}

// DecimalToBaseUnits converts a decimal amount string into integer base
// units for a token with the given precision.
func DecimalToBaseUnits(amount string, decimals int) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "parse decimal amount", err)
	}
	if d.Sign() < 0 {
		return nil, clierr.New(clierr.CodeUsage, "amount must be non-negative")
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, clierr.New(clierr.CodeUsage, "decimal precision exceeds token decimals")
	}
	return scaled.BigInt(), nil
}

// BaseUnitsToDecimal renders integer base units as a trimmed decimal string.
func BaseUnitsToDecimal(baseUnits *big.Int, decimals int) string {
	if baseUnits == nil {
		return "0"
	}
	return decimal.NewFromBigInt(baseUnits, -int32(decimals)).String()
}
