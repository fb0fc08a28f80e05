package id

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
)

// ToBaseUnits scales a human amount ("1.25") to integer base units.
func ToBaseUnits(amount decimal.Decimal, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, clierr.New(clierr.CodeUsage, "decimals must be >= 0")
	}
	if amount.Sign() <= 0 {
		return nil, clierr.New(clierr.CodeUsage, "amount must be greater than zero")
	}
	scaled := amount.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("decimal precision exceeds token decimals (%d)", decimals))
	}
	return scaled.BigInt(), nil
}

// FromBaseUnits converts an integer base-unit string to a decimal amount.
func FromBaseUnits(baseUnits string, decimals int) (decimal.Decimal, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(baseUnits), 10)
	if !ok {
		return decimal.Zero, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid base-unit amount %q", baseUnits))
	}
	return decimal.NewFromBigInt(n, -int32(decimals)), nil
}

// FormatBaseUnits renders base units as a trimmed decimal string; invalid input yields "0".
func FormatBaseUnits(baseUnits string, decimals int) string {
	d, err := FromBaseUnits(baseUnits, decimals)
	if err != nil {
		return "0"
	}
	return d.String()
}

// ParseAmount parses a user-supplied decimal amount, tolerating thousands separators.
func ParseAmount(raw string) (decimal.Decimal, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, clierr.Wrap(clierr.CodeUsage, fmt.Sprintf("invalid amount %q", raw), err)
	}
	return d, nil
}
