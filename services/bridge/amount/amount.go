// Package amount converts human decimal amounts to and from the fixed-point
// integers used by ERC-20 contracts. All arithmetic is exact decimal math.
package amount

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"hlbridge/services/bridge/bridgeerr"
)

// MaxDecimals bounds the precision accepted from a token contract.
const MaxDecimals = 36

// plainDecimal is the only accepted spelling: digits with an optional
// fractional part. The string is signed verbatim, so exponent and sign forms
// are refused.
var plainDecimal = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// Parse validates a human amount string and returns it as a decimal. Only
// strictly positive plain decimals are accepted.
func Parse(human string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(human)
	if trimmed == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: empty amount", bridgeerr.ErrInvalidAmount)
	}
	if !plainDecimal.MatchString(trimmed) {
		return decimal.Decimal{}, fmt.Errorf("%w: %q is not a plain decimal", bridgeerr.ErrInvalidAmount, human)
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q is not a number", bridgeerr.ErrInvalidAmount, human)
	}
	if value.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: %q must be greater than zero", bridgeerr.ErrInvalidAmount, human)
	}
	return value, nil
}

// ToFixedPoint scales a human amount by 10^decimals and truncates any excess
// fractional digits. It never rounds up.
func ToFixedPoint(human string, decimals uint8) (*big.Int, error) {
	if decimals > MaxDecimals {
		return nil, fmt.Errorf("%w: unsupported precision %d", bridgeerr.ErrInvalidAmount, decimals)
	}
	value, err := Parse(human)
	if err != nil {
		return nil, err
	}
	raw := value.Shift(int32(decimals)).Truncate(0).BigInt()
	if raw.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %q is below the smallest unit at %d decimals", bridgeerr.ErrInvalidAmount, human, decimals)
	}
	return raw, nil
}

// FromFixedPoint is the exact inverse of ToFixedPoint. The result is meant for
// display and comparison only.
func FromFixedPoint(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// FormatFixedPoint renders a raw integer amount as a human string.
func FormatFixedPoint(raw *big.Int, decimals uint8) string {
	return FromFixedPoint(raw, decimals).String()
}
