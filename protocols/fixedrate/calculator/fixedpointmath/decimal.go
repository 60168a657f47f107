package fixedpointmath

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var ErrInvalidDecimal = errors.New("invalid fixed point decimal")

// ToDecimal interprets x as an 18-decimal fixed-point value.
func ToDecimal(x *uint256.Int) decimal.Decimal {
	return decimal.NewFromBigInt(x.ToBig(), -Decimals)
}

// ToDecimalInt interprets a signed x as an 18-decimal fixed-point value.
func ToDecimalInt(x *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(x, -Decimals)
}

// FromDecimal converts d to its 18-decimal fixed-point representation.
// Negative values and values with more than 18 fractional digits are rejected.
func FromDecimal(d decimal.Decimal) (*uint256.Int, error) {
	if d.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s is negative", ErrInvalidDecimal, d)
	}
	scaled := d.Shift(Decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: %s has more than %d fractional digits", ErrInvalidDecimal, d, Decimals)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: %s", ErrOverflow, d)
	}
	return v, nil
}

// Parse reads a human-readable decimal such as "0.05" into fixed point.
func Parse(s string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDecimal, err)
	}
	return FromDecimal(d)
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(s string) *uint256.Int {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Format renders x as a plain decimal string, e.g. "1.5" for 1.5e18.
func Format(x *uint256.Int) string {
	return ToDecimal(x).String()
}
