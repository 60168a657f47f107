// Package fixedpointmath implements 18-decimal fixed-point arithmetic over 256-bit integers.
//
// Unsigned values are *uint256.Int. Signed values (exponents, logarithms, share adjustments)
// are *big.Int restricted to the int256 range. Every multiplication and division is explicitly
// rounded down or up; callers pick the direction that favors the pool.
package fixedpointmath

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Decimals is the number of fractional decimal digits of a fixed-point value.
const Decimals = 18

var (
	// One is the fixed-point representation of 1 (1e18). It MUST NOT be modified.
	One = uint256.NewInt(1e18)

	oneBig = big.NewInt(1e18)

	// bounds of the int256 domain used for signed values.
	maxInt256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
	minInt256 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))

	ErrOverflow       = errors.New("fixed point overflow")
	ErrUnderflow      = errors.New("fixed point underflow")
	ErrDivisionByZero = errors.New("fixed point division by zero")
	ErrNilValue       = errors.New("nil fixed point value")
)

// MulDivDown returns floor(x * y / d).
// It fails when x * y does not fit in 256 bits or when d is zero.
func MulDivDown(x, y, d *uint256.Int) (*uint256.Int, error) {
	product, err := mulChecked(x, y, d)
	if err != nil {
		return nil, err
	}
	return product.Div(product, d), nil
}

// MulDivUp returns ceil(x * y / d).
// It fails when x * y does not fit in 256 bits or when d is zero.
func MulDivUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	product, err := mulChecked(x, y, d)
	if err != nil {
		return nil, err
	}
	rem := new(uint256.Int).Mod(product, d)
	product.Div(product, d)
	if !rem.IsZero() {
		product.AddUint64(product, 1)
	}
	return product, nil
}

func mulChecked(x, y, d *uint256.Int) (*uint256.Int, error) {
	if x == nil || y == nil || d == nil {
		return nil, ErrNilValue
	}
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	product, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s", ErrOverflow, x.Dec(), y.Dec())
	}
	return product, nil
}

// MulDown returns a * b rounded down.
func MulDown(a, b *uint256.Int) (*uint256.Int, error) {
	return MulDivDown(a, b, One)
}

// MulUp returns a * b rounded up.
func MulUp(a, b *uint256.Int) (*uint256.Int, error) {
	return MulDivUp(a, b, One)
}

// DivDown returns a / b rounded down.
func DivDown(a, b *uint256.Int) (*uint256.Int, error) {
	return MulDivDown(a, One, b)
}

// DivUp returns a / b rounded up.
func DivUp(a, b *uint256.Int) (*uint256.Int, error) {
	return MulDivUp(a, One, b)
}

// Min returns a copy of the smaller of a and b.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a.Clone()
	}
	return b.Clone()
}

// Max returns a copy of the larger of a and b.
func Max(a, b *uint256.Int) *uint256.Int {
	if a.Gt(b) {
		return a.Clone()
	}
	return b.Clone()
}

// MinInt returns a copy of the smaller of two signed values.
func MinInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// MaxInt returns a copy of the larger of two signed values.
func MaxInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) > 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// ToInt256 converts an unsigned value to a signed one. Values of 2^255 and above do not fit.
func ToInt256(x *uint256.Int) (*big.Int, error) {
	if x == nil {
		return nil, ErrNilValue
	}
	if x.BitLen() > 255 {
		return nil, fmt.Errorf("%w: %s does not fit in int256", ErrOverflow, x.Dec())
	}
	return x.ToBig(), nil
}

// FromInt256 converts a non-negative signed value to an unsigned one.
func FromInt256(x *big.Int) (*uint256.Int, error) {
	if x == nil {
		return nil, ErrNilValue
	}
	if x.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s is negative", ErrUnderflow, x)
	}
	v, overflow := uint256.FromBig(x)
	if overflow {
		return nil, fmt.Errorf("%w: %s does not fit in uint256", ErrOverflow, x)
	}
	return v, nil
}

// inInt256 reports whether x is representable as an int256.
func inInt256(x *big.Int) bool {
	return x.Cmp(minInt256) >= 0 && x.Cmp(maxInt256) <= 0
}

// UpdateWeightedAverage folds (delta, deltaWeight) into a running weighted average.
// When adding, the result is rounded down but never below min(delta, average).
// Removing the entire weight resets the average to zero.
//
// Removal is not clamped: taking out a delta below the average moves the remaining average
// above both. The kept weight rounds down and the removed weight rounds up, so the result never
// exceeds the exact average of what remains, and removing more than the running total fails
// with ErrUnderflow.
func UpdateWeightedAverage(average, totalWeight, delta, deltaWeight *uint256.Int, isAdding bool) (*uint256.Int, error) {
	if deltaWeight.IsZero() {
		return average.Clone(), nil
	}

	var c Calc
	if isAdding {
		numerator := c.Add(c.MulDown(totalWeight, average), c.MulDown(deltaWeight, delta))
		result := c.DivDown(numerator, c.Add(totalWeight, deltaWeight))
		if err := c.Err(); err != nil {
			return nil, err
		}
		return Max(result, Min(delta, average)), nil
	}

	if totalWeight.Eq(deltaWeight) {
		return new(uint256.Int), nil
	}
	numerator := c.Sub(c.MulDown(totalWeight, average), c.MulUp(deltaWeight, delta))
	result := c.DivDown(numerator, c.Sub(totalWeight, deltaWeight))
	if err := c.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
