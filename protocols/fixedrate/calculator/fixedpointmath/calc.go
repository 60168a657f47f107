package fixedpointmath

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Calc carries the first arithmetic error through a chain of fixed-point operations.
// After a failure every method returns zero without computing, and Err reports the failure.
// Check Err before branching on any value produced by a Calc.
//
// The zero value is ready to use. A Calc is not safe for concurrent use.
type Calc struct {
	err error
}

// Err returns the first error encountered, if any.
func (c *Calc) Err() error {
	return c.err
}

// Fail records err unless an earlier error is already held.
func (c *Calc) Fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *Calc) keep(v *uint256.Int, err error) *uint256.Int {
	if err != nil {
		c.Fail(err)
		return new(uint256.Int)
	}
	return v
}

func (c *Calc) MulDivDown(x, y, d *uint256.Int) *uint256.Int {
	if c.err != nil {
		return new(uint256.Int)
	}
	return c.keep(MulDivDown(x, y, d))
}

func (c *Calc) MulDivUp(x, y, d *uint256.Int) *uint256.Int {
	if c.err != nil {
		return new(uint256.Int)
	}
	return c.keep(MulDivUp(x, y, d))
}

func (c *Calc) MulDown(a, b *uint256.Int) *uint256.Int {
	return c.MulDivDown(a, b, One)
}

func (c *Calc) MulUp(a, b *uint256.Int) *uint256.Int {
	return c.MulDivUp(a, b, One)
}

func (c *Calc) DivDown(a, b *uint256.Int) *uint256.Int {
	return c.MulDivDown(a, One, b)
}

func (c *Calc) DivUp(a, b *uint256.Int) *uint256.Int {
	return c.MulDivUp(a, One, b)
}

func (c *Calc) Pow(x, y *uint256.Int) *uint256.Int {
	if c.err != nil {
		return new(uint256.Int)
	}
	return c.keep(Pow(x, y))
}

// Add returns a + b, failing with ErrOverflow instead of wrapping.
func (c *Calc) Add(a, b *uint256.Int) *uint256.Int {
	if c.err != nil {
		return new(uint256.Int)
	}
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		c.Fail(fmt.Errorf("%w: %s + %s", ErrOverflow, a.Dec(), b.Dec()))
		return new(uint256.Int)
	}
	return sum
}

// Sub returns a - b, failing with ErrUnderflow when b > a.
func (c *Calc) Sub(a, b *uint256.Int) *uint256.Int {
	if c.err != nil {
		return new(uint256.Int)
	}
	diff, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		c.Fail(fmt.Errorf("%w: %s - %s", ErrUnderflow, a.Dec(), b.Dec()))
		return new(uint256.Int)
	}
	return diff
}
