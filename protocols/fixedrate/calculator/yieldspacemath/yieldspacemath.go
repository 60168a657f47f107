package yieldspacemath

import (
	"errors"
	"math/big"

	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/fixedpointmath"
	"github.com/holiman/uint256"
)

// The invariant is k = (c / mu) * (mu * ze)^t + y^t where ze is the effective share reserves,
// y the bond reserves, c the vault share price, mu the initial vault share price and t the
// per-trade exponent (1 - timeStretch for every trade against the curve).
//
// Safe variants report ok == false when the trade has no solution on the curve; err is
// reserved for arithmetic failures. The plain variants turn ok == false into
// ErrInsufficientLiquidity.

var (
	ErrInsufficientLiquidity = errors.New("yieldspace: insufficient liquidity")
	ErrNegativeReserves      = errors.New("yieldspace: effective share reserves are negative")

	one = fixedpointmath.One
)

// powInverse returns x^(1/t), rounding the exponent so that the result is biased up when up is
// true and down otherwise. For x >= 1 a larger exponent gives a larger result; below 1 the
// relationship flips.
func powInverse(m *fixedpointmath.Calc, x, t *uint256.Int, up bool) *uint256.Int {
	var exponent *uint256.Int
	if (x.Cmp(one) >= 0) == up {
		exponent = m.DivUp(one, t)
	} else {
		exponent = m.DivDown(one, t)
	}
	return m.Pow(x, exponent)
}

// KUp returns the invariant rounded up.
func KUp(ze, y, t, c, mu *uint256.Int) (*uint256.Int, error) {
	var m fixedpointmath.Calc
	k := m.Add(m.MulDivUp(c, m.Pow(m.MulUp(mu, ze), t), mu), m.Pow(y, t))
	if err := m.Err(); err != nil {
		return nil, err
	}
	return k, nil
}

// KDown returns the invariant rounded down.
func KDown(ze, y, t, c, mu *uint256.Int) (*uint256.Int, error) {
	var m fixedpointmath.Calc
	k := m.Add(m.MulDivDown(c, m.Pow(m.MulDown(mu, ze), t), mu), m.Pow(y, t))
	if err := m.Err(); err != nil {
		return nil, err
	}
	return k, nil
}

// EffectiveShareReservesSafe returns z - zeta, reporting ok == false when it would be negative.
func EffectiveShareReservesSafe(z *uint256.Int, zeta *big.Int) (*uint256.Int, bool) {
	ze := new(big.Int).Sub(z.ToBig(), zeta)
	if ze.Sign() < 0 {
		return nil, false
	}
	v, overflow := uint256.FromBig(ze)
	if overflow {
		return nil, false
	}
	return v, true
}

// BondsOutGivenSharesInDownSafe returns the bonds the pool pays out for dz shares,
// rounded down.
//
//	dy = y - (k - (c / mu) * (mu * (ze + dz))^t)^(1 / t)
func BondsOutGivenSharesInDownSafe(ze, y, dz, t, c, mu *uint256.Int) (*uint256.Int, bool, error) {
	k, err := KUp(ze, y, t, c, mu)
	if err != nil {
		return nil, false, err
	}

	var m fixedpointmath.Calc
	zTerm := m.MulDivDown(c, m.Pow(m.MulDown(mu, m.Add(ze, dz)), t), mu)
	if err := m.Err(); err != nil {
		return nil, false, err
	}
	if k.Lt(zTerm) {
		return nil, false, nil
	}

	newY := powInverse(&m, new(uint256.Int).Sub(k, zTerm), t, true)
	if err := m.Err(); err != nil {
		return nil, false, err
	}
	if y.Lt(newY) {
		return nil, false, nil
	}
	return newY.Sub(y, newY), true, nil
}

// BondsOutGivenSharesInDown is BondsOutGivenSharesInDownSafe failing with
// ErrInsufficientLiquidity when there is no solution.
func BondsOutGivenSharesInDown(ze, y, dz, t, c, mu *uint256.Int) (*uint256.Int, error) {
	return must(BondsOutGivenSharesInDownSafe(ze, y, dz, t, c, mu))
}

// SharesInGivenBondsOutUpSafe returns the shares the trader pays for dy bonds, rounded up.
//
//	dz = (((mu / c) * (k - (y - dy)^t))^(1 / t)) / mu - ze
func SharesInGivenBondsOutUpSafe(ze, y, dy, t, c, mu *uint256.Int) (*uint256.Int, bool, error) {
	return sharesInGivenBondsOut(ze, y, dy, t, c, mu, true)
}

// SharesInGivenBondsOutUp is SharesInGivenBondsOutUpSafe failing with
// ErrInsufficientLiquidity when there is no solution.
func SharesInGivenBondsOutUp(ze, y, dy, t, c, mu *uint256.Int) (*uint256.Int, error) {
	return must(SharesInGivenBondsOutUpSafe(ze, y, dy, t, c, mu))
}

// SharesInGivenBondsOutDownSafe is the round-down twin of SharesInGivenBondsOutUpSafe.
func SharesInGivenBondsOutDownSafe(ze, y, dy, t, c, mu *uint256.Int) (*uint256.Int, bool, error) {
	return sharesInGivenBondsOut(ze, y, dy, t, c, mu, false)
}

// SharesInGivenBondsOutDown is SharesInGivenBondsOutDownSafe failing with
// ErrInsufficientLiquidity when there is no solution.
func SharesInGivenBondsOutDown(ze, y, dy, t, c, mu *uint256.Int) (*uint256.Int, error) {
	return must(SharesInGivenBondsOutDownSafe(ze, y, dy, t, c, mu))
}

func sharesInGivenBondsOut(ze, y, dy, t, c, mu *uint256.Int, up bool) (*uint256.Int, bool, error) {
	var (
		k   *uint256.Int
		err error
	)
	if up {
		k, err = KUp(ze, y, t, c, mu)
	} else {
		k, err = KDown(ze, y, t, c, mu)
	}
	if err != nil {
		return nil, false, err
	}
	if y.Lt(dy) {
		return nil, false, nil
	}

	var m fixedpointmath.Calc
	yTerm := m.Pow(new(uint256.Int).Sub(y, dy), t)
	if err := m.Err(); err != nil {
		return nil, false, err
	}
	if k.Lt(yTerm) {
		return nil, false, nil
	}

	rest := new(uint256.Int).Sub(k, yTerm)
	var newZ *uint256.Int
	if up {
		newZ = m.MulDivUp(rest, mu, c)
		newZ = m.DivUp(powInverse(&m, newZ, t, true), mu)
	} else {
		newZ = m.MulDivDown(rest, mu, c)
		newZ = m.DivDown(powInverse(&m, newZ, t, false), mu)
	}
	if err := m.Err(); err != nil {
		return nil, false, err
	}
	if newZ.Lt(ze) {
		return nil, false, nil
	}
	return newZ.Sub(newZ, ze), true, nil
}

// SharesOutGivenBondsInDownSafe returns the shares the pool pays for dy bonds, rounded down.
// ok is false when k < (y + dy)^t. When the solved share reserves exceed ze, which only
// happens through rounding, the result is zero.
//
//	dz = ze - (((mu / c) * (k - (y + dy)^t))^(1 / t)) / mu
func SharesOutGivenBondsInDownSafe(ze, y, dy, t, c, mu *uint256.Int) (*uint256.Int, bool, error) {
	k, err := KUp(ze, y, t, c, mu)
	if err != nil {
		return nil, false, err
	}

	var m fixedpointmath.Calc
	yTerm := m.Pow(m.Add(y, dy), t)
	if err := m.Err(); err != nil {
		return nil, false, err
	}
	if k.Lt(yTerm) {
		return nil, false, nil
	}

	newZ := m.MulDivUp(new(uint256.Int).Sub(k, yTerm), mu, c)
	newZ = m.DivUp(powInverse(&m, newZ, t, true), mu)
	if err := m.Err(); err != nil {
		return nil, false, err
	}
	if !ze.Gt(newZ) {
		return new(uint256.Int), true, nil
	}
	return newZ.Sub(ze, newZ), true, nil
}

// SharesOutGivenBondsInDown is SharesOutGivenBondsInDownSafe failing with
// ErrInsufficientLiquidity when there is no solution.
func SharesOutGivenBondsInDown(ze, y, dy, t, c, mu *uint256.Int) (*uint256.Int, error) {
	return must(SharesOutGivenBondsInDownSafe(ze, y, dy, t, c, mu))
}

func must(v *uint256.Int, ok bool, err error) (*uint256.Int, error) {
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInsufficientLiquidity
	}
	return v, nil
}
