package yieldspacemath

import (
	"math/big"

	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/fixedpointmath"
	"github.com/holiman/uint256"
)

// At the max buy boundary the spot price is 1, so mu * ze == y and the invariant collapses to
// k = (c / mu + 1) * y^t.

// MaxBuySharesInSafe returns the shares that move the spot price to 1, rounded down.
//
//	dz = (k / (c / mu + 1))^(1 / t) / mu - ze
func MaxBuySharesInSafe(ze, y, t, c, mu *uint256.Int) (*uint256.Int, bool, error) {
	k, err := KDown(ze, y, t, c, mu)
	if err != nil {
		return nil, false, err
	}

	var m fixedpointmath.Calc
	optimal := m.DivDown(k, m.Add(m.DivUp(c, mu), one))
	optimal = m.DivDown(powInverse(&m, optimal, t, false), mu)
	if err := m.Err(); err != nil {
		return nil, false, err
	}
	if optimal.Lt(ze) {
		return nil, false, nil
	}
	return optimal.Sub(optimal, ze), true, nil
}

// MaxBuyBondsOutSafe returns the bonds paid out by the max buy, rounded down.
//
//	dy = y - (k / (c / mu + 1))^(1 / t)
func MaxBuyBondsOutSafe(ze, y, t, c, mu *uint256.Int) (*uint256.Int, bool, error) {
	k, err := KUp(ze, y, t, c, mu)
	if err != nil {
		return nil, false, err
	}

	var m fixedpointmath.Calc
	optimal := m.DivUp(k, m.Add(m.DivDown(c, mu), one))
	optimal = powInverse(&m, optimal, t, true)
	if err := m.Err(); err != nil {
		return nil, false, err
	}
	if y.Lt(optimal) {
		return nil, false, nil
	}
	return optimal.Sub(y, optimal), true, nil
}

// sellFloor is the effective share reserves floor that keeps z >= zMin after a sale.
// A negative share adjustment raises the floor by |zeta|.
func sellFloor(zeta *big.Int, zMin *uint256.Int) (*uint256.Int, bool) {
	if zeta.Sign() >= 0 {
		return zMin.Clone(), true
	}
	adjustment, overflow := uint256.FromBig(new(big.Int).Neg(zeta))
	if overflow {
		return nil, false
	}
	floor, overflow := new(uint256.Int).AddOverflow(zMin, adjustment)
	if overflow {
		return nil, false
	}
	return floor, true
}

// MaxSellBondsInSafe returns the bonds that can be sold before the effective share reserves
// reach the floor, rounded down.
//
//	dy = (k - (c / mu) * (mu * zMin)^t)^(1 / t) - y
func MaxSellBondsInSafe(z *uint256.Int, zeta *big.Int, y, zMin, t, c, mu *uint256.Int) (*uint256.Int, bool, error) {
	floor, ok := sellFloor(zeta, zMin)
	if !ok {
		return nil, false, nil
	}
	ze, ok := EffectiveShareReservesSafe(z, zeta)
	if !ok {
		return nil, false, nil
	}
	k, err := KDown(ze, y, t, c, mu)
	if err != nil {
		return nil, false, err
	}

	var m fixedpointmath.Calc
	floorTerm := m.MulDivUp(c, m.Pow(m.MulUp(mu, floor), t), mu)
	if err := m.Err(); err != nil {
		return nil, false, err
	}
	if k.Lt(floorTerm) {
		return nil, false, nil
	}

	optimal := powInverse(&m, new(uint256.Int).Sub(k, floorTerm), t, false)
	if err := m.Err(); err != nil {
		return nil, false, err
	}
	if optimal.Lt(y) {
		return nil, false, nil
	}
	return optimal.Sub(optimal, y), true, nil
}

// MaxSellSharesOutSafe returns the shares paid out by the max sell: the distance between the
// effective share reserves and the sell floor.
func MaxSellSharesOutSafe(z *uint256.Int, zeta *big.Int, zMin *uint256.Int) (*uint256.Int, bool) {
	floor, ok := sellFloor(zeta, zMin)
	if !ok {
		return nil, false
	}
	ze, ok := EffectiveShareReservesSafe(z, zeta)
	if !ok || ze.Lt(floor) {
		return nil, false
	}
	return ze.Sub(ze, floor), true
}
