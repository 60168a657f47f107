package trademath

import (
	"math/big"

	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/fixedpointmath"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/yieldspacemath"
	"github.com/holiman/uint256"
)

// AbsoluteMaxLong returns the long that moves the spot price to one, ignoring solvency.
// ok is false when the pool has no room to buy bonds.
func AbsoluteMaxLong(p *MaxTradeParams, ze, spotPrice *uint256.Int) (*uint256.Int, *uint256.Int, bool, error) {
	t := p.invariantExponent()
	shares, ok, err := yieldspacemath.MaxBuySharesInSafe(ze, p.BondReserves, t, p.VaultSharePrice, p.InitialVaultSharePrice)
	if err != nil || !ok {
		return nil, nil, ok, err
	}
	bonds, ok, err := yieldspacemath.MaxBuyBondsOutSafe(ze, p.BondReserves, t, p.VaultSharePrice, p.InitialVaultSharePrice)
	if err != nil || !ok {
		return nil, nil, ok, err
	}
	fee, err := LongCurveFee(shares, spotPrice, p.VaultSharePrice, p.CurveFee)
	if err != nil {
		return nil, nil, false, err
	}
	if bonds.Lt(fee) {
		return nil, nil, false, nil
	}
	return shares, bonds.Sub(bonds, fee), true, nil
}

// MaxLong returns the largest long, in shares in and bonds out, that keeps the pool solvent.
//
// If the absolute max long is solvent it is returned directly. Otherwise the solvency function
// is linearized around the spot price for a starting guess and refined with Newton's method
// for at most maxIterations steps. Iteration stops early when the derivative degenerates,
// when a step would exceed the absolute max, or when a step would be insolvent. Only solvent
// points are ever returned, and more iterations never return a smaller trade.
func MaxLong(p MaxTradeParams, checkpointExposure *big.Int, maxIterations int) (*uint256.Int, *uint256.Int, error) {
	ze, err := EffectiveShareReserves(p.ShareReserves, p.ShareAdjustment)
	if err != nil {
		return nil, nil, err
	}
	spotPrice, err := SpotPrice(ze, p.BondReserves, p.InitialVaultSharePrice, p.TimeStretch)
	if err != nil {
		return nil, nil, err
	}

	absoluteShares, absoluteBonds, ok, err := AbsoluteMaxLong(&p, ze, spotPrice)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return new(uint256.Int), new(uint256.Int), nil
	}
	if _, solvent, err := SolvencyAfterLong(&p, checkpointExposure, absoluteShares, absoluteBonds, spotPrice); err != nil {
		return nil, nil, err
	} else if solvent {
		return absoluteShares, absoluteBonds, nil
	}

	sharesIn, bondsOut, solvency, err := maxLongInitialGuess(&p, ze, checkpointExposure, absoluteShares, spotPrice)
	if err != nil {
		return nil, nil, err
	}
	if sharesIn.IsZero() {
		return sharesIn, bondsOut, nil
	}

	for i := 0; i < maxIterations; i++ {
		derivative, ok, err := solvencyAfterLongDerivative(&p, ze, sharesIn, spotPrice)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			break
		}

		step, err := fixedpointmath.DivDown(solvency, derivative)
		if err != nil {
			return nil, nil, err
		}
		if step.IsZero() {
			break
		}
		candidate := new(uint256.Int).Add(sharesIn, step)
		if candidate.Gt(absoluteShares) {
			break
		}

		candidateBonds, ok, err := longBondsOut(&p, ze, candidate, spotPrice)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			break
		}
		candidateSolvency, ok, err := SolvencyAfterLong(&p, checkpointExposure, candidate, candidateBonds, spotPrice)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			break
		}
		sharesIn, bondsOut, solvency = candidate, candidateBonds, candidateSolvency
	}

	return sharesIn, bondsOut, nil
}

// maxLongInitialGuess warm starts the solver. The spot price gives a conservative guess since
// every bond costs at least the spot price. The guess is then refined by estimating the
// average execution price as p * (1 - w) + w with w = (guess / absoluteMax)^(1 / (1 - ts)),
// and the conservative guess is kept when the refined one is insolvent. A pool with no slack
// above its solvency floor gets a zero guess, which is also the max long.
func maxLongInitialGuess(p *MaxTradeParams, ze *uint256.Int, checkpointExposure *big.Int, absoluteShares, spotPrice *uint256.Int) (*uint256.Int, *uint256.Int, *uint256.Int, error) {
	conservative, err := maxLongEstimate(p, checkpointExposure, spotPrice, spotPrice)
	if err != nil {
		return nil, nil, nil, err
	}
	if conservative.IsZero() {
		return new(uint256.Int), new(uint256.Int), new(uint256.Int), nil
	}

	if !absoluteShares.IsZero() {
		var m fixedpointmath.Calc
		weight := m.Pow(fixedpointmath.Min(m.DivDown(conservative, absoluteShares), one), m.DivUp(one, p.invariantExponent()))
		weight = fixedpointmath.Min(weight, one)
		estimatePrice := m.Add(m.MulDown(spotPrice, m.Sub(one, weight)), weight)
		if err := m.Err(); err != nil {
			return nil, nil, nil, err
		}

		refined, err := maxLongEstimate(p, checkpointExposure, spotPrice, estimatePrice)
		if err != nil {
			return nil, nil, nil, err
		}
		if refined.Gt(conservative) && !refined.Gt(absoluteShares) {
			bonds, ok, err := longBondsOut(p, ze, refined, spotPrice)
			if err != nil {
				return nil, nil, nil, err
			}
			if ok {
				solvency, ok, err := SolvencyAfterLong(p, checkpointExposure, refined, bonds, spotPrice)
				if err != nil {
					return nil, nil, nil, err
				}
				if ok {
					return refined, bonds, solvency, nil
				}
			}
		}
	}

	bonds, ok, err := longBondsOut(p, ze, conservative, spotPrice)
	if err != nil {
		return nil, nil, nil, err
	}
	if !ok {
		return nil, nil, nil, ErrInvalidInitialGuess
	}
	solvency, ok, err := SolvencyAfterLong(p, checkpointExposure, conservative, bonds, spotPrice)
	if err != nil {
		return nil, nil, nil, err
	}
	if !ok {
		return nil, nil, nil, ErrInvalidInitialGuess
	}
	return conservative, bonds, solvency, nil
}

// maxLongEstimate solves the solvency function linearized at an execution price pr:
//
//	x = (z + credit / c - e / c - zMin) / (1 / pr - 1 + curveFee * govFee * (1 - p) - curveFee * (1 / p - 1))
//
// When the pool is already at or below its floor, or the denominator is not positive, the
// estimate is zero.
func maxLongEstimate(p *MaxTradeParams, checkpointExposure *big.Int, spotPrice, executionPrice *uint256.Int) (*uint256.Int, error) {
	var m fixedpointmath.Calc
	credit := positivePart(new(big.Int).Neg(checkpointExposure))
	assets, liabilities := p.solvencyFloor(&m, p.ShareReserves, p.LongExposure, credit)

	positive := m.Add(m.DivUp(one, executionPrice), m.MulUp(m.MulUp(p.CurveFee, p.GovernanceLPFee), m.Sub(one, spotPrice)))
	negative := m.Add(one, m.MulDown(p.CurveFee, m.Sub(m.DivDown(one, spotPrice), one)))
	if err := m.Err(); err != nil {
		return nil, err
	}
	if !assets.Gt(liabilities) || !positive.Gt(negative) {
		return new(uint256.Int), nil
	}

	estimate := m.DivDown(new(uint256.Int).Sub(assets, liabilities), new(uint256.Int).Sub(positive, negative))
	if err := m.Err(); err != nil {
		return nil, err
	}
	return estimate, nil
}

// solvencyAfterLongDerivative returns -S'(x), the rate at which a long of x shares consumes
// solvency:
//
//	-S'(x) = y'(x) / c - curveFee * (1 / p - 1) - 1 + curveFee * govFee * (1 - p)
//	y'(x) / c = (k - (c / mu) * (mu * (ze + x))^(1 - ts))^(ts / (1 - ts)) / (mu * (ze + x))^ts
//
// ok is false when the curve term degenerates or -S'(x) is not positive, which happens only
// near the root.
func solvencyAfterLongDerivative(p *MaxTradeParams, ze, sharesIn, spotPrice *uint256.Int) (*uint256.Int, bool, error) {
	t := p.invariantExponent()
	k, err := yieldspacemath.KDown(ze, p.BondReserves, t, p.VaultSharePrice, p.InitialVaultSharePrice)
	if err != nil {
		return nil, false, err
	}

	var m fixedpointmath.Calc
	base := m.MulUp(p.InitialVaultSharePrice, m.Add(ze, sharesIn))
	rhs := m.MulDivUp(p.VaultSharePrice, m.Pow(base, t), p.InitialVaultSharePrice)
	if err := m.Err(); err != nil {
		return nil, false, err
	}
	if k.Lt(rhs) {
		return nil, false, nil
	}

	inner := m.Pow(new(uint256.Int).Sub(k, rhs), m.DivUp(p.TimeStretch, t))
	bondDerivative := m.DivDown(inner, m.Pow(base, p.TimeStretch))

	positive := m.Add(bondDerivative, m.MulDown(m.MulDown(p.CurveFee, p.GovernanceLPFee), m.Sub(one, spotPrice)))
	negative := m.Add(one, m.MulUp(p.CurveFee, m.Sub(m.DivUp(one, spotPrice), one)))
	if err := m.Err(); err != nil {
		return nil, false, err
	}
	if !positive.Gt(negative) {
		return nil, false, nil
	}
	return positive.Sub(positive, negative), true, nil
}
