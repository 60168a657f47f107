package trademath

import (
	"math/big"

	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/fixedpointmath"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/yieldspacemath"
	"github.com/holiman/uint256"
)

// AbsoluteMaxShort returns the largest short the curve supports, ignoring solvency: the bonds
// that drive effective share reserves down to the minimum.
func AbsoluteMaxShort(p *MaxTradeParams) (*uint256.Int, bool, error) {
	return yieldspacemath.MaxSellBondsInSafe(
		p.ShareReserves,
		p.ShareAdjustment,
		p.BondReserves,
		p.MinimumShareReserves,
		p.invariantExponent(),
		p.VaultSharePrice,
		p.InitialVaultSharePrice,
	)
}

// MaxShort returns the largest short, in bonds, that keeps the pool solvent.
//
// The search mirrors MaxLong: return the curve boundary when it is solvent, otherwise warm
// start from the solvency function linearized at the spot price and take Newton steps until
// the budget runs out or a step would leave the solvent region.
func MaxShort(p MaxTradeParams, checkpointExposure *big.Int, maxIterations int) (*uint256.Int, error) {
	ze, err := EffectiveShareReserves(p.ShareReserves, p.ShareAdjustment)
	if err != nil {
		return nil, err
	}
	spotPrice, err := SpotPrice(ze, p.BondReserves, p.InitialVaultSharePrice, p.TimeStretch)
	if err != nil {
		return nil, err
	}

	absoluteBonds, ok, err := AbsoluteMaxShort(&p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	if _, ok, err := shortSolvency(&p, ze, checkpointExposure, absoluteBonds, spotPrice); err != nil {
		return nil, err
	} else if ok {
		return absoluteBonds, nil
	}

	bondsIn, err := maxShortEstimate(&p, spotPrice)
	if err != nil {
		return nil, err
	}
	bondsIn = fixedpointmath.Min(bondsIn, absoluteBonds)
	if bondsIn.IsZero() {
		// No slack above the solvency floor.
		return bondsIn, nil
	}
	solvency, ok, err := shortSolvency(&p, ze, checkpointExposure, bondsIn, spotPrice)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidInitialGuess
	}

	for i := 0; i < maxIterations; i++ {
		derivative, ok, err := solvencyAfterShortDerivative(&p, ze, bondsIn, spotPrice)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		step, err := fixedpointmath.DivDown(solvency, derivative)
		if err != nil {
			return nil, err
		}
		if step.IsZero() {
			break
		}
		candidate := new(uint256.Int).Add(bondsIn, step)
		if candidate.Gt(absoluteBonds) {
			break
		}
		candidateSolvency, ok, err := shortSolvency(&p, ze, checkpointExposure, candidate, spotPrice)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		bondsIn, solvency = candidate, candidateSolvency
	}

	return bondsIn, nil
}

// shortSolvency prices bondsIn on the curve and evaluates SolvencyAfterShort. ok is false when
// the curve cannot absorb the bonds or the pool ends up insolvent.
func shortSolvency(p *MaxTradeParams, ze *uint256.Int, checkpointExposure *big.Int, bondsIn, spotPrice *uint256.Int) (*uint256.Int, bool, error) {
	sharesOut, ok, err := yieldspacemath.SharesOutGivenBondsInDownSafe(ze, p.BondReserves, bondsIn, p.invariantExponent(), p.VaultSharePrice, p.InitialVaultSharePrice)
	if err != nil || !ok {
		return nil, ok, err
	}
	return SolvencyAfterShort(p, checkpointExposure, bondsIn, sharesOut, spotPrice)
}

// maxShortEstimate linearizes the solvency function at the spot price. Each bond shorted pays
// out about p / c shares and leaves curveFee * (1 - govFee) * (1 - p) / c behind:
//
//	dy = (z - e / c - zMin) * c / (p - curveFee * (1 - govFee) * (1 - p))
//
// Checkpoint netting is ignored, which keeps the estimate on the solvent side.
func maxShortEstimate(p *MaxTradeParams, spotPrice *uint256.Int) (*uint256.Int, error) {
	var m fixedpointmath.Calc
	assets, liabilities := p.solvencyFloor(&m, p.ShareReserves, p.LongExposure, new(uint256.Int))
	retained := m.MulUp(m.MulUp(p.CurveFee, m.Sub(one, p.GovernanceLPFee)), m.Sub(one, spotPrice))
	if err := m.Err(); err != nil {
		return nil, err
	}
	if !assets.Gt(liabilities) || !spotPrice.Gt(retained) {
		return new(uint256.Int), nil
	}

	estimate := m.MulDivDown(new(uint256.Int).Sub(assets, liabilities), p.VaultSharePrice, new(uint256.Int).Sub(spotPrice, retained))
	if err := m.Err(); err != nil {
		return nil, err
	}
	return estimate, nil
}

// solvencyAfterShortDerivative returns -S'(dy), the solvency consumed per extra bond shorted:
//
//	-S'(dy) = P'(dy) - curveFee * (1 - govFee) * (1 - p) / c
//	P'(dy)  = ((mu / c) * (k - (y + dy)^(1 - ts)))^(ts / (1 - ts)) / (c * (y + dy)^ts)
//
// P'(dy) is the marginal shares paid out by the curve. ok is false near the root.
func solvencyAfterShortDerivative(p *MaxTradeParams, ze, bondsIn, spotPrice *uint256.Int) (*uint256.Int, bool, error) {
	t := p.invariantExponent()
	k, err := yieldspacemath.KUp(ze, p.BondReserves, t, p.VaultSharePrice, p.InitialVaultSharePrice)
	if err != nil {
		return nil, false, err
	}

	var m fixedpointmath.Calc
	bonds := m.Add(p.BondReserves, bondsIn)
	bondTerm := m.Pow(bonds, t)
	if err := m.Err(); err != nil {
		return nil, false, err
	}
	if k.Lt(bondTerm) {
		return nil, false, nil
	}

	inner := m.Pow(m.MulDivDown(new(uint256.Int).Sub(k, bondTerm), p.InitialVaultSharePrice, p.VaultSharePrice), m.DivDown(p.TimeStretch, t))
	sharesDerivative := m.DivDown(inner, m.MulUp(p.VaultSharePrice, m.Pow(bonds, p.TimeStretch)))
	retained := m.DivUp(m.MulUp(m.MulUp(p.CurveFee, m.Sub(one, p.GovernanceLPFee)), m.Sub(one, spotPrice)), p.VaultSharePrice)
	if err := m.Err(); err != nil {
		return nil, false, err
	}
	if !sharesDerivative.Gt(retained) {
		return nil, false, nil
	}
	return sharesDerivative.Sub(sharesDerivative, retained), true, nil
}
