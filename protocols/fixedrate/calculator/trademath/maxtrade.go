package trademath

import (
	"math/big"

	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/fixedpointmath"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/yieldspacemath"
	"github.com/holiman/uint256"
)

// MaxTradeParams is the pool state the max trade solvers read. It is never modified.
type MaxTradeParams struct {
	ShareReserves          *uint256.Int
	ShareAdjustment        *big.Int
	BondReserves           *uint256.Int
	LongsOutstanding       *uint256.Int
	LongExposure           *uint256.Int
	TimeStretch            *uint256.Int
	VaultSharePrice        *uint256.Int
	InitialVaultSharePrice *uint256.Int
	MinimumShareReserves   *uint256.Int
	CurveFee               *uint256.Int
	FlatFee                *uint256.Int
	GovernanceLPFee        *uint256.Int
}

// invariantExponent is 1 - ts, the exponent every new trade uses.
func (p *MaxTradeParams) invariantExponent() *uint256.Int {
	return new(uint256.Int).Sub(one, p.TimeStretch)
}

// solvencyFloor returns the pool's assets and liabilities in shares given share reserves z,
// long exposure e and the netting credit from the checkpoint: z + credit / c and
// e / c + zMin.
func (p *MaxTradeParams) solvencyFloor(m *fixedpointmath.Calc, z, exposure, credit *uint256.Int) (*uint256.Int, *uint256.Int) {
	assets := m.Add(z, m.DivDown(credit, p.VaultSharePrice))
	liabilities := m.Add(m.DivUp(exposure, p.VaultSharePrice), p.MinimumShareReserves)
	return assets, liabilities
}

// positivePart returns max(x, 0) as an unsigned value.
func positivePart(x *big.Int) *uint256.Int {
	if x == nil || x.Sign() <= 0 {
		return new(uint256.Int)
	}
	v, overflow := uint256.FromBig(x)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return v
}

// SolvencyAfterLong returns how far the pool stays above its solvency floor after a long of
// sharesIn shares for bondsOut bonds. Governance fees leave the pool; a net short checkpoint
// absorbs the new longs first. ok is false when the pool would be insolvent.
//
//	S = z + dz - govFee + max(-checkpointExposure, 0) / c - (e + dy) / c - zMin
func SolvencyAfterLong(p *MaxTradeParams, checkpointExposure *big.Int, sharesIn, bondsOut, spotPrice *uint256.Int) (*uint256.Int, bool, error) {
	governanceFee, err := LongGovernanceCurveFee(sharesIn, spotPrice, p.VaultSharePrice, p.CurveFee, p.GovernanceLPFee)
	if err != nil {
		return nil, false, err
	}

	var m fixedpointmath.Calc
	z := m.Add(p.ShareReserves, sharesIn)
	if err := m.Err(); err != nil {
		return nil, false, err
	}
	if z.Lt(governanceFee) {
		return nil, false, nil
	}
	z.Sub(z, governanceFee)

	exposure := m.Add(p.LongExposure, bondsOut)
	credit := positivePart(new(big.Int).Neg(checkpointExposure))
	assets, liabilities := p.solvencyFloor(&m, z, exposure, credit)
	if err := m.Err(); err != nil {
		return nil, false, err
	}
	if assets.Lt(liabilities) {
		return nil, false, nil
	}
	return assets.Sub(assets, liabilities), true, nil
}

// SolvencyAfterShort returns how far the pool stays above its solvency floor after shorting
// bondsIn bonds that pay sharesOut shares on the curve. The LP part of the curve fee stays in
// the pool, and the new shorts net against a net long checkpoint.
//
//	S = z - dz + (curveFee - govFee) - (e - min(dy, max(checkpointExposure, 0))) / c - zMin
func SolvencyAfterShort(p *MaxTradeParams, checkpointExposure *big.Int, bondsIn, sharesOut, spotPrice *uint256.Int) (*uint256.Int, bool, error) {
	curveFee, err := ShortCurveFee(bondsIn, spotPrice, p.VaultSharePrice, p.CurveFee)
	if err != nil {
		return nil, false, err
	}
	governanceFee, err := ShortGovernanceCurveFee(bondsIn, spotPrice, p.VaultSharePrice, p.CurveFee, p.GovernanceLPFee)
	if err != nil {
		return nil, false, err
	}

	var m fixedpointmath.Calc
	z := m.Add(p.ShareReserves, m.Sub(curveFee, governanceFee))
	if err := m.Err(); err != nil {
		return nil, false, err
	}
	if z.Lt(sharesOut) {
		return nil, false, nil
	}
	z.Sub(z, sharesOut)

	netted := fixedpointmath.Min(bondsIn, positivePart(checkpointExposure))
	exposure := new(uint256.Int)
	if p.LongExposure.Gt(netted) {
		exposure.Sub(p.LongExposure, netted)
	}
	assets, liabilities := p.solvencyFloor(&m, z, exposure, new(uint256.Int))
	if err := m.Err(); err != nil {
		return nil, false, err
	}
	if assets.Lt(liabilities) {
		return nil, false, nil
	}
	return assets.Sub(assets, liabilities), true, nil
}

// longBondsOut returns the bonds a trader receives for sharesIn after the curve fee.
func longBondsOut(p *MaxTradeParams, ze, sharesIn, spotPrice *uint256.Int) (*uint256.Int, bool, error) {
	bonds, ok, err := yieldspacemath.BondsOutGivenSharesInDownSafe(ze, p.BondReserves, sharesIn, p.invariantExponent(), p.VaultSharePrice, p.InitialVaultSharePrice)
	if err != nil || !ok {
		return nil, ok, err
	}
	fee, err := LongCurveFee(sharesIn, spotPrice, p.VaultSharePrice, p.CurveFee)
	if err != nil {
		return nil, false, err
	}
	if bonds.Lt(fee) {
		return nil, false, nil
	}
	return bonds.Sub(bonds, fee), true, nil
}
