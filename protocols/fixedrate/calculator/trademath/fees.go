package trademath

import (
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/fixedpointmath"
	"github.com/holiman/uint256"
)

// Fees round up when charged to the trader and down when leaving the pool.

// LongCurveFee is the curve fee on a long, in bonds:
//
//	(1 / p - 1) * curveFee * c * dz
func LongCurveFee(sharesIn, spotPrice, vaultSharePrice, curveFee *uint256.Int) (*uint256.Int, error) {
	var m fixedpointmath.Calc
	fee := m.MulUp(m.MulUp(m.MulUp(m.Sub(m.DivUp(one, spotPrice), one), curveFee), vaultSharePrice), sharesIn)
	if err := m.Err(); err != nil {
		return nil, err
	}
	return fee, nil
}

// LongGovernanceCurveFee is governance's cut of the long curve fee, converted to shares at
// the spot price: curveFeeBonds * p / c * governanceFee.
func LongGovernanceCurveFee(sharesIn, spotPrice, vaultSharePrice, curveFee, governanceFee *uint256.Int) (*uint256.Int, error) {
	curveFeeBonds, err := LongCurveFee(sharesIn, spotPrice, vaultSharePrice, curveFee)
	if err != nil {
		return nil, err
	}
	var m fixedpointmath.Calc
	fee := m.MulDown(m.MulDivDown(curveFeeBonds, spotPrice, vaultSharePrice), governanceFee)
	if err := m.Err(); err != nil {
		return nil, err
	}
	return fee, nil
}

// ShortCurveFee is the curve fee on a short, in shares:
//
//	curveFee * (1 - p) * dy / c
func ShortCurveFee(bondsIn, spotPrice, vaultSharePrice, curveFee *uint256.Int) (*uint256.Int, error) {
	var m fixedpointmath.Calc
	fee := m.MulDivUp(m.MulUp(curveFee, m.Sub(one, spotPrice)), bondsIn, vaultSharePrice)
	if err := m.Err(); err != nil {
		return nil, err
	}
	return fee, nil
}

// ShortGovernanceCurveFee is governance's cut of the short curve fee, in shares.
func ShortGovernanceCurveFee(bondsIn, spotPrice, vaultSharePrice, curveFee, governanceFee *uint256.Int) (*uint256.Int, error) {
	curveFeeShares, err := ShortCurveFee(bondsIn, spotPrice, vaultSharePrice, curveFee)
	if err != nil {
		return nil, err
	}
	return fixedpointmath.MulDown(curveFeeShares, governanceFee)
}

// CloseCurveFee is the curve fee on the unmatured part of a close, in shares:
//
//	curveFee * (1 - p) * dy / c * tr
func CloseCurveFee(bonds, timeRemaining, spotPrice, vaultSharePrice, curveFee *uint256.Int) (*uint256.Int, error) {
	var m fixedpointmath.Calc
	fee := m.MulUp(m.MulDivUp(m.MulUp(curveFee, m.Sub(one, spotPrice)), bonds, vaultSharePrice), timeRemaining)
	if err := m.Err(); err != nil {
		return nil, err
	}
	return fee, nil
}

// FlatFee is the fee on the matured part of a close, in shares:
//
//	dy * (1 - tr) / c * flatFee
func FlatFee(bonds, timeRemaining, vaultSharePrice, flatFee *uint256.Int) (*uint256.Int, error) {
	var m fixedpointmath.Calc
	fee := m.MulUp(m.MulDivUp(bonds, m.Sub(one, timeRemaining), vaultSharePrice), flatFee)
	if err := m.Err(); err != nil {
		return nil, err
	}
	return fee, nil
}
