// Package lpmath values the liquidity providers' claim on a fixed-rate pool and works out how
// much idle capital can be paid to withdrawal shares without moving the LP share price.
package lpmath

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/fixedpointmath"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/yieldspacemath"
	"github.com/holiman/uint256"
)

var (
	ErrNegativePresentValue = errors.New("lpmath: present value is negative")
	ErrInvalidPresentValue  = errors.New("lpmath: present value cannot be computed")

	one = fixedpointmath.One
)

// PresentValueParams is the pool state the present value is computed from. Average times
// remaining are normalized to [0, 1].
type PresentValueParams struct {
	ShareReserves             *uint256.Int
	ShareAdjustment           *big.Int
	BondReserves              *uint256.Int
	VaultSharePrice           *uint256.Int
	InitialVaultSharePrice    *uint256.Int
	MinimumShareReserves      *uint256.Int
	MinimumTransactionAmount  *uint256.Int
	TimeStretch               *uint256.Int
	LongsOutstanding          *uint256.Int
	LongAverageTimeRemaining  *uint256.Int
	ShortsOutstanding         *uint256.Int
	ShortAverageTimeRemaining *uint256.Int
}

func (p *PresentValueParams) invariantExponent() *uint256.Int {
	return new(uint256.Int).Sub(one, p.TimeStretch)
}

// withReserves returns a copy of p on different reserves.
func (p PresentValueParams) withReserves(z *uint256.Int, zeta *big.Int, y *uint256.Int) PresentValueParams {
	p.ShareReserves = z
	p.ShareAdjustment = zeta
	p.BondReserves = y
	return p
}

// PresentValueSafe returns the shares the LPs would hold if every outstanding position were
// closed now:
//
//	pv = z + netCurveTrade + netFlatTrade - zMin
//
// ok is false when the net curve trade cannot be priced or the result would be negative.
func PresentValueSafe(p PresentValueParams) (*uint256.Int, bool, error) {
	pv, ok, err := signedPresentValue(p)
	if err != nil || !ok || pv.Sign() < 0 {
		return nil, false, err
	}
	v, err := fixedpointmath.FromInt256(pv)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// PresentValue is PresentValueSafe with the failure reported as ErrInvalidPresentValue when
// the curve cannot price the net position and ErrNegativePresentValue when the pool owes more
// than it holds.
func PresentValue(p PresentValueParams) (*uint256.Int, error) {
	pv, ok, err := signedPresentValue(p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidPresentValue
	}
	if pv.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNegativePresentValue, pv)
	}
	return fixedpointmath.FromInt256(pv)
}

func signedPresentValue(p PresentValueParams) (*big.Int, bool, error) {
	curve, ok, err := NetCurveTradeSafe(p)
	if err != nil || !ok {
		return nil, ok, err
	}
	flat, err := NetFlatTrade(p)
	if err != nil {
		return nil, false, err
	}
	pv := new(big.Int).Add(p.ShareReserves.ToBig(), curve)
	pv.Add(pv, flat)
	return pv.Sub(pv, p.MinimumShareReserves.ToBig()), true, nil
}

// NetCurvePosition returns the bonds still priced on the curve, positive when the pool is net
// long: longs * tl - shorts * ts.
func NetCurvePosition(p PresentValueParams) (*big.Int, error) {
	var m fixedpointmath.Calc
	longs := m.MulUp(p.LongsOutstanding, p.LongAverageTimeRemaining)
	shorts := m.MulDown(p.ShortsOutstanding, p.ShortAverageTimeRemaining)
	if err := m.Err(); err != nil {
		return nil, err
	}
	return new(big.Int).Sub(longs.ToBig(), shorts.ToBig()), nil
}

// NetCurveTradeSafe returns the signed change in share reserves from closing the net curve
// position. A net long is sold into the curve up to the max sell; anything beyond is stuck and
// marked to zero. A net short is bought back up to the max buy; the remainder is marked to
// face value.
func NetCurveTradeSafe(p PresentValueParams) (*big.Int, bool, error) {
	position, err := NetCurvePosition(p)
	if err != nil {
		return nil, false, err
	}
	if position.Sign() == 0 {
		return new(big.Int), true, nil
	}

	ze, ok := yieldspacemath.EffectiveShareReservesSafe(p.ShareReserves, p.ShareAdjustment)
	if !ok {
		return nil, false, nil
	}
	t := p.invariantExponent()

	if position.Sign() > 0 {
		bonds, _ := uint256.FromBig(position)
		maxBonds, ok, err := yieldspacemath.MaxSellBondsInSafe(p.ShareReserves, p.ShareAdjustment, p.BondReserves, p.MinimumShareReserves, t, p.VaultSharePrice, p.InitialVaultSharePrice)
		if err != nil || !ok {
			return nil, ok, err
		}
		if !bonds.Gt(maxBonds) {
			shares, ok, err := yieldspacemath.SharesOutGivenBondsInDownSafe(ze, p.BondReserves, bonds, t, p.VaultSharePrice, p.InitialVaultSharePrice)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				// Dust the curve cannot price is worth nothing.
				if bonds.Lt(p.MinimumTransactionAmount) {
					return new(big.Int), true, nil
				}
				return nil, false, nil
			}
			v := shares.ToBig()
			return v.Neg(v), true, nil
		}
		shares, ok := yieldspacemath.MaxSellSharesOutSafe(p.ShareReserves, p.ShareAdjustment, p.MinimumShareReserves)
		if !ok {
			return nil, false, nil
		}
		v := shares.ToBig()
		return v.Neg(v), true, nil
	}

	bonds, _ := uint256.FromBig(new(big.Int).Neg(position))
	maxBonds, ok, err := yieldspacemath.MaxBuyBondsOutSafe(ze, p.BondReserves, t, p.VaultSharePrice, p.InitialVaultSharePrice)
	if err != nil || !ok {
		return nil, ok, err
	}
	if !bonds.Gt(maxBonds) {
		shares, ok, err := yieldspacemath.SharesInGivenBondsOutUpSafe(ze, p.BondReserves, bonds, t, p.VaultSharePrice, p.InitialVaultSharePrice)
		if err != nil || !ok {
			return nil, ok, err
		}
		return shares.ToBig(), true, nil
	}
	maxShares, ok, err := yieldspacemath.MaxBuySharesInSafe(ze, p.BondReserves, t, p.VaultSharePrice, p.InitialVaultSharePrice)
	if err != nil || !ok {
		return nil, ok, err
	}
	var m fixedpointmath.Calc
	shares := m.Add(maxShares, m.DivDown(new(uint256.Int).Sub(bonds, maxBonds), p.VaultSharePrice))
	if err := m.Err(); err != nil {
		return nil, false, err
	}
	return shares.ToBig(), true, nil
}

// NetFlatTrade returns the signed change in share reserves from settling the matured parts of
// all positions at the vault share price: shorts * (1 - ts) / c - longs * (1 - tl) / c.
func NetFlatTrade(p PresentValueParams) (*big.Int, error) {
	var m fixedpointmath.Calc
	shorts := m.MulDivDown(p.ShortsOutstanding, m.Sub(one, p.ShortAverageTimeRemaining), p.VaultSharePrice)
	longs := m.MulDivUp(p.LongsOutstanding, m.Sub(one, p.LongAverageTimeRemaining), p.VaultSharePrice)
	if err := m.Err(); err != nil {
		return nil, err
	}
	return new(big.Int).Sub(shorts.ToBig(), longs.ToBig()), nil
}

// IdleShareReserves returns the shares not backing outstanding longs:
// max(z - longExposure / c - zMin, 0).
func IdleShareReserves(z, longExposure, vaultSharePrice, zMin *uint256.Int) (*uint256.Int, error) {
	var m fixedpointmath.Calc
	liabilities := m.Add(m.DivUp(longExposure, vaultSharePrice), zMin)
	if err := m.Err(); err != nil {
		return nil, err
	}
	if !z.Gt(liabilities) {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Sub(z, liabilities), nil
}

// LPSharePrice returns the base value of one LP share: pv * c / supply. An empty pool prices
// at zero.
func LPSharePrice(presentValue, totalSupply, vaultSharePrice *uint256.Int) (*uint256.Int, error) {
	if totalSupply.IsZero() {
		return new(uint256.Int), nil
	}
	return fixedpointmath.MulDivDown(presentValue, vaultSharePrice, totalSupply)
}
