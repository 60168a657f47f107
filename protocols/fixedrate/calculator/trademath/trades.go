package trademath

import (
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/fixedpointmath"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/yieldspacemath"
	"github.com/holiman/uint256"
)

// CloseTrade is the outcome of closing a position. The curve deltas are what the pool's
// reserves move by; Shares is the trader's proceeds (long) or payment (short).
type CloseTrade struct {
	ShareCurveDelta *uint256.Int
	BondCurveDelta  *uint256.Int
	Shares          *uint256.Int
}

// OpenLong returns the bonds bought for sharesIn. New bonds have the full term ahead of them,
// so the whole trade is priced on the curve.
func OpenLong(ze, y, sharesIn, ts, c, mu *uint256.Int) (*uint256.Int, error) {
	return yieldspacemath.BondsOutGivenSharesInDown(ze, y, sharesIn, new(uint256.Int).Sub(one, ts), c, mu)
}

// OpenShort returns the shares the pool pays for bondsIn shorted bonds.
func OpenShort(ze, y, bondsIn, ts, c, mu *uint256.Int) (*uint256.Int, error) {
	return yieldspacemath.SharesOutGivenBondsInDown(ze, y, bondsIn, new(uint256.Int).Sub(one, ts), c, mu)
}

// CloseLong splits bondsIn into a matured part redeemed at the vault share price,
// bonds * (1 - tr) / c, and a part priced on the curve, bonds * tr. Both legs round down.
func CloseLong(ze, y, bondsIn, timeRemaining, ts, c, mu *uint256.Int) (CloseTrade, error) {
	var m fixedpointmath.Calc
	shares := m.MulDivDown(bondsIn, m.Sub(one, timeRemaining), c)
	if err := m.Err(); err != nil {
		return CloseTrade{}, err
	}

	trade := CloseTrade{
		ShareCurveDelta: new(uint256.Int),
		BondCurveDelta:  new(uint256.Int),
		Shares:          shares,
	}
	if timeRemaining.IsZero() {
		return trade, nil
	}

	trade.BondCurveDelta = m.MulDown(bondsIn, timeRemaining)
	if err := m.Err(); err != nil {
		return CloseTrade{}, err
	}
	curve, err := yieldspacemath.SharesOutGivenBondsInDown(ze, y, trade.BondCurveDelta, new(uint256.Int).Sub(one, ts), c, mu)
	if err != nil {
		return CloseTrade{}, err
	}
	trade.ShareCurveDelta = curve
	trade.Shares = m.Add(shares, curve)
	if err := m.Err(); err != nil {
		return CloseTrade{}, err
	}
	return trade, nil
}

// CloseShort mirrors CloseLong for a short buying back bondsOut. Both legs round up.
func CloseShort(ze, y, bondsOut, timeRemaining, ts, c, mu *uint256.Int) (CloseTrade, error) {
	var m fixedpointmath.Calc
	shares := m.MulDivUp(bondsOut, m.Sub(one, timeRemaining), c)
	if err := m.Err(); err != nil {
		return CloseTrade{}, err
	}

	trade := CloseTrade{
		ShareCurveDelta: new(uint256.Int),
		BondCurveDelta:  new(uint256.Int),
		Shares:          shares,
	}
	if timeRemaining.IsZero() {
		return trade, nil
	}

	trade.BondCurveDelta = m.MulUp(bondsOut, timeRemaining)
	if err := m.Err(); err != nil {
		return CloseTrade{}, err
	}
	curve, err := yieldspacemath.SharesInGivenBondsOutUp(ze, y, trade.BondCurveDelta, new(uint256.Int).Sub(one, ts), c, mu)
	if err != nil {
		return CloseTrade{}, err
	}
	trade.ShareCurveDelta = curve
	trade.Shares = m.Add(shares, curve)
	if err := m.Err(); err != nil {
		return CloseTrade{}, err
	}
	return trade, nil
}

// ApplyNegativeInterest scales long proceeds by min(closeC / openC, 1). Shorts never go
// through this: their proceeds already net out the interest accrued since opening.
func ApplyNegativeInterest(shares, openVaultSharePrice, closeVaultSharePrice *uint256.Int) (*uint256.Int, error) {
	if !closeVaultSharePrice.Lt(openVaultSharePrice) {
		return shares.Clone(), nil
	}
	return fixedpointmath.MulDivDown(shares, closeVaultSharePrice, openVaultSharePrice)
}

// ShortProceedsUp returns what a short is owed on close, rounded up: the interest earned on
// the bonds' backing plus the flat fee, minus the shares paid to close.
//
//	proceeds = dy * c1 / (c0 * c) + dy * flatFee / c - dz
func ShortProceedsUp(bondAmount, shareAmount, openVaultSharePrice, closeVaultSharePrice, vaultSharePrice, flatFee *uint256.Int) (*uint256.Int, error) {
	var m fixedpointmath.Calc
	bondFactor := m.Add(
		m.MulDivUp(bondAmount, closeVaultSharePrice, m.MulDown(openVaultSharePrice, vaultSharePrice)),
		m.MulDivUp(bondAmount, flatFee, vaultSharePrice),
	)
	if err := m.Err(); err != nil {
		return nil, err
	}
	if !bondFactor.Gt(shareAmount) {
		return new(uint256.Int), nil
	}
	return bondFactor.Sub(bondFactor, shareAmount), nil
}

// ShortProceedsDown is the round-down twin of ShortProceedsUp.
func ShortProceedsDown(bondAmount, shareAmount, openVaultSharePrice, closeVaultSharePrice, vaultSharePrice, flatFee *uint256.Int) (*uint256.Int, error) {
	var m fixedpointmath.Calc
	bondFactor := m.Add(
		m.MulDivDown(bondAmount, closeVaultSharePrice, m.MulUp(openVaultSharePrice, vaultSharePrice)),
		m.MulDivDown(bondAmount, flatFee, vaultSharePrice),
	)
	if err := m.Err(); err != nil {
		return nil, err
	}
	if !bondFactor.Gt(shareAmount) {
		return new(uint256.Int), nil
	}
	return bondFactor.Sub(bondFactor, shareAmount), nil
}
