package lpmath

import (
	"math/big"

	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/fixedpointmath"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/trademath"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/yieldspacemath"
	"github.com/holiman/uint256"
)

// DistributeExcessIdleParams describes a pool about to pay idle shares to its withdrawal pool.
// The reserves in PresentValue are the reserves before any payout.
type DistributeExcessIdleParams struct {
	PresentValue                PresentValueParams
	StartingPresentValue        *uint256.Int
	ActiveLpTotalSupply         *uint256.Int
	WithdrawalSharesTotalSupply *uint256.Int
	Idle                        *uint256.Int
}

func (p *DistributeExcessIdleParams) totalSupply() *uint256.Int {
	return new(uint256.Int).Add(p.ActiveLpTotalSupply, p.WithdrawalSharesTotalSupply)
}

// afterPayout returns the present value params once shares have left the pool, with the
// reserves scaled so the spot price is unchanged. ok is false when the payout would take the
// reserves under the minimum.
func (p *DistributeExcessIdleParams) afterPayout(shares *uint256.Int) (PresentValueParams, bool, error) {
	pv := p.PresentValue
	z, zeta, y, ok, err := trademath.UpdateLiquiditySafe(pv.ShareReserves, pv.ShareAdjustment, pv.BondReserves, pv.MinimumShareReserves, new(big.Int).Neg(shares.ToBig()))
	if err != nil || !ok {
		return PresentValueParams{}, ok, err
	}
	return pv.withReserves(z, zeta, y), true, nil
}

// DistributeExcessIdle returns the withdrawal shares that can be redeemed from idle capital and
// the shares paid out for them. The LP share price is held constant: payouts never leave the
// remaining LPs with a lower share price. maxIterations bounds each Newton search and a share
// price residual below tolerance ends the search early.
func DistributeExcessIdle(p DistributeExcessIdleParams, maxIterations int, tolerance *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	zero := func() (*uint256.Int, *uint256.Int, error) {
		return new(uint256.Int), new(uint256.Int), nil
	}
	if p.WithdrawalSharesTotalSupply.IsZero() || p.Idle.IsZero() || p.StartingPresentValue.IsZero() {
		return zero()
	}

	position, err := NetCurvePosition(p.PresentValue)
	if err != nil {
		return nil, nil, err
	}

	maxDelta, ok, err := MaxShareReservesDeltaSafe(p, position, maxIterations)
	if err != nil {
		return nil, nil, err
	}
	if !ok || maxDelta.IsZero() {
		return zero()
	}

	redeemed, ok, err := WithdrawalSharesRedeemedSafe(p, maxDelta)
	if err != nil {
		return nil, nil, err
	}
	if !ok || redeemed.IsZero() {
		return zero()
	}
	if !redeemed.Gt(p.WithdrawalSharesTotalSupply) {
		return redeemed, maxDelta, nil
	}

	proceeds, ok, err := ShareProceedsSafe(p, position, maxDelta, maxIterations, tolerance)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return zero()
	}
	return p.WithdrawalSharesTotalSupply.Clone(), proceeds, nil
}

// MaxShareReservesDeltaSafe returns the most shares that can leave the pool. A net long or
// neutral pool can pay out all of its idle. A net short pool must keep enough curve capacity
// to buy back the net short: max buy bonds out scales with the reserves, so
//
//	delta = z * (1 - netShort / maxBondsOut)
//
// is the closed-form guess. A feasible guess is returned unchanged. An infeasible one is backed
// off with at most maxIterations Newton steps on f(delta) = maxBondsOut(delta) - netShort, and
// if no step lands on a feasible delta nothing can be paid out.
func MaxShareReservesDeltaSafe(p DistributeExcessIdleParams, netCurvePosition *big.Int, maxIterations int) (*uint256.Int, bool, error) {
	if netCurvePosition.Sign() >= 0 {
		return p.Idle.Clone(), true, nil
	}
	netShort, _ := uint256.FromBig(new(big.Int).Neg(netCurvePosition))

	pv := p.PresentValue
	maxBonds, ok, err := maxBuyBondsOut(pv)
	if err != nil || !ok {
		return nil, ok, err
	}
	if !maxBonds.Gt(netShort) {
		return new(uint256.Int), true, nil
	}

	var m fixedpointmath.Calc
	delta := m.MulDown(pv.ShareReserves, m.Sub(one, m.DivUp(netShort, maxBonds)))
	if err := m.Err(); err != nil {
		return nil, false, err
	}
	delta = fixedpointmath.Min(delta, p.Idle)
	if pv.ShareReserves.Gt(pv.MinimumShareReserves) {
		delta = fixedpointmath.Min(delta, new(uint256.Int).Sub(pv.ShareReserves, pv.MinimumShareReserves))
	} else {
		return new(uint256.Int), true, nil
	}

	for i := 0; i <= maxIterations; i++ {
		capacity, ok, err := bondCapacityAfterPayout(&p, delta)
		if err != nil {
			return nil, false, err
		}
		if ok && !capacity.Lt(netShort) {
			return delta, true, nil
		}
		if i == maxIterations || delta.IsZero() {
			break
		}

		// f'(delta) = -maxBonds / z, so the step is (netShort - capacity) * z / maxBonds.
		shortfall := netShort.Clone()
		if ok {
			shortfall.Sub(netShort, capacity)
		}
		step := m.MulDivUp(shortfall, pv.ShareReserves, maxBonds)
		if err := m.Err(); err != nil {
			return nil, false, err
		}
		if !delta.Gt(step) {
			delta = new(uint256.Int)
			continue
		}
		delta = new(uint256.Int).Sub(delta, step)
	}
	return new(uint256.Int), true, nil
}

func maxBuyBondsOut(p PresentValueParams) (*uint256.Int, bool, error) {
	ze, ok := yieldspacemath.EffectiveShareReservesSafe(p.ShareReserves, p.ShareAdjustment)
	if !ok {
		return nil, false, nil
	}
	return yieldspacemath.MaxBuyBondsOutSafe(ze, p.BondReserves, p.invariantExponent(), p.VaultSharePrice, p.InitialVaultSharePrice)
}

func bondCapacityAfterPayout(p *DistributeExcessIdleParams, shares *uint256.Int) (*uint256.Int, bool, error) {
	updated, ok, err := p.afterPayout(shares)
	if err != nil || !ok {
		return nil, ok, err
	}
	return maxBuyBondsOut(updated)
}

// WithdrawalSharesRedeemedSafe returns the withdrawal shares that paying out shares redeems at
// the starting LP share price:
//
//	redeemed = L - L * pv(shares) / pv0
//
// with L the active LP and withdrawal share supply. The division rounds so that fewer shares
// are redeemed.
func WithdrawalSharesRedeemedSafe(p DistributeExcessIdleParams, shares *uint256.Int) (*uint256.Int, bool, error) {
	updated, ok, err := p.afterPayout(shares)
	if err != nil || !ok {
		return nil, ok, err
	}
	pv, ok, err := PresentValueSafe(updated)
	if err != nil || !ok {
		return nil, ok, err
	}
	if !pv.Lt(p.StartingPresentValue) {
		return new(uint256.Int), true, nil
	}

	supply := p.totalSupply()
	remaining, err := fixedpointmath.MulDivUp(supply, pv, p.StartingPresentValue)
	if err != nil {
		return nil, false, err
	}
	if !supply.Gt(remaining) {
		return new(uint256.Int), true, nil
	}
	return remaining.Sub(supply, remaining), true, nil
}

// ShareProceedsSafe solves for the shares x that redeem every withdrawal share at the starting
// LP share price, keeping x in [0, maxDelta]:
//
//	F(x) = pv(x) * L - pv0 * l = 0
//
// The search starts at w * pv0 / L, which is exact when the pool is net neutral, and only ever
// returns points with F(x) >= 0 so that the remaining LPs are never diluted. ok is false when
// no such point was found.
func ShareProceedsSafe(p DistributeExcessIdleParams, netCurvePosition *big.Int, maxDelta *uint256.Int, maxIterations int, tolerance *uint256.Int) (*uint256.Int, bool, error) {
	supply := p.totalSupply()
	if supply.IsZero() {
		return nil, false, nil
	}
	var m fixedpointmath.Calc
	x := m.MulDivDown(p.WithdrawalSharesTotalSupply, p.StartingPresentValue, supply)
	target := m.MulDown(p.StartingPresentValue, p.ActiveLpTotalSupply)
	if err := m.Err(); err != nil {
		return nil, false, err
	}
	if netCurvePosition.Sign() == 0 {
		return fixedpointmath.Min(x, maxDelta), true, nil
	}

	if netCurvePosition.Sign() > 0 {
		stuck, ok, err := longsStuck(p.PresentValue, netCurvePosition)
		if err != nil {
			return nil, false, err
		}
		if ok && stuck {
			return stuckLongShareProceeds(p, maxDelta, target, supply)
		}
	}

	var best, bestResidual *uint256.Int
	for i := 0; i <= maxIterations; i++ {
		x = fixedpointmath.Min(x, maxDelta)
		updated, ok, err := p.afterPayout(x)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			break
		}
		pv, ok, err := PresentValueSafe(updated)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			break
		}

		scaled := m.MulDown(pv, supply)
		if err := m.Err(); err != nil {
			return nil, false, err
		}
		feasible := !scaled.Lt(target)
		residual := new(uint256.Int)
		if feasible {
			residual.Sub(scaled, target)
			if bestResidual == nil || residual.Lt(bestResidual) {
				best, bestResidual = x.Clone(), residual
			}
			if residual.Lt(tolerance) {
				break
			}
		} else {
			residual.Sub(target, scaled)
		}
		if i == maxIterations {
			break
		}

		derivative, ok, err := presentValueDerivative(p, updated, netCurvePosition)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			break
		}
		// F'(x) = -L * |pv'(x)|
		slope := m.MulUp(supply, derivative)
		if feasible {
			x = m.Add(x, m.DivDown(residual, slope))
		} else {
			step := m.DivUp(residual, slope)
			if err := m.Err(); err != nil {
				return nil, false, err
			}
			if !x.Gt(step) {
				x = new(uint256.Int)
			} else {
				x = new(uint256.Int).Sub(x, step)
			}
		}
		if err := m.Err(); err != nil {
			return nil, false, err
		}
	}

	if best == nil {
		return nil, false, nil
	}
	return best, true, nil
}

func longsStuck(p PresentValueParams, netCurvePosition *big.Int) (bool, bool, error) {
	maxBonds, ok, err := yieldspacemath.MaxSellBondsInSafe(p.ShareReserves, p.ShareAdjustment, p.BondReserves, p.MinimumShareReserves, p.invariantExponent(), p.VaultSharePrice, p.InitialVaultSharePrice)
	if err != nil || !ok {
		return false, ok, err
	}
	return netCurvePosition.Cmp(maxBonds.ToBig()) > 0, true, nil
}

// stuckLongShareProceeds handles net longs beyond the max sell. Their curve trade takes the
// pool to its floor, leaving pv(x) = zeta * (z - x) / z + netFlat, which solves to
//
//	x = z - z * (pv0 * l / L - netFlat) / zeta
func stuckLongShareProceeds(p DistributeExcessIdleParams, maxDelta, target, supply *uint256.Int) (*uint256.Int, bool, error) {
	pv := p.PresentValue
	if pv.ShareAdjustment.Sign() <= 0 {
		return nil, false, nil
	}
	flat, err := NetFlatTrade(pv)
	if err != nil {
		return nil, false, err
	}
	targetPV, err := fixedpointmath.DivUp(target, supply)
	if err != nil {
		return nil, false, err
	}

	// z * (pv0 * l / L - netFlat) / zeta, rounded up so that fewer shares are paid.
	remaining := new(big.Int).Sub(targetPV.ToBig(), flat)
	if remaining.Sign() <= 0 {
		return maxDelta.Clone(), true, nil
	}
	numerator := new(big.Int).Mul(pv.ShareReserves.ToBig(), remaining)
	kept, rem := new(big.Int).QuoRem(numerator, pv.ShareAdjustment, new(big.Int))
	if rem.Sign() != 0 {
		kept.Add(kept, big.NewInt(1))
	}

	x := new(big.Int).Sub(pv.ShareReserves.ToBig(), kept)
	if x.Sign() <= 0 {
		return new(uint256.Int), true, nil
	}
	shares, err := fixedpointmath.FromInt256(x)
	if err != nil {
		return nil, false, err
	}
	return fixedpointmath.Min(shares, maxDelta), true, nil
}

// presentValueDerivative returns |pv'(x)| on the updated reserves. With s the scale applied to
// the reserves, ze' and y' the scaled reserves, P the net curve position and ze'' the effective
// share reserves after closing it:
//
//	|pv'(x)| = 1 - (ze / z) * (1 - D)
//	D        = (mu * ze'')^ts / c * (c / (mu * ze')^ts + (y / ze) * (1 / y'^ts - 1 / (y' +- P)^ts))
//	(mu * ze'')^ts = ((mu / c) * (k - (y' +- P)^(1 - ts)))^(ts / (1 - ts))
//
// using + for a net long and - for a net short. ok is false when the derivative is not positive.
func presentValueDerivative(p DistributeExcessIdleParams, updated PresentValueParams, netCurvePosition *big.Int) (*uint256.Int, bool, error) {
	original := p.PresentValue
	originalZe, ok := yieldspacemath.EffectiveShareReservesSafe(original.ShareReserves, original.ShareAdjustment)
	if !ok || originalZe.IsZero() || original.ShareReserves.IsZero() {
		return nil, false, nil
	}
	ze, ok := yieldspacemath.EffectiveShareReservesSafe(updated.ShareReserves, updated.ShareAdjustment)
	if !ok || ze.IsZero() {
		return nil, false, nil
	}

	long := netCurvePosition.Sign() > 0
	position, _ := uint256.FromBig(new(big.Int).Abs(netCurvePosition))
	y := updated.BondReserves
	closed := new(uint256.Int)
	if long {
		closed.Add(y, position)
	} else {
		if !y.Gt(position) {
			return nil, false, nil
		}
		closed.Sub(y, position)
	}

	t := updated.invariantExponent()
	ts := updated.TimeStretch
	c := updated.VaultSharePrice
	mu := updated.InitialVaultSharePrice
	k, err := yieldspacemath.KDown(ze, y, t, c, mu)
	if err != nil {
		return nil, false, err
	}

	var m fixedpointmath.Calc
	closedTerm := m.Pow(closed, t)
	if err := m.Err(); err != nil {
		return nil, false, err
	}
	if !k.Gt(closedTerm) {
		return nil, false, nil
	}
	closedShares := m.Pow(m.MulDivDown(new(uint256.Int).Sub(k, closedTerm), mu, c), m.DivDown(ts, t))

	shareTerm := m.DivDown(c, m.Pow(m.MulUp(mu, ze), ts))
	ratio := m.DivDown(original.BondReserves, originalZe)
	before := m.DivDown(one, m.Pow(y, ts))
	after := m.DivDown(one, m.Pow(closed, ts))
	if err := m.Err(); err != nil {
		return nil, false, err
	}

	var inner *uint256.Int
	if long {
		inner = m.Add(shareTerm, m.MulDown(ratio, m.Sub(before, after)))
	} else {
		bondTerm := m.MulDown(ratio, m.Sub(after, before))
		if err := m.Err(); err != nil {
			return nil, false, err
		}
		if !shareTerm.Gt(bondTerm) {
			return nil, false, nil
		}
		inner = new(uint256.Int).Sub(shareTerm, bondTerm)
	}
	d := m.MulDivDown(closedShares, inner, c)
	a := m.DivDown(originalZe, original.ShareReserves)
	// |pv'| = 1 - a + a * D
	positive := m.Add(one, m.MulDown(a, d))
	if err := m.Err(); err != nil {
		return nil, false, err
	}
	if !positive.Gt(a) {
		return nil, false, nil
	}
	return positive.Sub(positive, a), true, nil
}
