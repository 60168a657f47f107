package trademath

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/fixedpointmath"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/yieldspacemath"
	"github.com/holiman/uint256"
)

var (
	ErrInvalidInitialGuess  = errors.New("trademath: initial guess is insolvent")
	ErrInvalidShareReserves = errors.New("trademath: share reserves below minimum")
	ErrInvalidAPR           = errors.New("trademath: apr must be positive")
	ErrInvalidDuration      = errors.New("trademath: duration must be positive")

	one = fixedpointmath.One

	// benchmark time stretch coefficients for a one year term.
	timeStretchNumerator   = uint256.NewInt(5_245_920_000_000_000_000) // 5.24592
	timeStretchDenominator = uint256.NewInt(46_650_000_000_000_000)    // 0.04665
)

// EffectiveShareReserves returns z - zeta, failing when the result is negative.
func EffectiveShareReserves(z *uint256.Int, zeta *big.Int) (*uint256.Int, error) {
	ze, ok := yieldspacemath.EffectiveShareReservesSafe(z, zeta)
	if !ok {
		return nil, fmt.Errorf("%w: z=%s zeta=%s", yieldspacemath.ErrNegativeReserves, z.Dec(), zeta)
	}
	return ze, nil
}

// SpotPrice returns the price of a bond in base: (mu * ze / y)^ts.
func SpotPrice(ze, y, mu, ts *uint256.Int) (*uint256.Int, error) {
	var m fixedpointmath.Calc
	p := m.Pow(m.MulDivDown(mu, ze, y), ts)
	if err := m.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

// SpotAPR returns the fixed rate implied by a spot price over a term of annualizedTime years:
// (1 - p) / (p * t).
func SpotAPR(spotPrice, annualizedTime *uint256.Int) (*uint256.Int, error) {
	var m fixedpointmath.Calc
	apr := m.DivDown(m.Sub(one, spotPrice), m.MulUp(spotPrice, annualizedTime))
	if err := m.Err(); err != nil {
		return nil, err
	}
	return apr, nil
}

// AnnualizedTime returns duration / yearLength as a fixed-point fraction of a year.
func AnnualizedTime(duration, yearLength uint64) (*uint256.Int, error) {
	if yearLength == 0 {
		return nil, ErrInvalidDuration
	}
	return fixedpointmath.MulDivDown(uint256.NewInt(duration), one, uint256.NewInt(yearLength))
}

// NormalizedTimeRemaining returns the fraction of the term left before maturity.
// maturityTime is a timestamp scaled by 1e18 (average maturities keep their fractional part).
func NormalizedTimeRemaining(maturityTime *uint256.Int, now, positionDuration uint64) (*uint256.Int, error) {
	if positionDuration == 0 {
		return nil, ErrInvalidDuration
	}
	nowScaled := new(uint256.Int).Mul(uint256.NewInt(now), one)
	if !maturityTime.Gt(nowScaled) {
		return new(uint256.Int), nil
	}
	remaining := new(uint256.Int).Sub(maturityTime, nowScaled)
	remaining.Div(remaining, uint256.NewInt(positionDuration))
	return fixedpointmath.Min(remaining, one), nil
}

// TimeStretch returns the time stretch for a target apr and term.
// The one year benchmark is 0.04665 * (apr * 100) / 5.24592; other terms are scaled so that
// the reserve ratio quoting apr over one year quotes the same apr over the given term:
//
//	ts' = ts * ln(1 + apr * t) / ln(1 + apr)
func TimeStretch(apr, annualizedTime *uint256.Int) (*uint256.Int, error) {
	if apr.IsZero() {
		return nil, ErrInvalidAPR
	}

	var m fixedpointmath.Calc
	benchmark := m.DivDown(timeStretchNumerator, m.MulDown(timeStretchDenominator, new(uint256.Int).Mul(apr, uint256.NewInt(100))))
	benchmark = m.DivDown(one, benchmark)
	if err := m.Err(); err != nil {
		return nil, err
	}
	if annualizedTime.Eq(one) {
		return benchmark, nil
	}

	termGrowth := m.Add(one, m.MulDown(apr, annualizedTime))
	yearGrowth := m.Add(one, apr)
	if err := m.Err(); err != nil {
		return nil, err
	}
	lnTerm, err := fixedpointmath.Ln(termGrowth.ToBig())
	if err != nil {
		return nil, err
	}
	lnYear, err := fixedpointmath.Ln(yearGrowth.ToBig())
	if err != nil {
		return nil, err
	}
	numerator, err := fixedpointmath.FromInt256(lnTerm)
	if err != nil {
		return nil, err
	}
	denominator, err := fixedpointmath.FromInt256(lnYear)
	if err != nil {
		return nil, err
	}
	return fixedpointmath.MulDivDown(numerator, benchmark, denominator)
}

// InitialReserves returns the share adjustment and bond reserves that make a fresh pool of
// shareAmount shares quote apr over a term of annualizedTime years. With target price
// p = 1 / (1 + apr * t):
//
//	y    = mu * c * z / (c * p^(1 / ts) + mu * p)
//	zeta = y * p / c
func InitialReserves(shareAmount, c, mu, apr, annualizedTime, ts *uint256.Int) (*big.Int, *uint256.Int, error) {
	var m fixedpointmath.Calc
	targetPrice := m.DivUp(one, m.Add(one, m.MulDown(apr, annualizedTime)))
	denominator := m.Add(
		m.MulDown(c, m.Pow(targetPrice, m.DivDown(one, ts))),
		m.MulUp(mu, targetPrice),
	)
	y := m.MulDivDown(mu, m.MulDown(c, shareAmount), denominator)
	zeta := m.MulDivDown(y, targetPrice, c)
	if err := m.Err(); err != nil {
		return nil, nil, err
	}
	return zeta.ToBig(), y, nil
}

// UpdateLiquiditySafe applies a signed share reserves delta while holding the ratios
// z : zeta : y constant:
//
//	z' = z + delta, zeta' = zeta * z' / z, y' = y * ze' / ze
//
// ok is false when z' would fall below zMin or the effective share reserves are empty.
func UpdateLiquiditySafe(z *uint256.Int, zeta *big.Int, y, zMin *uint256.Int, delta *big.Int) (*uint256.Int, *big.Int, *uint256.Int, bool, error) {
	if delta.Sign() == 0 {
		return z.Clone(), new(big.Int).Set(zeta), y.Clone(), true, nil
	}

	updated := new(big.Int).Add(z.ToBig(), delta)
	if updated.Cmp(zMin.ToBig()) < 0 {
		return nil, nil, nil, false, nil
	}
	newZ, err := fixedpointmath.FromInt256(updated)
	if err != nil {
		return nil, nil, nil, false, err
	}
	if z.IsZero() {
		return nil, nil, nil, false, nil
	}

	var m fixedpointmath.Calc
	absZeta, overflow := uint256.FromBig(new(big.Int).Abs(zeta))
	if overflow {
		return nil, nil, nil, false, fixedpointmath.ErrOverflow
	}
	var newZeta *big.Int
	if zeta.Sign() >= 0 {
		newZeta = m.MulDivDown(newZ, absZeta, z).ToBig()
	} else {
		v := m.MulDivUp(newZ, absZeta, z).ToBig()
		newZeta = v.Neg(v)
	}
	if err := m.Err(); err != nil {
		return nil, nil, nil, false, err
	}

	ze, ok := yieldspacemath.EffectiveShareReservesSafe(z, zeta)
	if !ok || ze.IsZero() {
		return nil, nil, nil, false, nil
	}
	newZe, ok := yieldspacemath.EffectiveShareReservesSafe(newZ, newZeta)
	if !ok {
		return nil, nil, nil, false, nil
	}
	newY := m.MulDivDown(y, newZe, ze)
	if err := m.Err(); err != nil {
		return nil, nil, nil, false, err
	}
	return newZ, newZeta, newY, true, nil
}

// UpdateLiquidity is UpdateLiquiditySafe failing with ErrInvalidShareReserves.
func UpdateLiquidity(z *uint256.Int, zeta *big.Int, y, zMin *uint256.Int, delta *big.Int) (*uint256.Int, *big.Int, *uint256.Int, error) {
	newZ, newZeta, newY, ok, err := UpdateLiquiditySafe(z, zeta, y, zMin, delta)
	if err != nil {
		return nil, nil, nil, err
	}
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: z=%s delta=%s zMin=%s", ErrInvalidShareReserves, z.Dec(), delta, zMin.Dec())
	}
	return newZ, newZeta, newY, nil
}
