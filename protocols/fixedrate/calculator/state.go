package calculator

import (
	"fmt"
	"math/big"

	"github.com/defistate/fixedrate-client-go/protocols/fixedrate"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/fixedpointmath"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/lpmath"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/trademath"
	"github.com/holiman/uint256"
)

// poolState is a validated fixed-point view of a fixedrate.Pool.
type poolState struct {
	shareReserves            *uint256.Int
	shareAdjustment          *big.Int
	bondReserves             *uint256.Int
	vaultSharePrice          *uint256.Int
	initialVaultSharePrice   *uint256.Int
	minimumShareReserves     *uint256.Int
	minimumTransactionAmount *uint256.Int
	timeStretch              *uint256.Int
	curveFee                 *uint256.Int
	flatFee                  *uint256.Int
	governanceLPFee          *uint256.Int

	longsOutstanding         *uint256.Int
	longAverageMaturityTime  *uint256.Int
	longExposure             *uint256.Int
	shortsOutstanding        *uint256.Int
	shortAverageMaturityTime *uint256.Int
	checkpointExposure       *big.Int
	lpTotalSupply            *uint256.Int
	withdrawalShares         *uint256.Int

	positionDuration   uint64
	checkpointDuration uint64
}

// fieldReader converts pool fields, keeping the first failure.
type fieldReader struct {
	err error
}

func (r *fieldReader) fail(name, reason string) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s %s", ErrInvalidPool, name, reason)
	}
}

// required converts a mandatory unsigned field.
func (r *fieldReader) required(name string, v *big.Int) *uint256.Int {
	if v == nil {
		r.fail(name, "is nil")
		return new(uint256.Int)
	}
	return r.optional(name, v)
}

// optional converts an unsigned field, reading nil as zero.
func (r *fieldReader) optional(name string, v *big.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	if v.Sign() < 0 {
		r.fail(name, "is negative")
		return new(uint256.Int)
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		r.fail(name, "overflows 256 bits")
		return new(uint256.Int)
	}
	return out
}

// signed converts a signed field, reading nil as zero.
func (r *fieldReader) signed(name string, v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	if v.BitLen() > 255 {
		r.fail(name, "overflows int256")
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func newPoolState(pool fixedrate.Pool) (*poolState, error) {
	var r fieldReader
	cfg, info := pool.Config, pool.Info
	s := &poolState{
		shareReserves:            r.required("shareReserves", info.ShareReserves),
		shareAdjustment:          r.signed("shareAdjustment", info.ShareAdjustment),
		bondReserves:             r.required("bondReserves", info.BondReserves),
		vaultSharePrice:          r.required("vaultSharePrice", info.VaultSharePrice),
		initialVaultSharePrice:   r.required("initialVaultSharePrice", cfg.InitialVaultSharePrice),
		minimumShareReserves:     r.required("minimumShareReserves", cfg.MinimumShareReserves),
		minimumTransactionAmount: r.optional("minimumTransactionAmount", cfg.MinimumTransactionAmount),
		timeStretch:              r.required("timeStretch", cfg.TimeStretch),
		curveFee:                 r.required("fees.curve", cfg.Fees.Curve),
		flatFee:                  r.required("fees.flat", cfg.Fees.Flat),
		governanceLPFee:          r.required("fees.governanceLP", cfg.Fees.GovernanceLP),

		longsOutstanding:         r.optional("longsOutstanding", info.LongsOutstanding),
		longAverageMaturityTime:  r.optional("longAverageMaturityTime", info.LongAverageMaturityTime),
		longExposure:             r.optional("longExposure", info.LongExposure),
		shortsOutstanding:        r.optional("shortsOutstanding", info.ShortsOutstanding),
		shortAverageMaturityTime: r.optional("shortAverageMaturityTime", info.ShortAverageMaturityTime),
		checkpointExposure:       r.signed("checkpointExposure", info.CheckpointExposure),
		lpTotalSupply:            r.optional("lpTotalSupply", info.LpTotalSupply),
		withdrawalShares:         r.optional("withdrawalSharesTotalSupply", info.WithdrawalSharesTotalSupply),

		positionDuration:   cfg.PositionDuration,
		checkpointDuration: cfg.CheckpointDuration,
	}
	if r.err != nil {
		return nil, r.err
	}

	switch {
	case s.vaultSharePrice.IsZero():
		r.fail("vaultSharePrice", "is zero")
	case s.initialVaultSharePrice.IsZero():
		r.fail("initialVaultSharePrice", "is zero")
	case s.bondReserves.IsZero():
		r.fail("bondReserves", "is zero")
	case s.timeStretch.IsZero() || !s.timeStretch.Lt(fixedpointmath.One):
		r.fail("timeStretch", "must be in (0, 1)")
	case s.curveFee.Gt(fixedpointmath.One) || s.flatFee.Gt(fixedpointmath.One) || s.governanceLPFee.Gt(fixedpointmath.One):
		r.fail("fees", "cannot exceed one")
	case s.positionDuration == 0:
		r.fail("positionDuration", "is zero")
	case s.checkpointDuration == 0 || s.positionDuration%s.checkpointDuration != 0:
		r.fail("checkpointDuration", "must divide positionDuration")
	}
	if r.err != nil {
		return nil, r.err
	}
	return s, nil
}

func (s *poolState) effectiveShareReserves() (*uint256.Int, error) {
	return trademath.EffectiveShareReserves(s.shareReserves, s.shareAdjustment)
}

func (s *poolState) spotPrice() (*uint256.Int, error) {
	ze, err := s.effectiveShareReserves()
	if err != nil {
		return nil, err
	}
	return trademath.SpotPrice(ze, s.bondReserves, s.initialVaultSharePrice, s.timeStretch)
}

// latestCheckpoint returns the start of the checkpoint containing now.
func (s *poolState) latestCheckpoint(now uint64) uint64 {
	return now - now%s.checkpointDuration
}

// timeRemaining returns the normalized term left on a position maturing at maturityTime,
// a timestamp scaled by 1e18. Time is measured from the latest checkpoint, the same clock
// maturityTime uses, so a position opened in the current checkpoint has a full term left.
func (s *poolState) timeRemaining(maturityTime *uint256.Int, now uint64) (*uint256.Int, error) {
	return trademath.NormalizedTimeRemaining(maturityTime, s.latestCheckpoint(now), s.positionDuration)
}

// maturityTime returns the maturity of a position opened at now, scaled by 1e18. Positions
// mature one term after the start of the current checkpoint.
func (s *poolState) maturityTime(now uint64) *uint256.Int {
	maturity := uint256.NewInt(s.latestCheckpoint(now) + s.positionDuration)
	return maturity.Mul(maturity, fixedpointmath.One)
}

func (s *poolState) maxTradeParams() trademath.MaxTradeParams {
	return trademath.MaxTradeParams{
		ShareReserves:          s.shareReserves,
		ShareAdjustment:        s.shareAdjustment,
		BondReserves:           s.bondReserves,
		LongsOutstanding:       s.longsOutstanding,
		LongExposure:           s.longExposure,
		TimeStretch:            s.timeStretch,
		VaultSharePrice:        s.vaultSharePrice,
		InitialVaultSharePrice: s.initialVaultSharePrice,
		MinimumShareReserves:   s.minimumShareReserves,
		CurveFee:               s.curveFee,
		FlatFee:                s.flatFee,
		GovernanceLPFee:        s.governanceLPFee,
	}
}

func (s *poolState) presentValueParams(now uint64) (lpmath.PresentValueParams, error) {
	longTime, err := s.timeRemaining(s.longAverageMaturityTime, now)
	if err != nil {
		return lpmath.PresentValueParams{}, err
	}
	shortTime, err := s.timeRemaining(s.shortAverageMaturityTime, now)
	if err != nil {
		return lpmath.PresentValueParams{}, err
	}
	return lpmath.PresentValueParams{
		ShareReserves:             s.shareReserves,
		ShareAdjustment:           s.shareAdjustment,
		BondReserves:              s.bondReserves,
		VaultSharePrice:           s.vaultSharePrice,
		InitialVaultSharePrice:    s.initialVaultSharePrice,
		MinimumShareReserves:      s.minimumShareReserves,
		MinimumTransactionAmount:  s.minimumTransactionAmount,
		TimeStretch:               s.timeStretch,
		LongsOutstanding:          s.longsOutstanding,
		LongAverageTimeRemaining:  longTime,
		ShortsOutstanding:         s.shortsOutstanding,
		ShortAverageTimeRemaining: shortTime,
	}, nil
}

func (s *poolState) idleShareReserves() (*uint256.Int, error) {
	return lpmath.IdleShareReserves(s.shareReserves, s.longExposure, s.vaultSharePrice, s.minimumShareReserves)
}
