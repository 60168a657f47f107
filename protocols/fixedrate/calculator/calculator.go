// Package calculator quotes trades and LP valuations against fixedrate.Pool snapshots.
//
// Pool fields and amounts are 18 decimal fixed-point *big.Int values. They are validated and
// converted to 256-bit integers once per call; the math packages underneath never see a nil or
// negative unsigned value.
package calculator

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/fixedrate-client-go/protocols/fixedrate"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/fixedpointmath"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/lpmath"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/trademath"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ErrNilAmount is returned when a nil pointer is passed for an amount.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrInvalidAmount is returned when an amount is negative, too large or below the pool's
	// minimum transaction amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidPool is returned when a pool snapshot is missing a field or holds an
	// impossible value.
	ErrInvalidPool = errors.New("invalid pool")
	// ErrInsufficientLiquidity is returned when a trade would leave the pool insolvent.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for trade")
)

const (
	opSpotPrice        = "spot_price"
	opSpotRate         = "spot_rate"
	opOpenLong         = "open_long"
	opOpenShort        = "open_short"
	opCloseLong        = "close_long"
	opCloseShort       = "close_short"
	opSimulateOpenLong = "simulate_open_long"
	opMaxLong          = "max_long"
	opMaxShort         = "max_short"
	opPresentValue     = "present_value"
	opLPSharePrice     = "lp_share_price"
	opIdle             = "idle_share_reserves"
	opDistribute       = "distribute_excess_idle"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Trade is a quote. Amounts are in shares unless noted.
type Trade struct {
	Shares        *big.Int // paid in (open long), deposited (open short) or received (close)
	Bonds         *big.Int
	CurveFee      *big.Int // in bonds for OpenLong
	FlatFee       *big.Int
	GovernanceFee *big.Int
}

// Position identifies bonds being closed. OpenVaultSharePrice is the vault share price of
// the checkpoint the position was opened in; nil means the current vault share price.
type Position struct {
	Bonds               *big.Int
	MaturityTime        uint64 // seconds
	OpenVaultSharePrice *big.Int
}

// Calculator prices trades on fixed-rate pools. It holds no pool state and is safe for
// concurrent use.
type Calculator struct {
	cfg       Config
	tolerance *uint256.Int
	metrics   *Metrics
	logger    Logger
}

// New constructs a Calculator, returning an error if the config or dependencies are invalid.
func New(cfg Config, registry prometheus.Registerer, logger Logger) (*Calculator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, errors.New("calculator: Registry cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("calculator: Logger cannot be nil")
	}
	metrics, err := NewMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("calculator: registering metrics: %w", err)
	}
	tolerance, _ := uint256.FromBig(cfg.ShareProceedsTolerance)
	return &Calculator{
		cfg:       cfg,
		tolerance: tolerance,
		metrics:   metrics,
		logger:    logger,
	}, nil
}

// track times an operation. The returned func records the outcome.
func (c *Calculator) track(op string, pool *fixedrate.Pool) func(error) {
	timer := prometheus.NewTimer(c.metrics.duration.WithLabelValues(op))
	return func(err error) {
		timer.ObserveDuration()
		if err != nil {
			c.metrics.errors.WithLabelValues(op).Inc()
			c.logger.Debug("calculation failed", "op", op, "pool", pool.ID, "error", err)
		}
	}
}

// amount converts a caller supplied amount.
func amount(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return nil, ErrNilAmount
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s is negative", ErrInvalidAmount, v)
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("%w: %s overflows 256 bits", ErrInvalidAmount, v)
	}
	return out, nil
}

// tradeAmount converts an amount and checks it against the pool's minimum.
func (s *poolState) tradeAmount(v *big.Int) (*uint256.Int, error) {
	x, err := amount(v)
	if err != nil {
		return nil, err
	}
	if x.Lt(s.minimumTransactionAmount) || x.IsZero() {
		return nil, fmt.Errorf("%w: %s is below the minimum transaction amount %s", ErrInvalidAmount, v, s.minimumTransactionAmount.Dec())
	}
	return x, nil
}

// SpotPrice returns the price of a bond maturing now + positionDuration, in base.
func (c *Calculator) SpotPrice(pool fixedrate.Pool) (price *big.Int, err error) {
	done := c.track(opSpotPrice, &pool)
	defer func() { done(err) }()

	s, err := newPoolState(pool)
	if err != nil {
		return nil, err
	}
	p, err := s.spotPrice()
	if err != nil {
		return nil, err
	}
	return p.ToBig(), nil
}

// SpotRate returns the annualized fixed rate implied by the spot price.
func (c *Calculator) SpotRate(pool fixedrate.Pool) (rate *big.Int, err error) {
	done := c.track(opSpotRate, &pool)
	defer func() { done(err) }()

	s, err := newPoolState(pool)
	if err != nil {
		return nil, err
	}
	p, err := s.spotPrice()
	if err != nil {
		return nil, err
	}
	t, err := trademath.AnnualizedTime(s.positionDuration, c.cfg.YearLength)
	if err != nil {
		return nil, err
	}
	apr, err := trademath.SpotAPR(p, t)
	if err != nil {
		return nil, err
	}
	return apr.ToBig(), nil
}

// longQuote is an open long with the values needed to update the pool.
type longQuote struct {
	sharesIn      *uint256.Int
	curveBonds    *uint256.Int // bonds the curve gives before fees
	bondsOut      *uint256.Int
	curveFee      *uint256.Int // bonds
	governanceFee *uint256.Int // shares
}

func (s *poolState) openLong(sharesIn *uint256.Int) (*longQuote, error) {
	ze, err := s.effectiveShareReserves()
	if err != nil {
		return nil, err
	}
	spot, err := trademath.SpotPrice(ze, s.bondReserves, s.initialVaultSharePrice, s.timeStretch)
	if err != nil {
		return nil, err
	}
	curveBonds, err := trademath.OpenLong(ze, s.bondReserves, sharesIn, s.timeStretch, s.vaultSharePrice, s.initialVaultSharePrice)
	if err != nil {
		return nil, err
	}
	curveFee, err := trademath.LongCurveFee(sharesIn, spot, s.vaultSharePrice, s.curveFee)
	if err != nil {
		return nil, err
	}
	if !curveBonds.Gt(curveFee) {
		return nil, fmt.Errorf("%w: curve fee %s exceeds bonds out %s", ErrInvalidAmount, curveFee.Dec(), curveBonds.Dec())
	}
	governanceFee, err := trademath.LongGovernanceCurveFee(sharesIn, spot, s.vaultSharePrice, s.curveFee, s.governanceLPFee)
	if err != nil {
		return nil, err
	}
	bondsOut := new(uint256.Int).Sub(curveBonds, curveFee)

	params := s.maxTradeParams()
	if _, ok, err := trademath.SolvencyAfterLong(&params, s.checkpointExposure, sharesIn, bondsOut, spot); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: long of %s shares", ErrInsufficientLiquidity, sharesIn.Dec())
	}

	return &longQuote{
		sharesIn:      sharesIn,
		curveBonds:    curveBonds,
		bondsOut:      bondsOut,
		curveFee:      curveFee,
		governanceFee: governanceFee,
	}, nil
}

// OpenLong quotes buying bonds with sharesIn shares. The curve fee is charged in bonds.
func (c *Calculator) OpenLong(pool fixedrate.Pool, sharesIn *big.Int) (trade Trade, err error) {
	done := c.track(opOpenLong, &pool)
	defer func() { done(err) }()

	s, err := newPoolState(pool)
	if err != nil {
		return Trade{}, err
	}
	dz, err := s.tradeAmount(sharesIn)
	if err != nil {
		return Trade{}, err
	}
	q, err := s.openLong(dz)
	if err != nil {
		return Trade{}, err
	}
	return Trade{
		Shares:        q.sharesIn.ToBig(),
		Bonds:         q.bondsOut.ToBig(),
		CurveFee:      q.curveFee.ToBig(),
		FlatFee:       new(big.Int),
		GovernanceFee: q.governanceFee.ToBig(),
	}, nil
}

// SimulateOpenLong quotes OpenLong and returns the pool as it would be after the trade. The
// new longs mature one term after the current checkpoint. The input pool is not modified.
func (c *Calculator) SimulateOpenLong(pool fixedrate.Pool, sharesIn *big.Int, now uint64) (trade Trade, next fixedrate.Pool, err error) {
	done := c.track(opSimulateOpenLong, &pool)
	defer func() { done(err) }()

	s, err := newPoolState(pool)
	if err != nil {
		return Trade{}, fixedrate.Pool{}, err
	}
	dz, err := s.tradeAmount(sharesIn)
	if err != nil {
		return Trade{}, fixedrate.Pool{}, err
	}
	q, err := s.openLong(dz)
	if err != nil {
		return Trade{}, fixedrate.Pool{}, err
	}

	var m fixedpointmath.Calc
	// Governance takes its fee out of the shares; the LP part of the curve fee stays in the
	// bond reserves.
	shareReserves := m.Sub(m.Add(s.shareReserves, dz), q.governanceFee)
	lpCurveFee := m.MulDown(q.curveFee, m.Sub(fixedpointmath.One, s.governanceLPFee))
	bondReserves := m.Sub(s.bondReserves, m.Sub(q.curveBonds, lpCurveFee))
	longsOutstanding := m.Add(s.longsOutstanding, q.bondsOut)
	if err := m.Err(); err != nil {
		return Trade{}, fixedrate.Pool{}, err
	}
	maturity, err := fixedpointmath.UpdateWeightedAverage(s.longAverageMaturityTime, s.longsOutstanding, s.maturityTime(now), q.bondsOut, true)
	if err != nil {
		return Trade{}, fixedrate.Pool{}, err
	}

	// Long exposure tracks the positive part of each checkpoint's net exposure.
	checkpointExposure := new(big.Int).Add(s.checkpointExposure, q.bondsOut.ToBig())
	longExposure := new(big.Int).Add(s.longExposure.ToBig(), positivePart(checkpointExposure))
	longExposure.Sub(longExposure, positivePart(s.checkpointExposure))

	next = fixedrate.DeepCopyPool(pool)
	next.Info.ShareReserves = shareReserves.ToBig()
	next.Info.BondReserves = bondReserves.ToBig()
	next.Info.LongsOutstanding = longsOutstanding.ToBig()
	next.Info.LongAverageMaturityTime = maturity.ToBig()
	next.Info.LongExposure = longExposure
	next.Info.CheckpointExposure = checkpointExposure

	trade = Trade{
		Shares:        dz.ToBig(),
		Bonds:         q.bondsOut.ToBig(),
		CurveFee:      q.curveFee.ToBig(),
		FlatFee:       new(big.Int),
		GovernanceFee: q.governanceFee.ToBig(),
	}
	return trade, next, nil
}

func positivePart(x *big.Int) *big.Int {
	if x.Sign() < 0 {
		return new(big.Int)
	}
	return x
}

// OpenShort quotes shorting bondsIn bonds. Shares is the deposit: the bonds' face value plus
// the flat fee, less what the curve pays for them net of the curve fee.
func (c *Calculator) OpenShort(pool fixedrate.Pool, bondsIn *big.Int) (trade Trade, err error) {
	done := c.track(opOpenShort, &pool)
	defer func() { done(err) }()

	s, err := newPoolState(pool)
	if err != nil {
		return Trade{}, err
	}
	dy, err := s.tradeAmount(bondsIn)
	if err != nil {
		return Trade{}, err
	}
	ze, err := s.effectiveShareReserves()
	if err != nil {
		return Trade{}, err
	}
	spot, err := trademath.SpotPrice(ze, s.bondReserves, s.initialVaultSharePrice, s.timeStretch)
	if err != nil {
		return Trade{}, err
	}
	sharesOut, err := trademath.OpenShort(ze, s.bondReserves, dy, s.timeStretch, s.vaultSharePrice, s.initialVaultSharePrice)
	if err != nil {
		return Trade{}, err
	}
	curveFee, err := trademath.ShortCurveFee(dy, spot, s.vaultSharePrice, s.curveFee)
	if err != nil {
		return Trade{}, err
	}
	if curveFee.Gt(sharesOut) {
		return Trade{}, fmt.Errorf("%w: curve fee %s exceeds shares out %s", ErrInvalidAmount, curveFee.Dec(), sharesOut.Dec())
	}
	governanceFee, err := trademath.ShortGovernanceCurveFee(dy, spot, s.vaultSharePrice, s.curveFee, s.governanceLPFee)
	if err != nil {
		return Trade{}, err
	}

	params := s.maxTradeParams()
	if _, ok, err := trademath.SolvencyAfterShort(&params, s.checkpointExposure, dy, sharesOut, spot); err != nil {
		return Trade{}, err
	} else if !ok {
		return Trade{}, fmt.Errorf("%w: short of %s bonds", ErrInsufficientLiquidity, dy.Dec())
	}

	net := new(uint256.Int).Sub(sharesOut, curveFee)
	deposit, err := trademath.ShortProceedsUp(dy, net, s.vaultSharePrice, s.vaultSharePrice, s.vaultSharePrice, s.flatFee)
	if err != nil {
		return Trade{}, err
	}
	return Trade{
		Shares:        deposit.ToBig(),
		Bonds:         dy.ToBig(),
		CurveFee:      curveFee.ToBig(),
		FlatFee:       new(big.Int),
		GovernanceFee: governanceFee.ToBig(),
	}, nil
}

// closeQuote carries the parts of a close shared by longs and shorts.
type closeQuote struct {
	bonds           *uint256.Int
	openSharePrice  *uint256.Int
	timeRemaining   *uint256.Int
	spotPrice       *uint256.Int
	effectiveShares *uint256.Int
	curveFee        *uint256.Int
	flatFee         *uint256.Int
	governanceFee   *uint256.Int
}

func (s *poolState) closeQuote(position Position, now uint64) (*closeQuote, error) {
	bonds, err := s.tradeAmount(position.Bonds)
	if err != nil {
		return nil, err
	}
	openSharePrice := s.vaultSharePrice
	if position.OpenVaultSharePrice != nil {
		if openSharePrice, err = amount(position.OpenVaultSharePrice); err != nil {
			return nil, err
		}
		if openSharePrice.IsZero() {
			return nil, fmt.Errorf("%w: open vault share price is zero", ErrInvalidAmount)
		}
	}

	maturity := new(uint256.Int).Mul(uint256.NewInt(position.MaturityTime), fixedpointmath.One)
	timeRemaining, err := s.timeRemaining(maturity, now)
	if err != nil {
		return nil, err
	}
	ze, err := s.effectiveShareReserves()
	if err != nil {
		return nil, err
	}
	spot, err := trademath.SpotPrice(ze, s.bondReserves, s.initialVaultSharePrice, s.timeStretch)
	if err != nil {
		return nil, err
	}
	curveFee, err := trademath.CloseCurveFee(bonds, timeRemaining, spot, s.vaultSharePrice, s.curveFee)
	if err != nil {
		return nil, err
	}
	flatFee, err := trademath.FlatFee(bonds, timeRemaining, s.vaultSharePrice, s.flatFee)
	if err != nil {
		return nil, err
	}

	var m fixedpointmath.Calc
	governanceFee := m.Add(m.MulDown(curveFee, s.governanceLPFee), m.MulDown(flatFee, s.governanceLPFee))
	if err := m.Err(); err != nil {
		return nil, err
	}
	return &closeQuote{
		bonds:           bonds,
		openSharePrice:  openSharePrice,
		timeRemaining:   timeRemaining,
		spotPrice:       spot,
		effectiveShares: ze,
		curveFee:        curveFee,
		flatFee:         flatFee,
		governanceFee:   governanceFee,
	}, nil
}

func (q *closeQuote) trade(shares *uint256.Int) Trade {
	return Trade{
		Shares:        shares.ToBig(),
		Bonds:         q.bonds.ToBig(),
		CurveFee:      q.curveFee.ToBig(),
		FlatFee:       q.flatFee.ToBig(),
		GovernanceFee: q.governanceFee.ToBig(),
	}
}

// CloseLong quotes selling a long back to the pool. The matured part redeems at the vault
// share price and the rest is sold on the curve. Proceeds are scaled down if the vault lost
// value since the position opened.
func (c *Calculator) CloseLong(pool fixedrate.Pool, position Position, now uint64) (trade Trade, err error) {
	done := c.track(opCloseLong, &pool)
	defer func() { done(err) }()

	s, err := newPoolState(pool)
	if err != nil {
		return Trade{}, err
	}
	q, err := s.closeQuote(position, now)
	if err != nil {
		return Trade{}, err
	}
	closed, err := trademath.CloseLong(q.effectiveShares, s.bondReserves, q.bonds, q.timeRemaining, s.timeStretch, s.vaultSharePrice, s.initialVaultSharePrice)
	if err != nil {
		return Trade{}, err
	}

	fees := new(uint256.Int).Add(q.curveFee, q.flatFee)
	proceeds := new(uint256.Int)
	if closed.Shares.Gt(fees) {
		proceeds.Sub(closed.Shares, fees)
	}
	proceeds, err = trademath.ApplyNegativeInterest(proceeds, q.openSharePrice, s.vaultSharePrice)
	if err != nil {
		return Trade{}, err
	}
	return q.trade(proceeds), nil
}

// CloseShort quotes buying back a short. Shares is what the trader receives: the interest and
// flat fee earned on the deposit, minus the cost of buying the bonds back.
func (c *Calculator) CloseShort(pool fixedrate.Pool, position Position, now uint64) (trade Trade, err error) {
	done := c.track(opCloseShort, &pool)
	defer func() { done(err) }()

	s, err := newPoolState(pool)
	if err != nil {
		return Trade{}, err
	}
	q, err := s.closeQuote(position, now)
	if err != nil {
		return Trade{}, err
	}
	closed, err := trademath.CloseShort(q.effectiveShares, s.bondReserves, q.bonds, q.timeRemaining, s.timeStretch, s.vaultSharePrice, s.initialVaultSharePrice)
	if err != nil {
		return Trade{}, err
	}

	var m fixedpointmath.Calc
	payment := m.Add(m.Add(closed.Shares, q.curveFee), q.flatFee)
	if err := m.Err(); err != nil {
		return Trade{}, err
	}
	proceeds, err := trademath.ShortProceedsDown(q.bonds, payment, q.openSharePrice, s.vaultSharePrice, s.vaultSharePrice, s.flatFee)
	if err != nil {
		return Trade{}, err
	}
	return q.trade(proceeds), nil
}

// MaxLong returns the largest long the pool can absorb while staying solvent, as the shares
// paid and the bonds received net of fees.
func (c *Calculator) MaxLong(pool fixedrate.Pool) (sharesIn, bondsOut *big.Int, err error) {
	done := c.track(opMaxLong, &pool)
	defer func() { done(err) }()

	s, err := newPoolState(pool)
	if err != nil {
		return nil, nil, err
	}
	shares, bonds, err := trademath.MaxLong(s.maxTradeParams(), s.checkpointExposure, c.cfg.MaxLongIterations)
	if err != nil {
		return nil, nil, err
	}
	return shares.ToBig(), bonds.ToBig(), nil
}

// MaxShort returns the largest short, in bonds, the pool can absorb while staying solvent.
func (c *Calculator) MaxShort(pool fixedrate.Pool) (bondsIn *big.Int, err error) {
	done := c.track(opMaxShort, &pool)
	defer func() { done(err) }()

	s, err := newPoolState(pool)
	if err != nil {
		return nil, err
	}
	bonds, err := trademath.MaxShort(s.maxTradeParams(), s.checkpointExposure, c.cfg.MaxShortIterations)
	if err != nil {
		return nil, err
	}
	return bonds.ToBig(), nil
}

// PresentValue returns the LPs' claim on the pool at now, in shares.
func (c *Calculator) PresentValue(pool fixedrate.Pool, now uint64) (pv *big.Int, err error) {
	done := c.track(opPresentValue, &pool)
	defer func() { done(err) }()

	s, err := newPoolState(pool)
	if err != nil {
		return nil, err
	}
	params, err := s.presentValueParams(now)
	if err != nil {
		return nil, err
	}
	v, err := lpmath.PresentValue(params)
	if err != nil {
		return nil, err
	}
	return v.ToBig(), nil
}

// LPSharePrice returns the base value of one LP share at now. Withdrawal shares count towards
// the supply.
func (c *Calculator) LPSharePrice(pool fixedrate.Pool, now uint64) (price *big.Int, err error) {
	done := c.track(opLPSharePrice, &pool)
	defer func() { done(err) }()

	s, err := newPoolState(pool)
	if err != nil {
		return nil, err
	}
	params, err := s.presentValueParams(now)
	if err != nil {
		return nil, err
	}
	pv, err := lpmath.PresentValue(params)
	if err != nil {
		return nil, err
	}
	var m fixedpointmath.Calc
	supply := m.Add(s.lpTotalSupply, s.withdrawalShares)
	if err := m.Err(); err != nil {
		return nil, err
	}
	v, err := lpmath.LPSharePrice(pv, supply, s.vaultSharePrice)
	if err != nil {
		return nil, err
	}
	return v.ToBig(), nil
}

// IdleShareReserves returns the shares not needed to back outstanding longs.
func (c *Calculator) IdleShareReserves(pool fixedrate.Pool) (idle *big.Int, err error) {
	done := c.track(opIdle, &pool)
	defer func() { done(err) }()

	s, err := newPoolState(pool)
	if err != nil {
		return nil, err
	}
	v, err := s.idleShareReserves()
	if err != nil {
		return nil, err
	}
	return v.ToBig(), nil
}

// DistributeExcessIdle returns how many withdrawal shares the pool's idle capital can redeem
// at now without lowering the LP share price, and the shares paid out for them.
func (c *Calculator) DistributeExcessIdle(pool fixedrate.Pool, now uint64) (redeemed, proceeds *big.Int, err error) {
	done := c.track(opDistribute, &pool)
	defer func() { done(err) }()

	s, err := newPoolState(pool)
	if err != nil {
		return nil, nil, err
	}
	params, err := s.presentValueParams(now)
	if err != nil {
		return nil, nil, err
	}
	pv, err := lpmath.PresentValue(params)
	if err != nil {
		return nil, nil, err
	}
	idle, err := s.idleShareReserves()
	if err != nil {
		return nil, nil, err
	}

	w, shares, err := lpmath.DistributeExcessIdle(lpmath.DistributeExcessIdleParams{
		PresentValue:                params,
		StartingPresentValue:        pv,
		ActiveLpTotalSupply:         s.lpTotalSupply,
		WithdrawalSharesTotalSupply: s.withdrawalShares,
		Idle:                        idle,
	}, c.cfg.DistributeIterations, c.tolerance)
	if err != nil {
		return nil, nil, err
	}
	c.logger.Debug("distributed excess idle", "pool", pool.ID, "withdrawalShares", w.Dec(), "shares", shares.Dec())
	return w.ToBig(), shares.ToBig(), nil
}
