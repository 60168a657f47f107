package calculator

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/defistate/fixedrate-client-go/protocols/fixedrate"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/fixedpointmath"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/trademath"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	year = 365 * 24 * 60 * 60
	now  = 1_700_000_000

	// checkpoint starts the daily checkpoint that contains now, 80_000 seconds earlier.
	checkpoint = now - now%(24*60*60)
)

func fp(s string) *big.Int {
	return fixedpointmath.MustParse(s).ToBig()
}

func n(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad integer " + s)
	}
	return v
}

// maturingIn returns a 1e18 scaled timestamp seconds after the current checkpoint.
func maturingIn(seconds uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(checkpoint+seconds), fixedpointmath.One.ToBig())
}

// testPool is 1000 shares quoting 5% over a one year term.
func testPool() fixedrate.Pool {
	return fixedrate.Pool{
		ID:      1,
		Address: common.HexToAddress("0x0000000000000000000000000000000000000001"),
		Config: fixedrate.PoolConfig{
			InitialVaultSharePrice:   fp("1"),
			MinimumShareReserves:     fp("10"),
			MinimumTransactionAmount: fp("0.001"),
			PositionDuration:         year,
			CheckpointDuration:       24 * 60 * 60,
			TimeStretch:              n("44463125629060298"),
			Fees: fixedrate.Fees{
				Curve:        fp("0.01"),
				Flat:         fp("0.0005"),
				GovernanceLP: fp("0.15"),
			},
		},
		Info: fixedrate.PoolInfo{
			ShareReserves:   fp("1000"),
			ShareAdjustment: n("740491999687643900742"),
			BondReserves:    n("777516599672026095741"),
			VaultSharePrice: fp("1"),
			LpTotalSupply:   fp("1000"),
		},
	}
}

func newTestCalculator(t *testing.T) (*Calculator, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	calc, err := New(DefaultConfig(), registry, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return calc, registry
}

func within(t *testing.T, expected, actual *big.Int, tolerance int64) {
	t.Helper()
	diff := new(big.Int).Sub(expected, actual)
	assert.LessOrEqualf(t, diff.CmpAbs(big.NewInt(tolerance)), 0, "expected %s got %s", expected, actual)
}

func TestNew(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := New(DefaultConfig(), nil, logger)
	assert.Error(t, err)

	_, err = New(DefaultConfig(), prometheus.NewRegistry(), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.YearLength = 0
	_, err = New(cfg, prometheus.NewRegistry(), logger)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.ShareProceedsTolerance = big.NewInt(-1)
	_, err = New(cfg, prometheus.NewRegistry(), logger)
	assert.Error(t, err)
}

func TestNewSharedRegistry(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("calculators share collectors", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		first, err := New(DefaultConfig(), registry, logger)
		require.NoError(t, err)
		second, err := New(DefaultConfig(), registry, logger)
		require.NoError(t, err)

		_, err = first.SpotPrice(fixedrate.Pool{})
		assert.Error(t, err)
		_, err = second.SpotPrice(fixedrate.Pool{})
		assert.Error(t, err)
		assert.Equal(t, float64(2), errorCounts(t, registry)[opSpotPrice])
	})

	t.Run("conflicting collector", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		registry.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fixedrate_calculator_errors_total",
			Help: "Unlabelled counter under the same name.",
		}))
		_, err := New(DefaultConfig(), registry, logger)
		assert.Error(t, err)
	})
}

func TestSpotPriceAndRate(t *testing.T) {
	calc, _ := newTestCalculator(t)

	price, err := calc.SpotPrice(testPool())
	require.NoError(t, err)
	assert.Equal(t, "952380952380952380", price.String())

	rate, err := calc.SpotRate(testPool())
	require.NoError(t, err)
	within(t, fp("0.05"), rate, 10)
}

func TestInvalidInputs(t *testing.T) {
	calc, registry := newTestCalculator(t)

	t.Run("nil amount", func(t *testing.T) {
		_, err := calc.OpenLong(testPool(), nil)
		assert.ErrorIs(t, err, ErrNilAmount)
	})

	t.Run("negative amount", func(t *testing.T) {
		_, err := calc.OpenShort(testPool(), big.NewInt(-1))
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("below minimum transaction amount", func(t *testing.T) {
		_, err := calc.OpenLong(testPool(), big.NewInt(1))
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("missing pool field", func(t *testing.T) {
		pool := testPool()
		pool.Info.ShareReserves = nil
		_, err := calc.SpotPrice(pool)
		assert.ErrorIs(t, err, ErrInvalidPool)
		assert.Contains(t, err.Error(), "shareReserves")
	})

	t.Run("impossible pool values", func(t *testing.T) {
		pool := testPool()
		pool.Config.TimeStretch = fp("1")
		_, err := calc.SpotPrice(pool)
		assert.ErrorIs(t, err, ErrInvalidPool)

		pool = testPool()
		pool.Config.CheckpointDuration = 7
		_, err = calc.SpotPrice(pool)
		assert.ErrorIs(t, err, ErrInvalidPool)

		pool = testPool()
		pool.Info.VaultSharePrice = big.NewInt(0)
		_, err = calc.PresentValue(pool, now)
		assert.ErrorIs(t, err, ErrInvalidPool)
	})

	errs := errorCounts(t, registry)
	assert.Equal(t, float64(3), errs[opSpotPrice])
	assert.Equal(t, float64(2), errs[opOpenLong])
	assert.Len(t, errs, 4, "one series per failing op")
}

// errorCounts gathers fixedrate_calculator_errors_total by op.
func errorCounts(t *testing.T, registry *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)

	counts := make(map[string]float64)
	for _, family := range families {
		if family.GetName() != "fixedrate_calculator_errors_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "op" {
					counts[label.GetValue()] = metric.GetCounter().GetValue()
				}
			}
		}
	}
	return counts
}

func TestOpenTrades(t *testing.T) {
	calc, _ := newTestCalculator(t)

	t.Run("open long", func(t *testing.T) {
		trade, err := calc.OpenLong(testPool(), fp("10"))
		require.NoError(t, err)
		assert.Equal(t, fp("10"), trade.Shares)
		assert.Equal(t, "10482963170846590128", trade.Bonds.String())
		assert.Equal(t, "5000000000000010", trade.CurveFee.String())
		assert.Equal(t, "714285714285715", trade.GovernanceFee.String())
		assert.Zero(t, trade.FlatFee.Sign())
	})

	t.Run("open short", func(t *testing.T) {
		trade, err := calc.OpenShort(testPool(), fp("10"))
		require.NoError(t, err)
		assert.Equal(t, "496517383355065304", trade.Shares.String())
		assert.Equal(t, fp("10"), trade.Bonds)
		assert.Equal(t, "4761904761904770", trade.CurveFee.String())
		assert.Equal(t, "714285714285715", trade.GovernanceFee.String())
	})

	t.Run("a long larger than the pool can back is rejected", func(t *testing.T) {
		pool := testPool()
		pool.Info.LongExposure = fp("985")
		pool.Info.LongsOutstanding = fp("985")
		_, err := calc.OpenLong(pool, fp("200"))
		assert.ErrorIs(t, err, ErrInsufficientLiquidity)
	})
}

func TestCloseTrades(t *testing.T) {
	calc, _ := newTestCalculator(t)
	halfTerm := uint64(year / 2)
	position := Position{Bonds: fp("10"), MaturityTime: checkpoint + halfTerm}

	t.Run("close long", func(t *testing.T) {
		trade, err := calc.CloseLong(testPool(), position, now)
		require.NoError(t, err)
		assert.Equal(t, "9754391594112073715", trade.Shares.String())
		assert.Equal(t, "2380952380952385", trade.CurveFee.String())
		assert.Equal(t, "2500000000000000", trade.FlatFee.String())
		assert.Equal(t, "732142857142857", trade.GovernanceFee.String())
	})

	t.Run("close long after the vault lost value", func(t *testing.T) {
		lossy := position
		lossy.OpenVaultSharePrice = fp("1.1")
		trade, err := calc.CloseLong(testPool(), lossy, now)
		require.NoError(t, err)
		assert.Equal(t, "8867628721920067013", trade.Shares.String())
	})

	t.Run("close short", func(t *testing.T) {
		trade, err := calc.CloseShort(testPool(), position, now)
		require.NoError(t, err)
		assert.Equal(t, "235599563539418393", trade.Shares.String())
		assert.Equal(t, "2380952380952385", trade.CurveFee.String())
		assert.Equal(t, "2500000000000000", trade.FlatFee.String())
	})

	t.Run("matured long redeems at the vault share price", func(t *testing.T) {
		matured := Position{Bonds: fp("10"), MaturityTime: checkpoint}
		trade, err := calc.CloseLong(testPool(), matured, now)
		require.NoError(t, err)
		assert.Zero(t, trade.CurveFee.Sign())
		// 10 bonds less the flat fee of 10 * 0.0005.
		assert.Equal(t, fp("9.995"), trade.Shares)
	})

	t.Run("zero open vault share price", func(t *testing.T) {
		bad := position
		bad.OpenVaultSharePrice = new(big.Int)
		_, err := calc.CloseLong(testPool(), bad, now)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestSimulateOpenLong(t *testing.T) {
	calc, _ := newTestCalculator(t)
	pool := testPool()

	trade, next, err := calc.SimulateOpenLong(pool, fp("10"), now)
	require.NoError(t, err)
	assert.Equal(t, "10482963170846590128", trade.Bonds.String())

	assert.Equal(t, "1009999285714285714285", next.Info.ShareReserves.String())
	assert.Equal(t, "767032886501179505611", next.Info.BondReserves.String())
	assert.Equal(t, trade.Bonds, next.Info.LongsOutstanding)
	assert.Equal(t, trade.Bonds, next.Info.LongExposure)
	assert.Equal(t, trade.Bonds, next.Info.CheckpointExposure)
	expectedMaturity := new(big.Int).Mul(big.NewInt(checkpoint+year), fixedpointmath.One.ToBig())
	assert.Equal(t, expectedMaturity, next.Info.LongAverageMaturityTime)

	assert.Equal(t, fp("1000"), pool.Info.ShareReserves, "input pool is untouched")
	assert.Nil(t, pool.Info.LongsOutstanding)

	before, err := calc.SpotPrice(pool)
	require.NoError(t, err)
	after, err := calc.SpotPrice(next)
	require.NoError(t, err)
	assert.Equal(t, "954559304711510863", after.String())
	assert.Equal(t, 1, after.Cmp(before), "longs push the bond price up")

	t.Run("a net short checkpoint absorbs new longs", func(t *testing.T) {
		short := testPool()
		short.Info.CheckpointExposure = fp("-5")
		trade, next, err := calc.SimulateOpenLong(short, fp("10"), now)
		require.NoError(t, err)
		expected := new(big.Int).Sub(trade.Bonds, fp("5"))
		assert.Equal(t, expected, next.Info.LongExposure)
	})

	t.Run("a new position has a full term left", func(t *testing.T) {
		s, err := newPoolState(next)
		require.NoError(t, err)
		for _, at := range []uint64{checkpoint, now, checkpoint + 24*60*60 - 1} {
			tr, err := s.timeRemaining(s.maturityTime(at), at)
			require.NoError(t, err)
			assert.Equal(t, fixedpointmath.One, tr, "opened at %d", at)
		}

		params, err := s.presentValueParams(now)
		require.NoError(t, err)
		assert.Equal(t, fixedpointmath.One, params.LongAverageTimeRemaining)

		tr, err := s.timeRemaining(s.maturityTime(checkpoint), checkpoint+24*60*60)
		require.NoError(t, err)
		assert.True(t, tr.Lt(fixedpointmath.One), "a checkpoint later the term has started to run")
	})

	t.Run("closing in the same checkpoint pays no flat fee", func(t *testing.T) {
		position := Position{Bonds: trade.Bonds, MaturityTime: checkpoint + year}
		closed, err := calc.CloseLong(next, position, now)
		require.NoError(t, err)
		assert.Zero(t, closed.FlatFee.Sign())
		assert.Equal(t, -1, closed.Shares.Cmp(fp("10")), "a round trip costs fees")

		short, err := calc.CloseShort(next, position, now)
		require.NoError(t, err)
		assert.Zero(t, short.FlatFee.Sign())
	})
}

func TestMaxTrades(t *testing.T) {
	calc, _ := newTestCalculator(t)

	t.Run("max long without exposure is the curve limit", func(t *testing.T) {
		shares, bonds, err := calc.MaxLong(testPool())
		require.NoError(t, err)
		assert.Equal(t, "255985553440476700817", shares.String())
		assert.Equal(t, "261895053142473053966", bonds.String())
	})

	t.Run("max long with solvency binding", func(t *testing.T) {
		pool := testPool()
		pool.Info.LongsOutstanding = fp("985")
		pool.Info.LongExposure = fp("985")
		shares, _, err := calc.MaxLong(pool)
		require.NoError(t, err)
		within(t, n("150615938206714473232"), shares, 1_000_000)

		_, err = calc.OpenLong(pool, shares)
		assert.NoError(t, err, "the max long is tradeable")
	})

	t.Run("max short", func(t *testing.T) {
		pool := testPool()
		bonds, err := calc.MaxShort(pool)
		require.NoError(t, err)
		assert.Equal(t, "274389831968501473345", bonds.String())

		pool.Info.LongsOutstanding = fp("900")
		pool.Info.LongExposure = fp("900")
		bonds, err = calc.MaxShort(pool)
		require.NoError(t, err)
		within(t, n("95628858880848531203"), bonds, 1_000_000)

		_, err = calc.OpenShort(pool, bonds)
		assert.NoError(t, err, "the max short is tradeable")
	})

	t.Run("pool at its solvency floor", func(t *testing.T) {
		pool := testPool()
		pool.Info.LongsOutstanding = fp("990")
		pool.Info.LongExposure = fp("990")

		shares, bonds, err := calc.MaxLong(pool)
		require.NoError(t, err)
		assert.Zero(t, shares.Sign())
		assert.Zero(t, bonds.Sign())

		shortBonds, err := calc.MaxShort(pool)
		require.NoError(t, err)
		assert.Zero(t, shortBonds.Sign())

		_, err = calc.OpenLong(pool, fp("1"))
		assert.ErrorIs(t, err, ErrInsufficientLiquidity)
	})
}

func TestLiquidity(t *testing.T) {
	calc, _ := newTestCalculator(t)

	t.Run("empty pool", func(t *testing.T) {
		pv, err := calc.PresentValue(testPool(), now)
		require.NoError(t, err)
		assert.Equal(t, fp("990"), pv)

		price, err := calc.LPSharePrice(testPool(), now)
		require.NoError(t, err)
		assert.Equal(t, fp("0.99"), price)

		idle, err := calc.IdleShareReserves(testPool())
		require.NoError(t, err)
		assert.Equal(t, fp("990"), idle)
	})

	longPool := func() fixedrate.Pool {
		pool := testPool()
		pool.Info.LongsOutstanding = fp("200")
		pool.Info.LongExposure = fp("200")
		pool.Info.LongAverageMaturityTime = maturingIn(year / 2)
		return pool
	}

	t.Run("net long", func(t *testing.T) {
		pv, err := calc.PresentValue(longPool(), now)
		require.NoError(t, err)
		assert.Equal(t, "795900080183417782005", pv.String())

		idle, err := calc.IdleShareReserves(longPool())
		require.NoError(t, err)
		assert.Equal(t, fp("790"), idle)
	})

	t.Run("distribute excess idle", func(t *testing.T) {
		pool := testPool()
		pool.Info.WithdrawalSharesTotalSupply = fp("100")
		redeemed, proceeds, err := calc.DistributeExcessIdle(pool, now)
		require.NoError(t, err)
		assert.Equal(t, fp("100"), redeemed)
		assert.Equal(t, fp("90"), proceeds)

		pool = longPool()
		pool.Info.WithdrawalSharesTotalSupply = fp("100")
		redeemed, proceeds, err = calc.DistributeExcessIdle(pool, now)
		require.NoError(t, err)
		within(t, fp("100"), redeemed, 1_000_000)
		within(t, n("72453150900704179563"), proceeds, 1_000_000)
	})

	t.Run("nothing to redeem", func(t *testing.T) {
		redeemed, proceeds, err := calc.DistributeExcessIdle(testPool(), now)
		require.NoError(t, err)
		assert.Zero(t, redeemed.Sign())
		assert.Zero(t, proceeds.Sign())
	})
}

func TestCalculatorMatchesTradeMath(t *testing.T) {
	calc, _ := newTestCalculator(t)
	pool := testPool()

	ze, err := trademath.EffectiveShareReserves(fixedpointmath.MustParse("1000"), pool.Info.ShareAdjustment)
	require.NoError(t, err)
	for _, amount := range []string{"0.001", "1", "25", "100"} {
		trade, err := calc.OpenLong(pool, fp(amount))
		require.NoError(t, err)

		raw, err := trademath.OpenLong(
			ze,
			fixedpointmath.MustParse("777.516599672026095741"),
			fixedpointmath.MustParse(amount),
			fixedpointmath.MustParse("0.044463125629060298"),
			fixedpointmath.One,
			fixedpointmath.One,
		)
		require.NoError(t, err)
		total := new(big.Int).Add(trade.Bonds, trade.CurveFee)
		assert.Equal(t, raw.ToBig(), total, "amount %s", amount)
	}
}
