package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/defistate/fixedrate-client-go/cmd/quoter/config"
	"github.com/defistate/fixedrate-client-go/differ"
	"github.com/defistate/fixedrate-client-go/engine"
	"github.com/defistate/fixedrate-client-go/patcher"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/fixedpointmath"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/indexer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// create the log handler
	rootLogHandler := slog.NewJSONHandler(os.Stdout, nil)
	close := func() {
		os.Exit(1)
	}

	rootLogger := slog.New(rootLogHandler)
	prometheusRegistry := prometheus.DefaultRegisterer
	cfg, err := loadConfig()
	if err != nil {
		rootLogger.Error("Failed to load configuration", "error", err)
		close()
	}

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	calcConfig, err := cfg.CalculatorConfig()
	if err != nil {
		rootLogger.Error("Invalid calculator configuration", "error", err)
		close()
	}
	calc, err := calculator.New(calcConfig, prometheusRegistry, rootLogger.With("component", "calculator"))
	if err != nil {
		rootLogger.Error("Failed to initialize Calculator", "error", err)
		close()
	}
	snapshotDiffer, err := differ.NewSnapshotDiffer(&differ.SnapshotDifferConfig{
		Registry: prometheusRegistry,
		Logger:   rootLogger.With("component", "differ"),
	})
	if err != nil {
		rootLogger.Error("Failed to initialize Differ", "error", err)
		close()
	}

	snapshot, err := replaySnapshots(cfg, snapshotDiffer, rootLogger.With("component", "replay"))
	if err != nil {
		rootLogger.Error("Failed to load snapshots", "chain_id", cfg.ChainID, "error", err)
		close()
	}

	longShares, shortBonds, err := cfg.QuoteAmounts()
	if err != nil {
		rootLogger.Error("Invalid quote amounts", "error", err)
		close()
	}
	q := &quoter{
		calc:       calc,
		logger:     rootLogger.With("component", "quoter"),
		longShares: longShares,
		shortBonds: shortBonds,
	}
	q.quoteAll(indexer.New().Index(snapshot.Pools), snapshot.Block.Timestamp)

	if cfg.MetricsAddr == "" {
		return
	}
	serveMetrics(ctx, cfg.MetricsAddr, rootLogger.With("component", "metrics"))
}

func loadConfig() (*config.QuoterConfig, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConfig(*configPath)
}

// replaySnapshots loads the configured snapshots in order, rolling each one onto the running
// state through a diff and patch. The patched state must match the snapshot it was built from.
func replaySnapshots(cfg *config.QuoterConfig, d *differ.SnapshotDiffer, logger *slog.Logger) (*engine.Snapshot, error) {
	current, err := engine.LoadSnapshot(cfg.Snapshots[0])
	if err != nil {
		return nil, err
	}
	if current.ChainID != cfg.ChainID {
		return nil, errors.New("snapshot chain does not match configuration")
	}
	logger.Info("Loaded base snapshot", "block", current.Block.Number, "pools", len(current.Pools))

	for _, path := range cfg.Snapshots[1:] {
		next, err := engine.LoadSnapshot(path)
		if err != nil {
			return nil, err
		}
		diff, err := d.Diff(current, next)
		if err != nil {
			return nil, err
		}
		patched, err := patcher.Patch(current, diff)
		if err != nil {
			return nil, err
		}
		if drift := fixedrate.Differ(next.Pools, patched.Pools); !drift.IsEmpty() {
			return nil, errors.New("patched snapshot does not match " + path)
		}
		logger.Info("Applied snapshot diff",
			"fromBlock", diff.FromBlock,
			"toBlock", diff.ToBlock.Number,
			"added", len(diff.Pools.Additions),
			"updated", len(diff.Pools.Updates),
			"deleted", len(diff.Pools.Deletions),
		)
		current = patched
	}
	return current, nil
}

type quoter struct {
	calc       *calculator.Calculator
	logger     *slog.Logger
	longShares *big.Int
	shortBonds *big.Int
}

// quoteAll logs a quote for every pool. A pool that cannot be priced is logged and skipped.
func (q *quoter) quoteAll(pools indexer.IndexedFixedRate, now uint64) {
	for _, pool := range pools.All() {
		logger := q.logger.With("pool", pool.ID, "address", pool.Address.Hex())
		if err := q.quote(pool, now, logger); err != nil {
			logger.Warn("Failed to quote pool", "error", err)
		}
	}
}

func (q *quoter) quote(pool fixedrate.Pool, now uint64, logger *slog.Logger) error {
	price, err := q.calc.SpotPrice(pool)
	if err != nil {
		return err
	}
	rate, err := q.calc.SpotRate(pool)
	if err != nil {
		return err
	}
	maxLongShares, maxLongBonds, err := q.calc.MaxLong(pool)
	if err != nil {
		return err
	}
	maxShort, err := q.calc.MaxShort(pool)
	if err != nil {
		return err
	}
	pv, err := q.calc.PresentValue(pool, now)
	if err != nil {
		return err
	}
	lpPrice, err := q.calc.LPSharePrice(pool, now)
	if err != nil {
		return err
	}
	idle, err := q.calc.IdleShareReserves(pool)
	if err != nil {
		return err
	}
	redeemed, proceeds, err := q.calc.DistributeExcessIdle(pool, now)
	if err != nil {
		return err
	}
	logger.Info("Pool state",
		"spotPrice", format(price),
		"spotRate", format(rate),
		"maxLongShares", format(maxLongShares),
		"maxLongBonds", format(maxLongBonds),
		"maxShortBonds", format(maxShort),
		"presentValue", format(pv),
		"lpSharePrice", format(lpPrice),
		"idleShares", format(idle),
		"redeemableWithdrawalShares", format(redeemed),
		"withdrawalProceeds", format(proceeds),
	)

	// Trade quotes are optional: a pool may be too small for the configured sizes.
	if long, next, err := q.calc.SimulateOpenLong(pool, q.longShares, now); err != nil {
		logger.Warn("Open long not quotable", "shares", format(q.longShares), "error", err)
	} else {
		logger.Info("Open long",
			"shares", format(long.Shares),
			"bonds", format(long.Bonds),
			"curveFeeBonds", format(long.CurveFee),
			"governanceFee", format(long.GovernanceFee),
		)
		if after, err := q.calc.SpotPrice(next); err != nil {
			logger.Warn("Failed to price pool after open long", "error", err)
		} else {
			logger.Info("Spot price after open long", "spotPrice", format(after))
		}
	}
	if short, err := q.calc.OpenShort(pool, q.shortBonds); err != nil {
		logger.Warn("Open short not quotable", "bonds", format(q.shortBonds), "error", err)
	} else {
		logger.Info("Open short",
			"bonds", format(short.Bonds),
			"deposit", format(short.Shares),
			"curveFee", format(short.CurveFee),
			"governanceFee", format(short.GovernanceFee),
		)
	}
	return nil
}

func format(x *big.Int) string {
	if x == nil {
		return ""
	}
	return fixedpointmath.ToDecimalInt(x).String()
}

// serveMetrics exposes Prometheus metrics until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to shut down metrics server", "error", err)
		}
	}()

	logger.Info("Serving metrics", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Metrics server failed", "error", err)
	}
}
