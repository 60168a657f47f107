package main

import (
	"bytes"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/defistate/fixedrate-client-go/cmd/quoter/config"
	"github.com/defistate/fixedrate-client-go/differ"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/indexer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDiffer(t *testing.T) *differ.SnapshotDiffer {
	t.Helper()
	d, err := differ.NewSnapshotDiffer(&differ.SnapshotDifferConfig{
		Registry: prometheus.NewRegistry(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return d
}

func TestReplaySnapshots(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("patches onto the latest snapshot", func(t *testing.T) {
		cfg := &config.QuoterConfig{
			ChainID:   1,
			Snapshots: []string{"testdata/snapshot-100.json", "testdata/snapshot-101.json"},
		}
		snapshot, err := replaySnapshots(cfg, newTestDiffer(t), logger)
		require.NoError(t, err)
		assert.Equal(t, int64(101), snapshot.Block.Number.Int64())
		require.Len(t, snapshot.Pools, 1)
		longs, _ := new(big.Int).SetString("10482963170846590128", 10)
		assert.Equal(t, 0, snapshot.Pools[0].Info.LongsOutstanding.Cmp(longs))
	})

	t.Run("single snapshot", func(t *testing.T) {
		cfg := &config.QuoterConfig{ChainID: 1, Snapshots: []string{"testdata/snapshot-100.json"}}
		snapshot, err := replaySnapshots(cfg, newTestDiffer(t), logger)
		require.NoError(t, err)
		assert.Equal(t, int64(100), snapshot.Block.Number.Int64())
	})

	t.Run("chain mismatch", func(t *testing.T) {
		cfg := &config.QuoterConfig{ChainID: 5, Snapshots: []string{"testdata/snapshot-100.json"}}
		_, err := replaySnapshots(cfg, newTestDiffer(t), logger)
		assert.Error(t, err)
	})

	t.Run("blocks out of order", func(t *testing.T) {
		cfg := &config.QuoterConfig{
			ChainID:   1,
			Snapshots: []string{"testdata/snapshot-101.json", "testdata/snapshot-100.json"},
		}
		_, err := replaySnapshots(cfg, newTestDiffer(t), logger)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		cfg := &config.QuoterConfig{ChainID: 1, Snapshots: []string{"testdata/missing.json"}}
		_, err := replaySnapshots(cfg, newTestDiffer(t), logger)
		assert.Error(t, err)
	})
}

func TestQuoteAll(t *testing.T) {
	cfg := &config.QuoterConfig{ChainID: 1, Snapshots: []string{"testdata/snapshot-100.json"}}
	snapshot, err := replaySnapshots(cfg, newTestDiffer(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	calc, err := calculator.New(calculator.DefaultConfig(), prometheus.NewRegistry(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	var logs bytes.Buffer
	cfg.Quotes = config.QuoteConfig{OpenLongShares: "10", OpenShortBonds: "10"}
	longShares, shortBonds, err := cfg.QuoteAmounts()
	require.NoError(t, err)
	q := &quoter{
		calc:       calc,
		logger:     slog.New(slog.NewJSONHandler(&logs, nil)),
		longShares: longShares,
		shortBonds: shortBonds,
	}

	q.quoteAll(indexer.New().Index(snapshot.Pools), snapshot.Block.Timestamp)

	out := logs.String()
	assert.Contains(t, out, `"msg":"Pool state"`)
	assert.Contains(t, out, `"spotPrice":"0.95238095238095238"`)
	assert.Contains(t, out, `"msg":"Open long"`)
	assert.Contains(t, out, `"bonds":"10.482963170846590128"`)
	assert.Contains(t, out, `"spotPrice":"0.954559304711510863"`)
	assert.Contains(t, out, `"msg":"Open short"`)
	assert.NotContains(t, out, "Failed to quote pool")
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "", format(nil))
	assert.Equal(t, "1.5", format(big.NewInt(1_500_000_000_000_000_000)))
}
