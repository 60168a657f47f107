package differ

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/defistate/fixedrate-client-go/engine"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeSnapshot(block int64, pools ...fixedrate.Pool) *engine.Snapshot {
	number := big.NewInt(block)
	return &engine.Snapshot{
		ChainID: 1,
		Block:   engine.BlockSummary{Number: number, Hash: common.BigToHash(number), Timestamp: uint64(block) * 12},
		Pools:   pools,
	}
}

func makePool(id uint64, shareReserves int64) fixedrate.Pool {
	return fixedrate.Pool{
		ID:      id,
		Address: common.BigToAddress(new(big.Int).SetUint64(id)),
		Info:    fixedrate.PoolInfo{ShareReserves: big.NewInt(shareReserves)},
	}
}

func newTestDiffer(t *testing.T) (*SnapshotDiffer, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	d, err := NewSnapshotDiffer(&SnapshotDifferConfig{
		Registry: registry,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return d, registry
}

func changeCount(t *testing.T, registry *prometheus.Registry, kind string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "fixedrate_snapshot_pool_changes_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "kind" && label.GetValue() == kind {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestNewSnapshotDiffer(t *testing.T) {
	_, err := NewSnapshotDiffer(&SnapshotDifferConfig{Logger: slog.Default()})
	assert.Error(t, err)

	_, err = NewSnapshotDiffer(&SnapshotDifferConfig{Registry: prometheus.NewRegistry()})
	assert.Error(t, err)

	t.Run("differs share a registry", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		cfg := &SnapshotDifferConfig{Registry: registry, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
		first, err := NewSnapshotDiffer(cfg)
		require.NoError(t, err)
		second, err := NewSnapshotDiffer(cfg)
		require.NoError(t, err)

		_, err = first.Diff(makeSnapshot(100), makeSnapshot(101, makePool(1, 1000)))
		require.NoError(t, err)
		_, err = second.Diff(makeSnapshot(100), makeSnapshot(101, makePool(2, 1000)))
		require.NoError(t, err)
		assert.Equal(t, float64(2), changeCount(t, registry, "added"))
	})
}

func TestSnapshotDiffer_Diff(t *testing.T) {
	d, registry := newTestDiffer(t)

	old := makeSnapshot(100, makePool(1, 1000), makePool(2, 2000))
	new := makeSnapshot(101, makePool(1, 1500), makePool(3, 3000))

	diff, err := d.Diff(old, new)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), diff.ChainID)
	assert.Equal(t, uint64(100), diff.FromBlock)
	assert.Equal(t, new.Block, diff.ToBlock)
	require.Len(t, diff.Pools.Additions, 1)
	assert.Equal(t, uint64(3), diff.Pools.Additions[0].ID)
	require.Len(t, diff.Pools.Updates, 1)
	assert.Equal(t, uint64(1), diff.Pools.Updates[0].ID)
	assert.Equal(t, []uint64{2}, diff.Pools.Deletions)
	assert.NotZero(t, diff.Timestamp)

	assert.Equal(t, float64(1), changeCount(t, registry, "added"))
	assert.Equal(t, float64(1), changeCount(t, registry, "updated"))
	assert.Equal(t, float64(1), changeCount(t, registry, "deleted"))
}

func TestSnapshotDiffer_Errors(t *testing.T) {
	d, _ := newTestDiffer(t)

	t.Run("chain mismatch", func(t *testing.T) {
		other := makeSnapshot(101)
		other.ChainID = 10
		_, err := d.Diff(makeSnapshot(100), other)
		assert.ErrorContains(t, err, "chain mismatch")
	})

	t.Run("going backwards", func(t *testing.T) {
		_, err := d.Diff(makeSnapshot(100), makeSnapshot(99))
		assert.Error(t, err)
	})

	t.Run("unpinned snapshot", func(t *testing.T) {
		unpinned := makeSnapshot(100)
		unpinned.Block.Number = nil
		_, err := d.Diff(unpinned, makeSnapshot(101))
		assert.Error(t, err)
	})

	t.Run("same block is an empty diff", func(t *testing.T) {
		diff, err := d.Diff(makeSnapshot(100, makePool(1, 1)), makeSnapshot(100, makePool(1, 1)))
		require.NoError(t, err)
		assert.True(t, diff.Pools.IsEmpty())
	})
}
