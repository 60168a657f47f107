package fixedrate

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makePool(id uint64, shareReserves int64) Pool {
	return Pool{
		ID:      id,
		Address: common.BigToAddress(new(big.Int).SetUint64(id)),
		Config: PoolConfig{
			InitialVaultSharePrice: big.NewInt(1e18),
			MinimumShareReserves:   big.NewInt(1e16),
			TimeStretch:            big.NewInt(44463125629060298),
			PositionDuration:       365 * 24 * 60 * 60,
			CheckpointDuration:     24 * 60 * 60,
			Fees:                   Fees{Curve: big.NewInt(1e16), Flat: big.NewInt(5e14), GovernanceLP: big.NewInt(15e16)},
		},
		Info: PoolInfo{
			ShareReserves:   big.NewInt(shareReserves),
			ShareAdjustment: big.NewInt(-5),
			BondReserves:    big.NewInt(2 * shareReserves),
			VaultSharePrice: big.NewInt(1e18),
		},
	}
}

func TestDiffer(t *testing.T) {
	pool1 := makePool(1, 1000)
	pool2 := makePool(2, 2000)
	pool3 := makePool(3, 3000)

	t.Run("should identify additions correctly", func(t *testing.T) {
		diff := Differ([]Pool{pool1}, []Pool{pool1, pool2})
		require.Len(t, diff.Additions, 1)
		assert.Equal(t, pool2.ID, diff.Additions[0].ID)
		assert.Empty(t, diff.Updates)
		assert.Empty(t, diff.Deletions)
	})

	t.Run("should identify deletions correctly", func(t *testing.T) {
		diff := Differ([]Pool{pool1, pool2}, []Pool{pool1})
		assert.Empty(t, diff.Additions)
		assert.Empty(t, diff.Updates)
		assert.Equal(t, []uint64{2}, diff.Deletions)
	})

	t.Run("should identify state updates", func(t *testing.T) {
		updated := DeepCopyPool(pool1)
		updated.Info.ShareReserves = big.NewInt(1001)
		diff := Differ([]Pool{pool1}, []Pool{updated})
		require.Len(t, diff.Updates, 1)
		assert.Equal(t, int64(1001), diff.Updates[0].Info.ShareReserves.Int64())
	})

	t.Run("should identify config updates", func(t *testing.T) {
		updated := DeepCopyPool(pool1)
		updated.Config.Fees.Curve = big.NewInt(2e16)
		diff := Differ([]Pool{pool1}, []Pool{updated})
		assert.Len(t, diff.Updates, 1)
	})

	t.Run("nil and set fields differ", func(t *testing.T) {
		updated := DeepCopyPool(pool1)
		updated.Info.LongsOutstanding = big.NewInt(0)
		diff := Differ([]Pool{pool1}, []Pool{updated})
		assert.Len(t, diff.Updates, 1)
	})

	t.Run("should handle a mix of additions, updates, and deletions", func(t *testing.T) {
		updated := DeepCopyPool(pool1)
		updated.Info.BondReserves = big.NewInt(1)
		pool4 := makePool(4, 4000)

		diff := Differ([]Pool{pool1, pool2, pool3}, []Pool{updated, pool2, pool4})
		require.Len(t, diff.Additions, 1)
		assert.Equal(t, uint64(4), diff.Additions[0].ID)
		require.Len(t, diff.Updates, 1)
		assert.Equal(t, uint64(1), diff.Updates[0].ID)
		assert.Equal(t, []uint64{3}, diff.Deletions)
	})

	t.Run("should produce an empty diff when there are no changes", func(t *testing.T) {
		diff := Differ([]Pool{pool1, pool2}, []Pool{DeepCopyPool(pool2), DeepCopyPool(pool1)})
		assert.True(t, diff.IsEmpty())
	})

	t.Run("should handle empty and nil states", func(t *testing.T) {
		assert.True(t, Differ(nil, nil).IsEmpty())

		diff := Differ(nil, []Pool{pool1})
		assert.Len(t, diff.Additions, 1)

		diff = Differ([]Pool{pool1}, []Pool{})
		assert.Equal(t, []uint64{1}, diff.Deletions)
	})
}
