package fixedrate

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findPoolByID(pools []Pool, id uint64) *Pool {
	for i := range pools {
		if pools[i].ID == id {
			return &pools[i]
		}
	}
	return nil
}

func TestPatcher(t *testing.T) {
	initialState := []Pool{makePool(1, 1000), makePool(2, 2000), makePool(3, 3000)}

	t.Run("should handle only additions", func(t *testing.T) {
		newState, err := Patcher(initialState, FixedRateSystemDiff{Additions: []Pool{makePool(4, 4000)}})
		require.NoError(t, err)
		assert.Len(t, newState, 4)
		added := findPoolByID(newState, 4)
		require.NotNil(t, added)
		assert.Equal(t, int64(4000), added.Info.ShareReserves.Int64())
		assert.Equal(t, uint64(4), newState[3].ID, "additions are appended")
	})

	t.Run("should handle only deletions", func(t *testing.T) {
		newState, err := Patcher(initialState, FixedRateSystemDiff{Deletions: []uint64{2}})
		require.NoError(t, err)
		assert.Len(t, newState, 2)
		assert.Nil(t, findPoolByID(newState, 2))
		assert.NotNil(t, findPoolByID(newState, 1))
	})

	t.Run("should handle only updates", func(t *testing.T) {
		updated := makePool(1, 1001)
		newState, err := Patcher(initialState, FixedRateSystemDiff{Updates: []Pool{updated}})
		require.NoError(t, err)
		assert.Len(t, newState, 3)
		assert.Equal(t, int64(1001), findPoolByID(newState, 1).Info.ShareReserves.Int64())
		assert.Equal(t, int64(1000), initialState[0].Info.ShareReserves.Int64(), "previous state is untouched")
	})

	t.Run("should reject updates for unknown pools", func(t *testing.T) {
		_, err := Patcher(initialState, FixedRateSystemDiff{Updates: []Pool{makePool(9, 1)}})
		assert.ErrorIs(t, err, ErrUnknownPool)
	})

	t.Run("should not share memory with inputs", func(t *testing.T) {
		update := makePool(2, 2500)
		newState, err := Patcher(initialState, FixedRateSystemDiff{Updates: []Pool{update}})
		require.NoError(t, err)

		findPoolByID(newState, 1).Info.ShareReserves.SetInt64(0)
		assert.Equal(t, int64(1000), initialState[0].Info.ShareReserves.Int64())

		update.Info.ShareReserves.SetInt64(7)
		assert.Equal(t, int64(2500), findPoolByID(newState, 2).Info.ShareReserves.Int64())
	})

	t.Run("diff then patch reproduces the new state", func(t *testing.T) {
		next := []Pool{makePool(1, 1500), makePool(3, 3000), makePool(5, 5000)}
		next[0].Info.LongsOutstanding = big.NewInt(10)

		patched, err := Patcher(initialState, Differ(initialState, next))
		require.NoError(t, err)
		assert.True(t, Differ(next, patched).IsEmpty())
	})

	t.Run("should handle an empty diff", func(t *testing.T) {
		newState, err := Patcher(initialState, FixedRateSystemDiff{})
		require.NoError(t, err)
		assert.Equal(t, initialState, newState)
	})
}
