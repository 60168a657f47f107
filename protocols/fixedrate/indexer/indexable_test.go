package indexer

import (
	"math/big"
	"testing"

	"github.com/defistate/fixedrate-client-go/protocols/fixedrate"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexableFixedRateSystem(t *testing.T) {
	addressA := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	addressB := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	testPools := []fixedrate.Pool{
		{ID: 101, Address: addressA, Info: fixedrate.PoolInfo{ShareReserves: big.NewInt(1000)}},
		{ID: 102, Address: addressB, Info: fixedrate.PoolInfo{ShareReserves: big.NewInt(3000)}},
	}

	indexer := New().Index(testPools)
	require.NotNil(t, indexer)

	t.Run("Successful Lookups", func(t *testing.T) {
		pool, found := indexer.GetByID(101)
		assert.True(t, found)
		assert.Equal(t, addressA, pool.Address)

		pool, found = indexer.GetByAddress(addressB)
		assert.True(t, found)
		assert.Equal(t, uint64(102), pool.ID)
		assert.Equal(t, int64(3000), pool.Info.ShareReserves.Int64())
	})

	t.Run("Not Found Lookups", func(t *testing.T) {
		_, found := indexer.GetByID(999)
		assert.False(t, found)
		_, found = indexer.GetByAddress(common.Address{})
		assert.False(t, found)
	})

	t.Run("All Method", func(t *testing.T) {
		allPools := indexer.All()
		require.Len(t, allPools, 2)
		allPools[0].ID = 7
		original, found := indexer.GetByID(101)
		assert.True(t, found)
		assert.Equal(t, uint64(101), original.ID, "modifying the returned slice must not affect the index")
	})

	t.Run("Input slice is copied", func(t *testing.T) {
		pools := []fixedrate.Pool{{ID: 1, Address: addressA}}
		indexed := NewIndexableFixedRateSystem(pools)
		pools[0].ID = 2
		_, found := indexed.GetByID(1)
		assert.True(t, found)
	})

	t.Run("Edge Case - Nil Slice", func(t *testing.T) {
		nilIndexer := NewIndexableFixedRateSystem(nil)
		_, found := nilIndexer.GetByID(1)
		assert.False(t, found)
		allPools := nilIndexer.All()
		assert.Len(t, allPools, 0)
		assert.NotNil(t, allPools)
	})
}
