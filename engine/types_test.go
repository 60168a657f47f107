package engine

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/defistate/fixedrate-client-go/protocols/fixedrate"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const snapshotJSON = `{
	"chainId": 1,
	"block": {
		"number": 100,
		"hash": "0x0000000000000000000000000000000000000000000000000000000000000064",
		"timestamp": 1700000000
	},
	"pools": [
		{
			"id": 7,
			"address": "0x00000000000000000000000000000000000000aa",
			"config": {
				"initialVaultSharePrice": 1000000000000000000,
				"minimumShareReserves": 10000000000000000000,
				"positionDuration": 31536000,
				"checkpointDuration": 86400,
				"timeStretch": 44463125629060298,
				"fees": {"curve": 10000000000000000, "flat": 500000000000000, "governanceLP": 150000000000000000}
			},
			"info": {
				"shareReserves": 1000000000000000000000,
				"shareAdjustment": 740491999687643900742,
				"bondReserves": 777516599672026095741,
				"vaultSharePrice": 1000000000000000000,
				"checkpointExposure": -5
			}
		}
	]
}`

func TestLoadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(snapshotJSON), 0o600))

	s, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), s.ChainID)
	assert.Equal(t, int64(100), s.Block.Number.Int64())
	assert.Equal(t, common.BigToHash(big.NewInt(100)), s.Block.Hash)
	require.Len(t, s.Pools, 1)

	pool := s.Pools[0]
	assert.Equal(t, common.HexToAddress("0xaa"), pool.Address)
	assert.Equal(t, uint64(31536000), pool.Config.PositionDuration)
	assert.Equal(t, "740491999687643900742", pool.Info.ShareAdjustment.String())
	assert.Equal(t, int64(-5), pool.Info.CheckpointExposure.Int64())
	assert.Nil(t, pool.Info.LongsOutstanding)
}

func TestLoadSnapshotErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadSnapshot(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = LoadSnapshot(bad)
	assert.Error(t, err)
}

func TestSnapshotValidate(t *testing.T) {
	pools := []fixedrate.Pool{{ID: 1, Address: common.HexToAddress("0x01")}, {ID: 2, Address: common.HexToAddress("0x02")}}

	s := Snapshot{Block: BlockSummary{Number: big.NewInt(1)}, Pools: pools}
	assert.NoError(t, s.Validate())

	s.Block.Number = nil
	assert.Error(t, s.Validate())

	s = Snapshot{Block: BlockSummary{Number: big.NewInt(1)}, Pools: append(pools, fixedrate.Pool{ID: 1, Address: common.HexToAddress("0x03")})}
	assert.ErrorContains(t, s.Validate(), "duplicate pool id")

	s = Snapshot{Block: BlockSummary{Number: big.NewInt(1)}, Pools: append(pools, fixedrate.Pool{ID: 3, Address: common.HexToAddress("0x02")})}
	assert.ErrorContains(t, s.Validate(), "duplicate pool address")
}
