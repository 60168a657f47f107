package patcher

import (
	"errors"
	"fmt"

	"github.com/defistate/fixedrate-client-go/differ"
	"github.com/defistate/fixedrate-client-go/engine"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate"
)

// ErrBlockMismatch is returned when a diff does not start at the snapshot's block.
var ErrBlockMismatch = errors.New("patcher: diff does not start at snapshot block")

// Patch creates a new Snapshot by applying the diff to the old one. The old snapshot is not
// modified; unchanged pools are deep copied.
func Patch(oldSnapshot *engine.Snapshot, diff *differ.SnapshotDiff) (*engine.Snapshot, error) {
	if oldSnapshot.Block.Number == nil {
		return nil, errors.New("patcher: snapshot is not pinned to a block")
	}
	if oldSnapshot.Block.Number.Uint64() != diff.FromBlock {
		return nil, fmt.Errorf("%w (snapshot=%d, diff=%d)", ErrBlockMismatch, oldSnapshot.Block.Number.Uint64(), diff.FromBlock)
	}
	if oldSnapshot.ChainID != diff.ChainID {
		return nil, fmt.Errorf("patcher: chain mismatch (snapshot=%d, diff=%d)", oldSnapshot.ChainID, diff.ChainID)
	}

	pools, err := fixedrate.Patcher(oldSnapshot.Pools, diff.Pools)
	if err != nil {
		return nil, fmt.Errorf("patcher: failed to patch pools: %w", err)
	}

	return &engine.Snapshot{
		ChainID: oldSnapshot.ChainID,
		Block:   diff.ToBlock,
		Pools:   pools,
	}, nil
}
