package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/defistate/fixedrate-client-go/protocols/fixedrate"
	"github.com/ethereum/go-ethereum/common"
)

// BlockSummary contains only the essential block information for clients.
type BlockSummary struct {
	Number    *big.Int    `json:"number"`
	Hash      common.Hash `json:"hash"`
	Timestamp uint64      `json:"timestamp"` // seconds
}

// Snapshot is every fixed-rate pool on a chain as of one block.
type Snapshot struct {
	ChainID uint64           `json:"chainId"`
	Block   BlockSummary     `json:"block"`
	Pools   []fixedrate.Pool `json:"pools"`
}

// Validate checks that the snapshot is pinned to a block and that pool IDs and addresses are
// unique.
func (s *Snapshot) Validate() error {
	if s.Block.Number == nil || s.Block.Number.Sign() < 0 {
		return errors.New("snapshot: block number must be non-nil and non-negative")
	}
	ids := make(map[uint64]struct{}, len(s.Pools))
	addresses := make(map[common.Address]struct{}, len(s.Pools))
	for _, pool := range s.Pools {
		if _, ok := ids[pool.ID]; ok {
			return fmt.Errorf("snapshot: duplicate pool id %d", pool.ID)
		}
		if _, ok := addresses[pool.Address]; ok {
			return fmt.Errorf("snapshot: duplicate pool address %s", pool.Address)
		}
		ids[pool.ID] = struct{}{}
		addresses[pool.Address] = struct{}{}
	}
	return nil
}

// LoadSnapshot reads and validates a JSON snapshot.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: reading %s: %w", path, err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("snapshot: decoding %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
