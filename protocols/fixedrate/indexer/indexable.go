package indexer

import (
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate"
	"github.com/ethereum/go-ethereum/common"
)

// Indexer builds IndexedFixedRate views over pool snapshots.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed fixed-rate system from a raw slice of pools.
func (i *Indexer) Index(pools []fixedrate.Pool) IndexedFixedRate {
	return NewIndexableFixedRateSystem(pools)
}

// IndexableFixedRateSystem provides lookups of pools by ID and by address.
type IndexableFixedRateSystem struct {
	byID      map[uint64]int
	byAddress map[common.Address]int
	all       []fixedrate.Pool
}

// NewIndexableFixedRateSystem indexes pools. Later entries win when IDs or addresses repeat.
func NewIndexableFixedRateSystem(pools []fixedrate.Pool) *IndexableFixedRateSystem {
	s := &IndexableFixedRateSystem{
		byID:      make(map[uint64]int, len(pools)),
		byAddress: make(map[common.Address]int, len(pools)),
		all:       make([]fixedrate.Pool, len(pools)),
	}
	copy(s.all, pools)
	for i, p := range s.all {
		s.byID[p.ID] = i
		s.byAddress[p.Address] = i
	}
	return s
}

// GetByID retrieves a pool by its unique ID.
func (s *IndexableFixedRateSystem) GetByID(id uint64) (fixedrate.Pool, bool) {
	i, ok := s.byID[id]
	if !ok {
		return fixedrate.Pool{}, false
	}
	return s.all[i], true
}

// GetByAddress retrieves a pool by its contract address.
func (s *IndexableFixedRateSystem) GetByAddress(address common.Address) (fixedrate.Pool, bool) {
	i, ok := s.byAddress[address]
	if !ok {
		return fixedrate.Pool{}, false
	}
	return s.all[i], true
}

// All returns a defensive copy of the slice of all pools.
func (s *IndexableFixedRateSystem) All() []fixedrate.Pool {
	out := make([]fixedrate.Pool, len(s.all))
	copy(out, s.all)
	return out
}
