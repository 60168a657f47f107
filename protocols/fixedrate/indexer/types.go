package indexer

import (
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate"
	"github.com/ethereum/go-ethereum/common"
)

// IndexedFixedRate defines the methods for accessing indexed fixed-rate pool data.
type IndexedFixedRate interface {
	GetByID(id uint64) (fixedrate.Pool, bool)
	GetByAddress(address common.Address) (fixedrate.Pool, bool)
	All() []fixedrate.Pool
}
