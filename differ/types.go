package differ

import (
	"github.com/defistate/fixedrate-client-go/engine"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SnapshotDiff represents a summary of changes FromBlock to ToBlock.
type SnapshotDiff struct {
	Timestamp uint64                        `json:"timestamp"`
	ChainID   uint64                        `json:"chainId"`
	FromBlock uint64                        `json:"fromBlock"`
	ToBlock   engine.BlockSummary           `json:"toBlock"`
	Pools     fixedrate.FixedRateSystemDiff `json:"pools"`
}
