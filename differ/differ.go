package differ

import (
	"errors"
	"fmt"
	"time"

	"github.com/defistate/fixedrate-client-go/engine"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate"
	"github.com/prometheus/client_golang/prometheus"
)

// SnapshotDifferConfig holds the differ's dependencies.
type SnapshotDifferConfig struct {
	Registry prometheus.Registerer
	Logger   Logger
}

// validate checks if the configuration is valid, ensuring required dependencies are present.
func (c *SnapshotDifferConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// SnapshotDiffer computes the changes between two snapshots of the same chain.
type SnapshotDiffer struct {
	metrics *Metrics
	logger  Logger
}

// NewSnapshotDiffer constructs a new differ from a configuration, returning an error if the config is invalid.
func NewSnapshotDiffer(cfg *SnapshotDifferConfig) (*SnapshotDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	metrics, err := NewMetrics(cfg.Registry)
	if err != nil {
		return nil, fmt.Errorf("differ: registering metrics: %w", err)
	}
	return &SnapshotDiffer{
		metrics: metrics,
		logger:  cfg.Logger,
	}, nil
}

// Diff returns the pool changes from old to new. new must be on the same chain and at or
// after old's block.
func (d *SnapshotDiffer) Diff(old, new *engine.Snapshot) (*SnapshotDiff, error) {
	timer := prometheus.NewTimer(d.metrics.diffDuration.WithLabelValues())
	defer timer.ObserveDuration()

	if old.ChainID != new.ChainID {
		return nil, fmt.Errorf("differ: chain mismatch (old=%d, new=%d)", old.ChainID, new.ChainID)
	}
	if old.Block.Number == nil || new.Block.Number == nil {
		return nil, errors.New("differ: snapshot is not pinned to a block")
	}
	if new.Block.Number.Cmp(old.Block.Number) < 0 {
		return nil, fmt.Errorf("differ: new block %s is before old block %s", new.Block.Number, old.Block.Number)
	}

	pools := fixedrate.Differ(old.Pools, new.Pools)
	d.metrics.poolChanges.WithLabelValues("added").Add(float64(len(pools.Additions)))
	d.metrics.poolChanges.WithLabelValues("updated").Add(float64(len(pools.Updates)))
	d.metrics.poolChanges.WithLabelValues("deleted").Add(float64(len(pools.Deletions)))
	d.logger.Debug("diffed snapshots",
		"fromBlock", old.Block.Number.Uint64(),
		"toBlock", new.Block.Number.Uint64(),
		"added", len(pools.Additions),
		"updated", len(pools.Updates),
		"deleted", len(pools.Deletions),
	)

	return &SnapshotDiff{
		Timestamp: uint64(time.Now().UnixNano()),
		ChainID:   new.ChainID,
		FromBlock: old.Block.Number.Uint64(),
		ToBlock:   new.Block,
		Pools:     pools,
	}, nil
}
