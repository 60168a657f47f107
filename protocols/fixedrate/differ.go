package fixedrate

// FixedRateSystemDiff lists the pools that changed between two snapshots.
type FixedRateSystemDiff struct {
	Additions []Pool   `json:"additions,omitempty"`
	Updates   []Pool   `json:"updates,omitempty"`
	Deletions []uint64 `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d FixedRateSystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ computes the diff between two pool snapshots keyed by pool ID. A pool is updated when
// any of its state or configuration differs. Output order follows the input order of new
// (additions, updates) and old (deletions).
func Differ(old, new []Pool) FixedRateSystemDiff {
	oldByID := make(map[uint64]Pool, len(old))
	for _, pool := range old {
		oldByID[pool.ID] = pool
	}
	newIDs := make(map[uint64]struct{}, len(new))
	for _, pool := range new {
		newIDs[pool.ID] = struct{}{}
	}

	var diff FixedRateSystemDiff
	for _, pool := range new {
		previous, exists := oldByID[pool.ID]
		switch {
		case !exists:
			diff.Additions = append(diff.Additions, pool)
		case !poolEqual(previous, pool):
			diff.Updates = append(diff.Updates, pool)
		}
	}
	for _, pool := range old {
		if _, exists := newIDs[pool.ID]; !exists {
			diff.Deletions = append(diff.Deletions, pool.ID)
		}
	}
	return diff
}

func poolEqual(a, b Pool) bool {
	return a.Address == b.Address && configEqual(a.Config, b.Config) && infoEqual(a.Info, b.Info)
}

func configEqual(a, b PoolConfig) bool {
	return a.PositionDuration == b.PositionDuration &&
		a.CheckpointDuration == b.CheckpointDuration &&
		bigEqual(a.InitialVaultSharePrice, b.InitialVaultSharePrice) &&
		bigEqual(a.MinimumShareReserves, b.MinimumShareReserves) &&
		bigEqual(a.MinimumTransactionAmount, b.MinimumTransactionAmount) &&
		bigEqual(a.TimeStretch, b.TimeStretch) &&
		bigEqual(a.Fees.Curve, b.Fees.Curve) &&
		bigEqual(a.Fees.Flat, b.Fees.Flat) &&
		bigEqual(a.Fees.GovernanceLP, b.Fees.GovernanceLP)
}
