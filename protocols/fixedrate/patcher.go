package fixedrate

import (
	"errors"
	"fmt"
)

// ErrUnknownPool is returned when a diff updates a pool the previous snapshot does not hold.
var ErrUnknownPool = errors.New("fixedrate: update for unknown pool")

// DeepCopyPool returns a copy of p that shares no *big.Int with it.
func DeepCopyPool(p Pool) Pool {
	out := p
	out.Config.InitialVaultSharePrice = copyBig(p.Config.InitialVaultSharePrice)
	out.Config.MinimumShareReserves = copyBig(p.Config.MinimumShareReserves)
	out.Config.MinimumTransactionAmount = copyBig(p.Config.MinimumTransactionAmount)
	out.Config.TimeStretch = copyBig(p.Config.TimeStretch)
	out.Config.Fees = Fees{
		Curve:        copyBig(p.Config.Fees.Curve),
		Flat:         copyBig(p.Config.Fees.Flat),
		GovernanceLP: copyBig(p.Config.Fees.GovernanceLP),
	}
	out.Info = PoolInfo{
		ShareReserves:               copyBig(p.Info.ShareReserves),
		ShareAdjustment:             copyBig(p.Info.ShareAdjustment),
		BondReserves:                copyBig(p.Info.BondReserves),
		VaultSharePrice:             copyBig(p.Info.VaultSharePrice),
		LongsOutstanding:            copyBig(p.Info.LongsOutstanding),
		LongAverageMaturityTime:     copyBig(p.Info.LongAverageMaturityTime),
		LongExposure:                copyBig(p.Info.LongExposure),
		ShortsOutstanding:           copyBig(p.Info.ShortsOutstanding),
		ShortAverageMaturityTime:    copyBig(p.Info.ShortAverageMaturityTime),
		CheckpointExposure:          copyBig(p.Info.CheckpointExposure),
		LpTotalSupply:               copyBig(p.Info.LpTotalSupply),
		WithdrawalSharesTotalSupply: copyBig(p.Info.WithdrawalSharesTotalSupply),
	}
	return out
}

// Patcher applies diff to prevState and returns the new snapshot. prevState is never
// modified. Pools keep the order of prevState; additions are appended in diff order.
// An addition of a pool that already exists replaces it.
func Patcher(prevState []Pool, diff FixedRateSystemDiff) ([]Pool, error) {
	deleted := make(map[uint64]struct{}, len(diff.Deletions))
	for _, id := range diff.Deletions {
		deleted[id] = struct{}{}
	}
	updated := make(map[uint64]Pool, len(diff.Updates))
	for _, pool := range diff.Updates {
		updated[pool.ID] = pool
	}

	next := make([]Pool, 0, len(prevState)+len(diff.Additions))
	present := make(map[uint64]int, len(prevState)+len(diff.Additions))
	for _, pool := range prevState {
		if _, ok := deleted[pool.ID]; ok {
			continue
		}
		if update, ok := updated[pool.ID]; ok {
			pool = update
			delete(updated, pool.ID)
		}
		present[pool.ID] = len(next)
		next = append(next, DeepCopyPool(pool))
	}
	for id := range updated {
		if _, ok := deleted[id]; !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownPool, id)
		}
	}
	for _, pool := range diff.Additions {
		if i, ok := present[pool.ID]; ok {
			next[i] = DeepCopyPool(pool)
			continue
		}
		present[pool.ID] = len(next)
		next = append(next, DeepCopyPool(pool))
	}
	return next, nil
}
