package fixedrate

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Pool is a snapshot of a fixed-rate pool. Every amount is an 18 decimal fixed-point integer;
// ShareAdjustment and CheckpointExposure are signed, everything else is non-negative.
type Pool struct {
	ID      uint64         `json:"id"`
	Address common.Address `json:"address"`
	Config  PoolConfig     `json:"config"`
	Info    PoolInfo       `json:"info"`
}

// PoolConfig holds the parameters fixed at deployment.
type PoolConfig struct {
	InitialVaultSharePrice   *big.Int `json:"initialVaultSharePrice"`
	MinimumShareReserves     *big.Int `json:"minimumShareReserves"`
	MinimumTransactionAmount *big.Int `json:"minimumTransactionAmount"`
	PositionDuration         uint64   `json:"positionDuration"`   // seconds
	CheckpointDuration       uint64   `json:"checkpointDuration"` // seconds
	TimeStretch              *big.Int `json:"timeStretch"`
	Fees                     Fees     `json:"fees"`
}

// Fees are fractions of one.
type Fees struct {
	Curve        *big.Int `json:"curve"`
	Flat         *big.Int `json:"flat"`
	GovernanceLP *big.Int `json:"governanceLP"`
}

// PoolInfo holds the state that changes block to block. Average maturity times are
// timestamps scaled by 1e18.
type PoolInfo struct {
	ShareReserves               *big.Int `json:"shareReserves"`
	ShareAdjustment             *big.Int `json:"shareAdjustment"`
	BondReserves                *big.Int `json:"bondReserves"`
	VaultSharePrice             *big.Int `json:"vaultSharePrice"`
	LongsOutstanding            *big.Int `json:"longsOutstanding"`
	LongAverageMaturityTime     *big.Int `json:"longAverageMaturityTime"`
	LongExposure                *big.Int `json:"longExposure"`
	ShortsOutstanding           *big.Int `json:"shortsOutstanding"`
	ShortAverageMaturityTime    *big.Int `json:"shortAverageMaturityTime"`
	CheckpointExposure          *big.Int `json:"checkpointExposure"`
	LpTotalSupply               *big.Int `json:"lpTotalSupply"`
	WithdrawalSharesTotalSupply *big.Int `json:"withdrawalSharesTotalSupply"`
}

// infoEqual reports whether two snapshots of pool state hold the same values.
func infoEqual(a, b PoolInfo) bool {
	pairs := [][2]*big.Int{
		{a.ShareReserves, b.ShareReserves},
		{a.ShareAdjustment, b.ShareAdjustment},
		{a.BondReserves, b.BondReserves},
		{a.VaultSharePrice, b.VaultSharePrice},
		{a.LongsOutstanding, b.LongsOutstanding},
		{a.LongAverageMaturityTime, b.LongAverageMaturityTime},
		{a.LongExposure, b.LongExposure},
		{a.ShortsOutstanding, b.ShortsOutstanding},
		{a.ShortAverageMaturityTime, b.ShortAverageMaturityTime},
		{a.CheckpointExposure, b.CheckpointExposure},
		{a.LpTotalSupply, b.LpTotalSupply},
		{a.WithdrawalSharesTotalSupply, b.WithdrawalSharesTotalSupply},
	}
	for _, p := range pairs {
		if !bigEqual(p[0], p[1]) {
			return false
		}
	}
	return true
}

func bigEqual(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Cmp(b) == 0
}

func copyBig(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}
