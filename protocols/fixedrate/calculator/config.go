package calculator

import (
	"errors"
	"math/big"
)

// Config tunes the iterative solvers. Zero iteration budgets are allowed and return the
// solvers' initial guesses.
type Config struct {
	YearLength             uint64 // seconds
	MaxLongIterations      int
	MaxShortIterations     int
	DistributeIterations   int
	ShareProceedsTolerance *big.Int // fixed point, shares
}

// DefaultConfig returns a 365 day year and the iteration budgets used on chain.
func DefaultConfig() Config {
	return Config{
		YearLength:             365 * 24 * 60 * 60,
		MaxLongIterations:      7,
		MaxShortIterations:     7,
		DistributeIterations:   3,
		ShareProceedsTolerance: big.NewInt(1_000_000_000),
	}
}

// validate checks that the configuration can drive the solvers.
func (c *Config) validate() error {
	if c.YearLength == 0 {
		return errors.New("config: YearLength must be positive")
	}
	if c.MaxLongIterations < 0 || c.MaxShortIterations < 0 || c.DistributeIterations < 0 {
		return errors.New("config: iteration budgets cannot be negative")
	}
	if c.ShareProceedsTolerance == nil || c.ShareProceedsTolerance.Sign() < 0 {
		return errors.New("config: ShareProceedsTolerance must be non-nil and non-negative")
	}
	if c.ShareProceedsTolerance.BitLen() > 256 {
		return errors.New("config: ShareProceedsTolerance overflows 256 bits")
	}
	return nil
}
