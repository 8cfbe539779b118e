package domain

import (
	"errors"
	"fmt"
	"time"
)

// TPLevel is one rung of the take-profit ladder.
// SellPercent applies to the amount remaining when the level fires.
type TPLevel struct {
	Multiplier  float64 `json:"multiplier"`
	SellPercent float64 `json:"sell_percent"`
}

// StrategyConfig is the immutable configuration of one trading strategy.
type StrategyConfig struct {
	ID                  string
	Trigger             string
	TradeSize           float64 // native units per entry
	MaxOpenPositions    int
	MaxTotalExposure    float64
	MaxDailyLoss        float64 // 0 disables the check
	MinMcap             float64
	MaxMcap             float64 // 0 disables the ceiling
	MinWalletCount      int
	ActiveHours         []int // hours of day in Location; empty means always
	Location            *time.Location
	MinMomentumPct      float64 // 0 disables the check
	TPLevels            []TPLevel
	SLMultiplier        float64
	TimeStop            time.Duration // 0 disables the time stop
	LossStreakLimit     int
	LossStreakCooldown  time.Duration
	RequireConfirmation bool
}

// Validate checks the ladder and the risk limits.
func (c StrategyConfig) Validate() error {
	if c.ID == "" {
		return errors.New("strategy: empty id")
	}
	if c.TradeSize <= 0 {
		return fmt.Errorf("strategy %s: trade size must be positive", c.ID)
	}
	if c.MaxOpenPositions <= 0 {
		return fmt.Errorf("strategy %s: max open positions must be positive", c.ID)
	}
	if c.MaxTotalExposure < c.TradeSize {
		return fmt.Errorf("strategy %s: max exposure %.4f below trade size %.4f", c.ID, c.MaxTotalExposure, c.TradeSize)
	}
	if c.SLMultiplier <= 0 || c.SLMultiplier >= 1 {
		return fmt.Errorf("strategy %s: stop-loss multiplier must be in (0,1), got %.2f", c.ID, c.SLMultiplier)
	}
	if c.MaxMcap > 0 && c.MinMcap > c.MaxMcap {
		return fmt.Errorf("strategy %s: min mcap above max mcap", c.ID)
	}
	prev := 1.0
	for i, l := range c.TPLevels {
		if l.Multiplier <= prev {
			return fmt.Errorf("strategy %s: tp level %d multiplier %.2f must be above %.2f", c.ID, i, l.Multiplier, prev)
		}
		if l.SellPercent <= 0 || l.SellPercent > 100 {
			return fmt.Errorf("strategy %s: tp level %d sell percent %.1f out of (0,100]", c.ID, i, l.SellPercent)
		}
		prev = l.Multiplier
	}
	for _, h := range c.ActiveHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("strategy %s: active hour %d out of range", c.ID, h)
		}
	}
	return nil
}

// ActiveAt reports whether entries are allowed at t.
func (c StrategyConfig) ActiveAt(t time.Time) bool {
	if len(c.ActiveHours) == 0 {
		return true
	}
	if c.Location != nil {
		t = t.In(c.Location)
	}
	for _, h := range c.ActiveHours {
		if t.Hour() == h {
			return true
		}
	}
	return false
}
