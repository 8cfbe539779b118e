package domain

import "time"

// StrategyState is the mutable risk state of one strategy, persisted across restarts.
type StrategyState struct {
	StrategyID        string
	ConsecutiveLosses int
	CooldownUntil     time.Time
	DailyLoss         float64
	DailyLossDate     string // YYYY-MM-DD
	RealizedPnL       float64
	GasSpent          float64
}

// InCooldown reports whether the loss-streak cooldown blocks entries at now.
func (s *StrategyState) InCooldown(now time.Time) bool {
	return now.Before(s.CooldownUntil)
}

// RecordExit updates the streak, the daily loss and the realized PnL.
// Reaching limit consecutive loss exits starts a cooldown and resets the counter.
func (s *StrategyState) RecordExit(reason string, pnl float64, now time.Time, limit int, cooldown time.Duration) bool {
	s.RealizedPnL += pnl
	if pnl < 0 {
		s.DailyLoss += -pnl
	}
	if !IsLossExit(reason) {
		s.ConsecutiveLosses = 0
		return false
	}
	s.ConsecutiveLosses++
	if limit > 0 && s.ConsecutiveLosses >= limit {
		s.CooldownUntil = now.Add(cooldown)
		s.ConsecutiveLosses = 0
		return true
	}
	return false
}

// RollDay resets the daily loss when day differs from the stored date.
func (s *StrategyState) RollDay(day string) bool {
	if s.DailyLossDate == day {
		return false
	}
	s.DailyLossDate = day
	s.DailyLoss = 0
	return true
}

// DailyLossReached reports whether the daily loss limit blocks entries.
func (s *StrategyState) DailyLossReached(limit float64) bool {
	return limit > 0 && s.DailyLoss >= limit
}
