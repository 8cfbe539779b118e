package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/smartmoney/internal/domain"
)

var entryAt = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func ladderStrategy() domain.StrategyConfig {
	return domain.StrategyConfig{
		ID:               "s1",
		TradeSize:        0.1,
		MaxOpenPositions: 3,
		MaxTotalExposure: 0.3,
		SLMultiplier:     0.6,
		TPLevels:         []domain.TPLevel{{Multiplier: 2, SellPercent: 50}, {Multiplier: 3, SellPercent: 100}},
	}
}

func TestNewPosition_CopiesLadder(t *testing.T) {
	cfg := ladderStrategy()
	a := domain.NewPosition(cfg, "0xaaa", "A", 1, 1, 100_000, 250, 0.1, entryAt)
	b := domain.NewPosition(cfg, "0xbbb", "B", 2, 1, 100_000, 250, 0.1, entryAt)

	a.ApplyPartialExit(0.5, 0)
	a.TPLevels[0].Multiplier = 9

	assert.Equal(t, []bool{false, false}, b.TPFired)
	assert.Equal(t, 2.0, b.TPLevels[0].Multiplier)
	assert.Equal(t, 2.0, cfg.TPLevels[0].Multiplier)
}

func TestEvaluateExit_Ladder(t *testing.T) {
	p := domain.NewPosition(ladderStrategy(), "0xaaa", "A", 1, 1.0, 100_000, 250, 0.1, entryAt)
	now := entryAt.Add(time.Minute)

	_, ok := domain.EvaluateExit(p, 1.5, now, 0.6, 0)
	assert.False(t, ok)

	// A jump past both levels fires only the first one.
	dec, ok := domain.EvaluateExit(p, 3.5, now, 0.6, 0)
	require.True(t, ok)
	assert.Equal(t, "TP_2.0x", dec.Reason)
	assert.Equal(t, 0, dec.Level)
	assert.InDelta(t, 0.5, dec.Ratio, 1e-9)
	assert.False(t, dec.Full())

	basis := p.ApplyPartialExit(dec.Ratio, dec.Level)
	assert.InDelta(t, 0.05, basis, 1e-9)
	assert.InDelta(t, 125, p.Amount, 1e-9)

	dec, ok = domain.EvaluateExit(p, 3.5, now, 0.6, 0)
	require.True(t, ok)
	assert.Equal(t, "TP_3.0x", dec.Reason)
	assert.True(t, dec.Full())
	p.ApplyPartialExit(dec.Ratio, dec.Level)
	assert.Zero(t, p.Amount)
	assert.Equal(t, []bool{true, true}, p.TPFired)
}

func TestEvaluateExit_StopLossWins(t *testing.T) {
	p := domain.NewPosition(ladderStrategy(), "0xaaa", "A", 1, 1.0, 100_000, 250, 0.1, entryAt)

	_, ok := domain.EvaluateExit(p, 0.61, entryAt, 0.6, 0)
	assert.False(t, ok)

	dec, ok := domain.EvaluateExit(p, 0.6, entryAt, 0.6, 0)
	require.True(t, ok)
	assert.Equal(t, domain.ExitStopLoss, dec.Reason)
	assert.True(t, dec.Full())
	assert.Equal(t, -1, dec.Level)
}

func TestEvaluateExit_TimeStop(t *testing.T) {
	p := domain.NewPosition(ladderStrategy(), "0xaaa", "A", 1, 1.0, 100_000, 250, 0.1, entryAt)
	stop := 30 * time.Minute

	_, ok := domain.EvaluateExit(p, 1.1, entryAt.Add(29*time.Minute), 0.6, stop)
	assert.False(t, ok)

	dec, ok := domain.EvaluateExit(p, 1.1, entryAt.Add(30*time.Minute), 0.6, stop)
	require.True(t, ok)
	assert.Equal(t, domain.ExitTimeStop, dec.Reason)

	// Once a take-profit fired the time stop no longer applies.
	p.ApplyPartialExit(0.5, 0)
	_, ok = domain.EvaluateExit(p, 1.1, entryAt.Add(2*time.Hour), 0.6, stop)
	assert.False(t, ok)
}

func TestEvaluateExit_TimeStopBeforeFirstTP(t *testing.T) {
	p := domain.NewPosition(ladderStrategy(), "0xaaa", "A", 1, 1.0, 100_000, 250, 0.1, entryAt)

	// Overdue position that only now crosses the first level closes whole.
	dec, ok := domain.EvaluateExit(p, 2.1, entryAt.Add(61*time.Minute), 0.6, 60*time.Minute)
	require.True(t, ok)
	assert.Equal(t, domain.ExitTimeStop, dec.Reason)
	assert.Equal(t, -1, dec.Level)
	assert.True(t, dec.Full())

	// Inside the window the same price takes the first level.
	dec, ok = domain.EvaluateExit(p, 2.1, entryAt.Add(59*time.Minute), 0.6, 60*time.Minute)
	require.True(t, ok)
	assert.Equal(t, "TP_2.0x", dec.Reason)
}

func TestEvaluateExit_NoPrice(t *testing.T) {
	p := domain.NewPosition(ladderStrategy(), "0xaaa", "A", 1, 1.0, 100_000, 250, 0.1, entryAt)
	_, ok := domain.EvaluateExit(p, 0, entryAt, 0.6, 0)
	assert.False(t, ok)
}

func TestStrategyConfig_Validate(t *testing.T) {
	assert.NoError(t, ladderStrategy().Validate())

	bad := ladderStrategy()
	bad.TPLevels = []domain.TPLevel{{Multiplier: 3, SellPercent: 50}, {Multiplier: 2, SellPercent: 50}}
	assert.ErrorContains(t, bad.Validate(), "tp level 1")

	bad = ladderStrategy()
	bad.SLMultiplier = 1.2
	assert.ErrorContains(t, bad.Validate(), "stop-loss")

	bad = ladderStrategy()
	bad.MaxTotalExposure = 0.05
	assert.ErrorContains(t, bad.Validate(), "max exposure")

	bad = ladderStrategy()
	bad.TPLevels[1].SellPercent = 120
	assert.Error(t, bad.Validate())
}

func TestStrategyConfig_ActiveAt(t *testing.T) {
	cfg := ladderStrategy()
	assert.True(t, cfg.ActiveAt(entryAt))

	cfg.ActiveHours = []int{14, 15}
	assert.False(t, cfg.ActiveAt(entryAt))

	loc := time.FixedZone("UTC+2", 2*3600)
	cfg.Location = loc
	assert.True(t, cfg.ActiveAt(entryAt), "12:00 UTC is 14:00 in UTC+2")
}
