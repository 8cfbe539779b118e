package domain

import (
	"fmt"
	"time"
)

// Exit reasons recorded on closed trades.
const (
	ExitStopLoss = "SL"
	ExitTimeStop = "TIME_SL"
)

// TakeProfitReason formats the reason of a take-profit exit.
func TakeProfitReason(multiplier float64) string {
	return fmt.Sprintf("TP_%.1fx", multiplier)
}

// IsLossExit reports whether reason counts toward the loss streak.
func IsLossExit(reason string) bool {
	return reason == ExitStopLoss || reason == ExitTimeStop
}

// Position is an open holding of one strategy. At most one per (StrategyID, Token).
type Position struct {
	StrategyID  string
	Token       string
	Symbol      string
	SignalID    int64
	EntryPrice  float64 // USD per token
	EntryMcap   float64
	Amount      float64 // tokens still held
	NativeSpent float64 // cost basis of Amount
	EntryTime   time.Time
	TPLevels    []TPLevel
	TPFired     []bool
	FeeTier     uint32
	Decimals    uint8
	TxHash      string
}

// NewPosition builds a position with a fresh TP ladder.
func NewPosition(cfg StrategyConfig, token, symbol string, signalID int64, price, mcap, amount, spent float64, at time.Time) Position {
	levels := make([]TPLevel, len(cfg.TPLevels))
	copy(levels, cfg.TPLevels)
	return Position{
		StrategyID:  cfg.ID,
		Token:       token,
		Symbol:      symbol,
		SignalID:    signalID,
		EntryPrice:  price,
		EntryMcap:   mcap,
		Amount:      amount,
		NativeSpent: spent,
		EntryTime:   at,
		TPLevels:    levels,
		TPFired:     make([]bool, len(levels)),
	}
}

// Multiplier returns price / entry price.
func (p Position) Multiplier(price float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return price / p.EntryPrice
}

// AnyTPFired reports whether at least one take-profit level already sold.
func (p Position) AnyTPFired() bool {
	for _, f := range p.TPFired {
		if f {
			return true
		}
	}
	return false
}

// ExitDecision describes what to sell on this cycle.
type ExitDecision struct {
	Reason string
	Ratio  float64 // fraction of the remaining amount, 1 means full exit
	Level  int     // index of the TP level, -1 otherwise
}

// Full reports whether the decision closes the position.
func (d ExitDecision) Full() bool { return d.Ratio >= 1 }

// EvaluateExit decides the exit for one position at price and now.
// Order: stop-loss, time stop (only while no TP level fired), then the TP ladder.
// At most one TP level fires per call.
func EvaluateExit(p Position, price float64, now time.Time, slMultiplier float64, timeStop time.Duration) (ExitDecision, bool) {
	m := p.Multiplier(price)
	if m <= 0 {
		return ExitDecision{}, false
	}
	if m <= slMultiplier {
		return ExitDecision{Reason: ExitStopLoss, Ratio: 1, Level: -1}, true
	}
	if timeStop > 0 && now.Sub(p.EntryTime) >= timeStop && !p.AnyTPFired() {
		return ExitDecision{Reason: ExitTimeStop, Ratio: 1, Level: -1}, true
	}
	for i, l := range p.TPLevels {
		if i < len(p.TPFired) && p.TPFired[i] {
			continue
		}
		if m >= l.Multiplier {
			return ExitDecision{Reason: TakeProfitReason(l.Multiplier), Ratio: l.SellPercent / 100, Level: i}, true
		}
		break
	}
	return ExitDecision{}, false
}

// ApplyPartialExit shrinks the position by ratio and returns the cost basis sold.
func (p *Position) ApplyPartialExit(ratio float64, level int) float64 {
	basis := p.NativeSpent * ratio
	p.Amount *= 1 - ratio
	p.NativeSpent *= 1 - ratio
	if level >= 0 && level < len(p.TPFired) {
		p.TPFired[level] = true
	}
	return basis
}

// ClosedTrade is one realized exit, full or partial.
type ClosedTrade struct {
	ID             string
	StrategyID     string
	Token          string
	Symbol         string
	EntryPrice     float64
	ExitPrice      float64
	Amount         float64
	CostBasis      float64
	NativeReceived float64
	PnL            float64
	PnLPct         float64
	GasNative      float64
	Reason         string
	Partial        bool
	TxHash         string
	EntryTime      time.Time
	ExitTime       time.Time
}
