package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/smartmoney/internal/application/message"
	"github.com/alejandrodnm/smartmoney/internal/domain"
)

// CheckPositions evaluates every open position once and executes the exits due.
// A position without a price this cycle is retried on the next one.
func (e *Engine) CheckPositions(ctx context.Context) error {
	for _, p := range e.Positions() {
		info, err := e.deps.Tokens.Lookup(ctx, p.Token)
		if err != nil || info.PriceUSD <= 0 {
			slog.Debug("engine: no price for position", "strategy", e.strat.ID, "token", p.Symbol, "err", err)
			continue
		}
		now := e.now()
		dec, ok := domain.EvaluateExit(p, info.PriceUSD, now, e.strat.SLMultiplier, e.strat.TimeStop)
		if !ok {
			continue
		}
		e.exit(ctx, p, dec, info.PriceUSD, now)
	}
	e.publishBook()
	return nil
}

func (e *Engine) exit(ctx context.Context, p domain.Position, dec domain.ExitDecision, price float64, now time.Time) {
	fill, err := e.deps.Executor.Sell(ctx, domain.SellRequest{
		Token:          p.Token,
		Symbol:         p.Symbol,
		Amount:         p.Amount,
		Ratio:          dec.Ratio,
		PriceUSD:       price,
		NativePriceUSD: e.deps.Tokens.NativePriceUSD(ctx),
		FeeTier:        p.FeeTier,
		Decimals:       p.Decimals,
	})
	if err != nil {
		slog.Error("engine: sell failed", "strategy", e.strat.ID, "token", p.Symbol, "reason", dec.Reason, "err", err)
		return
	}

	basis := p.ApplyPartialExit(dec.Ratio, dec.Level)
	pnl := fill.NativeAmount - basis
	var pnlPct float64
	if basis > 0 {
		pnlPct = pnl / basis * 100
	}
	trade := domain.ClosedTrade{
		ID:             uuid.NewString(),
		StrategyID:     e.strat.ID,
		Token:          p.Token,
		Symbol:         p.Symbol,
		EntryPrice:     p.EntryPrice,
		ExitPrice:      price,
		Amount:         fill.TokenAmount,
		CostBasis:      basis,
		NativeReceived: fill.NativeAmount,
		PnL:            pnl,
		PnLPct:         pnlPct,
		GasNative:      fill.GasNative,
		Reason:         dec.Reason,
		Partial:        !dec.Full(),
		TxHash:         fill.TxHash,
		EntryTime:      p.EntryTime,
		ExitTime:       now,
	}

	e.mu.Lock()
	if dec.Full() {
		delete(e.positions, p.Token)
	} else {
		e.positions[p.Token] = &p
	}
	e.state.RollDay(e.day(now))
	e.state.GasSpent += fill.GasNative
	tripped := e.state.RecordExit(dec.Reason, pnl, now, e.strat.LossStreakLimit, e.strat.LossStreakCooldown)
	cooldownUntil := e.state.CooldownUntil
	e.mu.Unlock()

	if err := e.deps.Store.AppendClosedTrade(ctx, trade); err != nil {
		slog.Error("engine: persist closed trade failed", "strategy", e.strat.ID, "token", p.Symbol, "err", err)
	}
	if dec.Full() {
		err = e.deps.Store.DeletePosition(ctx, e.strat.ID, p.Token)
	} else {
		err = e.deps.Store.UpdatePosition(ctx, p)
	}
	if err != nil {
		slog.Error("engine: persist position failed", "strategy", e.strat.ID, "token", p.Symbol, "err", err)
	}
	e.saveState(ctx)

	e.deps.Metrics.Exit(e.strat.ID, dec.Reason)
	slog.Info("engine: exit",
		"strategy", e.strat.ID,
		"token", p.Symbol,
		"reason", dec.Reason,
		"ratio", fmt.Sprintf("%.2f", dec.Ratio),
		"received", fmt.Sprintf("%.4f", fill.NativeAmount),
		"pnl", fmt.Sprintf("%+.4f", pnl),
	)
	e.notify(ctx, message.Exit(trade))

	if tripped {
		slog.Warn("engine: loss streak, entries paused", "strategy", e.strat.ID, "until", cooldownUntil)
		e.notify(ctx, fmt.Sprintf("⏸ [%s] %d consecutive losses, entries paused until %s",
			e.strat.ID, e.strat.LossStreakLimit, cooldownUntil.In(e.strat.Location).Format("15:04")))
	}
}

// ResetDailyLoss zeroes the daily-loss accumulator. Scheduled at the day boundary.
func (e *Engine) ResetDailyLoss(ctx context.Context) {
	e.mu.Lock()
	prev := e.state.DailyLoss
	e.state.DailyLoss = 0
	e.state.DailyLossDate = e.day(e.now())
	e.mu.Unlock()
	e.saveState(ctx)
	slog.Info("engine: daily loss reset", "strategy", e.strat.ID, "previous", fmt.Sprintf("%.4f", prev))
}

// DailySummary formats today's exits and the current book.
func (e *Engine) DailySummary(ctx context.Context) (string, error) {
	now := e.now().In(e.strat.Location)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	trades, err := e.deps.Store.ClosedTrades(ctx, e.strat.ID, start)
	if err != nil {
		return "", fmt.Errorf("engine.DailySummary: %w", err)
	}
	e.mu.Lock()
	st, open, exposure := e.state, len(e.positions), e.exposureLocked()
	e.mu.Unlock()
	return message.DailySummary(st, open, exposure, trades), nil
}

// SendDailySummary notifies the daily summary.
func (e *Engine) SendDailySummary(ctx context.Context) {
	msg, err := e.DailySummary(ctx)
	if err != nil {
		slog.Error("engine: daily summary failed", "strategy", e.strat.ID, "err", err)
		return
	}
	e.notify(ctx, msg)
}
