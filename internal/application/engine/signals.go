package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/smartmoney/internal/application/message"
	"github.com/alejandrodnm/smartmoney/internal/domain"
)

// Gate rejection reasons, stored as "gate_rejected:<reason>".
const (
	RejectBalance       = "insufficient_balance"
	RejectMaxPositions  = "max_open_positions"
	RejectExposure      = "exposure_cap"
	RejectMcapBand      = "mcap_out_of_band"
	RejectWalletCount   = "wallet_count"
	RejectInactiveHours = "inactive_hours"
	RejectDataNotReady  = "data_not_ready"
	RejectMomentum      = "momentum"
	RejectLossCooldown  = "loss_streak_cooldown"
	RejectDailyLoss     = "daily_loss_limit"
	RejectDuplicate     = "position_open"
)

const (
	reasonTradingOff   = "trading_disabled"
	reasonGateRejected = "gate_rejected:"
	reasonNoPrice      = "no_price"

	skipDisabledBatchCap = 100
)

// PollSignals runs one poller cycle: expire stale signals, claim the ready
// ones for this strategy's trigger, gate them and open positions.
// Expiry always runs before the dequeue.
func (e *Engine) PollSignals(ctx context.Context) error {
	if n, err := e.deps.Queue.Expire(ctx, e.cfg.Expiry); err != nil {
		return fmt.Errorf("engine.PollSignals: expire: %w", err)
	} else if n > 0 {
		slog.Info("engine: expired signals", "strategy", e.strat.ID, "count", n)
	}

	status, maxAge := domain.SignalPending, e.cfg.Expiry.PendingMaxAge
	if e.strat.RequireConfirmation {
		status, maxAge = domain.SignalApproved, e.cfg.Expiry.ConfirmationMaxAge
	}

	if !e.cfg.TradingEnabled {
		return e.skipDisabled(ctx, status)
	}

	sigs, err := e.deps.Queue.Dequeue(ctx, status, e.strat.Trigger, maxAge, e.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("engine.PollSignals: dequeue: %w", err)
	}
	for _, s := range sigs {
		e.handleSignal(ctx, s)
	}
	return nil
}

// skipDisabled moves this trigger's ready signals to skipped without claiming them.
func (e *Engine) skipDisabled(ctx context.Context, status domain.SignalStatus) error {
	sigs, err := e.deps.Queue.ListByStatus(ctx, status, skipDisabledBatchCap)
	if err != nil {
		return fmt.Errorf("engine.PollSignals: list: %w", err)
	}
	for _, s := range sigs {
		if s.TriggerType != e.strat.Trigger {
			continue
		}
		err := e.deps.Queue.Transition(ctx, s.ID, domain.SignalSkipped, &domain.SignalResult{Reason: reasonTradingOff})
		if err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
			return fmt.Errorf("engine.PollSignals: skip %d: %w", s.ID, err)
		}
		slog.Info("engine: signal skipped, trading disabled", "strategy", e.strat.ID, "id", s.ID, "token", s.Symbol)
	}
	return nil
}

func (e *Engine) handleSignal(ctx context.Context, sig domain.TradeSignal) {
	now := e.now()
	slog.Info("engine: signal",
		"strategy", e.strat.ID,
		"id", sig.ID,
		"token", sig.Symbol,
		"trigger", sig.TriggerType,
		"wallets", sig.WalletCount,
		"mcap", fmt.Sprintf("%.0f", sig.EntryMcap),
	)

	info, infoErr := e.deps.Tokens.Lookup(ctx, sig.Token)
	balance, err := e.deps.Executor.Balance(ctx)
	if err != nil {
		e.fail(ctx, sig, fmt.Sprintf("balance: %v", err))
		return
	}

	e.mu.Lock()
	e.state.RollDay(e.day(now))
	reason, ok := e.canEnterLocked(sig, info, infoErr == nil, balance, now)
	if ok {
		e.reserved[sig.Token] = e.strat.TradeSize
	}
	e.mu.Unlock()

	if !ok {
		e.deps.Metrics.EntryRejected(e.strat.ID)
		slog.Info("engine: entry rejected", "strategy", e.strat.ID, "token", sig.Symbol, "reason", reason)
		e.fail(ctx, sig, reasonGateRejected+reason)
		return
	}
	defer func() {
		e.mu.Lock()
		delete(e.reserved, sig.Token)
		e.mu.Unlock()
	}()

	if infoErr != nil || info.PriceUSD <= 0 {
		e.fail(ctx, sig, reasonNoPrice)
		return
	}
	e.enter(ctx, sig, info, now)
}

// canEnterLocked evaluates the entry gates in order; the first failure wins.
func (e *Engine) canEnterLocked(sig domain.TradeSignal, info domain.TokenInfo, haveInfo bool, balance float64, now time.Time) (string, bool) {
	s := e.strat

	if balance < s.TradeSize {
		return RejectBalance, false
	}
	if len(e.positions)+len(e.reserved) >= s.MaxOpenPositions {
		return RejectMaxPositions, false
	}
	if e.exposureLocked()+e.reservedLocked()+s.TradeSize > s.MaxTotalExposure+1e-12 {
		return RejectExposure, false
	}

	mcap := sig.EntryMcap
	if haveInfo && info.MarketCapUSD > 0 {
		mcap = info.MarketCapUSD
	}
	if mcap < s.MinMcap || (s.MaxMcap > 0 && mcap > s.MaxMcap) {
		return RejectMcapBand, false
	}
	if sig.WalletCount < s.MinWalletCount {
		return RejectWalletCount, false
	}
	if !s.ActiveAt(now) {
		return RejectInactiveHours, false
	}
	if s.MinMomentumPct > 0 {
		change, ok := momentum(sig, info, haveInfo)
		if !ok {
			return RejectDataNotReady, false
		}
		if change < s.MinMomentumPct {
			return RejectMomentum, false
		}
	}
	if e.state.InCooldown(now) {
		return RejectLossCooldown, false
	}
	if e.state.DailyLossReached(s.MaxDailyLoss) {
		return RejectDailyLoss, false
	}
	if _, open := e.positions[sig.Token]; open {
		return RejectDuplicate, false
	}
	if _, pending := e.reserved[sig.Token]; pending {
		return RejectDuplicate, false
	}
	return "", true
}

// momentum prefers the confirmation result, then the live market cap.
func momentum(sig domain.TradeSignal, info domain.TokenInfo, haveInfo bool) (float64, bool) {
	if sig.Result != nil && sig.Result.MarketCapNow > 0 {
		return sig.Result.ChangePct, true
	}
	if !haveInfo || info.MarketCapUSD <= 0 || sig.EntryMcap <= 0 {
		return 0, false
	}
	return (info.MarketCapUSD/sig.EntryMcap - 1) * 100, true
}

func (e *Engine) enter(ctx context.Context, sig domain.TradeSignal, info domain.TokenInfo, now time.Time) {
	native := e.deps.Tokens.NativePriceUSD(ctx)
	fill, err := e.deps.Executor.Buy(ctx, domain.BuyRequest{
		Token:          sig.Token,
		Symbol:         firstNonEmpty(info.Symbol, sig.Symbol),
		NativeAmount:   e.strat.TradeSize,
		PriceUSD:       info.PriceUSD,
		NativePriceUSD: native,
	})
	if err != nil {
		slog.Error("engine: buy failed", "strategy", e.strat.ID, "token", sig.Symbol, "err", err)
		e.notify(ctx, fmt.Sprintf("❌ [%s] buy failed %s: %v", e.strat.ID, message.Symbol(sig.Symbol), err))
		e.fail(ctx, sig, err.Error())
		return
	}

	price := info.PriceUSD
	if fill.TokenAmount > 0 && native > 0 {
		price = fill.NativeAmount * native / fill.TokenAmount
	}
	p := domain.NewPosition(e.strat, sig.Token, firstNonEmpty(info.Symbol, sig.Symbol), sig.ID,
		price, firstPositive(info.MarketCapUSD, sig.EntryMcap), fill.TokenAmount, fill.NativeAmount, now)
	p.FeeTier = fill.FeeTier
	p.Decimals = fill.Decimals
	p.TxHash = fill.TxHash

	e.mu.Lock()
	e.positions[p.Token] = &p
	e.state.GasSpent += fill.GasNative
	e.mu.Unlock()

	if err := e.deps.Store.InsertPosition(ctx, p); err != nil {
		slog.Error("engine: persist position failed", "strategy", e.strat.ID, "token", p.Symbol, "err", err)
	}
	e.saveState(ctx)

	if err := e.deps.Queue.Transition(ctx, sig.ID, domain.SignalExecuted, &domain.SignalResult{
		TxHash:      fill.TxHash,
		NativeSpent: fill.NativeAmount,
		TokenAmount: fill.TokenAmount,
		EntryPrice:  price,
		FeeTier:     fill.FeeTier,
	}); err != nil {
		slog.Error("engine: mark executed failed", "strategy", e.strat.ID, "id", sig.ID, "err", err)
	}

	e.deps.Metrics.Entry(e.strat.ID)
	e.publishBook()
	slog.Info("engine: position opened",
		"strategy", e.strat.ID,
		"token", p.Symbol,
		"spent", fmt.Sprintf("%.4f", p.NativeSpent),
		"amount", fmt.Sprintf("%.2f", p.Amount),
		"price", fmt.Sprintf("%.8g", p.EntryPrice),
		"tx", p.TxHash,
	)
	e.notify(ctx, message.Entry(p, e.cfg.Mode))
}

func (e *Engine) fail(ctx context.Context, sig domain.TradeSignal, reason string) {
	if err := e.deps.Queue.Transition(ctx, sig.ID, domain.SignalFailed, &domain.SignalResult{Reason: reason}); err != nil {
		slog.Error("engine: mark failed failed", "strategy", e.strat.ID, "id", sig.ID, "err", err)
	}
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(v ...float64) float64 {
	for _, f := range v {
		if f > 0 {
			return f
		}
	}
	return 0
}
