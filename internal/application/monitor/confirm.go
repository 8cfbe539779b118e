package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/smartmoney/internal/domain"
	"github.com/alejandrodnm/smartmoney/internal/ports"
)

// ConfirmConfig controls the delayed market-cap re-check of pending_confirmation signals.
type ConfirmConfig struct {
	Delay         time.Duration
	MinChangePct  float64
	DeadTokenMcap float64
	BatchSize     int
}

// Confirmer promotes pending_confirmation signals to approved when the market cap
// moved enough since the signal, and skips tokens whose market cap collapsed.
// Signals below the threshold are left for the expiry sweep.
type Confirmer struct {
	cfg    ConfirmConfig
	queue  ports.SignalQueue
	tokens ports.TokenInfoProvider
	now    func() time.Time
}

func NewConfirmer(cfg ConfirmConfig, queue ports.SignalQueue, tokens ports.TokenInfoProvider) *Confirmer {
	if cfg.Delay <= 0 {
		cfg.Delay = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Confirmer{cfg: cfg, queue: queue, tokens: tokens, now: time.Now}
}

// Run checks every due signal once.
func (c *Confirmer) Run(ctx context.Context) (approved, skipped int, err error) {
	if c.queue == nil {
		return 0, 0, nil
	}
	sigs, err := c.queue.ListByStatus(ctx, domain.SignalPendingConfirmation, c.cfg.BatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("monitor.Confirmer: list: %w", err)
	}

	now := c.now()
	for _, s := range sigs {
		if now.Sub(s.CreatedAt) < c.cfg.Delay {
			continue
		}
		info, err := c.tokens.Lookup(ctx, s.Token)
		if err != nil {
			slog.Debug("confirm: token data unavailable", "token", s.Symbol, "err", err)
			continue
		}

		var change float64
		if s.EntryMcap > 0 {
			change = (info.MarketCapUSD/s.EntryMcap - 1) * 100
		}
		result := &domain.SignalResult{MarketCapNow: info.MarketCapUSD, ChangePct: change}

		var to domain.SignalStatus
		switch {
		case c.cfg.DeadTokenMcap > 0 && info.MarketCapUSD < c.cfg.DeadTokenMcap:
			to, result.Reason = domain.SignalSkipped, "dead_token"
		case change >= c.cfg.MinChangePct:
			to = domain.SignalApproved
		default:
			continue
		}

		if err := c.queue.Transition(ctx, s.ID, to, result); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				continue // expired or handled elsewhere meanwhile
			}
			return approved, skipped, fmt.Errorf("monitor.Confirmer: transition %d: %w", s.ID, err)
		}
		slog.Info("confirm: signal checked",
			"id", s.ID,
			"token", s.Symbol,
			"status", to,
			"change_pct", fmt.Sprintf("%.1f", change),
		)
		if to == domain.SignalApproved {
			approved++
		} else {
			skipped++
		}
	}
	return approved, skipped, nil
}

// WithClock replaces time.Now.
func (c *Confirmer) WithClock(now func() time.Time) *Confirmer {
	c.now = now
	return c
}
