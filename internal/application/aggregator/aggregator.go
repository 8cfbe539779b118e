package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alejandrodnm/smartmoney/internal/application/filter"
	"github.com/alejandrodnm/smartmoney/internal/domain"
	"github.com/alejandrodnm/smartmoney/internal/ports"
)

// Config holds the alerting rules.
type Config struct {
	Threshold     int           // distinct wallets needed for an alert
	Window        time.Duration // sliding window per token
	Cooldown      time.Duration
	BlackoutHours []int // hours of day in Location with a raised threshold
	BlackoutExtra int
	Location      *time.Location
	// BullishWindow bounds how long after the first alert a repeat may fire. 0 means Cooldown.
	BullishWindow time.Duration
	// MaxBullishRepeats caps bullish alerts per cooldown. 0 means unbounded.
	MaxBullishRepeats int
	// FakeSuppression mutes a token after a failed re-check. 0 means Cooldown.
	FakeSuppression time.Duration
}

// Aggregator groups purchases per token and decides when to alert.
// Time comes from the observations, so blocks must be fed in order.
// It is not safe for concurrent use; the monitor drives it from a single loop.
type Aggregator struct {
	cfg     Config
	tokens  ports.TokenInfoProvider
	recheck *filter.Chain
	fakes   ports.FakeAlertRecorder

	windows map[string][]domain.PurchaseObservation
	states  map[string]*domain.AlertState
}

// New creates an Aggregator. fakes may be nil.
func New(cfg Config, tokens ports.TokenInfoProvider, recheck *filter.Chain, fakes ports.FakeAlertRecorder) *Aggregator {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Window <= 0 {
		cfg.Window = 20 * time.Second
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.BullishWindow <= 0 {
		cfg.BullishWindow = cfg.Cooldown
	}
	if cfg.FakeSuppression <= 0 {
		cfg.FakeSuppression = cfg.Cooldown
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if recheck == nil {
		recheck = filter.NewChain()
	}
	return &Aggregator{
		cfg:     cfg,
		tokens:  tokens,
		recheck: recheck,
		fakes:   fakes,
		windows: make(map[string][]domain.PurchaseObservation),
		states:  make(map[string]*domain.AlertState),
	}
}

// Observe adds a purchase and returns an alert when the token crosses the threshold.
// A nil alert with a nil error means nothing to report.
func (a *Aggregator) Observe(ctx context.Context, obs domain.PurchaseObservation) (*domain.Alert, error) {
	token := strings.ToLower(obs.Token)
	obs.Token = token
	obs.Wallet = strings.ToLower(obs.Wallet)
	now := obs.Timestamp

	st := a.state(token)
	if now.Before(st.SuppressedUntil) {
		slog.Debug("aggregator: token muted after fake alert", "token", token, "until", st.SuppressedUntil)
		return nil, nil
	}

	window := a.prune(a.windows[token], now)
	for _, p := range window {
		if p.Wallet == obs.Wallet {
			a.windows[token] = window
			return nil, nil // first purchase per wallet wins
		}
	}
	window = append(window, obs)
	a.windows[token] = window

	count := len(window)
	threshold := domain.BlackoutThreshold(now.In(a.cfg.Location), a.cfg.Threshold, a.cfg.BlackoutHours, a.cfg.BlackoutExtra)
	if count < threshold {
		return nil, nil
	}

	kind := domain.AlertNormal
	if st.InCooldown(now, a.cfg.Cooldown) {
		if count <= st.LastUniqueWallets {
			slog.Debug("aggregator: cooldown active", "token", token, "wallets", count)
			return nil, nil
		}
		if now.Sub(st.LastAlertAt) > a.cfg.BullishWindow {
			return nil, nil
		}
		// RepeatCount counts the normal alert too
		if a.cfg.MaxBullishRepeats > 0 && st.RepeatCount-1 >= a.cfg.MaxBullishRepeats {
			return nil, nil
		}
		kind = domain.AlertBullish
	}

	info, err := a.tokens.Lookup(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("aggregator.Observe: recheck %s: %w", token, err)
	}

	if v := a.recheck.Admit(domain.Candidate{Token: token}, info); !v.Allow {
		a.markFake(ctx, token, info.Symbol, window, v, now)
		return nil, nil
	}

	alert := &domain.Alert{
		Token:         token,
		Symbol:        firstNonEmpty(info.Symbol, obs.Symbol),
		Kind:          kind,
		Purchases:     append([]domain.PurchaseObservation(nil), window...),
		UniqueWallets: count,
		MarketCap:     info.MarketCapUSD,
		At:            now,
	}
	if kind == domain.AlertNormal {
		st.LastAlertAt = now
		st.BaselineMcap = info.MarketCapUSD
		st.RepeatCount = 1
	} else {
		st.RepeatCount++
	}
	st.LastUniqueWallets = count
	alert.BaselineMcap = st.BaselineMcap
	alert.RepeatCount = st.RepeatCount
	return alert, nil
}

// markFake records the wallets of a failed alert and drops the token's window.
func (a *Aggregator) markFake(ctx context.Context, token, symbol string, window []domain.PurchaseObservation, v filter.Verdict, now time.Time) {
	wallets := make([]string, 0, len(window))
	for _, p := range window {
		wallets = append(wallets, p.Wallet)
	}
	slog.Warn("aggregator: fake alert, token failed re-check",
		"token", token,
		"symbol", symbol,
		"wallets", len(wallets),
		"reason", v.Reason,
	)
	if a.fakes != nil {
		if err := a.fakes.RecordFakeAlert(ctx, token, symbol, wallets, v.Reason); err != nil {
			slog.Warn("aggregator: record fake alert failed", "token", token, "err", err)
		}
	}
	delete(a.windows, token)
	a.state(token).SuppressedUntil = now.Add(a.cfg.FakeSuppression)
}

// Prune drops empty windows and states whose cooldown and mute have elapsed.
func (a *Aggregator) Prune(now time.Time) {
	for token, w := range a.windows {
		if w = a.prune(w, now); len(w) == 0 {
			delete(a.windows, token)
		} else {
			a.windows[token] = w
		}
	}
	for token, st := range a.states {
		if !st.InCooldown(now, a.cfg.Cooldown) && !now.Before(st.SuppressedUntil) {
			if _, active := a.windows[token]; !active {
				delete(a.states, token)
			}
		}
	}
}

// Tracked returns how many tokens have a live window.
func (a *Aggregator) Tracked() int { return len(a.windows) }

func (a *Aggregator) prune(w []domain.PurchaseObservation, now time.Time) []domain.PurchaseObservation {
	kept := w[:0]
	for _, p := range w {
		if now.Sub(p.Timestamp) < a.cfg.Window {
			kept = append(kept, p)
		}
	}
	return kept
}

func (a *Aggregator) state(token string) *domain.AlertState {
	st, ok := a.states[token]
	if !ok {
		st = &domain.AlertState{}
		a.states[token] = st
	}
	return st
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}
