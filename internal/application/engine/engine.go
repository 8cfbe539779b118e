package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/smartmoney/internal/domain"
	"github.com/alejandrodnm/smartmoney/internal/ports"
)

// Config holds the scheduling of one engine. Strategy rules live in domain.StrategyConfig.
type Config struct {
	Mode           string // "paper" or "live", shown in notifications
	TradingEnabled bool   // kill switch: when false queued signals are skipped
	PollInterval   time.Duration
	ExitInterval   time.Duration
	BatchSize      int
	Expiry         domain.ExpiryPolicy
}

func (c *Config) setDefaults() {
	if c.Mode == "" {
		c.Mode = "paper"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.ExitInterval <= 0 {
		c.ExitInterval = 30 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	def := domain.DefaultExpiryPolicy()
	if c.Expiry.PendingMaxAge <= 0 {
		c.Expiry.PendingMaxAge = def.PendingMaxAge
	}
	if c.Expiry.ConfirmationMaxAge <= 0 {
		c.Expiry.ConfirmationMaxAge = def.ConfirmationMaxAge
	}
	if c.Expiry.ProcessingMaxAge <= 0 {
		c.Expiry.ProcessingMaxAge = def.ProcessingMaxAge
	}
}

// Deps groups the collaborators of an engine.
type Deps struct {
	Queue    ports.SignalQueue
	Store    ports.PositionStore
	Tokens   ports.TokenInfoProvider
	Executor ports.TradeExecutor
	Notifier ports.Notifier      // optional
	Metrics  ports.EngineMetrics // optional
}

// Engine runs one strategy: a signal poller that opens positions and a
// position monitor that closes them.
//
// Entries only insert positions and exits only mutate existing ones, so each
// position has a single writer. mu guards the map, the reservations and the
// risk state; executor calls happen outside it.
type Engine struct {
	strat domain.StrategyConfig
	cfg   Config
	deps  Deps
	now   func() time.Time

	mu        sync.Mutex
	positions map[string]*domain.Position
	reserved  map[string]float64 // entries in flight, by token
	state     domain.StrategyState
}

// New creates an engine for strat. Call Restore before Run.
func New(strat domain.StrategyConfig, cfg Config, deps Deps) *Engine {
	cfg.setDefaults()
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if strat.Location == nil {
		strat.Location = time.UTC
	}
	return &Engine{
		strat:     strat,
		cfg:       cfg,
		deps:      deps,
		now:       time.Now,
		positions: make(map[string]*domain.Position),
		reserved:  make(map[string]float64),
		state:     domain.StrategyState{StrategyID: strat.ID},
	}
}

// WithClock replaces time.Now.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Strategy returns the configuration the engine runs.
func (e *Engine) Strategy() domain.StrategyConfig { return e.strat }

// Restore reloads open positions and the risk state from the store.
func (e *Engine) Restore(ctx context.Context) error {
	positions, err := e.deps.Store.LoadOpenPositions(ctx, e.strat.ID)
	if err != nil {
		return fmt.Errorf("engine.Restore: positions: %w", err)
	}
	st, err := e.deps.Store.LoadStrategyState(ctx, e.strat.ID)
	if err != nil {
		return fmt.Errorf("engine.Restore: state: %w", err)
	}
	st.StrategyID = e.strat.ID

	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = st
	for i := range positions {
		p := positions[i]
		e.positions[p.Token] = &p
	}
	slog.Info("engine: restored",
		"strategy", e.strat.ID,
		"positions", len(positions),
		"exposure", fmt.Sprintf("%.4f", e.exposureLocked()),
		"realized_pnl", fmt.Sprintf("%+.4f", st.RealizedPnL),
	)
	e.deps.Metrics.Book(e.strat.ID, len(e.positions), e.exposureLocked())
	return nil
}

// Run starts the signal poller and the position monitor and blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine: starting",
		"strategy", e.strat.ID,
		"trigger", e.strat.Trigger,
		"mode", e.cfg.Mode,
		"enabled", e.cfg.TradingEnabled,
		"trade_size", fmt.Sprintf("%.4f", e.strat.TradeSize),
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.loop(ctx, "signals", e.cfg.PollInterval, e.PollSignals) })
	g.Go(func() error { return e.loop(ctx, "positions", e.cfg.ExitInterval, e.CheckPositions) })
	return g.Wait()
}

func (e *Engine) loop(ctx context.Context, name string, every time.Duration, step func(context.Context) error) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		e.safeStep(ctx, name, step)
		select {
		case <-ctx.Done():
			slog.Info("engine: task stopped", "strategy", e.strat.ID, "task", name)
			return nil
		case <-ticker.C:
		}
	}
}

// safeStep keeps a panicking iteration from taking the process down.
func (e *Engine) safeStep(ctx context.Context, name string, step func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("engine: task panicked", "strategy", e.strat.ID, "task", name, "panic", r, "stack", string(debug.Stack()))
			e.notify(ctx, fmt.Sprintf("⚠️ [%s] %s task error: %v", e.strat.ID, name, r))
		}
	}()
	if err := step(ctx); err != nil && ctx.Err() == nil {
		slog.Error("engine: task failed", "strategy", e.strat.ID, "task", name, "err", err)
	}
}

// Positions returns a copy of the open positions.
func (e *Engine) Positions() []domain.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, clonePosition(*p))
	}
	return out
}

// State returns a copy of the risk state.
func (e *Engine) State() domain.StrategyState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Exposure returns the cost basis of the open positions.
func (e *Engine) Exposure() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exposureLocked()
}

func (e *Engine) exposureLocked() float64 {
	var total float64
	for _, p := range e.positions {
		total += p.NativeSpent
	}
	return total
}

func (e *Engine) reservedLocked() float64 {
	var total float64
	for _, v := range e.reserved {
		total += v
	}
	return total
}

func (e *Engine) day(t time.Time) string {
	return t.In(e.strat.Location).Format("2006-01-02")
}

func (e *Engine) saveState(ctx context.Context) {
	e.mu.Lock()
	st := e.state
	e.mu.Unlock()
	if err := e.deps.Store.SaveStrategyState(ctx, st); err != nil {
		slog.Error("engine: save state failed", "strategy", e.strat.ID, "err", err)
	}
}

func (e *Engine) publishBook() {
	e.mu.Lock()
	open, exposure := len(e.positions), e.exposureLocked()
	e.mu.Unlock()
	e.deps.Metrics.Book(e.strat.ID, open, exposure)
}

func (e *Engine) notify(ctx context.Context, msg string) {
	if e.deps.Notifier == nil {
		return
	}
	if err := e.deps.Notifier.Notify(ctx, msg); err != nil {
		slog.Warn("engine: notify failed", "strategy", e.strat.ID, "err", err)
	}
}

func clonePosition(p domain.Position) domain.Position {
	p.TPLevels = append([]domain.TPLevel(nil), p.TPLevels...)
	p.TPFired = append([]bool(nil), p.TPFired...)
	return p
}

type nopMetrics struct{}

func (nopMetrics) Entry(string)              {}
func (nopMetrics) EntryRejected(string)      {}
func (nopMetrics) Exit(string, string)       {}
func (nopMetrics) Book(string, int, float64) {}
