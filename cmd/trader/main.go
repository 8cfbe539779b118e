package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/smartmoney/config"
	"github.com/alejandrodnm/smartmoney/internal/adapters/chain"
	"github.com/alejandrodnm/smartmoney/internal/adapters/dexscreener"
	"github.com/alejandrodnm/smartmoney/internal/adapters/metrics"
	"github.com/alejandrodnm/smartmoney/internal/adapters/notify"
	"github.com/alejandrodnm/smartmoney/internal/adapters/onchain"
	"github.com/alejandrodnm/smartmoney/internal/adapters/storage"
	"github.com/alejandrodnm/smartmoney/internal/adapters/storage/postgres"
	"github.com/alejandrodnm/smartmoney/internal/application/engine"
	"github.com/alejandrodnm/smartmoney/internal/application/engine/paper"
	"github.com/alejandrodnm/smartmoney/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	report := flag.Bool("report", false, "print positions, closed trades and queue status, then exit")
	only := flag.String("strategy", "", "run only this strategy id")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	if *only != "" {
		if cfg.Strategies = selectStrategy(cfg.Strategies, *only); len(cfg.Strategies) == 0 {
			slog.Error("unknown strategy", "id", *only)
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *report {
		if err := runReport(ctx, cfg); err != nil {
			slog.Error("report failed", "err", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg); err != nil {
		slog.Error("trader exited with error", "err", err)
		os.Exit(1)
	}
	slog.Info("trader stopped cleanly")
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New()
	serveMetrics(ctx, cfg.Metrics.Addr, m)

	tokens := dexscreener.NewClient(dexscreener.Config{
		BaseURL:             cfg.DexScreener.BaseURL,
		ChainID:             cfg.DexScreener.ChainID,
		MinPairLiquidityUSD: cfg.DexScreener.MinPairLiquidityUSD,
		CacheTTL:            config.Seconds(cfg.DexScreener.CacheTTLSeconds),
		FallbackNativeUSD:   cfg.DexScreener.FallbackNativeUSD,
	})

	store, err := storage.NewSQLiteStorage(cfg.Storage.SQLitePath,
		storage.WithRetention(time.Duration(cfg.Storage.RetentionDays)*24*time.Hour))
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer store.Close()

	queue, closeQueue, err := openQueue(ctx, cfg.Storage, store)
	if err != nil {
		return err
	}
	defer closeQueue()

	notifier := buildNotifier(cfg.Notify)

	var live ports.TradeExecutor
	if cfg.Trading.Mode == "live" {
		rpc, err := chain.New(chain.Config{
			Endpoints:       cfg.Chain.RPCURLs,
			PublicEndpoints: cfg.Chain.PublicRPCURLs,
			RotateAfter:     cfg.Chain.RotateAfter,
			CallTimeout:     config.Seconds(cfg.Chain.CallTimeoutSeconds),
		}, chain.WithMetrics(m))
		if err != nil {
			return fmt.Errorf("chain: %w", err)
		}
		defer rpc.Close()

		swap, err := onchain.NewSwapExecutor(rpc, onchain.SwapConfig{
			PrivateKeyHex:   cfg.Trading.PrivateKey,
			PrimaryFeeTier:  cfg.Trading.PrimaryFeeTier,
			FallbackFeeTier: cfg.Trading.FallbackFeeTier,
			SlippagePct:     cfg.Trading.SlippagePct,
			GasMultiplier:   cfg.Trading.GasMultiplier,
			MaxGasGwei:      cfg.Trading.MaxGasGwei,
			GasReserve:      cfg.Trading.GasReserve,
		})
		if err != nil {
			return fmt.Errorf("swap executor: %w", err)
		}
		slog.Info("live trading wallet", "address", swap.Address().Hex(), "enabled", cfg.Trading.Enabled)
		live = swap
	}

	// paper trading never touches funds, so the kill switch only gates live mode
	enabled := cfg.Trading.Mode == "paper" || cfg.Trading.Enabled
	loc := config.Location(cfg.Trading.Timezone)

	engines := make([]*engine.Engine, 0, len(cfg.Strategies))
	for _, sc := range cfg.Strategies {
		executor := live
		var virtual *paper.Executor
		if executor == nil {
			virtual = paper.New(cfg.Trading.PaperCapital)
			executor = virtual
		}

		e := engine.New(sc.Domain(loc), engine.Config{
			Mode:           cfg.Trading.Mode,
			TradingEnabled: enabled,
			PollInterval:   config.Seconds(cfg.Trading.PollIntervalSeconds),
			ExitInterval:   config.Seconds(cfg.Trading.ExitIntervalSeconds),
			Expiry:         cfg.ExpiryPolicy(),
		}, engine.Deps{
			Queue:    queue,
			Store:    store,
			Tokens:   tokens,
			Executor: executor,
			Notifier: notifier,
			Metrics:  m,
		})
		if err := e.Restore(ctx); err != nil {
			return fmt.Errorf("strategy %s: %w", sc.ID, err)
		}
		if virtual != nil {
			virtual.Restore(e.State().RealizedPnL, e.Exposure())
		}
		engines = append(engines, e)
	}

	sched, err := schedule(ctx, cfg.Trading, loc, engines)
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	ids := make([]string, len(engines))
	for i, e := range engines {
		ids[i] = e.Strategy().ID
	}
	slog.Info("smartmoney trader starting",
		"mode", cfg.Trading.Mode,
		"enabled", enabled,
		"strategies", strings.Join(ids, ","),
		"queue", cfg.Storage.QueueDriver,
	)
	send(ctx, notifier, fmt.Sprintf("🟢 Trader started (%s%s): %s",
		cfg.Trading.Mode, disabledSuffix(enabled), strings.Join(ids, ", ")))

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range engines {
		g.Go(func() error { return e.Run(gctx) })
	}
	err = g.Wait()

	stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	send(stopCtx, notifier, "🔴 Trader stopped")
	return err
}

// schedule registers the wall-clock jobs: the daily-loss reset and the daily summary.
func schedule(ctx context.Context, cfg config.TradingConfig, loc *time.Location, engines []*engine.Engine) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(cfg.DailyResetCron, func() {
		for _, e := range engines {
			e.ResetDailyLoss(ctx)
		}
	}); err != nil {
		return nil, fmt.Errorf("daily reset cron %q: %w", cfg.DailyResetCron, err)
	}
	if _, err := c.AddFunc(cfg.DailySummaryCron, func() {
		for _, e := range engines {
			e.SendDailySummary(ctx)
		}
	}); err != nil {
		return nil, fmt.Errorf("daily summary cron %q: %w", cfg.DailySummaryCron, err)
	}
	return c, nil
}

func selectStrategy(all []config.StrategyConfig, id string) []config.StrategyConfig {
	for _, s := range all {
		if s.ID == id {
			return []config.StrategyConfig{s}
		}
	}
	return nil
}

func disabledSuffix(enabled bool) string {
	if enabled {
		return ""
	}
	return ", trading disabled"
}

func openQueue(ctx context.Context, cfg config.StorageConfig, store *storage.SQLiteStorage) (ports.SignalQueue, func(), error) {
	if cfg.QueueDriver != "postgres" {
		return store, func() {}, nil
	}
	pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	q, err := postgres.NewSignalQueue(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres queue: %w", err)
	}
	return q, func() { _ = q.Close() }, nil
}

func buildNotifier(cfg config.NotifyConfig) notify.Multi {
	out := notify.Multi{}
	if cfg.Console || cfg.TelegramToken == "" {
		out = append(out, notify.NewConsole())
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		out = append(out, notify.NewTelegram(cfg.TelegramBaseURL, cfg.TelegramToken, cfg.TelegramChatID))
	}
	return out
}

func send(ctx context.Context, n ports.Notifier, msg string) {
	if err := n.Notify(ctx, msg); err != nil {
		slog.Warn("notify failed", "err", err)
	}
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics) {
	if addr == "" {
		return
	}
	srv := &http.Server{Addr: addr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		slog.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
