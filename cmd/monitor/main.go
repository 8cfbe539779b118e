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

	"github.com/alejandrodnm/smartmoney/config"
	"github.com/alejandrodnm/smartmoney/internal/adapters/chain"
	"github.com/alejandrodnm/smartmoney/internal/adapters/dexscreener"
	"github.com/alejandrodnm/smartmoney/internal/adapters/metrics"
	"github.com/alejandrodnm/smartmoney/internal/adapters/notify"
	"github.com/alejandrodnm/smartmoney/internal/adapters/storage"
	"github.com/alejandrodnm/smartmoney/internal/adapters/storage/postgres"
	"github.com/alejandrodnm/smartmoney/internal/application/aggregator"
	"github.com/alejandrodnm/smartmoney/internal/application/classifier"
	"github.com/alejandrodnm/smartmoney/internal/application/filter"
	"github.com/alejandrodnm/smartmoney/internal/application/monitor"
	"github.com/alejandrodnm/smartmoney/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	startBlock := flag.Uint64("start-block", 0, "first block to process (overrides config, 0 = head)")
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
	if *startBlock > 0 {
		cfg.Monitor.StartBlock = *startBlock
	}
	setupLogger(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("monitor exited with error", "err", err)
		os.Exit(1)
	}
	slog.Info("monitor stopped cleanly")
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New()
	serveMetrics(ctx, cfg.Metrics.Addr, m)

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

	wallets, err := config.LoadWallets(cfg.Wallets.Path)
	if err != nil {
		return err
	}
	if cfg.Alert.ExcludeFlaggedWallets {
		wallets = dropFlagged(ctx, store, wallets, cfg.Alert.FakeAlertFlagThreshold)
	}
	if len(wallets) == 0 && len(cfg.Monitor.PriorityWallets) == 0 {
		return errors.New("no wallets to watch")
	}

	fcfg := filterConfig(cfg.Filter)
	agg := aggregator.New(aggregator.Config{
		Threshold:         cfg.Alert.Threshold,
		Window:            config.Seconds(cfg.Alert.WindowSeconds),
		Cooldown:          config.Seconds(cfg.Alert.CooldownSeconds),
		BlackoutHours:     cfg.Alert.BlackoutHours,
		BlackoutExtra:     cfg.Alert.BlackoutExtra,
		Location:          config.Location(cfg.Alert.Timezone),
		BullishWindow:     config.Seconds(cfg.Alert.BullishWindowSeconds),
		MaxBullishRepeats: cfg.Alert.MaxBullishRepeats,
		FakeSuppression:   config.Seconds(cfg.Alert.FakeSuppressionSeconds),
	}, tokens, filter.NewAlertRecheck(fcfg), monitor.NotifyingFakes(store, notifier))

	mon := monitor.New(monitor.Config{
		PollInterval:        config.Seconds(cfg.Monitor.PollIntervalSeconds),
		StartBlock:          cfg.Monitor.StartBlock,
		MaxBlocksPerTick:    cfg.Monitor.MaxBlocksPerTick,
		CatchUpBlocks:       cfg.Monitor.CatchUpBlocks,
		CatchUpRate:         cfg.Monitor.CatchUpRate,
		MaintenanceEvery:    cfg.Monitor.MaintenanceEveryBlocks,
		ExhaustedAlertAfter: config.Seconds(cfg.Chain.ExhaustedAlertAfterSeconds),
		SignalCooldown:      time.Duration(cfg.Queue.SignalCooldownMinutes) * time.Minute,
		ConfirmTriggers:     cfg.ConfirmTriggerSet(),
		PriorityWallets:     cfg.Monitor.PriorityWallets,
		Confirm: monitor.ConfirmConfig{
			Delay:         config.Seconds(cfg.Queue.ConfirmDelaySeconds),
			MinChangePct:  cfg.Queue.ConfirmMinChangePct,
			DeadTokenMcap: cfg.Queue.DeadTokenMcap,
		},
	}, monitor.Deps{
		Chain:      rpc,
		Tokens:     tokens,
		Queue:      queue,
		Notifier:   notifier,
		Classifier: classifier.New(classifier.Config{TransferLogThreshold: cfg.Monitor.TransferLogThreshold}),
		Ingestion:  filter.NewIngestion(fcfg),
		Aggregator: agg,
		Metrics:    m,
		Pruner:     store,
	}, wallets)

	slog.Info("smartmoney monitor starting",
		"wallets", mon.Watched(),
		"threshold", cfg.Alert.Threshold,
		"window", config.Seconds(cfg.Alert.WindowSeconds),
		"queue", cfg.Storage.QueueDriver,
	)
	send(ctx, notifier, fmt.Sprintf("🟢 Monitor started: %d wallets, threshold %d in %ds",
		mon.Watched(), cfg.Alert.Threshold, cfg.Alert.WindowSeconds))

	err = mon.Run(ctx)

	// ctx is done by now; the stop notice gets its own deadline
	stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	send(stopCtx, notifier, fmt.Sprintf("🔴 Monitor stopped at block %d", mon.NextBlock()))
	return err
}

func filterConfig(c config.FilterConfig) filter.Config {
	return filter.Config{
		ExcludedTokens:   c.ExcludedTokens,
		ExcludedSymbols:  c.ExcludedSymbols,
		RequireSwapEvent: c.RequireSwapEvent == nil || *c.RequireSwapEvent,
		MinLiquidityUSD:  c.MinLiquidityUSD,
		DustNative:       c.DustNative,
		MinMcapUSD:       c.MinMcapUSD,
		MaxMcapUSD:       c.MaxMcapUSD,
		MinVolumeUSD:     c.MinVolume24hUSD,
		MinTxns24h:       c.MinTxns24h,
	}
}

func dropFlagged(ctx context.Context, store *storage.SQLiteStorage, wallets []string, threshold int) []string {
	flagged, err := store.FlaggedWallets(ctx, threshold)
	if err != nil {
		slog.Warn("flagged wallets lookup failed, watching all", "err", err)
		return wallets
	}
	if len(flagged) == 0 {
		return wallets
	}
	skip := make(map[string]bool, len(flagged))
	for _, w := range flagged {
		skip[strings.ToLower(w)] = true
	}
	out := wallets[:0]
	for _, w := range wallets {
		if !skip[w] {
			out = append(out, w)
		}
	}
	slog.Info("excluded flagged wallets", "flagged", len(flagged), "watching", len(out))
	return out
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
