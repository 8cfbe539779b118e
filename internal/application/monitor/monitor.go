package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/smartmoney/internal/application/aggregator"
	"github.com/alejandrodnm/smartmoney/internal/application/classifier"
	"github.com/alejandrodnm/smartmoney/internal/application/filter"
	"github.com/alejandrodnm/smartmoney/internal/application/message"
	"github.com/alejandrodnm/smartmoney/internal/domain"
	"github.com/alejandrodnm/smartmoney/internal/ports"
)

var decimalsABI abi.ABI

func init() {
	var err error
	decimalsABI, err = abi.JSON(strings.NewReader(`[
		{"name": "decimals", "type": "function", "inputs": [], "outputs": [{"name": "", "type": "uint8"}]}
	]`))
	if err != nil {
		panic("decimals abi parse: " + err.Error())
	}
}

// Config holds the polling and signalling parameters of the monitor.
type Config struct {
	PollInterval     time.Duration
	StartBlock       uint64 // 0 starts at the current head
	MaxBlocksPerTick int
	CatchUpBlocks    uint64  // lag above which per-block work is throttled
	CatchUpRate      float64 // blocks per second while catching up
	MaintenanceEvery uint64  // blocks between maintenance passes

	ExhaustedAlertAfter time.Duration
	SignalCooldown      time.Duration

	// ConfirmTriggers lists the triggers whose signals start pending_confirmation.
	ConfirmTriggers map[string]bool
	PriorityWallets []string
	DefaultDecimals uint8

	Confirm ConfirmConfig
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.MaxBlocksPerTick <= 0 {
		c.MaxBlocksPerTick = 25
	}
	if c.CatchUpBlocks == 0 {
		c.CatchUpBlocks = 10
	}
	if c.CatchUpRate <= 0 {
		c.CatchUpRate = 4
	}
	if c.MaintenanceEvery == 0 {
		c.MaintenanceEvery = 50
	}
	if c.ExhaustedAlertAfter <= 0 {
		c.ExhaustedAlertAfter = 2 * time.Minute
	}
	if c.SignalCooldown <= 0 {
		c.SignalCooldown = time.Hour
	}
	if c.DefaultDecimals == 0 {
		c.DefaultDecimals = 18
	}
}

// Pruner drops rows past their retention. Optional.
type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// Deps groups the collaborators of the monitor.
type Deps struct {
	Chain      ports.ChainReader
	Tokens     ports.TokenInfoProvider
	Queue      ports.SignalQueue
	Notifier   ports.Notifier
	Classifier *classifier.Classifier
	Ingestion  *filter.Chain
	Aggregator *aggregator.Aggregator
	Metrics    ports.MonitorMetrics // optional
	Pruner     Pruner               // optional
}

type logKey struct {
	tx    common.Hash
	index uint
}

// Monitor follows the chain block by block and turns watched-wallet purchases
// into alerts and queued trade signals.
type Monitor struct {
	cfg  Config
	deps Deps

	watched  map[common.Address]struct{}
	priority map[common.Address]struct{}
	confirm  *Confirmer
	throttle *rate.Limiter
	now      func() time.Time

	next      uint64
	started   bool
	processed uint64
	lastTime  time.Time

	seen     map[logKey]uint64 // value is the block, for eviction
	decimals map[common.Address]uint8

	lastEndpoint string
	degraded     bool
}

// New creates a Monitor watching wallets.
func New(cfg Config, deps Deps, wallets []string) *Monitor {
	cfg.setDefaults()
	if deps.Ingestion == nil {
		deps.Ingestion = filter.NewChain()
	}
	if deps.Classifier == nil {
		deps.Classifier = classifier.New(classifier.Config{})
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}

	m := &Monitor{
		cfg:      cfg,
		deps:     deps,
		watched:  make(map[common.Address]struct{}, len(wallets)),
		priority: make(map[common.Address]struct{}, len(cfg.PriorityWallets)),
		throttle: rate.NewLimiter(rate.Limit(cfg.CatchUpRate), 1),
		now:      time.Now,
		next:     cfg.StartBlock,
		seen:     make(map[logKey]uint64),
		decimals: make(map[common.Address]uint8),
	}
	for _, w := range wallets {
		m.watched[common.HexToAddress(w)] = struct{}{}
	}
	for _, w := range cfg.PriorityWallets {
		addr := common.HexToAddress(w)
		m.priority[addr] = struct{}{}
		m.watched[addr] = struct{}{}
	}
	m.confirm = NewConfirmer(cfg.Confirm, deps.Queue, deps.Tokens)
	return m
}

// WithClock replaces time.Now for health checks and confirmations.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	m.confirm.now = now
	return m
}

// Watched returns the number of watched wallets.
func (m *Monitor) Watched() int { return len(m.watched) }

// NextBlock returns the next block to process.
func (m *Monitor) NextBlock() uint64 { return m.next }

// Run polls for new blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	slog.Info("monitor: starting",
		"wallets", len(m.watched),
		"priority", len(m.priority),
		"poll", m.cfg.PollInterval,
	)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := m.Tick(ctx); err != nil && ctx.Err() == nil {
			slog.Error("monitor: tick failed", "block", m.next, "err", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("monitor: stopped", "next_block", m.next)
			return nil
		case <-ticker.C:
		}
	}
}

// Tick processes the blocks available since the last call, in order.
// A block that fails is retried on the next tick without advancing.
func (m *Monitor) Tick(ctx context.Context) error {
	head, err := m.deps.Chain.CurrentBlock(ctx)
	if err != nil {
		return fmt.Errorf("monitor.Tick: head: %w", err)
	}
	if !m.started {
		if m.next == 0 || m.next > head {
			m.next = head
		}
		m.started = true
		slog.Info("monitor: starting at block", "block", m.next, "head", head)
	}

	for n := 0; n < m.cfg.MaxBlocksPerTick && m.next <= head; n++ {
		if head-m.next > m.cfg.CatchUpBlocks {
			if err := m.throttle.Wait(ctx); err != nil {
				return err
			}
		}
		if err := m.ProcessBlock(ctx, m.next); err != nil {
			return fmt.Errorf("monitor.Tick: block %d: %w", m.next, err)
		}
		m.next++
		m.processed++
		m.deps.Metrics.BlockProcessed(head - (m.next - 1))

		if m.processed%m.cfg.MaintenanceEvery == 0 {
			m.Maintain(ctx)
		}
	}
	return nil
}

// ProcessBlock handles every Transfer to a watched wallet in block n, in receipt order.
func (m *Monitor) ProcessBlock(ctx context.Context, n uint64) error {
	logs, err := m.deps.Chain.LogsInRange(ctx, n, n, classifier.TransferTopic)
	if err != nil {
		return fmt.Errorf("logs: %w", err)
	}

	var relevant []types.Log
	for _, lg := range logs {
		if lg.Removed || len(lg.Topics) != 3 {
			continue // ERC721 Transfer has the id indexed as a fourth topic
		}
		if _, ok := m.watched[common.BytesToAddress(lg.Topics[2].Bytes())]; ok {
			relevant = append(relevant, lg)
		}
	}
	if len(relevant) == 0 {
		return nil
	}
	sort.SliceStable(relevant, func(i, j int) bool {
		if relevant[i].TxIndex != relevant[j].TxIndex {
			return relevant[i].TxIndex < relevant[j].TxIndex
		}
		return relevant[i].Index < relevant[j].Index
	})

	ts, err := m.deps.Chain.BlockTime(ctx, n)
	if err != nil {
		return fmt.Errorf("block time: %w", err)
	}
	m.lastTime = ts

	for _, lg := range relevant {
		if err := m.handleTransfer(ctx, lg, ts); err != nil {
			return err
		}
	}
	return nil
}

// handleTransfer returns an error only for provider failures, so the block is retried.
// Logs already handled are skipped on retry.
func (m *Monitor) handleTransfer(ctx context.Context, lg types.Log, ts time.Time) error {
	key := logKey{tx: lg.TxHash, index: lg.Index}
	if _, ok := m.seen[key]; ok {
		return nil
	}
	m.deps.Metrics.TransferSeen()

	wallet := common.BytesToAddress(lg.Topics[2].Bytes())
	token := strings.ToLower(lg.Address.Hex())

	tx, err := m.deps.Chain.TransactionByHash(ctx, lg.TxHash)
	if err != nil {
		return fmt.Errorf("tx %s: %w", lg.TxHash.Hex(), err)
	}
	receipt, err := m.deps.Chain.TransactionReceipt(ctx, lg.TxHash)
	if err != nil {
		return fmt.Errorf("receipt %s: %w", lg.TxHash.Hex(), err)
	}

	cls := m.deps.Classifier.Classify(tx, receipt)
	if cls.Skip {
		m.reject(key, lg.BlockNumber, "classifier_"+string(cls.Kind))
		slog.Debug("monitor: transfer skipped by classifier",
			"token", token, "wallet", wallet.Hex(), "kind", cls.Kind, "reason", cls.Reason)
		return nil
	}

	info, err := m.deps.Tokens.Lookup(ctx, token)
	if err != nil {
		m.reject(key, lg.BlockNumber, "no_data")
		slog.Debug("monitor: token data unavailable", "token", token, "err", err)
		return nil
	}

	cand := domain.Candidate{
		Wallet:         strings.ToLower(wallet.Hex()),
		Token:          token,
		TxHash:         lg.TxHash.Hex(),
		BlockNumber:    lg.BlockNumber,
		ValueNative:    m.purchaseValue(ctx, tx, lg, info),
		HasSwapEvent:   classifier.HasSwapEvent(receipt),
		Classification: cls,
		ObservedAt:     ts,
	}
	if v := m.deps.Ingestion.Admit(cand, info); !v.Allow {
		m.reject(key, lg.BlockNumber, v.Predicate)
		slog.Debug("monitor: candidate rejected", "token", token, "wallet", cand.Wallet, "reason", v.Reason)
		return nil
	}
	m.seen[key] = lg.BlockNumber

	slog.Info("monitor: purchase",
		"wallet", cand.Wallet,
		"token", info.Symbol,
		"value", fmt.Sprintf("%.4f", cand.ValueNative),
		"mcap", fmt.Sprintf("%.0f", info.MarketCapUSD),
		"block", lg.BlockNumber,
	)

	if _, ok := m.priority[wallet]; ok {
		m.enqueue(ctx, domain.TriggerSmartestWallet, token, info.Symbol, info.MarketCapUSD, 1)
	}

	alert, err := m.deps.Aggregator.Observe(ctx, domain.PurchaseObservation{
		Wallet:      cand.Wallet,
		Token:       token,
		Symbol:      info.Symbol,
		TxHash:      cand.TxHash,
		BlockNumber: cand.BlockNumber,
		ValueNative: cand.ValueNative,
		MarketCap:   info.MarketCapUSD,
		Timestamp:   ts,
	})
	if err != nil {
		slog.Warn("monitor: aggregation skipped", "token", token, "err", err)
		return nil
	}
	if alert != nil {
		m.handleAlert(ctx, *alert, info)
	}
	return nil
}

func (m *Monitor) handleAlert(ctx context.Context, a domain.Alert, info domain.TokenInfo) {
	m.deps.Metrics.Alert(string(a.Kind))
	slog.Info("monitor: ALERT",
		"token", a.Symbol,
		"kind", a.Kind,
		"wallets", a.UniqueWallets,
		"mcap", fmt.Sprintf("%.0f", a.MarketCap),
		"repeat", a.RepeatCount,
	)
	m.notify(ctx, message.Alert(a, info))
	// Bullish repeats are rejected by dedup while the first signal is active.
	m.enqueue(ctx, domain.TriggerSmartMoney, a.Token, a.Symbol, a.MarketCap, a.UniqueWallets)
}

func (m *Monitor) enqueue(ctx context.Context, trigger, token, symbol string, mcap float64, wallets int) {
	status := domain.SignalPending
	if m.cfg.ConfirmTriggers[trigger] {
		status = domain.SignalPendingConfirmation
	}
	sig, err := m.deps.Queue.Enqueue(ctx, domain.SignalRequest{
		Token:       token,
		Symbol:      symbol,
		EntryMcap:   mcap,
		TriggerType: trigger,
		WalletCount: wallets,
		Status:      status,
	}, m.cfg.SignalCooldown)
	switch {
	case errors.Is(err, domain.ErrDuplicateSignal):
		m.deps.Metrics.SignalEnqueued(trigger, "duplicate")
		slog.Debug("monitor: signal deduplicated", "token", symbol, "trigger", trigger)
	case err != nil:
		m.deps.Metrics.SignalEnqueued(trigger, "error")
		slog.Error("monitor: enqueue failed", "token", symbol, "trigger", trigger, "err", err)
	default:
		m.deps.Metrics.SignalEnqueued(trigger, "enqueued")
		slog.Info("monitor: signal enqueued", "id", sig.ID, "token", symbol, "trigger", trigger, "status", sig.Status)
	}
}

// purchaseValue estimates the native value of a purchase: tx.value when the
// swap was paid in ETH, otherwise amount × token price ÷ native price.
func (m *Monitor) purchaseValue(ctx context.Context, tx *types.Transaction, lg types.Log, info domain.TokenInfo) float64 {
	if tx != nil && tx.Value() != nil && tx.Value().Sign() > 0 {
		return toFloat(tx.Value(), 18)
	}
	native := m.deps.Tokens.NativePriceUSD(ctx)
	if native <= 0 || info.PriceUSD <= 0 || len(lg.Data) == 0 {
		return 0
	}
	amount := toFloat(new(big.Int).SetBytes(lg.Data), m.tokenDecimals(ctx, lg.Address))
	return amount * info.PriceUSD / native
}

func (m *Monitor) tokenDecimals(ctx context.Context, token common.Address) uint8 {
	if d, ok := m.decimals[token]; ok {
		return d
	}
	out, err := m.deps.Chain.CallView(ctx, token, decimalsABI, "decimals")
	if err != nil || len(out) == 0 {
		return m.cfg.DefaultDecimals
	}
	d, ok := out[0].(uint8)
	if !ok {
		d = m.cfg.DefaultDecimals
	}
	m.decimals[token] = d
	return d
}

func (m *Monitor) reject(key logKey, block uint64, stage string) {
	m.seen[key] = block
	m.deps.Metrics.Rejected(stage)
}

func (m *Monitor) notify(ctx context.Context, msg string) {
	if m.deps.Notifier == nil {
		return
	}
	if err := m.deps.Notifier.Notify(ctx, msg); err != nil {
		slog.Warn("monitor: notify failed", "err", err)
	}
}

func toFloat(v *big.Int, decimals uint8) float64 {
	f := new(big.Float).SetInt(v)
	f.Quo(f, new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)))
	out, _ := f.Float64()
	return out
}

type nopMetrics struct{}

func (nopMetrics) BlockProcessed(uint64)         {}
func (nopMetrics) TransferSeen()                 {}
func (nopMetrics) Rejected(string)               {}
func (nopMetrics) Alert(string)                  {}
func (nopMetrics) SignalEnqueued(string, string) {}
