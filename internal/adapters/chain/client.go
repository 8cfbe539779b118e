package chain

// client.go: acceso a la cadena con failover entre endpoints RPC.
//
// Los endpoints con credenciales se prueban primero, en orden; cuando se agotan
// el cursor pasa a la lista pública y después vuelve al principio.
// Un error transitorio o de rate-limit rota de inmediato y reintenta la misma
// llamada en el siguiente endpoint. Cualquier otro error se devuelve al caller,
// pero N fallos consecutivos en el mismo endpoint también rotan el cursor.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alejandrodnm/smartmoney/internal/adapters/metrics"
	"github.com/alejandrodnm/smartmoney/internal/domain"
)

const (
	defaultRotateAfter     = 5
	defaultCallTimeout     = 10 * time.Second
	defaultReceiptInterval = 3 * time.Second
)

// Backend is the subset of ethclient.Client the access layer uses.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, block *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	Close()
}

// Dialer opens a Backend for an endpoint URL.
type Dialer func(ctx context.Context, url string) (Backend, error)

func dialEthclient(ctx context.Context, url string) (Backend, error) {
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Config controls the endpoint pool.
type Config struct {
	Endpoints       []string // credentialed, priority order
	PublicEndpoints []string // fallback
	RotateAfter     int      // consecutive failures before rotating
	CallTimeout     time.Duration
	ReceiptInterval time.Duration
}

type endpoint struct {
	url      string
	public   bool
	backend  Backend
	failures int
}

// Client implements ports.ChainWriter over an ordered list of RPC endpoints.
type Client struct {
	cfg     Config
	dial    Dialer
	metrics *metrics.Metrics

	mu             sync.Mutex
	endpoints      []*endpoint
	cursor         int
	rotations      int
	exhaustedSince time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithDialer replaces the ethclient dialer.
func WithDialer(d Dialer) Option { return func(c *Client) { c.dial = d } }

// WithMetrics records rotations.
func WithMetrics(m *metrics.Metrics) Option { return func(c *Client) { c.metrics = m } }

// New creates a Client. Backends are dialed lazily on first use.
func New(cfg Config, opts ...Option) (*Client, error) {
	if len(cfg.Endpoints)+len(cfg.PublicEndpoints) == 0 {
		return nil, errors.New("chain.New: no rpc endpoints configured")
	}
	if cfg.RotateAfter <= 0 {
		cfg.RotateAfter = defaultRotateAfter
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.ReceiptInterval <= 0 {
		cfg.ReceiptInterval = defaultReceiptInterval
	}

	c := &Client{cfg: cfg, dial: dialEthclient}
	for _, u := range cfg.Endpoints {
		c.endpoints = append(c.endpoints, &endpoint{url: u})
	}
	for _, u := range cfg.PublicEndpoints {
		c.endpoints = append(c.endpoints, &endpoint{url: u, public: true})
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Close closes every dialed backend.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ep := range c.endpoints {
		if ep.backend != nil {
			ep.backend.Close()
			ep.backend = nil
		}
	}
}

// Health returns a snapshot of the pool.
func (c *Client) Health() domain.ChainHealth {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.ChainHealth{
		ActiveEndpoint: redact(c.endpoints[c.cursor].url),
		ActiveIndex:    c.cursor,
		Endpoints:      len(c.endpoints),
		Rotations:      c.rotations,
		ExhaustedSince: c.exhaustedSince,
	}
}

// active returns the backend under the cursor, dialing it if needed.
func (c *Client) active(ctx context.Context) (Backend, int, string, error) {
	c.mu.Lock()
	idx := c.cursor
	ep := c.endpoints[idx]
	b := ep.backend
	c.mu.Unlock()
	if b != nil {
		return b, idx, ep.url, nil
	}

	b, err := c.dial(ctx, ep.url)
	if err != nil {
		return nil, idx, ep.url, fmt.Errorf("dial: %w", err)
	}
	c.mu.Lock()
	if ep.backend == nil {
		ep.backend = b
	} else {
		b.Close()
		b = ep.backend
	}
	c.mu.Unlock()
	return b, idx, ep.url, nil
}

func (c *Client) succeed(idx int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoints[idx].failures = 0
	c.exhaustedSince = time.Time{}
}

// fail counts a failure on idx and advances the cursor when needed.
// A stale idx (another caller already rotated) is ignored.
func (c *Client) fail(idx int, kind domain.ProviderErrorKind, transient bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx != c.cursor {
		return
	}
	ep := c.endpoints[idx]
	ep.failures++
	if !transient && ep.failures < c.cfg.RotateAfter {
		return
	}

	reason := kind.String()
	if !transient {
		reason = "consecutive_failures"
	}
	ep.failures = 0
	c.cursor = (c.cursor + 1) % len(c.endpoints)
	c.rotations++
	next := c.endpoints[c.cursor]
	slog.Warn("chain: rotating rpc endpoint",
		"from", redact(ep.url),
		"to", redact(next.url),
		"public", next.public,
		"reason", reason,
	)
	c.metrics.Rotation(reason, c.cursor)
}

func (c *Client) markExhausted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exhaustedSince.IsZero() {
		c.exhaustedSince = time.Now()
	}
}

// do runs fn against the active endpoint with failover.
func (c *Client) do(ctx context.Context, op string, fn func(ctx context.Context, b Backend) error) error {
	var lastErr error
	for attempt := 0; attempt < len(c.endpoints); attempt++ {
		b, idx, url, err := c.active(ctx)
		if err == nil {
			callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
			err = fn(callCtx, b)
			cancel()
		}
		if err == nil || errors.Is(err, ethereum.NotFound) {
			c.succeed(idx)
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("chain.%s: %w", op, ctx.Err())
		}

		kind, transient := classify(err)
		c.fail(idx, kind, transient)
		if !transient {
			return fmt.Errorf("chain.%s: %w", op, err)
		}
		lastErr = &domain.ProviderError{Kind: kind, Endpoint: redact(url), Err: err}
		slog.Debug("chain: endpoint failed, retrying on next", "op", op, "err", lastErr)
	}
	c.markExhausted()
	return fmt.Errorf("chain.%s: %w: %w", op, domain.ErrAllEndpointsExhausted, lastErr)
}

// CurrentBlock returns the head block number.
func (c *Client) CurrentBlock(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.do(ctx, "CurrentBlock", func(ctx context.Context, b Backend) error {
		var err error
		n, err = b.BlockNumber(ctx)
		return err
	})
	return n, err
}

// BlockTime returns the timestamp of block number.
func (c *Client) BlockTime(ctx context.Context, number uint64) (time.Time, error) {
	var h *types.Header
	err := c.do(ctx, "BlockTime", func(ctx context.Context, b Backend) error {
		var err error
		h, err = b.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		return err
	})
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(h.Time), 0).UTC(), nil
}

// LogsInRange returns logs in [from, to] whose first topic is any of topics.
func (c *Client) LogsInRange(ctx context.Context, from, to uint64, topics ...common.Hash) ([]types.Log, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
	}
	if len(topics) > 0 {
		q.Topics = [][]common.Hash{topics}
	}
	var logs []types.Log
	err := c.do(ctx, "LogsInRange", func(ctx context.Context, b Backend) error {
		var err error
		logs, err = b.FilterLogs(ctx, q)
		return err
	})
	return logs, err
}

// TransactionByHash returns the transaction, mined or pending.
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, error) {
	var tx *types.Transaction
	err := c.do(ctx, "TransactionByHash", func(ctx context.Context, b Backend) error {
		var err error
		tx, _, err = b.TransactionByHash(ctx, hash)
		return err
	})
	return tx, err
}

// TransactionReceipt returns ethereum.NotFound while the transaction is pending.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var r *types.Receipt
	err := c.do(ctx, "TransactionReceipt", func(ctx context.Context, b Backend) error {
		var err error
		r, err = b.TransactionReceipt(ctx, hash)
		return err
	})
	return r, err
}

// CallView packs method, runs eth_call against contract and unpacks the outputs.
func (c *Client) CallView(ctx context.Context, contract common.Address, parsed abi.ABI, method string, args ...any) ([]any, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain.CallView: pack %s: %w", method, err)
	}
	var out []byte
	err = c.do(ctx, "CallView", func(ctx context.Context, b Backend) error {
		var err error
		out, err = b.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	vals, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("chain.CallView: unpack %s: %w", method, err)
	}
	return vals, nil
}

// Balance returns the native balance in wei.
func (c *Client) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	var bal *big.Int
	err := c.do(ctx, "Balance", func(ctx context.Context, b Backend) error {
		var err error
		bal, err = b.BalanceAt(ctx, account, nil)
		return err
	})
	return bal, err
}

func (c *Client) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	var n uint64
	err := c.do(ctx, "PendingNonce", func(ctx context.Context, b Backend) error {
		var err error
		n, err = b.PendingNonceAt(ctx, account)
		return err
	})
	return n, err
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var p *big.Int
	err := c.do(ctx, "SuggestGasPrice", func(ctx context.Context, b Backend) error {
		var err error
		p, err = b.SuggestGasPrice(ctx)
		return err
	})
	return p, err
}

func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var g uint64
	err := c.do(ctx, "EstimateGas", func(ctx context.Context, b Backend) error {
		var err error
		g, err = b.EstimateGas(ctx, msg)
		return err
	})
	return g, err
}

// SubmitSignedTransaction broadcasts tx. Resubmission to another endpoint after a
// transient failure is safe: the hash is the same and "already known" counts as success.
func (c *Client) SubmitSignedTransaction(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	err := c.do(ctx, "SubmitSignedTransaction", func(ctx context.Context, b Backend) error {
		if err := b.SendTransaction(ctx, tx); err != nil && !alreadyKnown(err) {
			return err
		}
		return nil
	})
	if err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}

// WaitForReceipt polls for the receipt of hash until it is mined or timeout elapses.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.ReceiptInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("chain.WaitForReceipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
			receipt, err := c.TransactionReceipt(ctx, hash)
			if err != nil {
				if !errors.Is(err, ethereum.NotFound) {
					slog.Debug("chain: receipt poll failed", "tx", hash.Hex(), "err", err)
				}
				continue // not yet mined
			}
			return receipt, nil
		}
	}
}
