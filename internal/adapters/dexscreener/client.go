package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/smartmoney/internal/domain"
	"github.com/alejandrodnm/smartmoney/internal/ports"
)

const (
	defaultBase = "https://api.dexscreener.com"

	// 300 req/min documentados → 60% → 3/s.
	tokensRatePerSec = 3

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond

	// WETH en Base, usado para el precio nativo.
	defaultWETH = "0x4200000000000000000000000000000000000006"
)

// Config agrupa los parámetros del provider.
type Config struct {
	BaseURL             string
	ChainID             string
	MinPairLiquidityUSD float64
	CacheTTL            time.Duration
	WETH                string
	// FallbackNativeUSD se usa cuando no hay precio de WETH.
	FallbackNativeUSD float64
}

type cacheEntry struct {
	info domain.TokenInfo
	err  error
	at   time.Time
}

// Client es el provider de metadata de tokens sobre DEXScreener,
// con rate limiting, retries y un cache con TTL corto.
type Client struct {
	http    *http.Client
	cfg     Config
	limiter *rate.Limiter
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// Compile-time interface check.
var _ ports.TokenInfoProvider = (*Client)(nil)

// NewClient crea un Client. Los campos vacíos de cfg toman valores por defecto.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBase
	}
	if cfg.ChainID == "" {
		cfg.ChainID = "base"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 15 * time.Second
	}
	if cfg.WETH == "" {
		cfg.WETH = defaultWETH
	}
	if cfg.FallbackNativeUSD <= 0 {
		cfg.FallbackNativeUSD = 2500
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		cfg:     cfg,
		limiter: rate.NewLimiter(tokensRatePerSec, 3),
		now:     time.Now,
		cache:   make(map[string]cacheEntry),
	}
}

// Lookup devuelve la metadata del token. Sin par utilizable devuelve
// domain.ErrDataUnavailable. Los resultados (también los vacíos) se cachean CacheTTL.
func (c *Client) Lookup(ctx context.Context, token string) (domain.TokenInfo, error) {
	key := strings.ToLower(token)

	c.mu.Lock()
	if e, ok := c.cache[key]; ok && c.now().Sub(e.at) < c.cfg.CacheTTL {
		c.mu.Unlock()
		return e.info, e.err
	}
	c.mu.Unlock()

	var resp tokensResponse
	if err := c.get(ctx, c.cfg.BaseURL+"/latest/dex/tokens/"+key, &resp); err != nil {
		return domain.TokenInfo{}, fmt.Errorf("dexscreener.Lookup %s: %w: %v", key, domain.ErrDataUnavailable, err)
	}

	now := c.now()
	pairs := qualifyingPairs(resp.Pairs, c.cfg.ChainID, key, c.cfg.MinPairLiquidityUSD)
	info, ok := mapTokenInfo(key, pairs, now)
	var err error
	if !ok {
		err = fmt.Errorf("dexscreener.Lookup %s: no pair above %.0f USD liquidity: %w",
			key, c.cfg.MinPairLiquidityUSD, domain.ErrDataUnavailable)
	}

	c.mu.Lock()
	c.cache[key] = cacheEntry{info: info, err: err, at: now}
	c.mu.Unlock()

	return info, err
}

// NativePriceUSD devuelve el precio de WETH, o el fallback si no se puede obtener.
func (c *Client) NativePriceUSD(ctx context.Context) float64 {
	info, err := c.Lookup(ctx, c.cfg.WETH)
	if err != nil || info.PriceUSD <= 0 {
		slog.Debug("native price unavailable, using fallback",
			"fallback", c.cfg.FallbackNativeUSD, "err", err)
		return c.cfg.FallbackNativeUSD
	}
	return info.PriceUSD
}

// get hace un GET con rate limiting y retries.
func (c *Client) get(ctx context.Context, url string, out any) error {
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// doWithRetry ejecuta la función con backoff exponencial.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("rate limited by dexscreener", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
