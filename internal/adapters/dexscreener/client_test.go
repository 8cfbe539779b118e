package dexscreener_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/smartmoney/internal/adapters/dexscreener"
	"github.com/alejandrodnm/smartmoney/internal/domain"
)

const token = "0x1111111111111111111111111111111111111111"

const pairsJSON = `{
  "pairs": [
    {
      "chainId": "base",
      "pairAddress": "0xpairsmall",
      "baseToken": {"address": "0x1111111111111111111111111111111111111111", "name": "Pepe Base", "symbol": "PEPE"},
      "priceUsd": "0.0009",
      "txns": {"h24": {"buys": 10, "sells": 5}},
      "volume": {"h24": 1000},
      "liquidity": {"usd": 6000},
      "fdv": 450000,
      "marketCap": 0
    },
    {
      "chainId": "base",
      "pairAddress": "0xpairbig",
      "baseToken": {"address": "0x1111111111111111111111111111111111111111", "name": "Pepe Base", "symbol": "PEPE"},
      "priceUsd": "0.001",
      "txns": {"h24": {"buys": 300, "sells": 120}},
      "volume": {"h24": 85000},
      "liquidity": {"usd": 40000},
      "fdv": 420000,
      "marketCap": 400000
    },
    {
      "chainId": "base",
      "pairAddress": "0xpairdust",
      "baseToken": {"address": "0x1111111111111111111111111111111111111111", "name": "Pepe Base", "symbol": "PEPE"},
      "priceUsd": "0.5",
      "liquidity": {"usd": 10},
      "marketCap": 99000000
    },
    {
      "chainId": "ethereum",
      "pairAddress": "0xpaireth",
      "baseToken": {"address": "0x1111111111111111111111111111111111111111", "name": "Pepe Base", "symbol": "PEPE"},
      "priceUsd": "0.002",
      "liquidity": {"usd": 900000},
      "marketCap": 5000000
    }
  ]
}`

func newServer(t *testing.T, body string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLookup_SelectsMostLiquidPair(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/latest/dex/tokens/"+token, r.URL.Path)
		w.Write([]byte(pairsJSON))
	}))
	defer srv.Close()

	c := dexscreener.NewClient(dexscreener.Config{BaseURL: srv.URL, MinPairLiquidityUSD: 5000})
	info, err := c.Lookup(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, "PEPE", info.Symbol)
	assert.Equal(t, "0xpairbig", info.PairAddress)
	assert.InDelta(t, 0.001, info.PriceUSD, 1e-9)
	assert.InDelta(t, 40000, info.LiquidityUSD, 0.01)
	assert.InDelta(t, 85000, info.Volume24hUSD, 0.01)
	assert.Equal(t, 420, info.Txns24h())
	// max(400k, fdv 450k del par chico); el par de otra chain y el de polvo no cuentan.
	assert.InDelta(t, 450000, info.MarketCapUSD, 0.01)
}

func TestLookup_Cached(t *testing.T) {
	var hits int32
	srv := newServer(t, pairsJSON, &hits)

	c := dexscreener.NewClient(dexscreener.Config{BaseURL: srv.URL})
	for i := 0; i < 3; i++ {
		_, err := c.Lookup(context.Background(), token)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestLookup_NoQualifyingPair(t *testing.T) {
	var hits int32
	srv := newServer(t, pairsJSON, &hits)

	c := dexscreener.NewClient(dexscreener.Config{BaseURL: srv.URL, MinPairLiquidityUSD: 1_000_000})
	_, err := c.Lookup(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestLookup_EmptyPairs(t *testing.T) {
	var hits int32
	srv := newServer(t, `{"pairs": null}`, &hits)

	c := dexscreener.NewClient(dexscreener.Config{BaseURL: srv.URL})
	_, err := c.Lookup(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestLookup_ClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}`))
	}))
	defer srv.Close()

	c := dexscreener.NewClient(dexscreener.Config{BaseURL: srv.URL})
	_, err := c.Lookup(context.Background(), token)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
	assert.Contains(t, err.Error(), "404")
}

func TestNativePriceUSD(t *testing.T) {
	weth := `{"pairs":[{"chainId":"base","pairAddress":"0xw","baseToken":{"address":"0x4200000000000000000000000000000000000006","symbol":"WETH"},"priceUsd":"3120.55","liquidity":{"usd":50000000},"marketCap":1}]}`
	var hits int32
	srv := newServer(t, weth, &hits)

	c := dexscreener.NewClient(dexscreener.Config{BaseURL: srv.URL})
	assert.InDelta(t, 3120.55, c.NativePriceUSD(context.Background()), 1e-6)
}

func TestNativePriceUSD_Fallback(t *testing.T) {
	var hits int32
	srv := newServer(t, `{"pairs":[]}`, &hits)

	c := dexscreener.NewClient(dexscreener.Config{BaseURL: srv.URL, FallbackNativeUSD: 2000})
	assert.InDelta(t, 2000, c.NativePriceUSD(context.Background()), 1e-9)
}
