package filter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/smartmoney/internal/application/filter"
	"github.com/alejandrodnm/smartmoney/internal/domain"
)

const weth = "0x4200000000000000000000000000000000000006"

func baseConfig() filter.Config {
	return filter.Config{
		ExcludedTokens:   []string{weth},
		ExcludedSymbols:  []string{"USDC", "WETH"},
		RequireSwapEvent: true,
		MinLiquidityUSD:  5_000,
		DustNative:       0.001,
		MaxMcapUSD:       300_000,
		MinVolumeUSD:     1_000,
		MinTxns24h:       15,
	}
}

func goodCandidate() domain.Candidate {
	return domain.Candidate{
		Wallet:         "0xw1",
		Token:          "0xtoken",
		ValueNative:    0.05,
		HasSwapEvent:   true,
		Classification: domain.Classification{Kind: domain.TxSwap},
	}
}

func goodInfo() domain.TokenInfo {
	return domain.TokenInfo{Symbol: "PEPE", MarketCapUSD: 120_000, LiquidityUSD: 20_000, Volume24hUSD: 50_000, Buys24h: 40, Sells24h: 10}
}

func TestIngestion_Admits(t *testing.T) {
	v := filter.NewIngestion(baseConfig()).Admit(goodCandidate(), goodInfo())
	assert.True(t, v.Allow)
}

func TestIngestion_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *domain.Candidate, i *domain.TokenInfo)
		want   string
	}{
		{"excluded address, mixed case", func(c *domain.Candidate, _ *domain.TokenInfo) {
			c.Token = "0x4200000000000000000000000000000000000006"
		}, "excluded_token"},
		{"excluded symbol", func(_ *domain.Candidate, i *domain.TokenInfo) { i.Symbol = "usdc" }, "excluded_token"},
		{"airdrop", func(c *domain.Candidate, _ *domain.TokenInfo) {
			c.Classification = domain.Classification{Kind: domain.TxAirdrop, Skip: true, Reason: "airdrop selector"}
		}, "verified_swap"},
		{"no swap event", func(c *domain.Candidate, _ *domain.TokenInfo) { c.HasSwapEvent = false }, "verified_swap"},
		{"thin liquidity", func(_ *domain.Candidate, i *domain.TokenInfo) { i.LiquidityUSD = 100 }, "liquidity"},
		{"dust", func(c *domain.Candidate, _ *domain.TokenInfo) { c.ValueNative = 0.0001 }, "dust"},
		{"mcap over ceiling", func(_ *domain.Candidate, i *domain.TokenInfo) { i.MarketCapUSD = 300_001 }, "mcap"},
		{"low volume", func(_ *domain.Candidate, i *domain.TokenInfo) { i.Volume24hUSD = 10 }, "volume"},
		{"few txns", func(_ *domain.Candidate, i *domain.TokenInfo) { i.Buys24h, i.Sells24h = 1, 0 }, "txns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, i := goodCandidate(), goodInfo()
			tt.mutate(&c, &i)
			v := filter.NewIngestion(baseConfig()).Admit(c, i)
			assert.False(t, v.Allow)
			assert.Equal(t, tt.want, v.Predicate)
			assert.NotEmpty(t, v.Reason)
		})
	}
}

func TestChain_FirstFailureWins(t *testing.T) {
	c, i := goodCandidate(), goodInfo()
	c.ValueNative = 0
	i.MarketCapUSD = 10_000_000
	v := filter.NewIngestion(baseConfig()).Admit(c, i)
	assert.Equal(t, "dust", v.Predicate)
}

func TestChain_Order(t *testing.T) {
	names := filter.NewIngestion(baseConfig()).Names()
	assert.Equal(t, []string{"excluded_token", "verified_swap", "liquidity", "dust", "mcap", "volume", "txns"}, names)
}

func TestAlertRecheck(t *testing.T) {
	ch := filter.NewAlertRecheck(baseConfig())

	assert.True(t, ch.Admit(domain.Candidate{}, goodInfo()).Allow)

	low := goodInfo()
	low.Volume24hUSD = 999
	assert.Equal(t, "volume", ch.Admit(domain.Candidate{}, low).Predicate)

	quiet := goodInfo()
	quiet.Buys24h, quiet.Sells24h = 10, 4
	assert.Equal(t, "txns", ch.Admit(domain.Candidate{}, quiet).Predicate)
}

func TestMcapBand_ZeroDisables(t *testing.T) {
	p := filter.McapBand(0, 0)
	assert.True(t, p.Evaluate(domain.Candidate{}, domain.TokenInfo{MarketCapUSD: 1e12}).Allow)

	floor := filter.McapBand(50_000, 0)
	assert.False(t, floor.Evaluate(domain.Candidate{}, domain.TokenInfo{MarketCapUSD: 10_000}).Allow)
}
