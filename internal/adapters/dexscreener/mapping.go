package dexscreener

import (
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/smartmoney/internal/domain"
)

// qualifyingPairs devuelve los pares de la chain configurada cuyo token base es
// el pedido y cuya liquidez alcanza el mínimo.
func qualifyingPairs(raw []pair, chainID, token string, minLiquidity float64) []pair {
	out := make([]pair, 0, len(raw))
	for _, p := range raw {
		if chainID != "" && !strings.EqualFold(p.ChainID, chainID) {
			continue
		}
		if token != "" && !strings.EqualFold(p.BaseToken.Address, token) {
			continue
		}
		if p.liquidityUSD() < minLiquidity {
			continue
		}
		out = append(out, p)
	}
	return out
}

// mapTokenInfo arma el TokenInfo desde el par más líquido. El market cap es el
// máximo entre los pares que califican (marketCap, o fdv si falta), porque
// DEXScreener a veces devuelve valores viejos en pares secundarios.
func mapTokenInfo(token string, pairs []pair, now time.Time) (domain.TokenInfo, bool) {
	if len(pairs) == 0 {
		return domain.TokenInfo{}, false
	}

	best := pairs[0]
	var mcap float64
	for _, p := range pairs {
		if p.liquidityUSD() > best.liquidityUSD() {
			best = p
		}
		m := p.MarketCap
		if m <= 0 {
			m = p.FDV
		}
		if m > mcap {
			mcap = m
		}
	}

	price, _ := strconv.ParseFloat(best.PriceUSD, 64)
	if price <= 0 {
		return domain.TokenInfo{}, false
	}

	return domain.TokenInfo{
		Address:      strings.ToLower(token),
		Symbol:       best.BaseToken.Symbol,
		Name:         best.BaseToken.Name,
		PriceUSD:     price,
		MarketCapUSD: mcap,
		LiquidityUSD: best.liquidityUSD(),
		Volume24hUSD: best.Volume.H24,
		Buys24h:      best.Txns.H24.Buys,
		Sells24h:     best.Txns.H24.Sells,
		PairAddress:  best.PairAddress,
		FetchedAt:    now,
	}, true
}
