package dexscreener

// DTOs raw de la API de DEXScreener. Solo se usan dentro de este paquete.
// La conversión a domain.TokenInfo se hace en mapping.go.

// tokensResponse es la respuesta de GET /latest/dex/tokens/{address}.
type tokensResponse struct {
	Pairs []pair `json:"pairs"`
}

// pair es un par de trading de un DEX.
type pair struct {
	ChainID     string     `json:"chainId"`
	DexID       string     `json:"dexId"`
	PairAddress string     `json:"pairAddress"`
	BaseToken   pairToken  `json:"baseToken"`
	QuoteToken  pairToken  `json:"quoteToken"`
	PriceNative string     `json:"priceNative"`
	PriceUSD    string     `json:"priceUsd"`
	Txns        pairTxns   `json:"txns"`
	Volume      pairVolume `json:"volume"`
	Liquidity   *pairLiq   `json:"liquidity"`
	FDV         float64    `json:"fdv"`
	MarketCap   float64    `json:"marketCap"`
}

type pairToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type pairTxns struct {
	H24 struct {
		Buys  int `json:"buys"`
		Sells int `json:"sells"`
	} `json:"h24"`
}

type pairVolume struct {
	H24 float64 `json:"h24"`
}

type pairLiq struct {
	USD float64 `json:"usd"`
}

func (p pair) liquidityUSD() float64 {
	if p.Liquidity == nil {
		return 0
	}
	return p.Liquidity.USD
}
