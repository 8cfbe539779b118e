package filter

import (
	"fmt"
	"strings"

	"github.com/alejandrodnm/smartmoney/internal/domain"
)

// Config contiene los umbrales de calidad de una compra candidata.
type Config struct {
	// ExcludedTokens son direcciones que nunca cuentan como compra (WETH, stables).
	ExcludedTokens []string
	// ExcludedSymbols se comparan sin distinguir mayúsculas.
	ExcludedSymbols []string
	// RequireSwapEvent descarta inflows cuyo receipt no tiene un evento Swap.
	RequireSwapEvent bool
	MinLiquidityUSD  float64
	// DustNative descarta compras de valor estimado menor (en ETH).
	DustNative   float64
	MinMcapUSD   float64 // 0 = sin piso
	MaxMcapUSD   float64 // 0 = sin techo
	MinVolumeUSD float64
	MinTxns24h   int
}

// Verdict es el resultado de un predicado.
type Verdict struct {
	Allow     bool
	Predicate string
	Reason    string
}

func allow() Verdict { return Verdict{Allow: true} }

func reject(name, format string, args ...any) Verdict {
	return Verdict{Predicate: name, Reason: fmt.Sprintf(format, args...)}
}

// Predicate evalúa un candidato junto con la metadata del token.
type Predicate interface {
	Name() string
	Evaluate(c domain.Candidate, info domain.TokenInfo) Verdict
}

// PredicateFunc adapta una función a Predicate.
type PredicateFunc struct {
	ID string
	Fn func(c domain.Candidate, info domain.TokenInfo) Verdict
}

func (p PredicateFunc) Name() string { return p.ID }

func (p PredicateFunc) Evaluate(c domain.Candidate, info domain.TokenInfo) Verdict {
	return p.Fn(c, info)
}

// Chain aplica predicados en orden; el primero que rechaza corta la cadena.
type Chain struct {
	preds []Predicate
}

// NewChain crea una cadena con los predicados dados, en ese orden.
func NewChain(preds ...Predicate) *Chain {
	return &Chain{preds: preds}
}

// Names devuelve los nombres de los predicados en orden de evaluación.
func (ch *Chain) Names() []string {
	out := make([]string, len(ch.preds))
	for i, p := range ch.preds {
		out[i] = p.Name()
	}
	return out
}

// Admit devuelve el veredicto del primer predicado que rechaza, o allow.
func (ch *Chain) Admit(c domain.Candidate, info domain.TokenInfo) Verdict {
	for _, p := range ch.preds {
		v := p.Evaluate(c, info)
		if !v.Allow {
			if v.Predicate == "" {
				v.Predicate = p.Name()
			}
			return v
		}
	}
	return allow()
}

// NewIngestion arma la cadena que se evalúa con cada transfer entrante.
func NewIngestion(cfg Config) *Chain {
	return NewChain(
		ExcludedToken(cfg.ExcludedTokens, cfg.ExcludedSymbols),
		VerifiedSwap(cfg.RequireSwapEvent),
		LiquidityFloor(cfg.MinLiquidityUSD),
		DustFloor(cfg.DustNative),
		McapBand(cfg.MinMcapUSD, cfg.MaxMcapUSD),
		VolumeFloor(cfg.MinVolumeUSD),
		TxCountFloor(cfg.MinTxns24h),
	)
}

// NewAlertRecheck arma la cadena que se reevalúa con datos frescos justo antes de alertar.
func NewAlertRecheck(cfg Config) *Chain {
	return NewChain(
		VolumeFloor(cfg.MinVolumeUSD),
		TxCountFloor(cfg.MinTxns24h),
	)
}

// ExcludedToken rechaza tokens base (WETH, stables) por dirección o símbolo.
func ExcludedToken(addresses, symbols []string) Predicate {
	addrs := make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		addrs[strings.ToLower(a)] = struct{}{}
	}
	syms := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		syms[strings.ToUpper(s)] = struct{}{}
	}
	return PredicateFunc{ID: "excluded_token", Fn: func(c domain.Candidate, info domain.TokenInfo) Verdict {
		if _, ok := addrs[strings.ToLower(c.Token)]; ok {
			return reject("excluded_token", "token %s is excluded", c.Token)
		}
		if _, ok := syms[strings.ToUpper(info.Symbol)]; ok && info.Symbol != "" {
			return reject("excluded_token", "symbol %s is excluded", info.Symbol)
		}
		return allow()
	}}
}

// VerifiedSwap rechaza lo que el clasificador marcó como distribución y,
// si requireEvent, lo que no tiene evento Swap.
func VerifiedSwap(requireEvent bool) Predicate {
	return PredicateFunc{ID: "verified_swap", Fn: func(c domain.Candidate, _ domain.TokenInfo) Verdict {
		if c.Classification.Skip {
			return reject("verified_swap", "%s: %s", c.Classification.Kind, c.Classification.Reason)
		}
		if requireEvent && !c.HasSwapEvent {
			return reject("verified_swap", "no swap event in receipt")
		}
		return allow()
	}}
}

func LiquidityFloor(min float64) Predicate {
	return PredicateFunc{ID: "liquidity", Fn: func(_ domain.Candidate, info domain.TokenInfo) Verdict {
		if min > 0 && info.LiquidityUSD < min {
			return reject("liquidity", "liquidity $%.0f below $%.0f", info.LiquidityUSD, min)
		}
		return allow()
	}}
}

func DustFloor(min float64) Predicate {
	return PredicateFunc{ID: "dust", Fn: func(c domain.Candidate, _ domain.TokenInfo) Verdict {
		if min > 0 && c.ValueNative < min {
			return reject("dust", "purchase %.5f ETH below %.5f", c.ValueNative, min)
		}
		return allow()
	}}
}

// McapBand rechaza market caps fuera de [min, max]. Un límite en 0 no aplica.
func McapBand(min, max float64) Predicate {
	return PredicateFunc{ID: "mcap", Fn: func(_ domain.Candidate, info domain.TokenInfo) Verdict {
		if max > 0 && info.MarketCapUSD > max {
			return reject("mcap", "mcap $%.0f above $%.0f", info.MarketCapUSD, max)
		}
		if min > 0 && info.MarketCapUSD < min {
			return reject("mcap", "mcap $%.0f below $%.0f", info.MarketCapUSD, min)
		}
		return allow()
	}}
}

func VolumeFloor(min float64) Predicate {
	return PredicateFunc{ID: "volume", Fn: func(_ domain.Candidate, info domain.TokenInfo) Verdict {
		if min > 0 && info.Volume24hUSD < min {
			return reject("volume", "24h volume $%.0f below $%.0f", info.Volume24hUSD, min)
		}
		return allow()
	}}
}

func TxCountFloor(min int) Predicate {
	return PredicateFunc{ID: "txns", Fn: func(_ domain.Candidate, info domain.TokenInfo) Verdict {
		if min > 0 && info.Txns24h() < min {
			return reject("txns", "24h txns %d below %d", info.Txns24h(), min)
		}
		return allow()
	}}
}
