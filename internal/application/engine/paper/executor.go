package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/alejandrodnm/smartmoney/internal/domain"
	"github.com/alejandrodnm/smartmoney/internal/ports"
)

const defaultCapital = 1.0

var _ ports.TradeExecutor = (*Executor)(nil)

// Executor simula compras y ventas contra un balance virtual en ETH.
// Los precios vienen en el request; no hay slippage ni gas.
type Executor struct {
	mu      sync.Mutex
	initial float64
	balance float64
}

// New crea un executor con initial ETH virtuales.
func New(initial float64) *Executor {
	if initial <= 0 {
		initial = defaultCapital
	}
	return &Executor{initial: initial, balance: initial}
}

// Restore recalcula el balance tras un reinicio: capital inicial + PnL realizado − costo de lo abierto.
func (e *Executor) Restore(realized, openSpent float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balance = e.initial + realized - openSpent
	slog.Info("paper: balance restored",
		"initial", fmt.Sprintf("%.4f", e.initial),
		"realized", fmt.Sprintf("%+.4f", realized),
		"open", fmt.Sprintf("%.4f", openSpent),
		"balance", fmt.Sprintf("%.4f", e.balance),
	)
}

func (e *Executor) Balance(context.Context) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance, nil
}

// Buy convierte NativeAmount en tokens al precio del request.
func (e *Executor) Buy(_ context.Context, req domain.BuyRequest) (domain.Fill, error) {
	if req.PriceUSD <= 0 || req.NativePriceUSD <= 0 {
		return domain.Fill{}, fmt.Errorf("paper.Buy: %s: %w", req.Token, domain.ErrDataUnavailable)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if req.NativeAmount > e.balance {
		return domain.Fill{}, fmt.Errorf("paper.Buy: insufficient balance %.4f < %.4f", e.balance, req.NativeAmount)
	}
	e.balance -= req.NativeAmount
	return domain.Fill{
		TxHash:       "paper-" + uuid.NewString(),
		TokenAmount:  req.NativeAmount * req.NativePriceUSD / req.PriceUSD,
		NativeAmount: req.NativeAmount,
		Decimals:     18,
	}, nil
}

// Sell vende Ratio de Amount y acredita el producido al precio actual.
func (e *Executor) Sell(_ context.Context, req domain.SellRequest) (domain.Fill, error) {
	if req.PriceUSD <= 0 || req.NativePriceUSD <= 0 {
		return domain.Fill{}, fmt.Errorf("paper.Sell: %s: %w", req.Token, domain.ErrDataUnavailable)
	}
	amount := req.Amount * req.Ratio
	if amount <= 0 {
		return domain.Fill{}, fmt.Errorf("paper.Sell: %s: nothing to sell", req.Token)
	}
	proceeds := amount * req.PriceUSD / req.NativePriceUSD

	e.mu.Lock()
	e.balance += proceeds
	e.mu.Unlock()

	return domain.Fill{
		TxHash:       "paper-" + uuid.NewString(),
		TokenAmount:  amount,
		NativeAmount: proceeds,
		FeeTier:      req.FeeTier,
		Decimals:     req.Decimals,
	}, nil
}
