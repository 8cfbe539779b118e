package ports

import (
	"context"

	"github.com/alejandrodnm/smartmoney/internal/domain"
)

// TradeExecutor executes buys and sells for one strategy, virtual or on-chain.
type TradeExecutor interface {
	// Balance returns the spendable native balance.
	Balance(ctx context.Context) (float64, error)
	Buy(ctx context.Context, req domain.BuyRequest) (domain.Fill, error)
	Sell(ctx context.Context, req domain.SellRequest) (domain.Fill, error)
}
