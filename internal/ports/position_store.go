package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/smartmoney/internal/domain"
)

// PositionStore persists open positions, closed trades and strategy risk state.
type PositionStore interface {
	InsertPosition(ctx context.Context, p domain.Position) error
	UpdatePosition(ctx context.Context, p domain.Position) error
	DeletePosition(ctx context.Context, strategyID, token string) error
	LoadOpenPositions(ctx context.Context, strategyID string) ([]domain.Position, error)

	AppendClosedTrade(ctx context.Context, t domain.ClosedTrade) error
	ClosedTrades(ctx context.Context, strategyID string, since time.Time) ([]domain.ClosedTrade, error)

	SaveStrategyState(ctx context.Context, s domain.StrategyState) error
	LoadStrategyState(ctx context.Context, strategyID string) (domain.StrategyState, error)
}

// FakeAlertRecorder keeps the wallets that took part in alerts that failed re-validation.
type FakeAlertRecorder interface {
	RecordFakeAlert(ctx context.Context, token, symbol string, wallets []string, reason string) error
	FlaggedWallets(ctx context.Context, threshold int) ([]string, error)
}
