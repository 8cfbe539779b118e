package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/smartmoney/internal/domain"
)

// SignalQueue is the durable hand-off between the monitor and the trader.
type SignalQueue interface {
	// Enqueue inserts a signal unless an active one for the token exists within cooldown.
	// Returns domain.ErrDuplicateSignal in that case.
	Enqueue(ctx context.Context, req domain.SignalRequest, cooldown time.Duration) (domain.TradeSignal, error)

	// Dequeue claims up to limit signals in status for trigger, created within maxAge,
	// moving them to processing in the same step (approved and pending only).
	Dequeue(ctx context.Context, status domain.SignalStatus, trigger string, maxAge time.Duration, limit int) ([]domain.TradeSignal, error)

	// Transition moves a signal to status if the state machine allows it.
	Transition(ctx context.Context, id int64, status domain.SignalStatus, result *domain.SignalResult) error

	// Expire sweeps non-terminal signals older than the policy allows.
	Expire(ctx context.Context, policy domain.ExpiryPolicy) (int, error)

	ListByStatus(ctx context.Context, status domain.SignalStatus, limit int) ([]domain.TradeSignal, error)
	CountByStatus(ctx context.Context) (map[domain.SignalStatus]int, error)
	Close() error
}
