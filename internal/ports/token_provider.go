package ports

import (
	"context"

	"github.com/alejandrodnm/smartmoney/internal/domain"
)

// TokenInfoProvider returns market metadata for tokens.
// Lookup returns domain.ErrDataUnavailable when the token has no usable pair.
type TokenInfoProvider interface {
	Lookup(ctx context.Context, token string) (domain.TokenInfo, error)
	NativePriceUSD(ctx context.Context) float64
}
