package paper_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/smartmoney/internal/application/engine/paper"
	"github.com/alejandrodnm/smartmoney/internal/domain"
)

func TestExecutor_BuyAndSell(t *testing.T) {
	ctx := context.Background()
	ex := paper.New(1)

	fill, err := ex.Buy(ctx, domain.BuyRequest{Token: "0xaaa", NativeAmount: 0.1, PriceUSD: 0.5, NativePriceUSD: 2500})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fill.TxHash, "paper-"))
	assert.InDelta(t, 500, fill.TokenAmount, 1e-9)

	bal, _ := ex.Balance(ctx)
	assert.InDelta(t, 0.9, bal, 1e-9)

	// Price doubled: selling half returns the full cost basis.
	fill, err = ex.Sell(ctx, domain.SellRequest{Token: "0xaaa", Amount: 500, Ratio: 0.5, PriceUSD: 1, NativePriceUSD: 2500})
	require.NoError(t, err)
	assert.InDelta(t, 250, fill.TokenAmount, 1e-9)
	assert.InDelta(t, 0.1, fill.NativeAmount, 1e-9)

	bal, _ = ex.Balance(ctx)
	assert.InDelta(t, 1.0, bal, 1e-9)
}

func TestExecutor_InsufficientBalance(t *testing.T) {
	ex := paper.New(0.05)
	_, err := ex.Buy(context.Background(), domain.BuyRequest{Token: "0xaaa", NativeAmount: 0.1, PriceUSD: 1, NativePriceUSD: 2500})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient balance")
}

func TestExecutor_NoPrice(t *testing.T) {
	ex := paper.New(1)
	_, err := ex.Buy(context.Background(), domain.BuyRequest{Token: "0xaaa", NativeAmount: 0.1, NativePriceUSD: 2500})
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestExecutor_Restore(t *testing.T) {
	ex := paper.New(1)
	ex.Restore(0.2, 0.3)
	bal, err := ex.Balance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.9, bal, 1e-9)
}
