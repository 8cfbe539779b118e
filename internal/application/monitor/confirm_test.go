package monitor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/smartmoney/internal/application/monitor"
	"github.com/alejandrodnm/smartmoney/internal/domain"
)

func pendingConfirmation(t *testing.T, q *fakeQueue, token string, mcap float64) domain.TradeSignal {
	t.Helper()
	s, err := q.Enqueue(context.Background(), domain.SignalRequest{
		Token: token, Symbol: "TKN", EntryMcap: mcap, TriggerType: domain.TriggerSmartMoney,
		WalletCount: 3, Status: domain.SignalPendingConfirmation,
	}, time.Hour)
	require.NoError(t, err)
	return s
}

func newConfirmer(q *fakeQueue, tokens *fakeTokens, now time.Time) *monitor.Confirmer {
	c := monitor.NewConfirmer(monitor.ConfirmConfig{Delay: 5 * time.Minute, MinChangePct: 20, DeadTokenMcap: 10_000}, q, tokens)
	return c.WithClock(func() time.Time { return now })
}

func TestConfirmer_ApprovesOnMomentum(t *testing.T) {
	q := newFakeQueue()
	s := pendingConfirmation(t, q, "0xaaa", 100_000)

	c := newConfirmer(q, &fakeTokens{info: domain.TokenInfo{MarketCapUSD: 150_000}}, t0.Add(6*time.Minute))
	approved, skipped, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, approved)
	assert.Equal(t, 0, skipped)

	got := q.signals[s.ID-1]
	assert.Equal(t, domain.SignalApproved, got.Status)
	require.NotNil(t, got.Result)
	assert.InDelta(t, 50, got.Result.ChangePct, 0.001)
	assert.InDelta(t, 150_000, got.Result.MarketCapNow, 0.001)
}

func TestConfirmer_SkipsDeadToken(t *testing.T) {
	q := newFakeQueue()
	s := pendingConfirmation(t, q, "0xaaa", 100_000)

	c := newConfirmer(q, &fakeTokens{info: domain.TokenInfo{MarketCapUSD: 4_000}}, t0.Add(6*time.Minute))
	_, skipped, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)

	got := q.signals[s.ID-1]
	assert.Equal(t, domain.SignalSkipped, got.Status)
	assert.Equal(t, "dead_token", got.Result.Reason)
}

func TestConfirmer_LeavesFlatAndRecentSignals(t *testing.T) {
	q := newFakeQueue()
	pendingConfirmation(t, q, "0xaaa", 100_000)

	// Flat market cap: left for the expiry sweep.
	c := newConfirmer(q, &fakeTokens{info: domain.TokenInfo{MarketCapUSD: 110_000}}, t0.Add(6*time.Minute))
	approved, skipped, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, approved+skipped)

	// Before the delay nothing is looked up.
	tokens := &fakeTokens{info: domain.TokenInfo{MarketCapUSD: 500_000}}
	c = newConfirmer(q, tokens, t0.Add(time.Minute))
	approved, _, err = c.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, approved)
	assert.Zero(t, tokens.lookups)
	assert.Equal(t, domain.SignalPendingConfirmation, q.signals[0].Status)
}

type fakeRecorder struct {
	recorded []string
}

func (r *fakeRecorder) RecordFakeAlert(_ context.Context, token, _ string, _ []string, _ string) error {
	r.recorded = append(r.recorded, token)
	return nil
}

func (r *fakeRecorder) FlaggedWallets(context.Context, int) ([]string, error) {
	return []string{"0xw"}, nil
}

func TestNotifyingFakes(t *testing.T) {
	rec := &fakeRecorder{}
	n := &recordingNotifier{}
	wrapped := monitor.NotifyingFakes(rec, n)

	require.NoError(t, wrapped.RecordFakeAlert(context.Background(), "0xaaa", "RUG", []string{"0x1", "0x2", "0x3"}, "24h volume $10 below $10000"))
	assert.Equal(t, []string{"0xaaa"}, rec.recorded)
	assert.Equal(t, 1, n.count("FAKE ALERT"))

	flagged, err := wrapped.FlaggedWallets(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xw"}, flagged)
}
