package monitor

import (
	"context"

	"github.com/alejandrodnm/smartmoney/internal/application/message"
	"github.com/alejandrodnm/smartmoney/internal/ports"
)

// NotifyingFakes wraps a FakeAlertRecorder so every recorded fake alert is also
// sent to the operator.
func NotifyingFakes(rec ports.FakeAlertRecorder, n ports.Notifier) ports.FakeAlertRecorder {
	return &notifyingFakes{FakeAlertRecorder: rec, notifier: n}
}

type notifyingFakes struct {
	ports.FakeAlertRecorder
	notifier ports.Notifier
}

func (f *notifyingFakes) RecordFakeAlert(ctx context.Context, token, symbol string, wallets []string, reason string) error {
	if f.notifier != nil {
		_ = f.notifier.Notify(ctx, message.FakeAlert(token, symbol, reason, len(wallets)))
	}
	if f.FakeAlertRecorder == nil {
		return nil
	}
	return f.FakeAlertRecorder.RecordFakeAlert(ctx, token, symbol, wallets, reason)
}
