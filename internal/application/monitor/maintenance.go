package monitor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/smartmoney/internal/application/message"
)

// seenRetention is how many blocks a handled log stays in the dedup set.
const seenRetention = 100

// Maintain runs the periodic work interleaved with block processing:
// confirmation checks, RPC health, window and dedup pruning, retention and a status line.
func (m *Monitor) Maintain(ctx context.Context) {
	if approved, skipped, err := m.confirm.Run(ctx); err != nil {
		slog.Warn("monitor: confirmation check failed", "err", err)
	} else if approved+skipped > 0 {
		slog.Info("monitor: confirmations", "approved", approved, "skipped", skipped)
	}

	m.checkHealth(ctx)

	if !m.lastTime.IsZero() {
		m.deps.Aggregator.Prune(m.lastTime)
	}
	if m.next > seenRetention {
		floor := m.next - seenRetention
		for k, b := range m.seen {
			if b < floor {
				delete(m.seen, k)
			}
		}
	}

	if m.deps.Pruner != nil {
		if n, err := m.deps.Pruner.Prune(ctx); err != nil {
			slog.Warn("monitor: prune failed", "err", err)
		} else if n > 0 {
			slog.Info("monitor: pruned old rows", "rows", n)
		}
	}

	counts, err := m.deps.Queue.CountByStatus(ctx)
	if err != nil {
		slog.Warn("monitor: queue counts failed", "err", err)
	}
	h := m.deps.Chain.Health()
	slog.Info("monitor: status",
		"next_block", m.next,
		"processed", m.processed,
		"tracked_tokens", m.deps.Aggregator.Tracked(),
		"rpc", h.ActiveEndpoint,
		"rotations", h.Rotations,
		"queue", fmt.Sprint(counts),
	)
}

// checkHealth notifies endpoint rotations and raises an operator alert once
// every endpoint has been failing for longer than ExhaustedAlertAfter.
func (m *Monitor) checkHealth(ctx context.Context) {
	h := m.deps.Chain.Health()
	now := m.now()

	if m.lastEndpoint != "" && h.ActiveEndpoint != m.lastEndpoint {
		m.notify(ctx, message.Rotation(h, "consecutive errors on "+m.lastEndpoint))
	}
	m.lastEndpoint = h.ActiveEndpoint

	switch {
	case !h.ExhaustedSince.IsZero() && now.Sub(h.ExhaustedSince) >= m.cfg.ExhaustedAlertAfter && !m.degraded:
		m.degraded = true
		slog.Error("monitor: all rpc endpoints failing", "since", h.ExhaustedSince)
		m.notify(ctx, message.Degraded(h, now))
	case h.ExhaustedSince.IsZero() && m.degraded:
		m.degraded = false
		slog.Info("monitor: rpc recovered", "endpoint", h.ActiveEndpoint)
		m.notify(ctx, "✅ RPC recovered on "+h.ActiveEndpoint)
	}
}
