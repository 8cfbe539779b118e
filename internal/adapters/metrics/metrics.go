package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alejandrodnm/smartmoney/internal/ports"
)

// Compile-time interface checks.
var (
	_ ports.MonitorMetrics = (*Metrics)(nil)
	_ ports.EngineMetrics  = (*Metrics)(nil)
)

// Metrics groups every Prometheus collector of the monitor and the trader.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	BlocksProcessed    prometheus.Counter
	BlockLag           prometheus.Gauge
	TransfersSeen      prometheus.Counter
	CandidatesRejected *prometheus.CounterVec
	Alerts             *prometheus.CounterVec
	SignalsEnqueued    *prometheus.CounterVec
	RPCRotations       *prometheus.CounterVec
	ActiveRPC          prometheus.Gauge
	Entries            *prometheus.CounterVec
	EntriesRejected    *prometheus.CounterVec
	Exits              *prometheus.CounterVec
	OpenPositions      *prometheus.GaugeVec
	Exposure           *prometheus.GaugeVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		BlocksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartmoney_blocks_processed_total",
			Help: "Blocks scanned by the monitor",
		}),
		BlockLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartmoney_block_lag",
			Help: "Blocks between chain head and the last processed block",
		}),
		TransfersSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartmoney_transfers_seen_total",
			Help: "Token transfers into watched wallets",
		}),
		CandidatesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartmoney_candidates_rejected_total",
			Help: "Candidates rejected by the classifier or the filter chain",
		}, []string{"stage"}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartmoney_alerts_total",
			Help: "Alerts emitted by kind",
		}, []string{"kind"}),
		SignalsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartmoney_signals_enqueued_total",
			Help: "Enqueue attempts by trigger and outcome",
		}, []string{"trigger", "outcome"}),
		RPCRotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartmoney_rpc_rotations_total",
			Help: "Endpoint rotations by reason",
		}, []string{"reason"}),
		ActiveRPC: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartmoney_rpc_active_index",
			Help: "Index of the active RPC endpoint",
		}),
		Entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartmoney_entries_total",
			Help: "Positions opened by strategy",
		}, []string{"strategy"}),
		EntriesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartmoney_entries_rejected_total",
			Help: "Signals rejected by entry gating",
		}, []string{"strategy"}),
		Exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartmoney_exits_total",
			Help: "Exits by strategy and reason",
		}, []string{"strategy", "reason"}),
		OpenPositions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "smartmoney_open_positions",
			Help: "Open positions by strategy",
		}, []string{"strategy"}),
		Exposure: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "smartmoney_exposure_native",
			Help: "Native cost basis of open positions by strategy",
		}, []string{"strategy"}),
	}
	m.registry.MustRegister(
		m.BlocksProcessed, m.BlockLag, m.TransfersSeen, m.CandidatesRejected, m.Alerts,
		m.SignalsEnqueued, m.RPCRotations, m.ActiveRPC, m.Entries, m.EntriesRejected,
		m.Exits, m.OpenPositions, m.Exposure,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) BlockProcessed(lag uint64) {
	if m == nil {
		return
	}
	m.BlocksProcessed.Inc()
	m.BlockLag.Set(float64(lag))
}

func (m *Metrics) TransferSeen() {
	if m == nil {
		return
	}
	m.TransfersSeen.Inc()
}

func (m *Metrics) Rejected(stage string) {
	if m == nil {
		return
	}
	m.CandidatesRejected.WithLabelValues(stage).Inc()
}

func (m *Metrics) Alert(kind string) {
	if m == nil {
		return
	}
	m.Alerts.WithLabelValues(kind).Inc()
}

func (m *Metrics) SignalEnqueued(trigger, outcome string) {
	if m == nil {
		return
	}
	m.SignalsEnqueued.WithLabelValues(trigger, outcome).Inc()
}

func (m *Metrics) Rotation(reason string, active int) {
	if m == nil {
		return
	}
	m.RPCRotations.WithLabelValues(reason).Inc()
	m.ActiveRPC.Set(float64(active))
}

func (m *Metrics) Entry(strategy string) {
	if m == nil {
		return
	}
	m.Entries.WithLabelValues(strategy).Inc()
}

func (m *Metrics) EntryRejected(strategy string) {
	if m == nil {
		return
	}
	m.EntriesRejected.WithLabelValues(strategy).Inc()
}

func (m *Metrics) Exit(strategy, reason string) {
	if m == nil {
		return
	}
	m.Exits.WithLabelValues(strategy, reason).Inc()
}

func (m *Metrics) Book(strategy string, open int, exposure float64) {
	if m == nil {
		return
	}
	m.OpenPositions.WithLabelValues(strategy).Set(float64(open))
	m.Exposure.WithLabelValues(strategy).Set(exposure)
}
