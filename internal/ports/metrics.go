package ports

// MonitorMetrics receives the counters of the monitoring loop.
type MonitorMetrics interface {
	BlockProcessed(lag uint64)
	TransferSeen()
	Rejected(stage string)
	Alert(kind string)
	SignalEnqueued(trigger, outcome string)
}

// EngineMetrics receives the counters of one execution engine.
type EngineMetrics interface {
	Entry(strategy string)
	EntryRejected(strategy string)
	Exit(strategy, reason string)
	Book(strategy string, open int, exposure float64)
}
