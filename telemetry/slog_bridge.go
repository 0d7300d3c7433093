package telemetry

import "log/slog"

// SlogBridge is the default Bridge implementation: it logs every scheduler
// tick and resource sample through a structured logger instead of shipping
// them anywhere, so a caller gets a working collaborator without standing
// up a real telemetry transport.
type SlogBridge struct {
	log *slog.Logger
}

// NewSlogBridge wraps log as a Bridge.
func NewSlogBridge(log *slog.Logger) *SlogBridge {
	return &SlogBridge{log: log}
}

func (b *SlogBridge) ObserveScheduler(stats SchedulerStats) {
	b.log.Debug("scheduler tick",
		slog.Uint64("quota_us", stats.CurrentQuotaUs),
		slog.Uint64("min_quota_us", stats.MinQuotaUs),
		slog.Uint64("max_quota_us", stats.MaxQuotaUs),
		slog.Bool("running", stats.Running),
	)
}

func (b *SlogBridge) ObserveSample(sample Sample) {
	b.log.Debug("resource sample",
		slog.Uint64("container_id", sample.ContainerID),
		slog.Float64("cpu_percent", sample.CPUPercent),
		slog.Uint64("memory_bytes", sample.MemoryBytes),
	)
}
