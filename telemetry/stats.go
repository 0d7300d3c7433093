package telemetry

// SchedulerStats is a read-only per-tick view of a CPU scheduler's state,
// handed to a telemetry bridge after each successful Dynamic Tick without
// granting it any way to mutate the scheduler. PSI events do not produce
// one.
type SchedulerStats struct {
	CurrentQuotaUs uint64
	MinQuotaUs     uint64
	MaxQuotaUs     uint64
	Running        bool
}

// Sample is a read-only per-sample resource snapshot for one container,
// the unit a telemetry bridge accumulates into whatever aggregate it
// wants (percentiles, cardinality estimates, anomaly scores) — none of
// which is this package's concern.
type Sample struct {
	ContainerID uint64
	CPUPercent  float64
	MemoryBytes uint64
}

// Bridge is the narrow, write-only-from-the-core contract a telemetry
// collaborator implements: the core calls these two methods and never
// reads anything back. Any aggregation, sketching, or persistence is
// entirely the bridge implementation's business.
type Bridge interface {
	ObserveScheduler(stats SchedulerStats)
	ObserveSample(sample Sample)
}
