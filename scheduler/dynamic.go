//go:build linux

package scheduler

import (
	"time"

	"github.com/sakamoro/alice-container/cgroup"
)

// DynamicConfig holds the tunables for the polling CPU scheduler.
type DynamicConfig struct {
	TargetLatencyUs    uint64
	MinQuotaUs         uint64
	MaxQuotaUs         uint64
	PeriodUs           uint64
	TickInterval       time.Duration
	BurstMultiplier    float64
	ThrottleMultiplier float64
	LowUtilThreshold   float64
}

// DefaultDynamicConfig is the scheduler's baseline: a 1ms target latency
// ceiling, quota bounded to [10ms, 100ms] of a 100ms period, polled every
// 10ms.
func DefaultDynamicConfig() DynamicConfig {
	return DynamicConfig{
		TargetLatencyUs:    1000,
		MinQuotaUs:         10_000,
		MaxQuotaUs:         100_000,
		PeriodUs:           100_000,
		TickInterval:       10 * time.Millisecond,
		BurstMultiplier:    1.5,
		ThrottleMultiplier: 0.8,
		LowUtilThreshold:   0.5,
	}
}

// LowLatencyConfig favors responsiveness over throughput: a tight target,
// a 1ms poll, and an aggressive burst multiplier.
func LowLatencyConfig() DynamicConfig {
	cfg := DefaultDynamicConfig()
	cfg.TargetLatencyUs = 100
	cfg.MinQuotaUs = 50_000
	cfg.TickInterval = time.Millisecond
	cfg.BurstMultiplier = 2.0
	return cfg
}

// BatchConfig favors throughput: a loose target, a slower poll, and a
// gentle burst multiplier, with a lower quota ceiling.
func BatchConfig() DynamicConfig {
	cfg := DefaultDynamicConfig()
	cfg.TargetLatencyUs = 100_000
	cfg.MaxQuotaUs = 50_000
	cfg.TickInterval = 100 * time.Millisecond
	cfg.BurstMultiplier = 1.2
	return cfg
}

// Decision is the outcome of one Tick call.
type Decision struct {
	Kind DecisionKind
	New  uint64
}

// DecisionKind classifies a Decision.
type DecisionKind int

const (
	TooSoon DecisionKind = iota
	Idle
	Maintain
	Adjust
)

func (k DecisionKind) String() string {
	switch k {
	case TooSoon:
		return "too_soon"
	case Idle:
		return "idle"
	case Maintain:
		return "maintain"
	default:
		return "adjust"
	}
}

// Dynamic polls cpu.stat on a fixed interval and nudges cpu.max's quota up
// or down based on observed utilization since the previous tick.
type Dynamic struct {
	ctrl *cgroup.Controller
	cfg  DynamicConfig
	now  func() time.Time

	started      bool
	currentQuota uint64
	lastTick     time.Time
	lastUsage    uint64
}

// NewDynamic builds a Dynamic scheduler bound to ctrl.
func NewDynamic(ctrl *cgroup.Controller, cfg DynamicConfig) *Dynamic {
	return &Dynamic{ctrl: ctrl, cfg: cfg, now: time.Now}
}

// Start writes the initial quota (the configured maximum) and captures the
// current instant as the scheduler's baseline.
func (d *Dynamic) Start() error {
	usage, err := d.ctrl.CPUUsageUs()
	if err != nil {
		return &Error{Code: OsError, Err: err}
	}
	quota := d.cfg.MaxQuotaUs
	if err := d.ctrl.WriteCPUMax(&quota, d.cfg.PeriodUs); err != nil {
		return &Error{Code: OsError, Err: err}
	}
	d.started = true
	d.currentQuota = quota
	d.lastTick = d.now()
	d.lastUsage = usage
	return nil
}

// Stop removes the quota ceiling by writing "max <period>".
func (d *Dynamic) Stop() error {
	if err := d.ctrl.WriteCPUMax(nil, d.cfg.PeriodUs); err != nil {
		return &Error{Code: OsError, Err: err}
	}
	d.started = false
	return nil
}

// Tick evaluates observed CPU utilization since the previous tick and
// decides whether to burst, throttle, or hold the current quota steady.
func (d *Dynamic) Tick() (Decision, error) {
	if !d.started {
		return Decision{Kind: Idle}, nil
	}

	now := d.now()
	elapsed := now.Sub(d.lastTick)
	if elapsed < d.cfg.TickInterval {
		return Decision{Kind: TooSoon}, nil
	}

	usage, err := d.ctrl.CPUUsageUs()
	if err != nil {
		return Decision{}, &Error{Code: OsError, Err: err}
	}

	delta := uint64(0)
	if usage > d.lastUsage {
		delta = usage - d.lastUsage
	}
	elapsedUs := float64(elapsed.Microseconds())
	utilization := 0.0
	if elapsedUs > 0 {
		utilization = float64(delta) / elapsedUs
	}

	current := d.currentQuota
	newQuota := current
	kind := Maintain

	switch {
	case utilization > 0.9 && current < d.cfg.MaxQuotaUs:
		newQuota = minU64(scale(current, d.cfg.BurstMultiplier), d.cfg.MaxQuotaUs)
		kind = Adjust
	case utilization < d.cfg.LowUtilThreshold && current > d.cfg.MinQuotaUs:
		newQuota = maxU64(scale(current, d.cfg.ThrottleMultiplier), d.cfg.MinQuotaUs)
		kind = Adjust
	}

	if newQuota == current {
		kind = Maintain
	}

	d.lastTick = now
	d.lastUsage = usage

	if kind == Adjust {
		if err := d.ctrl.WriteCPUMax(&newQuota, d.cfg.PeriodUs); err != nil {
			return Decision{}, &Error{Code: OsError, Err: err}
		}
		d.currentQuota = newQuota
		return Decision{Kind: Adjust, New: newQuota}, nil
	}
	return Decision{Kind: Maintain}, nil
}

// CurrentQuota returns the scheduler's last-written cpu.max quota in
// microseconds, for a telemetry collaborator to sample after a Tick.
func (d *Dynamic) CurrentQuota() uint64 { return d.currentQuota }

// Running reports whether Start has been called without a matching Stop.
func (d *Dynamic) Running() bool { return d.started }

// BurstMode is a one-shot override that raises the quota to the configured
// maximum immediately.
func (d *Dynamic) BurstMode() error { return d.SetQuota(d.cfg.MaxQuotaUs) }

// Throttle is a one-shot override that lowers the quota to the configured
// minimum immediately.
func (d *Dynamic) Throttle() error { return d.SetQuota(d.cfg.MinQuotaUs) }

// SetQuota clamps v to [MinQuotaUs, MaxQuotaUs] and writes it to cpu.max.
func (d *Dynamic) SetQuota(v uint64) error {
	clamped := v
	if clamped < d.cfg.MinQuotaUs {
		clamped = d.cfg.MinQuotaUs
	}
	if clamped > d.cfg.MaxQuotaUs {
		clamped = d.cfg.MaxQuotaUs
	}
	if err := d.ctrl.WriteCPUMax(&clamped, d.cfg.PeriodUs); err != nil {
		return &Error{Code: OsError, Err: err}
	}
	d.currentQuota = clamped
	return nil
}

func scale(v uint64, factor float64) uint64 {
	return uint64(float64(v) * factor)
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
