package cgroup

import "fmt"

// Unlimited is the sentinel value standing in for the kernel's "max" token
// wherever a cgroup v2 limit field is unbounded.
const Unlimited = ^uint64(0)

// DefaultPeriodUs is the CPU bandwidth period used when a caller builds a
// CpuConfig from a percentage rather than an explicit period.
const DefaultPeriodUs = 100_000

// DefaultWeight is the cgroup v2 default cpu.weight.
const DefaultWeight = 100

// CpuConfig is the (quota_us, period_us, weight) triple written to
// cpu.max and cpu.weight.
type CpuConfig struct {
	QuotaUs  uint64
	PeriodUs uint64
	Weight   uint64
}

// NewCpuConfig builds a CpuConfig with the default weight and period.
func NewCpuConfig(quotaUs uint64) CpuConfig {
	return CpuConfig{QuotaUs: quotaUs, PeriodUs: DefaultPeriodUs, Weight: DefaultWeight}
}

// CpuConfigFromPercent yields quota = period * percent / 100 at the default
// weight; a zero period selects DefaultPeriodUs. The quota is not clamped,
// so a percent above 100 gives a quota larger than the period.
func CpuConfigFromPercent(percent uint64, periodUs uint64) CpuConfig {
	if periodUs == 0 {
		periodUs = DefaultPeriodUs
	}
	return CpuConfig{
		QuotaUs:  periodUs * percent / 100,
		PeriodUs: periodUs,
		Weight:   DefaultWeight,
	}
}

// ToWire renders the cpu.max wire format: "max <period>" when unlimited,
// "<quota> <period>" otherwise.
func (c CpuConfig) ToWire() string {
	if c.QuotaUs == Unlimited {
		return fmt.Sprintf("max %d", c.PeriodUs)
	}
	return fmt.Sprintf("%d %d", c.QuotaUs, c.PeriodUs)
}

// MemoryConfig is the (max, high, min, oom_group) quadruple written to
// memory.max, memory.high, memory.min and memory.oom.group.
type MemoryConfig struct {
	Max      uint64
	High     uint64
	Min      uint64
	OOMGroup bool
}

// MemoryConfigWithLimit derives a MemoryConfig from a single ceiling: High
// defaults to 90% of Max (integer floor), Min stays at zero, and OOMGroup
// is enabled so that a single process breaching the limit takes the whole
// cgroup down with it rather than leaving siblings in an inconsistent state.
func MemoryConfigWithLimit(max uint64) MemoryConfig {
	if max == Unlimited {
		return MemoryConfig{Max: Unlimited, High: Unlimited, Min: 0, OOMGroup: true}
	}
	return MemoryConfig{
		Max:      max,
		High:     max * 9 / 10,
		Min:      0,
		OOMGroup: true,
	}
}

func maxToWire(v uint64) string {
	if v == Unlimited {
		return "max"
	}
	return fmt.Sprintf("%d", v)
}

// IoConfig is the (device, rbps, wbps, riops, wiops) tuple written to
// io.max. Only non-Unlimited fields are serialized.
type IoConfig struct {
	Device string
	Rbps   uint64
	Wbps   uint64
	Riops  uint64
	Wiops  uint64
}

// NewIoConfig builds an IoConfig with every bandwidth field unlimited.
func NewIoConfig(device string) IoConfig {
	return IoConfig{Device: device, Rbps: Unlimited, Wbps: Unlimited, Riops: Unlimited, Wiops: Unlimited}
}

// ToWire renders the io.max wire format: "<major:minor>[ rbps=N][ wbps=N][ riops=N][ wiops=N]".
func (c IoConfig) ToWire() string {
	line := c.Device
	if c.Rbps != Unlimited {
		line += fmt.Sprintf(" rbps=%d", c.Rbps)
	}
	if c.Wbps != Unlimited {
		line += fmt.Sprintf(" wbps=%d", c.Wbps)
	}
	if c.Riops != Unlimited {
		line += fmt.Sprintf(" riops=%d", c.Riops)
	}
	if c.Wiops != Unlimited {
		line += fmt.Sprintf(" wiops=%d", c.Wiops)
	}
	return line
}
