package cgroup

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCpuConfigFromPercentRoundTrip(t *testing.T) {
	const period = DefaultPeriodUs
	for p := uint64(0); p <= 100; p++ {
		cfg := CpuConfigFromPercent(p, period)
		require.Equal(t, p, cfg.QuotaUs*100/period, "percent %d round-trips", p)
	}
}

func TestCpuConfigToWire(t *testing.T) {
	unlimited := CpuConfig{QuotaUs: Unlimited, PeriodUs: 100000}
	assert.Equal(t, "max 100000", unlimited.ToWire())

	limited := CpuConfig{QuotaUs: 50000, PeriodUs: 100000}
	assert.Equal(t, "50000 100000", limited.ToWire())
}

func TestCpuConfigFromPercentScenario(t *testing.T) {
	cfg := CpuConfigFromPercent(50, DefaultPeriodUs)
	assert.Equal(t, "50000 100000", cfg.ToWire())
}

func TestMemoryConfigWithLimit(t *testing.T) {
	cfg := MemoryConfigWithLimit(256 * 1024 * 1024)
	assert.Equal(t, uint64(268435456), cfg.Max)
	assert.Equal(t, uint64(241591910), cfg.High)
	assert.Equal(t, uint64(0), cfg.Min)
	assert.True(t, cfg.OOMGroup)
}

func TestMemoryConfigUnlimited(t *testing.T) {
	cfg := MemoryConfigWithLimit(Unlimited)
	assert.Equal(t, "max", maxToWire(cfg.Max))
	assert.Equal(t, "max", maxToWire(cfg.High))
}

func TestIoConfigToWire(t *testing.T) {
	cfg := IoConfig{Device: "8:0", Rbps: 1048576, Wbps: 524288, Riops: Unlimited, Wiops: Unlimited}
	assert.Equal(t, "8:0 rbps=1048576 wbps=524288", cfg.ToWire())
}

func TestIoConfigAllFields(t *testing.T) {
	cfg := IoConfig{Device: "8:0", Rbps: 1, Wbps: 2, Riops: 3, Wiops: 4}
	wire := cfg.ToWire()
	for _, want := range []string{"8:0", "rbps=1", "wbps=2", "riops=3", "wiops=4"} {
		assert.Contains(t, wire, want)
	}
}

func TestIoConfigAllUnlimited(t *testing.T) {
	cfg := NewIoConfig("259:0")
	assert.Equal(t, "259:0", cfg.ToWire())
}

func ExampleCpuConfig_ToWire() {
	cfg := CpuConfigFromPercent(25, 200000)
	fmt.Println(cfg.ToWire())
	// Output: 50000 200000
}
