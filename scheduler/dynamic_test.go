//go:build linux

package scheduler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sakamoro/alice-container/cgroup"
	"github.com/stretchr/testify/require"
)

func fakeCgroup(t *testing.T) *cgroup.Controller {
	t.Helper()
	dir := t.TempDir()
	prevRoot := cgroup.Root
	cgroup.Root = dir
	t.Cleanup(func() { cgroup.Root = prevRoot })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "cgroup.subtree_control"), nil, 0o644))

	ctrl, err := cgroup.Create("t", "c")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(ctrl.Path(), "cpu.max"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ctrl.Path(), "cpu.stat"), []byte("usage_usec 0\n"), 0o644))
	return ctrl
}

func setUsage(t *testing.T, ctrl *cgroup.Controller, usec uint64) {
	t.Helper()
	content := []byte("usage_usec " + itoa(usec) + "\n")
	require.NoError(t, os.WriteFile(filepath.Join(ctrl.Path(), "cpu.stat"), content, 0o644))
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

func TestDynamicStartWritesMaxQuota(t *testing.T) {
	ctrl := fakeCgroup(t)
	d := NewDynamic(ctrl, DefaultDynamicConfig())
	require.NoError(t, d.Start())

	b, err := os.ReadFile(filepath.Join(ctrl.Path(), "cpu.max"))
	require.NoError(t, err)
	require.Equal(t, "100000 100000", string(b))
}

func TestDynamicTickIdleBeforeStart(t *testing.T) {
	ctrl := fakeCgroup(t)
	d := NewDynamic(ctrl, DefaultDynamicConfig())
	decision, err := d.Tick()
	require.NoError(t, err)
	require.Equal(t, Idle, decision.Kind)
}

func TestDynamicTickTooSoon(t *testing.T) {
	ctrl := fakeCgroup(t)
	d := NewDynamic(ctrl, DefaultDynamicConfig())
	require.NoError(t, d.Start())

	decision, err := d.Tick()
	require.NoError(t, err)
	require.Equal(t, TooSoon, decision.Kind)
}

func TestDynamicTickBurstsOnHighUtilization(t *testing.T) {
	ctrl := fakeCgroup(t)
	cfg := DefaultDynamicConfig()
	cfg.MaxQuotaUs = 100_000
	d := NewDynamic(ctrl, cfg)
	require.NoError(t, d.Start())
	d.currentQuota = 50_000
	require.NoError(t, d.ctrl.WriteCPUMax(&d.currentQuota, cfg.PeriodUs))

	fixed := d.lastTick.Add(-cfg.TickInterval - time.Millisecond)
	d.lastTick = fixed
	setUsage(t, ctrl, 95_000) // 95ms of CPU over the ~11ms window: far above the 0.9 burst threshold

	decision, err := d.Tick()
	require.NoError(t, err)
	require.Equal(t, Adjust, decision.Kind)
	require.Equal(t, uint64(75_000), decision.New) // 50_000 * 1.5
}

func TestDynamicTickThrottlesOnLowUtilization(t *testing.T) {
	ctrl := fakeCgroup(t)
	cfg := DefaultDynamicConfig()
	d := NewDynamic(ctrl, cfg)
	require.NoError(t, d.Start())

	fixed := d.lastTick.Add(-cfg.TickInterval - time.Millisecond)
	d.lastTick = fixed
	setUsage(t, ctrl, 2_000) // well under LowUtilThreshold given an ~11ms window

	decision, err := d.Tick()
	require.NoError(t, err)
	require.Equal(t, Adjust, decision.Kind)
	require.Equal(t, uint64(80_000), decision.New) // 100_000 * 0.8
}

func TestDynamicSetQuotaClamps(t *testing.T) {
	ctrl := fakeCgroup(t)
	d := NewDynamic(ctrl, DefaultDynamicConfig())
	require.NoError(t, d.Start())

	require.NoError(t, d.SetQuota(1))
	b, err := os.ReadFile(filepath.Join(ctrl.Path(), "cpu.max"))
	require.NoError(t, err)
	require.Equal(t, "10000 100000", string(b))
}

func TestDynamicStopWritesUnlimited(t *testing.T) {
	ctrl := fakeCgroup(t)
	d := NewDynamic(ctrl, DefaultDynamicConfig())
	require.NoError(t, d.Start())
	require.NoError(t, d.Stop())

	b, err := os.ReadFile(filepath.Join(ctrl.Path(), "cpu.max"))
	require.NoError(t, err)
	require.Equal(t, "max 100000", string(b))
}
