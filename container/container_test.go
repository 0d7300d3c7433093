//go:build linux

package container

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sakamoro/alice-container/cgroup"
	"github.com/stretchr/testify/require"
)

func fakeCgroupRoot(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	prev := cgroup.Root
	cgroup.Root = dir
	t.Cleanup(func() { cgroup.Root = prev })
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cgroup.subtree_control"), nil, 0o644))
}

func writeRequiredCgroupFiles(t *testing.T, ctrl *cgroup.Controller) {
	t.Helper()
	for _, name := range []string{"cpu.max", "cpu.weight", "memory.max", "cgroup.procs", "cgroup.freeze"} {
		require.NoError(t, os.WriteFile(filepath.Join(ctrl.Path(), name), nil, 0o644))
	}
}

func TestCreateValidatesRootfsExists(t *testing.T) {
	fakeCgroupRoot(t)
	_, err := Create("box-1", Config{Rootfs: "/does/not/exist"}, nil)
	require.Error(t, err)
}

func TestCreateFailsWhenCgroupControllersNotEnabled(t *testing.T) {
	fakeCgroupRoot(t)
	rootfsDir := t.TempDir()

	// cpu.max/memory.max do not exist on this fake root, so SetAll fails
	// fatally with ControllerNotEnabled, and Create must surface that
	// instead of leaving a half-configured cgroup behind.
	_, err := Create("box-1", Config{Rootfs: rootfsDir, CPULimitUs: 50_000, MemoryLimit: 256 * 1024 * 1024}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "apply limits")
}

func TestInvalidStateTransitions(t *testing.T) {
	fakeCgroupRoot(t)
	rootfsDir := t.TempDir()

	ctrl, err := cgroup.Create(tenant, "box-2")
	require.NoError(t, err)
	writeRequiredCgroupFiles(t, ctrl)

	c := &Container{id: "box-2", config: Config{Rootfs: rootfsDir}, state: Created, ctrl: ctrl}

	err = c.Pause()
	require.Error(t, err)
	var invalid *InvalidState
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, Created, invalid.Current)
	require.Equal(t, "Pause", invalid.Operation)

	err = c.Resume()
	require.Error(t, err)
	require.ErrorAs(t, err, &invalid)

	err = c.Stop()
	require.Error(t, err)
	require.ErrorAs(t, err, &invalid)
}

func TestPauseResumeRoundTrip(t *testing.T) {
	fakeCgroupRoot(t)
	rootfsDir := t.TempDir()

	ctrl, err := cgroup.Create(tenant, "box-3")
	require.NoError(t, err)
	writeRequiredCgroupFiles(t, ctrl)

	c := &Container{id: "box-3", config: Config{Rootfs: rootfsDir}, state: Running, ctrl: ctrl}

	require.NoError(t, c.Pause())
	require.Equal(t, Paused, c.State())

	require.NoError(t, c.Resume())
	require.Equal(t, Running, c.State())
}

func TestDestroyFromCreatedRemovesCgroupWithoutStopping(t *testing.T) {
	fakeCgroupRoot(t)
	rootfsDir := t.TempDir()

	ctrl, err := cgroup.Create(tenant, "box-4")
	require.NoError(t, err)
	writeRequiredCgroupFiles(t, ctrl)

	c := &Container{id: "box-4", config: Config{Rootfs: rootfsDir}, state: Created, ctrl: ctrl}
	require.NoError(t, c.Destroy())
	require.NoDirExists(t, ctrl.Path())
}
