//go:build linux

package container

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/sakamoro/alice-container/cgroup"
	"github.com/sakamoro/alice-container/clone3"
	"github.com/sakamoro/alice-container/namespace"
	"github.com/sakamoro/alice-container/procinit"
	"github.com/sakamoro/alice-container/rootfs"
	"github.com/sakamoro/alice-container/scheduler"
	"github.com/sakamoro/alice-container/telemetry"
	"golang.org/x/sys/unix"
)

// tenant is the fixed cgroup subtree every container is created under;
// there is no multi-tenant scheduling in this runtime.
const tenant = "alice"

// Container is a single isolated process tree plus the cgroup that bounds
// its resource usage. Every exported method must be called with external
// synchronization per container; see the concurrency model.
type Container struct {
	mu sync.Mutex

	id     string
	config Config
	state  State

	ctrl    *cgroup.Controller
	root    *rootfs.Root
	initPID int
	pipe    *procinit.SyncPipe

	sched     *scheduler.Dynamic
	schedStop chan struct{}
	schedDone chan struct{}

	logger *slog.Logger
	bridge telemetry.Bridge
}

// Create validates config, builds the cgroup, and applies resource
// limits. The container starts in the Created state.
func Create(id string, config Config, logger *slog.Logger) (*Container, error) {
	if config.Rootfs == "" {
		return nil, fmt.Errorf("container: config.Rootfs must not be empty")
	}
	if _, err := os.Stat(config.Rootfs); err != nil {
		return nil, fmt.Errorf("container: rootfs %q: %w", config.Rootfs, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctrl, err := cgroup.Create(tenant, id)
	if err != nil {
		return nil, fmt.Errorf("container: create cgroup: %w", err)
	}

	cpu := cgroup.NewCpuConfig(config.CPULimitUs)
	if config.CPUPeriodUs != 0 {
		cpu.PeriodUs = config.CPUPeriodUs
	}
	mem := cgroup.MemoryConfigWithLimit(config.MemoryLimit)
	if err := ctrl.SetAll(cpu, mem, config.IO); err != nil {
		_ = ctrl.Destroy()
		return nil, fmt.Errorf("container: apply limits: %w", err)
	}

	return &Container{
		id:     id,
		config: config,
		state:  Created,
		ctrl:   ctrl,
		logger: logger,
	}, nil
}

// SetTelemetryBridge attaches an optional read-only telemetry collaborator
// that receives scheduler stats and resource samples from the scheduler
// goroutine. It is never required: a nil bridge means those are not
// reported. Lifecycle sync events are not delivered to the bridge.
func (c *Container) SetTelemetryBridge(bridge telemetry.Bridge) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bridge = bridge
}

// State returns the container's current lifecycle state.
func (c *Container) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// MemoryUsage reads the cgroup's current memory usage.
func (c *Container) MemoryUsage() (uint64, error) {
	return c.ctrl.MemoryCurrent()
}

// CPUUsage reads the cgroup's cumulative CPU usage in microseconds.
func (c *Container) CPUUsage() (uint64, error) {
	return c.ctrl.CPUUsageUs()
}

func (c *Container) transitionTo(next State) {
	c.state = next
	c.emit()
}

func (c *Container) emit() {
	if c.bridge == nil {
		return
	}
	_ = telemetry.EncodeSyncEvent(telemetry.ContainerState{
		ContainerID: idHash(c.id),
		Status:      telemetry.Status(c.state),
		CPULimitUs:  c.config.CPULimitUs,
		MemoryLimit: c.config.MemoryLimit,
	})
}

func idHash(id string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(id); i++ {
		h ^= uint64(id[i])
		h *= 1099511628211
	}
	return h
}

// Start prepares the rootfs, spawns the container's init process, and
// places it in the cgroup. It prefers the clone3 CLONE_INTO_CGROUP path
// and falls back to namespace.Clone + AddProcess on any failure,
// including when the kernel does not support clone3 at all.
func (c *Container) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Created && c.state != Stopped {
		return &InvalidState{Current: c.state, Operation: "Start"}
	}

	root, err := rootfs.Create(c.config.Rootfs)
	if err != nil {
		return fmt.Errorf("container: prepare rootfs: %w", err)
	}
	c.root = root

	pid, err := c.spawnInit()
	if err != nil {
		return fmt.Errorf("container: spawn init: %w", err)
	}
	c.initPID = pid

	c.transitionTo(Running)
	c.startScheduler()
	return nil
}

// spawnInit clones the init process, places it in the cgroup, and maps its
// uid/gid if running privileged, gating the child on a sync pipe the whole
// time so it cannot mount/pivot/exec before that setup has committed.
func (c *Container) spawnInit() (int, error) {
	flags := uint64(namespace.CONTAINER)
	privileged := os.Geteuid() == 0
	if privileged {
		flags |= uint64(namespace.NEWUSER)
	}

	pipe, err := procinit.NewSyncPipe()
	if err != nil {
		return -1, fmt.Errorf("create sync pipe: %w", err)
	}
	c.pipe = pipe

	if clone3.ProbeCloneIntoCgroup() {
		fd, err := clone3.OpenCgroupFD(c.ctrl.Path())
		if err == nil {
			pid, err := clone3.SpawnIntoCgroup(flags, fd, c.runInit)
			_ = unix.Close(fd)
			if err == nil {
				if privileged {
					if idErr := namespace.SetupPrivilegedIDMappings(pid); idErr != nil {
						c.logger.Warn("privileged id mapping failed", slog.Any("err", idErr))
					}
				}
				if sigErr := pipe.Signal(); sigErr != nil {
					return -1, fmt.Errorf("signal sync pipe: %w", sigErr)
				}
				return pid, nil
			}
			c.logger.Warn("clone3 cgroup-atomic spawn failed, falling back", slog.Any("err", err))
		}
	}

	pid, err := namespace.Clone(namespace.Flags(flags), c.runInit)
	if err != nil {
		pipe.Close()
		return -1, err
	}
	if err := c.ctrl.AddProcess(pid); err != nil {
		pipe.Close()
		return -1, fmt.Errorf("join cgroup: %w", err)
	}
	if privileged {
		if idErr := namespace.SetupPrivilegedIDMappings(pid); idErr != nil {
			c.logger.Warn("privileged id mapping failed", slog.Any("err", idErr))
		}
	}
	// The child is blocked in runInit's pipe.Wait() until this Signal, which
	// closes the window where it could mount/pivot/exec before AddProcess
	// above has placed it in the cgroup.
	if err := pipe.Signal(); err != nil {
		return -1, fmt.Errorf("signal sync pipe: %w", err)
	}
	return pid, nil
}

// startScheduler attaches the polling CPU-quota scheduler to the
// container's cgroup and drives it from a background goroutine until
// stopScheduler is called. A failure to start is logged and left
// unattached rather than failing the container: CPU quota just stays at
// whatever SetAll already wrote.
func (c *Container) startScheduler() {
	cfg := scheduler.DefaultDynamicConfig()
	sched := scheduler.NewDynamic(c.ctrl, cfg)
	if err := sched.Start(); err != nil {
		c.logger.Warn("scheduler start failed", slog.Any("err", err))
		return
	}

	c.sched = sched
	c.schedStop = make(chan struct{})
	c.schedDone = make(chan struct{})

	id := idHash(c.id)
	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		ticker := time.NewTicker(cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if _, err := sched.Tick(); err != nil {
					c.logger.Warn("scheduler tick failed", slog.Any("err", err))
					continue
				}
				stats := telemetry.SchedulerStats{
					CurrentQuotaUs: sched.CurrentQuota(),
					MinQuotaUs:     cfg.MinQuotaUs,
					MaxQuotaUs:     cfg.MaxQuotaUs,
					Running:        sched.Running(),
				}
				c.mu.Lock()
				bridge := c.bridge
				c.mu.Unlock()
				if bridge == nil {
					continue
				}
				bridge.ObserveScheduler(stats)
				if usage, err := c.ctrl.MemoryCurrent(); err == nil {
					bridge.ObserveSample(telemetry.Sample{
						ContainerID: id,
						CPUPercent:  float64(stats.CurrentQuotaUs) / float64(stats.MaxQuotaUs) * 100,
						MemoryBytes: usage,
					})
				}
			}
		}
	}(c.schedStop, c.schedDone)
}

// stopScheduler halts the background tick goroutine and releases the quota
// ceiling. It is a no-op when no scheduler was ever successfully started.
func (c *Container) stopScheduler() {
	if c.sched == nil {
		return
	}
	close(c.schedStop)
	<-c.schedDone
	if err := c.sched.Stop(); err != nil {
		c.logger.Warn("scheduler stop failed", slog.Any("err", err))
	}
	c.sched = nil
}

// runInit executes inside the cloned child: it waits for the parent to
// finish cgroup placement and id mapping, then prepares the rootfs, pivots
// into it, drops capabilities, and execs the configured command. It never
// returns on success.
func (c *Container) runInit() int {
	if err := c.pipe.Wait(); err != nil {
		return 1
	}

	if c.config.Hostname != "" {
		_ = unix.Sethostname([]byte(c.config.Hostname))
	}

	oldRoot, err := c.root.PreparePivot()
	if err != nil {
		return 1
	}
	if err := c.root.MountProc(); err != nil {
		return 1
	}
	if err := c.root.MountSys(); err != nil {
		return 1
	}
	if err := c.root.MountTmp(); err != nil {
		return 1
	}
	for _, m := range c.config.Mounts {
		var err error
		if m.RO {
			err = c.root.BindMountRO(m.Host, m.Dest)
		} else {
			err = c.root.BindMount(m.Host, m.Dest)
		}
		if err != nil {
			return 1
		}
	}
	if err := c.root.SetupDev(); err != nil {
		return 1
	}
	if err := c.root.SetHostname(c.config.Hostname); err != nil {
		return 1
	}
	if err := c.root.SetHosts(c.config.Hostname); err != nil {
		return 1
	}
	if err := c.root.SetResolvConf(c.config.Nameservers); err != nil {
		return 1
	}
	if err := namespace.PivotRoot(c.root.Path, oldRoot); err != nil {
		return 1
	}
	if err := os.Chdir("/"); err != nil {
		return 1
	}
	if err := rootfs.CleanupOldRoot("/.old_root"); err != nil {
		return 1
	}
	if err := procinit.DropToDefaultCapabilities(); err != nil {
		return 1
	}

	if len(c.config.Command) == 0 {
		return 1
	}
	if err := unix.Exec(c.config.Command[0], c.config.Command, c.config.Env); err != nil {
		return 127
	}
	return 0
}

// Wait blocks until the container's init process exits and reports its
// exit status. It does not tear down the cgroup; callers that want that
// should follow up with Destroy.
func (c *Container) Wait() (int, error) {
	c.mu.Lock()
	pid := c.initPID
	c.mu.Unlock()
	if pid <= 0 {
		return 0, fmt.Errorf("container: not started")
	}

	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(pid, &ws, 0, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		if wpid == pid {
			break
		}
	}

	c.mu.Lock()
	c.stopScheduler()
	c.transitionTo(Stopped)
	c.mu.Unlock()

	if ws.Exited() {
		return ws.ExitStatus(), nil
	}
	if ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}
	return 0, nil
}

// Pause freezes the container's cgroup, suspending every task in it.
func (c *Container) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Running {
		return &InvalidState{Current: c.state, Operation: "Pause"}
	}
	if err := c.ctrl.Freeze(); err != nil {
		return err
	}
	c.transitionTo(Paused)
	return nil
}

// Resume unfreezes a paused container's cgroup.
func (c *Container) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Paused {
		return &InvalidState{Current: c.state, Operation: "Resume"}
	}
	if err := c.ctrl.Unfreeze(); err != nil {
		return err
	}
	c.transitionTo(Running)
	return nil
}

// Stop kills every process in the container's cgroup and waits for the
// init process to exit.
func (c *Container) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Running && c.state != Paused {
		return &InvalidState{Current: c.state, Operation: "Stop"}
	}
	c.stopScheduler()
	if err := c.ctrl.KillAll(); err != nil {
		return err
	}
	if c.initPID > 0 {
		var ws unix.WaitStatus
		for {
			_, err := unix.Wait4(c.initPID, &ws, 0, nil)
			if err == unix.EINTR {
				continue
			}
			break
		}
	}
	c.transitionTo(Stopped)
	return nil
}

// Destroy stops the container if necessary and removes its cgroup. It is
// legal from any state and is idempotent on the cgroup side.
func (c *Container) Destroy() error {
	c.mu.Lock()
	needsStop := c.state == Running || c.state == Paused
	c.mu.Unlock()

	if needsStop {
		if err := c.Stop(); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctrl.Destroy()
}

// Exec runs an additional command in a fresh set of CONTAINER namespaces
// and joins it to the same cgroup as the init process. It does not enter
// the init process's existing namespaces or its pivoted root.
func (c *Container) Exec(cmd []string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Running {
		return -1, &InvalidState{Current: c.state, Operation: "Exec"}
	}
	if len(cmd) == 0 {
		return -1, fmt.Errorf("container: Exec requires a non-empty command")
	}

	pid, err := namespace.Clone(namespace.CONTAINER, func() int {
		if err := unix.Exec(cmd[0], cmd, c.config.Env); err != nil {
			return 127
		}
		return 0
	})
	if err != nil {
		return -1, err
	}
	if err := c.ctrl.AddProcess(pid); err != nil {
		return -1, err
	}

	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(pid, &ws, 0, nil)
		if err == unix.EINTR {
			continue
		}
		break
	}
	if ws.Exited() {
		return ws.ExitStatus(), nil
	}
	if ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}
	return 0, nil
}
