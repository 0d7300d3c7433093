//go:build linux

package cgroup

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sakamoro/alice-container/iouring"
	"golang.org/x/sys/unix"
)

// Root is the well-known cgroup v2 unified-hierarchy mount point. It is a
// variable rather than a constant solely so tests can point it at a
// scratch directory that fakes the kernel-maintained files; production
// code never reassigns it.
var Root = "/sys/fs/cgroup"

// destroyPollAttempts/destroyPollInterval bound the wait for cgroup.procs to
// drain after KillAll, replacing a single fixed sleep with a retry loop.
const (
	destroyPollAttempts = 20
	destroyPollInterval = 10 * time.Millisecond
)

// Controller owns one cgroup v2 directory at <Root>/<tenant>/<id>. Its
// existence is the controller's liveness invariant: no Controller handle
// outlives the destruction of its directory.
type Controller struct {
	tenant string
	id     string
	path   string
}

// Path returns the absolute cgroup directory this controller owns.
func (c *Controller) Path() string { return c.path }

func cgroupPath(tenant, id string) string {
	return filepath.Join(Root, tenant, id)
}

func writeFile(path string, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func enableControllers(parentPath string, ctrls ...string) error {
	joined := ""
	for _, c := range ctrls {
		joined += "+" + c + " "
	}
	joined = strings.TrimSpace(joined)

	if err := writeFile(filepath.Join(parentPath, "cgroup.subtree_control"), joined); err == nil {
		return nil
	}

	// Retry as three separate writes; some kernels reject a combined write
	// when one of the controllers is already enabled.
	for _, c := range ctrls {
		if err := writeFile(filepath.Join(parentPath, "cgroup.subtree_control"), "+"+c); err != nil && !errors.Is(err, syscall.EBUSY) {
			return mapErrno(parentPath, err)
		}
	}
	return nil
}

// Create ensures <Root>/<tenant> exists, creates <tenant>/<id>, and enables
// the cpu/memory/io controllers for it by writing to the parent's
// cgroup.subtree_control.
func Create(tenant, id string) (*Controller, error) {
	if _, err := os.Stat(Root); err != nil {
		return nil, &Error{Code: CgroupV2NotAvailable}
	}

	tenantPath := filepath.Join(Root, tenant)
	if err := os.MkdirAll(tenantPath, 0o755); err != nil {
		return nil, mapErrno(tenantPath, err)
	}
	if err := enableControllers(Root, "cpu", "memory", "io"); err != nil {
		return nil, fmt.Errorf("enable controllers on %s: %w", Root, err)
	}
	if err := enableControllers(tenantPath, "cpu", "memory", "io"); err != nil {
		return nil, fmt.Errorf("enable controllers on %s: %w", tenantPath, err)
	}

	path := cgroupPath(tenant, id)
	if err := os.Mkdir(path, 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, mapErrno(path, err)
	}

	return &Controller{tenant: tenant, id: id, path: path}, nil
}

// Open validates that the cgroup directory already exists. Unlike Create,
// it never touches cgroup.subtree_control.
func Open(tenant, id string) (*Controller, error) {
	path := cgroupPath(tenant, id)
	if _, err := os.Stat(path); err != nil {
		return nil, newNotFound(path)
	}
	return &Controller{tenant: tenant, id: id, path: path}, nil
}

// writeViaRing submits a single cgroup-file write through an io_uring
// batch of one and falls back to iouring.SyncBatchWrite on any ring setup
// or submission failure. Each call sets up its own ring for one file;
// SetAll issues its writes one at a time through this method and does not
// combine them into a single submission.
func (c *Controller) writeViaRing(name, content string) error {
	writes := []iouring.Write{{Path: name, Content: []byte(content)}}
	if b, err := iouring.NewBatcher(c.path, 1); err == nil {
		ringErr := b.Submit(writes)
		_ = b.Close()
		if ringErr == nil {
			return nil
		}
	}
	return iouring.SyncBatchWrite(c.path, writes)
}

// writeMandatory writes to a file whose absence is fatal (cpu.max, memory.max).
func (c *Controller) writeMandatory(name, content string) error {
	p := filepath.Join(c.path, name)
	if err := c.writeViaRing(name, content); err != nil {
		if errors.Is(err, syscall.ENOENT) {
			return newControllerNotEnabled(name)
		}
		return mapErrno(p, err)
	}
	return nil
}

// writeOptional writes to a file whose absence is silently ignored (the
// controller is simply not compiled into this kernel).
func (c *Controller) writeOptional(name, content string) error {
	p := filepath.Join(c.path, name)
	if err := c.writeViaRing(name, content); err != nil {
		if errors.Is(err, syscall.ENOENT) {
			return nil
		}
		return mapErrno(p, err)
	}
	return nil
}

// SetCPU writes cpu.max and cpu.weight.
func (c *Controller) SetCPU(cfg CpuConfig) error {
	if err := c.writeMandatory("cpu.max", cfg.ToWire()); err != nil {
		return err
	}
	return c.writeOptional("cpu.weight", strconv.FormatUint(cfg.Weight, 10))
}

// WriteCPUMax is the narrow setter reserved for the two schedulers: it
// touches only cpu.max, never cpu.weight. The scheduler that owns a given
// cgroup is the sole writer of cpu.max for its lifetime.
func (c *Controller) WriteCPUMax(quotaUs *uint64, periodUs uint64) error {
	cfg := CpuConfig{PeriodUs: periodUs}
	if quotaUs == nil {
		cfg.QuotaUs = Unlimited
	} else {
		cfg.QuotaUs = *quotaUs
	}
	return c.writeMandatory("cpu.max", cfg.ToWire())
}

// SetMemory writes memory.max, memory.high, memory.min and memory.oom.group.
func (c *Controller) SetMemory(cfg MemoryConfig) error {
	if err := c.writeMandatory("memory.max", maxToWire(cfg.Max)); err != nil {
		return err
	}
	if err := c.writeOptional("memory.high", maxToWire(cfg.High)); err != nil {
		return err
	}
	if err := c.writeOptional("memory.min", strconv.FormatUint(cfg.Min, 10)); err != nil {
		return err
	}
	oom := "0"
	if cfg.OOMGroup {
		oom = "1"
	}
	return c.writeOptional("memory.oom.group", oom)
}

// SetIO writes io.max.
func (c *Controller) SetIO(cfg IoConfig) error {
	if cfg.Device == "" {
		return newInvalidParameter(errors.New("io device must not be empty"))
	}
	return c.writeOptional("io.max", cfg.ToWire())
}

// SetAll applies CPU, then memory, then I/O limits in that fixed order; a
// partial failure leaves the earlier writes committed (invariant (d)).
func (c *Controller) SetAll(cpu CpuConfig, mem MemoryConfig, io *IoConfig) error {
	if err := c.SetCPU(cpu); err != nil {
		return fmt.Errorf("set cpu limits: %w", err)
	}
	if err := c.SetMemory(mem); err != nil {
		return fmt.Errorf("set memory limits: %w", err)
	}
	if io != nil {
		if err := c.SetIO(*io); err != nil {
			return fmt.Errorf("set io limits: %w", err)
		}
	}
	return nil
}

// AddProcess writes pid to cgroup.procs, joining the process to this cgroup.
func (c *Controller) AddProcess(pid int) error {
	p := filepath.Join(c.path, "cgroup.procs")
	if err := writeFile(p, strconv.Itoa(pid)); err != nil {
		return mapErrno(p, err)
	}
	return nil
}

// MemoryCurrent reads memory.current.
func (c *Controller) MemoryCurrent() (uint64, error) {
	return c.readUint64("memory.current")
}

// CPUUsageUs parses the usage_usec line of cpu.stat.
func (c *Controller) CPUUsageUs() (uint64, error) {
	p := filepath.Join(c.path, "cpu.stat")
	f, err := os.Open(p)
	if err != nil {
		return 0, mapErrno(p, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 2 && fields[0] == "usage_usec" {
			v, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				return 0, newInvalidParameter(err)
			}
			return v, nil
		}
	}
	if err := sc.Err(); err != nil {
		return 0, mapErrno(p, err)
	}
	return 0, mapErrno(p, errors.New("usage_usec not found in cpu.stat"))
}

func (c *Controller) readUint64(name string) (uint64, error) {
	p := filepath.Join(c.path, name)
	b, err := os.ReadFile(p)
	if err != nil {
		return 0, mapErrno(p, err)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, newInvalidParameter(err)
	}
	return v, nil
}

// Processes reads cgroup.procs, one PID per line, skipping unparseable
// lines rather than failing the whole read.
func (c *Controller) Processes() ([]int, error) {
	p := filepath.Join(c.path, "cgroup.procs")
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, mapErrno(p, err)
	}
	var pids []int
	for _, field := range bytes.Fields(b) {
		if pid, err := strconv.Atoi(string(field)); err == nil {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

// Freeze writes "1" to cgroup.freeze. A missing file (older kernel) is a
// silent success.
func (c *Controller) Freeze() error { return c.writeOptional("cgroup.freeze", "1") }

// Unfreeze writes "0" to cgroup.freeze.
func (c *Controller) Unfreeze() error { return c.writeOptional("cgroup.freeze", "0") }

// KillAll writes "1" to cgroup.kill; on kernels that lack it, it iterates
// Processes() and signals each one individually.
func (c *Controller) KillAll() error {
	p := filepath.Join(c.path, "cgroup.kill")
	if err := c.writeViaRing("cgroup.kill", "1"); err == nil {
		return nil
	} else if !errors.Is(err, syscall.ENOENT) {
		return mapErrno(p, err)
	}

	pids, err := c.Processes()
	if err != nil {
		return err
	}
	for _, pid := range pids {
		_ = unix.Kill(pid, unix.SIGTERM)
		_ = unix.Kill(pid, unix.SIGKILL)
	}
	return nil
}

// Destroy kills every process in the cgroup, waits for cgroup.procs to
// drain (bounded retry), and removes the directory. It consumes the
// handle: callers must not use c afterwards.
func (c *Controller) Destroy() error {
	if _, err := os.Stat(c.path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := c.KillAll(); err != nil {
		return fmt.Errorf("kill_all: %w", err)
	}

	for i := 0; i < destroyPollAttempts; i++ {
		pids, err := c.Processes()
		if err != nil || len(pids) == 0 {
			break
		}
		time.Sleep(destroyPollInterval)
	}

	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return mapErrno(c.path, err)
	}
	return nil
}
