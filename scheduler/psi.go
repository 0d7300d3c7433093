//go:build linux

package scheduler

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Level distinguishes the two PSI trigger levels: "some" (at least one
// task stalled) and "full" (all non-idle tasks stalled simultaneously).
type Level int

const (
	Some Level = iota
	Full
)

func (l Level) String() string {
	if l == Full {
		return "full"
	}
	return "some"
}

// Resource names a PSI resource file: cpu, memory, or io, each rooted
// either at /proc/pressure/<resource> (system-wide) or
// <cgroup>/<resource>.pressure (per cgroup).
type Resource string

const (
	CPU    Resource = "cpu"
	Memory Resource = "memory"
	IO     Resource = "io"
)

// Trigger describes one PSI threshold subscription: notify when resource
// spends more than thresholdUs microseconds stalled at level within any
// windowUs-long sliding window.
type Trigger struct {
	Resource  Resource
	Level     Level
	Threshold time.Duration
	Window    time.Duration
}

// CPUSome is the common case: be notified when some task stalls on CPU
// contention for more than threshold within window.
func CPUSome(threshold, window time.Duration) Trigger {
	return Trigger{Resource: CPU, Level: Some, Threshold: threshold, Window: window}
}

func (t Trigger) line() string {
	return fmt.Sprintf("%s %d %d", t.Level, t.Threshold.Microseconds(), t.Window.Microseconds())
}

// Event is emitted by WaitEvent when a registered trigger fires.
type Event struct {
	Resource  Resource
	Level     Level
	Threshold time.Duration
	Window    time.Duration
}

// Stats is one parsed line of a pressure file: "<level> avg10=X avg60=Y
// avg300=Z total=T".
type Stats struct {
	Level              Level
	Avg10, Avg60, Avg300 float64
	TotalUs            uint64
}

type registeredTrigger struct {
	trigger Trigger
	fd      int
}

// Psi is the event-driven CPU scheduler: instead of polling cpu.stat on a
// timer, it blocks on epoll for PSI pressure-threshold notifications and
// only touches cpu.max when a threshold actually fires.
type Psi struct {
	base     string // "" for system-wide /proc/pressure, else a cgroup path
	epollFd  int
	triggers []registeredTrigger

	ctrl        quotaWriter
	current     uint64
	minQ, maxQ  uint64
}

// quotaWriter is the subset of cgroup.Controller the PSI scheduler needs;
// declared locally so this file does not import cgroup just to hold one
// method.
type quotaWriter interface {
	WriteCPUMax(quotaUs *uint64, periodUs uint64) error
}

// NewPsi opens an epoll instance for a PSI monitor scoped to base (a
// cgroup directory) or, if base is empty, the system-wide /proc/pressure
// hierarchy. It requires /proc/pressure to exist.
func NewPsi(base string, ctrl quotaWriter, minQ, maxQ uint64) (*Psi, error) {
	if _, err := os.Stat("/proc/pressure"); err != nil {
		return nil, &Error{Code: NotAvailable, Err: err}
	}
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, &Error{Code: OsError, Err: err}
	}
	return &Psi{base: base, epollFd: fd, ctrl: ctrl, minQ: minQ, maxQ: maxQ}, nil
}

func (p *Psi) pressurePath(r Resource) string {
	if p.base == "" {
		return filepath.Join("/proc/pressure", string(r))
	}
	return filepath.Join(p.base, string(r)+".pressure")
}

// AddTrigger opens the PSI file for t.Resource, writes the trigger line,
// and registers the resulting fd for EPOLLPRI readiness.
func (p *Psi) AddTrigger(t Trigger) error {
	path := p.pressurePath(t.Resource)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return &Error{Code: OsError, Err: err}
	}
	if _, err := f.WriteString(t.line()); err != nil {
		_ = f.Close()
		return &Error{Code: OsError, Err: err}
	}

	idx := len(p.triggers)
	fd := int(f.Fd())
	event := unix.EpollEvent{Events: unix.EPOLLPRI, Fd: int32(fd)}
	// The kernel keys notifications by fd, but we additionally stash idx
	// in Pad so EpollWait can map a ready fd back to its Trigger even if
	// multiple triggers happen to share low bits of the same fd value.
	event.Pad = int32(idx)
	if err := unix.EpollCtl(p.epollFd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		_ = f.Close()
		return &Error{Code: OsError, Err: err}
	}
	p.triggers = append(p.triggers, registeredTrigger{trigger: t, fd: fd})
	return nil
}

// WaitEvent blocks up to timeout for one trigger to fire. A zero Event
// with ok=false means no trigger fired within timeout (including the
// EINTR case, which this function treats identically to a timeout).
func (p *Psi) WaitEvent(timeout time.Duration) (Event, bool, error) {
	events := make([]unix.EpollEvent, 1)
	n, err := unix.EpollWait(p.epollFd, events, int(timeout.Milliseconds()))
	if err != nil {
		if err == unix.EINTR {
			return Event{}, false, nil
		}
		return Event{}, false, &Error{Code: OsError, Err: err}
	}
	if n == 0 {
		return Event{}, false, nil
	}

	idx := int(events[0].Pad)
	if idx < 0 || idx >= len(p.triggers) {
		return Event{}, false, nil
	}
	t := p.triggers[idx].trigger
	return Event{Resource: t.Resource, Level: t.Level, Threshold: t.Threshold, Window: t.Window}, true, nil
}

// ReadStats reads and parses the pressure file for resource, tolerating
// missing fields in a line (older kernels omit "total=" on some files).
func (p *Psi) ReadStats(resource Resource) ([]Stats, error) {
	f, err := os.Open(p.pressurePath(resource))
	if err != nil {
		return nil, &Error{Code: OsError, Err: err}
	}
	defer func() { _ = f.Close() }()

	var out []Stats
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		s := Stats{}
		if fields[0] == "full" {
			s.Level = Full
		} else {
			s.Level = Some
		}
		for _, f := range fields[1:] {
			kv := strings.SplitN(f, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch kv[0] {
			case "avg10":
				s.Avg10, _ = strconv.ParseFloat(kv[1], 64)
			case "avg60":
				s.Avg60, _ = strconv.ParseFloat(kv[1], 64)
			case "avg300":
				s.Avg300, _ = strconv.ParseFloat(kv[1], 64)
			case "total":
				v, _ := strconv.ParseUint(kv[1], 10, 64)
				s.TotalUs = v
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// Adjust applies the PSI-driven quota rule for event: a "some" event
// bursts toward the maximum by BurstMultiplier, a "full" event jumps
// straight to the maximum (the cgroup is fully CPU-starved). The write is
// skipped if it would not change the current quota.
func (p *Psi) Adjust(event Event, burstMultiplier float64) error {
	var newQuota uint64
	switch event.Level {
	case Full:
		newQuota = p.maxQ
	default:
		newQuota = minU64(scale(p.current, burstMultiplier), p.maxQ)
	}
	if newQuota == p.current {
		return nil
	}
	if err := p.ctrl.WriteCPUMax(&newQuota, 100_000); err != nil {
		return &Error{Code: OsError, Err: err}
	}
	p.current = newQuota
	return nil
}

// Close releases the epoll instance and every registered trigger fd.
func (p *Psi) Close() error {
	for _, rt := range p.triggers {
		_ = unix.Close(rt.fd)
	}
	return unix.Close(p.epollFd)
}
