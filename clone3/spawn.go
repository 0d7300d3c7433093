//go:build linux

package clone3

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// cloneIntoCgroup is CLONE_INTO_CGROUP (kernel 5.7+): when set, Args.Cgroup
// is a file descriptor for the target cgroup directory and the kernel
// atomically creates the child inside it.
const cloneIntoCgroup uint64 = 0x200000000

// Args mirrors the eleven 64-bit-field clone3 kernel ABI struct
// (struct clone_args, uapi/linux/sched.h) field for field and in order.
type Args struct {
	Flags      uint64
	Pidfd      uint64
	ChildTid   uint64
	ParentTid  uint64
	ExitSignal uint64
	Stack      uint64
	StackSize  uint64
	TLS        uint64
	SetTid     uint64
	SetTidSize uint64
	Cgroup     uint64
}

// raw invokes the clone3(2) syscall directly with a pointer to args and its
// size, the narrow FFI boundary every higher-level entry point in this
// package and in namespace.Clone goes through.
func raw(args *Args) (pid uintptr, errno syscall.Errno) {
	pid, _, errno = unix.Syscall(unix.SYS_CLONE3, uintptr(unsafe.Pointer(args)), unsafe.Sizeof(*args), 0)
	return pid, errno
}

// RawClone exposes the clone3 syscall wrapper to the namespace package, so
// that the generic namespace.Clone entry point and this package's
// cgroup-aware SpawnIntoCgroup share a single ABI definition instead of two
// copies of the kernel struct drifting apart.
func RawClone(args *Args) (pid uintptr, errno syscall.Errno) {
	return raw(args)
}

// MapError exposes this package's errno taxonomy to namespace.Clone.
func MapError(err error) error { return mapError(err) }

// Probe reports whether clone3 is implemented by this kernel by invoking it
// with a zeroed-flags argument: ENOSYS means the syscall itself is absent,
// any other outcome (including success, which would duplicate the calling
// process) means it exists. We pass a non-zero exit signal so a successful
// probe never produces an unreaped zombie silently: instead we immediately
// reap it from the parent side.
func Probe() bool {
	args := &Args{ExitSignal: uint64(unix.SIGCHLD)}
	pid, errno := raw(args)
	if errno == unix.ENOSYS {
		return false
	}
	if errno == 0 && pid == 0 {
		// We are the child of a real clone3 call: exit immediately.
		unix.Exit(0)
	}
	if pid > 0 {
		var ws unix.WaitStatus
		_, _ = unix.Wait4(int(pid), &ws, 0, nil)
	}
	return true
}

// ProbeCloneIntoCgroup returns Probe's answer: it reports only whether
// clone3 is present at all. It does not test CLONE_INTO_CGROUP itself,
// which needs kernel 5.7 while clone3 exists from 5.3; on a kernel in
// between it reports true and SpawnIntoCgroup then fails.
func ProbeCloneIntoCgroup() bool { return Probe() }

// OpenCgroupFD opens path (a cgroup v2 directory) for use as Args.Cgroup.
func OpenCgroupFD(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, mapError(err)
	}
	return fd, nil
}

// SpawnIntoCgroup clones a child that runs fn and then exits with fn's
// return value, atomically placed into the cgroup identified by
// cgroupFD. flags should not include CLONE_INTO_CGROUP or CLONE_VM; both
// are managed by this function (CLONE_VM is never set: the child must get
// its own copy-on-write address space to safely resume inside the Go
// runtime without a hand-built trampoline stack).
func SpawnIntoCgroup(flags uint64, cgroupFD int, fn func() int) (int, error) {
	args := &Args{
		Flags:      flags | cloneIntoCgroup,
		ExitSignal: uint64(unix.SIGCHLD),
		Cgroup:     uint64(cgroupFD),
	}

	pid, errno := raw(args)
	if errno != 0 {
		return -1, mapError(errno)
	}
	if pid == 0 {
		code := fn()
		os.Exit(code)
	}
	return int(pid), nil
}

func mapError(err error) error {
	errno, ok := err.(syscall.Errno)
	if !ok {
		return fmt.Errorf("clone3: %w", err)
	}
	switch errno {
	case syscall.EPERM:
		return &Error{Code: PermissionDenied, Errno: errno}
	case syscall.EINVAL:
		return &Error{Code: InvalidArgument, Errno: errno}
	case syscall.ENOMEM:
		return &Error{Code: OutOfMemory, Errno: errno}
	case syscall.ENOSYS:
		return &Error{Code: NotSupported, Errno: errno}
	case syscall.EBADF:
		return &Error{Code: InvalidCgroupFd, Errno: errno}
	default:
		return &Error{Code: OsError, Errno: errno}
	}
}
