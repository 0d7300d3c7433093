//go:build linux

package namespace

import (
	"os"
	"syscall"

	"github.com/sakamoro/alice-container/clone3"
	"golang.org/x/sys/unix"
)

// Unshare moves the calling process (not a new one) into a new set of
// namespaces with a single kernel call.
func Unshare(flags Flags) error {
	if err := unix.Unshare(int(flags)); err != nil {
		if errno, ok := err.(syscall.Errno); ok {
			return FromErrno(errno)
		}
		return &Error{Code: OsError}
	}
	return nil
}

// Clone creates a child process running fn, with the given namespace flags
// applied, and returns its PID to the parent. It is built atop clone3
// without CLONE_VM: the kernel copies the calling process's address space
// copy-on-write, so the child resumes inside the same Go runtime image at
// the point RawClone returns, rather than at a hand-mapped stack reached
// through a C trampoline.
func Clone(flags Flags, fn func() int) (int, error) {
	args := &clone3.Args{
		Flags:      uint64(flags),
		ExitSignal: uint64(unix.SIGCHLD),
	}
	pid, errno := clone3.RawClone(args)
	if errno != 0 {
		return -1, clone3.MapError(errno)
	}
	if pid == 0 {
		code := fn()
		os.Exit(code)
	}
	return int(pid), nil
}
