//go:build linux

package rootfs

import (
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

type devNode struct {
	name  string
	major uint32
	minor uint32
	mode  uint32
}

var devNodes = []devNode{
	{"null", 1, 3, 0o666},
	{"zero", 1, 5, 0o666},
	{"random", 1, 8, 0o666},
	{"urandom", 1, 9, 0o666},
	{"tty", 5, 0, 0o666},
	{"console", 5, 1, 0o620},
}

// SetupDev mounts a tmpfs at <root>/dev, populates it with the minimal set
// of character device nodes a userspace program expects (null, zero,
// random, urandom, tty, console), creates the pts and shm subdirectories,
// and symlinks /proc/self/fd and the standard stream shorthands.
func (r *Root) SetupDev() error {
	dev := filepath.Join(r.Path, "dev")
	if err := unix.Mount("tmpfs", dev, "tmpfs", unix.MS_NOSUID|unix.MS_NOEXEC, "mode=755,size=64k"); err != nil {
		return &Error{Code: MountFailed, Path: dev, Err: err}
	}

	for _, n := range devNodes {
		path := filepath.Join(dev, n.name)
		devt := unix.Mkdev(n.major, n.minor)
		if err := unix.Mknod(path, unix.S_IFCHR|n.mode, int(devt)); err != nil && !errors.Is(err, os.ErrExist) {
			return &Error{Code: OsError, Path: path, Err: err}
		}
	}

	for _, d := range []string{"pts", "shm"} {
		if err := os.MkdirAll(filepath.Join(dev, d), 0o755); err != nil {
			return &Error{Code: OsError, Path: filepath.Join(dev, d), Err: err}
		}
	}

	links := map[string]string{
		filepath.Join(dev, "fd"):     "/proc/self/fd",
		filepath.Join(dev, "stdin"):  "/proc/self/fd/0",
		filepath.Join(dev, "stdout"): "/proc/self/fd/1",
		filepath.Join(dev, "stderr"): "/proc/self/fd/2",
	}
	for dest, target := range links {
		_ = os.Remove(dest)
		if err := os.Symlink(target, dest); err != nil && !errors.Is(err, os.ErrExist) {
			return &Error{Code: OsError, Path: dest, Err: err}
		}
	}

	return nil
}
