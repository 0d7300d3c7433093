//go:build linux

package rootfs

import (
	"os"
	"path/filepath"

	"github.com/sakamoro/alice-container/namespace"
	"golang.org/x/sys/unix"
)

// skeleton is the directory layout every container root gets, mirroring a
// minimal Linux distribution tree plus the .old_root pivot target.
var skeleton = []string{
	"bin", "lib", "lib64", "usr", "etc", "proc", "dev", "sys", "tmp", "root", ".old_root",
}

// Root represents a prepared container root directory.
type Root struct {
	Path string
}

// Create lays out the skeleton directory tree at path, creating path
// itself if necessary, and gives /tmp sticky world-writable permissions.
func Create(path string) (*Root, error) {
	if path == "" {
		return nil, &Error{Code: InvalidPath, Path: path}
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, &Error{Code: OsError, Path: path, Err: err}
	}
	for _, d := range skeleton {
		full := filepath.Join(path, d)
		if err := os.MkdirAll(full, 0o755); err != nil {
			return nil, &Error{Code: OsError, Path: full, Err: err}
		}
	}
	tmp := filepath.Join(path, "tmp")
	if err := os.Chmod(tmp, 0o777|os.ModeSticky); err != nil {
		return nil, &Error{Code: OsError, Path: tmp, Err: err}
	}
	return &Root{Path: path}, nil
}

// PreparePivot makes the whole mount namespace recursively private so that
// nothing the container does leaks back to the host, then bind-mounts the
// root onto itself (pivot_root requires its target to be a mount point),
// and ensures .old_root exists beneath it. It returns the absolute path
// pivot_root should use as put_old.
func (r *Root) PreparePivot() (oldRoot string, err error) {
	if err := namespace.MakePrivate("/"); err != nil {
		return "", &Error{Code: MountFailed, Path: "/", Err: err}
	}
	if err := unix.Mount(r.Path, r.Path, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return "", &Error{Code: MountFailed, Path: r.Path, Err: err}
	}
	oldRoot = filepath.Join(r.Path, ".old_root")
	if err := os.MkdirAll(oldRoot, 0o700); err != nil {
		return "", &Error{Code: OsError, Path: oldRoot, Err: err}
	}
	return oldRoot, nil
}

// BindMount bind-mounts src onto <root>/rel, creating the target directory
// if it does not already exist.
func (r *Root) BindMount(src, rel string) error {
	target := filepath.Join(r.Path, rel)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return &Error{Code: OsError, Path: target, Err: err}
	}
	if err := namespace.BindMount(src, target, false); err != nil {
		return &Error{Code: MountFailed, Path: target, Err: err}
	}
	return nil
}

// BindMountRO is BindMount followed by a read-only remount.
func (r *Root) BindMountRO(src, rel string) error {
	target := filepath.Join(r.Path, rel)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return &Error{Code: OsError, Path: target, Err: err}
	}
	if err := namespace.BindMount(src, target, true); err != nil {
		return &Error{Code: MountFailed, Path: target, Err: err}
	}
	return nil
}

// MountProc mounts a fresh procfs at <root>/proc.
func (r *Root) MountProc() error {
	target := filepath.Join(r.Path, "proc")
	if err := unix.Mount("proc", target, "proc", unix.MS_NOSUID|unix.MS_NODEV|unix.MS_NOEXEC, ""); err != nil {
		return &Error{Code: MountFailed, Path: target, Err: err}
	}
	return nil
}

// MountSys mounts sysfs at <root>/sys.
func (r *Root) MountSys() error {
	target := filepath.Join(r.Path, "sys")
	if err := unix.Mount("sysfs", target, "sysfs", unix.MS_NOSUID|unix.MS_NODEV|unix.MS_NOEXEC, ""); err != nil {
		return &Error{Code: MountFailed, Path: target, Err: err}
	}
	return nil
}

// MountTmp mounts a size-capped tmpfs at <root>/tmp.
func (r *Root) MountTmp() error {
	target := filepath.Join(r.Path, "tmp")
	if err := unix.Mount("tmpfs", target, "tmpfs", unix.MS_NOSUID|unix.MS_NODEV, "size=64M,mode=1777"); err != nil {
		return &Error{Code: MountFailed, Path: target, Err: err}
	}
	return nil
}

// CleanupOldRoot lazily detaches and removes the .old_root directory left
// behind after a pivot_root call. It must run after the pivot, from
// inside the new root.
func CleanupOldRoot(oldRoot string) error {
	if err := namespace.Umount2(oldRoot); err != nil {
		return &Error{Code: MountFailed, Path: oldRoot, Err: err}
	}
	if err := os.Remove(oldRoot); err != nil {
		return &Error{Code: OsError, Path: oldRoot, Err: err}
	}
	return nil
}
