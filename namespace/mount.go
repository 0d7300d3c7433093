//go:build linux

package namespace

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// MakePrivate recursively marks the mount tree at path private, so mount
// and unmount events inside the namespace never propagate to the host.
func MakePrivate(path string) error {
	if err := unix.Mount("", path, "", unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
		return wrapMountErr(err)
	}
	return nil
}

// Mount is a thin wrapper over mount(2) translated into the namespace error
// taxonomy.
func Mount(source, target, fstype string, flags uintptr, data string) error {
	if err := unix.Mount(source, target, fstype, flags, data); err != nil {
		return wrapMountErr(err)
	}
	return nil
}

// BindMount bind-mounts source onto target, optionally read-only.
func BindMount(source, target string, readonly bool) error {
	if err := unix.Mount(source, target, "", unix.MS_BIND|unix.MS_REC|unix.MS_NOSUID|unix.MS_NODEV, ""); err != nil {
		return wrapMountErr(err)
	}
	if !readonly {
		return nil
	}
	if err := unix.Mount("", target, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY|unix.MS_NOSUID|unix.MS_NODEV, ""); err != nil {
		return wrapMountErr(err)
	}
	return nil
}

// Umount unmounts target with no special flags.
func Umount(target string) error {
	if err := unix.Unmount(target, 0); err != nil {
		return wrapMountErr(err)
	}
	return nil
}

// Umount2 unmounts target lazily (MNT_DETACH): the mount is removed from
// the namespace's view immediately but stays alive until its last
// reference is dropped, which is what lets .old_root disappear even while
// some file beneath it is still open.
func Umount2(target string) error {
	if err := unix.Unmount(target, unix.MNT_DETACH); err != nil {
		return wrapMountErr(err)
	}
	return nil
}

// PivotRoot swaps the process's root filesystem to newRoot, stashing the
// previous root at putOld (which must be a directory beneath newRoot).
func PivotRoot(newRoot, putOld string) error {
	if err := unix.PivotRoot(newRoot, putOld); err != nil {
		return wrapMountErr(err)
	}
	return nil
}

func wrapMountErr(err error) error {
	if errno, ok := err.(syscall.Errno); ok {
		return FromErrno(errno)
	}
	return &Error{Code: OsError}
}
