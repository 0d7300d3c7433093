//go:build linux

package clone3

import (
	"syscall"
	"testing"
	"unsafe"
)

func TestArgsABILayout(t *testing.T) {
	var a Args
	// Eleven 64-bit fields, no implicit padding: the struct must marshal
	// byte-for-byte onto the kernel's struct clone_args.
	if got, want := unsafe.Sizeof(a), uintptr(11*8); got != want {
		t.Fatalf("Args size = %d, want %d", got, want)
	}
}

func TestMapErrorTaxonomy(t *testing.T) {
	cases := []struct {
		errno syscall.Errno
		want  Code
	}{
		{syscall.EPERM, PermissionDenied},
		{syscall.EINVAL, InvalidArgument},
		{syscall.ENOMEM, OutOfMemory},
		{syscall.ENOSYS, NotSupported},
		{syscall.EBADF, InvalidCgroupFd},
		{syscall.EIO, OsError},
	}
	for _, c := range cases {
		err := mapError(c.errno)
		var ce *Error
		if !asError(err, &ce) {
			t.Fatalf("mapError(%v) did not produce a *clone3.Error", c.errno)
		}
		if ce.Code != c.want {
			t.Errorf("mapError(%v).Code = %v, want %v", c.errno, ce.Code, c.want)
		}
	}
}

func asError(err error, target **Error) bool {
	if e, ok := err.(*Error); ok {
		*target = e
		return true
	}
	return false
}
