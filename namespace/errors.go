package namespace

import (
	"fmt"
	"syscall"
)

// Code is a closed tag identifying which member of the NamespaceError
// family an Error wraps.
type Code int

const (
	PermissionDenied Code = iota
	InvalidArgument
	OutOfMemory
	NotInNamespace
	InvalidPath
	NotSupported
	OsError
)

func (c Code) String() string {
	switch c {
	case PermissionDenied:
		return "permission_denied"
	case InvalidArgument:
		return "invalid_argument"
	case OutOfMemory:
		return "out_of_memory"
	case NotInNamespace:
		return "not_in_namespace"
	case InvalidPath:
		return "invalid_path"
	case NotSupported:
		return "not_supported"
	default:
		return "os_error"
	}
}

// Error is the namespace package's closed error type.
type Error struct {
	Code  Code
	Name  string
	Errno syscall.Errno
}

func (e *Error) Error() string {
	switch e.Code {
	case NotInNamespace:
		return fmt.Sprintf("namespace: not in namespace: %s", e.Name)
	case OsError:
		return fmt.Sprintf("namespace: os error: %v", e.Errno)
	default:
		return fmt.Sprintf("namespace: %s", e.Code)
	}
}

func (e *Error) Unwrap() error {
	if e.Errno != 0 {
		return e.Errno
	}
	return nil
}

// FromErrno maps a raw errno returned by unshare/clone3/pivot_root/mount
// into the namespace error taxonomy.
func FromErrno(errno syscall.Errno) error {
	switch errno {
	case syscall.EPERM:
		return &Error{Code: PermissionDenied, Errno: errno}
	case syscall.EINVAL:
		return &Error{Code: InvalidArgument, Errno: errno}
	case syscall.ENOMEM:
		return &Error{Code: OutOfMemory, Errno: errno}
	case syscall.ENOSYS:
		return &Error{Code: NotSupported, Errno: errno}
	default:
		return &Error{Code: OsError, Errno: errno}
	}
}
