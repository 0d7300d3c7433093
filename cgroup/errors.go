package cgroup

import (
	"errors"
	"fmt"
	"syscall"
)

// Code is a closed tag identifying which member of the CgroupError family
// an Error wraps.
type Code int

const (
	// NotFound means the cgroup directory does not exist.
	NotFound Code = iota
	// PermissionDenied means the kernel refused the operation (EACCES/EPERM).
	PermissionDenied
	// InvalidParameter means a caller-supplied value could not be formatted
	// onto the wire (e.g. an empty device string).
	InvalidParameter
	// Io covers every other I/O failure.
	Io
	// CgroupV2NotAvailable means /sys/fs/cgroup is not a cgroup v2 mount.
	CgroupV2NotAvailable
	// ControllerNotEnabled means a mandatory controller file (cpu.max,
	// memory.max) is missing because the controller was never enabled on
	// this kernel.
	ControllerNotEnabled
)

func (c Code) String() string {
	switch c {
	case NotFound:
		return "not_found"
	case PermissionDenied:
		return "permission_denied"
	case InvalidParameter:
		return "invalid_parameter"
	case CgroupV2NotAvailable:
		return "cgroup_v2_not_available"
	case ControllerNotEnabled:
		return "controller_not_enabled"
	default:
		return "io"
	}
}

// Error is the cgroup package's closed error type. Path and Name carry the
// offending cgroup path / controller name where applicable.
type Error struct {
	Code Code
	Path string
	Name string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case NotFound:
		return fmt.Sprintf("cgroup: not found: %s", e.Path)
	case ControllerNotEnabled:
		return fmt.Sprintf("cgroup: controller not enabled: %s", e.Name)
	case CgroupV2NotAvailable:
		return "cgroup: cgroup v2 not available"
	case InvalidParameter:
		return fmt.Sprintf("cgroup: invalid parameter: %v", e.Err)
	default:
		if e.Err != nil {
			return fmt.Sprintf("cgroup: %s: %v", e.Code, e.Err)
		}
		return fmt.Sprintf("cgroup: %s", e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func newNotFound(path string) error {
	return &Error{Code: NotFound, Path: path}
}

func newControllerNotEnabled(name string) error {
	return &Error{Code: ControllerNotEnabled, Name: name}
}

func newInvalidParameter(err error) error {
	return &Error{Code: InvalidParameter, Err: err}
}

// mapErrno folds a raw OS error into the cgroup error taxonomy:
// ENOENT -> NotFound, EACCES/EPERM -> PermissionDenied, everything else -> Io.
func mapErrno(path string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, syscall.ENOENT):
		return &Error{Code: NotFound, Path: path, Err: err}
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return &Error{Code: PermissionDenied, Path: path, Err: err}
	default:
		return &Error{Code: Io, Path: path, Err: err}
	}
}

// IsNotFound reports whether err is a cgroup NotFound error.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == NotFound
}
