package namespace

// Flags is a bit-flag set of kernel isolation domains, mirroring the
// CLONE_NEW* constants accepted by clone(2)/unshare(2).
type Flags uint64

// Kernel namespace flag constants (uapi/linux/sched.h).
const (
	NEWCGROUP Flags = 0x02000000
	NEWNS     Flags = 0x00020000
	NEWUTS    Flags = 0x04000000
	NEWIPC    Flags = 0x08000000
	NEWUSER   Flags = 0x10000000
	NEWPID    Flags = 0x20000000
	NEWNET    Flags = 0x40000000
)

// CONTAINER is the default namespace bundle: mount, PID, UTS and IPC
// isolation, without touching the network or user ID space.
const CONTAINER = NEWNS | NEWPID | NEWUTS | NEWIPC

// Contains reports whether every bit in other is set in f.
func (f Flags) Contains(other Flags) bool {
	return f&other == other
}

// With returns f with the given flags added.
func (f Flags) With(other Flags) Flags {
	return f | other
}

// Without returns f with the given flags cleared.
func (f Flags) Without(other Flags) Flags {
	return f &^ other
}
