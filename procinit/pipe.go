//go:build linux

package procinit

import "golang.org/x/sys/unix"

// SyncPipe is a one-byte handshake between a container's init process and
// its parent: the child blocks on Wait until the parent has finished
// placing it into its cgroup and writing its id mappings, so it never
// runs with the wrong resource limits or the wrong uid/gid view.
type SyncPipe struct {
	readFd, writeFd int
}

// NewSyncPipe creates a CLOEXEC pipe so neither end leaks across the
// init process's eventual execve.
func NewSyncPipe() (*SyncPipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return nil, err
	}
	return &SyncPipe{readFd: fds[0], writeFd: fds[1]}, nil
}

// Wait blocks the child until the parent calls Signal, then closes the
// read end.
func (p *SyncPipe) Wait() error {
	var one [1]byte
	_, err := unix.Read(p.readFd, one[:])
	_ = unix.Close(p.readFd)
	return err
}

// Signal releases a child blocked in Wait, then closes the write end.
func (p *SyncPipe) Signal() error {
	_, err := unix.Write(p.writeFd, []byte{1})
	cerr := unix.Close(p.writeFd)
	if err != nil {
		return err
	}
	return cerr
}

// Close closes both ends without signaling, used on an error path where
// the child was never allowed to proceed.
func (p *SyncPipe) Close() {
	_ = unix.Close(p.readFd)
	_ = unix.Close(p.writeFd)
}
