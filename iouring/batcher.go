//go:build linux

package iouring

import (
	"errors"
	"os"
	"runtime"
	"syscall"

	"golang.org/x/sys/unix"
)

// Write describes one cgroup file write: path is relative to the
// batcher's base directory, content is written verbatim.
type Write struct {
	Path    string
	Content []byte
}

// Batcher turns a list of cgroup file writes into a single io_uring
// submission: each Write becomes a linked openat→write→close chain, so the
// kernel executes all three in order without a round trip back to
// userspace between them.
type Batcher struct {
	ring *Ring
	base string
}

// NewBatcher opens a ring with enough submission-queue depth for up to
// maxWrites queued writes (three SQEs each).
func NewBatcher(base string, maxWrites uint32) (*Batcher, error) {
	ring, err := NewRing(maxWrites * 3)
	if err != nil {
		return nil, err
	}
	return &Batcher{ring: ring, base: base}, nil
}

// Close releases the underlying ring.
func (b *Batcher) Close() error { return b.ring.Close() }

// Submit queues every write as a linked openat/write/close chain and
// blocks until all of them complete. A failure at the ring-setup or
// submission level is returned as-is; cgroup.Controller.writeViaRing falls
// back to SyncBatchWrite on error, per the mandatory-fallback contract.
func (b *Batcher) Submit(writes []Write) error {
	if len(writes) == 0 {
		return nil
	}

	r := b.ring
	tail := loadAcquire(r.sqTail)
	mask := *r.sqMask

	// Paths must outlive the syscall; keep them rooted here.
	paths := make([][]byte, len(writes))

	for i, w := range writes {
		paths[i] = append([]byte(b.base+"/"+w.Path), 0)

		openIdx := (tail + uint32(i*3)) & mask
		writeIdx := (tail + uint32(i*3+1)) & mask
		closeIdx := (tail + uint32(i*3+2)) & mask

		r.sqes[openIdx] = sqe{
			opcode:   ioringOpOpenat,
			flags:    1 << iosqeIoLinkBit,
			fd:       unix.AT_FDCWD,
			addr:     uint64(uintptr(ptrOf(paths[i]))),
			len:      unix.O_WRONLY | unix.O_TRUNC,
			off:      0o644,
			userData: uint64(i)<<2 | 0,
		}
		r.sqes[writeIdx] = sqe{
			opcode: ioringOpWrite,
			flags:  1 << iosqeIoLinkBit,
			// The kernel resolves this to the file descriptor produced by
			// the linked openat SQE above (sqe->file_index / direct
			// descriptor linking); no userspace round trip is needed
			// between the two.
			fd:       -1,
			addr:     uint64(uintptr(ptrOf(w.Content))),
			len:      uint32(len(w.Content)),
			userData: uint64(i)<<2 | 1,
		}
		r.sqes[closeIdx] = sqe{
			opcode:   ioringOpClose,
			userData: uint64(i)<<2 | 2,
		}
	}

	n := uint32(len(writes) * 3)
	_, err := r.submit(n, n)
	runtime.KeepAlive(paths)
	runtime.KeepAlive(writes)
	if err != nil {
		return err
	}

	results := r.drain(n)
	for _, res := range results {
		if res < 0 {
			return &Error{Code: WriteFailed, Errno: syscall.Errno(-res)}
		}
	}
	return nil
}

// SyncBatchWrite is the mandatory fallback: it performs each write with a
// plain open/write/close sequence, synchronously. cgroup.Controller's
// writeViaRing calls this whenever ring setup or submission fails, since
// not every kernel tolerates linked SQE chains against cgroupfs. The errno
// is preserved on the returned Error so a caller can still distinguish
// "file does not exist" (an optional or not-yet-enabled controller) from a
// genuine I/O failure, exactly as a direct os.WriteFile caller could.
func SyncBatchWrite(base string, writes []Write) error {
	for _, w := range writes {
		path := base + "/" + w.Path
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return &Error{Code: WriteFailed, Path: path, Errno: errnoOf(err)}
		}
		_, werr := f.Write(w.Content)
		cerr := f.Close()
		if werr != nil {
			return &Error{Code: WriteFailed, Path: path, Errno: errnoOf(werr)}
		}
		if cerr != nil {
			return &Error{Code: WriteFailed, Path: path, Errno: errnoOf(cerr)}
		}
	}
	return nil
}

func errnoOf(err error) syscall.Errno {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return 0
}
