//go:build linux

package iouring

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Kernel ABI constants from uapi/linux/io_uring.h not exposed by
// golang.org/x/sys/unix. Only the subset this package needs.
const (
	ioringOpOpenat = 18
	ioringOpClose  = 19
	ioringOpWrite  = 23

	iosqeIoLinkBit = 2 // IOSQE_IO_LINK_BIT

	ioringEnterGetevents = 1 << 0

	ioringOffSqRing = 0
	ioringOffCqRing = 0x8000000
	ioringOffSqes   = 0x10000000
)

// sqRingOffsets mirrors struct io_sqring_offsets.
type sqRingOffsets struct {
	head, tail, ringMask, ringEntries, flags, dropped, array, resv1 uint32
	userAddr                                                        uint64
}

// cqRingOffsets mirrors struct io_cqring_offsets.
type cqRingOffsets struct {
	head, tail, ringMask, ringEntries, overflow, cqes uint32
	flags                                              uint32
	resv1                                               uint32
	userAddr                                            uint64
}

// params mirrors struct io_uring_params.
type params struct {
	sqEntries    uint32
	cqEntries    uint32
	flags        uint32
	sqThreadCPU  uint32
	sqThreadIdle uint32
	features     uint32
	wqFd         uint32
	resv         [3]uint32
	sqOff        sqRingOffsets
	cqOff        cqRingOffsets
}

// sqe mirrors struct io_uring_sqe (64 bytes), the fields this package uses.
type sqe struct {
	opcode      uint8
	flags       uint8
	ioprio      uint16
	fd          int32
	off         uint64
	addr        uint64
	len         uint32
	rwFlags     uint32
	userData    uint64
	bufIndex    uint16
	personality uint16
	spliceFdIn  int32
	_pad        [2]uint64
}

// cqe mirrors struct io_uring_cqe.
type cqe struct {
	userData uint64
	res      int32
	flags    uint32
}

// Ring is a minimal io_uring instance: one submission queue, one
// completion queue, mapped once at setup and reused for every batch.
type Ring struct {
	fd int

	sqRing  []byte
	cqRing  []byte
	sqesRaw []byte

	sqHead, sqTail, sqMask, sqEntries *uint32
	sqArray                           []uint32
	sqes                              []sqe

	cqHead, cqTail, cqMask *uint32
	cqes                   []cqe
}

// NewRing sets up a ring with the given submission-queue depth.
func NewRing(depth uint32) (*Ring, error) {
	var p params
	fd, _, errno := unix.Syscall(unix.SYS_IO_URING_SETUP, uintptr(depth), uintptr(unsafe.Pointer(&p)), 0)
	if errno != 0 {
		return nil, mapErrno(errno)
	}

	r := &Ring{fd: int(fd)}

	sqRingSize := int(p.sqOff.array) + int(p.sqEntries)*4
	cqRingSize := int(p.cqOff.cqes) + int(p.cqEntries)*int(unsafe.Sizeof(cqe{}))

	sqRing, err := unix.Mmap(r.fd, ioringOffSqRing, sqRingSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		_ = unix.Close(r.fd)
		return nil, mapErrno(err)
	}
	cqRing, err := unix.Mmap(r.fd, ioringOffCqRing, cqRingSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		_ = unix.Munmap(sqRing)
		_ = unix.Close(r.fd)
		return nil, mapErrno(err)
	}
	sqesSize := int(p.sqEntries) * int(unsafe.Sizeof(sqe{}))
	sqesRaw, err := unix.Mmap(r.fd, ioringOffSqes, sqesSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		_ = unix.Munmap(sqRing)
		_ = unix.Munmap(cqRing)
		_ = unix.Close(r.fd)
		return nil, mapErrno(err)
	}

	r.sqRing, r.cqRing, r.sqesRaw = sqRing, cqRing, sqesRaw
	r.sqHead = (*uint32)(unsafe.Pointer(&sqRing[p.sqOff.head]))
	r.sqTail = (*uint32)(unsafe.Pointer(&sqRing[p.sqOff.tail]))
	r.sqMask = (*uint32)(unsafe.Pointer(&sqRing[p.sqOff.ringMask]))
	r.sqEntries = (*uint32)(unsafe.Pointer(&sqRing[p.sqOff.ringEntries]))
	r.sqArray = unsafe.Slice((*uint32)(unsafe.Pointer(&sqRing[p.sqOff.array])), p.sqEntries)
	r.sqes = unsafe.Slice((*sqe)(unsafe.Pointer(&sqesRaw[0])), p.sqEntries)

	r.cqHead = (*uint32)(unsafe.Pointer(&cqRing[p.cqOff.head]))
	r.cqTail = (*uint32)(unsafe.Pointer(&cqRing[p.cqOff.tail]))
	r.cqMask = (*uint32)(unsafe.Pointer(&cqRing[p.cqOff.ringMask]))
	r.cqes = unsafe.Slice((*cqe)(unsafe.Pointer(&cqRing[p.cqOff.cqes])), p.cqEntries)

	return r, nil
}

// Close releases the ring's mappings and file descriptor.
func (r *Ring) Close() error {
	_ = unix.Munmap(r.sqesRaw)
	_ = unix.Munmap(r.cqRing)
	_ = unix.Munmap(r.sqRing)
	return unix.Close(r.fd)
}

func loadAcquire(p *uint32) uint32     { return atomic.LoadUint32(p) }
func storeRelease(p *uint32, v uint32) { atomic.StoreUint32(p, v) }

// ptrOf returns the address of b's first element, or nil for an empty
// slice. It does not keep b alive; the caller must hold b (for example with
// runtime.KeepAlive) until the kernel is done with the address.
func ptrOf(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}

// submit writes n prepared SQEs (already placed at tail..tail+n-1 by the
// caller) into the visible submission queue and calls io_uring_enter,
// waiting for waitNr completions.
func (r *Ring) submit(n, waitNr uint32) (uint32, error) {
	tail := loadAcquire(r.sqTail)
	mask := *r.sqMask
	for i := uint32(0); i < n; i++ {
		r.sqArray[(tail+i)&mask] = (tail + i) % *r.sqEntries
	}
	storeRelease(r.sqTail, tail+n)

	var flags uintptr
	if waitNr > 0 {
		flags = ioringEnterGetevents
	}
	submitted, _, errno := unix.Syscall6(unix.SYS_IO_URING_ENTER, uintptr(r.fd), uintptr(n), uintptr(waitNr), flags, 0, 0)
	if errno != 0 {
		return 0, mapErrno(errno)
	}
	return uint32(submitted), nil
}

// drain consumes up to max completion entries, returning their results.
func (r *Ring) drain(max uint32) []int32 {
	head := loadAcquire(r.cqHead)
	tail := loadAcquire(r.cqTail)
	mask := *r.cqMask

	results := make([]int32, 0, tail-head)
	for i := head; i != tail && uint32(len(results)) < max; i++ {
		results = append(results, r.cqes[i&mask].res)
	}
	storeRelease(r.cqHead, head+uint32(len(results)))
	return results
}
