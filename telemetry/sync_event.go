// Package telemetry carries container lifecycle state across the
// lockstep synchronization bridge used by distributed orchestration:
// a compact binary event format plus a deterministic hash over the set of
// known containers, so two nodes can detect divergence without exchanging
// full state.
package telemetry

import (
	"encoding/binary"
	"fmt"
)

// Status mirrors container.State as a single byte, the form the sync wire
// format and the world hash both carry it in.
type Status uint8

const (
	StatusCreated Status = iota
	StatusRunning
	StatusPaused
	StatusStopped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusRunning:
		return "running"
	case StatusPaused:
		return "paused"
	case StatusStopped:
		return "stopped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ContainerState is one node's view of a container, the unit the sync
// bridge exchanges and hashes.
type ContainerState struct {
	ContainerID  uint64
	ImageHash    [32]byte
	Status       Status
	CPULimitUs   uint64
	MemoryLimit  uint64
}

// SyncEvent is the 18-byte wire form of a ContainerState:
// [container_id:8][status:1][cpu_limit_us:4][mem_limit_mib:4][checksum:1].
// Each limit keeps only its low 32 bits (cpu in microseconds, memory in
// MiB, i.e. bytes shifted right by 20) because the bridge only needs
// orchestration-grade precision, not exact byte counts.
type SyncEvent struct {
	Data [18]byte
}

// EncodeSyncEvent packs state into its compact wire form.
func EncodeSyncEvent(state ContainerState) SyncEvent {
	var e SyncEvent
	binary.LittleEndian.PutUint64(e.Data[0:8], state.ContainerID)
	e.Data[8] = byte(state.Status)
	binary.LittleEndian.PutUint32(e.Data[9:13], uint32(state.CPULimitUs))
	binary.LittleEndian.PutUint32(e.Data[13:17], uint32(state.MemoryLimit>>20))
	e.Data[17] = checksum(e.Data[:17])
	return e
}

// DecodeSyncEvent unpacks a wire event, verifying its checksum first.
// ImageHash is never carried on the wire and comes back zeroed.
func DecodeSyncEvent(e SyncEvent) (ContainerState, error) {
	if got, want := e.Data[17], checksum(e.Data[:17]); got != want {
		return ContainerState{}, fmt.Errorf("telemetry: checksum mismatch: got %#x want %#x", got, want)
	}

	status := Status(e.Data[8])
	if status > StatusFailed {
		return ContainerState{}, fmt.Errorf("telemetry: invalid status byte %d", e.Data[8])
	}

	return ContainerState{
		ContainerID: binary.LittleEndian.Uint64(e.Data[0:8]),
		Status:      status,
		CPULimitUs:  uint64(binary.LittleEndian.Uint32(e.Data[9:13])),
		MemoryLimit: uint64(binary.LittleEndian.Uint32(e.Data[13:17])) << 20,
	}, nil
}

func checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

const (
	fnvOffsetBasis uint64 = 0xcbf29ce484222325
	fnvPrime       uint64 = 0x100000001b3
)

// WorldHash computes a deterministic FNV-1a-derived hash over a set of
// container states, letting two nodes compare a single uint64 instead of
// the full state list to detect desync.
func WorldHash(states []ContainerState) uint64 {
	hash := fnvOffsetBasis
	for _, s := range states {
		hash ^= s.ContainerID
		hash *= fnvPrime
		hash ^= uint64(s.Status)
		hash *= fnvPrime
		hash ^= s.CPULimitUs
		hash *= fnvPrime
		hash ^= s.MemoryLimit
		hash *= fnvPrime
	}
	return hash
}
