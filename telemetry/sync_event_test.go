package telemetry

import "testing"

func testState() ContainerState {
	var hash [32]byte
	for i := range hash {
		hash[i] = 0xAB
	}
	return ContainerState{
		ContainerID: 1,
		ImageHash:   hash,
		Status:      StatusRunning,
		CPULimitUs:  100_000,
		MemoryLimit: 256 * 1024 * 1024,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	state := testState()
	event := EncodeSyncEvent(state)
	decoded, err := DecodeSyncEvent(event)
	if err != nil {
		t.Fatalf("DecodeSyncEvent: %v", err)
	}
	if decoded.ContainerID != 1 {
		t.Errorf("ContainerID = %d, want 1", decoded.ContainerID)
	}
	if decoded.Status != StatusRunning {
		t.Errorf("Status = %v, want running", decoded.Status)
	}
	if decoded.CPULimitUs != 100_000 {
		t.Errorf("CPULimitUs = %d, want 100000", decoded.CPULimitUs)
	}
	if decoded.MemoryLimit != 256*1024*1024 {
		t.Errorf("MemoryLimit = %d, want 256MiB", decoded.MemoryLimit)
	}
}

func TestChecksumTamperIsRejected(t *testing.T) {
	event := EncodeSyncEvent(testState())
	event.Data[0] ^= 0xFF
	if _, err := DecodeSyncEvent(event); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

func TestDecodeRejectsInvalidStatus(t *testing.T) {
	event := EncodeSyncEvent(testState())
	event.Data[8] = 99
	event.Data[17] = checksum(event.Data[:17])
	if _, err := DecodeSyncEvent(event); err == nil {
		t.Fatal("expected invalid status error")
	}
}

func TestWorldHashDeterministic(t *testing.T) {
	states := []ContainerState{testState(), testState()}
	h1 := WorldHash(states)
	h2 := WorldHash(states)
	if h1 != h2 {
		t.Errorf("WorldHash not deterministic: %d != %d", h1, h2)
	}
}

func TestWorldHashChangesWithStatus(t *testing.T) {
	s1 := []ContainerState{testState()}
	s2State := testState()
	s2State.Status = StatusStopped
	s2 := []ContainerState{s2State}

	if WorldHash(s1) == WorldHash(s2) {
		t.Error("WorldHash did not change when status changed")
	}
}

func TestMemoryLimitTruncatesToMegabyteGranularity(t *testing.T) {
	state := testState()
	state.MemoryLimit = 256*1024*1024 + 1000 // not MiB-aligned
	event := EncodeSyncEvent(state)
	decoded, err := DecodeSyncEvent(event)
	if err != nil {
		t.Fatalf("DecodeSyncEvent: %v", err)
	}
	if decoded.MemoryLimit != 256*1024*1024 {
		t.Errorf("MemoryLimit = %d, want truncated to 256MiB", decoded.MemoryLimit)
	}
}
