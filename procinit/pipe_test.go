//go:build linux

package procinit

import (
	"testing"
	"time"
)

func TestSyncPipeSignalUnblocksWait(t *testing.T) {
	p, err := NewSyncPipe()
	if err != nil {
		t.Fatalf("NewSyncPipe: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- p.Wait() }()

	if err := p.Signal(); err != nil {
		t.Fatalf("Signal: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not unblock after Signal")
	}
}
