//go:build linux

package iouring

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSyncBatchWriteWritesAllFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"cpu.max", "memory.max"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("placeholder"), 0o644); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}

	writes := []Write{
		{Path: "cpu.max", Content: []byte("50000 100000")},
		{Path: "memory.max", Content: []byte("268435456")},
	}
	if err := SyncBatchWrite(dir, writes); err != nil {
		t.Fatalf("SyncBatchWrite: %v", err)
	}

	for _, w := range writes {
		got, err := os.ReadFile(filepath.Join(dir, w.Path))
		if err != nil {
			t.Fatalf("read %s: %v", w.Path, err)
		}
		if string(got) != string(w.Content) {
			t.Errorf("%s = %q, want %q", w.Path, got, w.Content)
		}
	}
}

func TestSyncBatchWriteMissingFileErrors(t *testing.T) {
	dir := t.TempDir()
	err := SyncBatchWrite(dir, []Write{{Path: "does.not.exist", Content: []byte("x")}})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSyncBatchWriteEmptyIsNoop(t *testing.T) {
	if err := SyncBatchWrite(t.TempDir(), nil); err != nil {
		t.Fatalf("SyncBatchWrite(nil) = %v", err)
	}
}
