//go:build linux

package rootfs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCreateLaysOutSkeleton(t *testing.T) {
	dir := t.TempDir()
	root, err := Create(dir)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, d := range skeleton {
		if fi, err := os.Stat(filepath.Join(root.Path, d)); err != nil || !fi.IsDir() {
			t.Errorf("missing directory %s", d)
		}
	}
	fi, err := os.Stat(filepath.Join(root.Path, "tmp"))
	if err != nil {
		t.Fatalf("stat tmp: %v", err)
	}
	if fi.Mode().Perm() != 0o777 || fi.Mode()&os.ModeSticky == 0 {
		t.Errorf("tmp mode = %v, want sticky 1777", fi.Mode())
	}
}

func TestCreateRejectsEmptyPath(t *testing.T) {
	if _, err := Create(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSetHostnameWritesFile(t *testing.T) {
	dir := t.TempDir()
	root, err := Create(dir)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := root.SetHostname("test-host"); err != nil {
		t.Fatalf("SetHostname: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root.Path, "etc", "hostname"))
	if err != nil {
		t.Fatalf("read hostname: %v", err)
	}
	if string(data) != "test-host\n" {
		t.Errorf("hostname content = %q", data)
	}
}

func TestSetHostsContainsLoopbackEntries(t *testing.T) {
	dir := t.TempDir()
	root, _ := Create(dir)
	if err := root.SetHosts("test-host"); err != nil {
		t.Fatalf("SetHosts: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root.Path, "etc", "hosts"))
	if err != nil {
		t.Fatalf("read hosts: %v", err)
	}
	want := "127.0.0.1 localhost\n::1 localhost\n127.0.0.1 test-host\n"
	if string(data) != want {
		t.Errorf("hosts content = %q, want %q", data, want)
	}
}

func TestSetResolvConfOneLinePerServer(t *testing.T) {
	dir := t.TempDir()
	root, _ := Create(dir)
	if err := root.SetResolvConf([]string{"8.8.8.8", "1.1.1.1"}); err != nil {
		t.Fatalf("SetResolvConf: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root.Path, "etc", "resolv.conf"))
	if err != nil {
		t.Fatalf("read resolv.conf: %v", err)
	}
	want := "nameserver 8.8.8.8\nnameserver 1.1.1.1\n"
	if string(data) != want {
		t.Errorf("resolv.conf content = %q, want %q", data, want)
	}
}

func TestDevNodeTableMatchesContract(t *testing.T) {
	want := map[string][2]uint32{
		"null":    {1, 3},
		"zero":    {1, 5},
		"random":  {1, 8},
		"urandom": {1, 9},
		"tty":     {5, 0},
		"console": {5, 1},
	}
	if len(devNodes) != len(want) {
		t.Fatalf("devNodes has %d entries, want %d", len(devNodes), len(want))
	}
	for _, n := range devNodes {
		mm, ok := want[n.name]
		if !ok {
			t.Errorf("unexpected device node %q", n.name)
			continue
		}
		if n.major != mm[0] || n.minor != mm[1] {
			t.Errorf("%s major:minor = %d:%d, want %d:%d", n.name, n.major, n.minor, mm[0], mm[1])
		}
	}
}
