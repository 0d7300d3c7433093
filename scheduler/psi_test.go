//go:build linux

package scheduler

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTriggerLineFormat(t *testing.T) {
	tr := CPUSome(50*time.Millisecond, time.Second)
	want := "some 50000 1000000"
	if got := tr.line(); got != want {
		t.Errorf("line() = %q, want %q", got, want)
	}
}

func TestReadStatsParsesWellFormedLines(t *testing.T) {
	dir := t.TempDir()
	content := "some avg10=0.50 avg60=1.20 avg300=0.00 total=15000\n" +
		"full avg10=0.10 avg60=0.20 avg300=0.00 total=2000\n"
	path := filepath.Join(dir, "cpu.pressure")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	p := &Psi{base: dir}
	stats, err := p.ReadStats(CPU)
	if err != nil {
		t.Fatalf("ReadStats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("got %d stats, want 2", len(stats))
	}
	if stats[0].Level != Some || stats[0].Avg10 != 0.5 || stats[0].TotalUs != 15000 {
		t.Errorf("stats[0] = %+v", stats[0])
	}
	if stats[1].Level != Full || stats[1].Avg60 != 0.2 {
		t.Errorf("stats[1] = %+v", stats[1])
	}
}

func TestReadStatsToleratesMissingFields(t *testing.T) {
	dir := t.TempDir()
	content := "some avg10=0.50\n"
	path := filepath.Join(dir, "io.pressure")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	p := &Psi{base: dir}
	stats, err := p.ReadStats(IO)
	if err != nil {
		t.Fatalf("ReadStats: %v", err)
	}
	if len(stats) != 1 || stats[0].Avg10 != 0.5 || stats[0].Avg60 != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

type fakeQuotaWriter struct {
	quota  *uint64
	period uint64
}

func (f *fakeQuotaWriter) WriteCPUMax(quotaUs *uint64, periodUs uint64) error {
	f.quota = quotaUs
	f.period = periodUs
	return nil
}

func TestAdjustFullLevelJumpsToMax(t *testing.T) {
	fw := &fakeQuotaWriter{}
	p := &Psi{ctrl: fw, current: 20_000, maxQ: 100_000}
	if err := p.Adjust(Event{Level: Full}, 1.5); err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if p.current != 100_000 {
		t.Errorf("current = %d, want 100000", p.current)
	}
	if fw.quota == nil || *fw.quota != 100_000 {
		t.Errorf("quota written = %v, want 100000", fw.quota)
	}
}

func TestAdjustSomeLevelScalesByBurstMultiplier(t *testing.T) {
	fw := &fakeQuotaWriter{}
	p := &Psi{ctrl: fw, current: 20_000, maxQ: 100_000}
	if err := p.Adjust(Event{Level: Some}, 1.5); err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if p.current != 30_000 {
		t.Errorf("current = %d, want 30000", p.current)
	}
}

func TestAdjustNoopWhenQuotaUnchanged(t *testing.T) {
	fw := &fakeQuotaWriter{}
	p := &Psi{ctrl: fw, current: 100_000, maxQ: 100_000}
	if err := p.Adjust(Event{Level: Full}, 1.5); err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if fw.quota != nil {
		t.Errorf("expected no write, got quota=%v", fw.quota)
	}
}
