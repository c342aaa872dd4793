package stratum

import (
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arapat/sparrow-sub000/pkg/diskblock"
	"github.com/arapat/sparrow-sub000/pkg/example"
)

func newTestStratum(t *testing.T, blockCapacity int) (*Stratum, *atomic.Bool) {
	t.Helper()
	disk, err := diskblock.Open(filepath.Join(t.TempDir(), "strata.bin"), 4096)
	if err != nil {
		t.Fatalf("diskblock.Open: %v", err)
	}
	running := &atomic.Bool{}
	running.Store(true)
	s := NewStratum(-2, blockCapacity, disk, running)
	t.Cleanup(func() {
		running.Store(false)
		s.Wait()
		disk.Close()
	})
	return s, running
}

func TestStratumRoundtripsEntries(t *testing.T) {
	s, _ := newTestStratum(t, 4)
	want := example.SampleEntry{BaseVersion: 7}
	want.Label = 1
	s.In() <- want

	select {
	case got := <-s.Out():
		if got.BaseVersion != 7 || got.Label != 1 {
			t.Errorf("roundtrip mismatch: got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for entry to reach the out-queue")
	}
}

func TestStratumHandlesManyEntries(t *testing.T) {
	s, _ := newTestStratum(t, 4)
	const n = 20
	go func() {
		for i := 0; i < n; i++ {
			s.In() <- example.SampleEntry{BaseVersion: uint32(i)}
		}
	}()
	seen := make(map[uint32]bool)
	timeout := time.After(5 * time.Second)
	for len(seen) < n {
		select {
		case got := <-s.Out():
			seen[got.BaseVersion] = true
		case <-timeout:
			t.Fatalf("timed out with only %d/%d entries seen", len(seen), n)
		}
	}
}
