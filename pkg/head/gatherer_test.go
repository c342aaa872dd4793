package head

import (
	"sync"
	"testing"

	"github.com/arapat/sparrow-sub000/pkg/example"
	"github.com/arapat/sparrow-sub000/pkg/transport"
)

func TestGathererFlushesAtCapacity(t *testing.T) {
	engine, err := transport.NewLocalEngine(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalEngine: %v", err)
	}

	var mu sync.Mutex
	var versions []uint32
	g := NewGatherer(engine, 3, func(v uint32) {
		mu.Lock()
		versions = append(versions, v)
		mu.Unlock()
	})

	in := make(chan example.SampleEntry, 10)
	for i := 0; i < 7; i++ {
		in <- example.SampleEntry{BaseVersion: uint32(i)}
	}
	close(in)
	g.Drain(in)

	mu.Lock()
	defer mu.Unlock()
	// 7 entries at capacity 3 -> batches of 3, 3, 1
	if len(versions) != 3 {
		t.Fatalf("expected 3 flushed batches, got %d: %v", len(versions), versions)
	}
	if g.Version() != 3 {
		t.Errorf("expected gatherer version 3, got %d", g.Version())
	}
}

func TestGathererPersistsReadableBatch(t *testing.T) {
	engine, _ := transport.NewLocalEngine(t.TempDir())
	g := NewGatherer(engine, 2, nil)
	in := make(chan example.SampleEntry, 2)
	in <- example.SampleEntry{BaseVersion: 42}
	in <- example.SampleEntry{BaseVersion: 42}
	close(in)
	g.Drain(in)

	batch, err := transport.ReadSampleBatch(engine, 1)
	if err != nil {
		t.Fatalf("ReadSampleBatch: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("expected 2 entries in persisted batch, got %d", len(batch))
	}
}
