package scanner

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/arapat/sparrow-sub000/pkg/bins"
	"github.com/arapat/sparrow-sub000/pkg/example"
	"github.com/arapat/sparrow-sub000/pkg/protocol"
	"github.com/arapat/sparrow-sub000/pkg/tree"
)

type fakeNetwork struct {
	tasks   []protocol.Task
	taskPos int
	sent    []protocol.Packet
}

func (f *fakeNetwork) ReadTask() (protocol.Task, error) {
	if f.taskPos >= len(f.tasks) {
		return protocol.Task{}, errors.New("no more tasks")
	}
	t := f.tasks[f.taskPos]
	f.taskPos++
	return t, nil
}

func (f *fakeNetwork) SendPacket(p protocol.Packet) error {
	f.sent = append(f.sent, p)
	return nil
}

func feedLoader(loader *BufferLoader, entries []example.SampleEntry) {
	// Announce/fetch normally goes through transport; tests inject the
	// active batch directly via the unexported fields, same package.
	loader.active = entries
}

func TestBoosterReportsEmptyWhenBufferRunsDry(t *testing.T) {
	b := bins.Bins{Features: []bins.Mapper{{Thresholds: []float64{5}}}}
	loader := NewBufferLoader(nil)
	feedLoader(loader, nil) // empty buffer: immediately dry

	model := tree.NewModel()
	net := &fakeNetwork{tasks: []protocol.Task{{TreeIndex: 0, NodeIndex: 0, Gamma: 0.1}}}
	running := &atomic.Bool{}
	running.Store(true)

	bs := NewBooster("scanner-1", b, loader, model, net, running)
	packet := bs.searchOneTask(net.tasks[0])
	if packet.HasCandidate {
		t.Errorf("expected no candidate from an empty buffer")
	}
}

func TestBoosterAcceptsStrongSignal(t *testing.T) {
	b := bins.Bins{Features: []bins.Mapper{{Thresholds: []float64{5}}}}
	loader := NewBufferLoader(nil)

	var entries []example.SampleEntry
	for i := 0; i < 20000; i++ {
		entries = append(entries,
			example.SampleEntry{
				ScoredExample: example.ScoredExample{
					Example: example.Example{Label: 1, Features: []uint16{0}},
					Weight:  0.01,
				},
			},
			example.SampleEntry{
				ScoredExample: example.ScoredExample{
					Example: example.Example{Label: -1, Features: []uint16{1}},
					Weight:  0.01,
				},
			},
		)
	}
	feedLoader(loader, entries)

	model := tree.NewModel()
	task := protocol.Task{TreeIndex: 0, NodeIndex: 0, Gamma: 0.01}
	net := &fakeNetwork{tasks: []protocol.Task{task}}
	running := &atomic.Bool{}
	running.Store(true)

	bs := NewBooster("scanner-1", b, loader, model, net, running)
	packet := bs.searchOneTask(task)
	if !packet.HasCandidate {
		t.Fatalf("expected booster to accept a candidate from a clear signal")
	}
}

func TestBoosterSkipsStaleEntries(t *testing.T) {
	b := bins.Bins{Features: []bins.Mapper{{Thresholds: []float64{5}}}}
	loader := NewBufferLoader(nil)
	feedLoader(loader, []example.SampleEntry{
		{BaseVersion: 99, ScoredExample: example.ScoredExample{Example: example.Example{Label: 1, Features: []uint16{0}}}},
	})

	model := tree.NewModel() // version 0
	task := protocol.Task{TreeIndex: 0, NodeIndex: 0, Gamma: 0.1}
	net := &fakeNetwork{tasks: []protocol.Task{task}}
	running := &atomic.Bool{}
	running.Store(true)

	bs := NewBooster("scanner-1", b, loader, model, net, running)
	packet := bs.searchOneTask(task)
	if packet.HasCandidate {
		t.Errorf("expected stale entry to be skipped, not scored")
	}
}
