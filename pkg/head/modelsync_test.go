package head

import (
	"testing"

	"github.com/arapat/sparrow-sub000/pkg/protocol"
	"github.com/arapat/sparrow-sub000/pkg/tree"
)

func newTestModelSync(t *testing.T) (*ModelSync, *Scheduler) {
	t.Helper()
	model := tree.NewModel()
	scheduler := NewScheduler(5, 0, NewGrid())
	gamma := NewGamma(1.0, 0.1, 4)
	return NewModelSync(model, scheduler, gamma, 10), scheduler
}

func TestModelSyncAppliesAcceptedCandidate(t *testing.T) {
	ms, scheduler := newTestModelSync(t)
	scheduler.Assign("scanner-1", 1.0)

	p := protocol.Packet{
		ScannerID:    "scanner-1",
		Task:         protocol.Task{TreeIndex: 0, NodeIndex: 0, Gamma: 1.0},
		BaseVersion:  0,
		EffSize:      1000,
		HasCandidate: true,
		Candidate: tree.UpdateEntry{
			TreeIndex: 0, Parent: 0, Feature: 2, Threshold: 10,
			Predicts: [2]float32{0.5, -0.5},
		},
	}
	got := ms.Handle(p)
	if got != protocol.TypeAcceptRoot {
		t.Fatalf("expected accept_root, got %v", got)
	}
	if ms.model.Version() != 1 {
		t.Errorf("expected model version 1 after accept, got %d", ms.model.Version())
	}
}

func TestModelSyncRejectsStaleVersion(t *testing.T) {
	ms, scheduler := newTestModelSync(t)
	scheduler.Assign("scanner-1", 1.0)
	ms.model.Apply(tree.UpdateEntry{TreeIndex: 0, Parent: 0, Feature: 1, Threshold: 1, Predicts: [2]float32{1, -1}})

	p := protocol.Packet{
		ScannerID:   "scanner-1",
		Task:        protocol.Task{TreeIndex: 0, NodeIndex: 0, Gamma: 1.0},
		BaseVersion: 0, // stale: model is now at version 1
		EffSize:     1000,
	}
	got := ms.Handle(p)
	if got != protocol.TypeRejectBaseModel {
		t.Errorf("expected reject_base_model, got %v", got)
	}
}

func TestModelSyncEmptyObservesGamma(t *testing.T) {
	ms, scheduler := newTestModelSync(t)
	scheduler.Assign("scanner-1", 1.0)
	p := protocol.Packet{
		ScannerID:    "scanner-1",
		Task:         protocol.Task{TreeIndex: 0, NodeIndex: 0, Gamma: 1.0},
		EffSize:      1000,
		HasCandidate: false,
	}
	got := ms.Handle(p)
	if got != protocol.TypeEmptyRoot {
		t.Errorf("expected empty_root, got %v", got)
	}
	if ms.gamma.filled != 1 {
		t.Errorf("expected the empty packet to be recorded by the gamma controller, got %d outcomes", ms.gamma.filled)
	}
}
