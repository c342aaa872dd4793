package protocol

import "testing"

func classify(t *testing.T, eff float64, base, current uint32, valid, hasCandidate bool, nodeIndex int32) Type {
	t.Helper()
	p := &Packet{
		BaseVersion:  base,
		EffSize:      eff,
		HasCandidate: hasCandidate,
		Task:         Task{NodeIndex: nodeIndex},
	}
	return Classify(p, 100, current, valid)
}

func TestClassifySmallEffSize(t *testing.T) {
	if got := classify(t, 10, 1, 1, true, true, 0); got != TypeSmallEffSize {
		t.Errorf("expected small eff size regardless of other fields, got %v", got)
	}
}

func TestClassifyRejectBaseModel(t *testing.T) {
	if got := classify(t, 1000, 1, 2, true, true, 5); got != TypeRejectBaseModel {
		t.Errorf("expected reject base model on stale version, got %v", got)
	}
}

func TestClassifyRejectSample(t *testing.T) {
	if got := classify(t, 1000, 2, 2, false, true, 5); got != TypeRejectSample {
		t.Errorf("expected reject sample on invalid node, got %v", got)
	}
}

func TestClassifyEmptyRootVsNonroot(t *testing.T) {
	if got := classify(t, 1000, 2, 2, true, false, 0); got != TypeEmptyRoot {
		t.Errorf("expected empty root, got %v", got)
	}
	if got := classify(t, 1000, 2, 2, true, false, 3); got != TypeEmptyNonroot {
		t.Errorf("expected empty nonroot, got %v", got)
	}
}

func TestClassifyAcceptRootVsNonroot(t *testing.T) {
	if got := classify(t, 1000, 2, 2, true, true, 0); got != TypeAcceptRoot {
		t.Errorf("expected accept root, got %v", got)
	}
	if got := classify(t, 1000, 2, 2, true, true, 3); got != TypeAcceptNonroot {
		t.Errorf("expected accept nonroot, got %v", got)
	}
}

func TestTypeHelpers(t *testing.T) {
	if !TypeAcceptRoot.IsAccept() || TypeAcceptRoot.IsEmpty() {
		t.Errorf("accept root classification flags wrong")
	}
	if !TypeEmptyNonroot.IsEmpty() || TypeEmptyNonroot.IsAccept() {
		t.Errorf("empty nonroot classification flags wrong")
	}
}
