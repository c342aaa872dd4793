package head

import "testing"

func TestSchedulerAssignsRootFirst(t *testing.T) {
	s := NewScheduler(5, 0, NewGrid())
	task, ok := s.Assign("scanner-1", 0.1)
	if !ok {
		t.Fatalf("expected an assignable task")
	}
	if task.TreeIndex != 0 || task.NodeIndex != 0 {
		t.Errorf("expected root task, got %+v", task)
	}
}

func TestSchedulerDoesNotDoubleAssignSameNode(t *testing.T) {
	s := NewScheduler(5, 0, NewGrid())
	s.Assign("scanner-1", 0.1)
	_, ok := s.Assign("scanner-2", 0.1)
	if ok {
		t.Errorf("expected no assignable task while root is already assigned")
	}
}

func TestSchedulerReportAcceptExposesChildren(t *testing.T) {
	s := NewScheduler(5, 0, NewGrid())
	s.Assign("scanner-1", 0.1)
	s.ReportAccept("scanner-1", 1, 2)

	task, ok := s.Assign("scanner-2", 0.1)
	if !ok {
		t.Fatalf("expected a child node to become assignable after split")
	}
	if task.NodeIndex != 1 && task.NodeIndex != 2 {
		t.Errorf("expected one of the new children, got %+v", task)
	}
}

func TestSchedulerRejectsPastMaxDepth(t *testing.T) {
	s := NewScheduler(1, 0, NewGrid())
	s.Assign("scanner-1", 0.1)
	s.ReportAccept("scanner-1", 1, 2)
	// children are now at depth 1, which is >= maxDepth(1)
	_, ok := s.Assign("scanner-2", 0.1)
	if ok {
		t.Errorf("expected no assignable node past max depth")
	}
}

func TestSchedulerReportEmptyFreesNodeForLowerGamma(t *testing.T) {
	s := NewScheduler(5, 0, NewGrid())
	s.Assign("scanner-1", 0.5)
	s.ReportEmpty("scanner-1", 0.5)

	// same gamma: node should still be invalid (it needs lastFailedGamma > gamma)
	if _, ok := s.Assign("scanner-2", 0.5); ok {
		t.Errorf("expected node to stay rejected at the same gamma")
	}
	if _, ok := s.Assign("scanner-2", 0.3); !ok {
		t.Errorf("expected node to become assignable again at a lower gamma")
	}
}

func TestSchedulerReleaseFreesAssignment(t *testing.T) {
	s := NewScheduler(5, 0, NewGrid())
	s.Assign("scanner-1", 0.1)
	s.Release("scanner-1")
	if _, ok := s.Assign("scanner-2", 0.1); !ok {
		t.Errorf("expected node to be reassignable after Release")
	}
}
