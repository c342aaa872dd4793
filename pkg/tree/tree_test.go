package tree

import "testing"

func buildSplitTree(t *testing.T) (*Tree, int32, int32) {
	t.Helper()
	tr := NewTree()
	left, right := tr.Append(0, 3, 100, [2]float32{0.5, -0.5})
	return tr, left, right
}

func TestPredictLeafOnlyTree(t *testing.T) {
	tr := NewTree()
	if got := tr.Predict([]uint16{1, 2, 3}); got != 0 {
		t.Errorf("empty tree should predict 0, got %v", got)
	}
}

func TestPredictFollowsSplit(t *testing.T) {
	tr, _, _ := buildSplitTree(t)
	features := make([]uint16, 4)

	features[3] = 50 // <= threshold -> left
	if got := tr.Predict(features); got != 0.5 {
		t.Errorf("left branch: got %v want 0.5", got)
	}

	features[3] = 150 // > threshold -> right
	if got := tr.Predict(features); got != -0.5 {
		t.Errorf("right branch: got %v want -0.5", got)
	}
}

func TestAppendGrowsDepth(t *testing.T) {
	tr, left, _ := buildSplitTree(t)
	grandLeft, grandRight := tr.Append(left, 5, 20, [2]float32{0.1, -0.1})
	if tr.Nodes[grandLeft].Depth != 2 || tr.Nodes[grandRight].Depth != 2 {
		t.Errorf("expected depth 2 for both grandchildren, got %d and %d", tr.Nodes[grandLeft].Depth, tr.Nodes[grandRight].Depth)
	}
	if tr.Nodes[left].Children[0] != grandLeft || tr.Nodes[left].Children[1] != grandRight {
		t.Errorf("parent did not record new children")
	}
}

func TestAppendCreatesTwoSiblingLeaves(t *testing.T) {
	tr, left, right := buildSplitTree(t)
	if left+1 != right {
		t.Errorf("expected children to be appended as adjacent siblings, got %d and %d", left, right)
	}
	if tr.Nodes[left].Evaluation || tr.Nodes[right].Evaluation {
		t.Errorf("freshly appended children must start as leaves")
	}
}

func TestRootPathReconstructsConditions(t *testing.T) {
	tr, left, _ := buildSplitTree(t)
	grandLeft, _ := tr.Append(left, 7, 42, [2]float32{0.2, -0.2})
	path := tr.RootPath(grandLeft)
	if len(path) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(path))
	}
	if path[0].Feature != 3 || path[0].Threshold != 100 || path[0].WentRight {
		t.Errorf("unexpected first condition: %+v", path[0])
	}
	if path[1].Feature != 7 || path[1].Threshold != 42 || path[1].WentRight {
		t.Errorf("unexpected second condition: %+v", path[1])
	}
}

func TestModelApplyTracksVersion(t *testing.T) {
	m := NewModel()
	if m.Version() != 0 {
		t.Fatalf("fresh model should be version 0")
	}
	v, left, right := m.Apply(UpdateEntry{TreeIndex: 0, Parent: 0, Feature: 1, Threshold: 10, Predicts: [2]float32{1, -1}})
	if v != 1 {
		t.Errorf("expected version 1 after one update, got %d", v)
	}
	if left+1 != right {
		t.Errorf("expected adjacent sibling children, got %d and %d", left, right)
	}
	if len(m.UpdatesSince(0)) != 1 {
		t.Errorf("expected 1 update since version 0")
	}
	if len(m.UpdatesSince(1)) != 0 {
		t.Errorf("expected 0 updates since the current version")
	}
}

func TestModelApplyGrowsTreeCount(t *testing.T) {
	m := NewModel()
	m.Apply(UpdateEntry{TreeIndex: 2, Parent: 0, Feature: 0, Threshold: 1, Predicts: [2]float32{1, -1}})
	if len(m.Trees) != 3 {
		t.Errorf("expected 3 trees after targeting tree index 2, got %d", len(m.Trees))
	}
}
