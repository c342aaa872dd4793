package stratum

import "testing"

func TestWeightTableAddAccumulates(t *testing.T) {
	wt := NewWeightTable()
	wt.Add(-3, 1, 0.5)
	wt.Add(-3, 2, 1.0)
	got := wt.Get(-3)
	if got.Count != 3 {
		t.Errorf("expected count 3, got %d", got.Count)
	}
	if got.Weight != 1.5 {
		t.Errorf("expected weight 1.5, got %v", got.Weight)
	}
}

func TestWeightTableGetUnknownBucket(t *testing.T) {
	wt := NewWeightTable()
	got := wt.Get(42)
	if got.Count != 0 || got.Weight != 0 {
		t.Errorf("expected zero stat for untouched bucket, got %+v", got)
	}
}

func TestWeightTableTotalWeight(t *testing.T) {
	wt := NewWeightTable()
	wt.Add(-1, 1, 2.0)
	wt.Add(-2, 1, 3.0)
	wt.Add(-3, 1, 4.0)
	if got := wt.TotalWeight(); got != 9.0 {
		t.Errorf("expected total weight 9, got %v", got)
	}
}

func TestWeightTableAllReturnsEveryBucket(t *testing.T) {
	wt := NewWeightTable()
	wt.Add(0, 1, 1.0)
	wt.Add(5, 1, 1.0)
	wt.Add(-5, 1, 1.0)
	all := wt.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 buckets, got %d", len(all))
	}
}
