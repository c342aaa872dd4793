package head

import "testing"

func TestGridAdvanceCrossesAtWidth(t *testing.T) {
	g := NewGrid()
	// bucket -1 has width 2^0 = 1
	crossed := false
	for i := 0; i < 20 && !crossed; i++ {
		crossed = g.Advance(-1, 0.1)
	}
	if !crossed {
		t.Fatalf("expected Advance to eventually cross the grid line")
	}
}

func TestGridAddPivotOrdersAscending(t *testing.T) {
	g := NewGrid()
	g.AddPivot(0, 3.0)
	g.AddPivot(0, 1.0)
	g.AddPivot(0, 2.0)
	got := g.Pivots(0)
	want := []float32{1.0, 2.0, 3.0}
	if len(got) != len(want) {
		t.Fatalf("expected %d pivots, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pivots not sorted: got %v want %v", got, want)
		}
	}
}

func TestGridPivotsEmptyBucket(t *testing.T) {
	g := NewGrid()
	if got := g.Pivots(99); got != nil {
		t.Errorf("expected nil pivots for untouched bucket, got %v", got)
	}
}
