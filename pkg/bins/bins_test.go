package bins

import "testing"

func buildMapper(t *testing.T, values []float64, maxBins int) Mapper {
	t.Helper()
	return BuildMapper(values, maxBins)
}

func TestBuildMapperSplitsEvenly(t *testing.T) {
	values := []float64{1, 1, 2, 2, 3, 3, 4, 4, 5, 5}
	m := buildMapper(t, values, 5)
	if m.Len() == 0 {
		t.Fatalf("expected at least one bin")
	}
	if m.Len() > 5 {
		t.Fatalf("mapper exceeded maxBins: got %d bins", m.Len())
	}
}

func TestSplitIndexMonotonic(t *testing.T) {
	m := buildMapper(t, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 4)
	prev := uint16(0)
	for v := 0.5; v < 11; v += 0.5 {
		idx := m.SplitIndex(v)
		if idx < prev {
			t.Fatalf("SplitIndex not monotonic at v=%v: got %d after %d", v, idx, prev)
		}
		prev = idx
	}
}

func TestSplitIndexBounds(t *testing.T) {
	m := buildMapper(t, []float64{10, 20, 30}, 3)
	if got := m.SplitIndex(-1000); got != 0 {
		t.Errorf("expected smallest bin for value below range, got %d", got)
	}
	if got := m.SplitIndex(1e9); int(got) != m.Len()-1 {
		t.Errorf("expected last bin for value above range, got %d want %d", got, m.Len()-1)
	}
}

func TestBuildMapperEmptyInput(t *testing.T) {
	m := buildMapper(t, nil, 5)
	if m.Len() != 1 {
		t.Fatalf("expected single catch-all bin for empty input, got %d", m.Len())
	}
}

func TestBuildHandlesMultipleColumns(t *testing.T) {
	cols := [][]float64{
		{1, 2, 3, 4},
		{5, 5, 5, 5},
	}
	b := Build(cols, 4)
	if b.Len() != 2 {
		t.Fatalf("expected 2 feature mappers, got %d", b.Len())
	}
	if b.Features[1].Len() != 1 {
		t.Errorf("constant column should collapse to 1 bin, got %d", b.Features[1].Len())
	}
}
