package scanner

import (
	"testing"

	"github.com/arapat/sparrow-sub000/pkg/bins"
	"github.com/arapat/sparrow-sub000/pkg/example"
)

func singleFeatureBins(thresholds []float64) bins.Bins {
	return bins.Bins{Features: []bins.Mapper{{Thresholds: thresholds}}}
}

func TestBoundRequiresMinimumVariance(t *testing.T) {
	if _, ok := bound(1.0, 0.001); ok {
		t.Errorf("expected bound to be undefined below the variance gate")
	}
	if _, ok := bound(1.0, 1e6); !ok {
		t.Errorf("expected bound to be defined above the variance gate")
	}
}

func TestNewLearnerBuildsFullCandidateGrid(t *testing.T) {
	b := singleFeatureBins([]float64{10, 20})
	l := NewLearner(b, 0.1)
	// 1 feature * 3 bins (2 thresholds -> 3 buckets) * 2 rules
	if got := l.NumCandidates(); got != 3*numRules {
		t.Errorf("expected %d candidates, got %d", 3*numRules, got)
	}
}

func TestLearnerAcceptsClearSignal(t *testing.T) {
	b := singleFeatureBins([]float64{5})
	l := NewLearner(b, 0.01)
	// feed a strong, consistent signal: label always matches rule 0's
	// predict sign on the threshold it actually straddles
	for i := 0; i < 20000; i++ {
		low := example.ScoredExample{
			Example: example.Example{Label: 1, Features: []uint16{0}},
			Weight:  0.01,
		}
		high := example.ScoredExample{
			Example: example.Example{Label: -1, Features: []uint16{1}},
			Weight:  0.01,
		}
		l.Update(low)
		l.Update(high)
	}
	_, ok := l.Accepted()
	if !ok {
		t.Fatalf("expected learner to accept a candidate after a clear, high-volume signal")
	}
}

func TestLearnerRejectsNoSignal(t *testing.T) {
	b := singleFeatureBins([]float64{5})
	l := NewLearner(b, 0.5)
	for i := 0; i < 50; i++ {
		l.Update(example.ScoredExample{
			Example: example.Example{Label: 1, Features: []uint16{0}},
			Weight:  0.01,
		})
	}
	if _, ok := l.Accepted(); ok {
		t.Errorf("expected no accepted candidate from a tiny, low-confidence batch")
	}
}
