package head

import (
	"math"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arapat/sparrow-sub000/pkg/diskblock"
	"github.com/arapat/sparrow-sub000/pkg/example"
	"github.com/arapat/sparrow-sub000/pkg/stratum"
)

func TestClampedWeightNeverExceedsOne(t *testing.T) {
	if got := ClampedWeight(-10, 1); got != 1 {
		t.Errorf("expected weight clamped to 1, got %v", got)
	}
	got := ClampedWeight(2, 1)
	if got <= 0 || got >= 1 {
		t.Errorf("expected weight in (0,1) for a correct high-confidence prediction, got %v", got)
	}
}

func TestBucketKeyMatchesFloorLog2(t *testing.T) {
	w := float32(0.2)
	want := int8(math.Floor(math.Log2(0.2)))
	if got := BucketKey(w); got != want {
		t.Errorf("BucketKey(0.2) = %d, want %d", got, want)
	}
}

func TestAssignerRoutesIntoMatchingBucket(t *testing.T) {
	disk, err := diskblock.Open(filepath.Join(t.TempDir(), "blocks.bin"), 4096)
	if err != nil {
		t.Fatalf("diskblock.Open: %v", err)
	}
	t.Cleanup(func() { disk.Close() })

	running := &atomic.Bool{}
	running.Store(true)
	strata := stratum.NewMap(4, disk, running)
	weights := stratum.NewWeightTable()
	t.Cleanup(func() {
		running.Store(false)
		strata.Wait()
	})

	a := NewAssigner(strata, weights, 2)
	a.Submit(example.ScoredExample{Score: 0, Example: example.Example{Label: 1}})
	a.Close()

	wantKey := BucketKey(ClampedWeight(0, 1))
	select {
	case entry := <-strata.Get(wantKey).Out():
		if entry.Label != 1 {
			t.Errorf("unexpected routed entry: %+v", entry)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for assigned entry in bucket %d", wantKey)
	}
}
