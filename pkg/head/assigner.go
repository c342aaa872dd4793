/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package head

import (
	"math"
	"runtime"
	"sync"

	"github.com/arapat/sparrow-sub000/pkg/example"
	"github.com/arapat/sparrow-sub000/pkg/stratum"
	"github.com/jtolds/gls"
)

var glsMgr = gls.NewContextManager()

// Assigner computes each scored example's clamped weight and routes it into
// the strata map's matching bucket, fanning work out across a worker pool
// sized to the host like the teacher's shard iteration helpers.
type Assigner struct {
	strata  *stratum.Map
	weights *stratum.WeightTable
	jobs    chan example.ScoredExample
	wg      sync.WaitGroup
	// weightsMu serializes WeightTable.Add across the worker pool, which
	// the table requires of its callers.
	weightsMu sync.Mutex
}

// NewAssigner starts numWorkers goroutines (runtime.NumCPU() if numWorkers
// <= 0) draining a shared job queue, matching storage/partition.go's
// gls.Go-tagged worker pool pattern.
func NewAssigner(strata *stratum.Map, weights *stratum.WeightTable, numWorkers int) *Assigner {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	a := &Assigner{
		strata:  strata,
		weights: weights,
		jobs:    make(chan example.ScoredExample, numWorkers*4),
	}
	for i := 0; i < numWorkers; i++ {
		a.wg.Add(1)
		workerID := i
		go func() {
			defer a.wg.Done()
			glsMgr.SetValues(gls.Values{"worker": workerID}, a.worker)
		}()
	}
	return a
}

func (a *Assigner) worker() {
	for ex := range a.jobs {
		a.assign(ex)
	}
}

// Submit enqueues ex for weighting and routing. Blocks if every worker is
// busy and the queue is full.
func (a *Assigner) Submit(ex example.ScoredExample) {
	a.jobs <- ex
}

// Close stops accepting new work and waits for in-flight assignments to
// finish.
func (a *Assigner) Close() {
	close(a.jobs)
	a.wg.Wait()
}

// ClampedWeight implements the spec's single clamping point: w =
// min(1, exp(-score*label)). Clamping here, and nowhere else, keeps the
// stratified store and the learner's later weight use in agreement.
func ClampedWeight(score float32, label int8) float32 {
	w := float32(math.Exp(float64(-score) * float64(label)))
	if w > 1 {
		return 1
	}
	return w
}

// BucketKey returns floor(log2(w)) clamped so a zero or negative weight
// (which should not happen after ClampedWeight, but defends against bad
// input) still lands in a valid bucket.
func BucketKey(w float32) int8 {
	if w <= 0 {
		return math.MinInt8
	}
	k := math.Floor(math.Log2(float64(w)))
	if k < math.MinInt8 {
		return math.MinInt8
	}
	if k > math.MaxInt8 {
		return math.MaxInt8
	}
	return int8(k)
}

func (a *Assigner) assign(ex example.ScoredExample) {
	ex.Weight = ClampedWeight(ex.Score, ex.Label)
	k := BucketKey(ex.Weight)
	entry := example.SampleEntry{ScoredExample: ex, BaseVersion: ex.ModelVersion}
	a.weightsMu.Lock()
	a.weights.Add(k, 1, float64(ex.Weight))
	a.weightsMu.Unlock()
	a.strata.Get(k).In() <- entry
}
