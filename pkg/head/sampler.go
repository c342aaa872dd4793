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
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/arapat/sparrow-sub000/pkg/example"
	"github.com/arapat/sparrow-sub000/pkg/stratum"
)

// Sampler draws one entry at a time from the strata map, weighted by each
// bucket's share of total weight, and forwards accepted draws to the
// Gatherer. It runs its own goroutine per instance; callers typically run
// a handful in parallel.
type Sampler struct {
	strata  *stratum.Map
	weights *stratum.WeightTable
	grid    *Grid
	out     chan<- example.SampleEntry
	running *atomic.Bool
}

// NewSampler returns a Sampler that feeds accepted entries into out.
func NewSampler(strata *stratum.Map, weights *stratum.WeightTable, grid *Grid, out chan<- example.SampleEntry, running *atomic.Bool) *Sampler {
	return &Sampler{strata: strata, weights: weights, grid: grid, out: out, running: running}
}

// Run drives the sampling loop until running is cleared. Intended to be
// called from its own goroutine.
func (s *Sampler) Run() {
	for s.running.Load() {
		key, ok := s.pickStratum()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		st := s.strata.Get(key)
		select {
		case entry := <-st.Out():
			if s.grid.Advance(key, float64(entry.Weight)) {
				s.out <- entry
			}
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

// pickStratum selects a bucket key with probability proportional to its
// share of total tracked weight.
func (s *Sampler) pickStratum() (int8, bool) {
	stats := s.weights.All()
	total := 0.0
	for _, st := range stats {
		total += st.Weight
	}
	if total <= 0 {
		return 0, false
	}
	r := rand.Float64() * total
	for _, st := range stats {
		r -= st.Weight
		if r <= 0 {
			return st.Key, true
		}
	}
	return stats[len(stats)-1].Key, true
}
