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
	"math/rand"
	"sync"

	"github.com/google/btree"
)

// pivot is one candidate split value ordered inside a Grid dimension's
// btree.
type pivot struct {
	value float32
}

func (p pivot) Less(than btree.Item) bool {
	return p.value < than.(pivot).value
}

// dimension is the minimum-variance grid state for one stratum bucket
// k: an ordered set of candidate pivot values plus the running
// accumulator grid_k, uniformly seeded in [0, 2^(k+1)) per the
// stratified-storage minimum-variance sampling scheme.
type dimension struct {
	pivots *btree.BTree
	acc    float64
	width  float64 // 2^(k+1)
}

// Grid holds one minimum-variance accumulator per weight-bucket key and
// the candidate pivots the scheduler draws grid cells from. Pivot storage
// uses google/btree rather than a flat sorted slice because candidates are
// repeatedly inserted and retired as nodes split, unlike the teacher's
// shardDimension pivots which are rebuilt wholesale on each repartition.
type Grid struct {
	mu   sync.Mutex
	dims map[int8]*dimension
}

// NewGrid returns an empty Grid.
func NewGrid() *Grid {
	return &Grid{dims: make(map[int8]*dimension)}
}

func (g *Grid) dimension(k int8) *dimension {
	d, ok := g.dims[k]
	if !ok {
		width := math.Ldexp(1, int(k)+1)
		d = &dimension{
			pivots: btree.New(32),
			acc:    rand.Float64() * width,
			width:  width,
		}
		g.dims[k] = d
	}
	return d
}

// AddPivot registers a candidate split value observed in bucket k.
func (g *Grid) AddPivot(k int8, value float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dimension(k).pivots.ReplaceOrInsert(pivot{value: value})
}

// Advance accumulates weight into bucket k's grid counter and reports
// whether it has crossed its next grid line — i.e. whether this bucket
// should contribute its next sample now, following the minimum-variance
// sampling rule (grid_k grows by weight each time, crossing at multiples
// of width).
func (g *Grid) Advance(k int8, weight float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	d := g.dimension(k)
	d.acc += weight
	crossed := false
	for d.acc >= d.width {
		d.acc -= d.width
		crossed = true
	}
	return crossed
}

// Pivots returns bucket k's candidate split values in ascending order.
func (g *Grid) Pivots(k int8) []float32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.dims[k]
	if !ok {
		return nil
	}
	out := make([]float32, 0, d.pivots.Len())
	d.pivots.Ascend(func(item btree.Item) bool {
		out = append(out, item.(pivot).value)
		return true
	})
	return out
}
