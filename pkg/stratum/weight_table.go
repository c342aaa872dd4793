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

package stratum

import "github.com/launix-de/NonLockingReadMap"

// Stat is one weight bucket's running totals: how many entries currently
// sit in it and their summed weight. The sampler reads these far more often
// than the assigner pool writes them, which is exactly the access pattern
// NonLockingReadMap is built for.
type Stat struct {
	Key    int8
	Count  int64
	Weight float64
}

// GetKey satisfies NonLockingReadMap.KeyGetter.
func (s *Stat) GetKey() int8 { return s.Key }

// ComputeSize satisfies NonLockingReadMap.Sizable.
func (s *Stat) ComputeSize() uint { return 8 + 8 + 8 }

// WeightTable tracks per-bucket (count, total weight) so the sampler can
// pick a stratum proportional to its share of total weight without
// locking against the assigner pool that updates it.
type WeightTable struct {
	table NonLockingReadMap.NonLockingReadMap[Stat, int8]
}

// NewWeightTable returns an empty weight table.
func NewWeightTable() *WeightTable {
	t := NonLockingReadMap.New[Stat, int8]()
	return &WeightTable{table: t}
}

// Add records that delta entries totalling deltaWeight were added to (or,
// with negative deltas, removed from) bucket key. Callers must serialize
// calls to Add for the same key (the head's Assigner does so with one
// mutex) — NonLockingReadMap's Set is optimistic but not an atomic
// increment, so concurrent unserialized Adds on one key can lose an update.
func (w *WeightTable) Add(key int8, deltaCount int64, deltaWeight float64) {
	cur := w.table.Get(key)
	next := Stat{Key: key}
	if cur != nil {
		next.Count = cur.Count + deltaCount
		next.Weight = cur.Weight + deltaWeight
	} else {
		next.Count = deltaCount
		next.Weight = deltaWeight
	}
	w.table.Set(&next)
}

// Get returns the current stat for key, or a zero Stat if it has never been
// touched.
func (w *WeightTable) Get(key int8) Stat {
	cur := w.table.Get(key)
	if cur == nil {
		return Stat{Key: key}
	}
	return *cur
}

// All returns every bucket's current stat.
func (w *WeightTable) All() []Stat {
	ptrs := w.table.GetAll()
	out := make([]Stat, len(ptrs))
	for i, p := range ptrs {
		out[i] = *p
	}
	return out
}

// TotalWeight sums Weight across every bucket.
func (w *WeightTable) TotalWeight() float64 {
	var total float64
	for _, s := range w.All() {
		total += s.Weight
	}
	return total
}
