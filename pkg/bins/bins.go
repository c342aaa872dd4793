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

// Package bins builds and applies per-feature threshold tables, turning raw
// feature values into small integer bin indices the learner can scan with a
// dense histogram instead of sorting floats on every tree node.
package bins

import "sort"

// Mapper holds the sorted split thresholds for one feature. A value v maps
// to the smallest index i such that v <= Thresholds[i], or len(Thresholds)
// if v is larger than every threshold.
type Mapper struct {
	Thresholds []float64 `json:"thresholds"`
}

// SplitIndex returns the bin index for value under this mapper.
func (m *Mapper) SplitIndex(value float64) uint16 {
	i := sort.SearchFloat64s(m.Thresholds, value)
	return uint16(i)
}

// Len is the number of distinct bins this mapper can produce (one more than
// its threshold count, for the "above every threshold" bucket).
func (m *Mapper) Len() int {
	return len(m.Thresholds) + 1
}

// Bins holds one Mapper per feature column.
type Bins struct {
	Features []Mapper `json:"features"`
}

// Len returns the number of feature columns.
func (b *Bins) Len() int {
	return len(b.Features)
}

// valueCount is a distinct raw value and how many sampled rows carried it,
// used while building a single feature's Mapper.
type valueCount struct {
	value float64
	count int
}

// BuildMapper constructs a Mapper for one feature from sampled raw values.
// It sorts the distinct values, then cuts a new bin every time the running
// count since the last cut reaches total/maxBins, capping the mapper at
// maxBins-1 thresholds. Each threshold is the midpoint between the last
// value of one bin and the first value of the next, matching the
// mean-of-adjacent-distinct-values convention used throughout the scanner.
func BuildMapper(values []float64, maxBins int) Mapper {
	if maxBins < 1 {
		maxBins = 1
	}
	counts := countDistinct(values)
	if len(counts) == 0 {
		return Mapper{}
	}
	total := 0
	for _, c := range counts {
		total += c.count
	}
	target := total / maxBins
	if target < 1 {
		target = 1
	}

	var thresholds []float64
	running := 0
	for i := 0; i < len(counts)-1; i++ {
		running += counts[i].count
		if running >= target && len(thresholds) < maxBins-1 {
			thresholds = append(thresholds, (counts[i].value+counts[i+1].value)/2)
			running = 0
		}
	}
	return Mapper{Thresholds: thresholds}
}

func countDistinct(values []float64) []valueCount {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	out := make([]valueCount, 0, len(sorted))
	out = append(out, valueCount{value: sorted[0], count: 1})
	for _, v := range sorted[1:] {
		last := &out[len(out)-1]
		if v == last.value {
			last.count++
			continue
		}
		out = append(out, valueCount{value: v, count: 1})
	}
	return out
}

// Build constructs a Bins table for a column-major sample: columns[f] is the
// slice of raw values observed for feature f, across up to maxSampleSize
// examples. maxBinSize caps the number of bins per feature.
func Build(columns [][]float64, maxBinSize int) Bins {
	out := Bins{Features: make([]Mapper, len(columns))}
	for i, col := range columns {
		out.Features[i] = BuildMapper(col, maxBinSize)
	}
	return out
}
