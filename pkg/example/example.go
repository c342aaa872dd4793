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

// Package example holds the sample representations that flow through the
// head and the scanners: the raw feature vector, the scanner-scored copy,
// and the entry a stratum queue actually stores.
package example

// Example is one raw training row: a label in {-1, +1} and feature values
// indexed by bin id once pkg/bins has mapped them.
type Example struct {
	Label    int8
	Features []uint16 // bin index per feature, parallel to the Bins slice
}

// ScoredExample is an Example carrying the running score from the model as
// of ModelVersion, plus the weight the assigner computed from that score.
type ScoredExample struct {
	Example
	Score        float32
	Weight       float32
	ModelVersion uint32
}

// SampleEntry is what a Stratum actually queues: a scored example plus the
// model version it was last re-weighted against. When BaseVersion falls
// behind the gatherer's current model version the entry is stale and must
// be rescored before it can be sampled again.
type SampleEntry struct {
	ScoredExample
	BaseVersion uint32
}

// Stale reports whether this entry still carries weights computed against
// an older model than currentVersion, and therefore needs reassignment
// before it can be drawn by the sampler.
func (s *SampleEntry) Stale(currentVersion uint32) bool {
	return s.BaseVersion != currentVersion
}
