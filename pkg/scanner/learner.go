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

package scanner

import (
	"math"

	"github.com/arapat/sparrow-sub000/pkg/bins"
	"github.com/arapat/sparrow-sub000/pkg/example"
)

// numRules is fixed at 2, the canonical scanner/booster rule count: one
// rule predicting (+delta on the left, -delta on the right), the other its
// mirror image. The four-rule variant that appears in the project's
// earlier, superseded top-level learner is not implemented.
const numRules = 2

var rulePredicts = [numRules][2]float32{
	{1, -1},
	{-1, 1},
}

const (
	delta             = 1e-4 // bound confidence parameter
	thresholdFactor   = 6.0
	boundOuterFactor  = 3.0
	logLogInnerFactor = 5.0 / 2.0
)

// candidate is one (feature, threshold, rule) triple's running martingale
// statistics: the sum and sum-of-squares of c_i = score_i - 2*gamma*w_i
// over every example routed to it so far.
type candidate struct {
	feature   int
	threshold uint16
	rule      int
	cSum      float64
	cSqSum    float64
}

// Learner performs the per-feature histogram search for one assigned node:
// for every (feature, bin-threshold, rule) triple it accumulates the
// martingale statistic and tests the early-stopping bound, accepting the
// first candidate whose bound proves |c_sum| > bound(gamma).
type Learner struct {
	bins  bins.Bins
	gamma float32
	cands []candidate
}

// NewLearner builds the candidate grid for one node search: one candidate
// per (feature, threshold, rule) triple implied by b.
func NewLearner(b bins.Bins, gamma float32) *Learner {
	l := &Learner{bins: b, gamma: gamma}
	for f, mapper := range b.Features {
		for th := 0; th < mapper.Len(); th++ {
			for r := 0; r < numRules; r++ {
				l.cands = append(l.cands, candidate{feature: f, threshold: uint16(th), rule: r})
			}
		}
	}
	return l
}

// Update folds one scored example into every candidate, using the left or
// right predict of the candidate's rule depending on whether the example's
// feature value is above the candidate's threshold.
func (l *Learner) Update(ex example.ScoredExample) {
	for i := range l.cands {
		c := &l.cands[i]
		featVal := ex.Features[c.feature]
		branch := 0
		if featVal > c.threshold {
			branch = 1
		}
		predict := rulePredicts[c.rule][branch]
		score := float64(predict) * float64(ex.Label)
		ci := score - 2*float64(l.gamma)*float64(ex.Weight)
		c.cSum += ci
		c.cSqSum += ci * ci
	}
}

// bound evaluates the early-stopping martingale bound for the given
// statistics, returning (bound, true) when enough variance has accumulated
// to evaluate it at all (cSqSum >= thresholdFactor*173*ln(4/delta)), and
// (0, false) otherwise.
func bound(cSum, cSqSum float64) (float64, bool) {
	gate := thresholdFactor * 173.0 * math.Log(4/delta)
	if cSqSum < gate {
		return 0, false
	}
	logLogTerm := math.Log(math.Log(logLogInnerFactor * cSqSum / math.Abs(cSum)))
	return math.Sqrt(boundOuterFactor * cSqSum * (2*logLogTerm + math.Log(2/delta))), true
}

// Accepted returns the first candidate whose accumulated statistics clear
// the early-stopping bound, translated into a tree.UpdateEntry-shaped
// result (feature, threshold, rule, and the two predict values), or ok=false
// if none currently qualify.
type Accepted struct {
	Feature   int
	Threshold uint16
	Predicts  [2]float32
}

func (l *Learner) Accepted() (Accepted, bool) {
	for _, c := range l.cands {
		b, ok := bound(c.cSum, c.cSqSum)
		if !ok {
			continue
		}
		if math.Abs(c.cSum) > b {
			return Accepted{
				Feature:   c.feature,
				Threshold: c.threshold,
				Predicts:  rulePredicts[c.rule],
			}, true
		}
	}
	return Accepted{}, false
}

// NumCandidates reports how many (feature, threshold, rule) triples this
// learner is tracking, for tests and diagnostics.
func (l *Learner) NumCandidates() int {
	return len(l.cands)
}
