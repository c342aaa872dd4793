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
	"sync"

	"github.com/arapat/sparrow-sub000/pkg/protocol"
)

const maxEmptyTree = 10

// nodeState is what the scheduler tracks about one tree node's candidacy
// for assignment: its depth, whether both children already exist, and the
// gamma value it last failed to clear (zero until it has failed once).
type nodeState struct {
	treeIndex    int
	nodeIndex    int32
	depth        int
	hasChildren  bool
	lastFailedGamma float32
}

// Scheduler hands each idle scanner a Task pointing at one expandable node,
// enforcing a single in-flight assignment per scanner and the root's
// overall tree budget. Grounded on sampler/model_sync/scheduler's
// single-assignment-slot design.
type Scheduler struct {
	mu sync.Mutex

	maxDepth     int
	maxNumTrees  int
	emptyTrees   int
	nodes        map[nodeKey]*nodeState
	assignments  map[string]nodeKey // scanner id -> assigned node

	grid *Grid
}

type nodeKey struct {
	treeIndex int
	nodeIndex int32
}

// NewScheduler returns a Scheduler bounded by maxDepth per tree and
// maxNumTrees trees overall (0 = unbounded). grid is stored on the
// Scheduler but Assign does not consult it: only tree nodes are handed out,
// never grid cells.
func NewScheduler(maxDepth, maxNumTrees int, grid *Grid) *Scheduler {
	s := &Scheduler{
		maxDepth:    maxDepth,
		maxNumTrees: maxNumTrees,
		nodes:       make(map[nodeKey]*nodeState),
		assignments: make(map[string]nodeKey),
		grid:        grid,
	}
	s.nodes[nodeKey{0, 0}] = &nodeState{treeIndex: 0, nodeIndex: 0, depth: 0}
	return s
}

// Assign picks a valid, currently unassigned node for scannerID and returns
// a Task for it. ok is false when no node is currently assignable (every
// node is either assigned, capped out, or the root budget is exhausted).
func (s *Scheduler) Assign(scannerID string, gamma float32) (protocol.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxNumTrees > 0 && len(s.treeCountLocked()) >= s.maxNumTrees && s.emptyTrees >= maxEmptyTree {
		return protocol.Task{}, false
	}

	assigned := make(map[nodeKey]bool, len(s.assignments))
	for _, k := range s.assignments {
		assigned[k] = true
	}

	for key, n := range s.nodes {
		if assigned[key] {
			continue
		}
		if !s.validLocked(n, gamma) {
			continue
		}
		s.assignments[scannerID] = key
		return protocol.Task{TreeIndex: n.treeIndex, NodeIndex: n.nodeIndex, Gamma: gamma}, true
	}
	return protocol.Task{}, false
}

func (s *Scheduler) treeCountLocked() map[int]bool {
	trees := make(map[int]bool)
	for k := range s.nodes {
		trees[k.treeIndex] = true
	}
	return trees
}

func (s *Scheduler) validLocked(n *nodeState, currentGamma float32) bool {
	if s.maxDepth > 0 && n.depth >= s.maxDepth {
		return false
	}
	if n.hasChildren {
		return false
	}
	return n.lastFailedGamma < currentGamma
}

// Release frees scannerID's current assignment without recording any
// outcome, e.g. on disconnect.
func (s *Scheduler) Release(scannerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assignments, scannerID)
}

// ReportEmpty marks scannerID's assigned node as having failed at gamma,
// frees the assignment, and — if the node was the root of a tree — counts
// it toward the root's empty-tree budget.
func (s *Scheduler) ReportEmpty(scannerID string, gamma float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.assignments[scannerID]
	if !ok {
		return
	}
	delete(s.assignments, scannerID)
	if n, ok := s.nodes[key]; ok {
		n.lastFailedGamma = gamma
		if key.nodeIndex == 0 {
			s.emptyTrees++
		}
	}
}

// ReportAccept marks scannerID's assigned node as split, registers its two
// new children as assignable nodes, and frees the assignment.
func (s *Scheduler) ReportAccept(scannerID string, leftChild, rightChild int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.assignments[scannerID]
	if !ok {
		return
	}
	delete(s.assignments, scannerID)
	n, ok := s.nodes[key]
	if !ok {
		return
	}
	n.hasChildren = true
	if key.nodeIndex == 0 {
		s.emptyTrees = 0
	}
	childDepth := n.depth + 1
	s.nodes[nodeKey{key.treeIndex, leftChild}] = &nodeState{treeIndex: key.treeIndex, nodeIndex: leftChild, depth: childDepth}
	s.nodes[nodeKey{key.treeIndex, rightChild}] = &nodeState{treeIndex: key.treeIndex, nodeIndex: rightChild, depth: childDepth}
}

// StartTree registers a fresh tree's root node as assignable, for use once
// an existing tree's growth has been capped and a new one begins.
func (s *Scheduler) StartTree(treeIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[nodeKey{treeIndex, 0}] = &nodeState{treeIndex: treeIndex, nodeIndex: 0, depth: 0}
}
