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

// Package tree holds the boosted model: a forest of binary trees, each a
// flat slice of Node structs indexed by node id, and the append-only update
// log that is both the wire format for new nodes and the model's version
// counter.
package tree

// Node is one split or leaf within a Tree. Feature/Threshold are meaningless
// on a leaf (Evaluation == false); Predicts holds the rule's two output
// scores, +delta on the left branch and -delta (or its rule-specific
// counterpart) on the right.
type Node struct {
	Parent       int32   `json:"parent"`
	Children     [2]int32 `json:"children"` // -1 until the child is appended
	SplitFeature int32   `json:"split_feature"`
	Threshold    uint16  `json:"threshold"`
	Evaluation   bool    `json:"evaluation"`
	Predicts     [2]float32 `json:"predicts"`
	Depth        uint16  `json:"depth"`
}

// Tree is one boosting round's binary tree, stored as one slice of Node
// structs; node 0 is the root and children are referenced by index.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// NewTree returns a Tree containing only its root leaf.
func NewTree() *Tree {
	return &Tree{Nodes: []Node{{Parent: -1, Children: [2]int32{-1, -1}}}}
}

// Predict walks bin-indexed features down from node 0 and returns the
// accumulated score contribution of this tree alone.
func (t *Tree) Predict(features []uint16) float32 {
	var score float32
	idx := int32(0)
	for {
		n := &t.Nodes[idx]
		if !n.Evaluation {
			return score
		}
		branch := 0
		if features[n.SplitFeature] > n.Threshold {
			branch = 1
		}
		score += n.Predicts[branch]
		next := n.Children[branch]
		if next < 0 {
			return score
		}
		idx = next
	}
}

// Append turns parent, currently a leaf, into a split on feature/threshold
// and appends its two new leaf children in one step, returning their
// indices (left, right). predicts holds the score parent contributes when
// a sample goes left (predicts[0]) or right (predicts[1]) — the split's
// own contribution, not the new children's. A split always produces both
// branches at once; there is no such thing as a half-applied split.
func (t *Tree) Append(parent int32, feature int32, threshold uint16, predicts [2]float32) (int32, int32) {
	depth := t.Nodes[parent].Depth + 1
	left := int32(len(t.Nodes))
	right := left + 1
	t.Nodes = append(t.Nodes,
		Node{Parent: parent, Children: [2]int32{-1, -1}, Depth: depth},
		Node{Parent: parent, Children: [2]int32{-1, -1}, Depth: depth},
	)
	t.Nodes[parent].SplitFeature = feature
	t.Nodes[parent].Threshold = threshold
	t.Nodes[parent].Predicts = predicts
	t.Nodes[parent].Children = [2]int32{left, right}
	t.Nodes[parent].Evaluation = true
	return left, right
}

// RootPath returns, from the root down to node idx, the sequence of
// (feature, threshold, wentRight) conditions a sample had to satisfy to
// reach idx. Used by the scanner to replay which bucket an update belongs
// to when it only knows the node index.
type Condition struct {
	Feature   int32
	Threshold uint16
	WentRight bool
}

func (t *Tree) RootPath(idx int32) []Condition {
	var rev []Condition
	for idx > 0 {
		n := &t.Nodes[idx]
		parent := &t.Nodes[n.Parent]
		wentRight := parent.Children[1] == idx
		rev = append(rev, Condition{
			Feature:   parent.SplitFeature,
			Threshold: parent.Threshold,
			WentRight: wentRight,
		})
		idx = n.Parent
	}
	out := make([]Condition, len(rev))
	for i, c := range rev {
		out[len(rev)-1-i] = c
	}
	return out
}
