package tree

import "sync"

// UpdateEntry is one accepted split, as broadcast by the head and applied by
// every scanner. TreeIndex selects which Tree in the Model it belongs to
// (len(Model.Trees) to start a new tree).
type UpdateEntry struct {
	TreeIndex int        `json:"tree_index"`
	Parent    int32      `json:"parent"`
	Feature   int32      `json:"split_feature"`
	Threshold uint16     `json:"threshold"`
	Predicts  [2]float32 `json:"predicts"`
	Gamma     float32    `json:"gamma"`
}

// Model is the full boosted ensemble plus its append-only change log. The
// log's length *is* the model version: every scanner that has replayed
// exactly the first N entries is, by definition, running version N.
type Model struct {
	mu      sync.RWMutex
	Trees   []*Tree
	Updates []UpdateEntry
}

// NewModel returns an empty model with a single empty tree.
func NewModel() *Model {
	return &Model{Trees: []*Tree{NewTree()}}
}

// Version returns the current model version (number of applied updates).
func (m *Model) Version() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint32(len(m.Updates))
}

// Apply appends entry to the update log and mutates the tree it targets,
// growing Trees if entry starts a new one. Returns the resulting version
// and the indices of the two leaf children the split created.
func (m *Model) Apply(entry UpdateEntry) (uint32, int32, int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for entry.TreeIndex >= len(m.Trees) {
		m.Trees = append(m.Trees, NewTree())
	}
	left, right := m.Trees[entry.TreeIndex].Append(entry.Parent, entry.Feature, entry.Threshold, entry.Predicts)
	m.Updates = append(m.Updates, entry)
	return uint32(len(m.Updates)), left, right
}

// UpdatesSince returns a copy of every update applied after version from.
func (m *Model) UpdatesSince(from uint32) []UpdateEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(from) >= len(m.Updates) {
		return nil
	}
	out := make([]UpdateEntry, len(m.Updates)-int(from))
	copy(out, m.Updates[from:])
	return out
}

// Predict sums every tree's contribution for features.
func (m *Model) Predict(features []uint16) float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var score float32
	for _, t := range m.Trees {
		score += t.Predict(features)
	}
	return score
}
