package stratum

import (
	"sync"
	"sync/atomic"

	"github.com/arapat/sparrow-sub000/pkg/diskblock"
)

// Map lazily creates a Stratum per weight-bucket key, sharing one disk
// block buffer across every bucket.
type Map struct {
	mu            sync.RWMutex
	strata        map[int8]*Stratum
	blockCapacity int
	disk          *diskblock.Buffer
	running       *atomic.Bool
}

// NewMap returns an empty strata map backed by disk.
func NewMap(blockCapacity int, disk *diskblock.Buffer, running *atomic.Bool) *Map {
	return &Map{
		strata:        make(map[int8]*Stratum),
		blockCapacity: blockCapacity,
		disk:          disk,
		running:       running,
	}
}

// Get returns the Stratum for key, creating it on first use.
func (m *Map) Get(key int8) *Stratum {
	m.mu.RLock()
	s, ok := m.strata[key]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.strata[key]; ok {
		return s
	}
	s = NewStratum(key, m.blockCapacity, m.disk, m.running)
	m.strata[key] = s
	return s
}

// Keys returns every bucket key currently materialized.
func (m *Map) Keys() []int8 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int8, 0, len(m.strata))
	for k := range m.strata {
		out = append(out, k)
	}
	return out
}

// Wait blocks until every materialized stratum's goroutines have exited.
func (m *Map) Wait() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.strata {
		s.Wait()
	}
}
