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
	"sync"

	"github.com/arapat/sparrow-sub000/pkg/example"
	"github.com/arapat/sparrow-sub000/pkg/transport"
)

// Gatherer accumulates sampled entries off the sampler pool's shared output
// channel, and once sampleCapacity entries have arrived, shuffles them,
// persists the batch as a new versioned blob, and passes the new version to
// its onNewBatch callback. It does not notify scanners itself.
type Gatherer struct {
	engine     transport.Engine
	capacity   int
	onNewBatch func(version uint32)

	mu      sync.Mutex
	version uint32
}

// NewGatherer returns a Gatherer writing batches through engine. onNewBatch
// is invoked (outside any lock) once a batch has been durably written.
func NewGatherer(engine transport.Engine, sampleCapacity int, onNewBatch func(version uint32)) *Gatherer {
	return &Gatherer{engine: engine, capacity: sampleCapacity, onNewBatch: onNewBatch}
}

// Drain reads from in until it is closed, batching sampleCapacity entries at
// a time and flushing each batch. Intended to run in its own goroutine.
func (g *Gatherer) Drain(in <-chan example.SampleEntry) {
	batch := make([]example.SampleEntry, 0, g.capacity)
	for entry := range in {
		batch = append(batch, entry)
		if len(batch) >= g.capacity {
			g.flush(batch)
			batch = make([]example.SampleEntry, 0, g.capacity)
		}
	}
	if len(batch) > 0 {
		g.flush(batch)
	}
}

func (g *Gatherer) flush(batch []example.SampleEntry) {
	rand.Shuffle(len(batch), func(i, j int) { batch[i], batch[j] = batch[j], batch[i] })

	g.mu.Lock()
	g.version++
	version := g.version
	g.mu.Unlock()

	if err := transport.WriteSampleBatch(g.engine, version, batch); err != nil {
		panic(err) // persisting the sample store is a hard prerequisite; nothing downstream can proceed without it
	}
	if g.onNewBatch != nil {
		g.onNewBatch(version)
	}
}

// Version returns the most recently flushed batch's version.
func (g *Gatherer) Version() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.version
}
