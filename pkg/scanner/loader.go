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

// Package scanner implements the per-process learner: a double-buffered
// sample loader, the early-stopping histogram learner, and the booster loop
// that drives them against tasks assigned by the head.
package scanner

import (
	"sync"
	"sync/atomic"

	"github.com/arapat/sparrow-sub000/pkg/example"
	"github.com/arapat/sparrow-sub000/pkg/transport"
)

// BufferLoader holds an active batch the learner scans and an incoming
// batch being fetched in the background, swapping between them once the
// active batch is exhausted. Mirrors the double-buffering every scanner
// implementation in the original source uses to keep network fetches off
// the scan's hot path.
type BufferLoader struct {
	engine transport.Engine

	mu       sync.Mutex
	active   []example.SampleEntry
	pos      int
	incoming []example.SampleEntry
	hasNext  atomic.Bool

	latestVersion atomic.Uint32
}

// NewBufferLoader returns an empty loader reading sample batches through
// engine.
func NewBufferLoader(engine transport.Engine) *BufferLoader {
	return &BufferLoader{engine: engine}
}

// Announce records that version is now available, triggering a background
// fetch. Safe to call from the gatherer's notification handler.
func (b *BufferLoader) Announce(version uint32) {
	b.latestVersion.Store(version)
	go b.fetch(version)
}

func (b *BufferLoader) fetch(version uint32) {
	batch, err := transport.ReadSampleBatch(b.engine, version)
	if err != nil {
		return // transient fetch failures are retried on the next Announce
	}
	b.mu.Lock()
	b.incoming = batch
	b.mu.Unlock()
	b.hasNext.Store(true)
}

// GetNextBatch returns the next sample, swapping in the incoming batch when
// the active one is exhausted and allowSwitch is true. ok is false when no
// sample is currently available.
func (b *BufferLoader) GetNextBatch(allowSwitch bool) (example.SampleEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pos >= len(b.active) {
		if !allowSwitch || !b.hasNext.Load() {
			return example.SampleEntry{}, false
		}
		b.active = b.incoming
		b.incoming = nil
		b.pos = 0
		b.hasNext.Store(false)
		if len(b.active) == 0 {
			return example.SampleEntry{}, false
		}
	}
	entry := b.active[b.pos]
	b.pos++
	return entry, true
}

// EffectiveSampleSize reports the Kish effective sample size of the
// remaining active batch (sum(w))^2 / sum(w^2), which the booster reports
// as a packet's EffSize.
func (b *BufferLoader) EffectiveSampleSize() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var sumW, sumW2 float64
	for _, e := range b.active[b.pos:] {
		w := float64(e.Weight)
		sumW += w
		sumW2 += w * w
	}
	if sumW2 == 0 {
		return 0
	}
	return sumW * sumW / sumW2
}

// AtEnd reports whether the active batch is exhausted.
func (b *BufferLoader) AtEnd() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pos >= len(b.active)
}
