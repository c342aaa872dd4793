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

// Package stratum implements the weight-bucketed sample queues that sit
// between the assigner and the sampler: one Stratum per floor(log2(weight))
// bucket, each with an in-memory in-queue, an overflow spill to disk, and an
// out-queue the sampler drains from.
package stratum

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/arapat/sparrow-sub000/pkg/diskblock"
	"github.com/arapat/sparrow-sub000/pkg/example"
)

// packerBatch is what a Stratum spills to disk in one block: a slice of
// entries, capped at blockCapacity.
type packerBatch struct {
	Entries []example.SampleEntry
}

// Stratum is one weight bucket's queue pipeline: entries land in inQueue,
// a packer goroutine drains it to disk in batches of at most blockCapacity
// (a partial batch is written as soon as inQueue is momentarily empty), and an
// unpacker goroutine refills outQueue either from disk or, when the disk is
// empty, by stealing straight from inQueue.
type Stratum struct {
	Key            int8
	blockCapacity  int
	disk           *diskblock.Buffer
	diskMu         sync.Mutex
	freeSlots      []uint32 // slots written by the packer, awaiting the unpacker
	slotsAvailable chan struct{}

	inQueue  chan example.SampleEntry
	outQueue chan example.SampleEntry

	running *atomic.Bool
	wg      sync.WaitGroup
}

// NewStratum starts a Stratum's packer/unpacker goroutine pair. running is
// shared with the whole pipeline: when it flips false both goroutines drain
// and exit.
func NewStratum(key int8, blockCapacity int, disk *diskblock.Buffer, running *atomic.Bool) *Stratum {
	s := &Stratum{
		Key:            key,
		blockCapacity:  blockCapacity,
		disk:           disk,
		slotsAvailable: make(chan struct{}, 1),
		inQueue:        make(chan example.SampleEntry, blockCapacity*2),
		outQueue:       make(chan example.SampleEntry, blockCapacity*2),
		running:        running,
	}
	s.wg.Add(2)
	go s.packer()
	go s.unpacker()
	return s
}

// In returns the channel to push new entries into this stratum.
func (s *Stratum) In() chan<- example.SampleEntry { return s.inQueue }

// Out returns the channel the sampler drains accepted entries from.
func (s *Stratum) Out() <-chan example.SampleEntry { return s.outQueue }

// Wait blocks until both background goroutines have exited, after running
// has been set false.
func (s *Stratum) Wait() { s.wg.Wait() }

func (s *Stratum) packer() {
	defer s.wg.Done()
	batch := make([]example.SampleEntry, 0, s.blockCapacity)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		slot, err := s.disk.Write(packerBatch{Entries: append([]example.SampleEntry(nil), batch...)})
		if err != nil {
			// disk buffer full is fatal per the stratified storage's
			// overflow contract; surface it loudly and stop packing.
			panic(err)
		}
		s.diskMu.Lock()
		s.freeSlots = append(s.freeSlots, slot)
		s.diskMu.Unlock()
		select {
		case s.slotsAvailable <- struct{}{}:
		default:
		}
		batch = batch[:0]
	}
	for s.running.Load() {
		select {
		case entry := <-s.inQueue:
			batch = append(batch, entry)
			if len(batch) >= s.blockCapacity {
				flush()
			}
		default:
			if len(batch) > 0 {
				flush()
			} else {
				time.Sleep(time.Millisecond)
			}
		}
	}
	flush()
}

func (s *Stratum) unpacker() {
	defer s.wg.Done()
	var pending []example.SampleEntry
	for s.running.Load() {
		if len(pending) > 0 {
			select {
			case s.outQueue <- pending[0]:
				pending = pending[1:]
			default:
			}
			continue
		}
		slot, ok := s.popSlot()
		if ok {
			var batch packerBatch
			if err := s.disk.Read(slot, &batch); err != nil {
				panic(err)
			}
			pending = batch.Entries
			continue
		}
		// disk is empty: steal directly from the in-queue so the sampler
		// is never starved while the packer is still filling its batch.
		select {
		case entry := <-s.inQueue:
			select {
			case s.outQueue <- entry:
			default:
				pending = append(pending, entry)
			}
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func (s *Stratum) popSlot() (uint32, bool) {
	s.diskMu.Lock()
	defer s.diskMu.Unlock()
	if len(s.freeSlots) == 0 {
		return 0, false
	}
	slot := s.freeSlots[0]
	s.freeSlots = s.freeSlots[1:]
	return slot, true
}
