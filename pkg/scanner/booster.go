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
	"sync/atomic"

	"github.com/arapat/sparrow-sub000/pkg/bins"
	"github.com/arapat/sparrow-sub000/pkg/protocol"
	"github.com/arapat/sparrow-sub000/pkg/tree"
	"github.com/google/uuid"
)

// defaultMinEffSize is the booster's default minimum effective sample size.
// The booster stores it but does not consult it: every packet carries the
// loader's measured EffSize, and the SmallEffSize decision is made by the
// head in protocol.Classify.
const defaultMinEffSize = 100.0

// Network is the subset of transport.PacketConn the booster needs,
// narrowed to an interface so the loop can be driven by a fake in tests.
type Network interface {
	SendPacket(protocol.Packet) error
	ReadTask() (protocol.Task, error)
}

// Booster drives one scanner's main loop: take a task, search it with a
// fresh Learner against the loader's stream, and report back whatever was
// found (or the reason nothing was).
type Booster struct {
	scannerID string
	bins      bins.Bins
	loader    *BufferLoader
	model     *tree.Model
	net       Network
	minEff    float64
	running   *atomic.Bool
}

// NewBoosterOption configures optional Booster fields.
type NewBoosterOption func(*Booster)

// WithMinEffSize overrides the stored minimum effective sample size.
func WithMinEffSize(v float64) NewBoosterOption {
	return func(b *Booster) { b.minEff = v }
}

// NewBooster wires a scanner's booster loop.
func NewBooster(scannerID string, b bins.Bins, loader *BufferLoader, model *tree.Model, net Network, running *atomic.Bool, opts ...NewBoosterOption) *Booster {
	bs := &Booster{
		scannerID: scannerID,
		bins:      b,
		loader:    loader,
		model:     model,
		net:       net,
		minEff:    defaultMinEffSize,
		running:   running,
	}
	for _, opt := range opts {
		opt(bs)
	}
	return bs
}

// Run processes tasks from the head until running is cleared or the
// network connection ends.
func (bs *Booster) Run() error {
	for bs.running.Load() {
		task, err := bs.net.ReadTask()
		if err != nil {
			return err
		}
		if err := bs.net.SendPacket(bs.searchOneTask(task)); err != nil {
			return err
		}
	}
	return nil
}

// searchOneTask scans the active sample stream against task's gamma until
// either a candidate split is accepted or the buffer runs dry, and builds
// the packet to report back.
func (bs *Booster) searchOneTask(task protocol.Task) protocol.Packet {
	learner := NewLearner(bs.bins, task.Gamma)
	baseVersion := bs.model.Version()

	for {
		entry, ok := bs.loader.GetNextBatch(true)
		if !ok {
			break
		}
		if entry.Stale(baseVersion) {
			continue // entry carries stale weights; skip rather than mis-score this node
		}
		learner.Update(entry.ScoredExample)

		if accepted, ok := learner.Accepted(); ok {
			return protocol.Packet{
				ID:           uuid.New(),
				ScannerID:    bs.scannerID,
				Task:         task,
				BaseVersion:  baseVersion,
				EffSize:      bs.loader.EffectiveSampleSize(),
				HasCandidate: true,
				Candidate: tree.UpdateEntry{
					TreeIndex: task.TreeIndex,
					Parent:    task.NodeIndex,
					Feature:   int32(accepted.Feature),
					Threshold: accepted.Threshold,
					Predicts:  accepted.Predicts,
					Gamma:     task.Gamma,
				},
			}
		}
	}

	return protocol.Packet{
		ID:          uuid.New(),
		ScannerID:   bs.scannerID,
		Task:        task,
		BaseVersion: baseVersion,
		EffSize:     bs.loader.EffectiveSampleSize(),
	}
}
