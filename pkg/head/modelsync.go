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
	"github.com/arapat/sparrow-sub000/pkg/protocol"
	"github.com/arapat/sparrow-sub000/pkg/tree"
)

// ModelSync is the head's packet intake: it classifies every packet a
// scanner sends, applies accepted splits to the model, and feeds the
// gamma controller and scheduler the outcomes they need to keep adapting.
type ModelSync struct {
	model      *tree.Model
	scheduler  *Scheduler
	gamma      *Gamma
	minEffSize float64
}

// NewModelSync wires a model, scheduler and gamma controller into one
// packet-handling pipeline.
func NewModelSync(model *tree.Model, scheduler *Scheduler, gamma *Gamma, minEffSize float64) *ModelSync {
	return &ModelSync{model: model, scheduler: scheduler, gamma: gamma, minEffSize: minEffSize}
}

// Handle classifies p and applies its consequences, returning the
// classification for logging/metrics.
func (ms *ModelSync) Handle(p protocol.Packet) protocol.Type {
	nodeValid := ms.scheduler.validForPacket(p)
	t := protocol.Classify(&p, ms.minEffSize, ms.model.Version(), nodeValid)

	switch t {
	case protocol.TypeAcceptRoot, protocol.TypeAcceptNonroot:
		_, left, right := ms.model.Apply(p.Candidate)
		ms.scheduler.ReportAccept(p.ScannerID, left, right)
		ms.gamma.Observe(true)
	case protocol.TypeEmptyRoot, protocol.TypeEmptyNonroot:
		ms.scheduler.ReportEmpty(p.ScannerID, p.Task.Gamma)
		ms.gamma.Observe(false)
	case protocol.TypeRejectBaseModel, protocol.TypeRejectSample:
		ms.scheduler.Release(p.ScannerID)
	case protocol.TypeSmallEffSize:
		ms.scheduler.Release(p.ScannerID)
	}
	return t
}

// validForPacket exposes the scheduler's node-validity check for a
// specific packet's target node, used by ModelSync before classification.
func (s *Scheduler) validForPacket(p protocol.Packet) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[nodeKey{p.Task.TreeIndex, p.Task.NodeIndex}]
	if !ok {
		return false
	}
	return s.validLocked(n, p.Task.Gamma)
}
