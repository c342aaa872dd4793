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

// Package protocol defines the wire messages exchanged between scanners and
// the head, and the pure classification rule the head's model-sync uses to
// decide what to do with each one.
package protocol

import (
	"github.com/arapat/sparrow-sub000/pkg/tree"
	"github.com/google/uuid"
)

// Task assigns a scanner a tree node to search: which tree/node, its root
// condition path implicitly known from the model, and the gamma threshold
// its candidate splits must clear.
type Task struct {
	TreeIndex int     `json:"tree_index"`
	NodeIndex int32   `json:"node_index"`
	Gamma     float32 `json:"gamma"`
}

// Packet is what a scanner reports back after searching a Task: either a
// candidate split it found, or a reason it found none.
type Packet struct {
	ID           uuid.UUID       `json:"id"`
	ScannerID    string          `json:"scanner_id"`
	Task         Task            `json:"task"`
	BaseVersion  uint32          `json:"base_version"`
	EffSize      float64         `json:"eff_size"`
	HasCandidate bool            `json:"has_candidate"`
	Candidate    tree.UpdateEntry `json:"candidate,omitempty"`
}

// Type enumerates the classifications a head's model-sync assigns an
// incoming Packet, following the canonical get_packet_type decision table.
type Type int

const (
	// TypeSmallEffSize: the scanner's sample had too little effective size
	// to trust any bound it computed (see commons.rs::get_packet_type).
	TypeSmallEffSize Type = iota
	// TypeEmptyRoot: no candidate found while searching the tree's root.
	TypeEmptyRoot
	// TypeEmptyNonroot: no candidate found at a non-root node.
	TypeEmptyNonroot
	// TypeRejectBaseModel: the packet was computed against a model version
	// that the head has since superseded.
	TypeRejectBaseModel
	// TypeRejectSample: the node this packet targets is no longer valid in
	// the scheduler (already split, expired, or the tree capped out).
	TypeRejectSample
	// TypeAcceptRoot: a candidate split was found at the tree's root.
	TypeAcceptRoot
	// TypeAcceptNonroot: a candidate split was found at a non-root node.
	TypeAcceptNonroot
)

func (t Type) IsAccept() bool {
	return t == TypeAcceptRoot || t == TypeAcceptNonroot
}

func (t Type) IsEmpty() bool {
	return t == TypeEmptyRoot || t == TypeEmptyNonroot
}

func (t Type) String() string {
	switch t {
	case TypeSmallEffSize:
		return "small_eff_size"
	case TypeEmptyRoot:
		return "empty_root"
	case TypeEmptyNonroot:
		return "empty_nonroot"
	case TypeRejectBaseModel:
		return "reject_base_model"
	case TypeRejectSample:
		return "reject_sample"
	case TypeAcceptRoot:
		return "accept_root"
	case TypeAcceptNonroot:
		return "accept_nonroot"
	default:
		return "unknown"
	}
}

// Classify implements the canonical packet classification table: effective
// sample size first, then staleness against the head's current model
// version, then node validity in the scheduler, and finally whether the
// scanner actually found a candidate split.
func Classify(p *Packet, minEffSize float64, currentModelVersion uint32, nodeValid bool) Type {
	if p.EffSize < minEffSize {
		return TypeSmallEffSize
	}
	if p.BaseVersion != currentModelVersion {
		return TypeRejectBaseModel
	}
	if !nodeValid {
		return TypeRejectSample
	}
	isRoot := p.Task.NodeIndex == 0
	if !p.HasCandidate {
		if isRoot {
			return TypeEmptyRoot
		}
		return TypeEmptyNonroot
	}
	if isRoot {
		return TypeAcceptRoot
	}
	return TypeAcceptNonroot
}
