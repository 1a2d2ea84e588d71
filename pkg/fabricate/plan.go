// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fabricate

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/AleutianAI/netfab/pkg/activation"
	"github.com/AleutianAI/netfab/pkg/network"
)

// Source is one weighted contribution into a step, by slot.
type Source struct {
	Slot   int
	Weight float64
}

// Step evaluates one node.
//
// Slot is the step's own index in the plan; the value of a step is stored
// at that slot during evaluation.
type Step struct {
	Node     network.NodeID
	Slot     int
	Role     network.Role
	Function activation.Function
	Sources  []Source
}

// Plan is an ordered, executable evaluation procedure for a network.
//
// Description:
//
//	Steps are in topological order: every Source slot of a step is lower than
//	the step's own slot. Input steps carry no function and are seeded from
//	the caller's input values by position.
//
// Thread Safety:
//
//	Plan is immutable and safe for concurrent use by any number of evaluations.
type Plan struct {
	steps       []Step
	slots       map[network.NodeID]int
	inputs      []int
	outputs     []int
	stages      [][]network.NodeID
	stageSlots  [][]int
	pruned      []network.NodeID
	fingerprint string
}

// Steps returns the plan's steps in evaluation order.
//
// The returned slice is a copy; the Sources of each step are shared and
// must not be modified.
func (p *Plan) Steps() []Step {
	out := make([]Step, len(p.steps))
	copy(out, p.steps)
	return out
}

// Step returns the step at slot. The Sources slice must not be modified.
func (p *Plan) Step(slot int) Step {
	return p.steps[slot]
}

// Order returns the node IDs in evaluation order.
func (p *Plan) Order() []network.NodeID {
	ids := make([]network.NodeID, len(p.steps))
	for i, s := range p.steps {
		ids[i] = s.Node
	}
	return ids
}

// SlotCount returns the number of value slots an evaluation needs.
func (p *Plan) SlotCount() int { return len(p.steps) }

// InputCount returns the number of caller-supplied values the plan expects.
func (p *Plan) InputCount() int { return len(p.inputs) }

// OutputCount returns the number of values an evaluation returns.
func (p *Plan) OutputCount() int { return len(p.outputs) }

// InputSlots returns the slot of each input, in input order.
func (p *Plan) InputSlots() []int { return append([]int(nil), p.inputs...) }

// OutputSlots returns the slot of each output, in output order.
func (p *Plan) OutputSlots() []int { return append([]int(nil), p.outputs...) }

// Inputs returns the input node IDs in positional order.
func (p *Plan) Inputs() []network.NodeID { return p.nodesAt(p.inputs) }

// Outputs returns the output node IDs in positional order.
func (p *Plan) Outputs() []network.NodeID { return p.nodesAt(p.outputs) }

// SlotOf returns the slot of a node, if the node is part of the plan.
func (p *Plan) SlotOf(id network.NodeID) (int, bool) {
	s, ok := p.slots[id]
	return s, ok
}

// Contains reports whether the node is evaluated by the plan.
func (p *Plan) Contains(id network.NodeID) bool {
	_, ok := p.slots[id]
	return ok
}

// Stages returns the plan's nodes grouped into dependency waves.
func (p *Plan) Stages() [][]network.NodeID {
	out := make([][]network.NodeID, len(p.stages))
	for i, s := range p.stages {
		out[i] = append([]network.NodeID(nil), s...)
	}
	return out
}

// StageCount returns the number of dependency waves.
func (p *Plan) StageCount() int { return len(p.stageSlots) }

// StageSlots returns the slots of stage i in ascending node ID order. No
// slot in a stage is a source of another slot in the same stage. The
// returned slice must not be modified.
func (p *Plan) StageSlots(i int) []int { return p.stageSlots[i] }

// Pruned returns the nodes left out of the plan, in ascending ID order.
func (p *Plan) Pruned() []network.NodeID {
	return append([]network.NodeID(nil), p.pruned...)
}

// Fingerprint returns a hex SHA-256 digest identifying the plan's content.
//
// Plans with equal fingerprints evaluate identically.
func (p *Plan) Fingerprint() string { return p.fingerprint }

func (p *Plan) nodesAt(slots []int) []network.NodeID {
	ids := make([]network.NodeID, len(slots))
	for i, s := range slots {
		ids[i] = p.steps[s].Node
	}
	return ids
}

// computeFingerprint hashes everything evaluation depends on.
func computeFingerprint(steps []Step, inputs, outputs []int) string {
	h := sha256.New()
	var buf [8]byte

	putUint := func(v uint64) {
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	putString := func(s string) {
		putUint(uint64(len(s)))
		h.Write([]byte(s))
	}

	putUint(uint64(len(steps)))
	for _, s := range steps {
		putUint(uint64(s.Node))
		putUint(uint64(s.Role))
		if s.Role != network.RoleInput {
			putString(s.Function.Descriptor())
		}
		putUint(uint64(len(s.Sources)))
		for _, src := range s.Sources {
			putUint(uint64(src.Slot))
			putUint(math.Float64bits(src.Weight))
		}
	}
	putUint(uint64(len(inputs)))
	for _, slot := range inputs {
		putUint(uint64(slot))
	}
	putUint(uint64(len(outputs)))
	for _, slot := range outputs {
		putUint(uint64(slot))
	}

	return hex.EncodeToString(h.Sum(nil))
}
