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
	"errors"
	"sort"

	"github.com/AleutianAI/netfab/pkg/network"
	"github.com/AleutianAI/netfab/pkg/topology"
)

// Fabricator turns a network into an evaluation plan.
type Fabricator interface {
	// Fabricate builds a plan for n.
	//
	// Returns *FabricationError (matching ErrCyclic) for cyclic networks.
	Fabricate(n *network.Network) (*Plan, error)
}

// Option configures a Topological fabricator.
type Option func(*Topological)

// WithPruning controls whether nodes that cannot influence any output are
// left out of the plan. Enabled by default. Inputs are always kept.
func WithPruning(enabled bool) Option {
	return func(t *Topological) {
		t.prune = enabled
	}
}

// Topological is the default Fabricator.
//
// Description:
//
//	Orders the network with the topology analyzer and lays the nodes out
//	as dense slots in that order. Cycle detection always covers the whole
//	network, including nodes that pruning would drop.
//
// Thread Safety:
//
//	Topological holds only configuration and is safe for concurrent use.
type Topological struct {
	prune bool
}

// New creates a Topological fabricator.
func New(opts ...Option) *Topological {
	t := &Topological{prune: true}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Pruning reports whether the fabricator prunes unreachable nodes.
func (t *Topological) Pruning() bool { return t.prune }

// Fabricate builds a plan for n.
//
// Inputs:
//
//	n - The network. Must not be nil.
//
// Outputs:
//
//	*Plan - The plan. Nil on failure.
//	error - ErrNilNetwork, or *FabricationError of KindCyclic.
func (t *Topological) Fabricate(n *network.Network) (*Plan, error) {
	if n == nil {
		return nil, ErrNilNetwork
	}

	analysis, err := topology.Analyze(n)
	if err != nil {
		var cycleErr *topology.CyclicGraphError
		if errors.As(err, &cycleErr) {
			return nil, &FabricationError{Kind: KindCyclic, NodeID: cycleErr.NodeID(), Err: cycleErr}
		}
		return nil, err
	}

	var keep map[network.NodeID]bool
	if t.prune {
		keep = analysis.Live
	}

	steps := make([]Step, 0, len(analysis.Order))
	slots := make(map[network.NodeID]int, len(analysis.Order))
	var pruned []network.NodeID

	for _, id := range analysis.Order {
		if keep != nil && !keep[id] {
			pruned = append(pruned, id)
			continue
		}
		node, _ := n.Node(id)
		step := Step{
			Node: id,
			Slot: len(steps),
			Role: node.Role,
		}
		if node.Role != network.RoleInput {
			step.Function = node.Function
			for _, in := range n.Incoming(id) {
				// Sources are always live when their target is, so the
				// slot is already assigned.
				step.Sources = append(step.Sources, Source{Slot: slots[in.Source], Weight: in.Weight})
			}
		}
		slots[id] = step.Slot
		steps = append(steps, step)
	}
	sort.Slice(pruned, func(i, j int) bool { return pruned[i] < pruned[j] })

	inputs := make([]int, 0, len(n.Inputs()))
	for _, id := range n.Inputs() {
		inputs = append(inputs, slots[id])
	}
	outputs := make([]int, 0, len(n.Outputs()))
	for _, id := range n.Outputs() {
		outputs = append(outputs, slots[id])
	}

	stages := topology.Stages(n, analysis.Order, keep)
	stageSlots := make([][]int, len(stages))
	for i, stage := range stages {
		stageSlots[i] = make([]int, len(stage))
		for j, id := range stage {
			stageSlots[i][j] = slots[id]
		}
	}

	return &Plan{
		steps:       steps,
		slots:       slots,
		inputs:      inputs,
		outputs:     outputs,
		stages:      stages,
		stageSlots:  stageSlots,
		pruned:      pruned,
		fingerprint: computeFingerprint(steps, inputs, outputs),
	}, nil
}
