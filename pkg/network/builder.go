// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package network

import (
	"math"
	"sort"

	"github.com/AleutianAI/netfab/pkg/activation"
)

type edgeKey struct {
	from, to NodeID
}

// Builder constructs a Network.
//
// Description:
//
//	Builder accumulates nodes, edges and the optional INPUT/OUTPUT
//	sequences, then validates everything at once in Build. Problems are
//	collected rather than reported one at a time so a caller sees the full
//	list of issues.
//
// Thread Safety:
//
//	Builder is NOT safe for concurrent use. Build the network in a single goroutine.
//
// Example:
//
//	net, err := network.NewBuilder().
//	    AddInput(1).
//	    AddOutput(2, activation.Builtin(activation.KindSum)).
//	    AddEdge(1, 2, 2.0).
//	    Build()
type Builder struct {
	nodes      []Node
	edges      []Edge
	inputs     []NodeID
	outputs    []NodeID
	inputsSet  bool
	outputsSet bool
}

// NewBuilder creates a new network builder.
func NewBuilder() *Builder {
	return &Builder{
		nodes: make([]Node, 0),
		edges: make([]Edge, 0),
	}
}

// AddNode adds a node with an explicit role and function.
//
// INPUT nodes ignore fn.
func (b *Builder) AddNode(id NodeID, role Role, fn activation.Function) *Builder {
	b.nodes = append(b.nodes, Node{ID: id, Role: role, Function: fn})
	return b
}

// AddInput adds an INPUT node.
func (b *Builder) AddInput(id NodeID) *Builder {
	return b.AddNode(id, RoleInput, activation.Function{})
}

// AddOutput adds an OUTPUT node.
func (b *Builder) AddOutput(id NodeID, fn activation.Function) *Builder {
	return b.AddNode(id, RoleOutput, fn)
}

// AddHidden adds a HIDDEN node.
func (b *Builder) AddHidden(id NodeID, fn activation.Function) *Builder {
	return b.AddNode(id, RoleHidden, fn)
}

// AddBias adds a BIAS node producing the constant value.
func (b *Builder) AddBias(id NodeID, value float64) *Builder {
	return b.AddNode(id, RoleBias, activation.Constant(value))
}

// AddEdge adds a directed weighted edge.
func (b *Builder) AddEdge(from, to NodeID, weight float64) *Builder {
	b.edges = append(b.edges, Edge{From: from, To: to, Weight: weight})
	return b
}

// SetInputs fixes the positional order of the INPUT nodes.
//
// When not called, INPUT nodes are ordered by ascending ID.
func (b *Builder) SetInputs(ids ...NodeID) *Builder {
	b.inputs = append([]NodeID(nil), ids...)
	b.inputsSet = true
	return b
}

// SetOutputs fixes the positional order of the OUTPUT nodes.
//
// When not called, OUTPUT nodes are ordered by ascending ID.
func (b *Builder) SetOutputs(ids ...NodeID) *Builder {
	b.outputs = append([]NodeID(nil), ids...)
	b.outputsSet = true
	return b
}

// Build validates and constructs the Network.
//
// Description:
//
//	Checks node uniqueness, roles and functions, then every edge, then the
//	INPUT/OUTPUT sequences. Acyclicity is not checked here; that is the
//	topology analyzer's job.
//
// Outputs:
//
//	*Network - The constructed network. Nil on failure.
//	error - *MalformedGraphError listing every issue found.
func (b *Builder) Build() (*Network, error) {
	var issues []error

	nodes := make([]Node, 0, len(b.nodes))
	index := make(map[NodeID]int, len(b.nodes))
	seen := make(map[NodeID]bool, len(b.nodes))
	for _, node := range b.nodes {
		if seen[node.ID] {
			issues = append(issues, &NodeError{NodeID: node.ID, Err: ErrDuplicateNode})
			continue
		}
		seen[node.ID] = true
		switch node.Role {
		case RoleInput:
		case RoleHidden, RoleOutput, RoleBias:
			if !node.Function.Valid() {
				issues = append(issues, &NodeError{NodeID: node.ID, Err: ErrMissingFunction})
			}
		default:
			issues = append(issues, &NodeError{NodeID: node.ID, Err: ErrInvalidRole})
		}
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	for i, node := range nodes {
		index[node.ID] = i
	}

	incoming := make([][]int, len(nodes))
	outgoing := make([][]int, len(nodes))
	pairs := make(map[edgeKey]bool, len(b.edges))
	edges := make([]Edge, 0, len(b.edges))
	for _, e := range b.edges {
		fi, fromOK := index[e.From]
		ti, toOK := index[e.To]
		if !fromOK || !toOK {
			issues = append(issues, &EdgeError{From: e.From, To: e.To, Err: ErrDanglingEdge})
			continue
		}
		if e.From == e.To {
			issues = append(issues, &EdgeError{From: e.From, To: e.To, Err: ErrSelfLoop})
			continue
		}
		key := edgeKey{e.From, e.To}
		if pairs[key] {
			issues = append(issues, &EdgeError{From: e.From, To: e.To, Err: ErrDuplicateEdge})
			continue
		}
		pairs[key] = true
		if math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) {
			issues = append(issues, &EdgeError{From: e.From, To: e.To, Err: ErrInvalidWeight})
			continue
		}
		switch nodes[ti].Role {
		case RoleInput:
			issues = append(issues, &EdgeError{From: e.From, To: e.To, Err: ErrEdgeIntoInput})
			continue
		case RoleBias:
			issues = append(issues, &EdgeError{From: e.From, To: e.To, Err: ErrEdgeIntoBias})
			continue
		}
		edges = append(edges, e)
		incoming[ti] = append(incoming[ti], len(edges)-1)
		outgoing[fi] = append(outgoing[fi], len(edges)-1)
	}

	inputs, inputIssues := resolveSequence(nodes, index, RoleInput, b.inputs, b.inputsSet)
	issues = append(issues, inputIssues...)
	outputs, outputIssues := resolveSequence(nodes, index, RoleOutput, b.outputs, b.outputsSet)
	issues = append(issues, outputIssues...)
	if len(outputs) == 0 && len(outputIssues) == 0 {
		issues = append(issues, ErrNoOutputs)
	}

	if len(issues) > 0 {
		return nil, &MalformedGraphError{Issues: issues}
	}

	return &Network{
		nodes:    nodes,
		index:    index,
		edges:    edges,
		incoming: incoming,
		outgoing: outgoing,
		inputs:   inputs,
		outputs:  outputs,
	}, nil
}

// resolveSequence returns the positional sequence for role.
//
// An explicit sequence must list every node of that role exactly once and
// nothing else. Otherwise the role members are taken in ascending ID order.
func resolveSequence(nodes []Node, index map[NodeID]int, role Role, explicit []NodeID, set bool) ([]NodeID, []error) {
	if !set {
		var seq []NodeID
		for _, node := range nodes {
			if node.Role == role {
				seq = append(seq, node.ID)
			}
		}
		return seq, nil
	}

	var issues []error
	listed := make(map[NodeID]bool, len(explicit))
	for _, id := range explicit {
		i, ok := index[id]
		switch {
		case !ok:
			issues = append(issues, &NodeError{NodeID: id, Err: ErrUnknownNode})
		case listed[id]:
			issues = append(issues, &NodeError{NodeID: id, Err: ErrDuplicateReference})
		case nodes[i].Role != role:
			issues = append(issues, &NodeError{NodeID: id, Err: ErrRoleMismatch})
		}
		listed[id] = true
	}
	for _, node := range nodes {
		if node.Role == role && !listed[node.ID] {
			issues = append(issues, &NodeError{NodeID: node.ID, Err: ErrRoleMismatch})
		}
	}
	if len(issues) > 0 {
		return nil, issues
	}
	return append([]NodeID(nil), explicit...), nil
}
