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
	"sort"

	"github.com/AleutianAI/netfab/pkg/activation"
)

// NodeID identifies a node within a network.
type NodeID uint32

// Role designates how a node participates in evaluation.
type Role int

const (
	// RoleHidden is an internal node; its value is its function's result.
	RoleHidden Role = iota

	// RoleInput takes its value from the caller, by position.
	RoleInput

	// RoleOutput is reported to the caller, by position.
	RoleOutput

	// RoleBias is a constant source with no incoming edges.
	RoleBias
)

// String returns the lowercase name of the role.
func (r Role) String() string {
	switch r {
	case RoleHidden:
		return "hidden"
	case RoleInput:
		return "input"
	case RoleOutput:
		return "output"
	case RoleBias:
		return "bias"
	default:
		return "unknown"
	}
}

// ParseRole converts a role name into a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "hidden":
		return RoleHidden, nil
	case "input":
		return RoleInput, nil
	case "output":
		return RoleOutput, nil
	case "bias":
		return RoleBias, nil
	default:
		return 0, ErrInvalidRole
	}
}

// Node is a vertex of the network.
type Node struct {
	ID       NodeID
	Role     Role
	Function activation.Function
}

// Edge is a directed weighted connection: From's value times Weight
// contributes to To's aggregation.
type Edge struct {
	From   NodeID
	To     NodeID
	Weight float64
}

// Incoming is one weighted contribution to a node.
type Incoming struct {
	Source NodeID
	Weight float64
}

// Network is an immutable, validated graph of nodes and weighted edges.
//
// Description:
//
//	Nodes are stored in an arena sorted by ascending ID and referenced by
//	dense index internally. Edges keep insertion order, which is also the
//	order of each node's incoming contributions.
//
// Thread Safety:
//
//	Network exposes no mutation after Build and is safe for concurrent use.
//	All accessors return copies.
type Network struct {
	nodes    []Node
	index    map[NodeID]int
	edges    []Edge
	incoming [][]int
	outgoing [][]int
	inputs   []NodeID
	outputs  []NodeID
}

// Nodes returns all nodes in ascending ID order.
func (n *Network) Nodes() []Node {
	out := make([]Node, len(n.nodes))
	copy(out, n.nodes)
	return out
}

// NodeIDs returns all node IDs in ascending order.
func (n *Network) NodeIDs() []NodeID {
	ids := make([]NodeID, len(n.nodes))
	for i, node := range n.nodes {
		ids[i] = node.ID
	}
	return ids
}

// Edges returns all edges in insertion order.
func (n *Network) Edges() []Edge {
	out := make([]Edge, len(n.edges))
	copy(out, n.edges)
	return out
}

// Node looks up a node by ID.
func (n *Network) Node(id NodeID) (Node, bool) {
	i, ok := n.index[id]
	if !ok {
		return Node{}, false
	}
	return n.nodes[i], true
}

// Contains reports whether id names a node of the network.
func (n *Network) Contains(id NodeID) bool {
	_, ok := n.index[id]
	return ok
}

// Role returns the role of a node.
func (n *Network) Role(id NodeID) (Role, bool) {
	node, ok := n.Node(id)
	return node.Role, ok
}

// Function returns the function of a node.
func (n *Network) Function(id NodeID) (activation.Function, bool) {
	node, ok := n.Node(id)
	return node.Function, ok
}

// Incoming returns the weighted contributions into id, in edge insertion order.
//
// Returns nil for unknown IDs and for nodes without incoming edges.
func (n *Network) Incoming(id NodeID) []Incoming {
	i, ok := n.index[id]
	if !ok || len(n.incoming[i]) == 0 {
		return nil
	}
	out := make([]Incoming, len(n.incoming[i]))
	for j, e := range n.incoming[i] {
		out[j] = Incoming{Source: n.edges[e].From, Weight: n.edges[e].Weight}
	}
	return out
}

// Outgoing returns the targets of edges leaving id, in ascending ID order.
func (n *Network) Outgoing(id NodeID) []NodeID {
	i, ok := n.index[id]
	if !ok || len(n.outgoing[i]) == 0 {
		return nil
	}
	out := make([]NodeID, len(n.outgoing[i]))
	for j, e := range n.outgoing[i] {
		out[j] = n.edges[e].To
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// Inputs returns the ordered INPUT sequence.
func (n *Network) Inputs() []NodeID {
	out := make([]NodeID, len(n.inputs))
	copy(out, n.inputs)
	return out
}

// Outputs returns the ordered OUTPUT sequence.
func (n *Network) Outputs() []NodeID {
	out := make([]NodeID, len(n.outputs))
	copy(out, n.outputs)
	return out
}

// NodeCount returns the number of nodes.
func (n *Network) NodeCount() int { return len(n.nodes) }

// EdgeCount returns the number of edges.
func (n *Network) EdgeCount() int { return len(n.edges) }
