// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package topology orders the nodes of a network and detects cycles.
//
// Ordering is deterministic for a fixed network: among nodes with no
// ordering constraint, the lower ID comes first. This makes repeated
// fabrication of the same network produce identical plans.
//
// # Thread Safety
//
// All functions are pure and safe for concurrent use.
package topology

import (
	"errors"
	"fmt"
	"sort"

	"github.com/AleutianAI/netfab/pkg/network"
	"github.com/dominikbraun/graph"
)

// ErrCyclic is matched by every CyclicGraphError.
var ErrCyclic = errors.New("network contains a cycle")

// CyclicGraphError provides details about a detected cycle.
//
// Cycle starts and ends on the same node, e.g. [2 3 2].
type CyclicGraphError struct {
	Cycle []network.NodeID
}

// Error returns the cycle description.
func (e *CyclicGraphError) Error() string {
	return fmt.Sprintf("cycle detected: %v", e.Cycle)
}

// Unwrap returns ErrCyclic.
func (e *CyclicGraphError) Unwrap() error {
	return ErrCyclic
}

// NodeID returns a node on the cycle.
func (e *CyclicGraphError) NodeID() network.NodeID {
	if len(e.Cycle) == 0 {
		return 0
	}
	return e.Cycle[0]
}

// Analysis is the result of Analyze.
type Analysis struct {
	// Order is a topological order over all nodes.
	Order []network.NodeID

	// Live holds the nodes that can influence an output, plus every input.
	Live map[network.NodeID]bool
}

// Analyze orders the network and computes the live node set.
//
// Outputs:
//
//	*Analysis - Order and live set.
//	error - *CyclicGraphError if the network has a cycle.
func Analyze(n *network.Network) (*Analysis, error) {
	order, err := Sort(n)
	if err != nil {
		return nil, err
	}

	live := Ancestors(n, n.Outputs())
	for _, id := range n.Inputs() {
		live[id] = true
	}

	return &Analysis{Order: order, Live: live}, nil
}

func nodeHash(id network.NodeID) network.NodeID { return id }

func ascending(a, b network.NodeID) bool { return a < b }

// Sort returns a topological order over all nodes of n.
//
// Description:
//
//	Loads the network into a directed graph and runs a stable topological
//	sort with ascending-ID tie-breaking. On failure the cycle is located
//	with a depth-first search so the error names real nodes.
//
// Outputs:
//
//	[]network.NodeID - Every node exactly once; for each edge u->v, u precedes v.
//	error - *CyclicGraphError if the network has a cycle.
func Sort(n *network.Network) ([]network.NodeID, error) {
	g := graph.New(nodeHash, graph.Directed())
	for _, id := range n.NodeIDs() {
		if err := g.AddVertex(id); err != nil {
			return nil, fmt.Errorf("add vertex %d: %w", id, err)
		}
	}
	for _, e := range n.Edges() {
		if err := g.AddEdge(e.From, e.To); err != nil {
			return nil, fmt.Errorf("add edge %d->%d: %w", e.From, e.To, err)
		}
	}

	order, err := graph.StableTopologicalSort(g, ascending)
	if err != nil {
		if cycle := FindCycle(n); cycle != nil {
			return nil, &CyclicGraphError{Cycle: cycle}
		}
		return nil, fmt.Errorf("topological sort: %w", err)
	}
	return order, nil
}

// FindCycle returns one cycle of n, or nil if n is acyclic.
//
// Nodes and successors are visited in ascending ID order, so the reported
// cycle is the same on every call.
func FindCycle(n *network.Network) []network.NodeID {
	visited := make(map[network.NodeID]bool, n.NodeCount())
	recStack := make(map[network.NodeID]bool)
	path := make([]network.NodeID, 0)

	var dfs func(id network.NodeID) []network.NodeID
	dfs = func(id network.NodeID) []network.NodeID {
		visited[id] = true
		recStack[id] = true
		path = append(path, id)

		for _, next := range n.Outgoing(id) {
			if !visited[next] {
				if cycle := dfs(next); cycle != nil {
					return cycle
				}
			} else if recStack[next] {
				start := 0
				for i, p := range path {
					if p == next {
						start = i
						break
					}
				}
				cycle := append([]network.NodeID(nil), path[start:]...)
				return append(cycle, next)
			}
		}

		path = path[:len(path)-1]
		recStack[id] = false
		return nil
	}

	for _, id := range n.NodeIDs() {
		if !visited[id] {
			if cycle := dfs(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// Ancestors returns every node with a path to any of targets, targets included.
//
// Unknown target IDs are ignored.
func Ancestors(n *network.Network, targets []network.NodeID) map[network.NodeID]bool {
	seen := make(map[network.NodeID]bool, n.NodeCount())
	stack := make([]network.NodeID, 0, len(targets))
	for _, id := range targets {
		if n.Contains(id) && !seen[id] {
			seen[id] = true
			stack = append(stack, id)
		}
	}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, in := range n.Incoming(id) {
			if !seen[in.Source] {
				seen[in.Source] = true
				stack = append(stack, in.Source)
			}
		}
	}
	return seen
}

// Stages partitions the kept nodes of order into dependency waves.
//
// Description:
//
//	Stage 0 holds nodes with no kept predecessor; every other node sits one
//	stage after its deepest kept predecessor. Nodes within a stage do not
//	depend on each other. Each stage is sorted by ascending ID.
//
// Inputs:
//
//	n - The network.
//	order - A topological order of n (as returned by Sort).
//	keep - Nodes to include. Nil keeps everything.
func Stages(n *network.Network, order []network.NodeID, keep map[network.NodeID]bool) [][]network.NodeID {
	level := make(map[network.NodeID]int, len(order))
	var stages [][]network.NodeID

	for _, id := range order {
		if keep != nil && !keep[id] {
			continue
		}
		lv := 0
		for _, in := range n.Incoming(id) {
			if keep != nil && !keep[in.Source] {
				continue
			}
			if l, ok := level[in.Source]; ok && l+1 > lv {
				lv = l + 1
			}
		}
		level[id] = lv
		for len(stages) <= lv {
			stages = append(stages, nil)
		}
		stages[lv] = append(stages[lv], id)
	}

	for _, stage := range stages {
		sort.Slice(stage, func(i, j int) bool { return stage[i] < stage[j] })
	}
	return stages
}
