// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package network provides the immutable graph model shared by the topology
// analyzer, the fabricator and the evaluator.
//
// A Network is a set of nodes (INPUT, OUTPUT, HIDDEN or BIAS), a set of
// directed weighted edges, and the ordered INPUT and OUTPUT sequences that
// define positional correspondence with caller-supplied inputs and returned
// outputs.
//
// Networks are created through Builder. Build rejects dangling edges,
// self-loops, duplicate edges and invalid INPUT/OUTPUT sequences with a
// *MalformedGraphError; no partially built Network is ever returned.
// Cycles are not a construction error here; they are detected when a plan
// is fabricated.
//
// # Thread Safety
//
// Network has no mutation API and is safe for concurrent use.
//
// # Example
//
//	net, err := network.NewBuilder().
//	    AddInput(1).
//	    AddBias(2, 1.0).
//	    AddOutput(3, activation.Builtin(activation.KindSum)).
//	    AddEdge(1, 3, 1.0).
//	    AddEdge(2, 3, 0.5).
//	    Build()
package network
