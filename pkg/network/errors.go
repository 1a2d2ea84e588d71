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
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the network package.
var (
	// ErrDuplicateNode is returned when two nodes share an ID.
	ErrDuplicateNode = errors.New("node with this id already exists")

	// ErrDanglingEdge is returned when an edge endpoint is not a node.
	ErrDanglingEdge = errors.New("edge references a nonexistent node")

	// ErrSelfLoop is returned when an edge starts and ends at the same node.
	ErrSelfLoop = errors.New("edge is a self-loop")

	// ErrDuplicateEdge is returned when the same ordered pair is connected twice.
	ErrDuplicateEdge = errors.New("duplicate edge")

	// ErrUnknownNode is returned when an input/output sequence names a missing node.
	ErrUnknownNode = errors.New("node not found")

	// ErrDuplicateReference is returned when an input/output sequence repeats a node.
	ErrDuplicateReference = errors.New("node listed more than once")

	// ErrRoleMismatch is returned when a sequence and the node roles disagree.
	ErrRoleMismatch = errors.New("node role does not match sequence")

	// ErrEdgeIntoInput is returned when an edge targets an INPUT node.
	ErrEdgeIntoInput = errors.New("input node cannot have incoming edges")

	// ErrEdgeIntoBias is returned when an edge targets a BIAS node.
	ErrEdgeIntoBias = errors.New("bias node cannot have incoming edges")

	// ErrMissingFunction is returned when a non-input node has no function.
	ErrMissingFunction = errors.New("node has no function")

	// ErrInvalidWeight is returned for NaN or infinite edge weights.
	ErrInvalidWeight = errors.New("edge weight must be finite")

	// ErrInvalidRole is returned for a role outside the defined set.
	ErrInvalidRole = errors.New("invalid node role")

	// ErrNoOutputs is returned when a network declares no OUTPUT node.
	ErrNoOutputs = errors.New("network has no output nodes")
)

// NodeError wraps an error with the node that caused it.
type NodeError struct {
	NodeID NodeID
	Err    error
}

// Error returns the error message.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %d: %v", e.NodeID, e.Err)
}

// Unwrap returns the underlying error.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// EdgeError wraps an error with the edge that caused it.
type EdgeError struct {
	From NodeID
	To   NodeID
	Err  error
}

// Error returns the error message.
func (e *EdgeError) Error() string {
	return fmt.Sprintf("edge %d->%d: %v", e.From, e.To, e.Err)
}

// Unwrap returns the underlying error.
func (e *EdgeError) Unwrap() error {
	return e.Err
}

// MalformedGraphError reports every structural problem found by Build.
//
// errors.Is matches any of the contained sentinels, and errors.As reaches the
// individual NodeError and EdgeError values.
type MalformedGraphError struct {
	Issues []error
}

// Error returns the error message.
func (e *MalformedGraphError) Error() string {
	if len(e.Issues) == 1 {
		return "malformed network: " + e.Issues[0].Error()
	}
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.Error()
	}
	return fmt.Sprintf("malformed network (%d issues): %s", len(e.Issues), strings.Join(parts, "; "))
}

// Unwrap returns the individual issues.
func (e *MalformedGraphError) Unwrap() []error {
	return e.Issues
}
