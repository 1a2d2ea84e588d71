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
	"fmt"

	"github.com/AleutianAI/netfab/pkg/network"
	"github.com/AleutianAI/netfab/pkg/topology"
)

// Sentinel errors for the fabricate package.
var (
	// ErrNilNetwork is returned when Fabricate is called with a nil network.
	ErrNilNetwork = errors.New("network must not be nil")

	// ErrCyclic is returned when the network contains a cycle.
	ErrCyclic = topology.ErrCyclic
)

// Kind classifies a FabricationError.
type Kind int

const (
	// KindCyclic means the network contains a cycle.
	KindCyclic Kind = iota + 1
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindCyclic:
		return "cyclic"
	default:
		return "unknown"
	}
}

// FabricationError reports why a plan could not be built.
//
// errors.Is(err, ErrCyclic) holds for KindCyclic, and errors.As reaches
// the underlying *topology.CyclicGraphError.
type FabricationError struct {
	Kind   Kind
	NodeID network.NodeID
	Err    error
}

// Error returns the error message.
func (e *FabricationError) Error() string {
	return fmt.Sprintf("fabrication failed (%s) at node %d: %v", e.Kind, e.NodeID, e.Err)
}

// Unwrap returns the underlying error.
func (e *FabricationError) Unwrap() error {
	return e.Err
}
