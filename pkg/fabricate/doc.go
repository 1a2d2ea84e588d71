// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fabricate turns a validated network into an immutable evaluation
// plan.
//
// A Plan is fabricated once and evaluated any number of times, so the cost of
// topological analysis is paid only once per network. Fabricating the same
// network twice yields identical plans with equal fingerprints.
//
// # Example
//
//	plan, err := fabricate.New().Fabricate(net)
//	if errors.Is(err, fabricate.ErrCyclic) {
//	    // the network cannot be executed
//	}
package fabricate
