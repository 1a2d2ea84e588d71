// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evaluate

import (
	"runtime"

	"github.com/AleutianAI/netfab/pkg/fabricate"
	"golang.org/x/sync/errgroup"
)

// DefaultMinParallel is the smallest stage Staged splits across goroutines.
const DefaultMinParallel = 64

// Staged evaluates a plan one dependency stage at a time.
//
// Description:
//
//	Steps within a stage never read each other's values, so a stage of at
//	least MinParallel steps is split into contiguous chunks evaluated on up
//	to Limit goroutines. Smaller stages run inline. Results are identical
//	to Sequential because every step sees the same source values in the
//	same order.
//
//	When several steps fail, the error names the failing node with the
//	lowest ID in the earliest failing stage. Sequential instead reports
//	the first failure in plan order, which can be a different node.
//
// Thread Safety:
//
//	Staged has no mutable state and is safe for concurrent use.
type Staged struct {
	limit       int
	minParallel int
}

// NewStaged creates a Staged evaluator.
//
// Inputs:
//
//	limit - Maximum goroutines per stage. Values < 1 mean runtime.GOMAXPROCS(0).
//	minParallel - Smallest stage worth splitting. Values < 1 mean DefaultMinParallel.
func NewStaged(limit, minParallel int) *Staged {
	if limit < 1 {
		limit = runtime.GOMAXPROCS(0)
	}
	if minParallel < 1 {
		minParallel = DefaultMinParallel
	}
	return &Staged{limit: limit, minParallel: minParallel}
}

// Evaluate runs plan against inputs stage by stage.
//
// Outputs:
//
//	[]float64 - One value per plan output, in output order.
//	error - ErrNilPlan or *EvaluationError. No partial output is returned.
func (s *Staged) Evaluate(plan *fabricate.Plan, inputs []float64) ([]float64, error) {
	values, err := seed(plan, inputs)
	if err != nil {
		return nil, err
	}

	var scratch []float64
	for i := 0; i < plan.StageCount(); i++ {
		slots := plan.StageSlots(i)
		if s.limit == 1 || len(slots) < s.minParallel {
			for _, slot := range slots {
				if scratch, err = computeStep(plan.Step(slot), values, scratch); err != nil {
					return nil, err
				}
			}
			continue
		}
		if err := s.runStage(plan, values, slots); err != nil {
			return nil, err
		}
	}
	return collect(plan, values), nil
}

// runStage evaluates one stage in chunks. Each chunk stops at its first
// failure; the earliest failing chunk holds the lowest failing index.
func (s *Staged) runStage(plan *fabricate.Plan, values []float64, slots []int) error {
	chunks := s.limit
	if chunks > len(slots) {
		chunks = len(slots)
	}
	size := (len(slots) + chunks - 1) / chunks
	errs := make([]error, chunks)

	var g errgroup.Group
	for c := 0; c < chunks; c++ {
		lo := c * size
		if lo >= len(slots) {
			break
		}
		hi := min(lo+size, len(slots))
		g.Go(func() error {
			var scratch []float64
			var err error
			for _, slot := range slots[lo:hi] {
				if scratch, err = computeStep(plan.Step(slot), values, scratch); err != nil {
					errs[c] = err
					return nil
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
