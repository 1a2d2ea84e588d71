// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package evaluate runs fabricated plans against concrete input values.
//
// Every evaluation allocates its own value slots, so any number of
// evaluations may run concurrently against one shared Plan.
package evaluate

import (
	"github.com/AleutianAI/netfab/pkg/fabricate"
	"github.com/AleutianAI/netfab/pkg/network"
)

// Evaluator runs a plan.
type Evaluator interface {
	// Evaluate runs plan with inputs given in the plan's input order and
	// returns the values of the outputs in the plan's output order.
	Evaluate(plan *fabricate.Plan, inputs []float64) ([]float64, error)
}

// Sequential is the default Evaluator. It walks the steps in plan order.
//
// Thread Safety:
//
//	Sequential has no state and is safe for concurrent use.
type Sequential struct{}

// NewSequential creates a Sequential evaluator.
func NewSequential() *Sequential {
	return &Sequential{}
}

// Evaluate runs plan against inputs.
//
// Description:
//
//	Seeds input slots by position, then applies each remaining step's
//	function to the weighted values of its sources, in edge insertion order.
//	A step without sources receives an empty sequence.
//
// Inputs:
//
//	plan - The plan to run. Must not be nil.
//	inputs - One value per plan input, in input order. Not retained.
//
// Outputs:
//
//	[]float64 - One value per plan output, in output order.
//	error - *EvaluationError of KindArityMismatch or KindFunctionFailed.
//	No partial output is returned on error.
func (s *Sequential) Evaluate(plan *fabricate.Plan, inputs []float64) ([]float64, error) {
	values, err := seed(plan, inputs)
	if err != nil {
		return nil, err
	}

	var scratch []float64
	for slot := 0; slot < plan.SlotCount(); slot++ {
		if scratch, err = computeStep(plan.Step(slot), values, scratch); err != nil {
			return nil, err
		}
	}
	return collect(plan, values), nil
}

// seed checks inputs against plan and returns fresh value slots with the
// inputs in place.
func seed(plan *fabricate.Plan, inputs []float64) ([]float64, error) {
	if plan == nil {
		return nil, ErrNilPlan
	}
	if len(inputs) != plan.InputCount() {
		return nil, &EvaluationError{Kind: KindArityMismatch, Want: plan.InputCount(), Got: len(inputs)}
	}
	values := make([]float64, plan.SlotCount())
	for i, slot := range plan.InputSlots() {
		values[slot] = inputs[i]
	}
	return values, nil
}

// computeStep stores the value of step in values. Input steps are left
// as seeded. scratch is reused across calls and returned.
func computeStep(step fabricate.Step, values, scratch []float64) ([]float64, error) {
	if step.Role == network.RoleInput {
		return scratch, nil
	}
	scratch = scratch[:0]
	for _, src := range step.Sources {
		scratch = append(scratch, values[src.Slot]*src.Weight)
	}
	v, err := step.Function.Apply(scratch)
	if err != nil {
		return scratch, &EvaluationError{Kind: KindFunctionFailed, NodeID: step.Node, Err: err}
	}
	values[step.Slot] = v
	return scratch, nil
}

func collect(plan *fabricate.Plan, values []float64) []float64 {
	outputs := make([]float64, plan.OutputCount())
	for i, slot := range plan.OutputSlots() {
		outputs[i] = values[slot]
	}
	return outputs
}
