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
	"errors"
	"fmt"

	"github.com/AleutianAI/netfab/pkg/network"
)

// Sentinel errors for the evaluate package.
var (
	// ErrNilPlan is returned when evaluating a nil plan.
	ErrNilPlan = errors.New("plan must not be nil")

	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrArityMismatch is matched by EvaluationError of KindArityMismatch.
	ErrArityMismatch = errors.New("input count does not match plan")

	// ErrFunctionFailed is matched by EvaluationError of KindFunctionFailed.
	ErrFunctionFailed = errors.New("node function failed")
)

// Kind classifies an EvaluationError.
type Kind int

const (
	// KindArityMismatch means the caller passed the wrong number of inputs.
	KindArityMismatch Kind = iota + 1

	// KindFunctionFailed means a node's function returned an error.
	KindFunctionFailed
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindArityMismatch:
		return "arity_mismatch"
	case KindFunctionFailed:
		return "function_failed"
	default:
		return "unknown"
	}
}

// EvaluationError reports why an evaluation produced no output.
//
// For KindArityMismatch, Want and Got hold the expected and supplied input
// counts. For KindFunctionFailed, NodeID names the failing node and Err holds
// the function's error.
type EvaluationError struct {
	Kind   Kind
	NodeID network.NodeID
	Want   int
	Got    int
	Err    error
}

// Error returns the error message.
func (e *EvaluationError) Error() string {
	switch e.Kind {
	case KindArityMismatch:
		return fmt.Sprintf("arity mismatch: plan takes %d inputs, got %d", e.Want, e.Got)
	case KindFunctionFailed:
		return fmt.Sprintf("node %d: function failed: %v", e.NodeID, e.Err)
	default:
		return fmt.Sprintf("evaluation failed: %v", e.Err)
	}
}

// Is matches the sentinel for the error's kind.
func (e *EvaluationError) Is(target error) bool {
	switch target {
	case ErrArityMismatch:
		return e.Kind == KindArityMismatch
	case ErrFunctionFailed:
		return e.Kind == KindFunctionFailed
	}
	return false
}

// Unwrap returns the underlying cause, if any.
func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// RowError wraps an error with the batch row that caused it.
type RowError struct {
	Row int
	Err error
}

// Error returns the error message.
func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

// Unwrap returns the underlying error.
func (e *RowError) Unwrap() error {
	return e.Err
}
