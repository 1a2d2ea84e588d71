// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package expr compiles CEL expressions into node functions.
//
// An expression sees the node's incoming weighted values and a few
// precomputed reductions of them:
//
//	values  list(double)  the incoming weighted values, in edge order
//	count   int           size(values)
//	sum     double        sum of values
//	mean    double        sum / count, or 0.0 when empty
//	min     double        smallest value, or 0.0 when empty
//	max     double        largest value, or 0.0 when empty
//
// CEL does not mix int and double arithmetic implicitly, so constants must
// be written as doubles: "sum * 2.0", not "sum * 2".
package expr

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/AleutianAI/netfab/pkg/activation"
	"github.com/google/cel-go/cel"
)

// Sentinel errors for the expr package.
var (
	// ErrEmptyExpression is returned when compiling an empty source.
	ErrEmptyExpression = errors.New("expression is empty")

	// ErrCompile is returned when the source does not compile.
	ErrCompile = errors.New("expression does not compile")

	// ErrNotNumeric is returned when an expression yields a non-numeric value.
	ErrNotNumeric = errors.New("expression result is not numeric")
)

var (
	envOnce sync.Once
	env     *cel.Env
	envErr  error
)

// environment returns the shared CEL environment.
func environment() (*cel.Env, error) {
	envOnce.Do(func() {
		env, envErr = cel.NewEnv(
			cel.Variable("values", cel.ListType(cel.DoubleType)),
			cel.Variable("count", cel.IntType),
			cel.Variable("sum", cel.DoubleType),
			cel.Variable("mean", cel.DoubleType),
			cel.Variable("min", cel.DoubleType),
			cel.Variable("max", cel.DoubleType),
		)
	})
	return env, envErr
}

// Compile parses and checks source and returns it as a node function.
//
// Description:
//
//	The function's name is the expression source, so two nodes using the
//	same expression share a descriptor.
//
// Inputs:
//
//	source - CEL expression yielding a double or int.
//
// Outputs:
//
//	activation.Function - A KindCustom function.
//	error - ErrEmptyExpression or ErrCompile.
//
// Thread Safety: The returned function is safe for concurrent use.
func Compile(source string) (activation.Function, error) {
	if source == "" {
		return activation.Function{}, ErrEmptyExpression
	}

	e, err := environment()
	if err != nil {
		return activation.Function{}, fmt.Errorf("create cel environment: %w", err)
	}

	ast, iss := e.Compile(source)
	if iss != nil && iss.Err() != nil {
		return activation.Function{}, fmt.Errorf("%w: %v", ErrCompile, iss.Err())
	}

	prg, err := e.Program(ast)
	if err != nil {
		return activation.Function{}, fmt.Errorf("%w: %v", ErrCompile, err)
	}

	fn := func(values []float64) (float64, error) {
		out, _, err := prg.Eval(bindings(values))
		if err != nil {
			return 0, fmt.Errorf("eval %q: %w", source, err)
		}
		switch v := out.Value().(type) {
		case float64:
			return v, nil
		case int64:
			return float64(v), nil
		case uint64:
			return float64(v), nil
		default:
			return 0, fmt.Errorf("%w: %q yielded %T", ErrNotNumeric, source, v)
		}
	}

	return activation.Custom(source, fn), nil
}

// bindings computes the variables visible to an expression.
func bindings(values []float64) map[string]any {
	list := append([]float64(nil), values...)

	var sum float64
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range list {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	mean := 0.0
	if len(list) > 0 {
		mean = sum / float64(len(list))
	} else {
		lo, hi = 0, 0
	}

	return map[string]any{
		"values": list,
		"count":  int64(len(list)),
		"sum":    sum,
		"mean":   mean,
		"min":    lo,
		"max":    hi,
	}
}
