// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package activation provides the aggregation and activation functions a
// network node applies to its weighted incoming values.
//
// The built-in set is closed and enumerated by Kind. Callers extend it with
// Custom, which wraps any pure Func under a stable name.
//
// Activation kinds (sigmoid, tanh, ...) apply to the sum of the incoming
// values. Aggregation kinds (sum, product, mean, max, min) reduce the
// sequence directly.
//
// # Thread Safety
//
// Function is an immutable value and safe for concurrent use, provided any
// Func passed to Custom is itself safe for concurrent use.
package activation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Sentinel errors for the activation package.
var (
	// ErrDomain is returned when an input falls outside a function's domain.
	ErrDomain = errors.New("input outside function domain")

	// ErrUnknownFunction is returned by Lookup for an unrecognized name.
	ErrUnknownFunction = errors.New("unknown function")

	// ErrInvalidFunction is returned when applying the zero Function.
	ErrInvalidFunction = errors.New("function is not set")
)

// SigmoidSlope is the steepness of the sigmoid used by KindSigmoid and KindTanh.
const SigmoidSlope = 4.9

// Kind enumerates the built-in function families.
type Kind int

const (
	// KindInvalid is the zero Kind; a Function of this kind cannot be applied.
	KindInvalid Kind = iota
	KindSum
	KindProduct
	KindMean
	KindMax
	KindMin
	KindSigmoid
	KindTanh
	KindGaussian
	KindReLU
	KindInverse
	KindSquared
	KindAbs
	KindSqrt
	KindLog
	KindConstant
	KindCustom
)

var kindNames = map[Kind]string{
	KindInvalid:  "invalid",
	KindSum:      "sum",
	KindProduct:  "product",
	KindMean:     "mean",
	KindMax:      "max",
	KindMin:      "min",
	KindSigmoid:  "sigmoid",
	KindTanh:     "tanh",
	KindGaussian: "gaussian",
	KindReLU:     "relu",
	KindInverse:  "inverse",
	KindSquared:  "squared",
	KindAbs:      "abs",
	KindSqrt:     "sqrt",
	KindLog:      "log",
	KindConstant: "constant",
	KindCustom:   "custom",
}

// aliases maps accepted spellings onto their canonical kind.
var aliases = map[string]Kind{
	"linear":   KindSum,
	"identity": KindSum,
	"wsum":     KindSum,
	"average":  KindMean,
	"square":   KindSquared,
	"negate":   KindInverse,
}

// String returns the canonical lowercase name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Func is the signature of a caller-supplied node function.
//
// The values slice is reused between calls and must not be retained.
type Func func(values []float64) (float64, error)

// Function is a node's aggregation/activation function.
//
// The zero value is invalid; use Builtin, Constant, Custom or Lookup.
type Function struct {
	kind  Kind
	name  string
	value float64
	fn    Func
}

// Builtin returns the built-in function of the given kind.
//
// KindConstant yields Constant(0). KindCustom and KindInvalid yield the
// invalid zero Function.
func Builtin(kind Kind) Function {
	switch kind {
	case KindInvalid, KindCustom:
		return Function{}
	case KindConstant:
		return Constant(0)
	}
	if _, ok := kindNames[kind]; !ok {
		return Function{}
	}
	return Function{kind: kind, name: kind.String()}
}

// Constant returns a function that ignores its inputs and yields v.
func Constant(v float64) Function {
	return Function{kind: KindConstant, name: KindConstant.String(), value: v}
}

// Custom wraps a caller-supplied function under name.
//
// The name is part of the function's descriptor and therefore of plan
// fingerprints; two different functions must not share a name.
func Custom(name string, fn Func) Function {
	if fn == nil {
		return Function{}
	}
	return Function{kind: KindCustom, name: name, fn: fn}
}

// Lookup resolves a built-in function by name, case-insensitively.
//
// "constant" is not resolvable by name because it needs a value; use Constant.
func Lookup(name string) (Function, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if k, ok := aliases[key]; ok {
		return Builtin(k), nil
	}
	for k, n := range kindNames {
		if n == key && k != KindInvalid && k != KindCustom && k != KindConstant {
			return Builtin(k), nil
		}
	}
	return Function{}, fmt.Errorf("%w: %q", ErrUnknownFunction, name)
}

// Kind returns the function's kind.
func (f Function) Kind() Kind { return f.kind }

// Name returns the function's name.
func (f Function) Name() string { return f.name }

// Value returns the constant value. Zero for non-constant kinds.
func (f Function) Value() float64 { return f.value }

// Valid reports whether the function can be applied.
func (f Function) Valid() bool {
	switch f.kind {
	case KindInvalid:
		return false
	case KindCustom:
		return f.fn != nil
	default:
		return true
	}
}

// Descriptor returns a stable textual identity for the function.
//
// Constants include the exact bit pattern of their value so that
// descriptors differ whenever results could differ.
func (f Function) Descriptor() string {
	switch f.kind {
	case KindConstant:
		return "constant:" + strconv.FormatUint(math.Float64bits(f.value), 16)
	case KindCustom:
		return "custom:" + f.name
	default:
		return f.kind.String()
	}
}

// String implements fmt.Stringer.
func (f Function) String() string {
	if f.kind == KindConstant {
		return "constant(" + strconv.FormatFloat(f.value, 'g', -1, 64) + ")"
	}
	return f.name
}

// Apply evaluates the function over the incoming weighted values.
//
// Inputs:
//
//	values - Incoming weighted values. May be empty. Not retained.
//
// Outputs:
//
//	float64 - The node value.
//	error - ErrDomain for out-of-domain inputs, ErrInvalidFunction for the
//	zero Function, or whatever a Custom function returns.
func (f Function) Apply(values []float64) (float64, error) {
	switch f.kind {
	case KindInvalid:
		return 0, ErrInvalidFunction
	case KindConstant:
		return f.value, nil
	case KindCustom:
		if f.fn == nil {
			return 0, ErrInvalidFunction
		}
		return f.fn(values)
	case KindProduct:
		p := 1.0
		for _, v := range values {
			p *= v
		}
		return p, nil
	case KindMean:
		if len(values) == 0 {
			return 0, nil
		}
		return sum(values) / float64(len(values)), nil
	case KindMax:
		if len(values) == 0 {
			return 0, nil
		}
		m := values[0]
		for _, v := range values[1:] {
			m = math.Max(m, v)
		}
		return m, nil
	case KindMin:
		if len(values) == 0 {
			return 0, nil
		}
		m := values[0]
		for _, v := range values[1:] {
			m = math.Min(m, v)
		}
		return m, nil
	}

	x := sum(values)
	switch f.kind {
	case KindSum:
		return x, nil
	case KindSigmoid:
		return sigmoid(x), nil
	case KindTanh:
		return 2*sigmoid(2*x) - 1, nil
	case KindGaussian:
		return math.Exp(x * x / -2), nil
	case KindReLU:
		return math.Max(0, x), nil
	case KindInverse:
		return -x, nil
	case KindSquared:
		return x * x, nil
	case KindAbs:
		return math.Abs(x), nil
	case KindSqrt:
		if x < 0 {
			return 0, fmt.Errorf("%w: sqrt(%g)", ErrDomain, x)
		}
		return math.Sqrt(x), nil
	case KindLog:
		if x <= 0 {
			return 0, fmt.Errorf("%w: log(%g)", ErrDomain, x)
		}
		return math.Log(x), nil
	}
	return 0, ErrInvalidFunction
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-SigmoidSlope*x))
}

func sum(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
}
