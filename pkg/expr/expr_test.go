// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package expr

import (
	"testing"

	"github.com/AleutianAI/netfab/pkg/activation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_Evaluates(t *testing.T) {
	tests := []struct {
		source string
		values []float64
		want   float64
	}{
		{"sum * 2.0", []float64{1, 2}, 6},
		{"mean", []float64{1, 2, 3}, 2},
		{"max - min", []float64{4, -1, 2}, 5},
		{"count", []float64{7, 7, 7}, 3},
		{"count == 0 ? 1.5 : values[0]", nil, 1.5},
		{"count == 0 ? 1.5 : values[0]", []float64{9}, 9},
		{"sum > 0.0 ? sum : 0.0", []float64{-3}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			fn, err := Compile(tt.source)
			require.NoError(t, err)
			assert.Equal(t, activation.KindCustom, fn.Kind())
			assert.Equal(t, tt.source, fn.Name())

			got, err := fn.Apply(tt.values)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	_, err := Compile("")
	assert.ErrorIs(t, err, ErrEmptyExpression)

	_, err = Compile("sum +")
	assert.ErrorIs(t, err, ErrCompile)

	_, err = Compile("unknown_var * 2.0")
	assert.ErrorIs(t, err, ErrCompile)
}

func TestCompile_NonNumericResult(t *testing.T) {
	fn, err := Compile("sum > 1.0")
	require.NoError(t, err)

	_, err = fn.Apply([]float64{3})
	assert.ErrorIs(t, err, ErrNotNumeric)
}

func TestCompile_RuntimeError(t *testing.T) {
	fn, err := Compile("values[3]")
	require.NoError(t, err)

	_, err = fn.Apply([]float64{1})
	assert.Error(t, err)
}
