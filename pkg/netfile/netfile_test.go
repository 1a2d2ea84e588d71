// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package netfile

import (
	"errors"
	"math"
	"testing"

	"github.com/AleutianAI/netfab/pkg/activation"
	"github.com/AleutianAI/netfab/pkg/evaluate"
	"github.com/AleutianAI/netfab/pkg/fabricate"
	"github.com/AleutianAI/netfab/pkg/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const biasYAML = `
version: "1.0"
name: bias-demo
nodes:
  - {id: 1, role: input}
  - {id: 2, role: bias, value: 1.0}
  - {id: 3, role: output, function: sum}
edges:
  - {from: 1, to: 3, weight: 1.0}
  - {from: 2, to: 3, weight: 0.5}
`

const biasHCL = `
version = "1.0"
name    = "bias-demo"

node "1" { role = "input" }

node "2" {
  role  = "bias"
  value = 1.0
}

node "3" {
  role     = "output"
  function = "sum"
}

edge {
  from   = 1
  to     = 3
  weight = 1.0
}

edge {
  from   = 2
  to     = 3
  weight = 0.5
}
`

func evaluateDoc(t *testing.T, doc *Document, inputs []float64) []float64 {
	t.Helper()
	net, err := doc.Network()
	require.NoError(t, err)
	plan, err := fabricate.New().Fabricate(net)
	require.NoError(t, err)
	out, err := evaluate.NewSequential().Evaluate(plan, inputs)
	require.NoError(t, err)
	return out
}

func TestParseYAML_BiasNetwork(t *testing.T) {
	doc, err := ParseYAML([]byte(biasYAML))
	require.NoError(t, err)
	assert.Equal(t, "bias-demo", doc.Name)
	require.Len(t, doc.Nodes, 3)
	require.NotNil(t, doc.Nodes[1].Value)

	assert.Equal(t, []float64{2.5}, evaluateDoc(t, doc, []float64{2.0}))
}

func TestParseHCL_BiasNetwork(t *testing.T) {
	doc, err := ParseHCL([]byte(biasHCL), "bias.hcl")
	require.NoError(t, err)
	assert.Equal(t, "bias-demo", doc.Name)
	require.Len(t, doc.Nodes, 3)
	require.Len(t, doc.Edges, 2)

	assert.Equal(t, []float64{2.5}, evaluateDoc(t, doc, []float64{2.0}))
}

func TestParseHCL_FormatsAgree(t *testing.T) {
	fromYAML, err := ParseYAML([]byte(biasYAML))
	require.NoError(t, err)
	fromHCL, err := ParseHCL([]byte(biasHCL), "")
	require.NoError(t, err)
	assert.Equal(t, fromYAML, fromHCL)
}

func TestParseHCL_Expressions(t *testing.T) {
	src := `
version = "1"
name    = "consts"
inputs  = [1]
outputs = [2]

node "1" { role = "input" }

node "2" {
  role = "output"
  expr = "sum * 2.0"
}

edge {
  from   = 1
  to     = 2
  weight = 1 / pi
}
`
	doc, err := ParseHCL([]byte(src), "consts.hcl")
	require.NoError(t, err)
	assert.InDelta(t, 1/math.Pi, doc.Edges[0].Weight, 1e-12)
	assert.Equal(t, []uint32{1}, doc.Inputs)

	out := evaluateDoc(t, doc, []float64{math.Pi})
	assert.InDelta(t, 2.0, out[0], 1e-12)
}

func TestParseHCL_BadLabel(t *testing.T) {
	src := `
version = "1.0"
name    = "bad"
node "first" { role = "input" }
`
	_, err := ParseHCL([]byte(src), "bad.hcl")
	assert.ErrorIs(t, err, ErrParse)
}

func TestParseHCL_Syntax(t *testing.T) {
	_, err := ParseHCL([]byte(`node "1" {`), "broken.hcl")
	assert.ErrorIs(t, err, ErrParse)
}

func TestParseYAML_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"syntax", "nodes: [", ErrParse},
		{"unknown field", "version: '1.0'\nname: x\nbogus: 1\nnodes: [{id: 1, role: output}]", ErrParse},
		{"missing name", "version: '1.0'\nnodes: [{id: 1, role: output}]", ErrInvalidDocument},
		{"no nodes", "version: '1.0'\nname: x\n", ErrInvalidDocument},
		{"bad role", "version: '1.0'\nname: x\nnodes: [{id: 1, role: sideways}]", ErrInvalidDocument},
		{"function and expr", "version: '1.0'\nname: x\nnodes: [{id: 1, role: output, function: sum, expr: 'sum'}]", ErrInvalidDocument},
		{"version two", "version: '2.0.0'\nname: x\nnodes: [{id: 1, role: output}]", ErrUnsupportedVersion},
		{"version garbage", "version: 'latest'\nname: x\nnodes: [{id: 1, role: output}]", ErrUnsupportedVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAML([]byte(tt.src))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "error = %v, want %v", err, tt.want)
		})
	}
}

func TestDocument_NetworkErrors(t *testing.T) {
	unknownFn := &Document{
		Version: "1.0",
		Name:    "x",
		Nodes:   []NodeSpec{{ID: 1, Role: "output", Function: "wiggle"}},
	}
	_, err := unknownFn.Network()
	assert.ErrorIs(t, err, activation.ErrUnknownFunction)

	dangling := &Document{
		Version: "1.0",
		Name:    "x",
		Nodes:   []NodeSpec{{ID: 1, Role: "input"}, {ID: 2, Role: "output"}},
		Edges:   []EdgeSpec{{From: 1, To: 9, Weight: 1}},
	}
	_, err = dangling.Network()
	var malformed *network.MalformedGraphError
	assert.True(t, errors.As(err, &malformed))
	assert.ErrorIs(t, err, network.ErrDanglingEdge)
}

func TestDocument_Defaults(t *testing.T) {
	doc := &Document{
		Version: "1.0",
		Name:    "defaults",
		Nodes: []NodeSpec{
			{ID: 1, Role: "input"},
			{ID: 2, Role: "bias"},
			{ID: 3, Role: "output"},
		},
		Edges: []EdgeSpec{{From: 1, To: 3, Weight: 1}, {From: 2, To: 3, Weight: 1}},
	}
	require.NoError(t, doc.Validate())
	assert.Equal(t, []float64{5}, evaluateDoc(t, doc, []float64{4}))
}

func TestEncodeYAML_RoundTrip(t *testing.T) {
	doc, err := ParseYAML([]byte(biasYAML))
	require.NoError(t, err)

	data, err := EncodeYAML(doc)
	require.NoError(t, err)

	again, err := ParseYAML(data)
	require.NoError(t, err)
	assert.Equal(t, doc, again)
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
		err  bool
	}{
		{"nets/xor.yaml", FormatYAML, false},
		{"nets/xor.YML", FormatYAML, false},
		{"nets/xor.hcl", FormatHCL, false},
		{"nets/xor.json", "", true},
		{"nets/xor", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatFromPath(tt.path)
			if tt.err {
				assert.ErrorIs(t, err, ErrUnknownFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Parse(nil, Format("toml"), "")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}
