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
	"fmt"
	"math"
	"strconv"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// hclDocument represents the top-level structure of an HCL network file.
type hclDocument struct {
	Version string     `hcl:"version"`
	Name    string     `hcl:"name"`
	Inputs  []uint32   `hcl:"inputs,optional"`
	Outputs []uint32   `hcl:"outputs,optional"`
	Nodes   []*hclNode `hcl:"node,block"`
	Edges   []*hclEdge `hcl:"edge,block"`
}

type hclNode struct {
	ID       string    `hcl:"id,label"`
	Role     string    `hcl:"role"`
	Function string    `hcl:"function,optional"`
	Value    cty.Value `hcl:"value,optional"`
	Expr     string    `hcl:"expr,optional"`
}

type hclEdge struct {
	From   uint32  `hcl:"from"`
	To     uint32  `hcl:"to"`
	Weight float64 `hcl:"weight"`
}

// evalContext exposes a few numeric constants to HCL expressions,
// so that e.g. `weight = 1 / pi` works.
func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"e":  cty.NumberFloatVal(math.E),
			"pi": cty.NumberFloatVal(math.Pi),
		},
	}
}

// ParseHCL decodes and validates an HCL document.
func ParseHCL(data []byte, filename string) (*Document, error) {
	if filename == "" {
		filename = "network.hcl"
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrParse, diags.Error())
	}

	var raw hclDocument
	diags = gohcl.DecodeBody(file.Body, evalContext(), &raw)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrParse, diags.Error())
	}

	doc := &Document{
		Version: raw.Version,
		Name:    raw.Name,
		Inputs:  raw.Inputs,
		Outputs: raw.Outputs,
		Nodes:   make([]NodeSpec, 0, len(raw.Nodes)),
		Edges:   make([]EdgeSpec, 0, len(raw.Edges)),
	}
	for _, n := range raw.Nodes {
		spec, err := n.spec()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrParse, filename, err)
		}
		doc.Nodes = append(doc.Nodes, spec)
	}
	for _, e := range raw.Edges {
		doc.Edges = append(doc.Edges, EdgeSpec{From: e.From, To: e.To, Weight: e.Weight})
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (n *hclNode) spec() (NodeSpec, error) {
	id, err := strconv.ParseUint(n.ID, 10, 32)
	if err != nil {
		return NodeSpec{}, fmt.Errorf("node label %q is not a node id", n.ID)
	}

	spec := NodeSpec{
		ID:       uint32(id),
		Role:     n.Role,
		Function: n.Function,
		Expr:     n.Expr,
	}
	if !n.Value.IsNull() {
		var v float64
		if err := gocty.FromCtyValue(n.Value, &v); err != nil {
			return NodeSpec{}, fmt.Errorf("node %d: value: %v", id, err)
		}
		spec.Value = &v
	}
	return spec, nil
}
