// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package netfile reads network descriptions from YAML and HCL documents.
//
// A document lists nodes, edges and optionally the positional order of the
// inputs and outputs:
//
//	version: "1.0"
//	name: bias-demo
//	nodes:
//	  - {id: 1, role: input}
//	  - {id: 2, role: bias, value: 1.0}
//	  - {id: 3, role: output, function: sum}
//	edges:
//	  - {from: 1, to: 3, weight: 1.0}
//	  - {from: 2, to: 3, weight: 0.5}
//
// The equivalent HCL form uses one block per node and edge:
//
//	version = "1.0"
//	name    = "bias-demo"
//	node "1" { role = "input" }
//	node "2" {
//	  role  = "bias"
//	  value = 1.0
//	}
//	node "3" {
//	  role     = "output"
//	  function = "sum"
//	}
//	edge {
//	  from   = 1
//	  to     = 3
//	  weight = 1.0
//	}
//
// A node's function is either a built-in name ("sigmoid"), a CEL
// expression ("expr"), or, for a bias or constant node, a value.
package netfile

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/netfab/pkg/activation"
	"github.com/AleutianAI/netfab/pkg/expr"
	"github.com/AleutianAI/netfab/pkg/network"
	"github.com/go-playground/validator/v10"
	"golang.org/x/mod/semver"
)

// SupportedMajor is the document major version this package reads.
const SupportedMajor = "v1"

// Sentinel errors for the netfile package.
var (
	// ErrUnsupportedVersion is returned for versions outside SupportedMajor.
	ErrUnsupportedVersion = errors.New("unsupported document version")

	// ErrUnknownFormat is returned for an unrecognized format or extension.
	ErrUnknownFormat = errors.New("unknown document format")

	// ErrInvalidDocument is returned when struct validation fails.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrParse is returned when the document cannot be decoded.
	ErrParse = errors.New("cannot parse document")
)

// Format identifies a document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatHCL  Format = "hcl"
)

// ParseFormat converts a format name into a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "hcl":
		return FormatHCL, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// FormatFromPath derives the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: %s has no extension", ErrUnknownFormat, path)
	}
	return ParseFormat(ext)
}

// Document is the decoded form of a network description.
type Document struct {
	Version string     `yaml:"version" json:"version" validate:"required"`
	Name    string     `yaml:"name" json:"name" validate:"required,max=128"`
	Inputs  []uint32   `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs []uint32   `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Nodes   []NodeSpec `yaml:"nodes" json:"nodes" validate:"required,min=1,dive"`
	Edges   []EdgeSpec `yaml:"edges,omitempty" json:"edges,omitempty" validate:"dive"`
}

// NodeSpec describes one node.
type NodeSpec struct {
	ID       uint32   `yaml:"id" json:"id"`
	Role     string   `yaml:"role" json:"role" validate:"required,oneof=input output hidden bias"`
	Function string   `yaml:"function,omitempty" json:"function,omitempty" validate:"excluded_with=Expr"`
	Value    *float64 `yaml:"value,omitempty" json:"value,omitempty"`
	Expr     string   `yaml:"expr,omitempty" json:"expr,omitempty"`
}

// EdgeSpec describes one edge.
type EdgeSpec struct {
	From   uint32  `yaml:"from" json:"from"`
	To     uint32  `yaml:"to" json:"to"`
	Weight float64 `yaml:"weight" json:"weight"`
}

// docValidate is the validator instance for documents.
var docValidate = validator.New()

// Parse decodes data in the given format and validates the result.
//
// filename is used in HCL diagnostics only.
func Parse(data []byte, format Format, filename string) (*Document, error) {
	switch format {
	case FormatYAML:
		return ParseYAML(data)
	case FormatHCL:
		return ParseHCL(data, filename)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Validate checks the document's fields and version.
func (d *Document) Validate() error {
	if err := docValidate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	v := d.Version
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) || semver.Major(v) != SupportedMajor {
		return fmt.Errorf("%w: %q (want %s.x)", ErrUnsupportedVersion, d.Version, SupportedMajor)
	}
	return nil
}

// Network builds the described network.
//
// Description:
//
//	Resolves every node's function and hands the result to network.Builder,
//	so structural problems surface as *network.MalformedGraphError.
//	A bias node without a value produces 1.0. A non-input node without
//	function, expression or value sums its inputs.
//
// Outputs:
//
//	*network.Network - The built network.
//	error - Function resolution errors, or *network.MalformedGraphError.
func (d *Document) Network() (*network.Network, error) {
	b := network.NewBuilder()

	for _, spec := range d.Nodes {
		role, err := network.ParseRole(spec.Role)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", spec.ID, err)
		}
		fn, err := spec.function(role)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", spec.ID, err)
		}
		b.AddNode(network.NodeID(spec.ID), role, fn)
	}
	for _, e := range d.Edges {
		b.AddEdge(network.NodeID(e.From), network.NodeID(e.To), e.Weight)
	}
	if len(d.Inputs) > 0 {
		b.SetInputs(toIDs(d.Inputs)...)
	}
	if len(d.Outputs) > 0 {
		b.SetOutputs(toIDs(d.Outputs)...)
	}

	return b.Build()
}

func (s NodeSpec) function(role network.Role) (activation.Function, error) {
	switch {
	case role == network.RoleInput:
		return activation.Function{}, nil
	case role == network.RoleBias:
		if s.Value == nil {
			return activation.Constant(1), nil
		}
		return activation.Constant(*s.Value), nil
	case s.Expr != "":
		return expr.Compile(s.Expr)
	case s.Function != "":
		return activation.Lookup(s.Function)
	case s.Value != nil:
		return activation.Constant(*s.Value), nil
	default:
		return activation.Builtin(activation.KindSum), nil
	}
}

func toIDs(ids []uint32) []network.NodeID {
	out := make([]network.NodeID, len(ids))
	for i, id := range ids {
		out[i] = network.NodeID(id)
	}
	return out
}
