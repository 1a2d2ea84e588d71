// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fabd

import (
	"time"

	"github.com/AleutianAI/netfab/pkg/fabricate"
	"github.com/AleutianAI/netfab/pkg/network"
	"github.com/AleutianAI/netfab/services/fabd/cache"
)

// NetworkInfo summarizes one stored network.
type NetworkInfo struct {
	// Name is the network's key in the store.
	Name string `json:"name"`

	// Format is "yaml" or "hcl".
	Format string `json:"format"`

	// Revision increments on every update.
	Revision  uint64    `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`

	// Nodes and Edges are set when the body was parsed for this response.
	Nodes int `json:"nodes,omitempty"`
	Edges int `json:"edges,omitempty"`
}

// NetworkResponse is the response for GET /v1/networks/:name.
type NetworkResponse struct {
	NetworkInfo

	// Document is the stored document text.
	Document string `json:"document"`
}

// ListResponse is the response for GET /v1/networks.
type ListResponse struct {
	Networks []NetworkInfo `json:"networks"`
}

// SourceView is one weighted step input.
type SourceView struct {
	Node   network.NodeID `json:"node"`
	Slot   int            `json:"slot"`
	Weight float64        `json:"weight"`
}

// StepView is the JSON form of one plan step.
type StepView struct {
	Slot     int            `json:"slot"`
	Node     network.NodeID `json:"node"`
	Role     string         `json:"role"`
	Function string         `json:"function,omitempty"`
	Sources  []SourceView   `json:"sources,omitempty"`
}

// PlanDescription is the response for GET /v1/networks/:name/plan.
type PlanDescription struct {
	Name        string             `json:"name"`
	Revision    uint64             `json:"revision"`
	Fingerprint string             `json:"fingerprint"`
	Inputs      []network.NodeID   `json:"inputs"`
	Outputs     []network.NodeID   `json:"outputs"`
	Steps       []StepView         `json:"steps"`
	Stages      [][]network.NodeID `json:"stages"`
	Pruned      []network.NodeID   `json:"pruned"`

	// Cached reports whether the plan came from the plan cache.
	Cached bool `json:"cached"`
}

// EvaluateRequest is the request body for POST /v1/networks/:name/evaluate.
type EvaluateRequest struct {
	// Inputs are the input values in the network's input order.
	Inputs []float64 `json:"inputs"`
}

// EvaluateResponse is the response for POST /v1/networks/:name/evaluate.
type EvaluateResponse struct {
	Name     string    `json:"name"`
	Revision uint64    `json:"revision"`
	Outputs  []float64 `json:"outputs"`
}

// BatchRequest is the request body for POST /v1/networks/:name/evaluate/batch.
type BatchRequest struct {
	Rows [][]float64 `json:"rows"`
}

// BatchResponse is the response for POST /v1/networks/:name/evaluate/batch.
type BatchResponse struct {
	Name     string      `json:"name"`
	Revision uint64      `json:"revision"`
	Outputs  [][]float64 `json:"outputs"`
}

// HealthResponse is the response for GET /v1/health.
type HealthResponse struct {
	// Status is "healthy".
	Status string `json:"status"`

	// Version is the service version.
	Version string `json:"version"`

	Cache cache.Stats `json:"cache"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable machine-readable error code.
	Code string `json:"code"`

	// Details lists individual problems, such as graph issues.
	Details []string `json:"details,omitempty"`
}

// describePlan converts a plan into its JSON view.
func describePlan(name string, revision uint64, plan *fabricate.Plan, cached bool) PlanDescription {
	steps := plan.Steps()
	views := make([]StepView, len(steps))
	for i, s := range steps {
		v := StepView{Slot: s.Slot, Node: s.Node, Role: s.Role.String()}
		if s.Role != network.RoleInput {
			v.Function = s.Function.String()
		}
		for _, src := range s.Sources {
			v.Sources = append(v.Sources, SourceView{
				Node:   steps[src.Slot].Node,
				Slot:   src.Slot,
				Weight: src.Weight,
			})
		}
		views[i] = v
	}

	pruned := plan.Pruned()
	if pruned == nil {
		pruned = []network.NodeID{}
	}
	return PlanDescription{
		Name:        name,
		Revision:    revision,
		Fingerprint: plan.Fingerprint(),
		Inputs:      plan.Inputs(),
		Outputs:     plan.Outputs(),
		Steps:       views,
		Stages:      plan.Stages(),
		Pruned:      pruned,
		Cached:      cached,
	}
}
