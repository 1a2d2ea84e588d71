// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fabricate

import (
	"errors"
	"sync"
	"testing"

	"github.com/AleutianAI/netfab/pkg/activation"
	"github.com/AleutianAI/netfab/pkg/network"
	"github.com/AleutianAI/netfab/pkg/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sum = activation.Builtin(activation.KindSum)

// mixedNetwork: inputs 1,2; hidden 3 feeds output 5; hidden 4 is a dead end;
// bias 6 feeds output 5.
func mixedNetwork(t *testing.T) *network.Network {
	t.Helper()
	net, err := network.NewBuilder().
		AddInput(1).
		AddInput(2).
		AddHidden(3, activation.Builtin(activation.KindSigmoid)).
		AddHidden(4, sum).
		AddOutput(5, sum).
		AddBias(6, 1).
		AddEdge(1, 3, 0.5).
		AddEdge(2, 3, -1).
		AddEdge(3, 5, 2).
		AddEdge(2, 4, 1).
		AddEdge(6, 5, 0.25).
		Build()
	require.NoError(t, err)
	return net
}

func TestFabricate_OrderRespectsEdges(t *testing.T) {
	net := mixedNetwork(t)

	for _, prune := range []bool{true, false} {
		plan, err := New(WithPruning(prune)).Fabricate(net)
		require.NoError(t, err)

		for _, step := range plan.Steps() {
			for _, src := range step.Sources {
				if src.Slot >= step.Slot {
					t.Errorf("prune=%v: node %d reads slot %d at slot %d", prune, step.Node, src.Slot, step.Slot)
				}
			}
		}

		pos := make(map[network.NodeID]int)
		for i, id := range plan.Order() {
			pos[id] = i
		}
		for _, e := range net.Edges() {
			if !plan.Contains(e.From) || !plan.Contains(e.To) {
				continue
			}
			assert.Less(t, pos[e.From], pos[e.To], "edge %d->%d", e.From, e.To)
		}
	}
}

func TestFabricate_Pruning(t *testing.T) {
	net := mixedNetwork(t)

	plan, err := New().Fabricate(net)
	require.NoError(t, err)
	assert.False(t, plan.Contains(4))
	assert.True(t, plan.Contains(6), "bias feeding an output must be kept")
	assert.True(t, plan.Contains(2))
	assert.Equal(t, []network.NodeID{4}, plan.Pruned())
	assert.Equal(t, 5, plan.SlotCount())

	full, err := New(WithPruning(false)).Fabricate(net)
	require.NoError(t, err)
	assert.True(t, full.Contains(4))
	assert.Empty(t, full.Pruned())
	assert.Equal(t, 6, full.SlotCount())
	assert.NotEqual(t, plan.Fingerprint(), full.Fingerprint())
}

func TestFabricate_InputsAndOutputs(t *testing.T) {
	net, err := network.NewBuilder().
		AddInput(1).
		AddInput(2).
		AddOutput(3, sum).
		AddOutput(4, sum).
		AddEdge(1, 3, 1).
		AddEdge(2, 4, 1).
		SetInputs(2, 1).
		SetOutputs(4, 3).
		Build()
	require.NoError(t, err)

	plan, err := New().Fabricate(net)
	require.NoError(t, err)
	assert.Equal(t, 2, plan.InputCount())
	assert.Equal(t, 2, plan.OutputCount())
	assert.Equal(t, []network.NodeID{2, 1}, plan.Inputs())
	assert.Equal(t, []network.NodeID{4, 3}, plan.Outputs())

	for i, slot := range plan.InputSlots() {
		assert.Equal(t, plan.Inputs()[i], plan.Step(slot).Node)
	}
}

func TestFabricate_Deterministic(t *testing.T) {
	net := mixedNetwork(t)
	fab := New()

	first, err := fab.Fabricate(net)
	require.NoError(t, err)
	second, err := fab.Fabricate(net)
	require.NoError(t, err)

	assert.Equal(t, first.Fingerprint(), second.Fingerprint())
	assert.Equal(t, first.Order(), second.Order())
	assert.Equal(t, first.Stages(), second.Stages())
	assert.Len(t, first.Fingerprint(), 64)
}

func TestFabricate_FingerprintTracksWeights(t *testing.T) {
	build := func(w float64) *Plan {
		net, err := network.NewBuilder().AddInput(1).AddOutput(2, sum).AddEdge(1, 2, w).Build()
		require.NoError(t, err)
		plan, err := New().Fabricate(net)
		require.NoError(t, err)
		return plan
	}
	assert.Equal(t, build(2).Fingerprint(), build(2).Fingerprint())
	assert.NotEqual(t, build(2).Fingerprint(), build(2.5).Fingerprint())
}

func TestFabricate_Cyclic(t *testing.T) {
	net, err := network.NewBuilder().
		AddInput(1).
		AddHidden(2, sum).
		AddHidden(3, sum).
		AddOutput(4, sum).
		AddEdge(1, 2, 1).
		AddEdge(2, 3, 1).
		AddEdge(3, 2, 1).
		AddEdge(3, 4, 1).
		Build()
	require.NoError(t, err)

	plan, err := New().Fabricate(net)
	require.Error(t, err)
	assert.Nil(t, plan)
	assert.True(t, errors.Is(err, ErrCyclic))

	var fabErr *FabricationError
	require.True(t, errors.As(err, &fabErr))
	assert.Equal(t, KindCyclic, fabErr.Kind)
	assert.Equal(t, network.NodeID(2), fabErr.NodeID)

	var cycleErr *topology.CyclicGraphError
	require.True(t, errors.As(err, &cycleErr))
	assert.Contains(t, cycleErr.Cycle, network.NodeID(3))
}

func TestFabricate_NilNetwork(t *testing.T) {
	_, err := New().Fabricate(nil)
	assert.ErrorIs(t, err, ErrNilNetwork)
}

func TestFabricate_Stages(t *testing.T) {
	plan, err := New().Fabricate(mixedNetwork(t))
	require.NoError(t, err)
	assert.Equal(t, [][]network.NodeID{{1, 2, 6}, {3}, {5}}, plan.Stages())

	require.Equal(t, 3, plan.StageCount())
	for i, stage := range plan.Stages() {
		slots := plan.StageSlots(i)
		require.Len(t, slots, len(stage))
		for j, id := range stage {
			assert.Equal(t, id, plan.Step(slots[j]).Node)
		}
	}
}

func TestFabricate_Concurrent(t *testing.T) {
	net := mixedNetwork(t)
	fab := New()
	want, err := fab.Fabricate(net)
	require.NoError(t, err)

	var wg sync.WaitGroup
	fingerprints := make([]string, 16)
	for i := range fingerprints {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			plan, err := fab.Fabricate(net)
			if err == nil {
				fingerprints[i] = plan.Fingerprint()
			}
		}(i)
	}
	wg.Wait()

	for i, fp := range fingerprints {
		assert.Equal(t, want.Fingerprint(), fp, "goroutine %d", i)
	}
}
