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
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/netfab/pkg/fabricate"
	"github.com/AleutianAI/netfab/pkg/netfile"
	"github.com/AleutianAI/netfab/pkg/network"
	"github.com/AleutianAI/netfab/services/fabd/cache"
	"github.com/AleutianAI/netfab/services/fabd/config"
	"github.com/AleutianAI/netfab/services/fabd/storage"
	"github.com/AleutianAI/netfab/services/fabd/watch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewService_RequiresStore(t *testing.T) {
	_, err := NewService(nil, nil, config.EvaluationConfig{}, nil)
	assert.ErrorIs(t, err, ErrNilStore)
}

func TestService_PutInvalidatesPlans(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.PutNetwork(ctx, "doubler", netfile.FormatYAML, []byte(doublerYAML))
	require.NoError(t, err)

	first, rec, hit, err := svc.Plan(ctx, "doubler")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, uint64(1), rec.Revision)

	_, _, hit, err = svc.Plan(ctx, "doubler")
	require.NoError(t, err)
	assert.True(t, hit)

	tripler := strings.Replace(doublerYAML, "weight: 2.0", "weight: 3.0", 1)
	_, err = svc.PutNetwork(ctx, "doubler", netfile.FormatYAML, []byte(tripler))
	require.NoError(t, err)
	assert.Equal(t, 0, svc.CacheStats().Entries)

	second, rec, hit, err := svc.Plan(ctx, "doubler")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, uint64(2), rec.Revision)
	assert.NotEqual(t, first.Fingerprint(), second.Fingerprint())

	resp, err := svc.Evaluate(ctx, "doubler", []float64{2})
	require.NoError(t, err)
	assert.Equal(t, []float64{6}, resp.Outputs)
}

func TestService_RecreatedNetworkIgnoresStalePlan(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.PutNetwork(ctx, "net", netfile.FormatYAML, []byte(doublerYAML))
	require.NoError(t, err)
	stale, old, _, err := svc.Plan(ctx, "net")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteNetwork(ctx, "net"))
	tripler := strings.Replace(doublerYAML, "weight: 2.0", "weight: 3.0", 1)
	info, err := svc.PutNetwork(ctx, "net", netfile.FormatYAML, []byte(tripler))
	require.NoError(t, err)
	require.NotEqual(t, old.Revision, info.Revision)

	// A fabrication of the old record that finishes after the re-put
	// lands under the old revision's key.
	_, _, err = svc.plans.GetOrFabricate(ctx, cache.Key{Name: "net", Revision: old.Revision},
		func(context.Context) (*fabricate.Plan, error) { return stale, nil })
	require.NoError(t, err)

	resp, err := svc.Evaluate(ctx, "net", []float64{2})
	require.NoError(t, err)
	assert.Equal(t, info.Revision, resp.Revision)
	assert.Equal(t, []float64{6}, resp.Outputs)
}

func TestService_PutInvalidName(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.PutNetwork(context.Background(), "a/b", netfile.FormatYAML, []byte(doublerYAML))
	assert.ErrorIs(t, err, storage.ErrInvalidName)
}

func TestService_PutMalformed(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.PutNetwork(context.Background(), "broken", netfile.FormatYAML, []byte(malformedYAML))
	assert.ErrorIs(t, err, network.ErrDanglingEdge)
	assert.ErrorIs(t, err, network.ErrSelfLoop)
}

func TestService_PruningDisabled(t *testing.T) {
	store, err := storage.OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	svc, err := NewService(store, nil, config.EvaluationConfig{Prune: false}, nil)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = svc.PutNetwork(ctx, "bias", netfile.FormatYAML, []byte(biasYAML))
	require.NoError(t, err)

	desc, err := svc.Describe(ctx, "bias")
	require.NoError(t, err)
	assert.Len(t, desc.Steps, 4)
	assert.Empty(t, desc.Pruned)

	resp, err := svc.Evaluate(ctx, "bias", []float64{2})
	require.NoError(t, err)
	assert.Equal(t, []float64{2.5}, resp.Outputs)
}

func TestService_StagedEvaluator(t *testing.T) {
	store, err := storage.OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	svc, err := NewService(store, nil, config.EvaluationConfig{
		Prune:        true,
		Evaluator:    "staged",
		StageWorkers: 2,
		MaxBatchRows: 4,
	}, nil)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = svc.PutNetwork(ctx, "bias", netfile.FormatYAML, []byte(biasYAML))
	require.NoError(t, err)

	resp, err := svc.Evaluate(ctx, "bias", []float64{2})
	require.NoError(t, err)
	assert.Equal(t, []float64{2.5}, resp.Outputs)

	batch, err := svc.EvaluateBatch(ctx, "bias", [][]float64{{0}, {2}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.5}, {2.5}}, batch.Outputs)
}

func TestService_PlanCyclic(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.PutNetwork(ctx, "loop", netfile.FormatYAML, []byte(cyclicYAML))
	require.NoError(t, err)

	_, _, _, err = svc.Plan(ctx, "loop")
	require.ErrorIs(t, err, fabricate.ErrCyclic)
	assert.Equal(t, 0, svc.CacheStats().Entries)
}

func TestService_ApplyChanges(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	dir := t.TempDir()

	good := filepath.Join(dir, "doubler.yaml")
	bad := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(good, []byte(doublerYAML), 0600))
	require.NoError(t, os.WriteFile(bad, []byte(malformedYAML), 0600))

	now := time.Now()
	svc.ApplyChanges(ctx, []watch.Change{
		{Path: good, Name: "doubler", Format: netfile.FormatYAML, Op: watch.OpUpsert, Time: now},
		{Path: bad, Name: "broken", Format: netfile.FormatYAML, Op: watch.OpUpsert, Time: now},
		{Path: filepath.Join(dir, "gone.yaml"), Name: "gone", Format: netfile.FormatYAML, Op: watch.OpUpsert, Time: now},
		{Path: filepath.Join(dir, "never.yaml"), Name: "never", Format: netfile.FormatYAML, Op: watch.OpRemove, Time: now},
	})

	infos, err := svc.ListNetworks(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "doubler", infos[0].Name)

	svc.ApplyChanges(ctx, []watch.Change{{Path: good, Name: "doubler", Op: watch.OpRemove, Time: now}})
	_, err = svc.GetNetwork(ctx, "doubler")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestService_WatchedDirectory(t *testing.T) {
	svc := newTestService(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doubler.yaml"), []byte(doublerYAML), 0600))

	w, err := watch.New(dir, svc.ApplyChanges, &watch.Options{Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initial, err := w.Scan()
	require.NoError(t, err)
	svc.ApplyChanges(ctx, initial)
	require.NoError(t, w.Start(ctx))

	_, err = svc.GetNetwork(ctx, "doubler")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "summer.hcl"), []byte(summerHCL), 0600))
	require.Eventually(t, func() bool {
		_, err := svc.GetNetwork(ctx, "summer")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)

	resp, err := svc.Evaluate(ctx, "summer", []float64{1, 4})
	require.NoError(t, err)
	assert.Equal(t, []float64{5}, resp.Outputs)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	svc := newTestService(t)
	cfg := config.ServerConfig{Addr: "127.0.0.1:0", MaxBodyBytes: 1024, ShutdownTimeout: time.Second}
	srv := NewServer(cfg, NewRouter(svc, cfg, nil), nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/v1/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
