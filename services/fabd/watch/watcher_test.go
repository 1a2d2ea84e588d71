// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/netfab/pkg/netfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]Change
}

func (r *recorder) handle(_ context.Context, changes []Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, append([]Change(nil), changes...))
}

func (r *recorder) all() []Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Change
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

func (r *recorder) find(name string, op Op) bool {
	for _, c := range r.all() {
		if c.Name == name && c.Op == op {
			return true
		}
	}
	return false
}

func TestOp_String(t *testing.T) {
	assert.Equal(t, "upsert", OpUpsert.String())
	assert.Equal(t, "remove", OpRemove.String())
	assert.Equal(t, "unknown", Op(9).String())
}

func TestClassify(t *testing.T) {
	now := time.Now()
	tests := []struct {
		path   string
		ok     bool
		name   string
		format netfile.Format
	}{
		{"/nets/xor.yaml", true, "xor", netfile.FormatYAML},
		{"/nets/xor.yml", true, "xor", netfile.FormatYAML},
		{"/nets/and.hcl", true, "and", netfile.FormatHCL},
		{"/nets/readme.md", false, "", ""},
		{"/nets/.xor.yaml.swp", false, "", ""},
		{"/nets/.hidden.yaml", false, "", ""},
		{"/nets/xor.yaml~", false, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			c, ok := classify(tt.path, OpUpsert, now)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.name, c.Name)
				assert.Equal(t, tt.format, c.Format)
			}
		})
	}
}

func TestDeduplicate_KeepsLatest(t *testing.T) {
	in := []Change{
		{Path: "a.yaml", Op: OpUpsert},
		{Path: "b.yaml", Op: OpUpsert},
		{Path: "a.yaml", Op: OpRemove},
	}
	out := deduplicate(in)
	require.Len(t, out, 2)
	assert.Equal(t, "a.yaml", out[0].Path)
	assert.Equal(t, OpRemove, out[0].Op)
}

func TestNew_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := New(dir, nil, nil)
	assert.Error(t, err)

	_, err = New(filepath.Join(dir, "missing"), func(context.Context, []Change) {}, nil)
	assert.Error(t, err)

	file := filepath.Join(dir, "f.yaml")
	require.NoError(t, os.WriteFile(file, nil, 0600))
	_, err = New(file, func(context.Context, []Change) {}, nil)
	assert.Error(t, err)
}

func TestWatcher_Scan(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.hcl", "a.yaml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.yaml"), 0750))

	w, err := New(dir, func(context.Context, []Change) {}, nil)
	require.NoError(t, err)
	defer w.Stop()

	changes, err := w.Scan()
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "a", changes[0].Name)
	assert.Equal(t, "b", changes[1].Name)
}

func TestWatcher_DeliversDebouncedChanges(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w, err := New(dir, rec.handle, &Options{Debounce: 50 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	require.NoError(t, w.Start(ctx), "second Start is a no-op")
	assert.True(t, w.IsWatching())

	path := filepath.Join(dir, "xor.yaml")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("version: '1.0'"), 0600))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0600))

	require.Eventually(t, func() bool { return rec.find("xor", OpUpsert) }, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool { return rec.find("xor", OpRemove) }, 2*time.Second, 20*time.Millisecond)

	for _, c := range rec.all() {
		assert.NotEqual(t, "ignored", c.Name)
	}

	w.Stop()
	w.Stop()
	assert.False(t, w.IsWatching())
}

func TestWatcher_StopAfterFailedStart(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nets")
	require.NoError(t, os.Mkdir(dir, 0750))
	w, err := New(dir, func(context.Context, []Change) {}, nil)
	require.NoError(t, err)
	require.NoError(t, os.Remove(dir))

	require.Error(t, w.Start(context.Background()))
	assert.False(t, w.IsWatching())

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked after a failed Start")
	}
}
