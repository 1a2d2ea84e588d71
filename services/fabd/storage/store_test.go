// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_PutGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec, err := s.Put(ctx, Record{Name: "xor", Format: "yaml", Body: []byte("name: xor")})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.Revision)
	assert.False(t, rec.UpdatedAt.IsZero())

	got, err := s.Get(ctx, "xor")
	require.NoError(t, err)
	assert.Equal(t, "yaml", got.Format)
	assert.Equal(t, []byte("name: xor"), got.Body)
	assert.Equal(t, uint64(1), got.Revision)
}

func TestStore_PutBumpsRevision(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for want := uint64(1); want <= 3; want++ {
		rec, err := s.Put(ctx, Record{Name: "xor", Format: "yaml", Body: []byte("v")})
		require.NoError(t, err)
		assert.Equal(t, want, rec.Revision)
	}
}

func TestStore_ConcurrentPutsGetDistinctRevisions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	revisions := make(chan uint64, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := s.Put(ctx, Record{Name: "race", Format: "yaml"})
			if err == nil {
				revisions <- rec.Revision
			}
		}()
	}
	wg.Wait()
	close(revisions)

	seen := map[uint64]bool{}
	for rev := range revisions {
		assert.False(t, seen[rev], "revision %d handed out twice", rev)
		seen[rev] = true
	}
}

func TestStore_NotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "missing"), ErrNotFound)
}

func TestStore_ListAndDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"b", "a", "c"} {
		_, err := s.Put(ctx, Record{Name: name, Format: "hcl"})
		require.NoError(t, err)
	}

	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "a", records[0].Name)
	assert.Equal(t, "c", records[2].Name)

	require.NoError(t, s.Delete(ctx, "b"))
	records, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	rec, err := s.Put(ctx, Record{Name: "b", Format: "hcl"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rec.Revision, "revisions continue after delete")

	records, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 3, "revision counters are not listed")
}

func TestStore_RevisionsNeverRepeatAcrossDeletes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seen := make(map[uint64]bool)
	for i := 0; i < 3; i++ {
		rec, err := s.Put(ctx, Record{Name: "a", Format: "yaml", Body: []byte{byte(i)}})
		require.NoError(t, err)
		assert.False(t, seen[rec.Revision], "revision %d reused", rec.Revision)
		seen[rec.Revision] = true
		require.NoError(t, s.Delete(ctx, "a"))
	}

	_, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	rec, err := s.Put(ctx, Record{Name: "a", Format: "yaml"})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), rec.Revision)
}

func TestStore_InvalidName(t *testing.T) {
	s := openTestStore(t)
	for _, name := range []string{"", "a/b", "has space", string(make([]byte, 129))} {
		_, err := s.Put(context.Background(), Record{Name: name})
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}
}

func TestStore_CancelledContext(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Put(ctx, Record{Name: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStore_Persistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cfg := DefaultConfig(dir)
	cfg.GCInterval = 0
	s, err := Open(cfg)
	require.NoError(t, err)
	_, err = s.Put(ctx, Record{Name: "kept", Format: "yaml", Body: []byte("x")})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(cfg)
	require.NoError(t, err)
	defer s2.Close()
	got, err := s2.Get(ctx, "kept")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got.Body)
}

func TestOpen_RequiresDir(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}
