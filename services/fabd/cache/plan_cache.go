// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache keeps fabricated plans so that repeated evaluations of a
// stored network skip fabrication.
package cache

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/netfab/pkg/fabricate"
	"golang.org/x/sync/singleflight"
)

// Key identifies one revision of a stored network.
type Key struct {
	Name     string
	Revision uint64
}

// String returns "name@revision".
func (k Key) String() string {
	return k.Name + "@" + strconv.FormatUint(k.Revision, 10)
}

// BuildFunc fabricates the plan for a key on a cache miss.
type BuildFunc func(ctx context.Context) (*fabricate.Plan, error)

// Options configures a PlanCache.
type Options struct {
	// MaxEntries bounds the number of cached plans. Least recently used
	// plans are evicted first.
	MaxEntries int

	// MaxAge expires plans older than this; 0 disables expiry.
	MaxAge time.Duration
}

// Option modifies Options.
type Option func(*Options)

// WithMaxEntries sets the capacity. Values below 1 are ignored.
func WithMaxEntries(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxEntries = n
		}
	}
}

// WithMaxAge sets the entry lifetime.
func WithMaxAge(d time.Duration) Option {
	return func(o *Options) { o.MaxAge = d }
}

// DefaultOptions returns a 128-entry cache without expiry.
func DefaultOptions() Options {
	return Options{MaxEntries: 128}
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries    int   `json:"entries"`
	MaxEntries int   `json:"max_entries"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Evictions  int64 `json:"evictions"`
	Builds     int64 `json:"builds"`
	Errors     int64 `json:"errors"`
}

type entry struct {
	key     Key
	plan    *fabricate.Plan
	builtAt time.Time
	elem    *list.Element
}

// PlanCache is an LRU cache of fabricated plans.
//
// Description:
//
//	Concurrent misses for the same key share a single fabrication through
//	singleflight. Failed fabrications are not cached; the next request
//	retries.
//
// Thread Safety: Safe for concurrent use.
type PlanCache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	lru     *list.List
	flight  singleflight.Group
	options Options

	hits      int64
	misses    int64
	evictions int64
	builds    int64
	errors    int64
}

// New creates a PlanCache.
func New(opts ...Option) *PlanCache {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &PlanCache{
		entries: make(map[Key]*entry),
		lru:     list.New(),
		options: options,
	}
}

// Get returns the cached plan for key.
func (c *PlanCache) Get(key Key) (*fabricate.Plan, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && c.expired(e) {
		c.removeLocked(e)
		c.countEviction("expired")
		ok = false
	}
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		cacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	c.lru.MoveToFront(e.elem)
	atomic.AddInt64(&c.hits, 1)
	cacheLookups.WithLabelValues("hit").Inc()
	return e.plan, true
}

// GetOrFabricate returns the cached plan for key, calling build on a miss.
//
// Outputs:
//
//	*fabricate.Plan - The plan.
//	bool - True if the plan came from the cache.
//	error - The build error, unwrapped, or ctx's error if ctx is done
//	        before the build finishes.
//
// Concurrent callers for the same key share one build. The build runs
// without ctx's cancellation, so one caller giving up does not fail the
// others; it still carries ctx's values.
func (c *PlanCache) GetOrFabricate(ctx context.Context, key Key, build BuildFunc) (*fabricate.Plan, bool, error) {
	if plan, ok := c.Get(key); ok {
		return plan, true, nil
	}

	buildCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(key.String(), func() (interface{}, error) {
		start := time.Now()
		plan, err := build(buildCtx)
		cacheBuildDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			atomic.AddInt64(&c.errors, 1)
			return nil, err
		}
		atomic.AddInt64(&c.builds, 1)
		c.put(key, plan)
		return plan, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*fabricate.Plan), false, nil
	}
}

// Invalidate drops every cached revision of name and returns how many
// entries were removed.
func (c *PlanCache) Invalidate(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if key.Name == name {
			c.removeLocked(e)
			c.countEviction("invalidated")
			removed++
		}
	}
	return removed
}

// Clear drops every entry.
func (c *PlanCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		c.removeLocked(e)
		c.countEviction("invalidated")
	}
}

// Len returns the number of cached plans.
func (c *PlanCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *PlanCache) Stats() Stats {
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()

	return Stats{
		Entries:    n,
		MaxEntries: c.options.MaxEntries,
		Hits:       atomic.LoadInt64(&c.hits),
		Misses:     atomic.LoadInt64(&c.misses),
		Evictions:  atomic.LoadInt64(&c.evictions),
		Builds:     atomic.LoadInt64(&c.builds),
		Errors:     atomic.LoadInt64(&c.errors),
	}
}

func (c *PlanCache) put(key Key, plan *fabricate.Plan) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		existing.plan = plan
		existing.builtAt = time.Now()
		c.lru.MoveToFront(existing.elem)
		return
	}

	for len(c.entries) >= c.options.MaxEntries {
		back := c.lru.Back()
		if back == nil {
			break
		}
		c.removeLocked(back.Value.(*entry))
		c.countEviction("capacity")
	}

	e := &entry{key: key, plan: plan, builtAt: time.Now()}
	e.elem = c.lru.PushFront(e)
	c.entries[key] = e
	cacheEntries.Set(float64(len(c.entries)))
}

func (c *PlanCache) expired(e *entry) bool {
	return c.options.MaxAge > 0 && time.Since(e.builtAt) > c.options.MaxAge
}

func (c *PlanCache) removeLocked(e *entry) {
	c.lru.Remove(e.elem)
	delete(c.entries, e.key)
	cacheEntries.Set(float64(len(c.entries)))
}

func (c *PlanCache) countEviction(reason string) {
	atomic.AddInt64(&c.evictions, 1)
	cacheEvictions.WithLabelValues(reason).Inc()
}
