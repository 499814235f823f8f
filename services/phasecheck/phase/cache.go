// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package phase

import (
	"context"
	"fmt"
	"sync"

	"github.com/AleutianAI/obcheck/services/phasecheck/diag"
	"github.com/AleutianAI/obcheck/services/phasecheck/model"
)

// Default configuration values.
const (
	// DefaultPhaseCapacity is the initial map size of a phase cache.
	DefaultPhaseCapacity = 8192

	// DefaultAssemblyCapacity is the initial map size of an assembly cache.
	DefaultAssemblyCapacity = 2048
)

// Options configures caches and resolvers.
type Options struct {
	// Capacity is the initial map size. Zero uses the cache's default.
	Capacity int

	// Sink receives diagnostic events. Nil means diag.Noop.
	Sink diag.Sink
}

// Option is a functional option for caches and resolvers.
type Option func(*Options)

// WithCapacity sets the initial map size of a cache.
func WithCapacity(n int) Option {
	return func(o *Options) {
		o.Capacity = n
	}
}

// WithSink sets the diagnostic sink.
func WithSink(s diag.Sink) Option {
	return func(o *Options) {
		o.Sink = s
	}
}

func applyOptions(defaultCapacity int, opts []Option) Options {
	o := Options{Capacity: defaultCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Capacity <= 0 {
		o.Capacity = defaultCapacity
	}
	o.Sink = diag.OrNoop(o.Sink)
	return o
}

// Cache memoizes the phase of each object by identity.
//
// Description:
//
//	Get looks the identity up under a read lock. On a miss the lock is
//	released, the model is queried, and the write lock is taken only to
//	store the result. If another caller stored a value for the same
//	identity in the meantime, the fresh value is discarded and the stored
//	one is returned, so every caller observes a single canonical Record
//	per identity for the lifetime of the session.
//
// Thread Safety: All methods are safe for concurrent use.
type Cache struct {
	mu       sync.RWMutex
	entries  map[model.Identity]Record
	capacity int
	sink     diag.Sink
}

// NewCache creates an empty phase cache.
func NewCache(opts ...Option) *Cache {
	o := applyOptions(DefaultPhaseCapacity, opts)
	return &Cache{
		entries:  make(map[model.Identity]Record, o.Capacity),
		capacity: o.Capacity,
		sink:     o.Sink,
	}
}

// Get returns the phase of obj, querying the model at most once per
// identity except for lost insert races.
//
// Description:
//
//	Unidentifiable objects (nil, no GUID) are not cached and yield the
//	zero Record without querying the model.
//
// Inputs:
//   - ctx: Context passed to the diagnostic sink.
//   - obj: The object. May be nil.
//
// Outputs:
//   - Record: The canonical phase record.
//   - error: Non-nil if the model query failed. Nothing is cached then.
//
// Thread Safety: Safe for concurrent use.
func (c *Cache) Get(ctx context.Context, obj model.Object) (Record, error) {
	id, ok := model.IdentityOf(obj)
	if !ok {
		return Record{}, nil
	}

	c.sink.Inc(ctx, diag.CacheLookups)

	// Fast path
	c.mu.RLock()
	rec, hit := c.entries[id]
	c.mu.RUnlock()
	if hit {
		c.sink.Inc(ctx, diag.CacheHits)
		return rec, nil
	}

	// Miss: query outside the lock
	p, has, err := obj.Phase()
	if err != nil {
		return Record{}, fmt.Errorf("%w: phase of %s: %w", ErrModelQuery, id, err)
	}
	fresh := NewRecord(p, has)

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[id]; ok {
		c.sink.Inc(ctx, diag.CacheRaceLost)
		return existing, nil
	}
	c.entries[id] = fresh
	c.sink.Inc(ctx, diag.CacheMisses)
	c.sink.Inc(ctx, diag.CacheRaceWon)
	return fresh, nil
}

// Peek returns the cached record for id without querying the model.
func (c *Cache) Peek(id model.Identity) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.entries[id]
	return rec, ok
}

// Len returns the number of cached identities.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every cached record.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[model.Identity]Record, c.capacity)
}
