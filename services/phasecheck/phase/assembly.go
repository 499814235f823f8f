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

// AssemblyMainCache memoizes each assembly's main member and its phase.
//
// The main member's phase always comes from the underlying phase Cache.
//
// Thread Safety: All methods are safe for concurrent use.
type AssemblyMainCache struct {
	phases *Cache

	mu       sync.RWMutex
	entries  map[model.Identity]AssemblyMain
	capacity int
	sink     diag.Sink
}

// NewAssemblyMainCache creates an empty assembly cache layered on phases.
func NewAssemblyMainCache(phases *Cache, opts ...Option) *AssemblyMainCache {
	o := applyOptions(DefaultAssemblyCapacity, opts)
	return &AssemblyMainCache{
		phases:   phases,
		entries:  make(map[model.Identity]AssemblyMain, o.Capacity),
		capacity: o.Capacity,
		sink:     o.Sink,
	}
}

// Get returns the main member record of an assembly.
//
// Description:
//
//	Same discipline as Cache.Get: read-locked lookup, model queries outside
//	the lock, first insert wins. Nil or unidentifiable assemblies yield the
//	zero AssemblyMain and are not cached. An assembly whose main member is
//	missing or unidentifiable is cached with HasMain false.
//
// Inputs:
//   - ctx: Context passed to the diagnostic sink.
//   - assembly: The assembly handle. May be nil.
//
// Outputs:
//   - AssemblyMain: The canonical record.
//   - error: Non-nil if a model query failed. Nothing is cached then.
func (c *AssemblyMainCache) Get(ctx context.Context, assembly model.Assembly) (AssemblyMain, error) {
	id, ok := model.AssemblyIdentityOf(assembly)
	if !ok {
		return AssemblyMain{}, nil
	}

	c.sink.Inc(ctx, diag.AssemblyLookups)

	c.mu.RLock()
	hit, found := c.entries[id]
	c.mu.RUnlock()
	if found {
		c.sink.Inc(ctx, diag.AssemblyHits)
		return hit, nil
	}

	main, err := assembly.MainMember()
	if err != nil {
		return AssemblyMain{}, fmt.Errorf("%w: main member of assembly %s: %w", ErrModelQuery, id, err)
	}

	var fresh AssemblyMain
	if mainID, ok := model.IdentityOf(main); ok {
		rec, err := c.phases.Get(ctx, main)
		if err != nil {
			return AssemblyMain{}, err
		}
		fresh = AssemblyMain{MainID: mainID, HasMain: true, Phase: rec}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[id]; ok {
		c.sink.Inc(ctx, diag.AssemblyRaceLost)
		return existing, nil
	}
	c.entries[id] = fresh
	return fresh, nil
}

// Len returns the number of cached assemblies.
func (c *AssemblyMainCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every cached assembly. The underlying phase cache is not touched.
func (c *AssemblyMainCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[model.Identity]AssemblyMain, c.capacity)
}
