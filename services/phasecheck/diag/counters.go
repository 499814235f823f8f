// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diag

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type scopeCounts struct {
	counts [NumCounters]atomic.Int64
	nanos  [NumTimers]atomic.Int64
}

// Counters keeps in-process totals of every counter and timer, plus one
// set per scope for events whose context carries WithScope.
//
// Thread Safety: All methods are safe for concurrent use.
type Counters struct {
	counts [NumCounters]atomic.Int64
	nanos  [NumTimers]atomic.Int64

	mu     sync.RWMutex
	scopes map[string]*scopeCounts
}

// NewCounters creates a zeroed Counters sink.
func NewCounters() *Counters {
	return &Counters{scopes: make(map[string]*scopeCounts)}
}

// scoped returns the per-scope set for ctx, creating it on first use, or
// nil when ctx has no scope.
func (c *Counters) scoped(ctx context.Context) *scopeCounts {
	name, ok := ScopeFrom(ctx)
	if !ok {
		return nil
	}

	c.mu.RLock()
	sc := c.scopes[name]
	c.mu.RUnlock()
	if sc != nil {
		return sc
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scopes == nil {
		c.scopes = make(map[string]*scopeCounts)
	}
	if sc = c.scopes[name]; sc == nil {
		sc = &scopeCounts{}
		c.scopes[name] = sc
	}
	return sc
}

func (c *Counters) lookup(scope string) *scopeCounts {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scopes[scope]
}

// Inc adds one to a counter.
func (c *Counters) Inc(ctx context.Context, counter Counter) {
	if counter < 0 || counter >= NumCounters {
		return
	}
	c.counts[counter].Add(1)
	if sc := c.scoped(ctx); sc != nil {
		sc.counts[counter].Add(1)
	}
}

// Observe accumulates the duration of a timed step.
func (c *Counters) Observe(ctx context.Context, t Timer, d time.Duration) {
	if t < 0 || t >= NumTimers {
		return
	}
	c.nanos[t].Add(int64(d))
	if sc := c.scoped(ctx); sc != nil {
		sc.nanos[t].Add(int64(d))
	}
}

// Get returns the current value of a counter.
func (c *Counters) Get(counter Counter) int64 {
	if counter < 0 || counter >= NumCounters {
		return 0
	}
	return c.counts[counter].Load()
}

// Elapsed returns the accumulated duration of a timer.
func (c *Counters) Elapsed(t Timer) time.Duration {
	if t < 0 || t >= NumTimers {
		return 0
	}
	return time.Duration(c.nanos[t].Load())
}

// Reset zeroes every counter and timer and drops all scopes.
func (c *Counters) Reset() {
	for i := range c.counts {
		c.counts[i].Store(0)
	}
	for i := range c.nanos {
		c.nanos[i].Store(0)
	}
	c.mu.Lock()
	c.scopes = make(map[string]*scopeCounts)
	c.mu.Unlock()
}

// Scopes returns the names of every scope seen since the last Reset, sorted.
func (c *Counters) Scopes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.scopes))
	for name := range c.scopes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ScopedGet returns the value of a counter within one scope.
func (c *Counters) ScopedGet(scope string, counter Counter) int64 {
	if counter < 0 || counter >= NumCounters {
		return 0
	}
	sc := c.lookup(scope)
	if sc == nil {
		return 0
	}
	return sc.counts[counter].Load()
}

// ScopedElapsed returns the accumulated duration of a timer within one scope.
func (c *Counters) ScopedElapsed(scope string, t Timer) time.Duration {
	if t < 0 || t >= NumTimers {
		return 0
	}
	sc := c.lookup(scope)
	if sc == nil {
		return 0
	}
	return time.Duration(sc.nanos[t].Load())
}

// ScopedSnapshot returns a copy of every scope's counters keyed by scope
// and counter name.
func (c *Counters) ScopedSnapshot() map[string]map[string]int64 {
	scopes := c.Scopes()
	out := make(map[string]map[string]int64, len(scopes))
	for _, scope := range scopes {
		m := make(map[string]int64, NumCounters)
		for i := Counter(0); i < NumCounters; i++ {
			m[i.String()] = c.ScopedGet(scope, i)
		}
		out[scope] = m
	}
	return out
}

// Snapshot returns a point-in-time copy keyed by counter name.
func (c *Counters) Snapshot() map[string]int64 {
	out := make(map[string]int64, NumCounters)
	for i := Counter(0); i < NumCounters; i++ {
		out[i.String()] = c.counts[i].Load()
	}
	return out
}

// HitRatio returns the PhaseCache hit percentage (0 when nothing was looked up).
func (c *Counters) HitRatio() float64 {
	lookups := c.Get(CacheLookups)
	if lookups == 0 {
		return 0
	}
	return 100 * float64(c.Get(CacheHits)) / float64(lookups)
}

// ScopedHitRatio is HitRatio within one scope.
func (c *Counters) ScopedHitRatio(scope string) float64 {
	lookups := c.ScopedGet(scope, CacheLookups)
	if lookups == 0 {
		return 0
	}
	return 100 * float64(c.ScopedGet(scope, CacheHits)) / float64(lookups)
}

// LogTo writes a summary of the counters at debug level.
func (c *Counters) LogTo(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("phase cache",
		slog.Int64("lookups", c.Get(CacheLookups)),
		slog.Int64("hits", c.Get(CacheHits)),
		slog.Float64("hit_pct", c.HitRatio()),
		slog.Int64("misses", c.Get(CacheMisses)),
		slog.Int64("race_won", c.Get(CacheRaceWon)),
		slog.Int64("race_lost", c.Get(CacheRaceLost)),
	)
	logger.Debug("others label",
		slog.Int64("base_requested", c.Get(BasePhaseRequested)),
		slog.Int64("requested", c.Get(OthersRequested)),
		slog.Int64("computed", c.Get(OthersComputed)),
		slog.Int64("from_cache", c.Get(OthersServedFromCache)),
	)
	logger.Debug("others work",
		slog.Int64("main_checked", c.Get(MainChecked)),
		slog.Int64("main_mismatch", c.Get(MainMismatch)),
		slog.Int64("child_enums", c.Get(ChildEnumerations)),
		slog.Int64("children_visited", c.Get(ChildrenVisited)),
		slog.Int64("child_mismatch", c.Get(ChildMismatch)),
		slog.Int64("parent_checked", c.Get(ParentChecked)),
		slog.Int64("parent_mismatch", c.Get(ParentMismatch)),
		slog.Duration("main_time", c.Elapsed(TimerMain)),
		slog.Duration("child_enum_time", c.Elapsed(TimerChildEnum)),
		slog.Duration("child_phase_time", c.Elapsed(TimerChildPhase)),
		slog.Duration("parent_time", c.Elapsed(TimerParent)),
	)
	for _, scope := range c.Scopes() {
		logger.Debug("others work by class",
			slog.String("class", scope),
			slog.Float64("hit_pct", c.ScopedHitRatio(scope)),
			slog.Int64("computed", c.ScopedGet(scope, OthersComputed)),
			slog.Int64("from_cache", c.ScopedGet(scope, OthersServedFromCache)),
			slog.Int64("main_checked", c.ScopedGet(scope, MainChecked)),
			slog.Int64("child_enums", c.ScopedGet(scope, ChildEnumerations)),
			slog.Int64("children_visited", c.ScopedGet(scope, ChildrenVisited)),
			slog.Int64("parent_checked", c.ScopedGet(scope, ParentChecked)),
			slog.Duration("child_phase_time", c.ScopedElapsed(scope, TimerChildPhase)),
		)
	}
}
