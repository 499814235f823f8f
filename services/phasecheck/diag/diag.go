// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diag provides optional diagnostic counters for the phase checker.
//
// The checker calls through the Sink interface for every cache lookup and
// comparison step. The default sink is Noop, so the checker pays nothing
// when diagnostics are not needed. Counters keeps in-process totals for
// tuning, and OTelSink forwards everything to OpenTelemetry instruments.
package diag

import (
	"context"
	"time"
)

// Counter identifies a diagnostic counter.
type Counter int

const (
	// CacheLookups counts PhaseCache.Get calls on identifiable objects.
	CacheLookups Counter = iota
	// CacheHits counts PhaseCache fast-path hits.
	CacheHits
	// CacheMisses counts PhaseCache misses that stored a fresh value.
	CacheMisses
	// CacheRaceWon counts misses whose fresh value became canonical.
	CacheRaceWon
	// CacheRaceLost counts misses that found a value inserted concurrently.
	CacheRaceLost

	// AssemblyLookups counts AssemblyMainCache.Get calls.
	AssemblyLookups
	// AssemblyHits counts AssemblyMainCache fast-path hits.
	AssemblyHits
	// AssemblyRaceLost counts AssemblyMainCache insert races lost.
	AssemblyRaceLost

	// BasePhaseRequested counts requests that needed only name/number.
	BasePhaseRequested
	// OthersRequested counts requests for the others label.
	OthersRequested
	// OthersComputed counts others labels actually computed.
	OthersComputed
	// OthersServedFromCache counts others labels reused from the row.
	OthersServedFromCache

	// MainChecked counts assembly-main comparisons.
	MainChecked
	// MainMismatch counts assembly-main comparisons that disagreed.
	MainMismatch
	// ChildEnumerations counts child enumerations.
	ChildEnumerations
	// ChildrenVisited counts phase-carrying children compared.
	ChildrenVisited
	// ChildMismatch counts child comparisons that disagreed.
	ChildMismatch
	// ParentChecked counts parent component comparisons.
	ParentChecked
	// ParentMismatch counts parent comparisons that disagreed.
	ParentMismatch

	// NumCounters is the number of counters (for array sizing).
	NumCounters
)

var counterNames = [NumCounters]string{
	CacheLookups:          "cache_lookups",
	CacheHits:             "cache_hits",
	CacheMisses:           "cache_misses",
	CacheRaceWon:          "cache_race_won",
	CacheRaceLost:         "cache_race_lost",
	AssemblyLookups:       "assembly_lookups",
	AssemblyHits:          "assembly_hits",
	AssemblyRaceLost:      "assembly_race_lost",
	BasePhaseRequested:    "base_phase_requested",
	OthersRequested:       "others_requested",
	OthersComputed:        "others_computed",
	OthersServedFromCache: "others_served_from_cache",
	MainChecked:           "main_checked",
	MainMismatch:          "main_mismatch",
	ChildEnumerations:     "child_enumerations",
	ChildrenVisited:       "children_visited",
	ChildMismatch:         "child_mismatch",
	ParentChecked:         "parent_checked",
	ParentMismatch:        "parent_mismatch",
}

// String returns the metric-style name of the counter.
func (c Counter) String() string {
	if c < 0 || c >= NumCounters {
		return "unknown"
	}
	return counterNames[c]
}

// Timer identifies a timed step of the others-label computation.
type Timer int

const (
	// TimerMain times the assembly-main lookup.
	TimerMain Timer = iota
	// TimerChildEnum times child enumeration.
	TimerChildEnum
	// TimerChildPhase times child phase lookups.
	TimerChildPhase
	// TimerParent times the parent component lookup.
	TimerParent

	// NumTimers is the number of timers (for array sizing).
	NumTimers
)

var timerNames = [NumTimers]string{
	TimerMain:       "main",
	TimerChildEnum:  "child_enum",
	TimerChildPhase: "child_phase",
	TimerParent:     "parent",
}

// String returns the metric-style name of the timer.
func (t Timer) String() string {
	if t < 0 || t >= NumTimers {
		return "unknown"
	}
	return timerNames[t]
}

// Sink receives diagnostic events.
//
// Implementations must be safe for concurrent use: the checker calls the
// sink from every worker goroutine.
type Sink interface {
	// Inc adds one to a counter.
	Inc(ctx context.Context, c Counter)

	// Observe records the duration of a timed step.
	Observe(ctx context.Context, t Timer, d time.Duration)
}

type scopeKey struct{}

// WithScope tags ctx with a scope, usually the class of the row being
// evaluated ("parts", "fasteners", "components"). Sinks that support it
// split their events by scope in addition to the totals.
func WithScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom returns the scope set by WithScope.
func ScopeFrom(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	scope, ok := ctx.Value(scopeKey{}).(string)
	return scope, ok && scope != ""
}

// Noop discards every event.
type Noop struct{}

// Inc does nothing.
func (Noop) Inc(context.Context, Counter) {}

// Observe does nothing.
func (Noop) Observe(context.Context, Timer, time.Duration) {}

// OrNoop returns s, or Noop when s is nil.
func OrNoop(s Sink) Sink {
	if s == nil {
		return Noop{}
	}
	return s
}

// Multi fans events out to several sinks.
type Multi []Sink

// Inc forwards to every sink.
func (m Multi) Inc(ctx context.Context, c Counter) {
	for _, s := range m {
		s.Inc(ctx, c)
	}
}

// Observe forwards to every sink.
func (m Multi) Observe(ctx context.Context, t Timer, d time.Duration) {
	for _, s := range m {
		s.Observe(ctx, t, d)
	}
}
