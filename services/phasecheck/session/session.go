// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session runs one phase check over a structural model.
//
// # Lifecycle
//
//	s := session.New(session.WithSink(counters))
//	set, err := s.Traverse(ctx, roots, nil)   // single-threaded discovery
//	report, err := s.Process(ctx, set, layout) // one worker per class
//	s.ClearSession()                           // before the next fetch
//
// All caches live inside the Session and die with it. Sessions are never
// shared between independent checks.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AleutianAI/obcheck/services/phasecheck/diag"
	"github.com/AleutianAI/obcheck/services/phasecheck/model"
	"github.com/AleutianAI/obcheck/services/phasecheck/phase"
	"github.com/AleutianAI/obcheck/services/phasecheck/progress"
	"github.com/AleutianAI/obcheck/services/phasecheck/traverse"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "obcheck.phasecheck"

// Option configures a Session.
type Option func(*options)

type options struct {
	sink          diag.Sink
	logger        *slog.Logger
	tracker       *progress.Tracker
	phaseCapacity int
	assyCapacity  int
}

// WithSink sets the diagnostic sink. Defaults to diag.Noop.
func WithSink(s diag.Sink) Option {
	return func(o *options) { o.sink = s }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracker shares an existing progress tracker, e.g. with a UI.
func WithTracker(t *progress.Tracker) Option {
	return func(o *options) { o.tracker = t }
}

// WithCacheCapacity presizes the phase and assembly caches.
func WithCacheCapacity(phases, assemblies int) Option {
	return func(o *options) {
		o.phaseCapacity = phases
		o.assyCapacity = assemblies
	}
}

// Session owns every cache of one fetch.
//
// Thread Safety: Traverse and ClearSession must not run concurrently with
// anything else on the Session. Process, GetSelfPhase and GetOthersLabel
// are safe for concurrent use with each other.
type Session struct {
	phases    *phase.Cache
	mains     *phase.AssemblyMainCache
	resolver  *phase.Resolver
	traverser *traverse.Traverser
	tracker   *progress.Tracker
	sink      diag.Sink
	logger    *slog.Logger
	tracer    trace.Tracer

	// adhoc holds rows for objects queried directly but not classified.
	adhocMu sync.Mutex
	adhoc   map[model.Identity]*phase.RowCache
}

// New creates an empty session.
func New(opts ...Option) *Session {
	o := options{
		phaseCapacity: phase.DefaultPhaseCapacity,
		assyCapacity:  phase.DefaultAssemblyCapacity,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.sink = diag.OrNoop(o.sink)
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracker == nil {
		o.tracker = progress.New()
	}

	phases := phase.NewCache(phase.WithCapacity(o.phaseCapacity), phase.WithSink(o.sink))
	mains := phase.NewAssemblyMainCache(phases, phase.WithCapacity(o.assyCapacity), phase.WithSink(o.sink))

	return &Session{
		phases:    phases,
		mains:     mains,
		resolver:  phase.NewResolver(phases, mains, phase.WithSink(o.sink)),
		traverser: traverse.NewTraverser(traverse.WithLogger(o.logger)),
		tracker:   o.tracker,
		sink:      o.sink,
		logger:    o.logger,
		tracer:    otel.Tracer(tracerName),
		adhoc:     make(map[model.Identity]*phase.RowCache),
	}
}

// Tracker returns the session's progress tracker.
func (s *Session) Tracker() *progress.Tracker {
	return s.tracker
}

// Set returns the current classified set.
func (s *Session) Set() *traverse.ClassifiedSet {
	return s.traverser.Set()
}

// Sink returns the diagnostic sink.
func (s *Session) Sink() diag.Sink {
	return s.sink
}

// Traverse discovers and classifies everything reachable from roots.
//
// Description:
//
//	Clears the previous classification (caches are kept until
//	ClearSession), starts the fetch stage on the tracker and walks each
//	root in order. Classification counts go to the tracker and, when
//	non-nil, to sink.
//
// Inputs:
//   - ctx: Context for cancellation and tracing.
//   - roots: Root objects. Nil entries are ignored.
//   - sink: Optional extra progress receiver.
//
// Outputs:
//   - *traverse.ClassifiedSet: The filled set, owned by the session.
//   - error: Non-nil if the model failed to enumerate children or ctx
//     was cancelled.
//
// Thread Safety: NOT safe for concurrent use.
func (s *Session) Traverse(ctx context.Context, roots []model.Object, sink traverse.ProgressSink) (*traverse.ClassifiedSet, error) {
	ctx, span := s.tracer.Start(ctx, "session.Traverse",
		trace.WithAttributes(attribute.Int("roots", len(roots))),
	)
	defer span.End()

	s.traverser.Reset()
	s.tracker.Reset()
	s.tracker.BeginFetch(len(roots))

	progressSink := traverse.ProgressSink(s.tracker)
	if sink != nil {
		progressSink = fanout{s.tracker, sink}
	}

	for i, root := range roots {
		if err := s.traverser.Add(ctx, root, progressSink); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "traverse failed")
			return nil, fmt.Errorf("root %d: %w", i, err)
		}
		s.tracker.IncFetchDone()
	}
	s.tracker.MarkFetchComplete()

	set := s.traverser.Set()
	span.SetAttributes(
		attribute.Int("parts", set.Parts.Len()),
		attribute.Int("fasteners", set.Fasteners.Len()),
		attribute.Int("components", set.Components.Len()),
		attribute.Int("other_types", len(set.Others())),
	)
	s.logger.Debug("traverse complete",
		slog.Int("roots", len(roots)),
		slog.Int("rows", set.Count()),
		slog.Int("visited", s.traverser.Visited()))
	return set, nil
}

// GetSelfPhase returns obj's own phase.
//
// Classified objects use their row; anything else gets a session-scoped
// row of its own.
func (s *Session) GetSelfPhase(ctx context.Context, obj model.Object) (phase.Record, error) {
	return s.resolver.SelfPhase(ctx, obj, s.rowFor(obj))
}

// GetOthersLabel returns obj's others label. Repeated calls within a
// session return the same string without recomputing it.
func (s *Session) GetOthersLabel(ctx context.Context, obj model.Object) (string, error) {
	return s.resolver.OthersLabel(ctx, obj, s.rowFor(obj))
}

// rowFor finds or creates the row cache for obj.
func (s *Session) rowFor(obj model.Object) *phase.RowCache {
	id, ok := model.IdentityOf(obj)
	if !ok {
		return phase.NewRowCache(classOf(obj))
	}
	if row, ok := s.traverser.Set().Lookup(id); ok {
		return row.Cache
	}

	s.adhocMu.Lock()
	defer s.adhocMu.Unlock()
	row, ok := s.adhoc[id]
	if !ok {
		row = phase.NewRowCache(classOf(obj))
		s.adhoc[id] = row
	}
	return row
}

// classOf maps an unclassified object to the class whose comparison rules
// apply. Types outside the three classes compare like components.
func classOf(obj model.Object) phase.Class {
	if obj == nil {
		return phase.ClassComponent
	}
	switch obj.Kind() {
	case model.KindPart:
		return phase.ClassPart
	case model.KindFastenerGroup:
		return phase.ClassFastener
	default:
		return phase.ClassComponent
	}
}

// ClearSession drops every cache, the classified set with its row caches,
// the tracker counts, and any in-process diagnostic counters.
//
// Thread Safety: NOT safe for concurrent use.
func (s *Session) ClearSession() {
	s.phases.Clear()
	s.mains.Clear()
	s.traverser.Reset()
	s.tracker.Reset()

	s.adhocMu.Lock()
	s.adhoc = make(map[model.Identity]*phase.RowCache)
	s.adhocMu.Unlock()

	resetCounters(s.sink)
	s.logger.Debug("session cleared")
}

func resetCounters(sink diag.Sink) {
	switch v := sink.(type) {
	case *diag.Counters:
		v.Reset()
	case diag.Multi:
		for _, inner := range v {
			resetCounters(inner)
		}
	}
}

// fanout forwards progress to several sinks.
type fanout []traverse.ProgressSink

func (f fanout) IncPart() {
	for _, s := range f {
		s.IncPart()
	}
}

func (f fanout) IncFastener() {
	for _, s := range f {
		s.IncFastener()
	}
}

func (f fanout) IncComponent() {
	for _, s := range f {
		s.IncComponent()
	}
}

func (f fanout) IncOther() {
	for _, s := range f {
		s.IncOther()
	}
}
