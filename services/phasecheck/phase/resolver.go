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
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/obcheck/services/phasecheck/diag"
	"github.com/AleutianAI/obcheck/services/phasecheck/model"
)

// Result is the memoized phase state of one row.
type Result struct {
	// Self is the row object's own phase.
	Self Record

	// Others lists disagreeing phases of related objects, tagged by source.
	// Empty when Self has no phase.
	Others string

	// OthersComputed is true once Others is final for the session.
	OthersComputed bool
}

// RowCache holds the phase state of one classified object.
//
// A row moves from "not computed" to "computed" exactly once; nothing
// invalidates it within a session.
type RowCache struct {
	class Class

	mu      sync.Mutex
	fetched bool
	result  Result
}

// NewRowCache creates an empty row cache for an object of the given class.
func NewRowCache(class Class) *RowCache {
	return &RowCache{class: class}
}

// Class returns the class the row was created for.
func (r *RowCache) Class() Class {
	return r.class
}

// Result returns a copy of the row's current state.
func (r *RowCache) Result() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Fetched reports whether the row's own phase has been fetched.
func (r *RowCache) Fetched() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetched
}

// Resolver computes row-level phase state from the shared caches.
//
// Thread Safety: Safe for concurrent use across rows. Calls for the same
// row are serialized by the row's mutex.
type Resolver struct {
	phases *Cache
	mains  *AssemblyMainCache
	sink   diag.Sink
	timed  bool
}

// NewResolver creates a resolver over the given caches.
func NewResolver(phases *Cache, mains *AssemblyMainCache, opts ...Option) *Resolver {
	o := applyOptions(0, opts)
	_, noop := o.Sink.(diag.Noop)
	return &Resolver{
		phases: phases,
		mains:  mains,
		sink:   o.Sink,
		timed:  !noop,
	}
}

// EnsurePhase populates row with obj's own phase and, when needOthers is
// set, its others label.
//
// Description:
//
//	The own phase is fetched once per row. Rows without a phase never get
//	an others label. When needOthers is false the comparison pass is
//	skipped entirely. Once computed, the label is reused on every later
//	call. Diagnostic events are scoped to the row's class.
//
// Inputs:
//   - ctx: Context passed to the diagnostic sink.
//   - obj: The row's object.
//   - needOthers: Whether the caller needs the others label.
//   - row: The row cache. Must not be nil.
//
// Outputs:
//   - error: Non-nil if a model query failed. The row keeps whatever
//     state was complete before the failure.
//
// Thread Safety: Safe for concurrent use.
func (r *Resolver) EnsurePhase(ctx context.Context, obj model.Object, needOthers bool, row *RowCache) error {
	if row == nil {
		return ErrNilRow
	}
	if r.timed {
		ctx = diag.WithScope(ctx, row.class.String())
	}

	row.mu.Lock()
	defer row.mu.Unlock()

	if !row.fetched {
		self, err := r.phases.Get(ctx, obj)
		if err != nil {
			return err
		}
		row.fetched = true
		row.result.Self = self
	}

	if !row.result.Self.Has {
		return nil
	}

	if !needOthers {
		r.sink.Inc(ctx, diag.BasePhaseRequested)
		return nil
	}

	r.sink.Inc(ctx, diag.OthersRequested)

	if row.result.OthersComputed {
		r.sink.Inc(ctx, diag.OthersServedFromCache)
		return nil
	}

	others, err := r.computeOthers(ctx, obj, row.class, row.result.Self.Number)
	if err != nil {
		return err
	}
	row.result.Others = others
	row.result.OthersComputed = true
	r.sink.Inc(ctx, diag.OthersComputed)
	return nil
}

// SelfPhase returns obj's own phase through the row.
func (r *Resolver) SelfPhase(ctx context.Context, obj model.Object, row *RowCache) (Record, error) {
	if err := r.EnsurePhase(ctx, obj, false, row); err != nil {
		return Record{}, err
	}
	return row.Result().Self, nil
}

// OthersLabel returns obj's others label through the row.
func (r *Resolver) OthersLabel(ctx context.Context, obj model.Object, row *RowCache) (string, error) {
	if err := r.EnsurePhase(ctx, obj, true, row); err != nil {
		return "", err
	}
	return row.Result().Others, nil
}

// computeOthers gathers disagreeing phases from the assembly main member,
// the phase-carrying children, and the parent component, in that order.
func (r *Resolver) computeOthers(ctx context.Context, obj model.Object, class Class, self int) (string, error) {
	var labels labelSet

	if class.comparesAssemblyMain() {
		if err := r.compareAssemblyMain(ctx, obj, self, &labels); err != nil {
			return "", err
		}
	}
	if err := r.compareChildren(ctx, obj, self, &labels); err != nil {
		return "", err
	}
	if err := r.compareParent(ctx, obj, self, &labels); err != nil {
		return "", err
	}
	return labels.String(), nil
}

func (r *Resolver) compareAssemblyMain(ctx context.Context, obj model.Object, self int, labels *labelSet) error {
	start := r.now()
	defer r.observe(ctx, diag.TimerMain, start)

	assembly, err := obj.Assembly()
	if err != nil {
		return r.queryErr("assembly", obj, err)
	}
	mi, err := r.mains.Get(ctx, assembly)
	if err != nil {
		return err
	}
	if !mi.HasMain {
		return nil
	}
	if selfID, ok := model.IdentityOf(obj); ok && selfID == mi.MainID {
		return nil
	}

	r.sink.Inc(ctx, diag.MainChecked)
	if mi.Phase.Disagrees(self) {
		r.sink.Inc(ctx, diag.MainMismatch)
		labels.Add(mi.Phase.Name + TagAssemblyMain)
	}
	return nil
}

func (r *Resolver) compareChildren(ctx context.Context, obj model.Object, self int, labels *labelSet) error {
	r.sink.Inc(ctx, diag.ChildEnumerations)

	start := r.now()
	children, err := obj.Children()
	r.observe(ctx, diag.TimerChildEnum, start)
	if err != nil {
		return r.queryErr("children", obj, err)
	}

	for _, child := range children {
		if child == nil || !child.Kind().CarriesPhase() {
			continue
		}
		r.sink.Inc(ctx, diag.ChildrenVisited)

		start := r.now()
		cp, err := r.phases.Get(ctx, child)
		r.observe(ctx, diag.TimerChildPhase, start)
		if err != nil {
			return err
		}

		if cp.Disagrees(self) {
			r.sink.Inc(ctx, diag.ChildMismatch)
			labels.Add(cp.Name + TagChild)
			if StopAfterFirstChildMismatch {
				break
			}
		}
	}
	return nil
}

func (r *Resolver) compareParent(ctx context.Context, obj model.Object, self int, labels *labelSet) error {
	start := r.now()
	defer r.observe(ctx, diag.TimerParent, start)

	parent, err := obj.ParentComponent()
	if err != nil {
		return r.queryErr("parent component", obj, err)
	}
	if parent == nil {
		return nil
	}

	r.sink.Inc(ctx, diag.ParentChecked)
	pp, err := r.phases.Get(ctx, parent)
	if err != nil {
		return err
	}
	if pp.Disagrees(self) {
		r.sink.Inc(ctx, diag.ParentMismatch)
		labels.Add(pp.Name + TagParent)
	}
	return nil
}

func (r *Resolver) queryErr(what string, obj model.Object, err error) error {
	id, _ := model.IdentityOf(obj)
	return fmt.Errorf("%w: %s of %s: %w", ErrModelQuery, what, id, err)
}

func (r *Resolver) now() time.Time {
	if !r.timed {
		return time.Time{}
	}
	return time.Now()
}

func (r *Resolver) observe(ctx context.Context, t diag.Timer, start time.Time) {
	if !r.timed {
		return
	}
	r.sink.Observe(ctx, t, time.Since(start))
}

// labelSet is an insertion-ordered set of tagged phase names.
type labelSet struct {
	items []string
}

// Add appends s unless an identical entry is already present.
func (l *labelSet) Add(s string) {
	for _, it := range l.items {
		if it == s {
			return
		}
	}
	l.items = append(l.items, s)
}

func (l *labelSet) String() string {
	return strings.Join(l.items, ", ")
}
