// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package traverse discovers and classifies the objects reachable from a
// set of roots.
//
// Components are expanded; parts and fastener groups are leaves for the
// purpose of discovery. Anything else is recorded only by its type name.
package traverse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/obcheck/services/phasecheck/model"
)

var (
	// ErrEnumerate indicates the model failed to list a component's children.
	ErrEnumerate = errors.New("child enumeration failed")
)

// cancelCheckInterval is how many pops happen between context checks.
const cancelCheckInterval = 256

// ProgressSink receives one increment per newly classified object.
type ProgressSink interface {
	IncPart()
	IncFastener()
	IncComponent()
	IncOther()
}

// NopProgress discards progress.
type NopProgress struct{}

func (NopProgress) IncPart()      {}
func (NopProgress) IncFastener()  {}
func (NopProgress) IncComponent() {}
func (NopProgress) IncOther()     {}

// Option configures a Traverser.
type Option func(*Traverser)

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l *slog.Logger) Option {
	return func(t *Traverser) {
		if l != nil {
			t.logger = l
		}
	}
}

// Traverser walks object graphs and fills a ClassifiedSet.
//
// The visited history spans every Add call until Reset, so an object
// reachable from several roots is classified once.
//
// Thread Safety: NOT safe for concurrent use. The model must not change
// during a walk.
type Traverser struct {
	set     *ClassifiedSet
	history map[model.Identity]struct{}
	logger  *slog.Logger
}

// NewTraverser creates a traverser with an empty set.
func NewTraverser(opts ...Option) *Traverser {
	t := &Traverser{
		set:     NewClassifiedSet(),
		history: make(map[model.Identity]struct{}),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Set returns the set being filled.
func (t *Traverser) Set() *ClassifiedSet {
	return t.set
}

// Count returns the number of classified rows.
func (t *Traverser) Count() int {
	return t.set.Count()
}

// Visited returns the number of distinct identities seen, including
// unrecognized types.
func (t *Traverser) Visited() int {
	return len(t.history)
}

// Reset empties the set and forgets every visited identity.
func (t *Traverser) Reset() {
	t.set.reset()
	t.history = make(map[model.Identity]struct{})
}

// Add visits root and everything reachable from it.
//
// Description:
//
//	Uses an explicit stack so nesting depth is unbounded. Nil objects,
//	objects without identity, and identities already visited are skipped.
//	Each remaining object is classified as a part, a fastener group or a
//	component; components have their children pushed. Other types only
//	contribute their type name. An identity is marked visited before its
//	children are pushed.
//
// Inputs:
//   - ctx: Checked periodically for cancellation.
//   - root: The starting object. May be nil.
//   - sink: Progress receiver. Nil means no progress reporting.
//
// Outputs:
//   - error: Non-nil if the model failed to enumerate children or ctx was
//     cancelled. Objects classified before the failure stay in the set.
//
// Thread Safety: NOT safe for concurrent use.
func (t *Traverser) Add(ctx context.Context, root model.Object, sink ProgressSink) error {
	if sink == nil {
		sink = NopProgress{}
	}

	stack := []model.Object{root}
	pops := 0

	for len(stack) > 0 {
		pops++
		if pops%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("traverse: %w", err)
			}
		}

		obj := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		id, ok := model.IdentityOf(obj)
		if !ok {
			continue
		}
		if _, seen := t.history[id]; seen {
			continue
		}
		t.history[id] = struct{}{}

		switch obj.Kind() {
		case model.KindPart:
			t.set.Parts.add(id, obj)
			sink.IncPart()
		case model.KindFastenerGroup:
			t.set.Fasteners.add(id, obj)
			sink.IncFastener()
		case model.KindComponent:
			t.set.Components.add(id, obj)
			sink.IncComponent()

			children, err := obj.Children()
			if err != nil {
				return fmt.Errorf("%w: component %s: %w", ErrEnumerate, id, err)
			}
			// Reversed so children pop in enumeration order.
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, children[i])
			}
		default:
			t.set.addOther(obj.TypeName())
			sink.IncOther()
		}
	}
	return nil
}

// AddRange calls Add for each root in order and stops at the first error.
func (t *Traverser) AddRange(ctx context.Context, roots []model.Object, sink ProgressSink) error {
	for i, root := range roots {
		if err := t.Add(ctx, root, sink); err != nil {
			return fmt.Errorf("root %d: %w", i, err)
		}
	}
	t.logger.Debug("traversal complete",
		"roots", len(roots),
		"parts", t.set.Parts.Len(),
		"fasteners", t.set.Fasteners.Len(),
		"components", t.set.Components.Len(),
		"other_types", len(t.set.otherOrder),
	)
	return nil
}
