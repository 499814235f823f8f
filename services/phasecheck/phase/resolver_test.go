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
	"errors"
	"sync"
	"testing"

	"github.com/AleutianAI/obcheck/services/phasecheck/diag"
	"github.com/AleutianAI/obcheck/services/phasecheck/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(sink diag.Sink) *Resolver {
	phases := NewCache(WithSink(sink))
	return NewResolver(phases, NewAssemblyMainCache(phases, WithSink(sink)), WithSink(sink))
}

func TestResolver_MixedSources(t *testing.T) {
	// A has phase 2, its assembly main has 1, one weld child has 3, and
	// the parent matches A.
	main := newFake(model.KindPart, 1, "Erection")
	weld := newFake(model.KindWeld, 3, "Site")
	parent := newFake(model.KindComponent, 2, "Shop")

	a := newFake(model.KindPart, 2, "Shop")
	a.assembly = newAssembly(main)
	a.children = []model.Object{weld}
	a.parent = parent

	r := newTestResolver(nil)
	row := NewRowCache(ClassPart)

	label, err := r.OthersLabel(context.Background(), a, row)
	require.NoError(t, err)
	assert.Equal(t, "Erection*, Site~", label)

	res := row.Result()
	assert.True(t, res.OthersComputed)
	assert.Equal(t, Record{Has: true, Number: 2, Name: "Shop"}, res.Self)
}

func TestResolver_Isolated(t *testing.T) {
	b := newFake(model.KindPart, 5, "Late")
	b.children = []model.Object{newFake(model.KindPart, 1, "Other part")}

	r := newTestResolver(nil)
	label, err := r.OthersLabel(context.Background(), b, NewRowCache(ClassPart))
	require.NoError(t, err)
	assert.Equal(t, "", label)
}

func TestResolver_NoPhaseSkipsComparison(t *testing.T) {
	counters := diag.NewCounters()
	r := newTestResolver(counters)

	obj := newFake(model.KindPart, -1, "")
	obj.assembly = newAssembly(newFake(model.KindPart, 1, "P1"))
	obj.children = []model.Object{newFake(model.KindWeld, 1, "P1")}
	obj.parent = newFake(model.KindComponent, 1, "P1")

	row := NewRowCache(ClassPart)
	label, err := r.OthersLabel(context.Background(), obj, row)
	require.NoError(t, err)

	assert.Equal(t, "", label)
	assert.Zero(t, obj.comparisonCalls())
	assert.False(t, row.Result().OthersComputed)
	assert.Zero(t, counters.Get(diag.OthersRequested))
}

func TestResolver_ZeroPhaseIsNoPhase(t *testing.T) {
	r := newTestResolver(nil)
	obj := newFake(model.KindPart, 0, "Unphased")
	obj.parent = newFake(model.KindComponent, 4, "P4")

	rec, err := r.SelfPhase(context.Background(), obj, NewRowCache(ClassPart))
	require.NoError(t, err)
	assert.False(t, rec.Has)
	assert.Zero(t, rec.Number)
	assert.Zero(t, obj.parentCalls.Load())
}

func TestResolver_Idempotent(t *testing.T) {
	counters := diag.NewCounters()
	r := newTestResolver(counters)

	obj := newFake(model.KindFastenerGroup, 2, "P2")
	obj.children = []model.Object{newFake(model.KindWeld, 4, "P4")}
	obj.parent = newFake(model.KindComponent, 3, "P3")
	row := NewRowCache(ClassFastener)
	ctx := context.Background()

	first, err := r.OthersLabel(ctx, obj, row)
	require.NoError(t, err)
	second, err := r.OthersLabel(ctx, obj, row)
	require.NoError(t, err)

	assert.Equal(t, "P4~, P3^", first)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), obj.childrenCalls.Load())
	assert.Equal(t, int64(1), obj.parentCalls.Load())
	assert.Equal(t, int64(1), obj.phaseCalls.Load())
	assert.Equal(t, int64(1), counters.Get(diag.OthersComputed))
	assert.Equal(t, int64(1), counters.Get(diag.OthersServedFromCache))
}

func TestResolver_DiagnosticsScopedByClass(t *testing.T) {
	counters := diag.NewCounters()
	r := newTestResolver(counters)
	ctx := context.Background()

	part := newFake(model.KindPart, 2, "P2")
	part.children = []model.Object{newFake(model.KindWeld, 3, "P3")}
	bolt := newFake(model.KindFastenerGroup, 2, "P2")
	bolt.parent = newFake(model.KindComponent, 1, "P1")

	_, err := r.OthersLabel(ctx, part, NewRowCache(ClassPart))
	require.NoError(t, err)
	_, err = r.OthersLabel(ctx, bolt, NewRowCache(ClassFastener))
	require.NoError(t, err)
	require.NoError(t, r.EnsurePhase(ctx, bolt, false, NewRowCache(ClassFastener)))

	assert.Equal(t, []string{"fasteners", "parts"}, counters.Scopes())
	assert.Equal(t, int64(2), counters.Get(diag.OthersComputed))

	assert.Equal(t, int64(1), counters.ScopedGet("parts", diag.OthersComputed))
	assert.Equal(t, int64(1), counters.ScopedGet("parts", diag.ChildMismatch))
	assert.Zero(t, counters.ScopedGet("parts", diag.ParentChecked))

	assert.Equal(t, int64(1), counters.ScopedGet("fasteners", diag.OthersComputed))
	assert.Equal(t, int64(1), counters.ScopedGet("fasteners", diag.ParentMismatch))
	assert.Equal(t, int64(1), counters.ScopedGet("fasteners", diag.BasePhaseRequested))
	// Cache events land in the scope of the row that triggered them.
	assert.Equal(t, counters.Get(diag.CacheLookups),
		counters.ScopedGet("parts", diag.CacheLookups)+counters.ScopedGet("fasteners", diag.CacheLookups))
}

func TestResolver_ConcurrentSameRow(t *testing.T) {
	r := newTestResolver(nil)
	obj := newFake(model.KindComponent, 2, "P2")
	obj.parent = newFake(model.KindComponent, 1, "P1")
	row := NewRowCache(ClassComponent)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			label, err := r.OthersLabel(context.Background(), obj, row)
			assert.NoError(t, err)
			assert.Equal(t, "P1^", label)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), obj.parentCalls.Load())
}

func TestResolver_CheapColumnsSkipComparison(t *testing.T) {
	counters := diag.NewCounters()
	r := newTestResolver(counters)
	obj := newFake(model.KindPart, 2, "P2")
	obj.parent = newFake(model.KindComponent, 1, "P1")
	row := NewRowCache(ClassPart)

	require.NoError(t, r.EnsurePhase(context.Background(), obj, false, row))
	require.NoError(t, r.EnsurePhase(context.Background(), obj, false, row))

	assert.True(t, row.Fetched())
	assert.False(t, row.Result().OthersComputed)
	assert.Zero(t, obj.comparisonCalls())
	assert.Equal(t, int64(1), obj.phaseCalls.Load())
	assert.Equal(t, int64(2), counters.Get(diag.BasePhaseRequested))
}

func TestResolver_ChildFilterAndStop(t *testing.T) {
	plain := newFake(model.KindPart, 9, "P9")
	match := newFake(model.KindBooleanCut, 2, "P2")
	unphased := newFake(model.KindFitting, -1, "")
	first := newFake(model.KindWeld, 3, "P3")
	second := newFake(model.KindFastenerGroup, 4, "P4")

	obj := newFake(model.KindPart, 2, "P2")
	obj.children = []model.Object{nil, plain, match, unphased, first, second}

	r := newTestResolver(nil)
	label, err := r.OthersLabel(context.Background(), obj, NewRowCache(ClassPart))
	require.NoError(t, err)

	assert.Equal(t, "P3~", label)
	assert.Zero(t, plain.phaseCalls.Load(), "non phase-carrying children must not be queried")
	if StopAfterFirstChildMismatch {
		assert.Zero(t, second.phaseCalls.Load())
	}
}

// Fastener and component rows use the same child filter and stop rule as
// parts; only the assembly-main source is limited to parts.
func TestResolver_ChildFilterAllClasses(t *testing.T) {
	for _, class := range []Class{ClassPart, ClassFastener, ClassComponent} {
		t.Run(class.String(), func(t *testing.T) {
			plain := newFake(model.KindPart, 9, "P9")
			first := newFake(model.KindWeld, 3, "P3")
			second := newFake(model.KindFitting, 4, "P4")

			obj := newFake(model.KindFastenerGroup, 2, "P2")
			obj.children = []model.Object{plain, first, second}

			r := newTestResolver(nil)
			label, err := r.OthersLabel(context.Background(), obj, NewRowCache(class))
			require.NoError(t, err)

			assert.Zero(t, plain.phaseCalls.Load())
			if StopAfterFirstChildMismatch {
				assert.Equal(t, "P3~", label)
				assert.Zero(t, second.phaseCalls.Load())
			} else {
				assert.Equal(t, "P3~, P4~", label)
			}
		})
	}
}

func TestLabelSet_Deduplicates(t *testing.T) {
	var l labelSet
	l.Add("P1*")
	l.Add("P2~")
	l.Add("P1*")
	l.Add("P1^")
	assert.Equal(t, "P1*, P2~, P1^", l.String())

	var empty labelSet
	assert.Equal(t, "", empty.String())
}

func TestResolver_SourceOrder(t *testing.T) {
	main := newFake(model.KindPart, 1, "P1")
	parent := newFake(model.KindComponent, 1, "P1")

	obj := newFake(model.KindPart, 2, "P2")
	obj.assembly = newAssembly(main)
	obj.parent = parent

	other := newFake(model.KindPart, 2, "P2")
	other.assembly = obj.assembly
	other.children = []model.Object{newFake(model.KindWeld, 1, "P1")}
	other.parent = newFake(model.KindComponent, 1, "P1")

	r := newTestResolver(nil)
	label, err := r.OthersLabel(context.Background(), obj, NewRowCache(ClassPart))
	require.NoError(t, err)
	assert.Equal(t, "P1*, P1^", label)

	label, err = r.OthersLabel(context.Background(), other, NewRowCache(ClassPart))
	require.NoError(t, err)
	assert.Equal(t, "P1*, P1~, P1^", label)
}

func TestResolver_MainMemberIsSelf(t *testing.T) {
	obj := newFake(model.KindPart, 2, "P2")
	obj.assembly = newAssembly(obj)

	counters := diag.NewCounters()
	r := newTestResolver(counters)
	label, err := r.OthersLabel(context.Background(), obj, NewRowCache(ClassPart))
	require.NoError(t, err)
	assert.Equal(t, "", label)
	assert.Zero(t, counters.Get(diag.MainChecked))
}

func TestResolver_AssemblyOnlyForParts(t *testing.T) {
	main := newFake(model.KindPart, 1, "P1")
	assy := newAssembly(main)

	for _, class := range []Class{ClassFastener, ClassComponent} {
		t.Run(class.String(), func(t *testing.T) {
			obj := newFake(model.KindFastenerGroup, 2, "P2")
			obj.assembly = assy

			r := newTestResolver(nil)
			label, err := r.OthersLabel(context.Background(), obj, NewRowCache(class))
			require.NoError(t, err)
			assert.Equal(t, "", label)
			assert.Zero(t, obj.assemblyCalls.Load())
		})
	}
}

func TestResolver_ErrorLeavesRowRetryable(t *testing.T) {
	boom := errors.New("children unavailable")
	obj := newFake(model.KindPart, 2, "P2")
	obj.childrenErr = boom
	obj.parent = newFake(model.KindComponent, 1, "P1")
	row := NewRowCache(ClassPart)

	r := newTestResolver(nil)
	_, err := r.OthersLabel(context.Background(), obj, row)
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, err, ErrModelQuery)
	assert.True(t, row.Fetched())
	assert.False(t, row.Result().OthersComputed)

	obj.childrenErr = nil
	label, err := r.OthersLabel(context.Background(), obj, row)
	require.NoError(t, err)
	assert.Equal(t, "P1^", label)
}

func TestResolver_NilRow(t *testing.T) {
	r := newTestResolver(nil)
	err := r.EnsurePhase(context.Background(), newFake(model.KindPart, 1, "P1"), true, nil)
	assert.ErrorIs(t, err, ErrNilRow)
}

func TestClass_String(t *testing.T) {
	assert.Equal(t, "parts", ClassPart.String())
	assert.Equal(t, "fasteners", ClassFastener.String())
	assert.Equal(t, "components", ClassComponent.String())
	assert.Equal(t, "unknown", NumClasses.String())
}
