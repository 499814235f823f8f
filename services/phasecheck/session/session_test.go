// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/AleutianAI/obcheck/services/phasecheck/diag"
	"github.com/AleutianAI/obcheck/services/phasecheck/layout"
	"github.com/AleutianAI/obcheck/services/phasecheck/model"
	"github.com/AleutianAI/obcheck/services/phasecheck/phase"
	"github.com/AleutianAI/obcheck/services/phasecheck/snapshot"
	"github.com/AleutianAI/obcheck/services/phasecheck/traverse"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frameDoc: part "a" (phase 2) sits in assembly "asm" whose main member
// "m" has phase 1, carries weld "w" with phase 3, and belongs to "frame"
// (phase 2).
const frameDoc = `
roots: [frame]
objects:
  - ref: frame
    guid: 10000000-0000-4000-8000-000000000001
    kind: component
    type: EndPlate
    name: Frame
    phase: {number: 2, name: P2}
    children: [a, m, bolts, cut]
  - ref: a
    guid: 10000000-0000-4000-8000-000000000002
    kind: part
    name: Beam
    phase: {number: 2, name: P2}
    children: [w]
    assembly: asm
    parent: frame
  - ref: m
    guid: 10000000-0000-4000-8000-000000000003
    kind: part
    name: Column
    phase: {number: 1, name: P1}
    assembly: asm
  - ref: w
    guid: 10000000-0000-4000-8000-000000000004
    kind: weld
    phase: {number: 3, name: P3}
  - ref: bolts
    guid: 10000000-0000-4000-8000-000000000005
    kind: fastener
    phase: {number: 2, name: P2}
    parent: frame
  - ref: cut
    guid: 10000000-0000-4000-8000-000000000006
    kind: boolean
    type: CutPlane
  - ref: loose
    guid: 10000000-0000-4000-8000-000000000007
    kind: part
    phase: {number: 0, name: Unassigned}
    parent: frame
assemblies:
  - ref: asm
    guid: 20000000-0000-4000-8000-000000000001
    main: m
`

func buildModel(t *testing.T, doc string) *snapshot.Model {
	t.Helper()
	d, err := snapshot.Load(strings.NewReader(doc))
	require.NoError(t, err)
	m, err := snapshot.Build(d)
	require.NoError(t, err)
	return m
}

func object(t *testing.T, m *snapshot.Model, ref string) *snapshot.Object {
	t.Helper()
	o, ok := m.Object(ref)
	require.True(t, ok, ref)
	return o
}

func TestSession_Traverse(t *testing.T) {
	m := buildModel(t, frameDoc)
	s := New()

	set, err := s.Traverse(context.Background(), m.Roots(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, set.Parts.Len())
	assert.Equal(t, 1, set.Fasteners.Len())
	assert.Equal(t, 1, set.Components.Len())
	assert.Equal(t, []string{"CutPlane"}, set.Others())

	snap := s.Tracker().Snapshot()
	assert.Equal(t, int64(1), snap.FetchDone)
	assert.Equal(t, int64(2), snap.PartsTotal)
	assert.Equal(t, int64(1), snap.Others)
}

func TestSession_MixedSourcesLabel(t *testing.T) {
	m := buildModel(t, frameDoc)
	s := New()
	ctx := context.Background()
	_, err := s.Traverse(ctx, m.Roots(), nil)
	require.NoError(t, err)

	label, err := s.GetOthersLabel(ctx, object(t, m, "a"))
	require.NoError(t, err)
	assert.Equal(t, "P1*, P3~", label)

	label, err = s.GetOthersLabel(ctx, object(t, m, "m"))
	require.NoError(t, err)
	assert.Equal(t, "", label, "the main member is not compared with itself")

	label, err = s.GetOthersLabel(ctx, object(t, m, "bolts"))
	require.NoError(t, err)
	assert.Equal(t, "", label)
}

func TestSession_GetOthersLabelIdempotent(t *testing.T) {
	m := buildModel(t, frameDoc)
	s := New()
	ctx := context.Background()
	_, err := s.Traverse(ctx, m.Roots(), nil)
	require.NoError(t, err)

	a := object(t, m, "a")
	m.ResetStats()

	first, err := s.GetOthersLabel(ctx, a)
	require.NoError(t, err)
	afterFirst := m.Stats()

	second, err := s.GetOthersLabel(ctx, a)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, afterFirst, m.Stats(), "second call must not query the model")
	assert.Equal(t, int64(1), afterFirst.Children)
}

func TestSession_NoPhaseNoComparison(t *testing.T) {
	m := buildModel(t, frameDoc)
	s := New()
	ctx := context.Background()

	loose := object(t, m, "loose")
	rec, err := s.GetSelfPhase(ctx, loose)
	require.NoError(t, err)
	assert.False(t, rec.Has)

	label, err := s.GetOthersLabel(ctx, loose)
	require.NoError(t, err)
	assert.Equal(t, "", label)

	st := m.Stats()
	assert.Zero(t, st.Children)
	assert.Zero(t, st.Assembly)
	assert.Zero(t, st.Parent)
	assert.Equal(t, int64(1), st.Phase)
}

func TestSession_UnclassifiedObjectsHaveStableRows(t *testing.T) {
	m := buildModel(t, frameDoc)
	s := New()
	ctx := context.Background()

	// No traversal: "a" is looked up directly.
	a := object(t, m, "a")
	label, err := s.GetOthersLabel(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "P1*, P3~", label)

	before := m.Stats()
	_, err = s.GetOthersLabel(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, before, m.Stats())
}

func TestSession_ConcurrentLabels(t *testing.T) {
	m := buildModel(t, frameDoc)
	counters := diag.NewCounters()
	s := New(WithSink(counters))
	ctx := context.Background()
	_, err := s.Traverse(ctx, m.Roots(), nil)
	require.NoError(t, err)

	a := object(t, m, "a")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			label, err := s.GetOthersLabel(ctx, a)
			assert.NoError(t, err)
			assert.Equal(t, "P1*, P3~", label)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), counters.Get(diag.OthersComputed))
	assert.Equal(t, int64(49), counters.Get(diag.OthersServedFromCache))
}

func TestSession_Process(t *testing.T) {
	m := buildModel(t, frameDoc)
	s := New()
	ctx := context.Background()
	set, err := s.Traverse(ctx, m.Roots(), nil)
	require.NoError(t, err)

	report, err := s.Process(ctx, set, layout.Default())
	require.NoError(t, err)

	require.NotNil(t, report.Parts)
	require.NotNil(t, report.Fasteners)
	require.NotNil(t, report.Components)
	assert.Equal(t, []string{"CutPlane"}, report.Others)

	assert.Equal(t, []string{"Guid", "Type", "Name", "Phase", "Phase Name", "Other Phases"}, report.Parts.Headers)
	require.Len(t, report.Parts.Rows, 2)
	assert.Equal(t,
		[]any{"10000000-0000-4000-8000-000000000002", "Part", "Beam", 2, "P2", "P1*, P3~"},
		report.Parts.Rows[0])
	assert.Equal(t,
		[]any{"10000000-0000-4000-8000-000000000003", "Part", "Column", 1, "P1", ""},
		report.Parts.Rows[1])

	require.Len(t, report.Components.Rows, 1)
	assert.Equal(t, "EndPlate", report.Components.Rows[0][1])

	assert.Equal(t, int64(2), report.Progress.PartsDone)
	assert.Equal(t, int64(1), report.Progress.FastenersDone)
	assert.Equal(t, int64(1), report.Progress.ComponentsDone)
	assert.Same(t, report.Parts, report.Table(phase.ClassPart))
}

func TestSession_ProcessHonorsLayout(t *testing.T) {
	m := buildModel(t, frameDoc)
	s := New()
	ctx := context.Background()
	set, err := s.Traverse(ctx, m.Roots(), nil)
	require.NoError(t, err)
	m.ResetStats()

	l := layout.Layout{
		Parts: layout.Columns{
			{Header: "Guid", Property: layout.PropGUID},
			{Header: "Phase", Property: layout.PropPhaseNumber},
		},
		// No GUID column: not processed.
		Fasteners: layout.Columns{{Header: "Phase", Property: layout.PropPhaseNumber}},
	}

	report, err := s.Process(ctx, set, l)
	require.NoError(t, err)
	assert.NotNil(t, report.Parts)
	assert.Nil(t, report.Fasteners)
	assert.Nil(t, report.Components)

	// Only cheap columns: no comparison queries at all.
	st := m.Stats()
	assert.Zero(t, st.Children)
	assert.Zero(t, st.Assembly)
	assert.Zero(t, st.Parent)
}

func TestSession_NoPhaseCells(t *testing.T) {
	m := buildModel(t, `
roots: [p]
objects:
  - {ref: p, guid: 30000000-0000-4000-8000-000000000001, kind: part, name: Plate}
`)
	s := New()
	ctx := context.Background()
	set, err := s.Traverse(ctx, m.Roots(), nil)
	require.NoError(t, err)

	report, err := s.Process(ctx, set, layout.Default())
	require.NoError(t, err)
	require.Len(t, report.Parts.Rows, 1)
	assert.Equal(t, []any{"30000000-0000-4000-8000-000000000001", "Part", "Plate", nil, "", ""}, report.Parts.Rows[0])
}

// brokenPart reports a phase but cannot enumerate its children.
type brokenPart struct {
	id  uuid.UUID
	err error
}

func (b *brokenPart) Identity() (uuid.UUID, bool)            { return b.id, true }
func (b *brokenPart) Kind() model.Kind                       { return model.KindPart }
func (b *brokenPart) TypeName() string                       { return "BrokenPart" }
func (b *brokenPart) Phase() (model.Phase, bool, error)      { return model.Phase{Number: 1, Name: "P1"}, true, nil }
func (b *brokenPart) Children() ([]model.Object, error)      { return nil, b.err }
func (b *brokenPart) Assembly() (model.Assembly, error)      { return nil, nil }
func (b *brokenPart) ParentComponent() (model.Object, error) { return nil, nil }

func TestSession_ProcessPropagatesModelErrors(t *testing.T) {
	boom := errors.New("model connection lost")
	s := New()
	ctx := context.Background()

	set, err := s.Traverse(ctx, []model.Object{&brokenPart{id: uuid.New(), err: boom}}, nil)
	require.NoError(t, err)

	_, err = s.Process(ctx, set, layout.Default())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, phase.ErrModelQuery)
	assert.Contains(t, err.Error(), "process parts")
}

func TestSession_ProcessCancelled(t *testing.T) {
	m := buildModel(t, frameDoc)
	s := New()
	set, err := s.Traverse(context.Background(), m.Roots(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Process(ctx, set, layout.Default())
	assert.ErrorIs(t, err, context.Canceled)
}

type recordingSink struct {
	traverse.NopProgress
	parts int
}

func (r *recordingSink) IncPart() { r.parts++ }

func TestSession_TraverseForwardsProgress(t *testing.T) {
	m := buildModel(t, frameDoc)
	s := New()
	extra := &recordingSink{}

	_, err := s.Traverse(context.Background(), m.Roots(), extra)
	require.NoError(t, err)
	assert.Equal(t, 2, extra.parts)
	assert.Equal(t, int64(2), s.Tracker().Total(phase.ClassPart))
}

func TestSession_ClearSession(t *testing.T) {
	m := buildModel(t, frameDoc)
	counters := diag.NewCounters()
	s := New(WithSink(diag.Multi{counters, diag.Noop{}}))
	ctx := context.Background()

	set, err := s.Traverse(ctx, m.Roots(), nil)
	require.NoError(t, err)
	_, err = s.Process(ctx, set, layout.Default())
	require.NoError(t, err)
	require.NotZero(t, counters.Get(diag.CacheLookups))

	s.ClearSession()
	assert.Zero(t, s.Set().Count())
	assert.Zero(t, counters.Get(diag.CacheLookups))
	assert.Equal(t, int64(0), s.Tracker().Total(phase.ClassPart))

	// Everything is queried again after a clear.
	m.ResetStats()
	set, err = s.Traverse(ctx, m.Roots(), nil)
	require.NoError(t, err)
	_, err = s.Process(ctx, set, layout.Default())
	require.NoError(t, err)
	assert.NotZero(t, m.Stats().Phase)
	assert.Equal(t, int64(4), counters.Get(diag.OthersComputed))
}
