// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AleutianAI/obcheck/services/phasecheck/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
roots: [r1]
objects:
  - ref: r1
    guid: 11111111-1111-4111-8111-111111111111
    kind: component
    type: StiffenerDetail
    name: Stiffener
    phase: {number: 2, name: Phase 2}
    children: [p1, w1, ghost]
  - ref: p1
    guid: 22222222-2222-4222-8222-222222222222
    kind: part
    name: Beam
    phase: {number: 2, name: Phase 2}
    assembly: a1
    parent: r1
  - ref: w1
    guid: 33333333-3333-4333-8333-333333333333
    kind: weld
    phase: {number: 3, name: Phase 3}
  - ref: ghost
    kind: part
assemblies:
  - ref: a1
    guid: 44444444-4444-4444-8444-444444444444
    main: p1
`

func mustBuild(t *testing.T, doc string) *Model {
	t.Helper()
	d, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	m, err := Build(d)
	require.NoError(t, err)
	return m
}

func TestBuild_Links(t *testing.T) {
	m := mustBuild(t, sample)
	assert.Equal(t, 4, m.Len())

	roots := m.Roots()
	require.Len(t, roots, 1)
	root := roots[0]
	assert.Equal(t, model.KindComponent, root.Kind())
	assert.Equal(t, "StiffenerDetail", root.TypeName())
	assert.Equal(t, "Stiffener", root.(model.Named).Name())

	children, err := root.Children()
	require.NoError(t, err)
	require.Len(t, children, 3)

	p1, ok := m.Object("p1")
	require.True(t, ok)
	assert.Equal(t, "Part", p1.TypeName())

	assy, err := p1.Assembly()
	require.NoError(t, err)
	require.NotNil(t, assy)
	main, err := assy.MainMember()
	require.NoError(t, err)
	assert.Same(t, p1, main.(*Object))

	parent, err := p1.ParentComponent()
	require.NoError(t, err)
	assert.Same(t, root.(*Object), parent.(*Object))

	ph, has, err := p1.Phase()
	require.NoError(t, err)
	assert.True(t, has)
	assert.Equal(t, model.Phase{Number: 2, Name: "Phase 2"}, ph)

	assert.Equal(t, QueryStats{Phase: 1, Children: 1, Assembly: 1, Parent: 1, MainQuery: 1}, m.Stats())
	m.ResetStats()
	assert.Equal(t, QueryStats{}, m.Stats())
}

func TestBuild_NilInterfaces(t *testing.T) {
	m := mustBuild(t, sample)
	w1, _ := m.Object("w1")

	assy, err := w1.Assembly()
	require.NoError(t, err)
	assert.True(t, assy == nil, "missing assembly must be an untyped nil")

	parent, err := w1.ParentComponent()
	require.NoError(t, err)
	assert.True(t, parent == nil, "missing parent must be an untyped nil")

	ghost, _ := m.Object("ghost")
	_, ok := model.IdentityOf(ghost)
	assert.False(t, ok)

	_, has, err := ghost.Phase()
	require.NoError(t, err)
	assert.False(t, has)
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{
			name: "unknown child",
			doc:  "roots: [a]\nobjects:\n  - {ref: a, kind: component, children: [b]}\n",
			want: ErrUnknownRef,
		},
		{
			name: "unknown root",
			doc:  "roots: [x]\nobjects:\n  - {ref: a}\n",
			want: ErrUnknownRef,
		},
		{
			name: "unknown assembly",
			doc:  "roots: [a]\nobjects:\n  - {ref: a, assembly: z}\n",
			want: ErrUnknownRef,
		},
		{
			name: "unknown main",
			doc:  "roots: [a]\nobjects:\n  - {ref: a}\nassemblies:\n  - {ref: z, main: q}\n",
			want: ErrUnknownRef,
		},
		{
			name: "unknown parent",
			doc:  "roots: [a]\nobjects:\n  - {ref: a, parent: q}\n",
			want: ErrUnknownRef,
		},
		{
			name: "duplicate ref",
			doc:  "roots: [a]\nobjects:\n  - {ref: a}\n  - {ref: a}\n",
			want: ErrDuplicateRef,
		},
		{
			name: "duplicate guid",
			doc: "roots: [a]\nobjects:\n" +
				"  - {ref: a, guid: 11111111-1111-4111-8111-111111111111}\n" +
				"  - {ref: b, guid: 11111111-1111-4111-8111-111111111111}\n",
			want: ErrDuplicateRef,
		},
		{
			name: "malformed guid",
			doc:  "roots: [a]\nobjects:\n  - {ref: a, guid: not-a-guid}\n",
			want: ErrInvalidGUID,
		},
		{
			name: "nil guid",
			doc:  "roots: [a]\nobjects:\n  - {ref: a, guid: 00000000-0000-0000-0000-000000000000}\n",
			want: ErrInvalidGUID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Load(strings.NewReader(tt.doc))
			require.NoError(t, err)
			_, err = Build(d)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := Build(nil)
	assert.ErrorIs(t, err, ErrInvalidSnapshot)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "empty", doc: ""},
		{name: "no roots", doc: "objects:\n  - {ref: a}\n"},
		{name: "missing ref", doc: "roots: [a]\nobjects:\n  - {kind: part}\n"},
		{name: "bad kind", doc: "roots: [a]\nobjects:\n  - {ref: a, kind: beam}\n"},
		{name: "negative phase", doc: "roots: [a]\nobjects:\n  - {ref: a, phase: {number: -1}}\n"},
		{name: "unknown field", doc: "roots: [a]\nitems: []\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidSnapshot)
		})
	}
}

func TestLoadModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	m, err := LoadModel(path)
	require.NoError(t, err)
	assert.Len(t, m.Roots(), 1)

	_, err = LoadModel(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_JSON(t *testing.T) {
	doc := `{"roots": ["a"], "objects": [{"ref": "a", "kind": "part", "guid": "55555555-5555-4555-8555-555555555555"}]}`
	m := mustBuild(t, doc)
	a, ok := m.Object("a")
	require.True(t, ok)
	_, ok = model.IdentityOf(a)
	assert.True(t, ok)
}
