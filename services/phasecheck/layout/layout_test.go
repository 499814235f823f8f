// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package layout

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AleutianAI/obcheck/services/phasecheck/phase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumns_PhaseNeeds(t *testing.T) {
	tests := []struct {
		name string
		cols Columns
		want Needs
	}{
		{name: "none", cols: Columns{{Header: "g", Property: PropGUID}}, want: Needs{}},
		{name: "cheap only", cols: Columns{{Header: "n", Property: "phase.name"}, {Header: "#", Property: PropPhaseNumber}}, want: Needs{Name: true, Number: true}},
		{name: "others", cols: Columns{{Header: "o", Property: " Phase.Others "}}, want: Needs{Others: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cols.PhaseNeeds()
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want != Needs{}, got.Any())
		})
	}
}

func TestLayout_Enabled(t *testing.T) {
	l := Layout{
		Parts:     Columns{{Header: "Guid", Property: "guid"}},
		Fasteners: Columns{{Header: "Phase", Property: PropPhaseNumber}},
	}
	assert.True(t, l.Enabled(phase.ClassPart))
	assert.False(t, l.Enabled(phase.ClassFastener))
	assert.False(t, l.Enabled(phase.ClassComponent))
	assert.Nil(t, l.For(phase.NumClasses))
}

func TestDefault(t *testing.T) {
	l := Default()
	require.NoError(t, l.Validate())
	for c := phase.Class(0); c < phase.NumClasses; c++ {
		assert.True(t, l.Enabled(c), c.String())
		assert.Equal(t, Needs{Name: true, Number: true, Others: true}, l.For(c).PhaseNeeds())
	}
	assert.Equal(t, "Guid", l.Parts.Headers()[0])
}

func TestLoad(t *testing.T) {
	doc := `
parts:
  - {header: Guid, property: GUID}
  - {header: Phase, property: phase.number, type: int}
components:
  - {header: Guid, property: GUID}
  - {header: Others, property: PHASE.OTHERS}
`
	l, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Len(t, l.Parts, 2)
	assert.Empty(t, l.Fasteners)
	assert.Equal(t, Needs{Others: true}, l.Components.PhaseNeeds())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "empty", doc: ""},
		{name: "unknown property", doc: "parts:\n  - {header: X, property: WEIGHT}\n"},
		{name: "missing header", doc: "parts:\n  - {property: GUID}\n"},
		{name: "bad type", doc: "parts:\n  - {header: G, property: GUID, type: date}\n"},
		{name: "unknown field", doc: "bolts:\n  - {header: G, property: GUID}\n"},
		{name: "malformed", doc: "parts: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidLayout)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fasteners:\n  - {header: Guid, property: GUID}\n"), 0o600))

	l, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, l.Enabled(phase.ClassFastener))

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestProperty_IsPhase(t *testing.T) {
	assert.True(t, Property("phase.name").IsPhase())
	assert.False(t, PropGUID.IsPhase())
}
