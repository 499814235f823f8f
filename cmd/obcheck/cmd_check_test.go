// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/obcheck/services/phasecheck/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const beamSnapshot = `
roots: [frame]
objects:
  - ref: frame
    guid: 40000000-0000-4000-8000-000000000001
    kind: component
    name: Frame
    phase: {number: 2, name: P2}
    children: [beam, cut]
  - ref: beam
    guid: 40000000-0000-4000-8000-000000000002
    kind: part
    name: Beam
    phase: {number: 2, name: P2}
    children: [weld]
    parent: frame
  - ref: weld
    guid: 40000000-0000-4000-8000-000000000003
    kind: weld
    phase: {number: WELD_PHASE, name: PWELD_PHASE}
  - ref: cut
    guid: 40000000-0000-4000-8000-000000000004
    type: CutPlane
`

func writeSnapshot(t *testing.T, path string, weldPhase int) {
	t.Helper()
	n := string(rune('0' + weldPhase))
	content := strings.ReplaceAll(beamSnapshot, "WELD_PHASE", n)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncBuffer is a bytes.Buffer safe for one writer and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNewChecker_RejectsBadOptions(t *testing.T) {
	tests := []struct {
		name string
		opts checkOptions
		want error
	}{
		{name: "no source", opts: checkOptions{format: "table"}, want: errNoSource},
		{name: "two sources", opts: checkOptions{snapshotPath: "a.yaml", name: "deck", format: "table"}, want: errTwoSources},
		{name: "watch stored", opts: checkOptions{name: "deck", watch: true, format: "table"}, want: errWatchDB},
		{name: "bad format", opts: checkOptions{snapshotPath: "a.yaml", format: "xml"}, want: errBadFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newChecker(tt.opts, discardLogger(), io.Discard)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestChecker_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deck.yaml")
	writeSnapshot(t, path, 3)

	var out bytes.Buffer
	c, err := newChecker(checkOptions{snapshotPath: path, format: "json", diag: true}, discardLogger(), &out)
	require.NoError(t, err)
	require.NoError(t, c.run(context.Background()))

	var got struct {
		Report struct {
			Parts struct {
				Rows [][]any `json:"rows"`
			} `json:"parts"`
			Others []string `json:"others"`
		} `json:"report"`
		Queries            snapshot.QueryStats         `json:"queries"`
		Diagnostics        map[string]int64            `json:"diagnostics"`
		DiagnosticsByClass map[string]map[string]int64 `json:"diagnostics_by_class"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))

	require.Len(t, got.Report.Parts.Rows, 1)
	assert.Equal(t, "P3~", got.Report.Parts.Rows[0][5])
	assert.Equal(t, []string{"CutPlane"}, got.Report.Others)
	assert.NotZero(t, got.Queries.Phase)
	assert.Equal(t, int64(2), got.Diagnostics["others_computed"])
	assert.Equal(t, int64(1), got.DiagnosticsByClass["parts"]["others_computed"])
	assert.Equal(t, int64(1), got.DiagnosticsByClass["components"]["others_computed"])
	assert.Equal(t, int64(1), got.DiagnosticsByClass["parts"]["child_mismatch"])
}

func TestChecker_PlainTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deck.yaml")
	writeSnapshot(t, path, 3)

	var out bytes.Buffer
	c, err := newChecker(checkOptions{snapshotPath: path, format: "table", diag: true}, discardLogger(), &out)
	require.NoError(t, err)
	assert.False(t, c.styled)
	require.NoError(t, c.run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "Parts (1)")
	assert.Contains(t, text, "Components (1)")
	assert.Contains(t, text, "Fasteners (0)")
	assert.Contains(t, text, "P3~")
	assert.Contains(t, text, "Unrecognized types")
	assert.Contains(t, text, "CutPlane")
	assert.Contains(t, text, "Parts: 1/1")
	assert.Contains(t, text, "others_computed")
}

func TestChecker_CustomLayout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deck.yaml")
	writeSnapshot(t, path, 3)
	layoutPath := filepath.Join(dir, "columns.yaml")
	require.NoError(t, os.WriteFile(layoutPath, []byte(`
parts:
  - {header: Id, property: GUID}
  - {header: Clash, property: PHASE.OTHERS}
`), 0644))

	var out bytes.Buffer
	c, err := newChecker(checkOptions{snapshotPath: path, layoutPath: layoutPath, format: "table"}, discardLogger(), &out)
	require.NoError(t, err)
	require.NoError(t, c.run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "Clash")
	assert.NotContains(t, text, "Components (")
}

func TestChecker_StoredSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deck.yaml")
	writeSnapshot(t, path, 3)
	dbPath := filepath.Join(dir, "db")

	doc, err := snapshot.LoadFile(path)
	require.NoError(t, err)
	store, closeDB, err := openStore(dbPath, discardLogger())
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), "deck", doc))
	closeDB()

	var out bytes.Buffer
	c, err := newChecker(checkOptions{dbPath: dbPath, name: "deck", format: "table"}, discardLogger(), &out)
	require.NoError(t, err)
	require.NoError(t, c.run(context.Background()))
	assert.Contains(t, out.String(), "P3~")
}

func TestChecker_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deck.yaml")
	writeSnapshot(t, path, 3)

	out := &syncBuffer{}
	c, err := newChecker(checkOptions{snapshotPath: path, format: "table", watch: true}, discardLogger(), out)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.run(ctx) }()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "P3~") }, 5*time.Second, 20*time.Millisecond)

	// Give the watcher time to register before changing the file.
	time.Sleep(100 * time.Millisecond)
	writeSnapshot(t, path, 4)

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "P4~") }, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
