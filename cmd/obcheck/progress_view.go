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
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/obcheck/pkg/ux"
	"github.com/AleutianAI/obcheck/services/phasecheck/phase"
	"github.com/AleutianAI/obcheck/services/phasecheck/progress"
	bprogress "github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

const progressRefresh = 100 * time.Millisecond

type progressTickMsg time.Time

// checkDoneMsg tells the view the check finished.
type checkDoneMsg struct{}

// progressView shows fetch and per-class processing bars read from a
// progress.Tracker.
//
// Thread Safety: The tracker is read with atomics; the view itself is
// owned by the bubbletea program.
type progressView struct {
	tracker     *progress.Tracker
	bar         bprogress.Model
	done        bool
	interrupted bool
}

func newProgressView(t *progress.Tracker) progressView {
	return progressView{
		tracker: t,
		bar: bprogress.New(
			bprogress.WithGradient(string(ux.ColorTealDeep), string(ux.ColorTealBright)),
			bprogress.WithWidth(40),
		),
	}
}

func progressTick() tea.Cmd {
	return tea.Tick(progressRefresh, func(t time.Time) tea.Msg { return progressTickMsg(t) })
}

// Init implements tea.Model.
func (m progressView) Init() tea.Cmd {
	return progressTick()
}

// Update implements tea.Model.
func (m progressView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case checkDoneMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.interrupted = true
			return m, tea.Quit
		}
	case progressTickMsg:
		if m.done {
			return m, nil
		}
		return m, progressTick()
	}
	return m, nil
}

// View implements tea.Model.
func (m progressView) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	fetch := m.tracker.Snapshot()
	b.WriteString(m.line("Objects", m.tracker.FetchPercent(), fetch.FetchDone, fetch.FetchTotal))
	if m.tracker.FetchComplete() {
		for class := phase.Class(0); class < phase.NumClasses; class++ {
			b.WriteString(m.line(titleCase(class.String()),
				m.tracker.ClassPercent(class), m.tracker.Done(class), m.tracker.Total(class)))
		}
	}
	b.WriteString(ux.Styles.Muted.Render("q to cancel"))
	b.WriteString("\n")
	return b.String()
}

func (m progressView) line(label string, pct int, done, total int64) string {
	return fmt.Sprintf("%-11s %s %d/%d\n", label, m.bar.ViewAs(float64(pct)/100), done, total)
}
