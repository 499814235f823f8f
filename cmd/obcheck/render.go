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
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AleutianAI/obcheck/pkg/ux"
	"github.com/AleutianAI/obcheck/services/phasecheck/diag"
	"github.com/AleutianAI/obcheck/services/phasecheck/phase"
	"github.com/AleutianAI/obcheck/services/phasecheck/session"
	snapstore "github.com/AleutianAI/obcheck/services/phasecheck/storage/badger"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// renderer formats reports for a terminal (styled) or a pipe (plain).
type renderer struct {
	styled bool
}

// Report renders every processed class table, the unrecognized types, and
// the progress summary.
func (r renderer) Report(rep *session.Report, summary []string) string {
	var b strings.Builder
	for class := phase.Class(0); class < phase.NumClasses; class++ {
		t := rep.Table(class)
		if t == nil {
			continue
		}
		b.WriteString(r.title(fmt.Sprintf("%s (%d)", titleCase(t.Class), len(t.Rows))))
		b.WriteString("\n")
		if len(t.Rows) == 0 {
			b.WriteString(r.muted("  none"))
			b.WriteString("\n\n")
			continue
		}
		b.WriteString(r.table(t.Headers, othersColumn(t.Headers), stringRows(t.Rows)))
		b.WriteString("\n\n")
	}

	if len(rep.Others) > 0 {
		b.WriteString(r.title("Unrecognized types"))
		b.WriteString("\n  ")
		b.WriteString(strings.Join(rep.Others, ", "))
		b.WriteString("\n\n")
	}

	if len(summary) > 0 {
		b.WriteString(r.muted(strings.Join(summary, "  ")))
		b.WriteString("\n")
	}
	b.WriteString(r.muted(fmt.Sprintf("Completed in %d ms", rep.DurationMs)))
	b.WriteString("\n")
	return b.String()
}

// Diagnostics renders the counters as a table with a total column and one
// column per object class that produced events.
func (r renderer) Diagnostics(c *diag.Counters) string {
	scopes := c.Scopes()
	headers := append([]string{"Counter", "Total"}, scopes...)

	rows := make([][]string, 0, diag.NumCounters+1)
	for i := diag.Counter(0); i < diag.NumCounters; i++ {
		row := []string{i.String(), strconv.FormatInt(c.Get(i), 10)}
		for _, scope := range scopes {
			row = append(row, strconv.FormatInt(c.ScopedGet(scope, i), 10))
		}
		rows = append(rows, row)
	}
	hit := []string{"cache_hit_pct", strconv.FormatFloat(c.HitRatio(), 'f', 1, 64)}
	for _, scope := range scopes {
		hit = append(hit, strconv.FormatFloat(c.ScopedHitRatio(scope), 'f', 1, 64))
	}
	rows = append(rows, hit)

	return r.title("Diagnostics") + "\n" + r.table(headers, -1, rows) + "\n"
}

// Snapshots renders stored snapshot summaries.
func (r renderer) Snapshots(infos []snapstore.Info) string {
	if len(infos) == 0 {
		return r.muted("no stored snapshots") + "\n"
	}
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, []string{
			info.Name,
			info.SavedAt.Format("2006-01-02 15:04:05"),
			strconv.Itoa(info.Objects),
			strconv.Itoa(info.Assemblies),
		})
	}
	return r.table([]string{"Name", "Saved", "Objects", "Assemblies"}, -1, rows) + "\n"
}

// table renders rows under headers. Non-empty cells of column highlight
// are drawn in the mismatch style.
func (r renderer) table(headers []string, highlight int, rows [][]string) string {
	t := table.New().Headers(headers...).Rows(rows...)
	if !r.styled {
		return t.Border(lipgloss.HiddenBorder()).
			StyleFunc(func(row, col int) lipgloss.Style { return lipgloss.NewStyle().PaddingRight(1) }).
			Render()
	}

	return t.Border(lipgloss.RoundedBorder()).
		BorderStyle(ux.Styles.Border).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return ux.Styles.Header
			}
			if col == highlight && row >= 0 && row < len(rows) && rows[row][col] != "" {
				return ux.Styles.Mismatch
			}
			return ux.Styles.Cell
		}).
		Render()
}

func (r renderer) title(s string) string { return ux.Apply(ux.Styles.Title, r.styled, s) }
func (r renderer) muted(s string) string { return ux.Apply(ux.Styles.Muted, r.styled, s) }

// othersColumn returns the index of the "Other Phases"-style column: the
// last header mentioning "other", or -1.
func othersColumn(headers []string) int {
	idx := -1
	for i, h := range headers {
		if strings.Contains(strings.ToLower(h), "other") {
			idx = i
		}
	}
	return idx
}

// stringRows formats report cells. Missing values render empty.
func stringRows(rows [][]any) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = formatCell(v)
		}
		out[i] = cells
	}
	return out
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
