// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the obcheck CLI.
//
// Every helper takes a styled flag or an io.Writer so output piped to a
// file or another program stays free of escape codes.
package ux

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // Bright teal - highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // Primary teal - headers
	ColorTealDeep    = lipgloss.Color("#16858E") // Deep teal - borders
	ColorSlate       = lipgloss.Color("#2C4A54") // Slate - muted text

	ColorWarning = lipgloss.Color("#F4D03F") // Gold/amber - mismatches
	ColorError   = lipgloss.Color("#E74C3C") // Red - errors
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title    lipgloss.Style
	Header   lipgloss.Style
	Cell     lipgloss.Style
	Mismatch lipgloss.Style
	Muted    lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Border   lipgloss.Style
}{
	Title:    lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Header:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealPrimary).Padding(0, 1),
	Cell:     lipgloss.NewStyle().Padding(0, 1),
	Mismatch: lipgloss.NewStyle().Padding(0, 1).Foreground(ColorWarning),
	Muted:    lipgloss.NewStyle().Foreground(ColorSlate),
	Success:  lipgloss.NewStyle().Foreground(ColorTealBright),
	Warning:  lipgloss.NewStyle().Foreground(ColorWarning),
	Error:    lipgloss.NewStyle().Foreground(ColorError),
	Border:   lipgloss.NewStyle().Foreground(ColorTealDeep),
}

// Icon provides status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
)

// Render returns the icon with its style applied when styled is true.
func (i Icon) Render(styled bool) string {
	if !styled {
		return string(i)
	}
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return string(i)
	}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Apply renders s with style when styled is true and returns s otherwise.
func Apply(style lipgloss.Style, styled bool, s string) string {
	if !styled {
		return s
	}
	return style.Render(s)
}

// Success writes a success line with a checkmark to w.
func Success(w io.Writer, text string) {
	styled := IsTerminal(w)
	fmt.Fprintf(w, "%s %s\n", IconSuccess.Render(styled), Apply(Styles.Success, styled, text))
}

// Warning writes a warning line to w.
func Warning(w io.Writer, text string) {
	styled := IsTerminal(w)
	fmt.Fprintf(w, "%s %s\n", IconWarning.Render(styled), Apply(Styles.Warning, styled, text))
}

// Error writes an error line to w.
func Error(w io.Writer, text string) {
	styled := IsTerminal(w)
	fmt.Fprintf(w, "%s %s\n", IconError.Render(styled), Apply(Styles.Error, styled, text))
}
