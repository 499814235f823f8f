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

import "github.com/AleutianAI/obcheck/services/phasecheck/model"

// NoPhase is the reserved phase number meaning "no phase assigned".
const NoPhase = 0

// Record is the cached phase of one object.
//
// Invariant: Has is true if and only if Number >= 1. When Has is false,
// Number is NoPhase and Name is empty.
type Record struct {
	Has    bool
	Number int
	Name   string
}

// NewRecord normalizes a raw phase answer into a Record.
//
// A phase reported with number 0 (or below) is the model's way of saying
// the type does not take part in phasing, so it becomes "no phase".
func NewRecord(p model.Phase, ok bool) Record {
	if !ok || p.Number <= NoPhase {
		return Record{}
	}
	return Record{Has: true, Number: p.Number, Name: p.Name}
}

// Disagrees reports whether r is a valid phase different from number.
func (r Record) Disagrees(number int) bool {
	return r.Has && r.Number > NoPhase && r.Number != number
}

// AssemblyMain is the cached main member of one assembly.
//
// HasMain is false when the assembly has no resolvable main member; MainID
// and Phase are then zero.
type AssemblyMain struct {
	MainID  model.Identity
	HasMain bool
	Phase   Record
}

// Class is the object class a row belongs to.
type Class int

const (
	// ClassPart rows compare against their assembly main member.
	ClassPart Class = iota

	// ClassFastener rows compare against children and parent only.
	ClassFastener

	// ClassComponent rows compare against children and parent only.
	ClassComponent

	// NumClasses is the number of classes (for array sizing).
	NumClasses
)

// String returns the plural name used for tables and progress labels.
func (c Class) String() string {
	switch c {
	case ClassPart:
		return "parts"
	case ClassFastener:
		return "fasteners"
	case ClassComponent:
		return "components"
	default:
		return "unknown"
	}
}

// comparesAssemblyMain reports whether rows of this class take part in the
// assembly-main comparison. Only parts do.
func (c Class) comparesAssemblyMain() bool {
	return c == ClassPart
}

// Label source tags appended to each disagreeing phase name.
const (
	TagAssemblyMain = "*"
	TagChild        = "~"
	TagParent       = "^"
)

// StopAfterFirstChildMismatch ends the child scan at the first disagreeing
// child. The label then lists at most one child phase.
const StopAfterFirstChildMismatch = true
