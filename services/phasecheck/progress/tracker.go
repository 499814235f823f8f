// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package progress tracks fetch and processing progress of a check session.
package progress

import (
	"fmt"
	"sync/atomic"

	"github.com/AleutianAI/obcheck/services/phasecheck/phase"
)

// Tracker counts progress across the fetch and processing stages.
//
// Description:
//
//	The fetch stage counts roots visited and classification totals per
//	class. The processing stage counts rows done per class. All counters
//	are atomic so workers and a reporting goroutine can share a Tracker.
//
// Thread Safety: All methods are safe for concurrent use.
type Tracker struct {
	fetchTotal atomic.Int64
	fetchDone  atomic.Int64

	totals [phase.NumClasses]atomic.Int64
	others atomic.Int64
	done   [phase.NumClasses]atomic.Int64
}

// New creates a zeroed tracker.
func New() *Tracker {
	return &Tracker{}
}

// Reset zeroes every counter.
func (t *Tracker) Reset() {
	t.fetchTotal.Store(0)
	t.fetchDone.Store(0)
	t.others.Store(0)
	for i := range t.totals {
		t.totals[i].Store(0)
	}
	t.ResetProcessing()
}

// ResetProcessing zeroes the processing counters and keeps the fetch totals.
func (t *Tracker) ResetProcessing() {
	for i := range t.done {
		t.done[i].Store(0)
	}
}

// BeginFetch starts the fetch stage with total roots.
func (t *Tracker) BeginFetch(total int) {
	t.fetchTotal.Store(int64(total))
	t.fetchDone.Store(0)
}

// IncFetchDone records one finished root.
func (t *Tracker) IncFetchDone() {
	t.fetchDone.Add(1)
}

// MarkFetchComplete sets the done count to the total.
func (t *Tracker) MarkFetchComplete() {
	t.fetchDone.Store(t.fetchTotal.Load())
}

// FetchComplete reports whether every root has been visited.
func (t *Tracker) FetchComplete() bool {
	return t.fetchDone.Load() >= t.fetchTotal.Load()
}

// FetchPercent returns fetch completion in whole percent.
func (t *Tracker) FetchPercent() int {
	return percent(t.fetchDone.Load(), t.fetchTotal.Load())
}

// IncPart implements traverse.ProgressSink.
func (t *Tracker) IncPart() { t.totals[phase.ClassPart].Add(1) }

// IncFastener implements traverse.ProgressSink.
func (t *Tracker) IncFastener() { t.totals[phase.ClassFastener].Add(1) }

// IncComponent implements traverse.ProgressSink.
func (t *Tracker) IncComponent() { t.totals[phase.ClassComponent].Add(1) }

// IncOther implements traverse.ProgressSink.
func (t *Tracker) IncOther() { t.others.Add(1) }

// IncDone records one processed row of class.
func (t *Tracker) IncDone(class phase.Class) {
	if class < 0 || class >= phase.NumClasses {
		return
	}
	t.done[class].Add(1)
}

// Total returns the classification total of class.
func (t *Tracker) Total(class phase.Class) int64 {
	if class < 0 || class >= phase.NumClasses {
		return 0
	}
	return t.totals[class].Load()
}

// Done returns the processed count of class.
func (t *Tracker) Done(class phase.Class) int64 {
	if class < 0 || class >= phase.NumClasses {
		return 0
	}
	return t.done[class].Load()
}

// Others returns the number of unrecognized objects seen during fetch.
func (t *Tracker) Others() int64 {
	return t.others.Load()
}

// ClassPercent returns processing completion of class in whole percent.
func (t *Tracker) ClassPercent(class phase.Class) int {
	return percent(t.Done(class), t.Total(class))
}

// ProcessingPercent returns processing completion over all classes.
func (t *Tracker) ProcessingPercent() int {
	var done, total int64
	for c := phase.Class(0); c < phase.NumClasses; c++ {
		done += t.Done(c)
		total += t.Total(c)
	}
	return percent(done, total)
}

// Snapshot is a point-in-time copy of a Tracker.
type Snapshot struct {
	FetchDone  int64 `json:"fetch_done"`
	FetchTotal int64 `json:"fetch_total"`

	PartsDone       int64 `json:"parts_done"`
	PartsTotal      int64 `json:"parts_total"`
	FastenersDone   int64 `json:"fasteners_done"`
	FastenersTotal  int64 `json:"fasteners_total"`
	ComponentsDone  int64 `json:"components_done"`
	ComponentsTotal int64 `json:"components_total"`
	Others          int64 `json:"others"`
}

// Snapshot copies the counters. Counters are read one at a time, so a
// snapshot taken while workers run may mix moments.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		FetchDone:       t.fetchDone.Load(),
		FetchTotal:      t.fetchTotal.Load(),
		PartsDone:       t.Done(phase.ClassPart),
		PartsTotal:      t.Total(phase.ClassPart),
		FastenersDone:   t.Done(phase.ClassFastener),
		FastenersTotal:  t.Total(phase.ClassFastener),
		ComponentsDone:  t.Done(phase.ClassComponent),
		ComponentsTotal: t.Total(phase.ClassComponent),
		Others:          t.others.Load(),
	}
}

// Summary returns one status line per stage, e.g. "Parts: 3/10".
func (t *Tracker) Summary() []string {
	return []string{
		fmt.Sprintf("Objects: %d/%d", t.fetchDone.Load(), t.fetchTotal.Load()),
		fmt.Sprintf("Parts: %d/%d", t.Done(phase.ClassPart), t.Total(phase.ClassPart)),
		fmt.Sprintf("Fasteners: %d/%d", t.Done(phase.ClassFastener), t.Total(phase.ClassFastener)),
		fmt.Sprintf("Components: %d/%d", t.Done(phase.ClassComponent), t.Total(phase.ClassComponent)),
		fmt.Sprintf("Others: %d", t.others.Load()),
	}
}

func percent(done, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(done * 100 / total)
}
