// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package traverse

import (
	"github.com/AleutianAI/obcheck/services/phasecheck/model"
	"github.com/AleutianAI/obcheck/services/phasecheck/phase"
)

// Row is one classified object together with its private phase state.
type Row struct {
	ID     model.Identity
	Object model.Object
	Cache  *phase.RowCache
}

// Bucket holds the rows of one class in discovery order.
//
// Thread Safety: Writes happen only during traversal. Once traversal is
// done a bucket may be read from any number of goroutines.
type Bucket struct {
	class phase.Class
	rows  []*Row
	index map[model.Identity]int
}

func newBucket(class phase.Class) *Bucket {
	return &Bucket{class: class, index: make(map[model.Identity]int)}
}

// Class returns the class of every row in the bucket.
func (b *Bucket) Class() phase.Class {
	return b.class
}

// Len returns the number of rows.
func (b *Bucket) Len() int {
	return len(b.rows)
}

// Rows returns the rows in discovery order. The slice must not be modified.
func (b *Bucket) Rows() []*Row {
	return b.rows
}

// Get returns the row for id.
func (b *Bucket) Get(id model.Identity) (*Row, bool) {
	i, ok := b.index[id]
	if !ok {
		return nil, false
	}
	return b.rows[i], true
}

func (b *Bucket) add(id model.Identity, obj model.Object) {
	if _, ok := b.index[id]; ok {
		return
	}
	b.index[id] = len(b.rows)
	b.rows = append(b.rows, &Row{ID: id, Object: obj, Cache: phase.NewRowCache(b.class)})
}

func (b *Bucket) reset() {
	b.rows = nil
	b.index = make(map[model.Identity]int)
}

// ClassifiedSet is the output of a traversal: one bucket per class plus the
// type names of everything that was not recognized.
type ClassifiedSet struct {
	Parts      *Bucket
	Fasteners  *Bucket
	Components *Bucket

	others     map[string]struct{}
	otherOrder []string
}

// NewClassifiedSet creates an empty set.
func NewClassifiedSet() *ClassifiedSet {
	return &ClassifiedSet{
		Parts:      newBucket(phase.ClassPart),
		Fasteners:  newBucket(phase.ClassFastener),
		Components: newBucket(phase.ClassComponent),
		others:     make(map[string]struct{}),
	}
}

// Bucket returns the bucket for class, or nil for an unknown class.
func (s *ClassifiedSet) Bucket(class phase.Class) *Bucket {
	switch class {
	case phase.ClassPart:
		return s.Parts
	case phase.ClassFastener:
		return s.Fasteners
	case phase.ClassComponent:
		return s.Components
	default:
		return nil
	}
}

// Buckets returns all buckets in class order.
func (s *ClassifiedSet) Buckets() []*Bucket {
	return []*Bucket{s.Parts, s.Fasteners, s.Components}
}

// Lookup finds the row for id in whichever bucket holds it.
func (s *ClassifiedSet) Lookup(id model.Identity) (*Row, bool) {
	for _, b := range s.Buckets() {
		if row, ok := b.Get(id); ok {
			return row, true
		}
	}
	return nil, false
}

// Others returns the unrecognized type names in first-seen order.
func (s *ClassifiedSet) Others() []string {
	out := make([]string, len(s.otherOrder))
	copy(out, s.otherOrder)
	return out
}

// Count returns the number of classified rows across all buckets.
func (s *ClassifiedSet) Count() int {
	return s.Parts.Len() + s.Fasteners.Len() + s.Components.Len()
}

func (s *ClassifiedSet) addOther(typeName string) {
	if _, ok := s.others[typeName]; ok {
		return
	}
	s.others[typeName] = struct{}{}
	s.otherOrder = append(s.otherOrder, typeName)
}

func (s *ClassifiedSet) reset() {
	for _, b := range s.Buckets() {
		b.reset()
	}
	s.others = make(map[string]struct{})
	s.otherOrder = nil
}
