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
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/AleutianAI/obcheck/services/phasecheck/model"
	"github.com/google/uuid"
)

// QueryStats counts model queries answered by a Model.
type QueryStats struct {
	Phase     int64 `json:"phase"`
	Children  int64 `json:"children"`
	Assembly  int64 `json:"assembly"`
	Parent    int64 `json:"parent"`
	MainQuery int64 `json:"main_member"`
}

// Model is an immutable object graph built from a Document.
//
// Thread Safety: Safe for concurrent reads. Query counters are atomic.
type Model struct {
	roots      []model.Object
	objects    map[string]*Object
	assemblies map[string]*Assembly

	phaseQueries    atomic.Int64
	childrenQueries atomic.Int64
	assemblyQueries atomic.Int64
	parentQueries   atomic.Int64
	mainQueries     atomic.Int64
}

// Object is one model object. It implements model.Object and model.Named.
type Object struct {
	m        *Model
	ref      string
	id       uuid.UUID
	kind     model.Kind
	typeName string
	name     string
	phase    *model.Phase
	children []model.Object
	assembly *Assembly
	parent   *Object
}

// Assembly is one model assembly. It implements model.Assembly.
type Assembly struct {
	m    *Model
	ref  string
	id   uuid.UUID
	main *Object
}

// Build resolves every reference in doc and returns the model.
//
// Description:
//
//	Objects and assemblies are created first, then children, assembly,
//	parent and main-member references are linked. Empty guids produce
//	unidentifiable objects. Cycles through children are allowed; the
//	traversal tolerates them.
//
// Inputs:
//   - doc: A document. Field validation is not repeated here.
//
// Outputs:
//   - *Model: The built model.
//   - error: ErrUnknownRef, ErrDuplicateRef or ErrInvalidGUID, wrapped
//     with the offending ref.
func Build(doc *Document) (*Model, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrInvalidSnapshot)
	}

	m := &Model{
		objects:    make(map[string]*Object, len(doc.Objects)),
		assemblies: make(map[string]*Assembly, len(doc.Assemblies)),
	}
	guids := make(map[uuid.UUID]string)

	claim := func(ref, guid string) (uuid.UUID, error) {
		if guid == "" {
			return uuid.Nil, nil
		}
		id, err := model.ParseIdentity(guid)
		if err != nil {
			return uuid.Nil, fmt.Errorf("%w: %s: %q", ErrInvalidGUID, ref, guid)
		}
		if owner, dup := guids[id.UUID()]; dup {
			return uuid.Nil, fmt.Errorf("%w: guid %s used by %s and %s", ErrDuplicateRef, guid, owner, ref)
		}
		guids[id.UUID()] = ref
		return id.UUID(), nil
	}

	for _, od := range doc.Objects {
		if _, dup := m.objects[od.Ref]; dup {
			return nil, fmt.Errorf("%w: object %s", ErrDuplicateRef, od.Ref)
		}
		id, err := claim(od.Ref, od.GUID)
		if err != nil {
			return nil, err
		}
		kind := model.ParseKind(od.Kind)
		obj := &Object{
			m:        m,
			ref:      od.Ref,
			id:       id,
			kind:     kind,
			typeName: od.Type,
			name:     od.Name,
		}
		if obj.typeName == "" {
			obj.typeName = defaultTypeName(kind)
		}
		if od.Phase != nil {
			obj.phase = &model.Phase{Number: od.Phase.Number, Name: od.Phase.Name}
		}
		m.objects[od.Ref] = obj
	}

	for _, ad := range doc.Assemblies {
		if _, dup := m.assemblies[ad.Ref]; dup {
			return nil, fmt.Errorf("%w: assembly %s", ErrDuplicateRef, ad.Ref)
		}
		id, err := claim(ad.Ref, ad.GUID)
		if err != nil {
			return nil, err
		}
		a := &Assembly{m: m, ref: ad.Ref, id: id}
		if ad.Main != "" {
			main, ok := m.objects[ad.Main]
			if !ok {
				return nil, fmt.Errorf("%w: assembly %s main %s", ErrUnknownRef, ad.Ref, ad.Main)
			}
			a.main = main
		}
		m.assemblies[ad.Ref] = a
	}

	for _, od := range doc.Objects {
		obj := m.objects[od.Ref]
		for _, ref := range od.Children {
			child, ok := m.objects[ref]
			if !ok {
				return nil, fmt.Errorf("%w: object %s child %s", ErrUnknownRef, od.Ref, ref)
			}
			obj.children = append(obj.children, child)
		}
		if od.Assembly != "" {
			a, ok := m.assemblies[od.Assembly]
			if !ok {
				return nil, fmt.Errorf("%w: object %s assembly %s", ErrUnknownRef, od.Ref, od.Assembly)
			}
			obj.assembly = a
		}
		if od.Parent != "" {
			p, ok := m.objects[od.Parent]
			if !ok {
				return nil, fmt.Errorf("%w: object %s parent %s", ErrUnknownRef, od.Ref, od.Parent)
			}
			obj.parent = p
		}
	}

	for _, ref := range doc.Roots {
		root, ok := m.objects[ref]
		if !ok {
			return nil, fmt.Errorf("%w: root %s", ErrUnknownRef, ref)
		}
		m.roots = append(m.roots, root)
	}

	return m, nil
}

func defaultTypeName(k model.Kind) string {
	s := k.String()
	return strings.ToUpper(s[:1]) + s[1:]
}

// Roots returns the root objects in document order.
func (m *Model) Roots() []model.Object {
	out := make([]model.Object, len(m.roots))
	copy(out, m.roots)
	return out
}

// Object returns the object with the given ref.
func (m *Model) Object(ref string) (*Object, bool) {
	o, ok := m.objects[ref]
	return o, ok
}

// Len returns the number of objects.
func (m *Model) Len() int {
	return len(m.objects)
}

// Stats returns the query counters.
func (m *Model) Stats() QueryStats {
	return QueryStats{
		Phase:     m.phaseQueries.Load(),
		Children:  m.childrenQueries.Load(),
		Assembly:  m.assemblyQueries.Load(),
		Parent:    m.parentQueries.Load(),
		MainQuery: m.mainQueries.Load(),
	}
}

// ResetStats zeroes the query counters.
func (m *Model) ResetStats() {
	m.phaseQueries.Store(0)
	m.childrenQueries.Store(0)
	m.assemblyQueries.Store(0)
	m.parentQueries.Store(0)
	m.mainQueries.Store(0)
}

// Ref returns the object's document ref.
func (o *Object) Ref() string { return o.ref }

// Identity implements model.Object.
func (o *Object) Identity() (uuid.UUID, bool) {
	return o.id, o.id != uuid.Nil
}

// Kind implements model.Object.
func (o *Object) Kind() model.Kind { return o.kind }

// TypeName implements model.Object.
func (o *Object) TypeName() string { return o.typeName }

// Name implements model.Named.
func (o *Object) Name() string { return o.name }

// Phase implements model.Object.
func (o *Object) Phase() (model.Phase, bool, error) {
	o.m.phaseQueries.Add(1)
	if o.phase == nil {
		return model.Phase{}, false, nil
	}
	return *o.phase, true, nil
}

// Children implements model.Object.
func (o *Object) Children() ([]model.Object, error) {
	o.m.childrenQueries.Add(1)
	return o.children, nil
}

// Assembly implements model.Object.
func (o *Object) Assembly() (model.Assembly, error) {
	o.m.assemblyQueries.Add(1)
	if o.assembly == nil {
		return nil, nil
	}
	return o.assembly, nil
}

// ParentComponent implements model.Object.
func (o *Object) ParentComponent() (model.Object, error) {
	o.m.parentQueries.Add(1)
	if o.parent == nil {
		return nil, nil
	}
	return o.parent, nil
}

// Ref returns the assembly's document ref.
func (a *Assembly) Ref() string { return a.ref }

// Identity implements model.Assembly.
func (a *Assembly) Identity() (uuid.UUID, bool) {
	return a.id, a.id != uuid.Nil
}

// MainMember implements model.Assembly.
func (a *Assembly) MainMember() (model.Object, error) {
	a.m.mainQueries.Add(1)
	if a.main == nil {
		return nil, nil
	}
	return a.main, nil
}
