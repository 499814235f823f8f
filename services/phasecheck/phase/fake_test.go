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

import (
	"sync/atomic"

	"github.com/AleutianAI/obcheck/services/phasecheck/model"
	"github.com/google/uuid"
)

// fakeObject is a hand-wired model.Object with query counters.
type fakeObject struct {
	id       uuid.UUID
	kind     model.Kind
	phase    *model.Phase
	children []model.Object
	assembly model.Assembly
	parent   model.Object

	phaseErr    error
	childrenErr error

	// phaseFn overrides phase when set.
	phaseFn func(call int64) (model.Phase, bool)

	phaseCalls    atomic.Int64
	childrenCalls atomic.Int64
	assemblyCalls atomic.Int64
	parentCalls   atomic.Int64
}

func newFake(kind model.Kind, number int, name string) *fakeObject {
	f := &fakeObject{id: uuid.New(), kind: kind}
	if number >= 0 {
		f.phase = &model.Phase{Number: number, Name: name}
	}
	return f
}

func (f *fakeObject) Identity() (uuid.UUID, bool) { return f.id, f.id != uuid.Nil }
func (f *fakeObject) Kind() model.Kind            { return f.kind }
func (f *fakeObject) TypeName() string            { return "Fake" + f.kind.String() }

func (f *fakeObject) Phase() (model.Phase, bool, error) {
	n := f.phaseCalls.Add(1)
	if f.phaseErr != nil {
		return model.Phase{}, false, f.phaseErr
	}
	if f.phaseFn != nil {
		p, ok := f.phaseFn(n)
		return p, ok, nil
	}
	if f.phase == nil {
		return model.Phase{}, false, nil
	}
	return *f.phase, true, nil
}

func (f *fakeObject) Children() ([]model.Object, error) {
	f.childrenCalls.Add(1)
	return f.children, f.childrenErr
}

func (f *fakeObject) Assembly() (model.Assembly, error) {
	f.assemblyCalls.Add(1)
	return f.assembly, nil
}

func (f *fakeObject) ParentComponent() (model.Object, error) {
	f.parentCalls.Add(1)
	if f.parent == nil {
		return nil, nil
	}
	return f.parent, nil
}

func (f *fakeObject) comparisonCalls() int64 {
	return f.childrenCalls.Load() + f.assemblyCalls.Load() + f.parentCalls.Load()
}

// fakeAssembly is a hand-wired model.Assembly.
type fakeAssembly struct {
	id      uuid.UUID
	main    model.Object
	mainErr error
	calls   atomic.Int64

	// block runs inside MainMember before it answers when set.
	block func()
}

func newAssembly(main model.Object) *fakeAssembly {
	return &fakeAssembly{id: uuid.New(), main: main}
}

func (a *fakeAssembly) Identity() (uuid.UUID, bool) { return a.id, a.id != uuid.Nil }

func (a *fakeAssembly) MainMember() (model.Object, error) {
	a.calls.Add(1)
	if a.block != nil {
		a.block()
	}
	if a.mainErr != nil {
		return nil, a.mainErr
	}
	return a.main, nil
}
