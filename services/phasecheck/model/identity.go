// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

// Identity is the globally unique identifier of a model object.
//
// Description:
//
//	Identity wraps a non-nil UUID. The zero Identity is never produced by
//	NewIdentity or ParseIdentity, so any Identity obtained from this package
//	is valid and can be used as a map key by caches and classified sets.
//
// Thread Safety: Identity is an immutable value type.
type Identity struct {
	id uuid.UUID
}

// NewIdentity wraps a UUID as an Identity.
//
// Description:
//
//	Constructing an identity from the nil UUID is a programmer error:
//	every cached or classified object is assumed to carry a valid identity,
//	so NewIdentity panics instead of returning an error.
//
// Inputs:
//   - id: The object's GUID. Must not be uuid.Nil.
//
// Outputs:
//   - Identity: The wrapped identity.
func NewIdentity(id uuid.UUID) Identity {
	if id == uuid.Nil {
		panic("model: identity must not be the nil UUID")
	}
	return Identity{id: id}
}

// ParseIdentity parses a GUID string into an Identity.
//
// Returns ErrInvalidIdentity if the string is empty, malformed, or the nil UUID.
func ParseIdentity(s string) (Identity, error) {
	if s == "" {
		return Identity{}, fmt.Errorf("%w: empty", ErrInvalidIdentity)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %q: %v", ErrInvalidIdentity, s, err)
	}
	if id == uuid.Nil {
		return Identity{}, fmt.Errorf("%w: nil uuid", ErrInvalidIdentity)
	}
	return Identity{id: id}, nil
}

// UUID returns the underlying UUID.
func (i Identity) UUID() uuid.UUID {
	return i.id
}

// IsZero reports whether i is the zero Identity (never valid).
func (i Identity) IsZero() bool {
	return i.id == uuid.Nil
}

// String returns the canonical GUID form.
func (i Identity) String() string {
	return i.id.String()
}

// IdentityOf resolves the identity of an object.
//
// Description:
//
//	Returns false for nil objects (including a nil pointer held in the
//	interface) and for objects whose Identity query reports no identity or
//	the nil UUID. Such objects are unidentifiable and
//	must be excluded from traversal and caches.
//
// Inputs:
//   - obj: The object. May be nil.
//
// Outputs:
//   - Identity: The identity, zero when not resolvable.
//   - bool: True if the object is identifiable.
func IdentityOf(obj Object) (Identity, bool) {
	if isNil(obj) {
		return Identity{}, false
	}
	id, ok := obj.Identity()
	if !ok || id == uuid.Nil {
		return Identity{}, false
	}
	return Identity{id: id}, true
}

// AssemblyIdentityOf resolves the identity of an assembly handle. Nil
// handles, typed or not, are unidentifiable.
func AssemblyIdentityOf(a Assembly) (Identity, bool) {
	if isNil(a) {
		return Identity{}, false
	}
	id, ok := a.Identity()
	if !ok || id == uuid.Nil {
		return Identity{}, false
	}
	return Identity{id: id}, true
}

// isNil reports whether v is nil or an interface holding a nil pointer.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
