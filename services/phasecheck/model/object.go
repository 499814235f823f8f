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

import "github.com/google/uuid"

// Kind is the structural capability of a model object.
type Kind int

const (
	// KindOther is any type the checker does not recognize.
	KindOther Kind = iota

	// KindPart is a physical part (beam, plate, column).
	KindPart

	// KindFastenerGroup is a group of fasteners (bolts, screws, anchors).
	KindFastenerGroup

	// KindComponent is a structural container that owns children.
	KindComponent

	// KindWeld is a weld between parts.
	KindWeld

	// KindBooleanCut is a boolean cut applied to a part.
	KindBooleanCut

	// KindFitting is a fitting applied to a part end.
	KindFitting

	// NumKinds is the number of kinds (for array sizing).
	NumKinds
)

var kindNames = [NumKinds]string{
	KindOther:         "other",
	KindPart:          "part",
	KindFastenerGroup: "fastener",
	KindComponent:     "component",
	KindWeld:          "weld",
	KindBooleanCut:    "boolean",
	KindFitting:       "fitting",
}

// String returns the snapshot spelling of the kind.
func (k Kind) String() string {
	if k < 0 || k >= NumKinds {
		return "other"
	}
	return kindNames[k]
}

// ParseKind maps a snapshot spelling back to a Kind.
// Unknown spellings map to KindOther.
func ParseKind(s string) Kind {
	for k, name := range kindNames {
		if name == s {
			return Kind(k)
		}
	}
	return KindOther
}

// CarriesPhase reports whether children of this kind take part in the
// child phase comparison. Other child kinds are skipped without a query.
func (k Kind) CarriesPhase() bool {
	switch k {
	case KindWeld, KindBooleanCut, KindFitting, KindFastenerGroup:
		return true
	default:
		return false
	}
}

// Phase is the raw phase answer of the model-access layer.
type Phase struct {
	Number int
	Name   string
}

// Object is the capability contract the checker consumes for every model
// object. Implementations belong to the model-access layer; the checker
// never mutates them.
//
// Query methods may fail when the underlying model connection fails. Such
// errors are propagated to the caller unchanged.
//
// An absent Assembly, parent, child, or main member must be returned as an
// untyped nil, not as a nil pointer of a concrete type. IdentityOf and
// AssemblyIdentityOf tolerate typed nils, but other code compares with nil.
type Object interface {
	// Identity returns the object's GUID, or false if it has none.
	Identity() (uuid.UUID, bool)

	// Kind returns the structural capability of the object.
	Kind() Kind

	// TypeName returns the concrete type name, used to report
	// unrecognized kinds.
	TypeName() string

	// Phase returns the assigned phase, or false if the object's type
	// does not support phasing or none is assigned.
	Phase() (Phase, bool, error)

	// Children returns the direct children. An empty or nil slice is valid.
	Children() ([]Object, error)

	// Assembly returns the assembly the object belongs to, or an untyped nil.
	Assembly() (Assembly, error)

	// ParentComponent returns the enclosing component, or an untyped nil.
	ParentComponent() (Object, error)
}

// Assembly is an assembly handle.
type Assembly interface {
	// Identity returns the assembly's GUID, or false if it has none.
	Identity() (uuid.UUID, bool)

	// MainMember returns the designated main member, or an untyped nil.
	MainMember() (Object, error)
}

// Named is implemented by objects that expose a display name.
type Named interface {
	Name() string
}
