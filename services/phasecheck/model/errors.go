// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model defines the object capability contract consumed by the
// phase checker, and the Identity value used to key every cache.
//
// # Ownership Model
//
// Objects belong to the model-access layer (the CAD API or a snapshot).
// The checker holds references to them for the duration of one fetch
// session and never mutates them.
//
// # Identity
//
// Objects that cannot produce a non-nil GUID are unidentifiable. They are
// silently excluded from traversal and caches. Once an Identity value
// exists it is always valid.
package model

import "errors"

// Sentinel errors for model operations.
var (
	// ErrInvalidIdentity is returned when a GUID string cannot be used as an identity.
	ErrInvalidIdentity = errors.New("invalid identity")
)
