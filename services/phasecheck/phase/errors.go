// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package phase resolves construction phases and phase-consistency labels.
//
// # Layers
//
// The package is built as three layers, each consulting only the one below:
//
//	┌──────────────────────────────┐
//	│ Resolver (per-row labels)    │
//	└──────┬──────────────┬────────┘
//	       │              ▼
//	       │     ┌──────────────────┐
//	       │     │ AssemblyMainCache│
//	       │     └────────┬─────────┘
//	       ▼              ▼
//	┌──────────────────────────────┐
//	│ Cache (phase per identity)   │
//	└──────────────────────────────┘
//
// AssemblyMainCache never queries phases directly, so a member's phase is
// fetched at most once across both caches.
//
// # Thread Safety
//
// Cache and AssemblyMainCache are safe for concurrent use. Their locks are
// held only around map access, never across a model query, so several
// workers can query the model at the same time. Duplicate queries for the
// same key are allowed; the first stored value wins and is returned to
// every later caller.
//
// RowCache values are owned by one worker but carry their own mutex, so an
// out-of-band caller can query the same row safely.
package phase

import "errors"

// Sentinel errors for phase operations.
var (
	// ErrNilRow is returned when EnsurePhase is called without a row cache.
	ErrNilRow = errors.New("row cache is nil")

	// ErrModelQuery wraps failures reported by the model-access layer.
	ErrModelQuery = errors.New("model query failed")
)
