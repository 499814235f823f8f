// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package phasecheck

import (
	"github.com/AleutianAI/obcheck/services/phasecheck/layout"
	"github.com/AleutianAI/obcheck/services/phasecheck/session"
	"github.com/AleutianAI/obcheck/services/phasecheck/snapshot"
	snapstore "github.com/AleutianAI/obcheck/services/phasecheck/storage/badger"
)

// CheckRequest is the body of POST /v1/phasecheck/check.
//
// Exactly one of Snapshot and Name must be set. Layout defaults to
// layout.Default().
type CheckRequest struct {
	Snapshot    *snapshot.Document `json:"snapshot,omitempty"`
	Name        string             `json:"name,omitempty"`
	Layout      *layout.Layout     `json:"layout,omitempty"`
	Diagnostics bool               `json:"diagnostics,omitempty"`
}

// CheckResponse is the result of one check.
type CheckResponse struct {
	RequestID          string                      `json:"request_id"`
	Report             *session.Report             `json:"report"`
	Queries            snapshot.QueryStats         `json:"queries"`
	Diagnostics        map[string]int64            `json:"diagnostics,omitempty"`
	DiagnosticsByClass map[string]map[string]int64 `json:"diagnostics_by_class,omitempty"`
}

// HealthResponse is the body of GET /v1/phasecheck/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// SnapshotListResponse is the body of GET /v1/phasecheck/snapshots.
type SnapshotListResponse struct {
	Snapshots []snapstore.Info `json:"snapshots"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code.
	Code string `json:"code,omitempty"`
}
