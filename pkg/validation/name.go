// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for user-provided names.
//
// Snapshot names become database keys, URL path segments, and CLI
// arguments, so they are restricted to a small portable alphabet.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxNameLength is the longest accepted snapshot name.
const MaxNameLength = 128

// namePattern matches valid snapshot names.
// Allows: letters, digits, dots, underscores, hyphens. Must start with a
// letter or digit.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]*$`)

// ValidateSnapshotName validates a snapshot name.
//
// Valid names:
//   - 1-128 characters
//   - Letters A-Z, a-z and digits 0-9
//   - Dots, underscores, and hyphens after the first character
//
// Example:
//
//	if err := validation.ValidateSnapshotName(name); err != nil {
//	    return fmt.Errorf("%w: %w", ErrInvalidName, err)
//	}
func ValidateSnapshotName(name string) error {
	if name == "" {
		return fmt.Errorf("snapshot name cannot be empty")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("snapshot name is %d bytes (max %d)", len(name), MaxNameLength)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid snapshot name %q (letters, digits, '.', '_' or '-', starting with a letter or digit)", name)
	}
	return nil
}

// SanitizeSnapshotName trims surrounding whitespace and validates the result.
func SanitizeSnapshotName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if err := ValidateSnapshotName(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
