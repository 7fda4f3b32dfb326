// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation to prevent injection attacks.
//
// Caller-supplied identifiers end up in log records, span attributes and URL
// paths, so control characters and path separators are rejected up front.
package validation

import (
	"fmt"
	"regexp"
)

// MaxSessionIDLength caps a caller-supplied session id.
const MaxSessionIDLength = 128

// sessionIDPattern matches valid session ids.
// Allows: letters, digits, dot, underscore, colon, hyphen (covers UUIDs and
// most client-generated ids). Must start with a letter or digit.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:\-]*$`)

// ValidateSessionID validates a session id supplied by a client.
//
// Valid ids:
//   - 1-128 characters
//   - ASCII letters and digits
//   - Dots, underscores, colons and hyphens after the first character
//
// Returns an error if the id is invalid.
//
// Example:
//
//	if err := validation.ValidateSessionID(req.SessionID); err != nil {
//	    return nil, fmt.Errorf("invalid session: %w", err)
//	}
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session_id cannot be empty")
	}
	if len(id) > MaxSessionIDLength {
		return fmt.Errorf("session_id exceeds %d characters", MaxSessionIDLength)
	}
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("invalid session_id format: %q (letters, digits, '.', '_', ':' or '-')", id)
	}
	return nil
}
