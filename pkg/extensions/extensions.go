// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the hooks a deployment can plug into the
// companion without modifying it.
//
// # Extension Categories
//
//   - audit.go: Safety audit events (AuditLogger)
//   - filter.go: Message transformation and PII redaction (MessageFilter)
//
// # Usage
//
// The default build uses no-op implementations:
//
//	opts := extensions.DefaultOptions()
//	responder := companion.NewResponder(engine, clf, companion.Config{}, opts)
//
// A deployment can inject its own:
//
//	opts := extensions.DefaultOptions().
//	    WithAudit(extensions.NewSlogAuditLogger(slog.Default())).
//	    WithFilter(extensions.NewRedactingFilter())
//
// # Thread Safety
//
// All interface implementations must be safe for concurrent use.
package extensions

// ServiceOptions groups all extension points.
//
// Nil fields are replaced with no-op defaults by Normalize.
type ServiceOptions struct {
	// AuditLogger records safety-relevant events such as crisis interceptions.
	// Default: NopAuditLogger
	AuditLogger AuditLogger

	// MessageFilter transforms text on its way to the classifier and on its
	// way back to the user.
	// Default: NopMessageFilter
	MessageFilter MessageFilter
}

// DefaultOptions returns ServiceOptions with every hook set to its no-op.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuditLogger:   &NopAuditLogger{},
		MessageFilter: &NopMessageFilter{},
	}
}

// Normalize fills nil hooks with their no-op implementations.
func (opts ServiceOptions) Normalize() ServiceOptions {
	if opts.AuditLogger == nil {
		opts.AuditLogger = &NopAuditLogger{}
	}
	if opts.MessageFilter == nil {
		opts.MessageFilter = &NopMessageFilter{}
	}
	return opts
}

// WithAudit returns a copy with the audit logger replaced.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}

// WithFilter returns a copy with the message filter replaced.
func (opts ServiceOptions) WithFilter(filter MessageFilter) ServiceOptions {
	opts.MessageFilter = filter
	return opts
}
