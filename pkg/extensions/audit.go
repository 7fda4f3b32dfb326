// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Audit event types emitted by the companion.
const (
	EventChatCrisis = "chat.crisis"
	EventEscalation = "chat.escalation"
)

// AuditEvent describes one safety-relevant occurrence.
//
// Metadata must never carry the user's raw message; use the matched phrase or
// other derived values instead.
type AuditEvent struct {
	// EventType is a dotted name such as "chat.crisis".
	EventType string

	Timestamp time.Time

	// SessionID identifies the conversation the event belongs to.
	SessionID string

	// Action is what the system did, e.g. "safety_message".
	Action string

	// Outcome is "intercepted", "escalated", etc.
	Outcome string

	Metadata map[string]any
}

// AuditFilter narrows a Query.
type AuditFilter struct {
	EventTypes []string
	SessionID  string
	StartTime  time.Time
	EndTime    time.Time
	Limit      int
}

// AuditLogger records audit events.
type AuditLogger interface {
	// Log records one event. Failures must not block the caller's reply.
	Log(ctx context.Context, event AuditEvent) error

	// Query returns events matching filter, oldest first.
	Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)

	// Flush writes out any buffered events.
	Flush(ctx context.Context) error
}

// NopAuditLogger discards every event.
type NopAuditLogger struct{}

func (l *NopAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	return nil
}

func (l *NopAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	return []AuditEvent{}, nil
}

func (l *NopAuditLogger) Flush(ctx context.Context) error {
	return nil
}

// =============================================================================
// slog-backed audit logger
// =============================================================================

// SlogAuditLogger writes each event as a structured slog record at Warn level
// and keeps the most recent events in memory for Query.
type SlogAuditLogger struct {
	logger *slog.Logger
	max    int

	mu     sync.Mutex
	events []AuditEvent
}

// NewSlogAuditLogger creates an audit logger on top of logger. A nil logger uses
// slog.Default(). Up to 1000 events are retained for Query.
func NewSlogAuditLogger(logger *slog.Logger) *SlogAuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAuditLogger{logger: logger.With("component", "audit"), max: 1000}
}

func (l *SlogAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []any{
		"event_type", event.EventType,
		"session_id", event.SessionID,
		"action", event.Action,
		"outcome", event.Outcome,
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, slog.Any("meta."+k, v))
	}
	l.logger.WarnContext(ctx, "audit event", attrs...)

	l.mu.Lock()
	l.events = append(l.events, event)
	if len(l.events) > l.max {
		l.events = append(l.events[:0:0], l.events[len(l.events)-l.max:]...)
	}
	l.mu.Unlock()
	return nil
}

func (l *SlogAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]AuditEvent, 0)
	for _, e := range l.events {
		if !filter.matches(e) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (l *SlogAuditLogger) Flush(ctx context.Context) error {
	return nil
}

func (f AuditFilter) matches(e AuditEvent) bool {
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if t == e.EventType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.SessionID != "" && f.SessionID != e.SessionID {
		return false
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && e.Timestamp.After(f.EndTime) {
		return false
	}
	return true
}

var (
	_ AuditLogger = (*NopAuditLogger)(nil)
	_ AuditLogger = (*SlogAuditLogger)(nil)
)
