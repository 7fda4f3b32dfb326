// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session holds the state the responder carries between turns: the
// depression streak and the interaction log, scoped to one conversation.
//
// # Description
//
// A Session replaces what would otherwise be process-wide globals. Callers own
// session identity; a Store maps ids to sessions and evicts idle ones. Running
// every caller through a single id reproduces the single shared conversation.
//
// # Thread Safety
//
// Turns on one session are serialized by Session.Turn. Read accessors never wait
// on a turn in progress.
package session

import (
	"sync"
	"time"
)

// SharedID is the session id used when all callers share one conversation.
const SharedID = "shared"

// Pinned reports whether id names a session that lives for the whole process.
// Stores never evict or delete pinned sessions.
func Pinned(id string) bool {
	return id == SharedID
}

// Session is one conversation's state.
type Session struct {
	id        string
	createdAt time.Time

	turnMu sync.Mutex

	streak *StreakTracker
	log    *InteractionLog

	seenMu   sync.RWMutex
	lastSeen time.Time
}

// Options configures a new Session.
type Options struct {
	// EscalationThreshold defaults to DefaultEscalationThreshold.
	EscalationThreshold int
	// MaxLogEntries caps the interaction log; 0 is unbounded.
	MaxLogEntries int
}

// New creates an empty session created at now.
func New(id string, opts Options, now time.Time) *Session {
	return &Session{
		id:        id,
		createdAt: now,
		lastSeen:  now,
		streak:    NewStreakTracker(opts.EscalationThreshold),
		log:       NewInteractionLog(opts.MaxLogEntries),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Streak returns the session's streak tracker.
func (s *Session) Streak() *StreakTracker { return s.streak }

// Log returns the session's interaction log.
func (s *Session) Log() *InteractionLog { return s.log }

// Turn runs fn while holding the session's turn lock, so two turns on the same
// session never interleave their streak update and log append.
func (s *Session) Turn(fn func()) {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	fn()
}

// Touch records activity at now.
func (s *Session) Touch(now time.Time) {
	s.seenMu.Lock()
	if now.After(s.lastSeen) {
		s.lastSeen = now
	}
	s.seenMu.Unlock()
}

func (s *Session) LastSeen() time.Time {
	s.seenMu.RLock()
	defer s.seenMu.RUnlock()
	return s.lastSeen
}

// Summary is a read-only view for operational inspection.
type Summary struct {
	ID        string    `json:"session_id"`
	Streak    int       `json:"streak"`
	LogLength int       `json:"log_length"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
}

func (s *Session) Summary() Summary {
	return Summary{
		ID:        s.id,
		Streak:    s.streak.Count(),
		LogLength: s.log.Len(),
		CreatedAt: s.createdAt,
		LastSeen:  s.LastSeen(),
	}
}
