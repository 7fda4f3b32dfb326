// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"sort"
	"sync"
	"time"
)

// =============================================================================
// Store
// =============================================================================

// Store maps session ids to sessions.
//
// # Description
//
// Implementations must be safe for concurrent use. A session returned by the
// store stays usable after it is evicted or deleted; it is simply no longer
// reachable by id.
type Store interface {
	// GetOrCreate returns the session for id, creating it when absent. created
	// reports whether a new session was made.
	GetOrCreate(id string) (sess *Session, created bool)

	// Get returns the session for id without creating one.
	Get(id string) (*Session, bool)

	// Delete drops the session for id and reports whether it was removed.
	// Pinned sessions are never removed.
	Delete(id string) bool

	// List returns summaries of every live session, ordered by id.
	List() []Summary

	// Len returns the number of live sessions.
	Len() int

	// EvictIdle removes unpinned sessions whose last activity is before cutoff
	// and returns how many were removed.
	EvictIdle(cutoff time.Time) int
}

// MemoryStore is an in-process Store.
//
// # Thread Safety
//
// The session map is guarded by an RWMutex. Lookups of existing sessions take
// only the read lock.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	opts     Options
	now      func() time.Time
}

// NewMemoryStore creates an empty store. Every session it creates uses opts.
//
// # Inputs
//
//   - opts: Per-session options (escalation threshold, log cap).
//   - now: Clock used for created/last-seen times. Nil means time.Now.
//
// # Outputs
//
//   - *MemoryStore: Ready for use.
func NewMemoryStore(opts Options, now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		sessions: make(map[string]*Session),
		opts:     opts,
		now:      now,
	}
}

func (m *MemoryStore) GetOrCreate(id string) (*Session, bool) {
	now := m.now()

	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		sess.Touch(now)
		return sess, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[id]; ok {
		sess.Touch(now)
		return sess, false
	}
	sess = New(id, m.opts, now)
	m.sessions[id] = sess
	return sess, true
}

func (m *MemoryStore) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

func (m *MemoryStore) Delete(id string) bool {
	if Pinned(id) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

func (m *MemoryStore) List() []Summary {
	m.mu.RLock()
	out := make([]Summary, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess.Summary())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemoryStore) EvictIdle(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, sess := range m.sessions {
		if !Pinned(id) && sess.LastSeen().Before(cutoff) {
			delete(m.sessions, id)
			evicted++
		}
	}
	return evicted
}

// Compile-time check.
var _ Store = (*MemoryStore)(nil)
