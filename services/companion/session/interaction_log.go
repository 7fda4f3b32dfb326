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
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianCare/services/companion/condition"
)

// TimestampLayout is the wire format of Entry.Timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// Entry records one fully classified turn.
type Entry struct {
	Timestamp  time.Time
	Input      string
	Condition  condition.Condition
	Confidence float64
}

type entryJSON struct {
	Timestamp  string              `json:"timestamp"`
	Input      string              `json:"input"`
	Condition  condition.Condition `json:"emotion"`
	Confidence float64             `json:"confidence"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryJSON{
		Timestamp:  e.Timestamp.Format(TimestampLayout),
		Input:      e.Input,
		Condition:  e.Condition,
		Confidence: e.Confidence,
	})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := time.ParseInLocation(TimestampLayout, raw.Timestamp, time.Local)
	if err != nil {
		return err
	}
	*e = Entry{Timestamp: ts, Input: raw.Input, Condition: raw.Condition, Confidence: raw.Confidence}
	return nil
}

// RoundConfidence rounds a classifier score to two decimal places.
func RoundConfidence(score float64) float64 {
	return math.Round(score*100) / 100
}

// InteractionLog is an append-only, arrival-ordered record of classified turns.
//
// When maxEntries is positive the log keeps only the newest maxEntries entries;
// zero means unbounded.
type InteractionLog struct {
	mu         sync.RWMutex
	entries    []Entry
	maxEntries int
}

func NewInteractionLog(maxEntries int) *InteractionLog {
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &InteractionLog{maxEntries: maxEntries}
}

func (l *InteractionLog) Append(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	if l.maxEntries > 0 && len(l.entries) > l.maxEntries {
		drop := len(l.entries) - l.maxEntries
		l.entries = append(l.entries[:0:0], l.entries[drop:]...)
	}
}

// Entries returns a copy of the log, oldest first.
func (l *InteractionLog) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Entry(nil), l.entries...)
}

func (l *InteractionLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
