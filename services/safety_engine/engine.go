// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package safety_engine holds the cheap keyword pre-filters that run before any
// emotion classification: crisis detection and greeting detection.
package safety_engine

import (
	"fmt"
	"sync/atomic"

	"github.com/AleutianAI/AleutianCare/services/safety_engine/phrases"
	"gopkg.in/yaml.v3"
)

const (
	// SetCrisis names the keyword set for self-harm language.
	SetCrisis = "crisis"

	// SetGreeting names the keyword set for salutations.
	SetGreeting = "greeting"
)

// requiredSets must be present in every keyword file the engine accepts.
var requiredSets = []string{SetCrisis, SetGreeting}

// SafetyEngine matches messages against the loaded keyword sets.
//
// The loaded sets are immutable once published. Reload builds a complete new
// snapshot and swaps it in atomically, so concurrent callers always see either the
// old or the new vocabulary, never a mix.
type SafetyEngine struct {
	mode     MatchMode
	snapshot atomic.Pointer[keywordSnapshot]
}

type keywordSnapshot struct {
	ordered []KeywordSet
	byName  map[string]*KeywordSet
}

// NewSafetyEngine initializes a SafetyEngine from the embedded keyword sets.
//
// It performs the following operations:
// 1. Unmarshals the embedded YAML data.
// 2. Normalizes phrases and, in word mode, compiles boundary patterns.
// 3. Sorts sets by priority.
//
// Returns an error if the embedded YAML is malformed or is missing a required set.
func NewSafetyEngine(mode MatchMode) (*SafetyEngine, error) {
	return NewSafetyEngineFromYAML(phrases.KeywordSets, mode)
}

// NewSafetyEngineFromYAML is NewSafetyEngine with caller-supplied keyword data.
func NewSafetyEngineFromYAML(data []byte, mode MatchMode) (*SafetyEngine, error) {
	if mode == "" {
		mode = MatchSubstring
	}
	if _, err := ParseMatchMode(string(mode)); err != nil {
		return nil, err
	}
	e := &SafetyEngine{mode: mode}
	if err := e.Reload(data); err != nil {
		return nil, err
	}
	return e, nil
}

// Reload parses data and replaces the active keyword sets. On error the previous
// sets stay active.
func (e *SafetyEngine) Reload(data []byte) error {
	var file KeywordSetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to unmarshal keyword sets: %w", err)
	}
	if err := file.Normalize(); err != nil {
		return fmt.Errorf("invalid keyword sets: %w", err)
	}
	if e.mode == MatchWord {
		if err := file.CompileWordPatterns(); err != nil {
			return err
		}
	}
	file.SortByPriority()

	snap := &keywordSnapshot{
		ordered: file.KeywordSets,
		byName:  make(map[string]*KeywordSet, len(file.KeywordSets)),
	}
	for i := range snap.ordered {
		snap.byName[snap.ordered[i].Name] = &snap.ordered[i]
	}
	for _, name := range requiredSets {
		if _, ok := snap.byName[name]; !ok {
			return fmt.Errorf("keyword sets missing required set %q", name)
		}
	}
	e.snapshot.Store(snap)
	return nil
}

// Mode reports the match mode the engine was built with.
func (e *SafetyEngine) Mode() MatchMode {
	return e.mode
}

// Match reports the first phrase of the named set that occurs in text. Matching is
// case-insensitive; text does not need to be lower-cased by the caller.
func (e *SafetyEngine) Match(setName, text string) (string, bool) {
	set, ok := e.snapshot.Load().byName[setName]
	if !ok {
		return "", false
	}
	return set.match(normalizeText(text), e.mode)
}

// IsCrisis reports whether text contains any crisis phrase.
func (e *SafetyEngine) IsCrisis(text string) bool {
	_, ok := e.Match(SetCrisis, text)
	return ok
}

// IsGreeting reports whether text contains any greeting token.
func (e *SafetyEngine) IsGreeting(text string) bool {
	_, ok := e.Match(SetGreeting, text)
	return ok
}

// Scan checks text against every set, highest priority first, and returns one
// finding per set that matched.
func (e *SafetyEngine) Scan(text string) []Finding {
	normalized := normalizeText(text)
	snap := e.snapshot.Load()
	var findings []Finding
	for i := range snap.ordered {
		set := &snap.ordered[i]
		if phrase, ok := set.match(normalized, e.mode); ok {
			findings = append(findings, Finding{SetName: set.Name, Phrase: phrase})
		}
	}
	return findings
}

// Phrases returns a copy of the phrases in the named set.
func (e *SafetyEngine) Phrases(setName string) []string {
	set, ok := e.snapshot.Load().byName[setName]
	if !ok {
		return nil
	}
	return append([]string(nil), set.Phrases...)
}
