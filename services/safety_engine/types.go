// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
package safety_engine

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// MatchMode selects how phrases are compared against a message.
type MatchMode string

const (
	// MatchSubstring reports a hit when the phrase occurs anywhere in the message,
	// including inside a longer word ("this" contains "hi").
	MatchSubstring MatchMode = "substring"

	// MatchWord requires the phrase to start and end on a word boundary.
	MatchWord MatchMode = "word"
)

// ParseMatchMode converts a config string into a MatchMode. Empty means substring.
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", MatchSubstring:
		return MatchSubstring, nil
	case MatchWord:
		return MatchWord, nil
	default:
		return "", fmt.Errorf("invalid match mode %q (want %q or %q)", s, MatchSubstring, MatchWord)
	}
}

func (m *MatchMode) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseMatchMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

type KeywordSetFile struct {
	KeywordSets []KeywordSet `yaml:"keyword_sets"`
}

type KeywordSet struct {
	Name         string           `yaml:"name"`
	Description  string           `yaml:"description"`
	Priority     int              `yaml:"priority"`
	Phrases      []string         `yaml:"phrases"`
	wordPatterns []*regexp.Regexp `yaml:"-"`
}

// Normalize lower-cases and trims every phrase and rejects sets that would never
// match anything.
func (f *KeywordSetFile) Normalize() error {
	seen := make(map[string]bool, len(f.KeywordSets))
	for i := range f.KeywordSets {
		set := &f.KeywordSets[i]
		set.Name = strings.ToLower(strings.TrimSpace(set.Name))
		if set.Name == "" {
			return fmt.Errorf("keyword set %d has no name", i)
		}
		if seen[set.Name] {
			return fmt.Errorf("keyword set %q is defined twice", set.Name)
		}
		seen[set.Name] = true

		phrases := make([]string, 0, len(set.Phrases))
		for _, p := range set.Phrases {
			p = normalizeText(strings.TrimSpace(p))
			if p == "" {
				continue
			}
			phrases = append(phrases, p)
		}
		if len(phrases) == 0 {
			return fmt.Errorf("keyword set %q has no phrases", set.Name)
		}
		set.Phrases = phrases
	}
	return nil
}

// CompileWordPatterns builds one \b-anchored regex per phrase for MatchWord.
func (f *KeywordSetFile) CompileWordPatterns() error {
	for i := range f.KeywordSets {
		set := &f.KeywordSets[i]
		set.wordPatterns = set.wordPatterns[:0]
		for _, p := range set.Phrases {
			re, err := regexp.Compile(`\b` + regexp.QuoteMeta(p) + `\b`)
			if err != nil {
				return fmt.Errorf("failed to compile word pattern for %q: %w", p, err)
			}
			set.wordPatterns = append(set.wordPatterns, re)
		}
	}
	return nil
}

func (f *KeywordSetFile) SortByPriority() {
	sort.SliceStable(f.KeywordSets, func(i, j int) bool {
		return f.KeywordSets[i].Priority > f.KeywordSets[j].Priority
	})
}

// match returns the first phrase of the set found in normalized text.
func (s *KeywordSet) match(normalized string, mode MatchMode) (string, bool) {
	if mode == MatchWord {
		for i, re := range s.wordPatterns {
			if re.MatchString(normalized) {
				return s.Phrases[i], true
			}
		}
		return "", false
	}
	for _, p := range s.Phrases {
		if strings.Contains(normalized, p) {
			return p, true
		}
	}
	return "", false
}

// Finding describes one keyword hit.
type Finding struct {
	SetName string `json:"set_name"`
	Phrase  string `json:"phrase"`
}

// normalizeText lower-cases text and folds typographic apostrophes so that
// "can’t go on" and "can't go on" compare equal.
func normalizeText(text string) string {
	return strings.ReplaceAll(strings.ToLower(text), "’", "'")
}
