// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"errors"
	"regexp"
)

// ErrMessageBlocked is returned by filters that refuse a message outright.
var ErrMessageBlocked = errors.New("message blocked by filter")

// FilterResult is the outcome of filtering one message.
type FilterResult struct {
	Original    string
	Filtered    string
	WasModified bool
	WasBlocked  bool
	BlockReason string
	Detections  []Detection
}

// Detection records one finding inside a filtered message.
type Detection struct {
	// Type is the kind of data found, e.g. "email" or "phone".
	Type        string
	Action      string
	Replacement string
}

// MessageFilter transforms messages at the two boundaries of a turn.
//
// FilterInput runs on user text before it leaves the process for the emotion
// classifier. Crisis and greeting detection always see the unfiltered text.
// FilterOutput runs on the assembled reply.
type MessageFilter interface {
	FilterInput(ctx context.Context, message string) (*FilterResult, error)
	FilterOutput(ctx context.Context, message string) (*FilterResult, error)
}

// NopMessageFilter returns every message unchanged.
type NopMessageFilter struct{}

func (f *NopMessageFilter) FilterInput(ctx context.Context, message string) (*FilterResult, error) {
	return &FilterResult{Original: message, Filtered: message}, nil
}

func (f *NopMessageFilter) FilterOutput(ctx context.Context, message string) (*FilterResult, error) {
	return &FilterResult{Original: message, Filtered: message}, nil
}

// =============================================================================
// Redacting filter
// =============================================================================

type redactRule struct {
	kind        string
	pattern     *regexp.Regexp
	replacement string
}

// RedactingFilter masks email addresses and phone numbers in user input before
// it is sent to a remote classifier. Replies pass through untouched so hotline
// numbers in safety messages survive.
type RedactingFilter struct {
	rules []redactRule
}

// NewRedactingFilter returns a filter with the built-in email and phone rules.
func NewRedactingFilter() *RedactingFilter {
	return &RedactingFilter{rules: []redactRule{
		{
			kind:        "email",
			pattern:     regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
			replacement: "[EMAIL]",
		},
		{
			kind:        "phone",
			pattern:     regexp.MustCompile(`\+?\d[\d\-\s().]{7,}\d`),
			replacement: "[PHONE]",
		},
	}}
}

func (f *RedactingFilter) FilterInput(ctx context.Context, message string) (*FilterResult, error) {
	result := &FilterResult{Original: message, Filtered: message}
	for _, rule := range f.rules {
		matches := rule.pattern.FindAllStringIndex(result.Filtered, -1)
		if len(matches) == 0 {
			continue
		}
		for range matches {
			result.Detections = append(result.Detections, Detection{
				Type:        rule.kind,
				Action:      "redact",
				Replacement: rule.replacement,
			})
		}
		result.Filtered = rule.pattern.ReplaceAllString(result.Filtered, rule.replacement)
		result.WasModified = true
	}
	return result, nil
}

func (f *RedactingFilter) FilterOutput(ctx context.Context, message string) (*FilterResult, error) {
	return &FilterResult{Original: message, Filtered: message}, nil
}

var (
	_ MessageFilter = (*NopMessageFilter)(nil)
	_ MessageFilter = (*RedactingFilter)(nil)
)
