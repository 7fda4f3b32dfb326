// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package classifier defines the emotion classification port consumed by the
// responder, together with the backends that implement it.
//
// # Description
//
// A classifier takes raw user text and returns a score for every label in its
// vocabulary. The responder only ever looks at the single highest-scoring label
// (see Dominant), but the full ordered result is preserved so ties resolve to
// the label the backend listed first.
//
// # Backends
//
//   - HFInferenceClient: Hugging Face text-classification server over HTTP
//   - OpenAIClassifier: OpenAI chat completion returning JSON scores
//   - LexiconClassifier: offline keyword scorer, deterministic
//   - Unavailable: stand-in used when a backend fails to initialize
//
// # Error Handling
//
// Backends wrap ErrUnavailable when the model cannot be reached and
// ErrMalformedOutput when it answered with something unusable. Callers test
// with errors.Is.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

var (
	// ErrUnavailable means the classifier could not be initialized or invoked.
	ErrUnavailable = errors.New("emotion classifier unavailable")

	// ErrMalformedOutput means the classifier answered, but with an empty result,
	// an empty label, or a score outside [0,1].
	ErrMalformedOutput = errors.New("malformed classifier output")
)

// Labels emitted by the distilbert emotion model and mirrored by the other
// backends.
const (
	LabelSadness  = "sadness"
	LabelJoy      = "joy"
	LabelLove     = "love"
	LabelAnger    = "anger"
	LabelFear     = "fear"
	LabelSurprise = "surprise"
)

// DefaultLabels is the vocabulary in the order the distilbert emotion model
// reports it.
var DefaultLabels = []string{LabelSadness, LabelJoy, LabelLove, LabelAnger, LabelFear, LabelSurprise}

// Score is one (label, confidence) pair.
type Score struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// EmotionClassifier is the port the responder depends on.
//
// # Description
//
// Classify receives the raw message, not lower-cased, and returns a non-empty
// sequence of scores. The order of the returned slice is significant: it is the
// tie-break order for Dominant.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type EmotionClassifier interface {
	Classify(ctx context.Context, text string) ([]Score, error)
}

// Func adapts a plain function to EmotionClassifier.
type Func func(ctx context.Context, text string) ([]Score, error)

// Classify calls f.
func (f Func) Classify(ctx context.Context, text string) ([]Score, error) {
	return f(ctx, text)
}

// Dominant returns the highest-scoring entry of scores.
//
// # Description
//
// Sorts a copy of scores by score descending with a stable sort, so among equal
// scores the entry that appeared first in the input wins, and returns the first
// entry. The input slice is not modified.
//
// # Outputs
//
//   - Score: The dominant label and its confidence.
//   - error: Wraps ErrMalformedOutput if scores is empty or any entry is invalid.
func Dominant(scores []Score) (Score, error) {
	if err := Validate(scores); err != nil {
		return Score{}, err
	}
	ranked := make([]Score, len(scores))
	copy(ranked, scores)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked[0], nil
}

// Validate checks that a classifier result is usable.
func Validate(scores []Score) error {
	if len(scores) == 0 {
		return fmt.Errorf("%w: empty result", ErrMalformedOutput)
	}
	for i, s := range scores {
		if strings.TrimSpace(s.Label) == "" {
			return fmt.Errorf("%w: entry %d has no label", ErrMalformedOutput, i)
		}
		if math.IsNaN(s.Score) || s.Score < 0 || s.Score > 1 {
			return fmt.Errorf("%w: entry %d (%s) has score %v", ErrMalformedOutput, i, s.Label, s.Score)
		}
	}
	return nil
}

// Unavailable is used in place of a backend that failed to start. Every call
// reports ErrUnavailable wrapping the original cause.
type Unavailable struct {
	Cause error
}

// Classify always fails.
func (u Unavailable) Classify(ctx context.Context, text string) ([]Score, error) {
	if u.Cause != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, u.Cause)
	}
	return nil, ErrUnavailable
}
