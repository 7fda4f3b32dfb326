// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package classifier

import (
	"context"
	"strings"
	"unicode"
)

// LabelNeutral is only produced by LexiconClassifier, for text with no cue words.
const LabelNeutral = "neutral"

// defaultLexicon maps labels to word stems. A token matches a stem when it starts
// with it, so "stress" also covers "stressed" and "stressful".
var defaultLexicon = map[string][]string{
	LabelSadness:  {"sad", "depress", "lonely", "alone", "cry", "hopeless", "empty", "miserable", "unhappy", "grief", "down", "tired of"},
	LabelJoy:      {"happy", "glad", "great", "joy", "excit", "wonderful", "awesome", "good", "cheer", "delight"},
	LabelLove:     {"love", "adore", "caring", "grateful", "thankful"},
	LabelAnger:    {"angry", "anger", "furious", "annoy", "frustrat", "stress", "hate", "irritat", "rage"},
	LabelFear:     {"afraid", "scared", "fear", "anxious", "anxiety", "worr", "nervous", "panic", "terrified"},
	LabelSurprise: {"surpris", "shock", "amaz", "unexpected", "wow"},
}

// LexiconClassifier scores text by counting cue words. It never fails, needs no
// network, and gives the same answer for the same input, which makes it the
// backend for local runs and tests.
type LexiconClassifier struct {
	labels  []string
	lexicon map[string][]string
}

func NewLexiconClassifier() *LexiconClassifier {
	return &LexiconClassifier{
		labels:  append(append([]string(nil), DefaultLabels...), LabelNeutral),
		lexicon: defaultLexicon,
	}
}

// Classify implements EmotionClassifier. Scores sum to 1; text without any cue
// word scores neutral 1.0.
func (l *LexiconClassifier) Classify(ctx context.Context, text string) ([]Score, error) {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	joined := " " + strings.Join(tokens, " ") + " "

	hits := make(map[string]int, len(l.labels))
	total := 0
	for label, stems := range l.lexicon {
		for _, stem := range stems {
			if strings.Contains(stem, " ") {
				if strings.Contains(joined, " "+stem+" ") {
					hits[label]++
					total++
				}
				continue
			}
			for _, tok := range tokens {
				if strings.HasPrefix(tok, stem) {
					hits[label]++
					total++
				}
			}
		}
	}

	scores := make([]Score, 0, len(l.labels))
	for _, label := range l.labels {
		var s float64
		switch {
		case total == 0 && label == LabelNeutral:
			s = 1
		case total > 0:
			s = float64(hits[label]) / float64(total)
		}
		scores = append(scores, Score{Label: label, Score: s})
	}
	return scores, nil
}
