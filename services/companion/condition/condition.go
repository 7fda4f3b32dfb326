// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package condition maps a dominant emotion label onto the small set of
// user-facing conditions the responder talks about, and owns every piece of fixed
// reply text: base messages, coping tips, and the shortcut replies.
//
// Everything in this package is a pure function over static tables.
package condition

import (
	"strings"

	"github.com/AleutianAI/AleutianCare/services/classifier"
)

// Condition is the closed set of emotional categories a reply is written for.
type Condition string

const (
	Depressed Condition = "depressed"
	Anxiety   Condition = "anxiety"
	Stress    Condition = "stress"
	Happy     Condition = "happy"
	Neutral   Condition = "neutral"
)

// All lists every condition in a fixed order, for metrics pre-registration.
var All = []Condition{Depressed, Anxiety, Stress, Happy, Neutral}

// StreakEffect says what a condition does to the depression streak.
type StreakEffect int

const (
	// StreakReset sets the streak back to zero.
	StreakReset StreakEffect = iota
	// StreakIncrement adds one to the streak.
	StreakIncrement
)

func (e StreakEffect) String() string {
	if e == StreakIncrement {
		return "increment"
	}
	return "reset"
}

// Mapping is the result of mapping a dominant label.
type Mapping struct {
	Condition Condition
	Message   string
	Streak    StreakEffect
}

var mappings = map[string]Mapping{
	classifier.LabelSadness: {
		Condition: Depressed,
		Message:   "It sounds like you may be feeling **depressed** 💙. Remember, you’re not alone.",
		Streak:    StreakIncrement,
	},
	classifier.LabelFear: {
		Condition: Anxiety,
		Message:   "I sense some **anxiety** 🌱. It’s okay to take small steps to calm your mind.",
		Streak:    StreakReset,
	},
	classifier.LabelAnger: {
		Condition: Stress,
		Message:   "You seem **stressed** or frustrated 😔. Taking breaks and self-care can help.",
		Streak:    StreakReset,
	},
	classifier.LabelJoy: {
		Condition: Happy,
		Message:   "I’m glad you’re feeling **happy** today! 😊",
		Streak:    StreakReset,
	},
}

var neutralMapping = Mapping{
	Condition: Neutral,
	Message:   "Thanks for sharing your feelings. It’s healthy to express them.",
	Streak:    StreakReset,
}

// Map returns the condition, base message and streak effect for a dominant
// emotion label. Labels are compared case-insensitively; anything unmapped is
// neutral.
func Map(label string) Mapping {
	if m, ok := mappings[strings.ToLower(strings.TrimSpace(label))]; ok {
		return m
	}
	return neutralMapping
}
