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
	"sync"

	"github.com/AleutianAI/AleutianCare/services/companion/condition"
)

// DefaultEscalationThreshold is how many consecutive depressed turns trigger the
// counselor suggestion.
const DefaultEscalationThreshold = 3

// StreakTracker counts consecutive depressed classifications.
//
// # Description
//
// The counter only ever moves in three ways: +1 on an increment effect, back to 0
// on a reset effect, and back to 0 right after it reaches the threshold. It is
// therefore always in [0, threshold-1] between calls.
//
// # Thread Safety
//
// Safe for concurrent use.
type StreakTracker struct {
	mu        sync.Mutex
	threshold int
	count     int
}

// NewStreakTracker returns a tracker at zero. A threshold below 1 uses
// DefaultEscalationThreshold.
func NewStreakTracker(threshold int) *StreakTracker {
	if threshold < 1 {
		threshold = DefaultEscalationThreshold
	}
	return &StreakTracker{threshold: threshold}
}

// Observe applies one turn's streak effect and reports whether escalation fired.
// When it fires the counter has already been reset to zero.
func (t *StreakTracker) Observe(effect condition.StreakEffect) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if effect == condition.StreakIncrement {
		t.count++
	} else {
		t.count = 0
	}
	if t.count >= t.threshold {
		t.count = 0
		return true
	}
	return false
}

// Count returns the current streak.
func (t *StreakTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Threshold returns the escalation threshold.
func (t *StreakTracker) Threshold() int {
	return t.threshold
}
