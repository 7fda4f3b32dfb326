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
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianCare/services/companion/condition"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.Local)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// =============================================================================
// StreakTracker
// =============================================================================

func TestStreakTracker_EscalatesOnThirdAndResets(t *testing.T) {
	tr := NewStreakTracker(0)
	if tr.Threshold() != DefaultEscalationThreshold {
		t.Fatalf("Threshold() = %d, want %d", tr.Threshold(), DefaultEscalationThreshold)
	}

	steps := []struct {
		effect    condition.StreakEffect
		escalate  bool
		wantCount int
	}{
		{condition.StreakIncrement, false, 1},
		{condition.StreakIncrement, false, 2},
		{condition.StreakIncrement, true, 0},
		{condition.StreakIncrement, false, 1},
		{condition.StreakReset, false, 0},
		{condition.StreakIncrement, false, 1},
		{condition.StreakIncrement, false, 2},
		{condition.StreakIncrement, true, 0},
	}
	for i, step := range steps {
		got := tr.Observe(step.effect)
		if got != step.escalate {
			t.Errorf("step %d: Observe = %v, want %v", i, got, step.escalate)
		}
		if tr.Count() != step.wantCount {
			t.Errorf("step %d: Count = %d, want %d", i, tr.Count(), step.wantCount)
		}
	}
}

func TestStreakTracker_StaysBelowThreshold(t *testing.T) {
	for _, threshold := range []int{1, 2, 5} {
		tr := NewStreakTracker(threshold)
		for i := 0; i < 20; i++ {
			effect := condition.StreakIncrement
			if i%7 == 6 {
				effect = condition.StreakReset
			}
			tr.Observe(effect)
			if c := tr.Count(); c < 0 || c >= threshold {
				t.Fatalf("threshold %d: count %d out of range after step %d", threshold, c, i)
			}
		}
	}
}

func TestStreakTracker_ThresholdOneFiresEveryTime(t *testing.T) {
	tr := NewStreakTracker(1)
	for i := 0; i < 3; i++ {
		if !tr.Observe(condition.StreakIncrement) {
			t.Fatalf("step %d: expected escalation at threshold 1", i)
		}
	}
}

// =============================================================================
// InteractionLog
// =============================================================================

func TestRoundConfidence(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.91234, 0.91},
		{0.876, 0.88},
		{0.004, 0},
		{1, 1},
	}
	for _, tc := range tests {
		if got := RoundConfidence(tc.in); got != tc.want {
			t.Errorf("RoundConfidence(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestInteractionLog_AppendOrderAndCopy(t *testing.T) {
	l := NewInteractionLog(0)
	for i := 0; i < 5; i++ {
		l.Append(Entry{Input: fmt.Sprintf("turn %d", i), Condition: condition.Neutral})
	}
	if l.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", l.Len())
	}
	entries := l.Entries()
	for i, e := range entries {
		if want := fmt.Sprintf("turn %d", i); e.Input != want {
			t.Errorf("entry %d input = %q, want %q", i, e.Input, want)
		}
	}
	entries[0].Input = "mutated"
	if l.Entries()[0].Input == "mutated" {
		t.Error("Entries returned internal storage")
	}
}

func TestInteractionLog_CapKeepsNewest(t *testing.T) {
	l := NewInteractionLog(2)
	for i := 0; i < 4; i++ {
		l.Append(Entry{Input: fmt.Sprintf("turn %d", i)})
	}
	entries := l.Entries()
	if len(entries) != 2 || entries[0].Input != "turn 2" || entries[1].Input != "turn 3" {
		t.Errorf("capped log = %+v, want turns 2 and 3", entries)
	}
}

func TestEntry_JSON(t *testing.T) {
	e := Entry{
		Timestamp:  time.Date(2025, 3, 14, 9, 26, 53, 0, time.Local),
		Input:      "I feel low",
		Condition:  condition.Depressed,
		Confidence: 0.87,
	}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"timestamp":"2025-03-14 09:26:53","input":"I feel low","emotion":"depressed","confidence":0.87}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}

	var back Entry
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back.Timestamp.Equal(e.Timestamp) || back.Input != e.Input || back.Condition != e.Condition {
		t.Errorf("Unmarshal = %+v, want %+v", back, e)
	}
}

// =============================================================================
// Session and MemoryStore
// =============================================================================

func TestSession_TurnSerializes(t *testing.T) {
	sess := New("s1", Options{}, time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.Turn(func() {
				sess.Streak().Observe(condition.StreakReset)
				sess.Log().Append(Entry{Condition: condition.Neutral})
			})
		}()
	}
	wg.Wait()
	if sess.Log().Len() != 50 {
		t.Errorf("log length = %d, want 50", sess.Log().Len())
	}
}

func TestMemoryStore_GetOrCreate(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(Options{EscalationThreshold: 2}, clock.Now)

	a, created := store.GetOrCreate("a")
	if !created {
		t.Fatal("first GetOrCreate should create")
	}
	if a.Streak().Threshold() != 2 {
		t.Errorf("threshold = %d, want 2", a.Streak().Threshold())
	}

	clock.Advance(time.Minute)
	again, created := store.GetOrCreate("a")
	if created || again != a {
		t.Fatal("second GetOrCreate should return the same session")
	}
	if !a.LastSeen().Equal(clock.Now()) {
		t.Errorf("LastSeen not refreshed: %v", a.LastSeen())
	}

	if _, ok := store.Get("missing"); ok {
		t.Error("Get(missing) should report false")
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestMemoryStore_SessionsAreIsolated(t *testing.T) {
	store := NewMemoryStore(Options{}, nil)
	a, _ := store.GetOrCreate("a")
	b, _ := store.GetOrCreate("b")

	a.Streak().Observe(condition.StreakIncrement)
	a.Log().Append(Entry{Input: "x"})

	if b.Streak().Count() != 0 || b.Log().Len() != 0 {
		t.Error("state leaked between sessions")
	}
}

func TestMemoryStore_DeleteAndList(t *testing.T) {
	store := NewMemoryStore(Options{}, nil)
	for _, id := range []string{"c", "a", "b"} {
		store.GetOrCreate(id)
	}
	list := store.List()
	if len(list) != 3 || list[0].ID != "a" || list[2].ID != "c" {
		t.Errorf("List() = %+v, want sorted a,b,c", list)
	}

	if !store.Delete("b") {
		t.Error("Delete(b) = false, want true")
	}
	if store.Delete("b") {
		t.Error("second Delete(b) = true, want false")
	}
	if store.Len() != 2 {
		t.Errorf("Len() = %d, want 2", store.Len())
	}
}

func TestMemoryStore_EvictIdle(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(Options{}, clock.Now)

	store.GetOrCreate("old")
	clock.Advance(10 * time.Minute)
	store.GetOrCreate("fresh")

	evicted := store.EvictIdle(clock.Now().Add(-5 * time.Minute))
	if evicted != 1 {
		t.Errorf("EvictIdle = %d, want 1", evicted)
	}
	if _, ok := store.Get("old"); ok {
		t.Error("old session should have been evicted")
	}
	if _, ok := store.Get("fresh"); !ok {
		t.Error("fresh session should remain")
	}
}

func TestMemoryStore_SharedSessionIsPinned(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(Options{}, clock.Now)

	shared, _ := store.GetOrCreate(SharedID)
	shared.Log().Append(Entry{Timestamp: clock.Now(), Input: "so sad", Condition: condition.Depressed, Confidence: 0.9})
	shared.Streak().Observe(condition.StreakIncrement)

	if store.Delete(SharedID) {
		t.Error("Delete(SharedID) = true, want false")
	}

	clock.Advance(31 * time.Minute)
	sweeper := NewSweeper(store, SweeperConfig{IdleTTL: 30 * time.Minute}, clock.Now)
	if n := sweeper.RunNow(); n != 0 {
		t.Errorf("RunNow evicted %d, want 0", n)
	}

	sess, created := store.GetOrCreate(SharedID)
	if created {
		t.Fatal("shared session was recreated")
	}
	if sess.Log().Len() != 1 {
		t.Errorf("shared log length = %d, want 1", sess.Log().Len())
	}
	if sess.Streak().Count() != 1 {
		t.Errorf("shared streak = %d, want 1", sess.Streak().Count())
	}
}

// =============================================================================
// Sweeper
// =============================================================================

func TestSweeper_RunNow(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(Options{}, clock.Now)
	store.GetOrCreate("a")
	store.GetOrCreate("b")

	sweeper := NewSweeper(store, SweeperConfig{IdleTTL: time.Minute}, clock.Now)

	var gotEvicted, gotRemaining int
	sweeper.OnSweep = func(evicted, remaining int) {
		gotEvicted, gotRemaining = evicted, remaining
	}

	if n := sweeper.RunNow(); n != 0 {
		t.Errorf("RunNow before TTL = %d, want 0", n)
	}

	clock.Advance(2 * time.Minute)
	if n := sweeper.RunNow(); n != 2 {
		t.Errorf("RunNow after TTL = %d, want 2", n)
	}
	if gotEvicted != 2 || gotRemaining != 0 {
		t.Errorf("OnSweep got (%d, %d), want (2, 0)", gotEvicted, gotRemaining)
	}
}

func TestSweeper_StartStop(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(Options{}, clock.Now)
	store.GetOrCreate("a")
	clock.Advance(time.Hour)

	sweeper := NewSweeper(store, SweeperConfig{Interval: 10 * time.Millisecond, IdleTTL: time.Minute}, clock.Now)
	swept := make(chan struct{}, 1)
	sweeper.OnSweep = func(int, int) {
		select {
		case swept <- struct{}{}:
		default:
		}
	}

	if err := sweeper.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sweeper.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}

	select {
	case <-swept:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper never ran")
	}
	if err := sweeper.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := sweeper.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d after sweep, want 0", store.Len())
	}
}

func TestSweeper_StopsOnContextCancel(t *testing.T) {
	store := NewMemoryStore(Options{}, nil)
	sweeper := NewSweeper(store, SweeperConfig{Interval: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	stopped := make(chan struct{})
	go func() {
		_ = sweeper.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after context cancellation")
	}
}
