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
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// =============================================================================
// Idle Session Sweeper
// =============================================================================

// SweeperConfig holds configuration for the idle-session sweeper.
//
// # Fields
//
//   - Interval: How often to sweep. Default: 1 minute.
//   - IdleTTL: Sessions idle longer than this are evicted. Default: 30 minutes.
type SweeperConfig struct {
	Interval time.Duration
	IdleTTL  time.Duration
}

// DefaultSweeperConfig returns the default sweep cadence and idle TTL.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval: time.Minute,
		IdleTTL:  30 * time.Minute,
	}
}

// Sweeper periodically evicts idle sessions from a Store.
//
// # Description
//
// Runs one goroutine using the ticker + done channel pattern. An initial sweep
// runs immediately on Start. The optional OnSweep hook receives the evicted
// count and the remaining session count after every sweep.
//
// # Thread Safety
//
// All public methods are thread-safe.
type Sweeper struct {
	store  Store
	config SweeperConfig
	now    func() time.Time

	// OnSweep is called after each sweep. Set it before Start.
	OnSweep func(evicted, remaining int)

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewSweeper creates a sweeper over store. Zero config fields take defaults.
//
// # Inputs
//
//   - store: Store to sweep.
//   - config: Sweep interval and idle TTL.
//   - now: Clock. Nil means time.Now.
//
// # Outputs
//
//   - *Sweeper: Ready to Start().
//
// # Examples
//
//	sweeper := session.NewSweeper(store, session.DefaultSweeperConfig(), nil)
//	if err := sweeper.Start(ctx); err != nil {
//	    return err
//	}
//	defer sweeper.Stop()
func NewSweeper(store Store, config SweeperConfig, now func() time.Time) *Sweeper {
	defaults := DefaultSweeperConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = defaults.IdleTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		store:  store,
		config: config,
		now:    now,
	}
}

// Start begins background sweeping. It returns an error if already running.
// The loop exits on Stop or when ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("session sweeper is already running")
	}
	s.running = true
	s.done = make(chan struct{})

	slog.Info("Session sweeper starting",
		"interval", s.config.Interval.String(),
		"idle_ttl", s.config.IdleTTL.String(),
	)

	s.wg.Add(1)
	go s.runLoop(ctx, s.done)
	return nil
}

// Stop signals the loop to exit and waits for it. Calling Stop on a stopped
// sweeper is a no-op.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	slog.Info("Session sweeper stopping")
	close(s.done)
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// RunNow performs one sweep synchronously and returns the number evicted.
func (s *Sweeper) RunNow() int {
	cutoff := s.now().Add(-s.config.IdleTTL)
	evicted := s.store.EvictIdle(cutoff)
	remaining := s.store.Len()

	if evicted > 0 {
		slog.Info("Evicted idle sessions", "evicted", evicted, "remaining", remaining)
	} else {
		slog.Debug("Session sweep completed (nothing idle)", "remaining", remaining)
	}
	if s.OnSweep != nil {
		s.OnSweep(evicted, remaining)
	}
	return evicted
}

func (s *Sweeper) runLoop(ctx context.Context, done <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.RunNow()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Session sweeper stopped (context cancelled)")
			return
		case <-done:
			slog.Info("Session sweeper stopped (stop requested)")
			return
		case <-ticker.C:
			s.RunNow()
		}
	}
}
