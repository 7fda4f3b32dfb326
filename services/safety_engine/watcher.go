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
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// LoadFile replaces the active keyword sets with the contents of an operator
// override file.
func (e *SafetyEngine) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read keyword file %s: %w", path, err)
	}
	if err := e.Reload(data); err != nil {
		return fmt.Errorf("keyword file %s: %w", path, err)
	}
	return nil
}

// WatchFile reloads path every time it is written or recreated, until ctx is
// cancelled.
//
// # Description
//
// The parent directory is watched rather than the file itself so that editors
// which save by rename-and-replace are still picked up. A file that fails to parse
// is logged and ignored; the previously loaded sets stay active.
//
// # Inputs
//
//   - ctx: Stops the watcher goroutine when cancelled.
//   - path: Override file. Must already have been loaded once with LoadFile.
//
// # Outputs
//
//   - error: Non-nil if the watcher could not be created.
//
// # Limitations
//
//   - Events are not debounced; a burst of writes triggers several reloads.
func (e *SafetyEngine) WatchFile(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create keyword file watcher: %w", err)
	}
	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := e.LoadFile(target); err != nil {
					slog.Warn("Keeping previous keyword sets after failed reload", "path", target, "error", err)
					continue
				}
				slog.Info("Reloaded keyword sets", "path", target)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Keyword file watcher error", "error", err)
			}
		}
	}()
	return nil
}
