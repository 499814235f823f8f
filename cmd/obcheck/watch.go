// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchFile calls onChange after path is written, created or renamed over,
// once per burst of events separated by less than debounce.
//
// Description:
//
//	Watches the file's directory rather than the file so editors that
//	save by rename keep triggering. Events for other files are ignored.
//	onChange runs on the watching goroutine, so bursts during a run are
//	coalesced into the next one.
//
// Inputs:
//   - ctx: Stops the watch when cancelled.
//   - path: The file to watch.
//   - debounce: Quiet period before onChange fires.
//   - lg: Receives watcher errors.
//   - onChange: Called after each burst.
//
// Outputs:
//   - error: Non-nil if the watcher could not be set up. Returns nil on
//     cancellation.
func watchFile(ctx context.Context, path string, debounce time.Duration, lg *slog.Logger, onChange func()) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			lg.Warn("watcher error", slog.String("error", err.Error()))

		case <-fire:
			fire = nil
			lg.Debug("snapshot changed", slog.String("path", abs))
			onChange()
		}
	}
}
