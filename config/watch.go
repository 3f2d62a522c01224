// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"vibecodex.dev/vibe-codex/logger"
)

// debounce is how long Watch waits for writes to settle before reloading.
const debounce = 100 * time.Millisecond

// Watch calls fn with the reloaded configuration each time the file at path
// changes, until ctx is done. Files that fail to load are logged and
// skipped.
//
// The directory containing path is watched, so editors that replace the
// file instead of writing it in place are handled.
func Watch(ctx context.Context, path string, fn func(*Config)) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}
	logger.Debug(ctx, "watching config", slog.String("path", path))

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn(ctx, "config watcher error", slog.Any("err", err))
		case <-timer.C:
			c, err := Load(path)
			if err != nil {
				logger.Warn(ctx, "reloading config", slog.String("path", path), slog.Any("err", err))
				continue
			}
			fn(c)
		}
	}
}
