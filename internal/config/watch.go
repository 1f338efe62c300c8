package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config file on change and applies it to cfg via
// ReplaceFrom, then calls onReload (may be nil). The watch runs until
// ctx is cancelled. Editors often replace the file atomically, so the
// parent directory is watched rather than the file itself.
func Watch(ctx context.Context, path string, cfg *Config, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}

	go watchLoop(ctx, watcher, path, cfg, onReload)
	return nil
}

func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string, cfg *Config, onReload func(*Config)) {
	defer watcher.Close()

	const debounce = 250 * time.Millisecond
	var mu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			fresh, err := Load(path)
			if err != nil {
				slog.Warn("config.reload.failed", "path", path, "error", err)
				return
			}
			cfg.ReplaceFrom(fresh)
			slog.Info("config.reloaded", "path", path)
			if onReload != nil {
				onReload(cfg)
			}
		})
	}

	target := filepath.Clean(path)
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
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config.watch.error", "error", err)
		}
	}
}
