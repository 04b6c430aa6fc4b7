package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch watches the given files for writes/creates and emits a debounced
// reload signal on the returned channel until ctx is cancelled.
func Watch(ctx context.Context, files ...string) <-chan struct{} {
	reloadCh := make(chan struct{}, 1)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("failed to create config watcher", "error", err)
		return reloadCh
	}

	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			slog.Warn("could not resolve config watch path", "file", f)
			continue
		}
		if err := watcher.Add(abs); err != nil {
			slog.Warn("could not watch config file", "file", f, "error", err)
		}
	}

	go func() {
		defer watcher.Close()
		defer close(reloadCh)

		const debounce = 500 * time.Millisecond
		var timer *time.Timer

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) {
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(debounce, func() {
						slog.Info("config change detected", "file", ev.Name)
						select {
						case reloadCh <- struct{}{}:
						default:
						}
					})
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("config watcher error", "error", err)
			}
		}
	}()

	return reloadCh
}
