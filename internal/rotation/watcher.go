package rotation

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/squadwarden/warden/internal/serial"
)

// Watcher reloads the rotation file whenever it changes on disk. It
// implements suture.Service.
type Watcher struct {
	plugin *Plugin
	serial serial.Serializer
}

// NewWatcher creates a Watcher reloading p under s.
func NewWatcher(p *Plugin, s serial.Serializer) *Watcher {
	if s == nil {
		s = serial.Inline{}
	}
	return &Watcher{plugin: p, serial: s}
}

// Serve watches the directory holding the file, so editors that replace
// the file on save are handled too.
func (w *Watcher) Serve(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	path, err := filepath.Abs(w.plugin.cfg.File)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", w.plugin.cfg.File, err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			if filepath.Clean(ev.Name) != path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			w.serial.Do(func() {
				if err := w.plugin.Load(); err != nil {
					w.plugin.logger.Error("reloading layer rotation failed", "error", err)
				}
			})
		case err, ok := <-fw.Errors:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			w.plugin.logger.Error("layer rotation watcher error", "error", err)
		}
	}
}

func (w *Watcher) String() string {
	return "rotation-watcher"
}
