package templates

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watch invalidates the cached index whenever template files change on
// disk, e.g. when the user edits templates by hand. Runs until ctx is
// cancelled.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(m.dir); err != nil {
		_ = watcher.Close()
		return err
	}
	// Existing provider subdirectories; new ones are picked up from the
	// create events on the root.
	entries, err := filepath.Glob(filepath.Join(m.dir, "*"))
	if err == nil {
		for _, entry := range entries {
			_ = watcher.Add(entry)
		}
	}

	go func() {
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name := filepath.Base(event.Name)
				if name == indexFilename || strings.HasPrefix(name, ".") {
					continue
				}
				if event.Op&fsnotify.Create != 0 {
					// Could be a new provider directory.
					_ = watcher.Add(event.Name)
				}
				m.Invalidate()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("templates: watcher error: %v", err)
			}
		}
	}()
	return nil
}
