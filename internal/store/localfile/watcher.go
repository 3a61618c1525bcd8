package localfile

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay groups the burst of events one atomic save produces
// (create temp, write, chmod, rename) into a single notification.
const settleDelay = 50 * time.Millisecond

// watchFile blocks until ctx is done and calls onChange after path is created or
// written. The parent directory is watched: a save replaces the file, and a watch
// on the file itself would go silent after the first rename.
func watchFile(ctx context.Context, path string, logger *log.Logger, onChange func()) error {
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", filepath.Dir(target), err)
	}

	settle := time.NewTimer(settleDelay)
	settle.Stop()
	defer settle.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !touches(ev, target) {
				continue
			}
			if !pending {
				pending = true
				settle.Reset(settleDelay)
			}

		case <-settle.C:
			pending = false
			onChange()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Printf("watch error: %v", err)
		}
	}
}

// touches reports whether ev created or wrote target. Removals are ignored: the
// document reappears with a create event when the next save lands.
func touches(ev fsnotify.Event, target string) bool {
	abs, err := filepath.Abs(ev.Name)
	if err != nil || abs != target {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)
}
