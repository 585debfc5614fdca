// Package watchadapter bridges fsnotify filesystem events into the
// ingestion front-end. Unlike a typical fsnotify wrapper it does not
// debounce at the watcher layer: the upload queue's timestamp-readiness
// check already coalesces rapid repeat writes to the same path, so a
// second front-door timer here would just double the delay.
package watchadapter

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Labric-Platforms/sync-agent/internal/events"
	"github.com/Labric-Platforms/sync-agent/internal/ingest"
)

// Watcher recursively watches a root directory and forwards regular
// file create/write events to an ingest.Front.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	front     *ingest.Front
	root      string
	logger    *zap.Logger
}

// New creates a Watcher rooted at root, forwarding events to front.
func New(root string, front *ingest.Front, logger *zap.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{fsWatcher: fsWatcher, front: front, root: root, logger: logger}, nil
}

// InitialScan walks root and enqueues every regular file found as an
// ingest.EventInitial change, before live watching begins. Suppressing
// already-present files is ingest.Front's job, not this walker's.
func (w *Watcher) InitialScan() error {
	return filepath.Walk(w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 || info.IsDir() {
			return nil
		}
		w.emitFileChange(path, events.FileEventInitial)
		w.front.Enqueue(path, w.root, ingest.EventInitial)
		return nil
	})
}

// Start adds root recursively to the watcher and begins processing
// events in a background goroutine.
func (w *Watcher) Start() error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	go func() {
		for {
			select {
			case event, ok := <-w.fsWatcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
					w.handleEvent(event)
				}
			case err, ok := <-w.fsWatcher.Errors:
				if !ok {
					return
				}
				if w.logger != nil {
					w.logger.Warn("watcher error", zap.Error(err))
				}
			}
		}
	}()
	return nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		if info.IsDir() {
			return w.fsWatcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	info, err := os.Lstat(path)
	if err != nil {
		// Deleted between the event firing and this lookup: report the
		// deletion but there is nothing left to read, so no ingestion.
		w.emitFileChange(path, events.FileEventDeleted)
		return
	}

	if info.IsDir() {
		if event.Op&fsnotify.Create == fsnotify.Create {
			if err := w.fsWatcher.Add(path); err != nil && w.logger != nil {
				w.logger.Warn("failed to watch new directory", zap.String("path", path), zap.Error(err))
			}
		}
		return
	}

	if info.Mode()&os.ModeSymlink != 0 {
		return
	}

	kind := events.FileEventModified
	if event.Op&fsnotify.Create == fsnotify.Create {
		kind = events.FileEventCreated
	}
	w.emitFileChange(path, kind)
	w.front.Enqueue(path, w.root, ingest.EventModified)
}

// emitFileChange reports a raw watcher notice to the front's sink, if
// any. This is purely informational and never gates ingestion.
func (w *Watcher) emitFileChange(path string, kind events.FileEventKind) {
	if w.front == nil || w.front.Sink == nil {
		return
	}
	w.front.Sink.FileChange(events.FileChange{Path: path, Kind: kind, Timestamp: time.Now()})
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fsWatcher.Close()
}
