// Package ingest is the front door of the upload pipeline: it decides
// whether a filesystem event is dropped, marked ignored, or enqueued.
package ingest

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/Labric-Platforms/sync-agent/internal/config"
	"github.com/Labric-Platforms/sync-agent/internal/events"
	"github.com/Labric-Platforms/sync-agent/internal/ignore"
	"github.com/Labric-Platforms/sync-agent/internal/pathutil"
	"github.com/Labric-Platforms/sync-agent/internal/uploadqueue"
)

// EventKind distinguishes a file discovered by the initial scan from
// one reported by a live filesystem event or a manual trigger.
type EventKind string

const (
	EventInitial  EventKind = "initial"
	EventModified EventKind = "modified"
)

// Front accepts a filesystem event and either drops, ignores, or
// enqueues it.
type Front struct {
	Config *config.Store
	Queue  *uploadqueue.Queue
	Sink   events.Sink
	Logger *zap.Logger

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// New returns a Front wired to cfg, queue and sink.
func New(cfg *config.Store, queue *uploadqueue.Queue, sink events.Sink, logger *zap.Logger) *Front {
	return &Front{Config: cfg, Queue: queue, Sink: sink, Logger: logger, Now: time.Now}
}

// Enqueue implements the non-blocking form used by filesystem-event
// callbacks, which the watcher invokes synchronously on its own thread.
// Apart from resolving the relative path and one os.Stat of absPath, it
// only touches in-memory structures; it does no network I/O.
func (f *Front) Enqueue(absPath, basePath string, kind EventKind) {
	cfg := f.Config.Get()

	relative := pathutil.Relative(absPath, basePath)

	if !cfg.Enabled {
		f.emitIgnored(relative)
		return
	}

	if kind == EventInitial && cfg.IgnoreExistingFiles {
		f.emitIgnored(relative)
		return
	}

	if ignore.Matches(relative, cfg.IgnoredPatterns) {
		f.emitIgnored(relative)
		return
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if f.Logger != nil {
			f.Logger.Warn("stat failed during ingestion", zap.String("path", absPath), zap.Error(err))
		}
		return
	}
	if !info.Mode().IsRegular() {
		f.emitIgnored(relative)
		return
	}

	item := uploadqueue.Item{
		AbsPath:   absPath,
		RelPath:   relative,
		Timestamp: f.Now(),
	}
	f.Queue.Enqueue(item)
	f.Sink.FileUploadStatus(events.FileUploadStatus{RelativePath: relative, Status: events.StatusQueued})
}

// EnqueueAwait is the awaitable form used by user-initiated triggers.
// It observes identical semantics to Enqueue; ctx is honored only as a
// cancellation point before that work runs.
func (f *Front) EnqueueAwait(ctx context.Context, absPath, basePath string, kind EventKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.Enqueue(absPath, basePath, kind)
	return nil
}

func (f *Front) emitIgnored(relative string) {
	f.Sink.FileUploadStatus(events.FileUploadStatus{RelativePath: relative, Status: events.StatusIgnored})
}
