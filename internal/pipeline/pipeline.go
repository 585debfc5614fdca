// Package pipeline wires the upload pipeline's components together
// and exposes the command surface a host application (CLI, tray app,
// IPC bridge) drives it through.
package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/Labric-Platforms/sync-agent/internal/config"
	"github.com/Labric-Platforms/sync-agent/internal/ingest"
	"github.com/Labric-Platforms/sync-agent/internal/progress"
	"github.com/Labric-Platforms/sync-agent/internal/scheduler"
	"github.com/Labric-Platforms/sync-agent/internal/uploadqueue"
)

// Pipeline is the assembled upload pipeline: ingestion front-end,
// upload queue, scheduler loop, and progress aggregator.
type Pipeline struct {
	Config    *config.Store
	Queue     *uploadqueue.Queue
	Front     *ingest.Front
	Scheduler *scheduler.Scheduler
	Progress  *progress.Aggregator
	Logger    *zap.Logger
}

// New assembles a Pipeline from already-constructed components.
func New(cfg *config.Store, queue *uploadqueue.Queue, front *ingest.Front, sched *scheduler.Scheduler, prog *progress.Aggregator, logger *zap.Logger) *Pipeline {
	return &Pipeline{Config: cfg, Queue: queue, Front: front, Scheduler: sched, Progress: prog, Logger: logger}
}

// Run blocks, driving the scheduler loop until ctx is canceled.
func (p *Pipeline) Run(ctx context.Context) {
	p.Scheduler.Run(ctx)
}

// GetUploadConfig returns the current upload configuration.
func (p *Pipeline) GetUploadConfig() config.UploadConfig {
	return p.Config.Get()
}

// SetUploadConfig replaces the upload configuration and persists it.
func (p *Pipeline) SetUploadConfig(cfg config.UploadConfig) error {
	p.Config.Set(cfg)
	return config.Save(cfg)
}

// GetUploadProgress returns a point-in-time progress snapshot.
func (p *Pipeline) GetUploadProgress() progress.Snapshot {
	return p.Progress.Snapshot()
}

// ClearUploadQueue discards every item currently waiting in the queue.
// Items already dispatched to an in-flight upload are unaffected.
func (p *Pipeline) ClearUploadQueue() {
	p.Queue.Clear()
	p.Progress.SetQueued(p.Queue.Len())
}

// GetQueueSize returns the number of items currently waiting.
func (p *Pipeline) GetQueueSize() int {
	return p.Queue.Len()
}

// TriggerManualUpload enqueues a single file outside of the normal
// filesystem-watch path, e.g. in response to a user-initiated action.
func (p *Pipeline) TriggerManualUpload(ctx context.Context, absPath, basePath string) error {
	return p.Front.EnqueueAwait(ctx, absPath, basePath, ingest.EventModified)
}
