// Package scheduler is the long-running loop that drains ready items
// from the upload queue, probes the server for dedup verdicts, and
// dispatches bounded-concurrency uploads with retry.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Labric-Platforms/sync-agent/internal/config"
	"github.com/Labric-Platforms/sync-agent/internal/events"
	"github.com/Labric-Platforms/sync-agent/internal/progress"
	"github.com/Labric-Platforms/sync-agent/internal/syncclient"
	"github.com/Labric-Platforms/sync-agent/internal/uploader"
	"github.com/Labric-Platforms/sync-agent/internal/uploadqueue"
)

// Timing constants governing the scheduler loop's idle, retry and
// dispatch pacing.
const (
	DisabledCheckInterval   = 1 * time.Second
	QueueProcessingInterval = 200 * time.Millisecond
	RetryDelay              = 5 * time.Second
	UploadSpawnDelay        = 10 * time.Millisecond
	BatchProcessingDelay    = 100 * time.Millisecond
)

// Scheduler is the single long-lived task driving the upload pipeline.
type Scheduler struct {
	Queue    *uploadqueue.Queue
	Config   *config.Store
	Progress *progress.Aggregator
	Probe    *syncclient.Client
	Uploader *uploader.Uploader
	Sink     events.Sink
	Logger   *zap.Logger

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time

	// Timing knobs default to the package constants; tests override them
	// to exercise retry/idle branches without real wall-clock delay.
	DisabledCheckInterval   time.Duration
	QueueProcessingInterval time.Duration
	RetryDelay              time.Duration
	UploadSpawnDelay        time.Duration
	BatchProcessingDelay    time.Duration

	semMu      sync.Mutex
	sem        *semaphore.Weighted
	currentCap int64
}

// New returns a Scheduler wired to its collaborators.
func New(queue *uploadqueue.Queue, cfg *config.Store, prog *progress.Aggregator, probe *syncclient.Client, up *uploader.Uploader, sink events.Sink, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		Queue:    queue,
		Config:   cfg,
		Progress: prog,
		Probe:    probe,
		Uploader: up,
		Sink:     sink,
		Logger:   logger,
		Now:      time.Now,

		DisabledCheckInterval:   DisabledCheckInterval,
		QueueProcessingInterval: QueueProcessingInterval,
		RetryDelay:              RetryDelay,
		UploadSpawnDelay:        UploadSpawnDelay,
		BatchProcessingDelay:    BatchProcessingDelay,
	}
}

// Run drives the scheduler loop until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		s.tick(ctx)
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	cfg := s.Config.Get()

	if !cfg.Enabled {
		sleep(ctx, s.DisabledCheckInterval)
		return
	}

	sem := s.ensureSemaphore(cfg.MaxConcurrentUploads)

	delay := time.Duration(cfg.UploadDelayMs) * time.Millisecond
	ready := s.Queue.DrainReady(s.Now(), delay, cfg.EffectiveMaxBatchSize())
	if len(ready) == 0 {
		sleep(ctx, s.QueueProcessingInterval)
		return
	}

	s.Progress.SetQueued(s.Queue.Len())

	verdicts, err := s.Probe.ProbeBatch(ctx, ready)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("batch probe failed, re-queuing batch", zap.Int("batch_size", len(ready)), zap.Error(err))
		}
		// Preserve original timestamps: the probe is not one of the
		// item's upload attempts, so the debounce window is not reset.
		s.Queue.Requeue(ready...)
		sleep(ctx, s.RetryDelay)
		return
	}

	var wg sync.WaitGroup
	for _, v := range verdicts {
		switch v.Status {
		case syncclient.VerdictExists:
			s.Sink.FileUploadStatus(events.FileUploadStatus{RelativePath: v.Item.RelPath, Status: events.StatusUploaded})
			s.Sink.Uploaded(v.Item.RelPath)
			s.Progress.IncUploaded()
			s.Progress.SetQueued(s.Queue.Len())

		case syncclient.VerdictNeedsUpload:
			if v.UploadURL == "" {
				// Anomalous server response: transient, not an attempt.
				s.Queue.Requeue(v.Item)
				continue
			}

			if err := sem.Acquire(ctx, 1); err != nil {
				// Context canceled while waiting for a permit.
				s.Queue.Requeue(v.Item)
				continue
			}

			wg.Add(1)
			go s.dispatch(ctx, &wg, sem, cfg, v)

			sleep(ctx, s.UploadSpawnDelay)
		}
	}
	wg.Wait()

	sleep(ctx, s.BatchProcessingDelay)
}

func (s *Scheduler) dispatch(ctx context.Context, wg *sync.WaitGroup, sem *semaphore.Weighted, cfg config.UploadConfig, v syncclient.Verdict) {
	defer wg.Done()
	defer sem.Release(1)
	defer func() {
		if r := recover(); r != nil {
			s.failOrRetry(cfg, v.Item, fmt.Errorf("upload panicked: %v", r))
		}
	}()

	s.Progress.SetCurrentUploading(v.Item.RelPath)
	err := s.Uploader.Upload(ctx, v.Item, v.UploadURL, v.FileID, v.ContentType)
	if err == nil {
		s.Progress.IncUploaded()
		s.Progress.SetQueued(s.Queue.Len())
		return
	}
	s.failOrRetry(cfg, v.Item, err)
}

func (s *Scheduler) failOrRetry(cfg config.UploadConfig, item uploadqueue.Item, uploadErr error) {
	item.RetryCount++
	if item.RetryCount < cfg.EffectiveMaxRetryCount() {
		if s.Logger != nil {
			s.Logger.Warn("upload failed, will retry",
				zap.String("path", item.RelPath),
				zap.Int("retry_count", item.RetryCount),
				zap.Error(uploadErr))
		}
		item.Timestamp = s.Now()
		// If a fresh Enqueue of the same path landed while this item was
		// in flight, Requeue drops this retry and the newer entry stands.
		s.Queue.Requeue(item)
		return
	}

	if s.Logger != nil {
		s.Logger.Error("upload permanently failed",
			zap.String("path", item.RelPath),
			zap.Int("attempts", item.RetryCount),
			zap.Error(uploadErr))
	}
	s.Sink.FileUploadStatus(events.FileUploadStatus{RelativePath: item.RelPath, Status: events.StatusFailed, Error: uploadErr.Error()})
	s.Sink.UploadFailed(item.RelPath, uploadErr.Error())
	s.Progress.IncFailed()
	s.Progress.SetQueued(s.Queue.Len())
}

// ensureSemaphore returns the current concurrency limiter, rebuilding
// it if cap has changed. Permits already acquired from a prior
// semaphore remain honored by the goroutine holding them, since that
// goroutine released against the semaphore reference it acquired from.
func (s *Scheduler) ensureSemaphore(cap int) *semaphore.Weighted {
	if cap <= 0 {
		cap = 1
	}
	s.semMu.Lock()
	defer s.semMu.Unlock()
	if s.sem == nil || int64(cap) != s.currentCap {
		s.sem = semaphore.NewWeighted(int64(cap))
		s.currentCap = int64(cap)
	}
	return s.sem
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
