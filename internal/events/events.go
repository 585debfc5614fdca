// Package events defines the push surface the upload pipeline reports
// to a host process: file-change notices, per-file lifecycle status,
// and upload success/failure notices. Progress snapshots are published
// by package progress, not through this surface.
package events

import "time"

// FileEventKind classifies a raw filesystem notice.
type FileEventKind string

const (
	FileEventCreated  FileEventKind = "created"
	FileEventModified FileEventKind = "modified"
	FileEventDeleted  FileEventKind = "deleted"
	FileEventInitial  FileEventKind = "initial"
	FileEventOther    FileEventKind = "other"
)

// FileChange is an informational notice from the watcher.
type FileChange struct {
	Path      string
	Kind      FileEventKind
	Timestamp time.Time
}

// Status enumerates a file's lifecycle state.
type Status string

const (
	StatusIgnored   Status = "ignored"
	StatusQueued    Status = "queued"
	StatusUploading Status = "uploading"
	StatusUploaded  Status = "uploaded"
	StatusFailed    Status = "failed"
)

// FileUploadStatus is a per-file lifecycle event.
type FileUploadStatus struct {
	RelativePath string
	Status       Status
	Error        string
}

// Sink is the event surface consumed by the host shell. Implementations
// must not block the caller for long; the pipeline calls these from
// hot paths (ingestion, the scheduler loop, uploader goroutines).
type Sink interface {
	FileChange(FileChange)
	FileUploadStatus(FileUploadStatus)
	Uploaded(relativePath string)
	UploadSuccess(relativePath string)
	UploadFailed(relativePath, errorMessage string)
}

// NopSink discards every event. Useful as a default or in tests that
// don't care about the event surface.
type NopSink struct{}

func (NopSink) FileChange(FileChange)            {}
func (NopSink) FileUploadStatus(FileUploadStatus) {}
func (NopSink) Uploaded(string)                   {}
func (NopSink) UploadSuccess(string)              {}
func (NopSink) UploadFailed(string, string)       {}
