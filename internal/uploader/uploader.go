// Package uploader performs the actual PUT of a file's body to its
// presigned URL and finalizes server-side metadata.
package uploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/Labric-Platforms/sync-agent/internal/events"
	"github.com/Labric-Platforms/sync-agent/internal/syncclient"
	"github.com/Labric-Platforms/sync-agent/internal/uploadqueue"
)

// Uploader PUTs file bodies to presigned URLs.
type Uploader struct {
	HTTPClient *http.Client
	Sync       *syncclient.Client
	Sink       events.Sink
	Logger     *zap.Logger
}

// New returns an Uploader using sync for metadata finalization.
func New(sync *syncclient.Client, sink events.Sink, logger *zap.Logger) *Uploader {
	return &Uploader{
		HTTPClient: sync.HTTPClient,
		Sync:       sync,
		Sink:       sink,
		Logger:     logger,
	}
}

// Upload PUTs item's body to uploadURL with the verdict's content type,
// then best-effort finalizes metadata for fileID. A non-2xx PUT status
// or transport error counts as one failed attempt; a finalize failure
// is logged but does not fail the upload.
func (u *Uploader) Upload(ctx context.Context, item uploadqueue.Item, uploadURL, fileID, contentType string) error {
	u.Sink.FileUploadStatus(events.FileUploadStatus{RelativePath: item.RelPath, Status: events.StatusUploading})

	data, err := os.ReadFile(item.AbsPath)
	if err != nil {
		return fmt.Errorf("read file '%s': %w", item.RelPath, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build upload request for '%s': %w", item.RelPath, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(data))

	resp, err := u.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload '%s' to presigned URL: %w", item.RelPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("upload '%s' failed with status %d: %s", item.RelPath, resp.StatusCode, text)
	}

	if err := u.Sync.FinalizeMetadata(ctx, fileID); err != nil && u.Logger != nil {
		u.Logger.Warn("metadata finalize failed", zap.String("path", item.RelPath), zap.Error(err))
	}

	u.Sink.FileUploadStatus(events.FileUploadStatus{RelativePath: item.RelPath, Status: events.StatusUploaded})
	u.Sink.Uploaded(item.RelPath)
	u.Sink.UploadSuccess(item.RelPath)
	return nil
}
