// Package syncclient talks to the server's batch-dedup-probe and
// metadata-finalize endpoints.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/Labric-Platforms/sync-agent/internal/digest"
	"github.com/Labric-Platforms/sync-agent/internal/uploadqueue"
)

// MaxBatchSize is the hard ceiling on items sent in one probe request.
const MaxBatchSize = 1000

// TokenSource returns the current bearer token, if any.
type TokenSource func() (string, bool)

// Client is the batch probe + metadata-finalize HTTP client.
type Client struct {
	ServerURL  string
	HTTPClient *http.Client
	Token      TokenSource
}

// New returns a Client with a sane default HTTP client.
func New(serverURL string, token TokenSource) *Client {
	return &Client{
		ServerURL:  serverURL,
		HTTPClient: &http.Client{},
		Token:      token,
	}
}

// VerdictStatus is the server's per-file dedup verdict.
type VerdictStatus string

const (
	VerdictExists      VerdictStatus = "exists"
	VerdictNeedsUpload VerdictStatus = "needs_upload"
)

// Verdict is the server's decision for one probed item.
type Verdict struct {
	Item      uploadqueue.Item
	Status    VerdictStatus
	FileID    string
	UploadURL string
	ContentType string
}

type probeFileRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	CRC32C      string `json:"crc32c"`
}

type probeRequest struct {
	Files []probeFileRequest `json:"files"`
}

type probeFileResponse struct {
	FileName  string `json:"file_name"`
	CRC32C    string `json:"crc32c"`
	Status    string `json:"status"`
	FileID    string `json:"file_id"`
	UploadURL string `json:"upload_url"`
}

type probeResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Files   []probeFileResponse `json:"files"`
}

// ProbeBatch reads up to MaxBatchSize items' content, computes their
// CRC32C, and asks the server which ones it already holds. Items whose
// body can't be read are silently excluded from the batch (the
// scheduler will re-observe them if re-enqueued). A transport or HTTP
// failure fails the whole batch; the caller is responsible for
// re-enqueuing every original item without incrementing retry counts.
func (c *Client) ProbeBatch(ctx context.Context, items []uploadqueue.Item) ([]Verdict, error) {
	if len(items) > MaxBatchSize {
		items = items[:MaxBatchSize]
	}

	type prepared struct {
		item        uploadqueue.Item
		contentType string
		crc32c      string
	}
	var ok []prepared
	for _, item := range items {
		sum, err := digest.CRC32CFile(item.AbsPath)
		if err != nil {
			continue
		}
		ok = append(ok, prepared{item: item, contentType: contentType(item.RelPath), crc32c: sum})
	}
	if len(ok) == 0 {
		return nil, nil
	}

	req := probeRequest{Files: make([]probeFileRequest, 0, len(ok))}
	byName := make(map[string]prepared, len(ok))
	for _, p := range ok {
		req.Files = append(req.Files, probeFileRequest{
			FileName:    p.item.RelPath,
			ContentType: p.contentType,
			CRC32C:      p.crc32c,
		})
		byName[p.item.RelPath] = p
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal batch probe request: %w", err)
	}

	url := c.ServerURL + "/api/sync/get_presigned_batch"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build batch probe request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", uuid.NewString())
	if token, has := c.Token(); has {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("batch probe request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("batch probe failed with status %d: %s", resp.StatusCode, text)
	}

	var parsed probeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode batch probe response: %w", err)
	}

	verdicts := make([]Verdict, 0, len(parsed.Files))
	for _, f := range parsed.Files {
		p, found := byName[f.FileName]
		if !found {
			continue
		}
		verdicts = append(verdicts, Verdict{
			Item:        p.item,
			Status:      VerdictStatus(f.Status),
			FileID:      f.FileID,
			UploadURL:   f.UploadURL,
			ContentType: p.contentType,
		})
	}
	return verdicts, nil
}

// FinalizeMetadata notifies the server that fileID's body has been
// stored. A failure here is logged by the caller as a non-fatal
// warning; the upload already succeeded.
func (c *Client) FinalizeMetadata(ctx context.Context, fileID string) error {
	url := fmt.Sprintf("%s/api/sync/%s/update_metadata", c.ServerURL, fileID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	if token, has := c.Token(); has {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("metadata finalize for %s failed with status %d", fileID, resp.StatusCode)
	}
	return nil
}

// contentType guesses a MIME type from path's extension, defaulting to
// application/octet-stream.
func contentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
