package uploader

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Labric-Platforms/sync-agent/internal/events"
	"github.com/Labric-Platforms/sync-agent/internal/syncclient"
	"github.com/Labric-Platforms/sync-agent/internal/uploadqueue"
)

func writeTempFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestUpload_SuccessEmitsUploadingThenUploaded(t *testing.T) {
	const body = "file contents"
	path := writeTempFile(t, body)

	var gotBody []byte
	var gotContentType string
	putSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer putSrv.Close()

	var finalizeCalled bool
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		finalizeCalled = true
		w.WriteHeader(http.StatusOK)
	}))
	defer apiSrv.Close()

	sc := syncclient.New(apiSrv.URL, func() (string, bool) { return "", false })
	sink := &recordingSink{}
	up := New(sc, sink, nil)

	item := uploadqueue.Item{AbsPath: path, RelPath: "payload.bin"}
	err := up.Upload(t.Context(), item, putSrv.URL, "file-1", "text/plain")
	require.NoError(t, err)

	require.Equal(t, body, string(gotBody))
	require.Equal(t, "text/plain", gotContentType)
	require.True(t, finalizeCalled)

	require.Len(t, sink.statuses, 2)
	require.Equal(t, events.StatusUploading, sink.statuses[0].Status)
	require.Equal(t, events.StatusUploaded, sink.statuses[1].Status)
	require.Equal(t, []string{"payload.bin"}, sink.uploaded)
	require.Equal(t, []string{"payload.bin"}, sink.uploadSuccess)
}

func TestUpload_NonSuccessStatusFails(t *testing.T) {
	path := writeTempFile(t, "x")

	putSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer putSrv.Close()

	sc := syncclient.New("http://unused.invalid", func() (string, bool) { return "", false })
	sink := &recordingSink{}
	up := New(sc, sink, nil)

	err := up.Upload(t.Context(), uploadqueue.Item{AbsPath: path, RelPath: "x"}, putSrv.URL, "f", "application/octet-stream")
	require.Error(t, err)
	// No terminal "uploaded" status on PUT failure; only the transient
	// "uploading" status was emitted here (the scheduler decides the
	// terminal outcome: retry or failed).
	require.Len(t, sink.statuses, 1)
	require.Equal(t, events.StatusUploading, sink.statuses[0].Status)
}

func TestUpload_MetadataFinalizeFailureDoesNotFailUpload(t *testing.T) {
	path := writeTempFile(t, "x")

	putSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer putSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer apiSrv.Close()

	sc := syncclient.New(apiSrv.URL, func() (string, bool) { return "", false })
	sink := &recordingSink{}
	up := New(sc, sink, nil)

	err := up.Upload(t.Context(), uploadqueue.Item{AbsPath: path, RelPath: "x"}, putSrv.URL, "f", "application/octet-stream")
	require.NoError(t, err)
	require.Equal(t, []string{"x"}, sink.uploaded)
}

func TestUpload_MissingFileFails(t *testing.T) {
	sc := syncclient.New("http://unused.invalid", func() (string, bool) { return "", false })
	sink := &recordingSink{}
	up := New(sc, sink, nil)

	err := up.Upload(t.Context(), uploadqueue.Item{AbsPath: "/does/not/exist", RelPath: "x"}, "http://unused.invalid/put", "f", "application/octet-stream")
	require.Error(t, err)
}

type recordingSink struct {
	statuses      []events.FileUploadStatus
	uploaded      []string
	uploadSuccess []string
	failed        []string
}

func (r *recordingSink) FileChange(events.FileChange) {}
func (r *recordingSink) FileUploadStatus(evt events.FileUploadStatus) {
	r.statuses = append(r.statuses, evt)
}
func (r *recordingSink) Uploaded(relativePath string)      { r.uploaded = append(r.uploaded, relativePath) }
func (r *recordingSink) UploadSuccess(relativePath string) { r.uploadSuccess = append(r.uploadSuccess, relativePath) }
func (r *recordingSink) UploadFailed(relativePath, _ string) {
	r.failed = append(r.failed, relativePath)
}
