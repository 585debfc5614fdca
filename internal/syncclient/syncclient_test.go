package syncclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Labric-Platforms/sync-agent/internal/digest"
	"github.com/Labric-Platforms/sync-agent/internal/uploadqueue"
)

func noToken() (string, bool) { return "", false }

func writeTempFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestProbeBatch_ParsesVerdicts(t *testing.T) {
	path := writeTempFile(t, "b.bin", "server already has this")
	wantCRC, err := digest.CRC32CFile(path)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/sync/get_presigned_batch", r.URL.Path)

		var req probeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Files, 1)
		require.Equal(t, wantCRC, req.Files[0].CRC32C)

		json.NewEncoder(w).Encode(probeResponse{
			Success: true,
			Files: []probeFileResponse{
				{FileName: req.Files[0].FileName, Status: "exists", FileID: "f1"},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, noToken)
	verdicts, err := c.ProbeBatch(t.Context(), []uploadqueue.Item{{AbsPath: path, RelPath: "b.bin"}})
	require.NoError(t, err)
	require.Len(t, verdicts, 1)
	require.Equal(t, VerdictExists, verdicts[0].Status)
}

func TestProbeBatch_NeedsUploadCarriesURLAndFileID(t *testing.T) {
	path := writeTempFile(t, "c.bin", "new content")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req probeRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(probeResponse{
			Success: true,
			Files: []probeFileResponse{
				{FileName: req.Files[0].FileName, Status: "needs_upload", FileID: "f2", UploadURL: "https://store.example/put/f2"},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, noToken)
	verdicts, err := c.ProbeBatch(t.Context(), []uploadqueue.Item{{AbsPath: path, RelPath: "c.bin"}})
	require.NoError(t, err)
	require.Len(t, verdicts, 1)
	require.Equal(t, VerdictNeedsUpload, verdicts[0].Status)
	require.Equal(t, "f2", verdicts[0].FileID)
	require.Equal(t, "https://store.example/put/f2", verdicts[0].UploadURL)
}

func TestProbeBatch_UnreadableFileExcludedNotFailed(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone.txt")
	present := writeTempFile(t, "present.txt", "ok")

	var gotFiles int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req probeRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotFiles = len(req.Files)
		json.NewEncoder(w).Encode(probeResponse{
			Success: true,
			Files: []probeFileResponse{
				{FileName: req.Files[0].FileName, Status: "exists", FileID: "f1"},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, noToken)
	verdicts, err := c.ProbeBatch(t.Context(), []uploadqueue.Item{
		{AbsPath: missing, RelPath: "gone.txt"},
		{AbsPath: present, RelPath: "present.txt"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, gotFiles)
	require.Len(t, verdicts, 1)
	require.Equal(t, "present.txt", verdicts[0].Item.RelPath)
}

func TestProbeBatch_HTTPFailureReturnsError(t *testing.T) {
	path := writeTempFile(t, "a.txt", "x")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, noToken)
	_, err := c.ProbeBatch(t.Context(), []uploadqueue.Item{{AbsPath: path, RelPath: "a.txt"}})
	require.Error(t, err)
}

func TestProbeBatch_SendsBearerTokenWhenAvailable(t *testing.T) {
	path := writeTempFile(t, "a.txt", "x")

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req probeRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(probeResponse{Files: []probeFileResponse{
			{FileName: req.Files[0].FileName, Status: "exists"},
		}})
	}))
	defer srv.Close()

	c := New(srv.URL, func() (string, bool) { return "secret-tok", true })
	_, err := c.ProbeBatch(t.Context(), []uploadqueue.Item{{AbsPath: path, RelPath: "a.txt"}})
	require.NoError(t, err)
	require.Equal(t, "Bearer secret-tok", gotAuth)
}

func TestFinalizeMetadata_PostsToFileIDPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/sync/abc123/update_metadata", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, noToken)
	require.NoError(t, c.FinalizeMetadata(t.Context(), "abc123"))
}

func TestFinalizeMetadata_NonOKReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, noToken)
	require.Error(t, c.FinalizeMetadata(t.Context(), "abc123"))
}
