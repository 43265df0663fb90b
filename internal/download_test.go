package internal

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloaderFetchesOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "Bearer hf-secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("GGUF model bytes"))
	}))
	defer srv.Close()

	var last int64
	dir := filepath.Join(t.TempDir(), "models")
	dl := NewDownloader(dir,
		WithBearerToken("hf-secret"),
		WithProgress(func(written, _ int64) { last = written }),
	)

	_, cached := dl.Cached("model.gguf")
	assert.False(t, cached)

	path, err := dl.Fetch(context.Background(), srv.URL+"/model.gguf", "model.gguf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "model.gguf"), path)
	assert.Equal(t, int64(len("GGUF model bytes")), last)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "GGUF model bytes", string(data))

	_, err = dl.Fetch(context.Background(), srv.URL+"/model.gguf", "model.gguf")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestDownloaderFailureLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dl := NewDownloader(dir)

	_, err := dl.Fetch(context.Background(), srv.URL, "model.gguf")
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloaderNeedsURLWhenUncached(t *testing.T) {
	_, err := NewDownloader(t.TempDir()).Fetch(context.Background(), "", "model.gguf")
	assert.Error(t, err)
}

func TestLogProgressReportsDeciles(t *testing.T) {
	var buf bytes.Buffer
	progress := LogProgress(NewLogger(LogConfig{Level: "info"}, &buf), "model.gguf")

	for written := int64(0); written <= 100; written += 5 {
		progress(written, 100)
	}
	progress(50, -1)

	assert.Equal(t, 11, strings.Count(buf.String(), "downloading model"))
}
