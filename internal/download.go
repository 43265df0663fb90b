package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// Local fallback embedding model: all-MiniLM-L6-v2 converted to GGUF.
const (
	DefaultLocalModelURL      = "https://huggingface.co/second-state/All-MiniLM-L6-v2-Embedding-GGUF/resolve/main/all-MiniLM-L6-v2-Q5_K_M.gguf"
	DefaultLocalModelFilename = "all-MiniLM-L6-v2-Q5_K_M.gguf"
)

// ProgressFunc receives the bytes written so far and the expected total,
// which is -1 when the server does not announce a length.
type ProgressFunc func(written, total int64)

// LogProgress reports a download in tenths through logger.
func LogProgress(logger *log.Logger, name string) ProgressFunc {
	lastDecile := int64(-1)
	return func(written, total int64) {
		if total <= 0 {
			return
		}
		decile := written * 10 / total
		if decile == lastDecile {
			return
		}
		lastDecile = decile
		logger.Info("downloading model", "file", name, "percent", decile*10)
	}
}

type countingWriter struct {
	written  int64
	total    int64
	progress ProgressFunc
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.written += int64(len(p))
	if w.progress != nil {
		w.progress(w.written, w.total)
	}
	return len(p), nil
}

type DownloaderOption func(*Downloader)

// WithBearerToken authenticates requests, for gated model repositories.
func WithBearerToken(token string) DownloaderOption {
	return func(d *Downloader) { d.token = token }
}

func WithHTTPClient(c *http.Client) DownloaderOption {
	return func(d *Downloader) { d.client = c }
}

func WithProgress(fn ProgressFunc) DownloaderOption {
	return func(d *Downloader) { d.progress = fn }
}

// Downloader keeps model files in a cache directory and fetches each one
// at most once.
type Downloader struct {
	cacheDir string
	token    string
	client   *http.Client
	progress ProgressFunc
}

func NewDownloader(cacheDir string, opts ...DownloaderOption) *Downloader {
	d := &Downloader{cacheDir: cacheDir, client: http.DefaultClient}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Cached reports the path of filename if a non-empty copy is present.
func (d *Downloader) Cached(filename string) (string, bool) {
	path := filepath.Join(d.cacheDir, filename)
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return path, false
	}
	return path, true
}

// Fetch returns the cached path of filename, downloading it from url
// when the cache has no copy.
func (d *Downloader) Fetch(ctx context.Context, url, filename string) (string, error) {
	path, ok := d.Cached(filename)
	if ok {
		return path, nil
	}
	if url == "" {
		return "", fmt.Errorf("model %s is not cached and has no download url", filename)
	}

	if err := os.MkdirAll(d.cacheDir, 0755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	if err := d.download(ctx, url, path); err != nil {
		return "", fmt.Errorf("download %s: %w", filename, err)
	}
	return path, nil
}

// download streams url into a temp file beside dest and renames it into
// place, so an interrupted transfer never leaves a partial model behind.
func (d *Downloader) download(ctx context.Context, url, dest string) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	counter := &countingWriter{total: resp.ContentLength, progress: d.progress}
	n, copyErr := io.Copy(tmp, io.TeeReader(resp.Body, counter))
	if err = errors.Join(copyErr, tmp.Close()); err != nil {
		return err
	}
	if n == 0 {
		return errors.New("empty response body")
	}
	return os.Rename(tmp.Name(), dest)
}

func DefaultCacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "docchat", "models"), nil
}
