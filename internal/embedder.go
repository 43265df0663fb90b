package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// checkText is embedded once to check a provider before it is selected.
const checkText = "test"

// EmbedderConstructor builds a provider; it may dial or load a model.
type EmbedderConstructor func(ctx context.Context) (Embedder, error)

// EmbedderFactory selects the remote provider when it embeds a test string
// and otherwise the local one. The selection is made once and then reused for
// every caller.
type EmbedderFactory struct {
	remote EmbedderConstructor
	local  EmbedderConstructor
	logger *log.Logger

	mu       sync.Mutex
	selected Embedder
}

func NewEmbedderFactory(remote, local EmbedderConstructor, logger *log.Logger) *EmbedderFactory {
	return &EmbedderFactory{
		remote: remote,
		local:  local,
		logger: logger,
	}
}

// Acquire returns the selected provider, choosing it on first call. A
// failure of both providers is not cached, so a later call may retry.
func (f *EmbedderFactory) Acquire(ctx context.Context) (Embedder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.selected != nil {
		return f.selected, nil
	}

	emb, err := f.choose(ctx)
	if err != nil {
		return nil, err
	}
	f.selected = emb
	return emb, nil
}

// Selected returns the provider chosen so far, if any.
func (f *EmbedderFactory) Selected() (Embedder, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selected, f.selected != nil
}

func (f *EmbedderFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.selected == nil {
		return nil
	}
	err := f.selected.Close()
	f.selected = nil
	return err
}

func (f *EmbedderFactory) choose(ctx context.Context) (Embedder, error) {
	var remoteErr error
	if f.remote != nil {
		emb, err := f.remote(ctx)
		if err == nil {
			if err = CheckEmbedder(ctx, emb); err != nil {
				_ = emb.Close()
			}
		}
		if err == nil {
			f.logger.Info("embedding provider selected", "provider", emb.Name(), "dimension", emb.Dimension())
			return emb, nil
		}
		remoteErr = err
		f.logger.Warn("remote embeddings unavailable, falling back to local model", "err", err)
	}

	if f.local == nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, errors.Join(remoteErr, errors.New("no local provider configured")))
	}

	emb, err := f.local(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: local provider: %w", ErrEmbedding, errors.Join(remoteErr, err))
	}

	attrs := []any{"provider", emb.Name(), "dimension", emb.Dimension()}
	if d, ok := emb.(interface{ Device() Device }); ok {
		attrs = append(attrs, "device", d.Device())
	}
	f.logger.Info("embedding provider selected", attrs...)

	return emb, nil
}

// CheckEmbedder embeds a trivial string and checks the response shape.
func CheckEmbedder(ctx context.Context, emb Embedder) error {
	vecs, err := emb.EmbedBatch(ctx, []string{checkText})
	if err != nil {
		return fmt.Errorf("check embed: %w", err)
	}
	if len(vecs) != 1 {
		return fmt.Errorf("%w: check returned %d vectors", ErrEmbedding, len(vecs))
	}
	if len(vecs[0]) == 0 {
		return fmt.Errorf("%w: check returned an empty vector", ErrEmbedding)
	}
	if dim := emb.Dimension(); dim > 0 && dim != len(vecs[0]) {
		return fmt.Errorf("%w: check vector has %d dimensions, provider reports %d", ErrEmbedding, len(vecs[0]), dim)
	}
	return nil
}

// DefaultEmbedderFactory prefers the configured remote endpoint and falls
// back to the local GGUF model, downloading it into the cache on first use.
func DefaultEmbedderFactory(cfg *Config, logger *log.Logger) *EmbedderFactory {
	ec := cfg.Embeddings

	remote := func(ctx context.Context) (Embedder, error) {
		return NewRemoteEmbedder(RemoteEmbedderConfig{
			APIKey:            ec.APIKey,
			BaseURL:           ec.BaseURL,
			Model:             ec.Model,
			BatchSize:         ec.BatchSize,
			RequestsPerSecond: ec.RequestsPerSecond,
			Timeout:           cfg.LLM.Timeout,
			MaxRetries:        2,
		})
	}

	local := func(ctx context.Context) (Embedder, error) {
		cacheDir := ec.Local.CacheDir
		if cacheDir == "" {
			dir, err := DefaultCacheDir()
			if err != nil {
				return nil, err
			}
			cacheDir = dir
		}

		dl := NewDownloader(cacheDir,
			WithBearerToken(ec.Local.Token),
			WithProgress(LogProgress(logger, ec.Local.ModelFile)),
		)
		if _, cached := dl.Cached(ec.Local.ModelFile); !cached {
			logger.Info("local embedding model not cached", "file", ec.Local.ModelFile, "cache", cacheDir)
		}
		path, err := dl.Fetch(ctx, ec.Local.ModelURL, ec.Local.ModelFile)
		if err != nil {
			return nil, fmt.Errorf("fetch local model: %w", err)
		}
		return NewLocalEmbedder(path, WithDevice(ResolveDevice(ec.Local.GPU)))
	}

	return NewEmbedderFactory(remote, local, logger)
}
