package internal

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedderFactoryPrefersRemote(t *testing.T) {
	remote := newBowEmbedder("remote:test")
	local := newBowEmbedder("local:test")
	var localBuilt atomic.Int64

	f := NewEmbedderFactory(
		func(context.Context) (Embedder, error) { return remote, nil },
		func(context.Context) (Embedder, error) {
			localBuilt.Add(1)
			return local, nil
		},
		DiscardLogger(),
	)

	emb, err := f.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "remote:test", emb.Name())
	assert.Equal(t, int64(0), localBuilt.Load())
}

func TestEmbedderFactoryFallbackIsSticky(t *testing.T) {
	ctx := context.Background()
	remote := &failingEmbedder{}
	local := newBowEmbedder("local:test")
	var remoteBuilt, localBuilt atomic.Int64

	var logs bytes.Buffer
	f := NewEmbedderFactory(
		func(context.Context) (Embedder, error) {
			remoteBuilt.Add(1)
			return remote, nil
		},
		func(context.Context) (Embedder, error) {
			localBuilt.Add(1)
			return local, nil
		},
		log.New(&logs),
	)

	for i := 0; i < 5; i++ {
		emb, err := f.Acquire(ctx)
		require.NoError(t, err)
		if emb.Name() != "local:test" {
			t.Fatalf("call %d routed to %s", i, emb.Name())
		}
		_, err = emb.Embed(ctx, "query")
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), remoteBuilt.Load(), "remote must be checked once")
	assert.Equal(t, int64(1), remote.calls.Load())
	assert.Equal(t, int64(1), localBuilt.Load())
	assert.Equal(t, int64(5), local.calls.Load())

	assert.Contains(t, logs.String(), "falling back to local model")
	assert.Contains(t, logs.String(), "embedding provider selected")

	selected, ok := f.Selected()
	require.True(t, ok)
	assert.Equal(t, "local:test", selected.Name())
}

func TestEmbedderFactoryRemoteConstructorError(t *testing.T) {
	f := NewEmbedderFactory(
		func(context.Context) (Embedder, error) { return nil, errors.New("no api key") },
		func(context.Context) (Embedder, error) { return newBowEmbedder("local:test"), nil },
		DiscardLogger(),
	)

	emb, err := f.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "local:test", emb.Name())
}

func TestEmbedderFactoryTotalFailureIsNotCached(t *testing.T) {
	ctx := context.Background()
	var attempts atomic.Int64
	localErr := errors.New("model missing")

	f := NewEmbedderFactory(
		func(context.Context) (Embedder, error) { return &failingEmbedder{}, nil },
		func(context.Context) (Embedder, error) {
			if attempts.Add(1) == 1 {
				return nil, localErr
			}
			return newBowEmbedder("local:test"), nil
		},
		DiscardLogger(),
	)

	_, err := f.Acquire(ctx)
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.ErrorIs(t, err, localErr)

	emb, err := f.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, "local:test", emb.Name())
}

func TestEmbedderFactoryNoLocal(t *testing.T) {
	f := NewEmbedderFactory(func(context.Context) (Embedder, error) { return &failingEmbedder{}, nil }, nil, DiscardLogger())

	_, err := f.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrEmbedding)
}

type shapeEmbedder struct {
	bowEmbedder
	vecs [][]float32
	dim  int
}

func (e *shapeEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) { return e.vecs, nil }
func (e *shapeEmbedder) Dimension() int                                           { return e.dim }

func TestCheckEmbedderShape(t *testing.T) {
	ctx := context.Background()

	tests := map[string]struct {
		emb     *shapeEmbedder
		wantErr bool
	}{
		"ok":              {&shapeEmbedder{vecs: [][]float32{{1, 2, 3}}, dim: 3}, false},
		"unknown dim":     {&shapeEmbedder{vecs: [][]float32{{1, 2}}}, false},
		"no vectors":      {&shapeEmbedder{}, true},
		"empty vector":    {&shapeEmbedder{vecs: [][]float32{{}}}, true},
		"wrong dimension": {&shapeEmbedder{vecs: [][]float32{{1, 2}}, dim: 3}, true},
		"too many":        {&shapeEmbedder{vecs: [][]float32{{1}, {2}}}, true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := CheckEmbedder(ctx, tt.emb)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrEmbedding)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRemoteEmbedderRequiresKey(t *testing.T) {
	_, err := NewRemoteEmbedder(RemoteEmbedderConfig{})
	assert.ErrorIs(t, err, ErrEmbedding)

	emb, err := NewRemoteEmbedder(RemoteEmbedderConfig{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "remote:"+DefaultEmbeddingModel, emb.Name())
	assert.Equal(t, 0, emb.Dimension())
}
