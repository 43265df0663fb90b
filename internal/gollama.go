package internal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"unsafe"

	gollama "github.com/dianlight/gollama.cpp"
)

// DefaultLocalContext is the token window of the MiniLM family; longer
// chunks are truncated before decoding.
const DefaultLocalContext = 512

var _ Embedder = (*LocalEmbedder)(nil)

// LocalEmbedder runs a GGUF sentence embedding model in process through
// llama.cpp. It is the offline fallback for the remote provider.
// Calls are serialized; llama contexts are not safe for concurrent use.
type LocalEmbedder struct {
	mu        sync.Mutex
	model     gollama.LlamaModel
	lctx      gollama.LlamaContext
	window    int
	dimension int
	device    Device
	name      string
}

type LocalEmbedderOption func(*localOptions)

type localOptions struct {
	verbose bool
	device  Device
	window  int
}

// WithLlamaLogs keeps llama.cpp's own logging on stderr.
func WithLlamaLogs() LocalEmbedderOption {
	return func(o *localOptions) { o.verbose = true }
}

func WithDevice(d Device) LocalEmbedderOption {
	return func(o *localOptions) { o.device = d }
}

// WithTokenLimit truncates inputs to fewer tokens than the context holds.
func WithTokenLimit(tokens int) LocalEmbedderOption {
	return func(o *localOptions) { o.window = min(tokens, DefaultLocalContext) }
}

func NewLocalEmbedder(modelPath string, opts ...LocalEmbedderOption) (*LocalEmbedder, error) {
	o := localOptions{window: DefaultLocalContext}
	for _, opt := range opts {
		opt(&o)
	}
	if o.device == "" {
		o.device = DetectHardware()
	}
	if o.window <= 0 {
		o.window = DefaultLocalContext
	}

	if err := gollama.Backend_init(); err != nil {
		return nil, fmt.Errorf("%w: init llama backend: %w", ErrEmbedding, err)
	}
	if !o.verbose {
		_ = gollama.Log_disable()
	}

	model, lctx, err := loadGGUF(modelPath, o)
	if err != nil {
		gollama.Backend_free()
		return nil, fmt.Errorf("%w: %s: %w", ErrEmbedding, filepath.Base(modelPath), err)
	}

	return &LocalEmbedder{
		model:     model,
		lctx:      lctx,
		window:    o.window,
		dimension: int(gollama.Model_n_embd(model)),
		device:    o.device,
		name:      "local:" + strings.TrimSuffix(filepath.Base(modelPath), filepath.Ext(modelPath)),
	}, nil
}

// loadGGUF opens the model with every layer offloaded when the device is
// accelerated and creates a pooled embedding context over it.
func loadGGUF(path string, o localOptions) (gollama.LlamaModel, gollama.LlamaContext, error) {
	mp := gollama.Model_default_params()
	mp.NGpuLayers = 0
	if o.device.Accelerated() {
		mp.NGpuLayers = 99
	}

	model, err := gollama.Model_load_from_file(path, mp)
	if err != nil {
		return 0, 0, fmt.Errorf("load model: %w", err)
	}
	if gollama.Model_n_embd(model) <= 0 {
		gollama.Model_free(model)
		return 0, 0, errors.New("model has no embedding dimension")
	}

	cp := gollama.Context_default_params()
	cp.Embeddings = 1
	cp.NCtx = DefaultLocalContext

	lctx, err := gollama.Init_from_model(model, cp)
	if err != nil {
		gollama.Model_free(model)
		return 0, 0, fmt.Errorf("create context: %w", err)
	}
	gollama.Set_embeddings(lctx, true)
	return model, lctx, nil
}

func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tokens, err := gollama.Tokenize(e.model, text, true, false)
	if err != nil {
		return nil, fmt.Errorf("%w: tokenize: %w", ErrEmbedding, err)
	}
	if len(tokens) == 0 {
		return make([]float32, e.dimension), nil
	}
	if len(tokens) > e.window {
		tokens = tokens[:e.window]
	}

	vec, err := e.decode(tokens)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	return l2Normalize(vec), nil
}

// decode runs tokens as sequence 0 and returns its pooled embedding.
// e.mu must be held.
func (e *LocalEmbedder) decode(tokens []gollama.LlamaToken) ([]float32, error) {
	gollama.Memory_clear(e.lctx, false)

	n := int32(len(tokens))
	batch := gollama.Batch_init(n, 0, 1)
	defer gollama.Batch_free(batch)

	tok := unsafe.Slice(batch.Token, n)
	pos := unsafe.Slice(batch.Pos, n)
	nSeq := unsafe.Slice(batch.NSeqId, n)
	seq := unsafe.Slice(batch.SeqId, n)
	logits := unsafe.Slice(batch.Logits, n)
	for i := range n {
		tok[i] = tokens[i]
		pos[i] = gollama.LlamaPos(i)
		nSeq[i] = 1
		*seq[i] = 0
		logits[i] = 1
	}
	batch.NTokens = n

	if err := gollama.Decode(e.lctx, batch); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	pooled := gollama.Get_embeddings_seq(e.lctx, 0)
	if pooled == nil {
		return nil, errors.New("model returned no pooled embedding")
	}
	return copyFloats(pooled, e.dimension), nil
}

func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		out = append(out, vec)
	}
	return out, nil
}

func (e *LocalEmbedder) Dimension() int { return e.dimension }
func (e *LocalEmbedder) Name() string   { return e.name }
func (e *LocalEmbedder) Device() Device { return e.device }

func (e *LocalEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lctx == 0 && e.model == 0 {
		return nil
	}
	gollama.Free(e.lctx)
	gollama.Model_free(e.model)
	gollama.Backend_free()
	e.lctx, e.model = 0, 0
	return nil
}

// copyFloats copies n floats out of llama-owned memory.
func copyFloats(ptr *float32, n int) []float32 {
	out := make([]float32, n)
	copy(out, unsafe.Slice(ptr, n))
	return out
}

func l2Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}

	norm := math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
