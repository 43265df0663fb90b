package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"golang.org/x/time/rate"
)

const (
	DefaultOpenRouterURL      = "https://openrouter.ai/api/v1"
	DefaultEmbeddingModel     = "text-embedding-ada-002"
	DefaultTranscriptionModel = "whisper-1"
	defaultEmbedBatch         = 64
)

type RemoteEmbedderConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	BatchSize         int
	RequestsPerSecond float64
	Timeout           time.Duration
	MaxRetries        int
}

var _ Embedder = (*RemoteEmbedder)(nil)

// RemoteEmbedder calls an OpenAI-compatible embeddings endpoint, by
// default OpenRouter.
type RemoteEmbedder struct {
	client    openai.Client
	model     string
	batchSize int
	limiter   *rate.Limiter
	dimension atomic.Int64
}

func NewRemoteEmbedder(cfg RemoteEmbedderConfig) (*RemoteEmbedder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: no api key configured", ErrEmbedding)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenRouterURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultEmbeddingModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultEmbedBatch
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &RemoteEmbedder{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		batchSize: cfg.BatchSize,
		limiter:   rate.NewLimiter(limit, 1),
	}, nil
}

func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch := texts[start:end]

		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch},
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrEmbedding, len(resp.Data), len(batch))
		}

		for i, d := range resp.Data {
			idx := int(d.Index)
			if idx < 0 || idx >= len(batch) {
				idx = i
			}
			vec, err := e.accept(d.Embedding)
			if err != nil {
				return nil, err
			}
			out[start+idx] = vec
		}
	}

	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("%w: missing embedding for input %d", ErrEmbedding, i)
		}
	}
	return out, nil
}

// accept converts a response vector and pins the provider dimension on
// first use.
func (e *RemoteEmbedder) accept(raw []float64) ([]float32, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrEmbedding)
	}

	dim := int64(len(raw))
	if !e.dimension.CompareAndSwap(0, dim) && e.dimension.Load() != dim {
		return nil, fmt.Errorf("%w: embedding dimension changed from %d to %d", ErrEmbedding, e.dimension.Load(), dim)
	}

	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (e *RemoteEmbedder) Dimension() int {
	return int(e.dimension.Load())
}

func (e *RemoteEmbedder) Name() string {
	return "remote:" + e.model
}

func (e *RemoteEmbedder) Close() error {
	return nil
}

type WhisperConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

var _ Transcriber = (*WhisperTranscriber)(nil)

// WhisperTranscriber uploads media files to an OpenAI-compatible
// audio transcription endpoint.
type WhisperTranscriber struct {
	client openai.Client
	model  string
}

func NewWhisperTranscriber(cfg WhisperConfig) (*WhisperTranscriber, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("transcription: no api key configured")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultTranscriptionModel
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &WhisperTranscriber{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open media: %w", err)
	}
	defer f.Close()

	resp, err := w.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  f,
		Model: openai.AudioModel(w.model),
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", errors.New("transcribe: empty transcript")
	}
	return text, nil
}

// DefaultTranscriber builds the whisper transcriber from cfg. It fails
// when no transcription key is configured.
func DefaultTranscriber(cfg *Config) (Transcriber, error) {
	return NewWhisperTranscriber(WhisperConfig{
		APIKey:  cfg.Transcription.APIKey,
		BaseURL: cfg.Transcription.BaseURL,
		Model:   cfg.Transcription.Model,
		Timeout: cfg.LLM.Timeout,
	})
}
