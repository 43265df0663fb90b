package internal

import "context"

// Embedder turns text into fixed-length vectors. EmbedBatch preserves
// order and length; Embed is used for queries.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	// Name identifies the provider and model that produced the vectors.
	Name() string
	Close() error
}

// Provider is a chat language model.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Transcriber turns an audio or video file into plain text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}
