package internal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"
)

const bowDimension = 32

// bowEmbedder embeds text as a bag of words, giving every new word its
// own dimension.
type bowEmbedder struct {
	name string

	mu    sync.Mutex
	vocab map[string]int
	calls atomic.Int64
}

func newBowEmbedder(name string) *bowEmbedder {
	return &bowEmbedder{name: name, vocab: map[string]int{}}
}

func (e *bowEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	e.mu.Lock()
	defer e.mu.Unlock()

	vec := make([]float32, bowDimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		i, ok := e.vocab[w]
		if !ok {
			i = len(e.vocab) % bowDimension
			e.vocab[w] = i
		}
		vec[i]++
	}
	if len(words) == 0 {
		vec[bowDimension-1] = 1
	}
	return vec, nil
}

func (e *bowEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *bowEmbedder) Dimension() int { return bowDimension }
func (e *bowEmbedder) Name() string   { return e.name }
func (e *bowEmbedder) Close() error   { return nil }

// failingEmbedder fails every call.
type failingEmbedder struct {
	calls atomic.Int64
}

func (e *failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	e.calls.Add(1)
	return nil, errors.New("401 unauthorized")
}

func (e *failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	e.calls.Add(1)
	return nil, errors.New("401 unauthorized")
}

func (e *failingEmbedder) Dimension() int { return 0 }
func (e *failingEmbedder) Name() string   { return "remote:test" }
func (e *failingEmbedder) Close() error   { return nil }

// stubLLM answers prompts with a scripted function and records them.
type stubLLM struct {
	mu      sync.Mutex
	prompts []string
	respond func(prompt string) (string, error)
}

func (s *stubLLM) Complete(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	return s.respond(prompt)
}

func (s *stubLLM) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

func isCondensePrompt(prompt string) bool {
	return strings.Contains(prompt, "Standalone question:")
}

// fakeTranscriber returns fixed text for any media file.
type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(context.Context, string) (string, error) {
	return f.text, f.err
}

func staticEmbedders(emb Embedder) *EmbedderFactory {
	return NewEmbedderFactory(func(context.Context) (Embedder, error) { return emb, nil }, nil, DiscardLogger())
}
