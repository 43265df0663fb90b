package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/anthropic"
	"charm.land/fantasy/providers/openai"
	"charm.land/fantasy/providers/openrouter"
)

type FantasyConfig struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int64
	// Timeout bounds a single completion; zero means no limit.
	Timeout time.Duration
}

var _ Provider = (*FantasyProvider)(nil)

// FantasyProvider is a chat model reached through one of the fantasy
// provider backends.
type FantasyProvider struct {
	model       fantasy.LanguageModel
	name        string
	modelID     string
	temperature float64
	maxTokens   int64
	timeout     time.Duration
}

func NewFantasyProvider(ctx context.Context, cfg FantasyConfig) (*FantasyProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("provider %s: no api key configured", cfg.Provider)
	}

	var provider fantasy.Provider
	var err error

	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{openai.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		provider, err = openai.New(opts...)

	case "anthropic":
		opts := []anthropic.Option{anthropic.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		provider, err = anthropic.New(opts...)

	case "openrouter", "":
		opts := []openrouter.Option{openrouter.WithAPIKey(cfg.APIKey)}
		provider, err = openrouter.New(opts...)

	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}

	model, err := provider.LanguageModel(ctx, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("get language model: %w", err)
	}

	return &FantasyProvider{
		model:       model,
		name:        cfg.Provider,
		modelID:     cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
	}, nil
}

func (p *FantasyProvider) ModelID() string {
	return p.modelID
}

func (p *FantasyProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	agent := fantasy.NewAgent(p.model)

	call := fantasy.AgentCall{Prompt: prompt}
	if p.maxTokens > 0 {
		call.MaxOutputTokens = &p.maxTokens
	}
	temperature := p.temperature
	call.Temperature = &temperature

	result, err := agent.Generate(ctx, call)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("generate: timed out after %s: %w", p.timeout, err)
		}
		return "", fmt.Errorf("generate: %w", err)
	}

	text := strings.TrimSpace(result.Response.Content.Text())
	if text == "" {
		return "", errors.New("generate: empty response")
	}
	return text, nil
}

// DefaultProviderFactory builds chat models from the llm section of cfg.
func DefaultProviderFactory(cfg *Config) ProviderFactory {
	return func(ctx context.Context, model ModelEntry) (Provider, error) {
		return NewFantasyProvider(ctx, FantasyConfig{
			Provider:    cfg.LLM.Provider,
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       model.ID,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.Timeout,
		})
	}
}
