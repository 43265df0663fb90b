package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ModelEntry maps a display label to a provider model id.
type ModelEntry struct {
	Label string `yaml:"label"`
	ID    string `yaml:"id"`
}

type LLMConfig struct {
	Provider     string        `yaml:"provider"`
	APIKey       string        `yaml:"api_key,omitempty"`
	BaseURL      string        `yaml:"base_url,omitempty"`
	DefaultModel string        `yaml:"default_model"`
	Models       []ModelEntry  `yaml:"models"`
	Temperature  float64       `yaml:"temperature"`
	MaxTokens    int64         `yaml:"max_tokens"`
	Timeout      time.Duration `yaml:"timeout"`
}

type LocalEmbeddingsConfig struct {
	ModelURL  string `yaml:"model_url"`
	ModelFile string `yaml:"model_file"`
	CacheDir  string `yaml:"cache_dir,omitempty"`
	GPU       string `yaml:"gpu"`
	Token     string `yaml:"token,omitempty"`
}

type EmbeddingsConfig struct {
	APIKey            string                `yaml:"api_key,omitempty"`
	BaseURL           string                `yaml:"base_url,omitempty"`
	Model             string                `yaml:"model"`
	BatchSize         int                   `yaml:"batch_size"`
	RequestsPerSecond float64               `yaml:"requests_per_second"`
	Local             LocalEmbeddingsConfig `yaml:"local"`
}

type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

type IndexConfig struct {
	Path  string `yaml:"path,omitempty"`
	Trees int    `yaml:"trees"`
}

type RetrievalConfig struct {
	TopK         int `yaml:"top_k"`
	SourcesShown int `yaml:"sources_shown"`
	PreviewChars int `yaml:"preview_chars"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn,omitempty"`
}

type ExportConfig struct {
	Dir  string `yaml:"dir,omitempty"`
	Font string `yaml:"font,omitempty"`
}

type TranscriptionConfig struct {
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type PromptsConfig struct {
	Condense string `yaml:"condense,omitempty"`
	Answer   string `yaml:"answer,omitempty"`
}

type Config struct {
	LLM           LLMConfig           `yaml:"llm"`
	Embeddings    EmbeddingsConfig    `yaml:"embeddings"`
	Chunking      ChunkingConfig      `yaml:"chunking"`
	Index         IndexConfig         `yaml:"index"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Store         StoreConfig         `yaml:"store"`
	Export        ExportConfig        `yaml:"export"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Log           LogConfig           `yaml:"log"`
	Prompts       PromptsConfig       `yaml:"prompts,omitempty"`
}

const DefaultModelLabel = "Claude Sonnet 4"

// DefaultModels is the chat model catalog offered for selection.
var DefaultModels = []ModelEntry{
	{Label: "OpenAI: GPT-4.1", ID: "openai/gpt-4.1"},
	{Label: "Claude Sonnet 4", ID: "anthropic/claude-sonnet-4"},
	{Label: "Google: Gemini 2.0 Flash", ID: "google/gemini-2.0-flash-001"},
	{Label: "Google: Gemini 2.5 Flash", ID: "google/gemini-2.5-flash"},
	{Label: "DeepSeek: DeepSeek V3 0324", ID: "deepseek/deepseek-chat-v3-0324"},
	{Label: "Anthropic: Claude 3.7 Sonnet", ID: "anthropic/claude-3.7-sonnet"},
	{Label: "Qwen: Qwen3 30B A3B", ID: "qwen/qwen3-30b-a3b"},
}

func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:     "openrouter",
			BaseURL:      DefaultOpenRouterURL,
			DefaultModel: DefaultModelLabel,
			Models:       append([]ModelEntry(nil), DefaultModels...),
			Temperature:  0.7,
			MaxTokens:    2000,
			Timeout:      120 * time.Second,
		},
		Embeddings: EmbeddingsConfig{
			Model:             DefaultEmbeddingModel,
			BatchSize:         defaultEmbedBatch,
			RequestsPerSecond: 5,
			Local: LocalEmbeddingsConfig{
				ModelURL:  DefaultLocalModelURL,
				ModelFile: DefaultLocalModelFilename,
				GPU:       "auto",
			},
		},
		Chunking: ChunkingConfig{
			Size:    DefaultChunkSize,
			Overlap: DefaultChunkOverlap,
		},
		Index: IndexConfig{
			Trees: DefaultNumTrees,
		},
		Retrieval: RetrievalConfig{
			TopK:         DefaultTopK,
			SourcesShown: 3,
			PreviewChars: DefaultPreviewChars,
		},
		Store: StoreConfig{
			Driver: DriverSQLite,
		},
		Transcription: TranscriptionConfig{
			Model: DefaultTranscriptionModel,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads the scope's config over the defaults, applies
// environment overrides and validates the result. A missing file yields
// the defaults.
func LoadConfig(scope Scope) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(scope.ConfigPath())
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg, os.Getenv)
	cfg.resolvePaths(scope)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func SaveConfig(scope Scope, cfg *Config) error {
	path := scope.ConfigPath()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// LoadDotEnv loads the scope's .env file into the process environment
// without overriding variables that are already set.
func LoadDotEnv(scope Scope) error {
	err := godotenv.Load(scope.EnvPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", scope.EnvPath(), err)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
		if cfg.Embeddings.APIKey == "" {
			cfg.Embeddings.APIKey = v
		}
	}
	if v := getenv("OPENAI_API_KEY"); v != "" && cfg.Transcription.APIKey == "" {
		cfg.Transcription.APIKey = v
	}
	if v := getenv("HF_TOKEN"); v != "" {
		cfg.Embeddings.Local.Token = v
	}
	if v := getenv("DOCCHAT_MODEL"); v != "" {
		cfg.LLM.DefaultModel = v
	}
	if v := getenv("DOCCHAT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if v := getenv("DOCCHAT_DATABASE_URL"); v != "" {
		cfg.Store.Driver = DriverPostgres
		cfg.Store.DSN = v
		return
	}
	if host := getenv("DB_HOST"); host != "" {
		cfg.Store.Driver = DriverPostgres
		cfg.Store.DSN = postgresDSN(host, getenv("DB_PORT"), getenv("DB_NAME"), getenv("DB_USER"), getenv("DB_PASSWORD"))
	}
}

func postgresDSN(host, port, name, user, password string) string {
	if port == "" {
		port = "5432"
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     host + ":" + port,
		Path:     "/" + name,
		RawQuery: "sslmode=disable",
	}
	if user != "" {
		u.User = url.UserPassword(user, password)
	}
	return u.String()
}

func (c *Config) resolvePaths(scope Scope) {
	if c.Index.Path == "" {
		c.Index.Path = scope.VectorPath()
	}
	if c.Store.Driver == DriverSQLite && c.Store.DSN == "" {
		c.Store.DSN = scope.DatabasePath()
	}
	if c.Export.Dir == "" {
		c.Export.Dir = scope.ExportPath()
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Chunking.Size <= 0 {
		errs = append(errs, fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size))
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		errs = append(errs, fmt.Errorf("chunking.overlap must be in [0, size), got %d", c.Chunking.Overlap))
	}
	if c.Retrieval.TopK < 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must not be negative, got %d", c.Retrieval.TopK))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be in [0, 2], got %g", c.LLM.Temperature))
	}
	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("store.driver must be %s or %s, got %q", DriverSQLite, DriverPostgres, c.Store.Driver))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ResolveModel maps a catalog label to its model id. A value that is
// already a known id is accepted as is; anything else falls back to the
// default model.
func (c LLMConfig) ResolveModel(label string) ModelEntry {
	for _, m := range c.Models {
		if m.Label == label || (label != "" && m.ID == label) {
			return m
		}
	}
	for _, m := range c.Models {
		if m.Label == c.DefaultModel || m.ID == c.DefaultModel {
			return m
		}
	}
	if len(c.Models) > 0 {
		return c.Models[0]
	}
	return ModelEntry{Label: DefaultModelLabel, ID: "anthropic/claude-sonnet-4"}
}

// ModelLabels lists the catalog labels in display order.
func (c LLMConfig) ModelLabels() []string {
	labels := make([]string, 0, len(c.Models))
	for _, m := range c.Models {
		labels = append(labels, m.Label)
	}
	return labels
}

// IsKnownModel reports whether label names a catalog entry.
func (c LLMConfig) IsKnownModel(label string) bool {
	for _, m := range c.Models {
		if m.Label == label || m.ID == label {
			return true
		}
	}
	return false
}
