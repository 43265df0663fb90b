package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// ProviderFactory builds the chat model for a catalog entry.
type ProviderFactory func(ctx context.Context, model ModelEntry) (Provider, error)

// MediaText is already transcribed media content to ingest as a document.
type MediaText struct {
	Source string
	Text   string
}

type ProcessReport struct {
	Files     int
	Documents int
	Chunks    int
	Failures  []LoadFailure
	Manifest  IndexManifest
}

func (r ProcessReport) Status() string {
	return fmt.Sprintf("Processed %d files. Documents: %d, chunks: %d", r.Files, r.Documents, r.Chunks)
}

// ChatReply is one answered question.
type ChatReply struct {
	Answer             string
	StandaloneQuestion string
	Model              string
	Sources            []SourceCitation
}

type IndexStatus struct {
	Path     string
	Loaded   bool
	Manifest *IndexManifest
	// LoadErr is set when a persisted index exists but could not be used.
	LoadErr error
}

// Engine is the application context: one active index, the selected
// embedding provider and chat model, and the conversation of the current
// session.
type Engine struct {
	cfg       *Config
	logger    *log.Logger
	index     *ActiveIndex
	embedders *EmbedderFactory
	loader    *DocumentLoader
	splitter  *TextSplitter
	providers ProviderFactory
	exporter  *Exporter
	sessions  *SessionService

	conversation *Conversation

	openMu sync.Mutex
	opened bool

	mu        sync.Mutex
	model     ModelEntry
	llm       Provider
	sessionID int64
	loadErr   error
}

type EngineOption func(*Engine)

func WithEmbedderFactory(f *EmbedderFactory) EngineOption {
	return func(e *Engine) {
		e.embedders = f
	}
}

func WithProviderFactory(f ProviderFactory) EngineOption {
	return func(e *Engine) {
		e.providers = f
	}
}

func WithDocumentLoader(l *DocumentLoader) EngineOption {
	return func(e *Engine) {
		e.loader = l
	}
}

// WithSessions enables persistence of answered exchanges.
func WithSessions(s *SessionService) EngineOption {
	return func(e *Engine) {
		e.sessions = s
	}
}

// NewEngine wires the components described by cfg. Options replace the
// config-derived embedders, chat models, loader and session store.
func NewEngine(cfg *Config, logger *log.Logger, opts ...EngineOption) (*Engine, error) {
	if logger == nil {
		logger = DiscardLogger()
	}

	splitter, err := NewTextSplitter(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:          cfg,
		logger:       logger,
		index:        NewActiveIndex(),
		splitter:     splitter,
		exporter:     NewExporter(cfg.Export.Dir, cfg.Export.Font, logger),
		conversation: NewConversation(),
		model:        cfg.LLM.ResolveModel(cfg.LLM.DefaultModel),
	}
	for _, o := range opts {
		o(e)
	}

	if e.embedders == nil {
		e.embedders = DefaultEmbedderFactory(cfg, logger)
	}
	if e.providers == nil {
		e.providers = DefaultProviderFactory(cfg)
	}
	if e.loader == nil {
		var loaderOpts []LoaderOption
		if t, err := DefaultTranscriber(cfg); err == nil {
			loaderOpts = append(loaderOpts, WithTranscriber(t))
		} else {
			logger.Debug("media transcription disabled", "err", err)
		}
		e.loader = NewDocumentLoader(logger, loaderOpts...)
	}

	return e, nil
}

// Open loads the persisted index, if any. A missing index leaves the engine
// uninitialized; an unusable one is logged and reported by IndexStatus and
// by Ask and Search. Once an attempt completes later calls do nothing, but
// a failure to acquire an embedder is retried on the next call.
func (e *Engine) Open(ctx context.Context) error {
	e.openMu.Lock()
	defer e.openMu.Unlock()

	if e.opened {
		return nil
	}
	if err := e.open(ctx); err != nil {
		return err
	}
	e.opened = true
	return nil
}

func (e *Engine) open(ctx context.Context) error {
	path := e.cfg.Index.Path

	if _, err := ReadIndexManifest(path); err != nil {
		if errors.Is(err, ErrIndexNotFound) {
			e.logger.Info("no persisted index, process documents first", "path", path)
			return nil
		}
		e.setLoadErr(err)
		e.logger.Warn("persisted index unusable", "path", path, "err", err)
		return nil
	}

	embedder, err := e.embedders.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire embedder: %w", err)
	}

	idx, err := LoadAnnoyIndex(ctx, path, embedder)
	if err != nil {
		e.setLoadErr(err)
		e.logger.Warn("persisted index unusable", "path", path, "err", err)
		return nil
	}

	if err := e.index.Swap(idx); err != nil {
		e.logger.Warn("could not release previous index", "err", err)
	}
	e.setLoadErr(nil)
	e.logger.Info("index loaded", "path", path, "chunks", idx.Len(), "provider", idx.Manifest().Provider)
	return nil
}

// ProcessDocuments ingests paths and media texts into a fresh index, saves
// it and makes it active. When nothing loads, the previous index stays.
func (e *Engine) ProcessDocuments(ctx context.Context, paths []string, media []MediaText) (ProcessReport, error) {
	files, err := ExpandPaths(paths)
	if err != nil {
		return ProcessReport{}, err
	}
	if len(files) == 0 && len(media) == 0 {
		return ProcessReport{}, errors.New("no files selected")
	}

	loaded := e.loader.LoadMultiple(ctx, files)
	docs := loaded.Documents
	for _, m := range media {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		docs = append(docs, NewMediaDocument(m.Text, m.Source))
	}

	report := ProcessReport{
		Files:     len(files) + len(media),
		Documents: len(docs),
		Failures:  loaded.Failures,
	}
	if len(docs) == 0 {
		if err := loaded.Err(); err != nil {
			return report, fmt.Errorf("no documents could be loaded: %w", err)
		}
		return report, errors.New("no documents could be loaded")
	}

	chunks := e.splitter.SplitDocuments(docs)
	report.Chunks = len(chunks)

	idx, err := e.index.Rebuild(ctx, func(ctx context.Context) (VectorIndex, error) {
		embedder, err := e.embedders.Acquire(ctx)
		if err != nil {
			return nil, err
		}

		idx, err := BuildAnnoyIndex(ctx, embedder, chunks, e.cfg.Index.Trees)
		if err != nil {
			return nil, fmt.Errorf("build index: %w", err)
		}
		if err := idx.Save(ctx, e.cfg.Index.Path); err != nil {
			return nil, fmt.Errorf("save index: %w", err)
		}
		return idx, nil
	})
	if idx == nil {
		return report, err
	}
	if err != nil {
		e.logger.Warn("could not release previous index", "err", err)
	}

	e.setLoadErr(nil)
	report.Manifest = idx.Manifest()
	e.logger.Info("index built", "path", e.cfg.Index.Path, "chunks", report.Chunks, "provider", report.Manifest.Provider)
	return report, nil
}

func (e *Engine) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	if k < 0 {
		k = e.cfg.Retrieval.TopK
	}
	results, err := e.index.Search(ctx, query, k)
	if errors.Is(err, ErrNoIndex) {
		return nil, e.noIndexErr()
	}
	return results, err
}

// noIndexErr reports ErrNoIndex together with the reason the persisted
// index could not be used, when there is one.
func (e *Engine) noIndexErr() error {
	e.mu.Lock()
	loadErr := e.loadErr
	e.mu.Unlock()
	if loadErr != nil {
		return fmt.Errorf("%w: %w", ErrNoIndex, loadErr)
	}
	return ErrNoIndex
}

// SelectModel switches the chat model. Unknown labels select the default.
func (e *Engine) SelectModel(ctx context.Context, label string) (string, error) {
	model := e.cfg.LLM.ResolveModel(label)
	if label != "" && !e.cfg.LLM.IsKnownModel(label) {
		e.logger.Warn("unknown model, using default", "model", label, "default", model.Label)
	}

	llm, err := e.providers(ctx, model)
	if err != nil {
		return "", fmt.Errorf("init model %s: %w", model.Label, err)
	}

	e.mu.Lock()
	e.model = model
	e.llm = llm
	e.mu.Unlock()

	e.logger.Info("chat model selected", "label", model.Label, "id", model.ID)
	return "Chat is ready. Using " + model.Label, nil
}

func (e *Engine) Model() ModelEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model
}

// Models is the selectable chat model catalog.
func (e *Engine) Models() []ModelEntry {
	return e.cfg.LLM.Models
}

// Ask answers question against the active index. The conversation and the
// bound session only change when an answer is produced.
func (e *Engine) Ask(ctx context.Context, question string) (*ChatReply, error) {
	if _, ok := e.index.Current(); !ok {
		return nil, e.noIndexErr()
	}

	llm, model, err := e.chatModel(ctx)
	if err != nil {
		return nil, err
	}

	chain, err := NewChain(llm, e.index, ChainConfig{
		TopK:           e.cfg.Retrieval.TopK,
		CondensePrompt: e.cfg.Prompts.Condense,
		AnswerPrompt:   e.cfg.Prompts.Answer,
	}, e.logger)
	if err != nil {
		return nil, err
	}

	answer, err := chain.Answer(ctx, question, e.conversation.Pairs())
	if err != nil {
		return nil, err
	}

	question = strings.TrimSpace(question)
	e.conversation.AppendExchange(question, answer.Text)
	e.persist(ctx, question, answer.Text)

	sources := answer.Sources
	if n := e.cfg.Retrieval.SourcesShown; n >= 0 && len(sources) > n {
		sources = sources[:n]
	}

	return &ChatReply{
		Answer:             answer.Text,
		StandaloneQuestion: answer.StandaloneQuestion,
		Model:              model.Label,
		Sources:            FormatSources(sources, e.cfg.Retrieval.PreviewChars),
	}, nil
}

func (e *Engine) chatModel(ctx context.Context) (Provider, ModelEntry, error) {
	e.mu.Lock()
	llm, model := e.llm, e.model
	e.mu.Unlock()
	if llm != nil {
		return llm, model, nil
	}

	if _, err := e.SelectModel(ctx, model.Label); err != nil {
		return nil, ModelEntry{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.llm, e.model, nil
}

func (e *Engine) persist(ctx context.Context, question, answer string) {
	e.mu.Lock()
	sessionID := e.sessionID
	e.mu.Unlock()
	if e.sessions == nil || sessionID == 0 {
		return
	}
	if err := e.sessions.Record(ctx, sessionID, question, answer); err != nil {
		e.logger.Warn("could not persist exchange", "session", sessionID, "err", err)
	}
}

// Clear resets the conversation. Stored session messages are kept.
func (e *Engine) Clear() {
	e.conversation.Clear()
}

func (e *Engine) History() []Turn {
	return e.conversation.Turns()
}

func (e *Engine) Pairs() []QAPair {
	return e.conversation.Pairs()
}

var errNoSessions = errors.New("session store not configured")

// StartSession creates a session for username, binds it and clears the
// conversation.
func (e *Engine) StartSession(ctx context.Context, username, name string) (SessionInfo, error) {
	if e.sessions == nil {
		return SessionInfo{}, errNoSessions
	}
	info, err := e.sessions.Start(ctx, username, name)
	if err != nil {
		return SessionInfo{}, err
	}

	e.mu.Lock()
	e.sessionID = info.ID
	e.mu.Unlock()
	e.conversation.Clear()
	return info, nil
}

// ResumeSession binds an existing session and loads its messages.
func (e *Engine) ResumeSession(ctx context.Context, sessionID int64) (SessionInfo, error) {
	if e.sessions == nil {
		return SessionInfo{}, errNoSessions
	}
	info, turns, err := e.sessions.Resume(ctx, sessionID)
	if err != nil {
		return SessionInfo{}, err
	}

	e.mu.Lock()
	e.sessionID = info.ID
	e.mu.Unlock()
	e.conversation.Replace(turns)
	return info, nil
}

func (e *Engine) ListSessions(ctx context.Context, username string) ([]SessionInfo, error) {
	if e.sessions == nil {
		return nil, errNoSessions
	}
	return e.sessions.List(ctx, username)
}

// DeleteSession removes a session; deleting the bound one unbinds it.
func (e *Engine) DeleteSession(ctx context.Context, sessionID int64) error {
	if e.sessions == nil {
		return errNoSessions
	}
	if err := e.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}

	e.mu.Lock()
	if e.sessionID == sessionID {
		e.sessionID = 0
	}
	e.mu.Unlock()
	return nil
}

func (e *Engine) SessionID() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

func (e *Engine) Export(format, dest string) (ExportResult, error) {
	return e.exporter.Export(format, e.conversation.Turns(), e.Model().Label, dest)
}

func (e *Engine) IndexStatus() IndexStatus {
	status := IndexStatus{Path: e.cfg.Index.Path}

	if idx, ok := e.index.Current(); ok {
		m := idx.Manifest()
		status.Loaded = true
		status.Manifest = &m
		return status
	}

	e.mu.Lock()
	status.LoadErr = e.loadErr
	e.mu.Unlock()

	if m, err := ReadIndexManifest(e.cfg.Index.Path); err == nil {
		status.Manifest = &m
	} else if status.LoadErr == nil && !errors.Is(err, ErrIndexNotFound) {
		status.LoadErr = err
	}
	return status
}

func (e *Engine) setLoadErr(err error) {
	e.mu.Lock()
	e.loadErr = err
	e.mu.Unlock()
}

func (e *Engine) Close() error {
	var errs []error
	if err := e.index.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.embedders.Close(); err != nil {
		errs = append(errs, err)
	}
	if e.sessions != nil {
		if err := e.sessions.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
