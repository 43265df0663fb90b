package v1

import (
	"context"
	"fmt"
	"io"

	"github.com/4thel00z/docchat/internal"
)

// Client provides programmatic access to a docchat workspace: indexing,
// retrieval and conversational answers.
type Client struct {
	engine *internal.Engine
	user   string
}

// New opens the workspace's engine and loads its persisted index, if any.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		user:      "default",
		logOutput: io.Discard,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	scope := internal.NewScopeResolver().Resolve(cfg.scope)
	if err := internal.LoadDotEnv(scope); err != nil {
		return nil, err
	}
	appCfg, err := internal.LoadConfig(scope)
	if err != nil {
		return nil, err
	}
	if err := scope.Init(); err != nil {
		return nil, err
	}

	logger := internal.NewLogger(appCfg.Log, cfg.logOutput)

	var engineOpts []internal.EngineOption
	store, err := internal.OpenStore(ctx, appCfg.Store.Driver, appCfg.Store.DSN)
	if err != nil {
		logger.Warn("session store unavailable", "err", err)
	} else {
		engineOpts = append(engineOpts, internal.WithSessions(internal.NewSessionService(store)))
	}
	engineOpts = append(engineOpts, cfg.engine...)

	eng, err := internal.NewEngine(appCfg, logger, engineOpts...)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	c := &Client{engine: eng, user: cfg.user}
	if err := eng.Open(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("open index: %w", err)
	}
	if cfg.model != "" {
		if _, err := eng.SelectModel(ctx, cfg.model); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	return c, nil
}

// Process indexes files and directories, replacing the previous index.
func (c *Client) Process(ctx context.Context, paths ...string) (ProcessResult, error) {
	report, err := c.engine.ProcessDocuments(ctx, paths, nil)

	res := ProcessResult{
		Files:     report.Files,
		Documents: report.Documents,
		Chunks:    report.Chunks,
		Status:    report.Status(),
	}
	for _, f := range report.Failures {
		res.Skipped = append(res.Skipped, SkippedFile{Path: f.Path, Error: f.Err.Error()})
	}
	if err != nil {
		return res, fmt.Errorf("process: %w", err)
	}
	return res, nil
}

// Ask answers question in the context of the conversation so far.
func (c *Client) Ask(ctx context.Context, question string) (Answer, error) {
	reply, err := c.engine.Ask(ctx, question)
	if err != nil {
		return Answer{}, err
	}

	ans := Answer{Text: reply.Answer, Model: reply.Model, Sources: make([]Source, 0, len(reply.Sources))}
	for _, s := range reply.Sources {
		ans.Sources = append(ans.Sources, Source{
			File:    s.Metadata[internal.MetaSourceFile],
			Label:   s.Label(),
			Content: s.Content,
			Score:   s.Score,
		})
	}
	return ans, nil
}

// Search returns the k chunks closest to query. k < 0 uses the configured default.
func (c *Client) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	results, err := c.engine.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, SearchResult{File: r.Chunk.Source(), Content: r.Chunk.Content, Score: r.Score})
	}
	return out, nil
}

// StartSession begins a saved conversation; later answers are stored in it.
func (c *Client) StartSession(ctx context.Context, name string) (Session, error) {
	info, err := c.engine.StartSession(ctx, c.user, name)
	if err != nil {
		return Session{}, fmt.Errorf("start session: %w", err)
	}
	return toSession(info), nil
}

// ResumeSession continues a saved conversation.
func (c *Client) ResumeSession(ctx context.Context, id int64) (Session, error) {
	info, err := c.engine.ResumeSession(ctx, id)
	if err != nil {
		return Session{}, fmt.Errorf("resume session: %w", err)
	}
	return toSession(info), nil
}

func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	infos, err := c.engine.ListSessions(ctx, c.user)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	out := make([]Session, 0, len(infos))
	for _, info := range infos {
		out = append(out, toSession(info))
	}
	return out, nil
}

func (c *Client) History() []Exchange {
	pairs := c.engine.Pairs()
	out := make([]Exchange, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, Exchange{Question: p.Question, Answer: p.Answer})
	}
	return out
}

// Clear forgets the conversation. Saved session messages are kept.
func (c *Client) Clear() {
	c.engine.Clear()
}

// Export writes the conversation as "json" or "pdf" and returns the file path.
func (c *Client) Export(format, dest string) (string, error) {
	res, err := c.engine.Export(format, dest)
	if err != nil {
		return "", err
	}
	return res.Path, nil
}

// Close releases the embedding model and session database.
func (c *Client) Close() error {
	return c.engine.Close()
}

func toSession(info internal.SessionInfo) Session {
	return Session{
		ID:        info.ID,
		Name:      info.Name,
		CreatedAt: info.CreatedAt,
		UpdatedAt: info.UpdatedAt,
	}
}
