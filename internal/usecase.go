package internal

import (
	"context"
	"fmt"
	"time"
)

// EngineFor returns the engine of the scope named by hint.
type EngineFor func(ctx context.Context, scopeHint string) (*Engine, error)

// Use case input/output DTOs

type ProcessDocumentsInput struct {
	Paths []string
	Media []MediaText
	Scope string
}

type ProcessDocumentsOutput struct {
	Files     int
	Documents int
	Chunks    int
	Provider  string
	Failures  []FailureOutput
	Status    string
}

type FailureOutput struct {
	Path  string
	Error string
}

type SearchInput struct {
	Query string
	Limit int
	Scope string
}

type SearchOutput struct {
	Results []SearchResultOutput
}

type SearchResultOutput struct {
	Source   string
	Content  string
	Score    float32
	Metadata map[string]string
}

type AskInput struct {
	Question  string
	Model     string
	SessionID int64
	Scope     string
}

type AskOutput struct {
	Answer    string
	Model     string
	SessionID int64
	Sources   []SourceCitation
}

type ExportChatInput struct {
	Format    string
	Dest      string
	SessionID int64
	Scope     string
}

type ExportChatOutput struct {
	Path   string
	Status string
}

type ListSessionsInput struct {
	Username string
	Scope    string
}

type SessionOutput struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ListSessionsOutput struct {
	Sessions []SessionOutput
}

type IndexStatusInput struct {
	Scope string
}

type IndexStatusOutput struct {
	Path      string
	Loaded    bool
	Provider  string
	Dimension int
	Chunks    int
	Trees     int
	CreatedAt time.Time
	Problem   string
}

// Use cases

type ProcessDocumentsUseCase struct {
	engineFor EngineFor
}

func NewProcessDocumentsUseCase(engineFor EngineFor) *ProcessDocumentsUseCase {
	return &ProcessDocumentsUseCase{engineFor: engineFor}
}

func (uc *ProcessDocumentsUseCase) Execute(ctx context.Context, input ProcessDocumentsInput) (*ProcessDocumentsOutput, error) {
	eng, err := uc.engineFor(ctx, input.Scope)
	if err != nil {
		return nil, err
	}

	report, err := eng.ProcessDocuments(ctx, input.Paths, input.Media)
	out := &ProcessDocumentsOutput{
		Files:     report.Files,
		Documents: report.Documents,
		Chunks:    report.Chunks,
		Provider:  report.Manifest.Provider,
		Status:    report.Status(),
	}
	for _, f := range report.Failures {
		out.Failures = append(out.Failures, FailureOutput{Path: f.Path, Error: f.Err.Error()})
	}
	return out, err
}

type SearchUseCase struct {
	engineFor EngineFor
}

func NewSearchUseCase(engineFor EngineFor) *SearchUseCase {
	return &SearchUseCase{engineFor: engineFor}
}

func (uc *SearchUseCase) Execute(ctx context.Context, input SearchInput) (*SearchOutput, error) {
	eng, err := uc.engineFor(ctx, input.Scope)
	if err != nil {
		return nil, err
	}
	if err := eng.Open(ctx); err != nil {
		return nil, err
	}

	results, err := eng.Search(ctx, input.Query, input.Limit)
	if err != nil {
		return nil, err
	}

	out := &SearchOutput{Results: make([]SearchResultOutput, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, SearchResultOutput{
			Source:   r.Chunk.Source(),
			Content:  r.Chunk.Content,
			Score:    r.Score,
			Metadata: r.Chunk.Metadata,
		})
	}
	return out, nil
}

type AskUseCase struct {
	engineFor EngineFor
}

func NewAskUseCase(engineFor EngineFor) *AskUseCase {
	return &AskUseCase{engineFor: engineFor}
}

// Execute answers one question. With a session id the session's history
// conditions the answer and receives the new exchange.
func (uc *AskUseCase) Execute(ctx context.Context, input AskInput) (*AskOutput, error) {
	eng, err := uc.engineFor(ctx, input.Scope)
	if err != nil {
		return nil, err
	}
	if err := eng.Open(ctx); err != nil {
		return nil, err
	}

	if input.SessionID != 0 && eng.SessionID() != input.SessionID {
		if _, err := eng.ResumeSession(ctx, input.SessionID); err != nil {
			return nil, fmt.Errorf("resume session: %w", err)
		}
	}
	if input.Model != "" && input.Model != eng.Model().Label {
		if _, err := eng.SelectModel(ctx, input.Model); err != nil {
			return nil, err
		}
	}

	reply, err := eng.Ask(ctx, input.Question)
	if err != nil {
		return nil, err
	}

	return &AskOutput{
		Answer:    reply.Answer,
		Model:     reply.Model,
		SessionID: eng.SessionID(),
		Sources:   reply.Sources,
	}, nil
}

type ExportChatUseCase struct {
	engineFor EngineFor
}

func NewExportChatUseCase(engineFor EngineFor) *ExportChatUseCase {
	return &ExportChatUseCase{engineFor: engineFor}
}

func (uc *ExportChatUseCase) Execute(ctx context.Context, input ExportChatInput) (*ExportChatOutput, error) {
	eng, err := uc.engineFor(ctx, input.Scope)
	if err != nil {
		return nil, err
	}

	if input.SessionID != 0 && eng.SessionID() != input.SessionID {
		if _, err := eng.ResumeSession(ctx, input.SessionID); err != nil {
			return nil, fmt.Errorf("resume session: %w", err)
		}
	}

	res, err := eng.Export(input.Format, input.Dest)
	if err != nil {
		return nil, err
	}
	return &ExportChatOutput{Path: res.Path, Status: res.Status}, nil
}

type ListSessionsUseCase struct {
	engineFor EngineFor
}

func NewListSessionsUseCase(engineFor EngineFor) *ListSessionsUseCase {
	return &ListSessionsUseCase{engineFor: engineFor}
}

func (uc *ListSessionsUseCase) Execute(ctx context.Context, input ListSessionsInput) (*ListSessionsOutput, error) {
	eng, err := uc.engineFor(ctx, input.Scope)
	if err != nil {
		return nil, err
	}

	sessions, err := eng.ListSessions(ctx, input.Username)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	out := &ListSessionsOutput{Sessions: make([]SessionOutput, 0, len(sessions))}
	for _, s := range sessions {
		out.Sessions = append(out.Sessions, SessionOutput{
			ID:        s.ID,
			Name:      s.Name,
			CreatedAt: s.CreatedAt,
			UpdatedAt: s.UpdatedAt,
		})
	}
	return out, nil
}

type IndexStatusUseCase struct {
	engineFor EngineFor
}

func NewIndexStatusUseCase(engineFor EngineFor) *IndexStatusUseCase {
	return &IndexStatusUseCase{engineFor: engineFor}
}

// Execute reports the persisted index without loading it.
func (uc *IndexStatusUseCase) Execute(ctx context.Context, input IndexStatusInput) (*IndexStatusOutput, error) {
	eng, err := uc.engineFor(ctx, input.Scope)
	if err != nil {
		return nil, err
	}

	status := eng.IndexStatus()
	out := &IndexStatusOutput{Path: status.Path, Loaded: status.Loaded}
	if m := status.Manifest; m != nil {
		out.Provider = m.Provider
		out.Dimension = m.Dimension
		out.Chunks = m.Chunks
		out.Trees = m.Trees
		out.CreatedAt = m.CreatedAt
	}
	if status.LoadErr != nil {
		out.Problem = status.LoadErr.Error()
	}
	return out, nil
}
