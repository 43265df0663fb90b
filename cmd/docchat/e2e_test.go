package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/4thel00z/docchat/internal"
)

const hashDimension = 64

// hashEmbedder hashes each word into a fixed-size count vector.
type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, hashDimension)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,?!")
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%hashDimension]++
	}
	vec[hashDimension-1] += 0.01
	return vec, nil
}

func (e hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

func (hashEmbedder) Dimension() int { return hashDimension }
func (hashEmbedder) Name() string   { return "test:hash" }
func (hashEmbedder) Close() error   { return nil }

type scriptedLLM struct{}

func (scriptedLLM) Complete(_ context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "Standalone question:") {
		return "What color is the grass?", nil
	}
	return "The sky is blue.", nil
}

func testEngineBuilder() engineBuilder {
	return func(ctx context.Context, scope internal.Scope) (*internal.Engine, error) {
		cfg, err := internal.LoadConfig(scope)
		if err != nil {
			return nil, err
		}
		cfg.Index.Trees = 4
		if err := scope.Init(); err != nil {
			return nil, err
		}

		store, err := internal.OpenStore(ctx, cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			return nil, err
		}

		logger := internal.DiscardLogger()
		embedders := internal.NewEmbedderFactory(func(context.Context) (internal.Embedder, error) {
			return hashEmbedder{}, nil
		}, nil, logger)

		return internal.NewEngine(cfg, logger,
			internal.WithEmbedderFactory(embedders),
			internal.WithProviderFactory(func(context.Context, internal.ModelEntry) (internal.Provider, error) {
				return scriptedLLM{}, nil
			}),
			internal.WithDocumentLoader(internal.NewDocumentLoader(logger)),
			internal.WithSessions(internal.NewSessionService(store)),
		)
	}
}

// setupE2E runs the CLI inside an initialized project workspace.
func setupE2E(t *testing.T) (*app, string) {
	t.Helper()
	for _, key := range []string{"OPENROUTER_API_KEY", "OPENAI_API_KEY", "DOCCHAT_MODEL", "DOCCHAT_DATABASE_URL", "DB_HOST"} {
		t.Setenv(key, "")
	}
	t.Setenv("HOME", t.TempDir())

	project := t.TempDir()
	t.Chdir(project)
	if err := os.MkdirAll(filepath.Join(project, internal.WorkspaceDirName), 0755); err != nil {
		t.Fatalf("mkdir workspace: %v", err)
	}

	a := newAppWith(internal.NewScopeResolver(), testEngineBuilder())
	t.Cleanup(func() { _ = a.Close() })
	return a, project
}

func run(t *testing.T, a *app, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd("test", a)
	root.SetArgs(args)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func mustRun(t *testing.T, a *app, args ...string) string {
	t.Helper()
	out, _, err := run(t, a, args...)
	if err != nil {
		t.Fatalf("%s: %v", strings.Join(args, " "), err)
	}
	return out
}

func writeDocs(t *testing.T, dir string) {
	t.Helper()
	docs := map[string]string{
		"sky.txt":   "The sky is blue.",
		"grass.txt": "Grass is green.",
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for name, content := range docs {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestE2EFullWorkflow(t *testing.T) {
	a, project := setupE2E(t)
	writeDocs(t, filepath.Join(project, "docs"))

	// 1. Index
	out := mustRun(t, a, "process", "docs")
	if !strings.Contains(out, "Processed 2 files. Documents: 2, chunks: 2") {
		t.Errorf("unexpected process output: %q", out)
	}

	// 2. Search
	out = mustRun(t, a, "search", "-n", "1", "sky blue")
	if !strings.Contains(out, "sky.txt") {
		t.Errorf("expected sky.txt in search output, got %q", out)
	}

	// 3. Ask within a session
	out = mustRun(t, a, "sessions", "new", "research")
	if !strings.Contains(out, "Created session 1 (research)") {
		t.Errorf("unexpected sessions new output: %q", out)
	}
	out = mustRun(t, a, "ask", "--session", "1", "What color is the sky?")
	if !strings.HasPrefix(out, "The sky is blue.\n") {
		t.Errorf("expected answer first, got %q", out)
	}
	if !strings.Contains(out, "Sources:") || !strings.Contains(out, "sky.txt") {
		t.Errorf("expected sources listing, got %q", out)
	}

	// 4. The session holds the exchange
	out = mustRun(t, a, "sessions", "show", "1")
	if !strings.Contains(out, "Q: What color is the sky?\nA: The sky is blue.") {
		t.Errorf("unexpected session transcript: %q", out)
	}

	// 5. Export
	dest := filepath.Join(project, "chat.json")
	out = mustRun(t, a, "export", "json", "--session", "1", "-o", dest)
	if !strings.Contains(out, "Chat exported to "+dest) {
		t.Errorf("unexpected export output: %q", out)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var exported struct {
		Model       string      `json:"model"`
		ChatHistory [][2]string `json:"chat_history"`
	}
	if err := json.Unmarshal(data, &exported); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if len(exported.ChatHistory) != 1 || exported.ChatHistory[0][1] != "The sky is blue." {
		t.Errorf("unexpected export history: %v", exported.ChatHistory)
	}

	// 6. Index status
	out = mustRun(t, a, "index", "status")
	if !strings.Contains(out, "Provider:  test:hash") || !strings.Contains(out, "Chunks:    2") {
		t.Errorf("unexpected index status: %q", out)
	}

	// 7. Delete
	mustRun(t, a, "sessions", "delete", "1")
	out = mustRun(t, a, "sessions", "list")
	if !strings.Contains(out, "No sessions.") {
		t.Errorf("expected no sessions, got %q", out)
	}
}

func TestE2EAskBeforeProcessing(t *testing.T) {
	a, _ := setupE2E(t)

	_, _, err := run(t, a, "ask", "anything")
	if !errors.Is(err, internal.ErrNoIndex) {
		t.Fatalf("expected ErrNoIndex, got %v", err)
	}

	out := mustRun(t, a, "index", "status")
	if !strings.Contains(out, "Index status: none") {
		t.Errorf("unexpected index status: %q", out)
	}
}

func TestE2EProcessReportsSkippedFiles(t *testing.T) {
	a, project := setupE2E(t)
	writeDocs(t, filepath.Join(project, "docs"))

	out, errOut, err := run(t, a, "process", "docs/sky.txt", "docs/missing.pdf")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !strings.Contains(out, "Processed 2 files. Documents: 1, chunks: 1") {
		t.Errorf("unexpected output: %q", out)
	}
	if !strings.Contains(errOut, "skipped docs/missing.pdf") {
		t.Errorf("expected skipped file on stderr, got %q", errOut)
	}

	_, _, err = run(t, a, "process", "docs/missing.pdf")
	if err == nil {
		t.Fatal("expected error when nothing loads")
	}
}

func TestE2EJSONOutput(t *testing.T) {
	a, project := setupE2E(t)
	writeDocs(t, filepath.Join(project, "docs"))
	mustRun(t, a, "process", "docs")

	out := mustRun(t, a, "--json", "ask", "What color is the sky?")
	var reply internal.AskOutput
	if err := json.Unmarshal([]byte(out), &reply); err != nil {
		t.Fatalf("decode ask output: %v\n%s", err, out)
	}
	if reply.Answer != "The sky is blue." || reply.Model != internal.DefaultModelLabel {
		t.Errorf("unexpected reply: %+v", reply)
	}
	if len(reply.Sources) == 0 || len(reply.Sources) > 3 {
		t.Errorf("expected 1 to 3 sources, got %d", len(reply.Sources))
	}
}

func TestE2EModelsAndConfig(t *testing.T) {
	a, _ := setupE2E(t)
	t.Setenv("OPENROUTER_API_KEY", "sk-very-secret")

	out := mustRun(t, a, "models")
	if !strings.Contains(out, "* Claude Sonnet 4") {
		t.Errorf("expected default model marked, got %q", out)
	}

	out = mustRun(t, a, "config", "show")
	if strings.Contains(out, "sk-very-secret") {
		t.Error("config show must not print api keys")
	}
	if !strings.Contains(out, "********") {
		t.Errorf("expected masked key, got %q", out)
	}
}

func TestE2EExportRejectsUnknownFormat(t *testing.T) {
	a, _ := setupE2E(t)

	if _, _, err := run(t, a, "export", "docx"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestEngineForCachesPerWorkspace(t *testing.T) {
	a, _ := setupE2E(t)
	ctx := context.Background()

	first, err := a.engineFor(ctx, "")
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	second, err := a.engineFor(ctx, "")
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if first != second {
		t.Error("expected the same engine for the same workspace")
	}

	global, err := a.engineFor(ctx, "global")
	if err != nil {
		t.Fatalf("global engine: %v", err)
	}
	if global == first {
		t.Error("expected a separate engine for the global workspace")
	}
}

func TestDefaultEngineBuilder(t *testing.T) {
	_, project := setupE2E(t)

	var logs bytes.Buffer
	a := newAppWith(internal.NewScopeResolver(), defaultEngineBuilder(&logs))
	defer a.Close()

	eng, err := a.engineFor(context.Background(), "")
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if eng.IndexStatus().Loaded {
		t.Error("fresh workspace should have no index")
	}

	db := filepath.Join(project, internal.WorkspaceDirName, "docchat.db")
	if _, err := os.Stat(db); err != nil {
		t.Errorf("expected session database at %s: %v", db, err)
	}
}

func TestE2EConfigInit(t *testing.T) {
	a, project := setupE2E(t)

	out := mustRun(t, a, "config", "init")
	path := filepath.Join(project, internal.WorkspaceDirName, "config.yaml")
	if !strings.Contains(out, "Wrote "+path) {
		t.Errorf("unexpected output: %q", out)
	}

	if _, _, err := run(t, a, "config", "init"); err == nil {
		t.Error("expected error when config exists")
	}
	mustRun(t, a, "config", "init", "--force")

	out = mustRun(t, a, "config", "path")
	if strings.TrimSpace(out) != path {
		t.Errorf("config path = %q, want %q", out, path)
	}
}
