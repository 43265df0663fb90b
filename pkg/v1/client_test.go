package v1

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/4thel00z/docchat/internal"
)

type wordHashEmbedder struct{}

func (wordHashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 48)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,?!")))
		vec[h.Sum32()%47]++
	}
	vec[47] = 0.01
	return vec, nil
}

func (e wordHashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

func (wordHashEmbedder) Dimension() int { return 48 }
func (wordHashEmbedder) Name() string   { return "test:words" }
func (wordHashEmbedder) Close() error   { return nil }

type echoLLM struct{}

func (echoLLM) Complete(_ context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "Standalone question:") {
		return "What color is the sky?", nil
	}
	return "Blue.", nil
}

func setupClientTest(t *testing.T) (*Client, string) {
	t.Helper()
	for _, key := range []string{"OPENROUTER_API_KEY", "OPENAI_API_KEY", "DOCCHAT_MODEL", "DOCCHAT_DATABASE_URL", "DB_HOST"} {
		t.Setenv(key, "")
	}
	t.Setenv("HOME", t.TempDir())

	tmpDir := t.TempDir()
	t.Chdir(tmpDir)
	if err := os.MkdirAll(filepath.Join(tmpDir, internal.WorkspaceDirName), 0755); err != nil {
		t.Fatalf("mkdir workspace: %v", err)
	}

	client, err := New(context.Background(),
		WithUser("ada"),
		withEngineOptions(
			internal.WithEmbedderFactory(internal.NewEmbedderFactory(func(context.Context) (internal.Embedder, error) {
				return wordHashEmbedder{}, nil
			}, nil, internal.DiscardLogger())),
			internal.WithProviderFactory(func(context.Context, internal.ModelEntry) (internal.Provider, error) {
				return echoLLM{}, nil
			}),
		),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	docs := filepath.Join(tmpDir, "docs")
	if err := os.MkdirAll(docs, 0755); err != nil {
		t.Fatal(err)
	}
	for name, content := range map[string]string{"sky.txt": "The sky is blue.", "grass.txt": "Grass is green."} {
		if err := os.WriteFile(filepath.Join(docs, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return client, docs
}

func TestClientAskBeforeProcess(t *testing.T) {
	client, _ := setupClientTest(t)

	_, err := client.Ask(context.Background(), "What color is the sky?")
	if !errors.Is(err, internal.ErrNoIndex) {
		t.Fatalf("expected ErrNoIndex, got %v", err)
	}
	if len(client.History()) != 0 {
		t.Error("failed ask must not change history")
	}
}

func TestClientProcessAndAsk(t *testing.T) {
	client, docs := setupClientTest(t)
	ctx := context.Background()

	res, err := client.Process(ctx, docs, filepath.Join(docs, "missing.docx"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Documents != 2 || res.Chunks != 2 || len(res.Skipped) != 1 {
		t.Errorf("unexpected result: %+v", res)
	}

	ans, err := client.Ask(ctx, "What color is the sky?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if ans.Text != "Blue." {
		t.Errorf("answer = %q, want %q", ans.Text, "Blue.")
	}
	if len(ans.Sources) == 0 || ans.Sources[0].Label == "" {
		t.Errorf("expected labeled sources, got %+v", ans.Sources)
	}

	hits, err := client.Search(ctx, "sky blue", 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].File != "sky.txt" {
		t.Errorf("unexpected hits: %+v", hits)
	}

	history := client.History()
	if len(history) != 1 || history[0].Answer != "Blue." {
		t.Errorf("unexpected history: %+v", history)
	}

	client.Clear()
	if len(client.History()) != 0 {
		t.Error("expected empty history after clear")
	}
}

func TestClientSessions(t *testing.T) {
	client, docs := setupClientTest(t)
	ctx := context.Background()

	if _, err := client.Process(ctx, docs); err != nil {
		t.Fatalf("process: %v", err)
	}

	session, err := client.StartSession(ctx, "sky questions")
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if _, err := client.Ask(ctx, "What color is the sky?"); err != nil {
		t.Fatalf("ask: %v", err)
	}
	client.Clear()

	if _, err := client.ResumeSession(ctx, session.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if len(client.History()) != 1 {
		t.Errorf("expected the stored exchange, got %+v", client.History())
	}

	sessions, err := client.Sessions(ctx)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Name != "sky questions" {
		t.Errorf("unexpected sessions: %+v", sessions)
	}
}

func TestClientExport(t *testing.T) {
	client, _ := setupClientTest(t)

	dest := filepath.Join(t.TempDir(), "chat.json")
	path, err := client.Export("json", dest)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if path != dest {
		t.Errorf("path = %q, want %q", path, dest)
	}

	if _, err := client.Export("xml", ""); err == nil {
		t.Error("expected error for unsupported format")
	}
}
