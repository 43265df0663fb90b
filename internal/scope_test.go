package internal

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScopePaths(t *testing.T) {
	scope := Scope{Path: "/work", DataPath: "/work/.docchat"}

	tests := map[string]struct {
		got  string
		want string
	}{
		"vector":   {scope.VectorPath(), "/work/.docchat/vectorstore"},
		"config":   {scope.ConfigPath(), "/work/.docchat/config.yaml"},
		"database": {scope.DatabasePath(), "/work/.docchat/docchat.db"},
		"exports":  {scope.ExportPath(), "/work/.docchat/exports"},
		"env":      {scope.EnvPath(), "/work/.env"},
	}
	for name, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s path = %q, want %q", name, tt.got, tt.want)
		}
	}
}

func testResolver(home, cwd string) *ScopeResolver {
	return &ScopeResolver{homeDir: home, workDir: func() (string, error) { return cwd, nil }}
}

func TestScopeResolverGlobal(t *testing.T) {
	home := t.TempDir()
	scope := testResolver(home, home).Global()

	if scope.Type != ScopeGlobal {
		t.Errorf("expected ScopeGlobal, got %q", scope.Type)
	}
	if want := filepath.Join(home, WorkspaceDirName); scope.DataPath != want {
		t.Errorf("expected DataPath %q, got %q", want, scope.DataPath)
	}
}

func TestScopeResolverProjectNotFound(t *testing.T) {
	tmp := t.TempDir()

	if _, found := testResolver(t.TempDir(), tmp).Project(); found {
		t.Error("expected Project() to return false when no .docchat exists")
	}
}

func TestScopeResolverProjectFoundFromSubdir(t *testing.T) {
	tmp := t.TempDir()
	dataDir := filepath.Join(tmp, WorkspaceDirName)
	sub := filepath.Join(tmp, "docs", "nested")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	scope, found := testResolver(t.TempDir(), sub).Project()
	if !found {
		t.Fatal("expected Project() to return true")
	}
	if scope.Type != ScopeProject {
		t.Errorf("expected ScopeProject, got %q", scope.Type)
	}
	if scope.DataPath != dataDir {
		t.Errorf("expected DataPath %q, got %q", dataDir, scope.DataPath)
	}
}

func TestScopeResolverIgnoresHomeWorkspaceAsProject(t *testing.T) {
	home := t.TempDir()
	if err := os.MkdirAll(filepath.Join(home, WorkspaceDirName), 0755); err != nil {
		t.Fatal(err)
	}

	r := testResolver(home, filepath.Join(home, "somewhere"))
	if _, found := r.Project(); found {
		t.Error("home workspace must resolve as global, not project")
	}
	if got := r.Resolve(""); got.Type != ScopeGlobal {
		t.Errorf("Resolve() type = %q, want global", got.Type)
	}
}

func TestScopeInit(t *testing.T) {
	tmp := t.TempDir()
	scope := Scope{Type: ScopeProject, Path: tmp, DataPath: filepath.Join(tmp, WorkspaceDirName)}

	if scope.Exists() {
		t.Fatal("scope should not exist before Init")
	}
	if err := scope.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !scope.Exists() {
		t.Error("scope should exist after Init")
	}
	if _, err := os.Stat(scope.ExportPath()); err != nil {
		t.Errorf("exports dir missing: %v", err)
	}
}
