package main

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/4thel00z/docchat/internal"
)

func writeScript(t *testing.T, dir, name string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\necho ok"), mode); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFindExternal(t *testing.T) {
	tmp := t.TempDir()
	script := writeScript(t, tmp, "docchat-test", 0755)
	t.Setenv("PATH", tmp+string(os.PathListSeparator)+os.Getenv("PATH"))

	path, err := findExternal("test")
	if err != nil {
		t.Fatalf("expected to find docchat-test, got error: %v", err)
	}
	if path != script {
		t.Errorf("expected %s, got %s", script, path)
	}
}

func TestFindExternalNotFound(t *testing.T) {
	if _, err := findExternal("nonexistent-command-12345"); err == nil {
		t.Fatal("expected error for nonexistent command")
	}
	if _, err := findExternal("../escape"); err == nil {
		t.Fatal("expected error for a name with a path separator")
	}
}

func TestListExternalCommands(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	for _, s := range []string{"docchat-foo", "docchat-bar"} {
		writeScript(t, first, s, 0755)
	}
	writeScript(t, second, "docchat-foo", 0755)
	writeScript(t, second, "docchat-noexec", 0644)
	writeScript(t, second, "other-script", 0755)

	t.Setenv("PATH", first+string(os.PathListSeparator)+second)

	cmds := listExternalCommands()
	slices.Sort(cmds)
	if !slices.Equal(cmds, []string{"bar", "foo"}) {
		t.Errorf("expected [bar foo], got %v", cmds)
	}
}

func TestExternalEnv(t *testing.T) {
	scope := internal.Scope{Type: internal.ScopeProject, Path: "/work", DataPath: "/work/.docchat"}
	env := externalEnv("1.0.0", scope)

	for _, want := range []string{
		"DOCCHAT_VERSION=1.0.0",
		"DOCCHAT_SCOPE=project",
		"DOCCHAT_ROOT=/work",
		"DOCCHAT_DATA=/work/.docchat",
		"DOCCHAT_CONFIG=/work/.docchat/config.yaml",
	} {
		if !slices.Contains(env, want) {
			t.Errorf("expected %s in env", want)
		}
	}
}
