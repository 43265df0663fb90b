package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd("1.0.0", nil)

	if cmd.Use != "docchat" {
		t.Errorf("expected Use='docchat', got %q", cmd.Use)
	}
	if cmd.Version != "1.0.0" {
		t.Errorf("expected Version='1.0.0', got %q", cmd.Version)
	}
	if len(cmd.Commands()) != 0 {
		t.Errorf("expected no subcommands without an app, got %d", len(cmd.Commands()))
	}
}

func TestRootCmdHasFlags(t *testing.T) {
	cmd := NewRootCmd("1.0.0", nil)

	for _, name := range []string{"scope", "user", "json", "model", "session"} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("expected persistent flag %q to exist", name)
		}
	}
}

func TestRootCmdSubcommands(t *testing.T) {
	a, _ := setupE2E(t)
	cmd := NewRootCmd("dev", a)

	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"init", "config", "models", "process", "search", "ask", "chat", "index", "sessions", "export", "watch"} {
		if !names[want] {
			t.Errorf("expected subcommand %q", want)
		}
	}
}

func TestRootHelpListsExternals(t *testing.T) {
	tmp := t.TempDir()
	writeScript(t, tmp, "docchat-summarize", 0755)
	t.Setenv("PATH", tmp)

	cmd := NewRootCmd("dev", nil)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--help"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if !strings.Contains(out.String(), "External commands (docchat-*):\n  summarize") {
		t.Errorf("expected external command listing, got %q", out.String())
	}
}

func TestParseSessionID(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1", 1, false},
		{"42", 42, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := parseSessionID(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseSessionID(%q) = %d, %v", tt.in, got, err)
		}
	}
}
