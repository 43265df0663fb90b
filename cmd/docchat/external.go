package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/4thel00z/docchat/internal"
)

// Executables named docchat-<name> on PATH run as "docchat <name>".
const externalPrefix = "docchat-"

func findExternal(name string) (string, error) {
	if strings.ContainsRune(name, os.PathSeparator) {
		return "", fmt.Errorf("invalid command name %q", name)
	}
	path, err := exec.LookPath(externalPrefix + name)
	if err != nil {
		return "", fmt.Errorf("unknown command %q: %s%s not found in PATH", name, externalPrefix, name)
	}
	return path, nil
}

// listExternalCommands returns plugin names in PATH order, first hit wins.
func listExternalCommands() []string {
	var names []string
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			name, ok := externalName(dir, entry)
			if ok && !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}
	return names
}

func externalName(dir string, entry os.DirEntry) (string, bool) {
	if entry.IsDir() || !strings.HasPrefix(entry.Name(), externalPrefix) {
		return "", false
	}

	info, err := os.Stat(filepath.Join(dir, entry.Name()))
	if err != nil || info.Mode()&0111 == 0 {
		return "", false
	}
	return strings.TrimPrefix(entry.Name(), externalPrefix), true
}

func executeExternal(ctx context.Context, name string, args []string, version string) error {
	path, err := findExternal(name)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = externalEnv(version, internal.NewScopeResolver().Resolve(""))
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// externalEnv tells plugins where the binary and the active workspace live.
func externalEnv(version string, scope internal.Scope) []string {
	self, _ := os.Executable()

	return append(os.Environ(),
		"DOCCHAT_VERSION="+version,
		"DOCCHAT_BIN="+self,
		"DOCCHAT_SCOPE="+string(scope.Type),
		"DOCCHAT_ROOT="+scope.Path,
		"DOCCHAT_DATA="+scope.DataPath,
		"DOCCHAT_CONFIG="+scope.ConfigPath(),
	)
}
