package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeIgnoreFile(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, IgnoreFilename), []byte(content), 0644); err != nil {
		t.Fatalf("write ignore file: %v", err)
	}
}

func TestIgnoreMatcherEmpty(t *testing.T) {
	tmpDir := t.TempDir()

	m, err := NewIgnoreMatcher(tmpDir)
	require.NoError(t, err)

	assert.False(t, m.Match(filepath.Join(tmpDir, "report.pdf")))
	assert.True(t, m.Match(filepath.Join(tmpDir, "~$report.docx")), "office lock files are always skipped")
}

func TestIgnoreMatcherPatterns(t *testing.T) {
	tmpDir := t.TempDir()
	writeIgnoreFile(t, tmpDir, "# drafts\n*.csv\ndrafts/\n!keep.csv\n")

	m, err := NewIgnoreMatcher(tmpDir)
	require.NoError(t, err)

	tests := []struct {
		name  string
		path  string
		isDir bool
		want  bool
	}{
		{"glob match", "data.csv", false, true},
		{"negated", "keep.csv", false, false},
		{"other extension", "notes.md", false, false},
		{"directory", "drafts", true, true},
		{"nested glob", "sub/table.csv", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.path)
			var got bool
			if tt.isDir {
				got = m.MatchDir(path)
			} else {
				got = m.Match(path)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIgnoreMatcherOutsideBase(t *testing.T) {
	tmpDir := t.TempDir()
	writeIgnoreFile(t, tmpDir, "*\n")

	m, err := NewIgnoreMatcher(filepath.Join(tmpDir, "docs"))
	require.NoError(t, err)

	assert.False(t, m.Match(filepath.Join(tmpDir, "elsewhere.txt")))
}

func TestExpandPathsHonoursIgnoreFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeIgnoreFile(t, tmpDir, "skip.txt\narchive/\n")

	for _, name := range []string{"a.txt", "skip.txt", "archive/old.txt", "nested/b.md", ".hidden/c.txt"} {
		p := filepath.Join(tmpDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	}

	loose := filepath.Join(t.TempDir(), "loose.txt")
	files, err := ExpandPaths([]string{tmpDir, loose})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		filepath.Join(tmpDir, "a.txt"),
		filepath.Join(tmpDir, "nested", "b.md"),
		loose,
	}, files)
}
