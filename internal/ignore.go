package internal

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

const IgnoreFilename = ".docchatignore"

// builtinIgnores skip editor and office lock files that never parse.
var builtinIgnores = []string{"~$*", "*.tmp", "*.swp", "*.part"}

// IgnoreMatcher applies gitignore-style rules from a folder's
// .docchatignore to files found while expanding that folder for ingestion.
type IgnoreMatcher struct {
	patterns []gitignore.Pattern
	basePath string
}

func NewIgnoreMatcher(basePath string) (*IgnoreMatcher, error) {
	m := &IgnoreMatcher{basePath: basePath}
	for _, p := range builtinIgnores {
		m.patterns = append(m.patterns, gitignore.ParsePattern(p, nil))
	}

	patterns, err := parseIgnoreFile(filepath.Join(basePath, IgnoreFilename))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	m.patterns = append(m.patterns, patterns...)

	return m, nil
}

func (m *IgnoreMatcher) Match(path string) bool {
	return m.match(path, false)
}

func (m *IgnoreMatcher) MatchDir(path string) bool {
	return m.match(path, true)
}

// match follows gitignore precedence: the last matching pattern wins, so
// a later "!keep.txt" re-includes a file excluded earlier.
func (m *IgnoreMatcher) match(path string, isDir bool) bool {
	relPath, err := filepath.Rel(m.basePath, path)
	if err != nil || strings.HasPrefix(relPath, "..") {
		return false
	}
	parts := strings.Split(relPath, string(filepath.Separator))

	excluded := false
	for _, p := range m.patterns {
		switch p.Match(parts, isDir) {
		case gitignore.Exclude:
			excluded = true
		case gitignore.Include:
			excluded = false
		}
	}
	return excluded
}

func parseIgnoreFile(path string) ([]gitignore.Pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []gitignore.Pattern
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}
