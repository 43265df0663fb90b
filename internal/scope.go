package internal

import (
	"fmt"
	"os"
	"path/filepath"
)

const WorkspaceDirName = ".docchat"

type ScopeType string

const (
	ScopeGlobal  ScopeType = "global"
	ScopeProject ScopeType = "project"
)

// Scope locates a workspace: the config, persisted index, session
// database and exports of one project or of the user.
type Scope struct {
	Type     ScopeType
	Path     string // working directory root
	DataPath string // .docchat directory path
}

func (s Scope) VectorPath() string {
	return filepath.Join(s.DataPath, "vectorstore")
}

func (s Scope) ConfigPath() string {
	return filepath.Join(s.DataPath, "config.yaml")
}

func (s Scope) DatabasePath() string {
	return filepath.Join(s.DataPath, "docchat.db")
}

func (s Scope) ExportPath() string {
	return filepath.Join(s.DataPath, "exports")
}

// EnvPath is the .env file loaded before the config.
func (s Scope) EnvPath() string {
	return filepath.Join(s.Path, ".env")
}

// Init creates the workspace directories.
func (s Scope) Init() error {
	for _, dir := range []string{s.DataPath, s.ExportPath()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func (s Scope) Exists() bool {
	info, err := os.Stat(s.DataPath)
	return err == nil && info.IsDir()
}

type ScopeResolver struct {
	homeDir string
	workDir func() (string, error)
}

func NewScopeResolver() *ScopeResolver {
	home, _ := os.UserHomeDir()
	return &ScopeResolver{homeDir: home, workDir: os.Getwd}
}

func (r *ScopeResolver) Global() Scope {
	return Scope{
		Type:     ScopeGlobal,
		Path:     r.homeDir,
		DataPath: filepath.Join(r.homeDir, WorkspaceDirName),
	}
}

// Project finds the nearest .docchat directory at or above the working
// directory.
func (r *ScopeResolver) Project() (Scope, bool) {
	cwd, err := r.workDir()
	if err != nil {
		return Scope{}, false
	}
	return r.findProjectScope(cwd)
}

// Local is the project scope rooted at the working directory, whether or
// not it has been initialized.
func (r *ScopeResolver) Local() (Scope, error) {
	cwd, err := r.workDir()
	if err != nil {
		return Scope{}, err
	}
	return Scope{Type: ScopeProject, Path: cwd, DataPath: filepath.Join(cwd, WorkspaceDirName)}, nil
}

func (r *ScopeResolver) findProjectScope(dir string) (Scope, bool) {
	for {
		dataPath := filepath.Join(dir, WorkspaceDirName)
		info, err := os.Stat(dataPath)
		if err == nil && info.IsDir() && dataPath != filepath.Join(r.homeDir, WorkspaceDirName) {
			return Scope{Type: ScopeProject, Path: dir, DataPath: dataPath}, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Scope{}, false
		}
		dir = parent
	}
}

// Resolve picks the project scope when one exists unless "global" is
// requested explicitly.
func (r *ScopeResolver) Resolve(explicit string) Scope {
	if explicit == string(ScopeGlobal) {
		return r.Global()
	}
	if scope, ok := r.Project(); ok {
		return scope
	}
	return r.Global()
}
