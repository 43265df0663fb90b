package internal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

// LoadFunc reads one file into one or more documents. Metadata common to
// all formats is stamped by DocumentLoader.
type LoadFunc func(ctx context.Context, path string) ([]Document, error)

// MediaExtensions are routed through the Transcriber when one is set.
var MediaExtensions = []string{".mp3", ".wav", ".m4a", ".ogg", ".flac", ".mp4", ".webm", ".mov", ".mkv"}

type DocumentLoader struct {
	loaders     map[string]LoadFunc
	fallback    LoadFunc
	transcriber Transcriber
	logger      *log.Logger
}

type LoaderOption func(*DocumentLoader)

// WithTranscriber enables loading of audio and video files.
func WithTranscriber(t Transcriber) LoaderOption {
	return func(l *DocumentLoader) {
		l.transcriber = t
	}
}

// WithFormat registers or replaces the loader for an extension such as ".rtf".
func WithFormat(ext string, fn LoadFunc) LoaderOption {
	return func(l *DocumentLoader) {
		l.loaders[strings.ToLower(ext)] = fn
	}
}

func NewDocumentLoader(logger *log.Logger, opts ...LoaderOption) *DocumentLoader {
	l := &DocumentLoader{
		loaders: map[string]LoadFunc{
			".pdf":      loadPDF,
			".docx":     loadDOCX,
			".html":     loadHTML,
			".htm":      loadHTML,
			".md":       loadMarkdown,
			".markdown": loadMarkdown,
			".csv":      loadDelimited(','),
			".tsv":      loadDelimited('\t'),
			".txt":      loadText,
		},
		fallback: loadText,
		logger:   logger,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Load reads the file at path. Unknown extensions are read as plain text.
// Missing files fail with ErrDocumentNotFound, unreadable ones with ErrFormat.
func (l *DocumentLoader) Load(ctx context.Context, path string) ([]Document, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrFormat, path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	name := filepath.Base(path)

	if l.isMedia(ext) {
		text, err := l.transcriber.Transcribe(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("%w: transcribe %s: %w", ErrFormat, name, err)
		}
		return []Document{NewMediaDocument(text, name)}, nil
	}

	load, ok := l.loaders[ext]
	if !ok {
		load = l.fallback
	}

	docs, err := load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFormat, name, err)
	}

	fileType := strings.ToUpper(strings.TrimPrefix(ext, "."))
	if fileType == "" {
		fileType = "TXT"
	}

	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		md := d.Metadata
		if md == nil {
			md = map[string]string{}
		}
		md[MetaSourceFile] = name
		md[MetaFileType] = fileType
		out = append(out, NewDocument(path, d.Content, md))
	}
	return out, nil
}

func (l *DocumentLoader) isMedia(ext string) bool {
	if l.transcriber == nil {
		return false
	}
	for _, m := range MediaExtensions {
		if ext == m {
			return true
		}
	}
	return false
}

type LoadFailure struct {
	Path string
	Err  error
}

type LoadReport struct {
	Documents []Document
	Failures  []LoadFailure
}

// Err joins all failures, or returns nil when every file loaded.
func (r LoadReport) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, f.Err)
	}
	return errors.Join(errs...)
}

// LoadMultiple loads each path independently; a failed file is logged and
// recorded without stopping the rest.
func (l *DocumentLoader) LoadMultiple(ctx context.Context, paths []string) LoadReport {
	var report LoadReport
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			report.Failures = append(report.Failures, LoadFailure{Path: path, Err: err})
			continue
		}

		docs, err := l.Load(ctx, path)
		if err != nil {
			l.logger.Warn("skipping file", "path", path, "err", err)
			report.Failures = append(report.Failures, LoadFailure{Path: path, Err: err})
			continue
		}

		l.logger.Debug("loaded file", "path", path, "documents", len(docs))
		report.Documents = append(report.Documents, docs...)
	}
	return report
}

// ExpandPaths replaces directories with the files beneath them, skipping
// hidden entries and anything matched by the directory's ignore file.
func ExpandPaths(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			files = append(files, p)
			continue
		}

		matcher, err := NewIgnoreMatcher(p)
		if err != nil {
			return nil, fmt.Errorf("read ignore file: %w", err)
		}

		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if path == p {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if matcher.MatchDir(path) {
					return filepath.SkipDir
				}
				return nil
			}
			if !matcher.Match(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
	}
	return files, nil
}
