package internal

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrFormat           = errors.New("unsupported or corrupt document")
	ErrEmbedding        = errors.New("embedding provider unavailable")
	ErrIndexNotFound    = errors.New("vector index not found")
	ErrCorruptIndex     = errors.New("vector index corrupt")
	ErrProviderMismatch = errors.New("vector index built by a different embedding provider")
	ErrNoIndex          = errors.New("no documents processed yet: process documents first")
	ErrSessionNotFound  = errors.New("session not found")
)

// Metadata keys stamped on every loaded document.
const (
	MetaSourceFile = "source_file"
	MetaFileType   = "file_type"
	MetaPage       = "page"
	MetaRow        = "row"
)

// FileTypeMedia tags documents produced from transcribed audio or video.
const FileTypeMedia = "MEDIA"

var documentNamespace = uuid.MustParse("8f1c3a52-6d0e-4b7a-9c1f-2e5d7a4b9c30")

type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

func NewDocument(source, content string, metadata map[string]string) Document {
	md := make(map[string]string, len(metadata))
	maps.Copy(md, metadata)
	return Document{
		ID:       documentID(source, md),
		Content:  content,
		Metadata: md,
	}
}

// NewMediaDocument wraps transcribed text so it can be split and indexed
// like any file-derived document.
func NewMediaDocument(text, source string) Document {
	return NewDocument(source, text, map[string]string{
		MetaSourceFile: source,
		MetaFileType:   FileTypeMedia,
	})
}

func (d Document) Source() string {
	return d.Metadata[MetaSourceFile]
}

// Chunk is an immutable span of a document's text. Metadata is a copy of
// the parent document's metadata.
type Chunk struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Index      int               `json:"index"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata"`
}

func NewChunk(doc Document, index int, content string) Chunk {
	md := make(map[string]string, len(doc.Metadata))
	maps.Copy(md, doc.Metadata)
	return Chunk{
		ID:         uuid.NewSHA1(documentNamespace, fmt.Appendf(nil, "%s/%d", doc.ID, index)).String(),
		DocumentID: doc.ID,
		Index:      index,
		Content:    content,
		Metadata:   md,
	}
}

func (c Chunk) Source() string {
	return c.Metadata[MetaSourceFile]
}

func documentID(source string, md map[string]string) string {
	var b strings.Builder
	b.WriteString(source)
	for _, k := range []string{MetaPage, MetaRow} {
		if v, ok := md[k]; ok {
			b.WriteString("#" + k + "=" + v)
		}
	}
	return uuid.NewSHA1(documentNamespace, []byte(b.String())).String()
}
