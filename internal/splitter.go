package internal

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators split on paragraphs, then lines, then words, then
// single characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// TextSplitter cuts text recursively on progressively finer separators so
// that no chunk is longer than ChunkSize characters. Consecutive chunks
// share up to ChunkOverlap characters, aligned to the separator in use.
type TextSplitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

func NewTextSplitter(chunkSize, chunkOverlap int) (*TextSplitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, %d)", chunkOverlap, chunkSize)
	}
	return &TextSplitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   DefaultSeparators,
	}, nil
}

func (s *TextSplitter) ChunkSize() int    { return s.chunkSize }
func (s *TextSplitter) ChunkOverlap() int { return s.chunkOverlap }

// SplitDocuments splits every document and copies its metadata onto each
// resulting chunk.
func (s *TextSplitter) SplitDocuments(docs []Document) []Chunk {
	var chunks []Chunk
	for _, doc := range docs {
		for i, text := range s.SplitText(doc.Content) {
			chunks = append(chunks, NewChunk(doc, i, text))
		}
	}
	return chunks
}

func (s *TextSplitter) SplitText(text string) []string {
	return s.split(text, s.separators)
}

func (s *TextSplitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var finer []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			finer = separators[i+1:]
			break
		}
	}

	var chunks, pending []string
	for _, piece := range splitKeepingSeparator(text, separator) {
		if length(piece) < s.chunkSize {
			pending = append(pending, piece)
			continue
		}

		if len(pending) > 0 {
			chunks = append(chunks, s.merge(pending)...)
			pending = nil
		}
		if len(finer) == 0 {
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, s.split(piece, finer)...)
		}
	}
	if len(pending) > 0 {
		chunks = append(chunks, s.merge(pending)...)
	}

	return chunks
}

// merge packs consecutive pieces into chunks of at most chunkSize,
// carrying a tail of up to chunkOverlap characters into the next chunk.
// Pieces already carry their leading separator.
func (s *TextSplitter) merge(pieces []string) []string {
	var chunks, window []string
	total := 0

	for _, piece := range pieces {
		n := length(piece)
		if total+n > s.chunkSize && len(window) > 0 {
			if chunk := joinChunk(window); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for total > s.chunkOverlap || (total+n > s.chunkSize && total > 0) {
				total -= length(window[0])
				window = window[1:]
			}
		}
		window = append(window, piece)
		total += n
	}

	if chunk := joinChunk(window); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func splitKeepingSeparator(text, separator string) []string {
	if separator == "" {
		pieces := make([]string, 0, len(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}

	parts := strings.Split(text, separator)
	pieces := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = separator + p
		}
		if p != "" {
			pieces = append(pieces, p)
		}
	}
	return pieces
}

func joinChunk(window []string) string {
	return strings.TrimSpace(strings.Join(window, ""))
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}
