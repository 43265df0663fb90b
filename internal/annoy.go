package internal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mariotoffia/goannoy/builder"
	"github.com/mariotoffia/goannoy/interfaces"
	"github.com/xeipuuv/gojsonschema"
)

const (
	IndexFilename    = "index.ann"
	VectorsFilename  = "vectors.json"
	ChunksFilename   = "chunks.json"
	ManifestFilename = "manifest.json"
	DefaultNumTrees  = 10

	// minTreeItems is the smallest collection given an Annoy tree. goannoy
	// cannot reload a single-item index, so smaller ones are searched
	// exactly over their stored vectors.
	minTreeItems = 2

	indexFormatVersion = 1
)

const manifestSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "provider", "dimension", "chunks", "trees", "created_at"],
  "properties": {
    "version":    {"type": "integer", "minimum": 1},
    "provider":   {"type": "string", "minLength": 1},
    "dimension":  {"type": "integer", "minimum": 0},
    "chunks":     {"type": "integer", "minimum": 0},
    "trees":      {"type": "integer", "minimum": 1},
    "digest":     {"type": "string", "pattern": "^sha256:[0-9a-f]{64}$"},
    "created_at": {"type": "string", "minLength": 1}
  }
}`

var manifestSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(manifestSchemaJSON))
})

var _ VectorIndex = (*AnnoyIndex)(nil)

// AnnoyIndex is an immutable angular-distance index over a set of chunks.
// Item ids are positions in chunks. Collections below minTreeItems keep
// their vectors instead of a tree.
type AnnoyIndex struct {
	idx      interfaces.AnnoyIndex[float32, uint32]
	vectors  [][]float32
	embedder Embedder
	chunks   []Chunk
	manifest IndexManifest
}

func newAnnoy(dimension int) interfaces.AnnoyIndex[float32, uint32] {
	return builder.Index[float32, uint32]().
		AngularDistance(dimension).
		UseMultiWorkerPolicy().
		MmapIndexAllocator().
		Build()
}

// BuildAnnoyIndex embeds every chunk and builds a fresh index over them.
func BuildAnnoyIndex(ctx context.Context, embedder Embedder, chunks []Chunk, numTrees int) (*AnnoyIndex, error) {
	if numTrees <= 0 {
		numTrees = DefaultNumTrees
	}

	a := &AnnoyIndex{
		embedder: embedder,
		chunks:   chunks,
		manifest: IndexManifest{
			Version:   indexFormatVersion,
			Provider:  embedder.Name(),
			Dimension: embedder.Dimension(),
			Chunks:    len(chunks),
			Trees:     numTrees,
			CreatedAt: time.Now().UTC(),
		},
	}
	if len(chunks) == 0 {
		return a, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d vectors for %d chunks", ErrEmbedding, len(vectors), len(chunks))
	}

	dimension := len(vectors[0])
	if dimension == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrEmbedding)
	}
	for _, vec := range vectors {
		if len(vec) != dimension {
			return nil, fmt.Errorf("dimension mismatch: expected %d, got %d", dimension, len(vec))
		}
	}
	a.manifest.Dimension = dimension

	if len(chunks) < minTreeItems {
		a.vectors = vectors
		return a, nil
	}

	idx := newAnnoy(dimension)
	for i, vec := range vectors {
		idx.AddItem(uint32(i), vec)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx.Build(numTrees, -1)

	a.idx = idx
	return a, nil
}

func (a *AnnoyIndex) Len() int {
	return len(a.chunks)
}

func (a *AnnoyIndex) Manifest() IndexManifest {
	return a.manifest
}

// Search returns up to k chunks ordered by similarity to query, most
// similar first. An empty index or k <= 0 yields no results.
func (a *AnnoyIndex) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	if k <= 0 || len(a.chunks) == 0 || (a.idx == nil && a.vectors == nil) {
		return nil, nil
	}
	k = min(k, len(a.chunks))

	vec, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vec) != a.manifest.Dimension {
		return nil, fmt.Errorf("dimension mismatch: expected %d, got %d", a.manifest.Dimension, len(vec))
	}

	if a.idx == nil {
		return a.searchExact(vec, k), nil
	}

	searchCtx := a.idx.CreateContext()
	ids, distances := a.idx.GetNnsByVector(vec, k, -1, searchCtx)

	results := make([]SearchResult, 0, len(ids))
	for i, id := range ids {
		if int(id) >= len(a.chunks) {
			continue
		}

		// angular distance is in [0, 2]
		var score float32
		if i < len(distances) {
			score = 1.0 - distances[i]/2.0
		}

		results = append(results, SearchResult{
			Chunk: a.chunks[id],
			Score: score,
		})
	}

	return results, nil
}

// searchExact ranks the stored vectors by angular distance, scored the
// same way as tree results.
func (a *AnnoyIndex) searchExact(query []float32, k int) []SearchResult {
	results := make([]SearchResult, 0, len(a.vectors))
	for i, vec := range a.vectors {
		d := math.Sqrt(max(0, 2-2*cosine(query, vec)))
		results = append(results, SearchResult{Chunk: a.chunks[i], Score: float32(1 - d/2)})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results[:min(k, len(results))]
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Close releases the memory mapping of a loaded or built tree.
func (a *AnnoyIndex) Close() error {
	if c, ok := a.idx.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Save writes the index, chunk sidecar and manifest into a temporary
// directory next to path and then moves it into place.
func (a *AnnoyIndex) Save(ctx context.Context, path string) error {
	parent := filepath.Dir(path)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(path)+"-")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	manifest := a.manifest
	var dataPath string
	switch {
	case a.idx != nil:
		dataPath = filepath.Join(tmp, IndexFilename)
		if err := a.idx.Save(dataPath); err != nil {
			return fmt.Errorf("save index: %w", err)
		}
	case a.vectors != nil:
		dataPath = filepath.Join(tmp, VectorsFilename)
		if err := writeJSONFile(dataPath, a.vectors); err != nil {
			return fmt.Errorf("write vectors: %w", err)
		}
	}
	if dataPath != "" {
		digest, err := digestFile(dataPath)
		if err != nil {
			return err
		}
		manifest.Digest = digest
	}

	if err := writeJSONFile(filepath.Join(tmp, ChunksFilename), a.chunks); err != nil {
		return fmt.Errorf("write chunks: %w", err)
	}
	if err := writeJSONFile(filepath.Join(tmp, ManifestFilename), manifest); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return replaceDir(tmp, path)
}

// LoadAnnoyIndex restores an index saved by Save. embedder must be the
// provider that built it; pass nil to only inspect the index.
func LoadAnnoyIndex(ctx context.Context, path string, embedder Embedder) (*AnnoyIndex, error) {
	manifest, err := ReadIndexManifest(path)
	if err != nil {
		return nil, err
	}

	if embedder != nil {
		if embedder.Name() != manifest.Provider {
			return nil, fmt.Errorf("%w: index uses %q, active provider is %q",
				ErrProviderMismatch, manifest.Provider, embedder.Name())
		}
		if dim := embedder.Dimension(); dim > 0 && manifest.Chunks > 0 && dim != manifest.Dimension {
			return nil, fmt.Errorf("%w: index dimension %d, provider dimension %d",
				ErrProviderMismatch, manifest.Dimension, dim)
		}
	}

	chunkData, err := os.ReadFile(filepath.Join(path, ChunksFilename))
	if err != nil {
		return nil, fmt.Errorf("%w: read chunks: %v", ErrCorruptIndex, err)
	}
	var chunks []Chunk
	if err := json.Unmarshal(chunkData, &chunks); err != nil {
		return nil, fmt.Errorf("%w: parse chunks: %v", ErrCorruptIndex, err)
	}
	if len(chunks) != manifest.Chunks {
		return nil, fmt.Errorf("%w: manifest lists %d chunks, sidecar has %d",
			ErrCorruptIndex, manifest.Chunks, len(chunks))
	}

	a := &AnnoyIndex{
		embedder: embedder,
		chunks:   chunks,
		manifest: manifest,
	}
	if manifest.Chunks == 0 {
		return a, nil
	}

	dataPath := filepath.Join(path, IndexFilename)
	if manifest.Chunks < minTreeItems {
		dataPath = filepath.Join(path, VectorsFilename)
	}
	digest, err := digestFile(dataPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	if manifest.Digest != "" && digest != manifest.Digest {
		return nil, fmt.Errorf("%w: index digest %s does not match manifest", ErrCorruptIndex, digest)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if manifest.Chunks < minTreeItems {
		vectors, err := readVectors(dataPath, manifest)
		if err != nil {
			return nil, err
		}
		a.vectors = vectors
		return a, nil
	}

	idx := newAnnoy(manifest.Dimension)
	if err := loadAnnoy(idx, dataPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	a.idx = idx

	return a, nil
}

func readVectors(path string, manifest IndexManifest) ([][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read vectors: %v", ErrCorruptIndex, err)
	}
	var vectors [][]float32
	if err := json.Unmarshal(data, &vectors); err != nil {
		return nil, fmt.Errorf("%w: parse vectors: %v", ErrCorruptIndex, err)
	}
	if len(vectors) != manifest.Chunks {
		return nil, fmt.Errorf("%w: manifest lists %d chunks, vectors has %d",
			ErrCorruptIndex, manifest.Chunks, len(vectors))
	}
	for _, vec := range vectors {
		if len(vec) != manifest.Dimension {
			return nil, fmt.Errorf("%w: vector has %d dimensions, manifest %d",
				ErrCorruptIndex, len(vec), manifest.Dimension)
		}
	}
	return vectors, nil
}

// ReadIndexManifest reads the manifest of the index saved at path without
// touching the index itself.
func ReadIndexManifest(path string) (IndexManifest, error) {
	data, err := os.ReadFile(filepath.Join(path, ManifestFilename))
	if errors.Is(err, fs.ErrNotExist) {
		return IndexManifest{}, fmt.Errorf("%w: %s", ErrIndexNotFound, path)
	}
	if err != nil {
		return IndexManifest{}, fmt.Errorf("read manifest: %w", err)
	}
	return ReadManifest(data)
}

// ReadManifest validates and decodes a manifest.json document.
func ReadManifest(data []byte) (IndexManifest, error) {
	schema, err := manifestSchema()
	if err != nil {
		return IndexManifest{}, fmt.Errorf("compile manifest schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return IndexManifest{}, fmt.Errorf("%w: manifest: %v", ErrCorruptIndex, err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return IndexManifest{}, fmt.Errorf("%w: manifest: %s", ErrCorruptIndex, strings.Join(problems, "; "))
	}

	var manifest IndexManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return IndexManifest{}, fmt.Errorf("%w: manifest: %v", ErrCorruptIndex, err)
	}
	if manifest.Version > indexFormatVersion {
		return IndexManifest{}, fmt.Errorf("%w: unsupported index version %d", ErrCorruptIndex, manifest.Version)
	}

	return manifest, nil
}

func loadAnnoy(idx interfaces.AnnoyIndex[float32, uint32], path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("load index: %v", r)
		}
	}()

	if err := idx.Load(path); err != nil {
		return fmt.Errorf("load index: %w", err)
	}
	return nil
}

func digestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func replaceDir(src, dst string) error {
	var old string
	if _, err := os.Stat(dst); err == nil {
		old = fmt.Sprintf("%s.old-%d", dst, time.Now().UnixNano())
		if err := os.Rename(dst, old); err != nil {
			return fmt.Errorf("move previous index: %w", err)
		}
	}

	if err := os.Rename(src, dst); err != nil {
		if old != "" {
			_ = os.Rename(old, dst)
		}
		return fmt.Errorf("install index: %w", err)
	}

	if old != "" {
		_ = os.RemoveAll(old)
	}
	return nil
}
