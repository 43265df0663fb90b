package internal

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type SearchResult struct {
	Chunk Chunk
	Score float32
}

// IndexManifest describes a persisted index and the embedder that built it.
type IndexManifest struct {
	Version   int       `json:"version"`
	Provider  string    `json:"provider"`
	Dimension int       `json:"dimension"`
	Chunks    int       `json:"chunks"`
	Trees     int       `json:"trees"`
	Digest    string    `json:"digest,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type VectorIndex interface {
	Search(ctx context.Context, query string, k int) ([]SearchResult, error)
	Save(ctx context.Context, path string) error
	Manifest() IndexManifest
	Len() int
	Close() error
}

// ActiveIndex holds the single index queries run against. Readers take a
// snapshot; rebuilds are serialized and swapped in whole. A replaced index
// is closed once the searches still running on it return.
type ActiveIndex struct {
	current atomic.Pointer[indexSlot]
	rebuild sync.Mutex
}

type indexSlot struct {
	index VectorIndex

	mu     sync.RWMutex
	closed bool
}

// retire waits for in-flight searches and closes the slot's index.
func (s *indexSlot) retire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.index.Close()
}

func NewActiveIndex() *ActiveIndex {
	return &ActiveIndex{}
}

func (a *ActiveIndex) Current() (VectorIndex, bool) {
	slot := a.current.Load()
	if slot == nil || slot.index == nil {
		return nil, false
	}
	return slot.index, true
}

// Swap installs idx and releases the previously active index.
func (a *ActiveIndex) Swap(idx VectorIndex) error {
	old := a.current.Swap(&indexSlot{index: idx})
	if old == nil || old.index == nil {
		return nil
	}
	if err := old.retire(); err != nil {
		return fmt.Errorf("close previous index: %w", err)
	}
	return nil
}

// Rebuild runs build while holding the rebuild lock and installs the
// result on success. A failed build leaves the current index in place.
func (a *ActiveIndex) Rebuild(ctx context.Context, build func(context.Context) (VectorIndex, error)) (VectorIndex, error) {
	a.rebuild.Lock()
	defer a.rebuild.Unlock()

	idx, err := build(ctx)
	if err != nil {
		return nil, err
	}
	return idx, a.Swap(idx)
}

func (a *ActiveIndex) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	for {
		slot := a.current.Load()
		if slot == nil || slot.index == nil {
			return nil, ErrNoIndex
		}

		slot.mu.RLock()
		if slot.closed {
			// replaced between Load and RLock; the new slot is already set
			slot.mu.RUnlock()
			continue
		}
		results, err := slot.index.Search(ctx, query, k)
		slot.mu.RUnlock()
		return results, err
	}
}

// Close releases the active index. Later searches report ErrNoIndex.
func (a *ActiveIndex) Close() error {
	old := a.current.Swap(nil)
	if old == nil || old.index == nil {
		return nil
	}
	return old.retire()
}
