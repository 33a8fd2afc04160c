package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/plexi-bot/plexi/internal/storage"
)

// QueryEmbedder embeds user utterances with the model the index was built with.
type QueryEmbedder interface {
	Model() string
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Retriever finds the fragments most relevant to an utterance.
type Retriever struct {
	embedder QueryEmbedder
	index    storage.Searcher
	topK     int
}

// NewRetriever creates a Retriever returning topK fragments per query.
func NewRetriever(embedder QueryEmbedder, index storage.Searcher, topK int) *Retriever {
	return &Retriever{embedder: embedder, index: index, topK: topK}
}

// Retrieve embeds query and searches the index.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]*storage.ScoredChunk, error) {
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.index.Search(ctx, vector, r.topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	return hits, nil
}

// SharedIndex loads the persisted index once and hands the same read-only
// instance to every session. A failed load is retried on the next call.
type SharedIndex struct {
	mu   sync.Mutex
	load func(ctx context.Context) (storage.Index, error)
	idx  storage.Index
}

// NewSharedIndex wraps a loader.
func NewSharedIndex(load func(ctx context.Context) (storage.Index, error)) *SharedIndex {
	return &SharedIndex{load: load}
}

// Load returns the cached index, loading it on first use.
func (s *SharedIndex) Load(ctx context.Context) (storage.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.idx != nil {
		return s.idx, nil
	}
	idx, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.idx = idx
	return idx, nil
}

// Invalidate drops the cached index so the next Load picks up a rebuilt one.
// Sessions already holding the previous index keep using it.
func (s *SharedIndex) Invalidate() {
	s.mu.Lock()
	s.idx = nil
	s.mu.Unlock()
}
