package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// Searcher answers nearest-neighbour queries over an index.
type Searcher interface {
	Search(ctx context.Context, query []float32, k int) ([]*ScoredChunk, error)
}

// Index is a loaded, read-only index from any backend.
type Index interface {
	Searcher
	Manifest() Manifest
	ListDocuments(ctx context.Context) ([]Document, error)
	GetDocument(ctx context.Context, id string) (*Document, error)
}

var (
	_ Index = (*VectorIndex)(nil)
	_ Index = (*QdrantIndex)(nil)
)

// VectorIndex is an immutable in-memory index. It is safe for concurrent
// searches from any number of sessions.
type VectorIndex struct {
	manifest  Manifest
	documents []Document
	byID      map[string]int
	chunks    []Chunk
	norms     []float64
}

// NewVectorIndex validates chunks against the manifest and precomputes vector norms.
// A zero Dimension is taken from the first chunk; counts are filled in.
func NewVectorIndex(manifest Manifest, documents []Document, chunks []Chunk) (*VectorIndex, error) {
	if manifest.Dimension == 0 && len(chunks) > 0 {
		manifest.Dimension = len(chunks[0].Embedding)
	}
	manifest.DocumentCount = len(documents)
	manifest.ChunkCount = len(chunks)

	idx := &VectorIndex{
		manifest:  manifest,
		documents: append([]Document(nil), documents...),
		byID:      make(map[string]int, len(documents)),
		chunks:    append([]Chunk(nil), chunks...),
		norms:     make([]float64, len(chunks)),
	}
	for i, d := range idx.documents {
		// Later duplicates win lookups; both stay in the corpus.
		idx.byID[d.ID] = i
	}
	for i, c := range idx.chunks {
		if len(c.Embedding) != manifest.Dimension {
			return nil, fmt.Errorf("%w: chunk %s has %d dimensions, expected %d",
				ErrDimensionMismatch, c.ID, len(c.Embedding), manifest.Dimension)
		}
		idx.norms[i] = norm(c.Embedding)
	}
	return idx, nil
}

// Manifest returns the build description.
func (v *VectorIndex) Manifest() Manifest { return v.manifest }

// Documents returns the corpus in build order.
func (v *VectorIndex) Documents() []Document {
	return append([]Document(nil), v.documents...)
}

// Chunks returns the embedded fragments in build order.
func (v *VectorIndex) Chunks() []Chunk {
	return append([]Chunk(nil), v.chunks...)
}

// ListDocuments returns the corpus sorted by name.
func (v *VectorIndex) ListDocuments(ctx context.Context) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	documents := v.Documents()
	sortDocuments(documents)
	return documents, nil
}

// Document looks up a document by ID.
func (v *VectorIndex) Document(id string) (Document, error) {
	i, ok := v.byID[id]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	return v.documents[i], nil
}

// GetDocument is Document behind the Index interface.
func (v *VectorIndex) GetDocument(ctx context.Context, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := v.Document(id)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Search returns the k chunks most similar to query by cosine similarity,
// best first. Ties keep build order.
func (v *VectorIndex) Search(ctx context.Context, query []float32, k int) ([]*ScoredChunk, error) {
	// An empty index has no dimension to match against.
	if len(v.chunks) == 0 {
		return nil, ctx.Err()
	}
	if len(query) != v.manifest.Dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(query), v.manifest.Dimension)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	type candidate struct {
		pos   int
		score float64
	}
	qn := norm(query)
	candidates := make([]candidate, len(v.chunks))
	for i := range v.chunks {
		candidates[i] = candidate{pos: i, score: cosine(query, v.chunks[i].Embedding, qn, v.norms[i])}
	}
	sort.SliceStable(candidates, func(a, b int) bool { return candidates[a].score > candidates[b].score })

	hits := make([]*ScoredChunk, 0, min(k, len(candidates)))
	for _, c := range candidates[:min(k, len(candidates))] {
		chunk := v.chunks[c.pos]
		hits = append(hits, &ScoredChunk{Chunk: &chunk, Score: c.score})
	}
	return hits, nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (na * nb)
}
