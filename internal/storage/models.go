// Package storage holds the corpus data model and the vector index backends.
package storage

import (
	"fmt"
	"time"
)

// Document is one ingested file. ID equals the originating Drive file ID so
// retrieval results stay traceable to their source.
type Document struct {
	ID       string
	Name     string
	MimeType string
	Text     string // Never empty or whitespace-only
}

// Chunk is an embedded fragment of a Document.
type Chunk struct {
	ID         string    // "<DocumentID>#<Index>"
	DocumentID string    // Links to Document.ID
	Index      int       // Position in document (0, 1, 2...)
	HeaderPath string    // Markdown section hierarchy, empty for other formats
	Text       string    // Fragment text
	Embedding  []float32 // Produced by Manifest.EmbeddingModel
}

// ScoredChunk is a search hit with its cosine similarity.
type ScoredChunk struct {
	Chunk *Chunk
	Score float64
}

// Manifest describes how an index was built.
type Manifest struct {
	EmbeddingModel string
	Dimension      int
	DocumentCount  int
	ChunkCount     int
	BuiltAt        time.Time
	RootFolderID   string
}

// ChunkID formats the stable identifier of a document fragment.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s#%d", documentID, index)
}

// CheckModel verifies that the index was built with model.
func (m Manifest) CheckModel(model string) error {
	if m.EmbeddingModel != model {
		return fmt.Errorf("%w: index built with %q, querying with %q", ErrEmbeddingModelMismatch, m.EmbeddingModel, model)
	}
	return nil
}
