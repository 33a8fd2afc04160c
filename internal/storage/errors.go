package storage

import "errors"

var (
	ErrIndexNotFound          = errors.New("index not found")
	ErrEmbeddingModelMismatch = errors.New("embedding model mismatch")
	ErrDimensionMismatch      = errors.New("embedding dimension mismatch")
	ErrQdrantUnreachable      = errors.New("qdrant server unreachable")
	ErrDocumentNotFound       = errors.New("document not found")
	ErrEmptyIndex             = errors.New("index has no chunks")
)
