package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/plexi-bot/plexi/internal/chunker"
	"github.com/plexi-bot/plexi/internal/metrics"
	"github.com/plexi-bot/plexi/internal/storage"
)

// Embedder is the embedding-model handle used to build an index.
type Embedder interface {
	Model() string
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Splitter fragments document text.
type Splitter interface {
	Split(text, mimeType string) ([]chunker.Fragment, error)
}

// Builder embeds a corpus into an in-memory VectorIndex.
type Builder struct {
	embedder Embedder
	splitter Splitter
	logger   *slog.Logger
	now      func() time.Time
}

// NewBuilder creates a Builder.
func NewBuilder(embedder Embedder, splitter Splitter, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		embedder: embedder,
		splitter: splitter,
		logger:   logger,
		now:      time.Now,
	}
}

// Build fragments and embeds every document. The result records the embedding
// model so it can be checked at query time.
func (b *Builder) Build(ctx context.Context, corpus []storage.Document, rootFolderID string) (*storage.VectorIndex, error) {
	var (
		chunks []storage.Chunk
		texts  []string
	)
	for _, doc := range corpus {
		frags, err := b.splitter.Split(doc.Text, doc.MimeType)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", doc.ID, err)
		}
		if len(frags) == 0 {
			// Headings-only markdown leaves no section bodies.
			frags = []chunker.Fragment{{Text: doc.Text}}
		}
		for _, f := range frags {
			chunks = append(chunks, storage.Chunk{
				ID:         storage.ChunkID(doc.ID, f.Index),
				DocumentID: doc.ID,
				Index:      f.Index,
				HeaderPath: f.HeaderPath,
				Text:       f.Text,
			})
			texts = append(texts, f.EmbeddingText())
		}
	}
	b.logger.Info("Embedding corpus", "documents", len(corpus), "chunks", len(chunks), "model", b.embedder.Model())

	if len(texts) > 0 {
		embeddings, err := b.embedder.GenerateEmbeddings(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embeddings: %w", err)
		}
		if len(embeddings) != len(chunks) {
			return nil, fmt.Errorf("embeddings: got %d vectors for %d chunks", len(embeddings), len(chunks))
		}
		for i := range chunks {
			chunks[i].Embedding = embeddings[i]
		}
	}

	idx, err := storage.NewVectorIndex(storage.Manifest{
		EmbeddingModel: b.embedder.Model(),
		BuiltAt:        b.now().UTC(),
		RootFolderID:   rootFolderID,
	}, corpus, chunks)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	metrics.ChunksIndexedTotal.Add(float64(len(chunks)))
	return idx, nil
}
