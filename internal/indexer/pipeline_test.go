package indexer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexi-bot/plexi/internal/chunker"
	"github.com/plexi-bot/plexi/internal/drive"
	"github.com/plexi-bot/plexi/internal/extract"
	"github.com/plexi-bot/plexi/internal/storage"
)

func fastPolicy() drive.RetryPolicy {
	return drive.RetryPolicy{NewBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} }}
}

// semesterDrive lays out Sem5/Maths/Notes/{ch1.pdf (valid), ch2.pdf (corrupt)}.
func semesterDrive() *memoryDrive {
	src := newMemoryDrive()
	src.folder("root", "sem5")
	src.folder("sem5", "maths")
	src.folder("maths", "notes")
	src.file("notes", "ch1", "ch1.pdf", "application/pdf",
		testPDF("Chapter 1. A set is a well defined collection of objects.", "The empty set has no elements."))
	src.file("notes", "ch2", "ch2.pdf", "application/pdf", corruptBytes())
	return src
}

func newTestPipeline(src *memoryDrive, embedder Embedder, dir string) *Pipeline {
	walker := drive.NewWalker(src, fastPolicy(), nil, nil)
	fetcher := drive.NewFetcher(src, drive.FetcherOptions{MaxAttempts: 3}, nil, nil)
	assembler := NewAssembler(fetcher, extract.NewWithPDFOpener(fakePDFOpener, nil), 2, nil)
	builder := NewBuilder(embedder, chunker.New(chunker.Options{SentencesPerChunk: 2, OverlapSentences: 0}), nil)
	return NewPipeline(walker, assembler, builder, storage.BundleStore{Dir: dir}, nil)
}

func TestPipeline_CorruptPDFIsSkipped(t *testing.T) {
	ctx := context.Background()
	src := semesterDrive()
	dir := filepath.Join(t.TempDir(), "index")

	result, err := newTestPipeline(src, &hashEmbedder{dim: 32}, dir).Run(ctx, "root")
	require.NoError(t, err)

	assert.Equal(t, 2, result.FilesListed)
	assert.Equal(t, 1, result.Documents)
	skipped := result.Skipped()
	require.Len(t, skipped, 1)
	assert.Equal(t, "ch2", skipped[0].File.ID)
	assert.Equal(t, SkipEmptyText, skipped[0].Skip.Kind)

	idx, err := storage.LoadBundle(ctx, dir, "hash-embed-v1")
	require.NoError(t, err)
	docs := idx.Documents()
	require.Len(t, docs, 1)
	assert.Equal(t, "ch1", docs[0].ID)
	assert.Contains(t, docs[0].Text, "well defined collection")
	assert.Equal(t, "root", idx.Manifest().RootFolderID)
	assert.Equal(t, result.Chunks, idx.Manifest().ChunkCount)
}

func TestPipeline_QueryFindsSource(t *testing.T) {
	ctx := context.Background()
	src := semesterDrive()
	src.file("root", "syllabus", "syllabus.txt", "text/plain", []byte("Semester five covers graphs, trees and relations."))
	dir := filepath.Join(t.TempDir(), "index")
	embedder := &hashEmbedder{dim: 64}

	_, err := newTestPipeline(src, embedder, dir).Run(ctx, "root")
	require.NoError(t, err)

	idx, err := storage.LoadBundle(ctx, dir, embedder.Model())
	require.NoError(t, err)

	q, err := embedder.EmbedQuery(ctx, "empty set elements")
	require.NoError(t, err)
	hits, err := idx.Search(ctx, q, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "ch1", hits[0].Chunk.DocumentID)
}

func TestPipeline_FetchRetriesThenSkips(t *testing.T) {
	src := semesterDrive()
	src.failing["ch1"] = true

	result, err := newTestPipeline(src, &hashEmbedder{dim: 8}, filepath.Join(t.TempDir(), "index")).Run(context.Background(), "root")
	require.NoError(t, err)

	assert.Equal(t, 0, result.Documents)
	assert.Equal(t, 3, src.opens["ch1"])
	assert.Len(t, result.Skipped(), 2)
}

func TestPipeline_RebuildReplacesIndex(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "index")

	src := semesterDrive()
	src.file("root", "extra", "extra.txt", "text/plain", []byte("Extra notes."))
	_, err := newTestPipeline(src, &hashEmbedder{dim: 8}, dir).Run(ctx, "root")
	require.NoError(t, err)

	_, err = newTestPipeline(semesterDrive(), &hashEmbedder{dim: 8}, dir).Run(ctx, "root")
	require.NoError(t, err)

	idx, err := storage.LoadBundle(ctx, dir, "")
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Manifest().DocumentCount)
}

func TestPipeline_EmbeddingFailureFailsRun(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	_, err := newTestPipeline(semesterDrive(), failingEmbedder{}, dir).Run(context.Background(), "root")
	require.Error(t, err)

	_, err = storage.LoadManifest(context.Background(), dir)
	assert.ErrorIs(t, err, storage.ErrIndexNotFound, "nothing is persisted on failure")
}

func TestPipeline_RootListingFailureFailsRun(t *testing.T) {
	walker := walkerFunc(func(context.Context, string) (*drive.WalkResult, error) {
		return nil, drive.ErrUnauthorized
	})
	p := NewPipeline(walker, nil, nil, nil, nil)

	_, err := p.Run(context.Background(), "root")
	assert.ErrorIs(t, err, drive.ErrUnauthorized)
}

type walkerFunc func(ctx context.Context, rootID string) (*drive.WalkResult, error)

func (f walkerFunc) Walk(ctx context.Context, rootID string) (*drive.WalkResult, error) { return f(ctx, rootID) }

func TestBuilder_FragmentsAndRecordsModel(t *testing.T) {
	embedder := &hashEmbedder{dim: 16}
	b := NewBuilder(embedder, chunker.New(chunker.Options{}), nil)
	b.now = func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }

	idx, err := b.Build(context.Background(), []storage.Document{
		{ID: "md", MimeType: "text/markdown", Text: "# Graphs\n\nVertices and edges.\n\n## Trees\n\nAcyclic graphs."},
		{ID: "heads", MimeType: "text/markdown", Text: "# Only\n## Headings"},
	}, "root")
	require.NoError(t, err)

	m := idx.Manifest()
	assert.Equal(t, "hash-embed-v1", m.EmbeddingModel)
	assert.Equal(t, 16, m.Dimension)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), m.BuiltAt)

	chunks := idx.Chunks()
	require.Len(t, chunks, 3)
	assert.Equal(t, "md#0", chunks[0].ID)
	assert.Equal(t, "# Graphs", chunks[0].HeaderPath)
	assert.Equal(t, "md#1", chunks[1].ID)
	assert.Equal(t, "heads#0", chunks[2].ID)
	assert.Equal(t, 1, embedder.calls, "one embedding call per build")
}

func TestBuilder_EmptyCorpus(t *testing.T) {
	embedder := &hashEmbedder{dim: 16}
	idx, err := NewBuilder(embedder, chunker.New(chunker.Options{}), nil).Build(context.Background(), nil, "root")
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Manifest().ChunkCount)
	assert.Zero(t, embedder.calls)
}
