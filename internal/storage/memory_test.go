package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testIndex builds a small index of unit-length 3-d vectors.
func testIndex(t *testing.T) *VectorIndex {
	t.Helper()
	documents := []Document{
		{ID: "ch1", Name: "ch1.pdf", MimeType: "application/pdf", Text: "Sets and relations."},
		{ID: "ch3", Name: "ch3.pdf", MimeType: "application/pdf", Text: "Graphs."},
		{ID: "syllabus", Name: "syllabus.txt", MimeType: "text/plain", Text: "Syllabus."},
	}
	chunks := []Chunk{
		{ID: ChunkID("ch1", 0), DocumentID: "ch1", Index: 0, Text: "Sets", Embedding: []float32{1, 0, 0}},
		{ID: ChunkID("ch1", 1), DocumentID: "ch1", Index: 1, Text: "Relations", Embedding: []float32{0.8, 0.6, 0}},
		{ID: ChunkID("ch3", 0), DocumentID: "ch3", Index: 0, Text: "Graphs", Embedding: []float32{0, 1, 0}},
		{ID: ChunkID("syllabus", 0), DocumentID: "syllabus", Index: 0, Text: "Syllabus", Embedding: []float32{0, 0, 1}},
	}
	idx, err := NewVectorIndex(Manifest{
		EmbeddingModel: "test-embed-1",
		BuiltAt:        time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		RootFolderID:   "root",
	}, documents, chunks)
	require.NoError(t, err)
	return idx
}

func chunkIDs(hits []*ScoredChunk) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.Chunk.ID
	}
	return ids
}

func TestNewVectorIndex_FillsManifest(t *testing.T) {
	m := testIndex(t).Manifest()
	assert.Equal(t, 3, m.Dimension)
	assert.Equal(t, 3, m.DocumentCount)
	assert.Equal(t, 4, m.ChunkCount)
}

func TestNewVectorIndex_RejectsMixedDimensions(t *testing.T) {
	_, err := NewVectorIndex(Manifest{}, nil, []Chunk{
		{ID: "a#0", Embedding: []float32{1, 0}},
		{ID: "b#0", Embedding: []float32{1, 0, 0}},
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSearch_RanksByCosine(t *testing.T) {
	idx := testIndex(t)

	hits, err := idx.Search(context.Background(), []float32{0.9, 0.1, 0}, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"ch1#0", "ch1#1"}, chunkIDs(hits))
	assert.Greater(t, hits[0].Score, hits[1].Score)
	assert.Equal(t, "ch1", hits[0].Chunk.DocumentID)
}

func TestSearch_KLargerThanIndex(t *testing.T) {
	hits, err := testIndex(t).Search(context.Background(), []float32{0, 0, 1}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 4)
	assert.Equal(t, "syllabus#0", hits[0].Chunk.ID)
}

func TestSearch_DimensionMismatch(t *testing.T) {
	_, err := testIndex(t).Search(context.Background(), []float32{1, 0}, 2)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSearch_EmptyIndexMatchesAnyQuery(t *testing.T) {
	idx, err := NewVectorIndex(Manifest{EmbeddingModel: "test-embed-1"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Manifest().Dimension)

	hits, err := idx.Search(context.Background(), []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearch_ResultsDoNotAliasIndex(t *testing.T) {
	idx := testIndex(t)

	hits, err := idx.Search(context.Background(), []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	hits[0].Chunk.Text = "mutated"

	again, err := idx.Search(context.Background(), []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "Sets", again[0].Chunk.Text)
}

func TestDocumentLookup(t *testing.T) {
	idx := testIndex(t)

	d, err := idx.Document("ch3")
	require.NoError(t, err)
	assert.Equal(t, "Graphs.", d.Text)

	_, err = idx.Document("missing")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	docs, err := idx.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ch1.pdf", docs[0].Name)
	assert.Equal(t, "syllabus.txt", docs[2].Name)
}

func TestManifestCheckModel(t *testing.T) {
	m := Manifest{EmbeddingModel: "text-embedding-3-small"}
	assert.NoError(t, m.CheckModel("text-embedding-3-small"))
	assert.ErrorIs(t, m.CheckModel("text-embedding-3-large"), ErrEmbeddingModelMismatch)
}
