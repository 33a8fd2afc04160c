package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Point types stored in the collection.
const (
	pointDocument = "document"
	pointChunk    = "chunk"
	pointManifest = "manifest"
)

// vectorName is the named vector holding chunk embeddings. Documents and the
// manifest are stored without vectors in the same collection.
const vectorName = "content"

// pointNamespace derives deterministic point IDs from document and chunk IDs.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("plexi:points"))

// QdrantStorage keeps a built index in a Qdrant collection.
type QdrantStorage struct {
	client     *qdrant.Client
	host       string
	port       int
	collection string
}

// NewQdrantStorage connects to Qdrant over gRPC and fails fast if it stays
// unreachable after the health-check retries.
func NewQdrantStorage(host string, port int, collection string) (*QdrantStorage, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	storage := &QdrantStorage{
		client:     client,
		host:       host,
		port:       port,
		collection: collection,
	}

	if err := storage.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return storage, nil
}

func newRetryBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

func (s *QdrantStorage) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error { return s.Health(ctx) }, backoff.WithContext(newRetryBackOff(), ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStorage) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Replace drops the collection and stores idx in a fresh one. Rebuilding
// replaces; nothing from the previous index survives.
func (s *QdrantStorage) Replace(ctx context.Context, idx *VectorIndex) error {
	if err := s.recreateCollection(ctx, idx.Manifest().Dimension); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(idx.documents)+len(idx.chunks)+1)
	for _, d := range idx.documents {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(pointDocument, d.ID)),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{}),
			Payload: qdrant.NewValueMap(map[string]any{
				"type":        pointDocument,
				"document_id": d.ID,
				"name":        d.Name,
				"mime_type":   d.MimeType,
				"text":        d.Text,
			}),
		})
	}
	for _, c := range idx.chunks {
		points = append(points, &qdrant.PointStruct{
			Id: qdrant.NewIDUUID(pointID(pointChunk, c.ID)),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				vectorName: qdrant.NewVector(c.Embedding...),
			}),
			Payload: qdrant.NewValueMap(map[string]any{
				"type":        pointChunk,
				"chunk_id":    c.ID,
				"document_id": c.DocumentID,
				"chunk_index": c.Index,
				"header_path": c.HeaderPath,
				"text":        c.Text,
			}),
		})
	}
	m := idx.Manifest()
	points = append(points, &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(pointID(pointManifest, "")),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{}),
		Payload: qdrant.NewValueMap(map[string]any{
			"type":            pointManifest,
			"embedding_model": m.EmbeddingModel,
			"dimension":       m.Dimension,
			"document_count":  m.DocumentCount,
			"chunk_count":     m.ChunkCount,
			"built_at":        m.BuiltAt.UTC().Format(time.RFC3339Nano),
			"root_folder_id":  m.RootFolderID,
		}),
	})

	const batchSize = 100
	for i := 0; i < len(points); i += batchSize {
		end := min(i+batchSize, len(points))
		if err := s.upsertWithRetry(ctx, points[i:end]); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

func (s *QdrantStorage) recreateCollection(ctx context.Context, dimension int) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, name := range collections {
		if name == s.collection {
			if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
				return fmt.Errorf("failed to delete collection: %w", err)
			}
			break
		}
	}

	if dimension <= 0 {
		// Qdrant rejects zero-sized vectors; an empty corpus still gets a manifest.
		dimension = 1
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			vectorName: {
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	for _, field := range []string{"type", "document_id"} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}
	return nil
}

func (s *QdrantStorage) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	operation := func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
		})
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(newRetryBackOff(), ctx))
}

// LoadManifest reads the manifest point of the collection.
func (s *QdrantStorage) LoadManifest(ctx context.Context) (Manifest, error) {
	result, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(pointID(pointManifest, ""))},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrIndexNotFound, err)
	}
	if len(result) == 0 {
		return Manifest{}, fmt.Errorf("%w: collection %s has no manifest", ErrIndexNotFound, s.collection)
	}

	payload := result[0].Payload
	builtAt, err := time.Parse(time.RFC3339Nano, payload["built_at"].GetStringValue())
	if err != nil {
		builtAt = time.Time{}
	}
	return Manifest{
		EmbeddingModel: payload["embedding_model"].GetStringValue(),
		Dimension:      int(payload["dimension"].GetIntegerValue()),
		DocumentCount:  int(payload["document_count"].GetIntegerValue()),
		ChunkCount:     int(payload["chunk_count"].GetIntegerValue()),
		BuiltAt:        builtAt,
		RootFolderID:   payload["root_folder_id"].GetStringValue(),
	}, nil
}

// Open returns a read-only view of the stored index after checking that it
// was built with embeddingModel (skipped when empty).
func (s *QdrantStorage) Open(ctx context.Context, embeddingModel string) (*QdrantIndex, error) {
	manifest, err := s.LoadManifest(ctx)
	if err != nil {
		return nil, err
	}
	if embeddingModel != "" {
		if err := manifest.CheckModel(embeddingModel); err != nil {
			return nil, err
		}
	}
	return &QdrantIndex{storage: s, manifest: manifest}, nil
}

// GetDocument retrieves a stored document by its Drive file ID.
func (s *QdrantStorage) GetDocument(ctx context.Context, id string) (*Document, error) {
	result, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(pointID(pointDocument, id))},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if len(result) == 0 || result[0].Payload["type"].GetStringValue() != pointDocument {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}

	payload := result[0].Payload
	return &Document{
		ID:       payload["document_id"].GetStringValue(),
		Name:     payload["name"].GetStringValue(),
		MimeType: payload["mime_type"].GetStringValue(),
		Text:     payload["text"].GetStringValue(),
	}, nil
}

// QdrantIndex searches an index stored in Qdrant.
type QdrantIndex struct {
	storage  *QdrantStorage
	manifest Manifest
}

// Manifest returns the manifest read when the index was opened.
func (q *QdrantIndex) Manifest() Manifest { return q.manifest }

// GetDocument retrieves a document's full text.
func (q *QdrantIndex) GetDocument(ctx context.Context, id string) (*Document, error) {
	return q.storage.GetDocument(ctx, id)
}

// Search returns the k chunks nearest to query, best first.
func (q *QdrantIndex) Search(ctx context.Context, query []float32, k int) ([]*ScoredChunk, error) {
	if q.manifest.ChunkCount == 0 {
		return nil, nil
	}
	if len(query) != q.manifest.Dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(query), q.manifest.Dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	using := vectorName
	results, err := q.storage.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.storage.collection,
		Query:          qdrant.NewQuery(query...),
		Using:          &using,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("type", pointChunk)},
		},
		Limit:       qdrant.PtrOf(uint64(k)),
		WithPayload: qdrant.NewWithPayload(true),
		WithVectors: qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	hits := make([]*ScoredChunk, 0, len(results))
	for _, result := range results {
		payload := result.Payload
		hits = append(hits, &ScoredChunk{
			Chunk: &Chunk{
				ID:         payload["chunk_id"].GetStringValue(),
				DocumentID: payload["document_id"].GetStringValue(),
				Index:      int(payload["chunk_index"].GetIntegerValue()),
				HeaderPath: payload["header_path"].GetStringValue(),
				Text:       payload["text"].GetStringValue(),
			},
			Score: float64(result.Score),
		})
	}
	return hits, nil
}

// ListDocuments scrolls every stored document, sorted by name. Text is not loaded.
func (q *QdrantIndex) ListDocuments(ctx context.Context) ([]Document, error) {
	var (
		documents []Document
		offset    *qdrant.PointId
	)
	const pageSize = uint32(100)

	for {
		results, err := q.storage.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: q.storage.collection,
			Filter: &qdrant.Filter{
				Must: []*qdrant.Condition{qdrant.NewMatch("type", pointDocument)},
			},
			// One extra point marks where the next page starts; Qdrant offsets are inclusive.
			Limit:       qdrant.PtrOf(pageSize + 1),
			Offset:      offset,
			WithPayload: qdrant.NewWithPayloadInclude("document_id", "name", "mime_type"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll documents: %w", err)
		}

		var next *qdrant.PointId
		if uint32(len(results)) > pageSize {
			next = results[pageSize].Id
			results = results[:pageSize]
		}

		for _, result := range results {
			documents = append(documents, Document{
				ID:       result.Payload["document_id"].GetStringValue(),
				Name:     result.Payload["name"].GetStringValue(),
				MimeType: result.Payload["mime_type"].GetStringValue(),
			})
		}

		if next == nil {
			break
		}
		offset = next
	}

	sortDocuments(documents)
	return documents, nil
}

func pointID(kind, id string) string {
	return uuid.NewSHA1(pointNamespace, []byte(kind+":"+id)).String()
}

func sortDocuments(documents []Document) {
	sort.SliceStable(documents, func(i, j int) bool { return documents[i].Name < documents[j].Name })
}
