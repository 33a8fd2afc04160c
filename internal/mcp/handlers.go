package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/plexi-bot/plexi/internal/chat"
	"github.com/plexi-bot/plexi/internal/storage"
)

const (
	defaultMaxResults = 5
	maxMaxResults     = 20
)

// makeSearchHandler creates the search_materials tool handler.
// Search flow:
// 1. Embed the query with the index's embedding model
// 2. Search fragments by cosine similarity
// 3. Drop fragments below the minimum score
// 4. Attach the source material's name to each fragment
func makeSearchHandler(index chat.IndexLoader, embedder chat.QueryEmbedder) func(
	context.Context, *mcp.CallToolRequest, SearchMaterialsInput,
) (*mcp.CallToolResult, SearchMaterialsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchMaterialsInput) (
		*mcp.CallToolResult, SearchMaterialsOutput, error,
	) {
		if strings.TrimSpace(input.Query) == "" {
			return nil, SearchMaterialsOutput{}, errors.New("query must not be empty")
		}
		maxResults := input.MaxResults
		if maxResults <= 0 {
			maxResults = defaultMaxResults
		}
		maxResults = min(maxResults, maxMaxResults)

		idx, err := index.Load(ctx)
		if err != nil {
			return nil, SearchMaterialsOutput{}, fmt.Errorf("failed to load index: %w", err)
		}
		if err := idx.Manifest().CheckModel(embedder.Model()); err != nil {
			return nil, SearchMaterialsOutput{}, err
		}

		hits, err := chat.NewRetriever(embedder, idx, maxResults).Retrieve(ctx, input.Query)
		if err != nil {
			return nil, SearchMaterialsOutput{}, fmt.Errorf("search failed: %w", err)
		}

		names := make(map[string]string)
		results := make([]SearchResult, 0, len(hits))
		for _, hit := range hits {
			if hit.Score < input.MinScore {
				continue
			}
			docID := hit.Chunk.DocumentID
			name, seen := names[docID]
			if !seen {
				if doc, err := idx.GetDocument(ctx, docID); err == nil {
					name = doc.Name
				}
				names[docID] = name
			}
			results = append(results, SearchResult{
				DocumentID:   docID,
				DocumentName: name,
				Section:      hit.Chunk.HeaderPath,
				Text:         hit.Chunk.Text,
				Score:        hit.Score,
			})
		}

		if len(results) == 0 {
			return nil, SearchMaterialsOutput{
				Results: []SearchResult{},
				Message: "No matching material found. Try broader search terms.",
			}, nil
		}
		return nil, SearchMaterialsOutput{Results: results}, nil
	}
}

// makeFetchHandler creates the fetch_material tool handler.
func makeFetchHandler(index chat.IndexLoader) func(
	context.Context, *mcp.CallToolRequest, FetchMaterialInput,
) (*mcp.CallToolResult, FetchMaterialOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input FetchMaterialInput) (
		*mcp.CallToolResult, FetchMaterialOutput, error,
	) {
		idx, err := index.Load(ctx)
		if err != nil {
			return nil, FetchMaterialOutput{}, fmt.Errorf("failed to load index: %w", err)
		}
		doc, err := idx.GetDocument(ctx, input.DocumentID)
		if err != nil {
			if errors.Is(err, storage.ErrDocumentNotFound) {
				return nil, FetchMaterialOutput{DocumentID: input.DocumentID}, nil
			}
			return nil, FetchMaterialOutput{}, fmt.Errorf("failed to fetch material: %w", err)
		}
		return nil, FetchMaterialOutput{
			DocumentID: doc.ID,
			Name:       doc.Name,
			MimeType:   doc.MimeType,
			Text:       doc.Text,
			Found:      true,
		}, nil
	}
}

// makeListHandler creates the list_materials tool handler.
func makeListHandler(index chat.IndexLoader) func(
	context.Context, *mcp.CallToolRequest, ListMaterialsInput,
) (*mcp.CallToolResult, ListMaterialsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListMaterialsInput) (
		*mcp.CallToolResult, ListMaterialsOutput, error,
	) {
		idx, err := index.Load(ctx)
		if err != nil {
			return nil, ListMaterialsOutput{}, fmt.Errorf("failed to load index: %w", err)
		}
		docs, err := idx.ListDocuments(ctx)
		if err != nil {
			return nil, ListMaterialsOutput{}, fmt.Errorf("failed to list materials: %w", err)
		}

		materials := make([]MaterialSummary, len(docs))
		for i, d := range docs {
			materials[i] = MaterialSummary{ID: d.ID, Name: d.Name, MimeType: d.MimeType}
		}
		return nil, ListMaterialsOutput{Materials: materials, Count: len(materials)}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler. The index is
// reported stale once it is older than staleAfter; zero disables the check.
func makeStatusHandler(index chat.IndexLoader, staleAfter time.Duration, now func() time.Time) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		idx, err := index.Load(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("failed to load index: %w", err)
		}
		m := idx.Manifest()

		out := StatusOutput{
			TotalDocuments: m.DocumentCount,
			TotalChunks:    m.ChunkCount,
			EmbeddingModel: m.EmbeddingModel,
			Dimension:      m.Dimension,
			RootFolderID:   m.RootFolderID,
			BuiltAt:        m.BuiltAt,
		}
		if age := now().Sub(m.BuiltAt); staleAfter > 0 && age > staleAfter {
			out.StaleWarning = fmt.Sprintf("Index was built %s ago. Consider running sync.", age.Round(time.Hour))
		}
		return nil, out, nil
	}
}
