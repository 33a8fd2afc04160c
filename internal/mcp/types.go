// Package mcp exposes the study-materials index as MCP tools.
package mcp

import "time"

// SearchMaterialsInput defines the input parameters for the search_materials tool.
type SearchMaterialsInput struct {
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"the question or topic to look up in the study materials"`
	// MaxResults is the maximum number of fragments to return.
	MaxResults int `json:"max_results,omitempty" jsonschema:"maximum number of fragments to return (default 5, at most 20)"`
	// MinScore is the minimum relevance threshold.
	MinScore float64 `json:"min_score,omitempty" jsonschema:"minimum cosine similarity between 0 and 1 (default 0)"`
}

// SearchMaterialsOutput contains the search results.
type SearchMaterialsOutput struct {
	Results []SearchResult `json:"results"`
	// Message explains an empty result.
	Message string `json:"message,omitempty"`
}

// SearchResult is one matching fragment.
type SearchResult struct {
	DocumentID   string  `json:"document_id"`
	// DocumentName is the source file name in Drive.
	DocumentName string  `json:"document_name"`
	Section      string  `json:"section,omitempty"`
	Text         string  `json:"text"`
	Score        float64 `json:"score"`
}

// FetchMaterialInput defines the input parameters for the fetch_material tool.
type FetchMaterialInput struct {
	DocumentID string `json:"document_id" jsonschema:"the Drive file ID of the material, as returned by search_materials or list_materials"`
}

// FetchMaterialOutput contains the extracted text of one material.
type FetchMaterialOutput struct {
	DocumentID string `json:"document_id"`
	Name       string `json:"name,omitempty"`
	MimeType   string `json:"mime_type,omitempty"`
	Text       string `json:"text,omitempty"`
	Found      bool   `json:"found"`
}

// ListMaterialsInput takes no parameters.
type ListMaterialsInput struct{}

// ListMaterialsOutput lists every indexed material.
type ListMaterialsOutput struct {
	Materials []MaterialSummary `json:"materials"`
	Count     int               `json:"count"`
}

// MaterialSummary identifies one indexed material.
type MaterialSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
}

// StatusInput takes no parameters.
type StatusInput struct{}

// StatusOutput describes the loaded index.
type StatusOutput struct {
	TotalDocuments int       `json:"total_documents"`
	TotalChunks    int       `json:"total_chunks"`
	EmbeddingModel string    `json:"embedding_model"`
	Dimension      int       `json:"dimension"`
	RootFolderID   string    `json:"root_folder_id,omitempty"`
	BuiltAt        time.Time `json:"built_at"`
	// StaleWarning is set when the index is older than the configured threshold.
	StaleWarning string `json:"stale_warning,omitempty"`
}
