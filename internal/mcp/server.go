package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/plexi-bot/plexi/internal/chat"
)

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Index    chat.IndexLoader
	Embedder chat.QueryEmbedder
	// StaleAfter is the index age get_index_status warns about. Zero disables the warning.
	StaleAfter time.Duration
	Version    string
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	server := mcp.NewServer(&mcp.Implementation{Name: "plexi-materials", Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_materials",
		Description: "Search the indexed study materials semantically. Returns the most relevant text fragments with their source material.",
	}, makeSearchHandler(cfg.Index, cfg.Embedder))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "fetch_material",
		Description: "Retrieve the full extracted text of one study material by document ID.",
	}, makeFetchHandler(cfg.Index))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_materials",
		Description: "List every indexed study material.",
	}, makeListHandler(cfg.Index))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Get the status of the study-materials index: document and fragment counts, embedding model, build time, and a staleness warning.",
	}, makeStatusHandler(cfg.Index, cfg.StaleAfter, time.Now))

	return &Server{server: server}
}

// Run serves MCP over stdio until the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
