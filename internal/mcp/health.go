package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/plexi-bot/plexi/internal/chat"
)

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Index     string `json:"index"`
	Documents int    `json:"documents"`
	Store     string `json:"store,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthChecker pings a remote vector store.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewHealthHandler reports whether the index can be loaded and, when store
// is non-nil, whether the vector store answers.
func NewHealthHandler(index chat.IndexLoader, store HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		response := HealthResponse{
			Status:    "healthy",
			Index:     "loaded",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		status := http.StatusOK

		if store != nil {
			response.Store = "connected"
			if err := store.Health(ctx); err != nil {
				response.Store = "disconnected"
				response.Status = "unhealthy"
				status = http.StatusServiceUnavailable
			}
		}

		idx, err := index.Load(ctx)
		if err != nil {
			response.Index = "unavailable"
			response.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		} else {
			response.Documents = idx.Manifest().DocumentCount
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(response)
	}
}
