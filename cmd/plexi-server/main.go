// Package main provides the Plexi HTTP server: chat sessions, MCP tools,
// health and metrics over the persisted study-materials index.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/plexi-bot/plexi/internal/api"
	"github.com/plexi-bot/plexi/internal/chat"
	"github.com/plexi-bot/plexi/internal/config"
	"github.com/plexi-bot/plexi/internal/embedding"
	mcpserver "github.com/plexi-bot/plexi/internal/mcp"
	"github.com/plexi-bot/plexi/internal/metrics"
	"github.com/plexi-bot/plexi/internal/storage"
)

const (
	sweepInterval   = time.Minute
	staleIndexAfter = 14 * 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

func main() {
	configPath := flag.String("config", "plexi.yaml", "optional YAML configuration file")
	flag.Parse()

	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := run(*configPath); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := config.NewLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	metrics.Register()

	embeddingClient, err := embedding.NewClient(embedding.ClientOptions{
		BaseURL: cfg.Embedding.BaseURL,
		APIKey:  cfg.Embedding.APIKey,
		Model:   cfg.Embedding.Model,
	})
	if err != nil {
		return fmt.Errorf("create embedding client: %w", err)
	}
	embedder := embedding.NewEmbedder(embeddingClient, cfg.Embedding.BatchSize)

	var (
		load   func(ctx context.Context) (storage.Index, error)
		health mcpserver.HealthChecker
	)
	if cfg.Index.Store == config.StoreQdrant {
		store, err := storage.NewQdrantStorage(cfg.Index.QdrantHost, cfg.Index.QdrantPort, cfg.Index.QdrantCollection)
		if err != nil {
			return fmt.Errorf("connect to qdrant: %w", err)
		}
		defer store.Close()
		health = store
		load = func(ctx context.Context) (storage.Index, error) {
			idx, err := store.Open(ctx, embedder.Model())
			if err != nil {
				return nil, err
			}
			return idx, nil
		}
	} else {
		load = func(ctx context.Context) (storage.Index, error) {
			idx, err := storage.LoadBundle(ctx, cfg.Index.Dir, embedder.Model())
			if err != nil {
				return nil, err
			}
			return idx, nil
		}
	}
	index := chat.NewSharedIndex(load)
	if _, err := index.Load(ctx); err != nil {
		// Sessions retry the load; a missing index is reported per request until sync runs.
		logger.Warn("Index not loaded yet", "error", err)
	}

	deps := chat.Deps{
		Index:    index,
		Embedder: embedder,
		Backends: chat.NewOpenAIBackendFactory(cfg.Chat.BaseURL, cfg.Chat.Model),
		Logger:   logger,
	}
	sessions := chat.NewRegistry(deps, chat.Options{TopK: cfg.Chat.TopK, TokenLimit: cfg.Chat.TokenLimit}, cfg.Chat.IdleTimeout)
	defer sessions.CloseAll()
	go sessions.Run(ctx, sweepInterval)

	mcp := mcpserver.NewServer(&mcpserver.Config{
		Index:      index,
		Embedder:   embedder,
		StaleAfter: staleIndexAfter,
	})

	go reloadOnHangup(ctx, index, logger)

	router := newRouter(routerDeps{
		sessions: sessions,
		index:    index,
		health:   health,
		mcp:      mcp,
		logger:   logger,
	})

	addr := "0.0.0.0:" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", addr, "server_mode", cfg.Server.ServerMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if !cfg.Server.ServerMode {
		// Stdio mode: local MCP clients talk over stdin/stdout; HTTP keeps serving alongside.
		go func() {
			logger.Info("Starting MCP server (stdio mode)")
			if err := mcp.Run(ctx); err != nil {
				logger.Warn("MCP stdio server stopped", "error", err)
			}
			cancel()
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("Shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	return srv.Shutdown(shutdownCtx)
}

type routerDeps struct {
	sessions *chat.Registry
	index    chat.IndexLoader
	health   mcpserver.HealthChecker
	mcp      *mcpserver.Server
	logger   *slog.Logger
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/", mcpserver.NewLandingHandler())
	r.Get("/health", mcpserver.NewHealthHandler(d.index, d.health))
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/mcp", mcpserver.NewHTTPHandler(d.mcp, nil))

	api.NewServer(d.sessions, d.logger).Register(r)
	return r
}

// reloadOnHangup drops the cached index on SIGHUP so the next session picks
// up a bundle rebuilt by plexi-sync. Open sessions keep the index they loaded.
func reloadOnHangup(ctx context.Context, index *chat.SharedIndex, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			index.Invalidate()
			if _, err := index.Load(ctx); err != nil {
				logger.Error("Index reload failed", "error", err)
				continue
			}
			logger.Info("Index reloaded")
		}
	}
}
