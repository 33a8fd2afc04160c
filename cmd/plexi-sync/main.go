// Package main provides the plexi-sync CLI: it indexes study materials from
// Google Drive and offers a terminal chat over the built index.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/plexi-bot/plexi/internal/chunker"
	"github.com/plexi-bot/plexi/internal/config"
	"github.com/plexi-bot/plexi/internal/drive"
	"github.com/plexi-bot/plexi/internal/embedding"
	"github.com/plexi-bot/plexi/internal/extract"
	"github.com/plexi-bot/plexi/internal/indexer"
	"github.com/plexi-bot/plexi/internal/storage"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "plexi-sync",
	Short:        "Study-materials indexing tool",
	Long:         "CLI tool for building the Plexi study-materials index from Google Drive",
	SilenceUsage: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Rebuild the index from Google Drive",
	Long: `Walks the Drive folder tree, extracts text from every supported file,
embeds it, and replaces the persisted index.

This command:
1. Authenticates with the service account
2. Lists every file under the root folder (subfolders included)
3. Downloads and extracts plain text and PDF files, skipping the rest
4. Splits documents into fragments and generates embeddings
5. Replaces the index bundle (or Qdrant collection)

Environment variables:
  PROJECT_ID, CLIENT_EMAIL, PRIVATE_KEY   Service-account credentials (required)
  DRIVE_ROOT_FOLDER_ID                    Folder to index (or --root)
  OPENAI_API_KEY / EMBEDDING_API_KEY      Embedding API key (required)
  VECTOR_STORE                            bundle (default) or qdrant
  INDEX_DIR                               Bundle directory (default: index)`,
	RunE: runSync,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the files that sync would consider",
	RunE:  runList,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted index manifest",
	RunE:  runStatus,
}

var rootFolder string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "plexi.yaml", "optional YAML configuration file")
	syncCmd.Flags().StringVar(&rootFolder, "root", "", "Drive folder ID to index (overrides DRIVE_ROOT_FOLDER_ID)")
	listCmd.Flags().StringVar(&rootFolder, "root", "", "Drive folder ID to list (overrides DRIVE_ROOT_FOLDER_ID)")
	rootCmd.AddCommand(syncCmd, listCmd, statusCmd, askCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := config.NewLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	if rootFolder != "" {
		cfg.Drive.RootFolderID = rootFolder
	}
	return cfg, logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

func newDriveComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*drive.Walker, *drive.Fetcher, error) {
	if cfg.Drive.RootFolderID == "" {
		return nil, nil, fmt.Errorf("no root folder: set DRIVE_ROOT_FOLDER_ID or pass --root")
	}
	client, err := drive.NewClient(ctx, drive.Credentials{
		ProjectID:    cfg.Drive.ProjectID,
		ClientEmail:  cfg.Drive.ClientEmail,
		PrivateKeyID: cfg.Drive.PrivateKeyID,
		PrivateKey:   cfg.Drive.PrivateKey,
	}, cfg.Drive.PageSize)
	if err != nil {
		return nil, nil, fmt.Errorf("create drive client: %w", err)
	}

	limiter := drive.NewLimiter(cfg.Drive.RequestsPerSecond, drive.DefaultBurst)
	policy := drive.ConstantRetry(cfg.Drive.RetryDelay)
	policy.MaxAttempts = cfg.Drive.ListMaxAttempts

	walker := drive.NewWalker(client, policy, limiter, logger)
	fetcher := drive.NewFetcher(client, drive.FetcherOptions{MaxAttempts: cfg.Drive.DownloadAttempts}, limiter, logger)
	return walker, fetcher, nil
}

func newEmbedder(cfg *config.Config) (*embedding.Embedder, error) {
	client, err := embedding.NewClient(embedding.ClientOptions{
		BaseURL: cfg.Embedding.BaseURL,
		APIKey:  cfg.Embedding.APIKey,
		Model:   cfg.Embedding.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}
	return embedding.NewEmbedder(client, cfg.Embedding.BatchSize), nil
}

// openStore returns where sync persists the index and a cleanup func.
func openStore(cfg *config.Config) (indexer.IndexStore, func(), error) {
	if cfg.Index.Store != config.StoreQdrant {
		return storage.BundleStore{Dir: cfg.Index.Dir}, func() {}, nil
	}
	fmt.Printf("Connecting to Qdrant at %s:%d...\n", cfg.Index.QdrantHost, cfg.Index.QdrantPort)
	store, err := storage.NewQdrantStorage(cfg.Index.QdrantHost, cfg.Index.QdrantPort, cfg.Index.QdrantCollection)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to qdrant: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}

// openIndex loads the persisted index for querying with model.
func openIndex(ctx context.Context, cfg *config.Config, model string) (storage.Index, func(), error) {
	if cfg.Index.Store != config.StoreQdrant {
		idx, err := storage.LoadBundle(ctx, cfg.Index.Dir, model)
		if err != nil {
			return nil, nil, err
		}
		return idx, func() {}, nil
	}
	store, err := storage.NewQdrantStorage(cfg.Index.QdrantHost, cfg.Index.QdrantPort, cfg.Index.QdrantCollection)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to qdrant: %w", err)
	}
	idx, err := store.Open(ctx, model)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return idx, func() { _ = store.Close() }, nil
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	start := time.Now()

	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	fmt.Println("Starting sync...")
	fmt.Println()

	walker, fetcher, err := newDriveComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	splitter := chunker.New(chunker.Options{
		SentencesPerChunk: cfg.Index.ChunkSentences,
		OverlapSentences:  cfg.Index.ChunkOverlap,
	})
	pipeline := indexer.NewPipeline(
		walker,
		indexer.NewAssembler(fetcher, extract.New(logger), cfg.Drive.Concurrency, logger),
		indexer.NewBuilder(embedder, splitter, logger),
		store,
		logger,
	)

	fmt.Printf("Indexing materials under folder %s...\n", cfg.Drive.RootFolderID)
	result, err := pipeline.Run(ctx, cfg.Drive.RootFolderID)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Sync complete!")
	fmt.Printf("  Files listed: %d\n", result.FilesListed)
	fmt.Printf("  Documents indexed: %d\n", result.Documents)
	fmt.Printf("  Fragments: %d\n", result.Chunks)
	fmt.Printf("  Embedding model: %s (%d dimensions)\n", result.Manifest.EmbeddingModel, result.Manifest.Dimension)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Second))

	if skipped := result.Skipped(); len(skipped) > 0 {
		fmt.Println()
		fmt.Println("Skipped files:")
		for _, o := range skipped {
			fmt.Printf("  - %s (%s): %s\n", o.File.Name, o.File.ID, o.Skip)
		}
	}
	if len(result.SkippedFolders) > 0 {
		fmt.Println()
		fmt.Println("Unreadable folders:")
		for _, id := range result.SkippedFolders {
			fmt.Printf("  - %s\n", id)
		}
	}

	fmt.Println()
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Second))
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	walker, _, err := newDriveComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}

	result, err := walker.Walk(ctx, cfg.Drive.RootFolderID)
	if err != nil {
		return fmt.Errorf("walk: %w", err)
	}

	for _, f := range result.Files {
		marker := " "
		if !extract.Supported(f.MimeType) {
			marker = "-"
		}
		fmt.Printf("%s %s  %-40s  %s\n", marker, f.ID, f.Name, f.MimeType)
	}
	fmt.Printf("\n%d files", len(result.Files))
	if len(result.SkippedFolders) > 0 {
		fmt.Printf(", %d unreadable folders", len(result.SkippedFolders))
	}
	fmt.Println()
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, _, err := setup()
	if err != nil {
		return err
	}

	var m storage.Manifest
	if cfg.Index.Store == config.StoreQdrant {
		store, err := storage.NewQdrantStorage(cfg.Index.QdrantHost, cfg.Index.QdrantPort, cfg.Index.QdrantCollection)
		if err != nil {
			return fmt.Errorf("connect to qdrant: %w", err)
		}
		defer store.Close()
		m, err = store.LoadManifest(ctx)
		if err != nil {
			return err
		}
	} else {
		m, err = storage.LoadManifest(ctx, cfg.Index.Dir)
		if err != nil {
			return err
		}
	}

	fmt.Printf("Root folder:     %s\n", m.RootFolderID)
	fmt.Printf("Built at:        %s\n", m.BuiltAt.Format(time.RFC3339))
	fmt.Printf("Documents:       %d\n", m.DocumentCount)
	fmt.Printf("Fragments:       %d\n", m.ChunkCount)
	fmt.Printf("Embedding model: %s (%d dimensions)\n", m.EmbeddingModel, m.Dimension)
	return nil
}
