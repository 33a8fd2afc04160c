// Package indexer turns a Drive folder tree into a persisted vector index.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/plexi-bot/plexi/internal/drive"
	"github.com/plexi-bot/plexi/internal/metrics"
	"github.com/plexi-bot/plexi/internal/storage"
)

// FileWalker enumerates every file under a root folder.
type FileWalker interface {
	Walk(ctx context.Context, rootID string) (*drive.WalkResult, error)
}

// IndexStore persists a built index, replacing the previous one.
type IndexStore interface {
	Replace(ctx context.Context, idx *storage.VectorIndex) error
}

// IndexResult contains statistics about an ingestion run.
type IndexResult struct {
	RootFolderID   string
	FilesListed    int
	SkippedFolders []string
	Documents      int
	Chunks         int
	Outcomes       []FileOutcome
	Manifest       storage.Manifest
	Duration       time.Duration
}

// Skipped returns the outcomes of files left out of the corpus.
func (r *IndexResult) Skipped() []FileOutcome {
	var skipped []FileOutcome
	for _, o := range r.Outcomes {
		if o.Skipped() {
			skipped = append(skipped, o)
		}
	}
	return skipped
}

// Pipeline orchestrates walk, assemble, build and persist.
type Pipeline struct {
	walker    FileWalker
	assembler *Assembler
	builder   *Builder
	store     IndexStore
	logger    *slog.Logger
}

// NewPipeline creates a new ingestion pipeline with the given components.
func NewPipeline(walker FileWalker, assembler *Assembler, builder *Builder, store IndexStore, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		walker:    walker,
		assembler: assembler,
		builder:   builder,
		store:     store,
		logger:    logger,
	}
}

// Run ingests everything under rootFolderID and replaces the persisted index.
// Per-file problems are reported in the result; only a failure to list the
// root folder, to embed, or to persist fails the run.
func (p *Pipeline) Run(ctx context.Context, rootFolderID string) (result *IndexResult, err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.IngestionRunsTotal.WithLabelValues(status).Inc()
		metrics.IngestionDuration.Observe(time.Since(start).Seconds())
	}()

	result = &IndexResult{RootFolderID: rootFolderID}
	p.logger.Info("Starting ingestion", "root_folder_id", rootFolderID)

	walked, err := p.walker.Walk(ctx, rootFolderID)
	if err != nil {
		return nil, fmt.Errorf("walk: %w", err)
	}
	result.FilesListed = len(walked.Files)
	result.SkippedFolders = walked.SkippedFolders
	metrics.FilesListedTotal.Add(float64(len(walked.Files)))
	p.logger.Info("Found files", "count", len(walked.Files), "skipped_folders", len(walked.SkippedFolders))

	outcomes, err := p.assembler.Assemble(ctx, walked.Files)
	if err != nil {
		return nil, err
	}
	result.Outcomes = outcomes

	corpus := Documents(outcomes)
	result.Documents = len(corpus)

	idx, err := p.builder.Build(ctx, corpus, rootFolderID)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	result.Manifest = idx.Manifest()
	result.Chunks = result.Manifest.ChunkCount

	if err := p.store.Replace(ctx, idx); err != nil {
		return nil, fmt.Errorf("persist index: %w", err)
	}

	result.Duration = time.Since(start)
	p.logger.Info("Ingestion complete",
		"documents", result.Documents,
		"skipped", len(result.Skipped()),
		"chunks", result.Chunks,
		"duration", result.Duration,
	)

	return result, nil
}
