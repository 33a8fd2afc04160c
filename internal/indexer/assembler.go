package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/plexi-bot/plexi/internal/drive"
	"github.com/plexi-bot/plexi/internal/extract"
	"github.com/plexi-bot/plexi/internal/metrics"
	"github.com/plexi-bot/plexi/internal/storage"
)

// SkipKind classifies why a file did not become a Document.
type SkipKind string

const (
	SkipUnsupported SkipKind = "unsupported_format"
	SkipFetchFailed SkipKind = "fetch_failed"
	SkipEmptyText   SkipKind = "empty_text"
)

// SkipReason explains a skipped file.
type SkipReason struct {
	Kind SkipKind
	Err  error // Set for SkipFetchFailed
}

func (r SkipReason) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.Kind, r.Err)
	}
	return string(r.Kind)
}

// FileOutcome is the per-file result of assembly: exactly one of Document and Skip is set.
type FileOutcome struct {
	File         drive.FileDescriptor
	Document     *storage.Document
	Skip         *SkipReason
	Degradations []extract.Degradation
}

// Skipped reports whether the file was left out of the corpus.
func (o FileOutcome) Skipped() bool { return o.Skip != nil }

// ContentFetcher downloads file content.
type ContentFetcher interface {
	Fetch(ctx context.Context, fileID string) ([]byte, error)
}

// TextExtractor turns content into text.
type TextExtractor interface {
	Extract(content []byte, mimeType string) extract.Result
}

// Assembler turns file descriptors into Documents. A failure on one file
// never aborts the batch.
type Assembler struct {
	fetcher     ContentFetcher
	extractor   TextExtractor
	concurrency int
	logger      *slog.Logger
}

// NewAssembler creates an Assembler that processes up to concurrency files at a time.
func NewAssembler(fetcher ContentFetcher, extractor TextExtractor, concurrency int, logger *slog.Logger) *Assembler {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		fetcher:     fetcher,
		extractor:   extractor,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Assemble returns one outcome per file, in input order. Duplicated IDs are
// kept as separate outcomes. The only error is context cancellation.
func (a *Assembler) Assemble(ctx context.Context, files []drive.FileDescriptor) ([]FileOutcome, error) {
	outcomes := make([]FileOutcome, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, file := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// Per-file failures become outcomes; only cancellation stops the group.
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = a.assembleOne(gctx, file)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}
	return outcomes, nil
}

func (a *Assembler) assembleOne(ctx context.Context, file drive.FileDescriptor) FileOutcome {
	out := FileOutcome{File: file}
	log := a.logger.With("file_id", file.ID, "name", file.Name, "mime_type", file.MimeType)

	if !extract.Supported(file.MimeType) {
		out.Skip = &SkipReason{Kind: SkipUnsupported}
		log.Info("Skipping unsupported file")
		metrics.FilesSkippedTotal.WithLabelValues(string(SkipUnsupported)).Inc()
		return out
	}

	content, err := a.fetcher.Fetch(ctx, file.ID)
	if err != nil {
		out.Skip = &SkipReason{Kind: SkipFetchFailed, Err: err}
		if !errors.Is(err, context.Canceled) {
			log.Warn("Skipping file, download failed", "error", err)
		}
		metrics.FilesSkippedTotal.WithLabelValues(string(SkipFetchFailed)).Inc()
		return out
	}

	res := a.extractor.Extract(content, file.MimeType)
	out.Degradations = res.Degradations
	if res.Blank() {
		out.Skip = &SkipReason{Kind: SkipEmptyText}
		log.Warn("Skipping file, no text extracted", "degradations", len(res.Degradations))
		metrics.FilesSkippedTotal.WithLabelValues(string(SkipEmptyText)).Inc()
		return out
	}

	out.Document = &storage.Document{
		ID:       file.ID,
		Name:     file.Name,
		MimeType: file.MimeType,
		Text:     res.Text,
	}
	log.Debug("Assembled document", "bytes", len(content), "chars", len(res.Text))
	metrics.DocumentsAssembledTotal.Inc()
	return out
}

// Documents collects the assembled Documents in outcome order.
func Documents(outcomes []FileOutcome) []storage.Document {
	var docs []storage.Document
	for _, o := range outcomes {
		if o.Document != nil {
			docs = append(docs, *o.Document)
		}
	}
	return docs
}
