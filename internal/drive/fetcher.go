package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Fetcher defaults.
const (
	DefaultDownloadAttempts = 3
	DefaultChunkSize        = 1 << 20
)

// Downloader opens a media stream for a file.
type Downloader interface {
	Open(ctx context.Context, fileID string) (*http.Response, error)
}

// FetcherOptions tunes the download retry budget.
type FetcherOptions struct {
	// MaxAttempts is the total number of download attempts (default 3).
	MaxAttempts int
	// Delay is the fixed pause between attempts.
	Delay time.Duration
	// ChunkSize is the copy buffer size used while streaming the body.
	ChunkSize int
}

// Fetcher downloads whole files, restarting from byte zero after any failure.
type Fetcher struct {
	downloader Downloader
	opts       FetcherOptions
	limiter    *Limiter
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher. limiter and logger may be nil.
func NewFetcher(downloader Downloader, opts FetcherOptions, limiter *Limiter, logger *slog.Logger) *Fetcher {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultDownloadAttempts
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		downloader: downloader,
		opts:       opts,
		limiter:    limiter,
		logger:     logger,
	}
}

// Fetch returns the complete content of fileID or a *DownloadError once the
// retry budget is exhausted. Permanent failures (not found, forbidden) stop early.
func (f *Fetcher) Fetch(ctx context.Context, fileID string) ([]byte, error) {
	var (
		content  []byte
		attempts int
	)

	operation := func() error {
		attempts++
		if err := f.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		data, err := f.download(ctx, fileID)
		if err != nil {
			if !IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		content = data
		return nil
	}

	notify := func(err error, _ time.Duration) {
		f.logger.Warn("Download attempt failed, retrying",
			"file_id", fileID, "attempt", attempts, "max_attempts", f.opts.MaxAttempts, "error", err)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(f.opts.Delay), uint64(f.opts.MaxAttempts-1)),
		ctx,
	)
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return nil, &DownloadError{FileID: fileID, Attempts: attempts, Err: err}
	}
	return content, nil
}

// download performs one full transfer.
func (f *Fetcher) download(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := f.downloader.Open(ctx, fileID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("unexpected status %d", resp.StatusCode)
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
		case resp.StatusCode == http.StatusForbidden:
			return nil, fmt.Errorf("%w: %v", ErrForbidden, err)
		case resp.StatusCode == http.StatusUnauthorized:
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return nil, err
	}

	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(resp.ContentLength))
	}
	chunk := make([]byte, f.opts.ChunkSize)
	for {
		n, err := resp.Body.Read(chunk)
		buf.Write(chunk[:n])
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %v", ErrIncompleteRead, err)
		}
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
	}

	if resp.ContentLength >= 0 && int64(buf.Len()) < resp.ContentLength {
		return nil, fmt.Errorf("%w: got %d of %d bytes", ErrIncompleteRead, buf.Len(), resp.ContentLength)
	}

	return buf.Bytes(), nil
}
