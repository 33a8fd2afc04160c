package drive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultListRetryDelay is the fixed pause between retries of a failed page request.
const DefaultListRetryDelay = 5 * time.Second

// Lister lists the direct children of a folder, one page at a time.
type Lister interface {
	ListChildren(ctx context.Context, parentID, pageToken string) (*Page, error)
}

// RetryPolicy decides how often and how fast a failed request is retried.
type RetryPolicy struct {
	// MaxAttempts bounds the total attempts per request. Zero means unlimited.
	MaxAttempts int
	// NewBackOff builds the delay schedule for one request. Nil means a constant
	// DefaultListRetryDelay.
	NewBackOff func() backoff.BackOff
}

// ConstantRetry retries forever with a fixed delay.
func ConstantRetry(delay time.Duration) RetryPolicy {
	return RetryPolicy{
		NewBackOff: func() backoff.BackOff { return backoff.NewConstantBackOff(delay) },
	}
}

// ExponentialRetry retries with jittered exponential delays, up to maxAttempts (0 = unlimited).
func ExponentialRetry(initial, maxInterval time.Duration, maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		NewBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.MaxInterval = maxInterval
			b.MaxElapsedTime = 0
			return b
		},
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	if p.NewBackOff != nil {
		b = p.NewBackOff()
	} else {
		b = backoff.NewConstantBackOff(DefaultListRetryDelay)
	}
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}

// WalkResult is the flattened listing of a folder tree.
type WalkResult struct {
	Files []FileDescriptor
	// SkippedFolders are subfolders whose listing failed permanently.
	SkippedFolders []string
}

// Walker enumerates every file under a root folder.
type Walker struct {
	lister  Lister
	policy  RetryPolicy
	limiter *Limiter
	logger  *slog.Logger
}

// NewWalker creates a Walker. limiter and logger may be nil.
func NewWalker(lister Lister, policy RetryPolicy, limiter *Limiter, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{
		lister:  lister,
		policy:  policy,
		limiter: limiter,
		logger:  logger,
	}
}

// Walk returns every non-folder descendant of rootID. Folders are visited from an
// explicit stack, so ordering of the result is unspecified.
//
// Transient listing errors retry the same page per the RetryPolicy. A failure that
// survives the policy on the root folder aborts the walk; on a subfolder it is
// logged and that subtree is skipped.
func (w *Walker) Walk(ctx context.Context, rootID string) (*WalkResult, error) {
	result := &WalkResult{}
	stack := []string{rootID}
	seen := map[string]bool{rootID: true}

	for len(stack) > 0 {
		folderID := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		err := w.listFolder(ctx, folderID, func(item FileDescriptor) {
			if item.IsFolder() {
				// Shortcuts and multi-parent folders can make the tree a graph.
				if !seen[item.ID] {
					seen[item.ID] = true
					stack = append(stack, item.ID)
				}
				return
			}
			result.Files = append(result.Files, item)
		})
		if err != nil {
			if folderID == rootID || ctx.Err() != nil {
				return nil, fmt.Errorf("list folder %s: %w", folderID, err)
			}
			w.logger.Warn("Skipping folder after listing failure", "folder_id", folderID, "error", err)
			result.SkippedFolders = append(result.SkippedFolders, folderID)
		}
	}

	w.logger.Info("Walk complete", "root", rootID, "files", len(result.Files), "skipped_folders", len(result.SkippedFolders))
	return result, nil
}

// listFolder pages through folderID, calling visit for each child.
func (w *Walker) listFolder(ctx context.Context, folderID string, visit func(FileDescriptor)) error {
	pageToken := ""
	for {
		page, err := w.listPage(ctx, folderID, pageToken)
		if err != nil {
			return err
		}
		for _, item := range page.Items {
			visit(item)
		}
		if page.NextPageToken == "" {
			return nil
		}
		pageToken = page.NextPageToken
	}
}

// listPage fetches a single page, retrying the identical request on transient errors.
func (w *Walker) listPage(ctx context.Context, folderID, pageToken string) (*Page, error) {
	var page *Page

	operation := func() error {
		if err := w.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		p, err := w.lister.ListChildren(ctx, folderID, pageToken)
		if err != nil {
			if !IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		page = p
		return nil
	}

	notify := func(err error, delay time.Duration) {
		w.logger.Warn("Drive listing failed, retrying", "folder_id", folderID, "delay", delay, "error", err)
	}

	if err := backoff.RetryNotify(operation, w.policy.backOff(ctx), notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return nil, fmt.Errorf("%w: %v", ctxErr, err)
		}
		return nil, err
	}
	if page == nil {
		page = &Page{}
	}
	return page, nil
}
