package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// Common Drive errors.
var (
	// ErrUnauthorized indicates invalid or expired credentials.
	ErrUnauthorized = errors.New("drive: unauthorised (invalid credentials)")

	// ErrForbidden indicates insufficient permissions.
	ErrForbidden = errors.New("drive: forbidden (insufficient permissions)")

	// ErrNotFound indicates the requested file or folder was not found.
	ErrNotFound = errors.New("drive: resource not found")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("drive: rate limit exceeded")

	// ErrIncompleteRead indicates the body ended before Content-Length bytes arrived.
	ErrIncompleteRead = errors.New("drive: incomplete read")

	// ErrMissingCredentials indicates the service-account settings are incomplete.
	ErrMissingCredentials = errors.New("drive: missing service account credentials")

	// ErrDownload is matched by every DownloadError.
	ErrDownload = errors.New("drive: download failed")
)

// DownloadError is returned by Fetcher.Fetch once its retry budget is spent.
type DownloadError struct {
	FileID   string
	Attempts int
	Err      error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s failed after %d attempt(s): %v", e.FileID, e.Attempts, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrDownload) match any DownloadError.
func (e *DownloadError) Is(target error) bool { return target == ErrDownload }

// WrapError converts a googleapi or token-exchange error into one of the
// package sentinels.
func WrapError(err error) error {
	if err == nil {
		return nil
	}

	if rerr := tokenError(err); rerr != nil && !isServerFailure(rerr) {
		return fmt.Errorf("%w: %v", ErrUnauthorized, rerr)
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}

	switch gerr.Code {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, gerr.Message)
	case http.StatusForbidden:
		if isRateLimitReason(gerr) {
			return fmt.Errorf("%w: %s", ErrRateLimited, gerr.Message)
		}
		return fmt.Errorf("%w: %s", ErrForbidden, gerr.Message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, gerr.Message)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, gerr.Message)
	default:
		return err
	}
}

// IsTransient reports whether retrying the same request may succeed.
// Server errors, rate limits, network failures and short reads are transient;
// authentication, permission and not-found errors are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrMissingCredentials) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrIncompleteRead) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	// Token exchange failures arrive wrapped in *url.Error, which is a net.Error.
	if rerr := tokenError(err); rerr != nil {
		return isServerFailure(rerr)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests, gerr.Code >= 500:
			return true
		case gerr.Code == http.StatusForbidden:
			return isRateLimitReason(gerr)
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Unknown failures are retried; the retry policy bounds how long.
	return true
}

func tokenError(err error) *oauth2.RetrieveError {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return rerr
	}
	return nil
}

func isServerFailure(rerr *oauth2.RetrieveError) bool {
	return rerr.Response != nil && rerr.Response.StatusCode >= 500
}

// Drive reports per-user quota exhaustion as 403 with a rate-limit reason.
func isRateLimitReason(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded":
			return true
		}
	}
	return false
}
