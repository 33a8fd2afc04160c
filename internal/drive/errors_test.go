package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// tokenFailure mimics a failed service-account token exchange as seen by the
// Drive client: the oauth2 transport's error wrapped in a *url.Error.
func tokenFailure(status int) error {
	return &url.Error{
		Op:  "Get",
		URL: "https://www.googleapis.com/drive/v3/files",
		Err: &oauth2.RetrieveError{
			Response:  &http.Response{StatusCode: status, Status: http.StatusText(status)},
			ErrorCode: "invalid_grant",
		},
	}
}

func TestWrapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "unauthorized", err: &googleapi.Error{Code: http.StatusUnauthorized}, want: ErrUnauthorized},
		{name: "forbidden", err: &googleapi.Error{Code: http.StatusForbidden}, want: ErrForbidden},
		{
			name: "forbidden rate limit",
			err: &googleapi.Error{
				Code:   http.StatusForbidden,
				Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}},
			},
			want: ErrRateLimited,
		},
		{name: "not found", err: &googleapi.Error{Code: http.StatusNotFound}, want: ErrNotFound},
		{name: "too many requests", err: &googleapi.Error{Code: http.StatusTooManyRequests}, want: ErrRateLimited},
		{name: "token exchange rejected", err: tokenFailure(http.StatusBadRequest), want: ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, WrapError(tt.err), tt.want)
		})
	}

	assert.NoError(t, WrapError(nil))
	plain := errors.New("boom")
	assert.Same(t, plain, WrapError(plain))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "server error", err: &googleapi.Error{Code: http.StatusServiceUnavailable}, want: true},
		{name: "bad request", err: &googleapi.Error{Code: http.StatusBadRequest}, want: false},
		{name: "rate limited", err: ErrRateLimited, want: true},
		{name: "incomplete read", err: fmt.Errorf("wrap: %w", ErrIncompleteRead), want: true},
		{name: "unexpected eof", err: io.ErrUnexpectedEOF, want: true},
		{name: "not found", err: fmt.Errorf("%w: x", ErrNotFound), want: false},
		{name: "unauthorized", err: ErrUnauthorized, want: false},
		{name: "missing credentials", err: ErrMissingCredentials, want: false},
		{name: "cancelled", err: context.Canceled, want: false},
		{name: "unknown", err: errors.New("socket closed"), want: true},
		{name: "token exchange rejected", err: tokenFailure(http.StatusBadRequest), want: false},
		{name: "token endpoint down", err: tokenFailure(http.StatusBadGateway), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestCredentialsValidate(t *testing.T) {
	err := Credentials{ProjectID: "p"}.Validate()
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.Contains(t, err.Error(), "CLIENT_EMAIL")
	assert.Contains(t, err.Error(), "PRIVATE_KEY")

	assert.NoError(t, Credentials{ClientEmail: "svc@p.iam.gserviceaccount.com", PrivateKey: "pem"}.Validate())

	_, err = Credentials{}.TokenSource(context.Background())
	assert.ErrorIs(t, err, ErrMissingCredentials)
}
