package chat

import (
	"errors"
	"fmt"
)

var (
	ErrMissingCredential = errors.New("missing API key: supply a language-model API key for this session")
	ErrNotInitialized    = errors.New("session not initialized")
	ErrKeyAlreadySet     = errors.New("session already has an API key")
	ErrSessionClosed     = errors.New("session closed")
	ErrEmptyUtterance    = errors.New("empty utterance")
	ErrTurnInProgress    = errors.New("another turn is in progress for this session")
	ErrSessionNotFound   = errors.New("session not found")
)

// Turn stages a BackendError can come from.
const (
	StageRetrieval  = "retrieval"
	StageGeneration = "generation"
)

// BackendError is a failed external call during a turn. The session stays
// usable and the user's utterance stays in history.
type BackendError struct {
	Stage string
	Err   error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Unauthorized reports whether the backend rejected the session's API key.
func (e *BackendError) Unauthorized() bool { return isAuthError(e.Err) }
