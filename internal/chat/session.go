// Package chat implements retrieval-augmented chat sessions over a built index.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/plexi-bot/plexi/internal/metrics"
	"github.com/plexi-bot/plexi/internal/storage"
)

// State is a session's lifecycle position.
type State int

const (
	StateUninitialized State = iota
	StateAwaitingKey
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAwaitingKey:
		return "awaiting_key"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// IndexLoader provides the read-only index shared by sessions.
type IndexLoader interface {
	Load(ctx context.Context) (storage.Index, error)
}

// Defaults for Options.
const (
	DefaultTopK       = 2
	DefaultTokenLimit = 1500
)

// Options tunes a session.
type Options struct {
	TopK         int
	TokenLimit   int
	SystemPrompt string
}

// Deps are the collaborators shared across sessions.
type Deps struct {
	Index    IndexLoader
	Embedder QueryEmbedder
	Backends BackendFactory
	Logger   *slog.Logger
}

// Session is one user's conversation. The zero Session is Uninitialized and
// unusable; Create returns a session awaiting its API key. Turns are processed
// one at a time.
type Session struct {
	mu    sync.Mutex
	state State
	busy  bool

	deps      Deps
	opts      Options
	apiKey    string
	backend   Backend
	retriever *Retriever
	memory    *Memory
	logger    *slog.Logger
	lastUsed  time.Time
}

// Create returns a new session in the AwaitingKey state.
func Create(deps Deps, opts Options) *Session {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.TokenLimit <= 0 {
		opts.TokenLimit = DefaultTokenLimit
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		state:    StateAwaitingKey,
		deps:     deps,
		opts:     opts,
		memory:   NewMemory(opts.TokenLimit),
		logger:   logger,
		lastUsed: time.Now(),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Greeting returns the assistant's opening line.
func (s *Session) Greeting() string { return Greeting }

// History returns the retained conversation, oldest first.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.memory == nil {
		return nil
	}
	return s.memory.Turns()
}

// LastUsed reports when the session was last touched.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// SetAPIKey supplies the session's only credential, loads the shared index and
// constructs the model backend. On failure the session keeps awaiting a key.
func (s *Session) SetAPIKey(ctx context.Context, apiKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateUninitialized:
		return ErrNotInitialized
	case StateClosed:
		return ErrSessionClosed
	case StateReady:
		return ErrKeyAlreadySet
	}
	s.lastUsed = time.Now()

	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return ErrMissingCredential
	}

	idx, err := s.deps.Index.Load(ctx)
	if err != nil {
		return fmt.Errorf("load index: %w", err)
	}
	if err := idx.Manifest().CheckModel(s.deps.Embedder.Model()); err != nil {
		return err
	}
	backend, err := s.deps.Backends(apiKey)
	if err != nil {
		return fmt.Errorf("create backend: %w", err)
	}

	s.apiKey = apiKey
	s.backend = backend
	s.retriever = NewRetriever(s.deps.Embedder, idx, s.opts.TopK)
	s.state = StateReady
	s.logger.Debug("Session ready", "chunks", idx.Manifest().ChunkCount)
	return nil
}

// Submit runs one turn and returns the assistant's reply. Without a key it
// fails with ErrMissingCredential and contacts nothing. Backend failures come
// back as *BackendError with the utterance kept in history.
func (s *Session) Submit(ctx context.Context, utterance string) (reply string, err error) {
	retriever, backend, err := s.beginTurn(utterance)
	if err != nil {
		metrics.ChatTurnsTotal.WithLabelValues(outcomeFor(err)).Inc()
		return "", err
	}
	start := time.Now()
	defer func() {
		s.endTurn(reply, err)
		metrics.ChatTurnsTotal.WithLabelValues(outcomeFor(err)).Inc()
		metrics.ChatTurnDuration.Observe(time.Since(start).Seconds())
	}()

	hits, err := retriever.Retrieve(ctx, utterance)
	if err != nil {
		return "", &BackendError{Stage: StageRetrieval, Err: err}
	}

	s.mu.Lock()
	messages := buildMessages(s.opts.SystemPrompt, hits, s.memory.Turns(), utterance)
	s.mu.Unlock()

	reply, err = backend.Generate(ctx, messages)
	if err != nil {
		return "", &BackendError{Stage: StageGeneration, Err: err}
	}
	return reply, nil
}

// beginTurn validates state, records the user turn and marks the session busy.
func (s *Session) beginTurn(utterance string) (*Retriever, Backend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateUninitialized:
		return nil, nil, ErrNotInitialized
	case StateClosed:
		return nil, nil, ErrSessionClosed
	case StateAwaitingKey:
		return nil, nil, ErrMissingCredential
	}
	if s.busy {
		return nil, nil, ErrTurnInProgress
	}
	if strings.TrimSpace(utterance) == "" {
		return nil, nil, ErrEmptyUtterance
	}

	s.busy = true
	s.lastUsed = time.Now()
	s.memory.Append(Turn{Role: RoleUser, Content: utterance})
	return s.retriever, s.backend, nil
}

func (s *Session) endTurn(reply string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.busy = false
	s.lastUsed = time.Now()
	if err != nil {
		s.logger.Warn("Chat turn failed", "error", err)
		return
	}
	// Close may have run while the model was answering.
	if s.state == StateReady {
		s.memory.Append(Turn{Role: RoleAssistant, Content: reply})
	}
}

// Close ends the session and forgets the key and history. Closing twice is a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateClosed
	s.apiKey = ""
	s.backend = nil
	s.retriever = nil
	if s.memory != nil {
		s.memory.Reset()
	}
}

func outcomeFor(err error) string {
	if err == nil {
		return "ok"
	}
	switch e := err.(type) {
	case *BackendError:
		return e.Stage + "_error"
	}
	switch err {
	case ErrMissingCredential:
		return "missing_credential"
	case ErrEmptyUtterance, ErrTurnInProgress:
		return "rejected"
	}
	return "error"
}
