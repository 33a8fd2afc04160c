// Package api exposes chat sessions over HTTP for the web front end.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/plexi-bot/plexi/internal/chat"
	"github.com/plexi-bot/plexi/internal/storage"
)

// maxBodyBytes caps request bodies; utterances and keys are short.
const maxBodyBytes = 64 << 10

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest        = "bad_request"
	CodeMissingCredential = "missing_credential"
	CodeUnauthorized      = "unauthorized"
	CodeSessionNotFound   = "session_not_found"
	CodeSessionClosed     = "session_closed"
	CodeConflict          = "conflict"
	CodeIndexUnavailable  = "index_unavailable"
	CodeBackendError      = "backend_error"
	CodeInternalError     = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SessionResponse describes a session.
type SessionResponse struct {
	ID       string         `json:"id"`
	State    string         `json:"state"`
	Greeting string         `json:"greeting,omitempty"`
	History  []TurnResponse `json:"history"`
}

// TurnResponse is one retained conversation turn.
type TurnResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SetKeyRequest supplies a session's language-model API key.
type SetKeyRequest struct {
	APIKey string `json:"api_key"`
}

// MessageRequest is one user utterance.
type MessageRequest struct {
	Message string `json:"message"`
}

// MessageResponse is the assistant's reply to a MessageRequest.
type MessageResponse struct {
	Reply string `json:"reply"`
}

type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves the session API over a chat.Registry.
type Server struct {
	sessions      *chat.Registry
	logger        *slog.Logger
	errorHandlers []errorHandler
}

// NewServer creates a Server. logger may be nil.
func NewServer(sessions *chat.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{sessions: sessions, logger: logger}
	s.errorHandlers = []errorHandler{
		backendErrorHandler,
		sentinelHandler(chat.ErrMissingCredential, http.StatusPreconditionRequired, CodeMissingCredential),
		sentinelHandler(chat.ErrSessionNotFound, http.StatusNotFound, CodeSessionNotFound),
		sentinelHandler(chat.ErrSessionClosed, http.StatusGone, CodeSessionClosed),
		sentinelHandler(chat.ErrEmptyUtterance, http.StatusBadRequest, CodeBadRequest),
		sentinelHandler(chat.ErrTurnInProgress, http.StatusConflict, CodeConflict),
		sentinelHandler(chat.ErrKeyAlreadySet, http.StatusConflict, CodeConflict),
		sentinelHandler(storage.ErrIndexNotFound, http.StatusServiceUnavailable, CodeIndexUnavailable),
		sentinelHandler(storage.ErrEmbeddingModelMismatch, http.StatusServiceUnavailable, CodeIndexUnavailable),
		sentinelHandler(storage.ErrQdrantUnreachable, http.StatusServiceUnavailable, CodeIndexUnavailable),
	}
	return s
}

// Register mounts the session routes on r.
func (s *Server) Register(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.createSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.closeSession)
			r.Put("/key", s.setKey)
			r.Post("/messages", s.postMessage)
		})
	})
}

// Handler returns a standalone router serving only the session API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.Register(r)
	return r
}

func (s *Server) createSession(w http.ResponseWriter, _ *http.Request) {
	id, session := s.sessions.Create()
	resp := sessionResponse(id, session)
	resp.Greeting = session.Greeting()
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, err := s.sessions.Get(id)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(id, session))
}

func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(chi.URLParam(r, "id")); err != nil {
		s.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, err := s.sessions.Get(id)
	if err != nil {
		s.handleError(w, err)
		return
	}

	var req SetKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := session.SetAPIKey(r.Context(), req.APIKey); err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(id, session))
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.handleError(w, err)
		return
	}

	var req MessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	reply, err := session.Submit(r.Context(), req.Message)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Reply: reply})
}

func (s *Server) handleError(w http.ResponseWriter, err error) {
	for _, h := range s.errorHandlers {
		if h(w, err) {
			s.logger.Debug("Request rejected", "error", err)
			return
		}
	}
	s.logger.Error("Internal error", "error", err)
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

// backendErrorHandler maps failed model calls. A rejected key is the
// caller's problem; anything else is an upstream failure.
func backendErrorHandler(w http.ResponseWriter, err error) bool {
	var be *chat.BackendError
	if !errors.As(err, &be) {
		return false
	}
	if be.Unauthorized() {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "the language model rejected the API key")
		return true
	}
	writeError(w, http.StatusBadGateway, CodeBackendError, be.Stage+" failed, please try again")
	return true
}

func sessionResponse(id string, s *chat.Session) SessionResponse {
	history := s.History()
	turns := make([]TurnResponse, len(history))
	for i, t := range history {
		turns[i] = TurnResponse{Role: string(t.Role), Content: t.Content}
	}
	return SessionResponse{ID: id, State: s.State().String(), History: turns}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
