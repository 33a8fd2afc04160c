package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type completionRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestOpenAIBackend_Generate(t *testing.T) {
	var got completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/openai/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gemini-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1", "object": "chat.completion", "created": 1, "model": "gemini-1.5-flash",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "Hello! How can I help you?"}}]
		}`))
	}))
	defer srv.Close()

	backend, err := NewOpenAIBackendFactory(srv.URL+"/v1beta/openai/", "gemini-1.5-flash")("gemini-key")
	require.NoError(t, err)

	reply, err := backend.Generate(context.Background(), []Turn{
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "how are you"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello! How can I help you?", reply)

	assert.Equal(t, "gemini-1.5-flash", got.Model)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Equal(t, "how are you", got.Messages[3].Content)
}

func TestOpenAIBackend_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "API key not valid", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	backend, err := NewOpenAIBackendFactory(srv.URL, "m")("bad-key")
	require.NoError(t, err)

	_, err = backend.Generate(context.Background(), []Turn{{Role: RoleUser, Content: "hi"}})
	require.Error(t, err)
	assert.True(t, (&BackendError{Stage: StageGeneration, Err: err}).Unauthorized())
}

func TestOpenAIBackendFactory_RequiresKey(t *testing.T) {
	_, err := NewOpenAIBackendFactory("", "m")("")
	assert.ErrorIs(t, err, ErrMissingCredential)
}
