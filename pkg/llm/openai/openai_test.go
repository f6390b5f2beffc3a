package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/petrijr/fluxnode/pkg/api"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newServer(t *testing.T, handler func(req chatRequest) (int, string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		status, body := handler(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func completion(model, content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   model,
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5},
	})
	return string(b)
}

func newCompleter(srv *httptest.Server, opts ...Option) *Completer {
	base := []Option{
		WithAPIKey("test-key"),
		WithBaseURL(srv.URL + "/v1/"),
		WithMaxRetries(0),
		WithLogger(zap.NewNop()),
	}
	return New(append(base, opts...)...)
}

func TestComplete_SendsSingleUserMessage(t *testing.T) {
	var got chatRequest
	srv := newServer(t, func(req chatRequest) (int, string) {
		got = req
		return http.StatusOK, completion(req.Model, `{"answer": 42}`)
	})

	c := newCompleter(srv, WithModel("gpt-test"))
	out, err := c.Complete(context.Background(), "What is it?", "")
	require.NoError(t, err)
	assert.Equal(t, `{"answer": 42}`, out)

	assert.Equal(t, "gpt-test", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "What is it?", got.Messages[0].Content)
}

func TestComplete_ModelOverride(t *testing.T) {
	srv := newServer(t, func(req chatRequest) (int, string) {
		return http.StatusOK, completion(req.Model, req.Model)
	})

	c := newCompleter(srv)
	assert.Equal(t, DefaultModel, c.DefaultModel())
	out, err := c.Complete(context.Background(), "p", "other-model")
	require.NoError(t, err)
	assert.Equal(t, "other-model", out)
}

func TestComplete_ServerErrorWrapsCompletionFailed(t *testing.T) {
	srv := newServer(t, func(chatRequest) (int, string) {
		return http.StatusInternalServerError, `{"error": {"message": "boom", "type": "server_error"}}`
	})

	_, err := newCompleter(srv).Complete(context.Background(), "p", "")
	require.ErrorIs(t, err, api.ErrCompletionFailed)
}

func TestComplete_NoChoices(t *testing.T) {
	srv := newServer(t, func(req chatRequest) (int, string) {
		return http.StatusOK, `{"id": "x", "object": "chat.completion", "created": 1, "model": "m", "choices": []}`
	})

	_, err := newCompleter(srv).Complete(context.Background(), "p", "")
	require.ErrorIs(t, err, api.ErrCompletionFailed)
	assert.Contains(t, err.Error(), "no choices")
}
