package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAskBuildsSingleUserTurn(t *testing.T) {
	mock := NewMockCompleter("hi there")

	resp, err := Ask(context.Background(), mock, "gpt-4o", 0.7, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp)

	req := mock.LastCall()
	assert.Equal(t, "gpt-4o", req.Model)
	assert.InDelta(t, 0.7, req.Temperature, 0.001)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, RoleUser, req.Messages[0].Role)
	assert.Equal(t, "hello", req.Messages[0].Content)
}

func TestSurrogate(t *testing.T) {
	assert.Equal(t, "fine", Surrogate("fine", nil))

	text := Surrogate("", errors.New("boom"))
	assert.Contains(t, text, "boom")
}

func TestMockCompleterRepeatsLastResponse(t *testing.T) {
	mock := NewMockCompleter("first", "second")
	ctx := context.Background()

	for _, want := range []string{"first", "second", "second"} {
		got, err := mock.Complete(ctx, CompletionRequest{})
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 3, mock.CallCount())
}

func TestOpenAIClientComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body struct {
			Model    string    `json:"model"`
			Messages []Message `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body.Model)
		require.NotEmpty(t, body.Messages)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "  42  "}},
			},
		})
	}))
	defer server.Close()

	c := NewOpenAIClientWithOptions(server.URL, "test-key", "test-model")
	resp, err := c.Complete(context.Background(), CompletionRequest{
		Messages: []Message{User("what is the answer?")},
	})
	require.NoError(t, err)
	assert.Equal(t, "42", resp, "responses are trimmed")
}

func TestOpenAIClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "rate limited"},
		})
	}))
	defer server.Close()

	c := NewOpenAIClientWithOptions(server.URL, "test-key", "test-model")
	_, err := c.Complete(context.Background(), CompletionRequest{
		Messages: []Message{User("q")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestOpenAIClientRequiresKey(t *testing.T) {
	c := NewOpenAIClientWithOptions("http://localhost:1", "", "m")
	if c.Available() {
		t.Skip("ambient API key present in environment")
	}
	_, err := c.Complete(context.Background(), CompletionRequest{
		Messages: []Message{User("q")},
	})
	require.Error(t, err)
}
