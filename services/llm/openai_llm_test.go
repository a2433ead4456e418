package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chatCapture is the subset of the chat completions request the tests
// assert on.
type chatCapture struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// newChatServer returns a fake chat completions endpoint that records
// the raw request body and answers with content.
func newChatServer(t *testing.T, content string, rawBody *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		*rawBody = string(body)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
}

// TestOpenAIClient_Complete verifies the prompt is framed with the
// system message and the caller's sampling parameters reach the wire.
func TestOpenAIClient_Complete(t *testing.T) {
	var rawBody string
	srv := newChatServer(t, "Margins expanded on data center mix.", &rawBody)
	defer srv.Close()

	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)
	defer client.Close()

	params := GenerationParams{Temperature: Float32Ptr(0.3), MaxTokens: IntPtr(256)}
	answer, err := client.Complete(context.Background(),
		"Why did NVDA margins expand?", "gpt-4o", params)
	require.NoError(t, err)
	assert.Equal(t, "Margins expanded on data center mix.", answer)

	var got chatCapture
	require.NoError(t, json.Unmarshal([]byte(rawBody), &got))
	assert.Equal(t, "gpt-4o", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, completionSystemPrompt, got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "Why did NVDA margins expand?", got.Messages[1].Content)
	assert.InDelta(t, 0.3, got.Temperature, 1e-6)
	assert.Equal(t, 256, got.MaxTokens)
}

// TestOpenAIClient_CompleteWithSearch verifies the search call swaps in
// the search-preview sibling, sends the prompt bare, and carries no
// sampling parameters.
func TestOpenAIClient_CompleteWithSearch(t *testing.T) {
	var rawBody string
	srv := newChatServer(t, "Three IPOs priced this week.", &rawBody)
	defer srv.Close()

	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)
	defer client.Close()

	answer, err := client.CompleteWithSearch(context.Background(),
		"What IPOs priced this week?", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "Three IPOs priced this week.", answer)

	var got chatCapture
	require.NoError(t, json.Unmarshal([]byte(rawBody), &got))
	assert.Equal(t, "gpt-4o-search-preview", got.Model, "search call should route to the search sibling")
	require.Len(t, got.Messages, 1, "search prompt goes out without the system frame")
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "What IPOs priced this week?", got.Messages[0].Content)
	assert.NotContains(t, rawBody, `"temperature"`, "search-preview models reject sampling parameters")
}

// TestOpenAIClient_Complete_NoChoices verifies an empty choice list is
// an error rather than an empty answer.
func TestOpenAIClient_Complete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id": "chatcmpl-test", "object": "chat.completion", "created": 1,
			"model": "gpt-4o", "choices": []any{},
		})
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Complete(context.Background(), "probe", "gpt-4o", GenerationParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

// TestOpenAIClient_Complete_APIError verifies backend failures are
// wrapped with the adapter's context.
func TestOpenAIClient_Complete_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "overloaded", "type": "server_error"},
		})
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Complete(context.Background(), "probe", "gpt-4o", GenerationParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OpenAI API call failed")
}

// TestNewOpenAIClient_MissingKey verifies construction fails fast when
// no key source is configured.
func TestNewOpenAIClient_MissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY_FILE", "")

	_, err := NewOpenAIClient(OpenAIConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY is not set")
}

// TestSearchModelFor pins the model family substitution table.
func TestSearchModelFor(t *testing.T) {
	cases := []struct {
		name  string
		model string
		want  string
	}{
		{name: "default family", model: "gpt-4o", want: "gpt-4o-search-preview"},
		{name: "mini family", model: "gpt-4o-mini", want: "gpt-4o-mini-search-preview"},
		{name: "already search capable", model: "gpt-4o-search-preview", want: "gpt-4o-search-preview"},
		{name: "mini already search capable", model: "gpt-4o-mini-search-preview", want: "gpt-4o-mini-search-preview"},
		{name: "older hosted model", model: "gpt-4-turbo", want: "gpt-4o-search-preview"},
		{name: "local model routed remotely", model: "llama3.1:8b", want: "gpt-4o-search-preview"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, searchModelFor(tc.model))
		})
	}
}

// TestSearchModelFor_PreviewSuffixDominates documents that any
// identifier already carrying the suffix is passed through untouched.
func TestSearchModelFor_PreviewSuffixDominates(t *testing.T) {
	assert.True(t, strings.Contains(searchModelFor("custom-search-preview"), "custom"),
		"a custom search-preview identifier must not be rewritten")
}
