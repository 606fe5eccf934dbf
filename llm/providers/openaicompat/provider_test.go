package openaicompat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agenthatchery/cradle/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Complete_DefaultBearerAuth(t *testing.T) {
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		resp := chatResponse{
			Model: "llama-3.3-70b-versatile",
			Choices: []chatChoice{
				{Message: chatMessage{Role: "assistant", Content: "hi there"}},
			},
			Usage: &chatUsage{PromptTokens: 10, CompletionTokens: 4},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := New(Config{Name: "groq", APIKey: "groq-key", BaseURL: server.URL, Model: "llama-3.3-70b-versatile"})

	resp, err := p.Complete(t.Context(), llm.ChatRequest{Prompt: "hello", System: "be terse"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer groq-key", gotAuth)
	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, 10, resp.InputTokens)
	assert.Equal(t, 4, resp.OutputTokens)
}

func TestProvider_Complete_OpenRouterAttributionHeaders(t *testing.T) {
	var gotReferer, gotTitle string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("HTTP-Referer")
		gotTitle = r.Header.Get("X-Title")
		json.NewEncoder(w).Encode(chatResponse{
			Choices: []chatChoice{{Message: chatMessage{Content: "ok"}}},
		})
	}))
	defer server.Close()

	p := New(Config{
		Name:         "openrouter",
		APIKey:       "or-key",
		BaseURL:      server.URL,
		Model:        "meta-llama/llama-3.3-70b-instruct",
		BuildHeaders: OpenRouterHeaders,
	})

	_, err := p.Complete(t.Context(), llm.ChatRequest{Prompt: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, gotReferer)
	assert.Equal(t, "cradle", gotTitle)
}

func TestProvider_Complete_EstimatesTokensWhenUsageMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{
			Choices: []chatChoice{{Message: chatMessage{Content: "a reply with several words"}}},
		})
	}))
	defer server.Close()

	p := New(Config{Name: "openai", APIKey: "k", BaseURL: server.URL, Model: "gpt-4o-mini"})

	resp, err := p.Complete(t.Context(), llm.ChatRequest{Prompt: "a longer prompt here"})
	require.NoError(t, err)
	assert.Greater(t, resp.InputTokens, 0)
	assert.Greater(t, resp.OutputTokens, 0)
}

func TestProvider_Complete_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p := New(Config{Name: "openai", APIKey: "k", BaseURL: server.URL, Model: "gpt-4o-mini"})

	_, err := p.Complete(t.Context(), llm.ChatRequest{Prompt: "hi"})
	require.Error(t, err)
}
