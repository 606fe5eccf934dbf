// Package llm implements the multi-provider router: priority-ordered
// failover across providers speaking one of two HTTP dialects, with
// consecutive-failure demotion, per-provider rate limiting, and usage/cost
// accounting.
package llm

import "context"

// ChatRequest is the normalized request sent to every provider regardless
// of dialect.
type ChatRequest struct {
	Prompt      string
	System      string
	Temperature float64
	MaxTokens   int
	// Preferred, if non-empty, names a provider that Router.Complete moves
	// to the front of the priority-ordered snapshot for this call only. It
	// has no effect on the provider's own request body.
	Preferred string
}

// ChatResponse is the normalized response returned by every provider.
type ChatResponse struct {
	Content      string
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	LatencyMS    int64
	CostUSD      float64
}

// Provider is implemented by each concrete dialect client (gemini,
// openaicompat). A single call must either return a normalized response or
// a non-nil error; it must not retry internally — failover is the retry.
type Provider interface {
	// Name is the configured provider name (e.g. "gemini", "groq").
	Name() string
	// Model is the configured model identifier for this provider.
	Model() string
	// CostPer1K is the configured combined input+output cost per 1k tokens.
	CostPer1K() float64
	// Complete performs one normalized chat completion call.
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}
