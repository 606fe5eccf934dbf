// Package openaicompat implements the chat/completions dialect shared by
// minimax, groq, openrouter, and openai: Bearer auth plus an optional
// per-provider attribution-header hook (openrouter needs HTTP-Referer and
// X-Title on every call).
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agenthatchery/cradle/llm"
	tokenizer "github.com/pkoukk/tiktoken-go"
)

// Provider is an LLM Router client for the OpenAI-style chat/completions
// dialect.
type Provider struct {
	name         string
	apiKey       string
	baseURL      string
	model        string
	costPer1K    float64
	client       *http.Client
	buildHeaders func(req *http.Request, apiKey string)
}

// Config configures a new Provider.
type Config struct {
	Name      string
	APIKey    string
	BaseURL   string
	Model     string
	CostPer1K float64
	Timeout   time.Duration

	// BuildHeaders, when set, overrides the default "Authorization: Bearer
	// <apiKey>" header. Used for openrouter's attribution headers.
	BuildHeaders func(req *http.Request, apiKey string)
}

// New creates a chat/completions-dialect provider.
func New(cfg Config) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Provider{
		name:         cfg.Name,
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		model:        cfg.Model,
		costPer1K:    cfg.CostPer1K,
		client:       &http.Client{Timeout: timeout},
		buildHeaders: cfg.BuildHeaders,
	}
}

// OpenRouterHeaders attributes openrouter calls to this project, as
// openrouter's terms require for free-tier usage.
func OpenRouterHeaders(req *http.Request, apiKey string) {
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", "https://github.com/agenthatchery/cradle")
	req.Header.Set("X-Title", "cradle")
}

func (p *Provider) Name() string       { return p.name }
func (p *Provider) Model() string      { return p.model }
func (p *Provider) CostPer1K() float64 { return p.costPer1K }

func (p *Provider) headers(req *http.Request) {
	if p.buildHeaders != nil {
		p.buildHeaders(req, p.apiKey)
		return
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
}

// Complete performs one chat/completions call.
func (p *Provider) Complete(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	start := time.Now()

	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := chatRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openaicompat(%s): marshal request: %w", p.name, err)
	}

	endpoint := fmt.Sprintf("%s/chat/completions", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openaicompat(%s): build request: %w", p.name, err)
	}
	p.headers(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openaicompat(%s): request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openaicompat(%s): status %d: %s", p.name, resp.StatusCode, string(data))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("openaicompat(%s): decode response: %w", p.name, err)
	}

	var content string
	if len(cr.Choices) > 0 {
		content = cr.Choices[0].Message.Content
	}

	inputTokens, outputTokens := 0, 0
	if cr.Usage != nil {
		inputTokens = cr.Usage.PromptTokens
		outputTokens = cr.Usage.CompletionTokens
	} else {
		inputTokens = estimateTokens(req.Prompt + req.System)
		outputTokens = estimateTokens(content)
	}

	cost := float64(inputTokens+outputTokens) / 1000.0 * p.costPer1K

	model := cr.Model
	if model == "" {
		model = p.model
	}

	return &llm.ChatResponse{
		Content:      content,
		Provider:     p.name,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		LatencyMS:    time.Since(start).Milliseconds(),
		CostUSD:      cost,
	}, nil
}

func estimateTokens(text string) int {
	enc, err := tokenizer.GetEncoding("cl100k_base")
	if err != nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
