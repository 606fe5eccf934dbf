// Package gemini implements the Google-style generateContent dialect:
// credential travels in the URL query string, never a header, and the
// request/response bodies follow the contents/parts shape.
package gemini

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

// Provider is an LLM Router client for the Google-style generateContent
// dialect.
type Provider struct {
	name      string
	apiKey    string
	baseURL   string
	model     string
	costPer1K float64
	client    *http.Client
}

// Config configures a new Provider.
type Config struct {
	Name      string
	APIKey    string
	BaseURL   string
	Model     string
	CostPer1K float64
	Timeout   time.Duration
}

// New creates a Gemini-dialect provider.
func New(cfg Config) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &Provider{
		name:      cfg.Name,
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     cfg.Model,
		costPer1K: cfg.CostPer1K,
		client:    &http.Client{Timeout: timeout},
	}
}

func (p *Provider) Name() string        { return p.name }
func (p *Provider) Model() string       { return p.model }
func (p *Provider) CostPer1K() float64  { return p.costPer1K }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata,omitempty"`
}

// Complete performs one Gemini generateContent call. The API key travels
// in the "?key=" query parameter, per the wire contract this dialect must
// follow — not the x-goog-api-key header used elsewhere in the corpus.
func (p *Provider) Complete(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	start := time.Now()

	body := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, p.model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gemini: status %d: %s", resp.StatusCode, string(data))
	}

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("gemini: decode response: %w", err)
	}

	var text strings.Builder
	if len(gr.Candidates) > 0 {
		for _, part := range gr.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
	}

	inputTokens, outputTokens := 0, 0
	if gr.UsageMetadata != nil {
		inputTokens = gr.UsageMetadata.PromptTokenCount
		outputTokens = gr.UsageMetadata.CandidatesTokenCount
	} else {
		inputTokens = estimateTokens(req.Prompt + req.System)
		outputTokens = estimateTokens(text.String())
	}

	cost := float64(inputTokens+outputTokens) / 1000.0 * p.costPer1K

	return &llm.ChatResponse{
		Content:      text.String(),
		Provider:     p.name,
		Model:        p.model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		LatencyMS:    time.Since(start).Milliseconds(),
		CostUSD:      cost,
	}, nil
}

// estimateTokens approximates token count via tiktoken-go when a provider's
// response omits usage counts.
func estimateTokens(text string) int {
	enc, err := tokenizer.GetEncoding("cl100k_base")
	if err != nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
