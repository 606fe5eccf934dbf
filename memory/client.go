// Package memory implements the Memory Port: an HTTP RPC client against an
// external knowledge service that stores key/value memory entries, canvas
// documents, skills, and the agent's persona — the daemon's only durable
// long-term memory, outliving any single process restart.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/agenthatchery/cradle/task"
)

// Client is a minimal client for the external memory service.
type Client struct {
	baseURL    string
	apiKey     string
	guid       string
	playbookID string
	httpClient *http.Client
	logger     *zap.Logger
}

// Config configures a new Client. GUID and PlaybookID address the
// operator's memory namespace; both may be empty, in which case every
// operation becomes a no-op (matching the service being optional).
type Config struct {
	BaseURL, APIKey, GUID, PlaybookID string
	Logger                            *zap.Logger
}

// New builds a Client.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		guid:       cfg.GUID,
		playbookID: cfg.PlaybookID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Configured reports whether enough credentials are present for this
// client to do anything beyond no-op.
func (c *Client) Configured() bool {
	return c.guid != "" && c.apiKey != ""
}

func (c *Client) do(ctx context.Context, method, url string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	return c.httpClient.Do(req)
}

// decodeJSON decodes an already-open response body without closing it —
// callers own the close via their own defer.
func decodeJSON(resp *http.Response, out any) error {
	return json.NewDecoder(resp.Body).Decode(out)
}

var _ task.MemoryPort = (*Client)(nil)

type storeBody struct {
	Value       string   `json:"value"`
	Tags        []string `json:"tags,omitempty"`
	Description string   `json:"description,omitempty"`
	Tier        string   `json:"tier,omitempty"`
}

// Store persists value (marshaled to JSON) under key. Matches the task
// engine's MemoryPort contract. A client with no GUID/API key configured
// silently no-ops — the memory service is optional ambient infrastructure.
func (c *Client) Store(ctx context.Context, key string, value any, tags []string, description, tier string) error {
	if !c.Configured() {
		return nil
	}

	serialized, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal memory value for %s: %w", key, err)
	}

	url := fmt.Sprintf("%s/playbooks/%s/memory/%s", c.baseURL, c.guid, key)
	resp, err := c.do(ctx, http.MethodPut, url, storeBody{
		Value:       string(serialized),
		Tags:        tags,
		Description: description,
		Tier:        tier,
	})
	if err != nil {
		return fmt.Errorf("store memory %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("store memory %s: unexpected status %d", key, resp.StatusCode)
	}
	return nil
}

type memoryEntry struct {
	Key   string   `json:"key"`
	Value string   `json:"value"`
	Tags  []string `json:"tags,omitempty"`
}

// Recall retrieves one memory entry by key. Returns ok=false when the key
// is not present or the client is unconfigured.
func (c *Client) Recall(ctx context.Context, key string) (value string, ok bool, err error) {
	if !c.Configured() {
		return "", false, nil
	}

	entries, err := c.recallAll(ctx)
	if err != nil {
		return "", false, err
	}
	for _, e := range entries {
		if e.Key == key {
			return e.Value, true, nil
		}
	}
	return "", false, nil
}

func (c *Client) recallAll(ctx context.Context) ([]memoryEntry, error) {
	url := fmt.Sprintf("%s/playbooks/%s/memory", c.baseURL, c.guid)
	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("recall memory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("recall memory: unexpected status %d", resp.StatusCode)
	}

	var entries []memoryEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode memory entries: %w", err)
	}
	return entries, nil
}

// Forget deletes a memory entry by key.
func (c *Client) Forget(ctx context.Context, key string) error {
	if !c.Configured() {
		return nil
	}

	url := fmt.Sprintf("%s/playbooks/%s/memory/%s", c.baseURL, c.guid, key)
	resp, err := c.do(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("forget memory %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("forget memory %s: unexpected status %d", key, resp.StatusCode)
	}
	return nil
}
