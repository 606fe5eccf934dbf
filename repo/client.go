// Package repo implements the Repo Client: a minimal GitHub REST API
// client used by the evolution workflow to read the live source, push a
// branch, and merge it back once a proposal passes its sandbox test.
package repo

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const githubAPI = "https://api.github.com"

// Client is a minimal GitHub API client scoped to one org/repo.
type Client struct {
	org, repo, pat string
	baseURL        string
	httpClient     *http.Client
	logger         *zap.Logger
}

// Config configures a new Client. BaseURL overrides the public GitHub API
// endpoint, for GitHub Enterprise deployments and tests; it defaults to
// githubAPI when empty.
type Config struct {
	Org, Repo, PAT string
	BaseURL        string
	Logger         *zap.Logger
}

// New builds a Client.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = githubAPI
	}
	return &Client{
		org:        cfg.Org,
		repo:       cfg.Repo,
		pat:        cfg.PAT,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func (c *Client) repoURL() string {
	return fmt.Sprintf("%s/repos/%s/%s", c.baseURL, c.org, c.repo)
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
	req.Header.Set("Authorization", "token "+c.pat)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// decodeAndClose decodes an HTTP response body as JSON into out and closes
// it, returning an error when the status code indicates failure.
func decodeAndClose(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// File is a file's content plus the SHA GitHub needs for an update.
type File struct {
	Path    string
	Content string
	SHA     string
}

type contentResponse struct {
	Content string `json:"content"`
	SHA     string `json:"sha"`
}

// GetFile reads a file's content and SHA from the repo at ref. Returns
// nil, nil when the file does not exist.
func (c *Client) GetFile(ctx context.Context, path, ref string) (*File, error) {
	url := fmt.Sprintf("%s/contents/%s?ref=%s", c.repoURL(), path, ref)
	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("get file %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("get file %s: unexpected status %d", path, resp.StatusCode)
	}

	var data contentResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode file %s: %w", path, err)
	}
	decoded, err := base64.StdEncoding.DecodeString(data.Content)
	if err != nil {
		return nil, fmt.Errorf("decode base64 content for %s: %w", path, err)
	}
	return &File{Path: path, Content: string(decoded), SHA: data.SHA}, nil
}

type putFileBody struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

// PutFile creates or updates a file on branch. sha must be the existing
// file's SHA when updating, empty when creating.
func (c *Client) PutFile(ctx context.Context, path, content, message, branch, sha string) error {
	url := fmt.Sprintf("%s/contents/%s", c.repoURL(), path)
	body := putFileBody{
		Message: message,
		Content: base64.StdEncoding.EncodeToString([]byte(content)),
		Branch:  branch,
		SHA:     sha,
	}
	resp, err := c.do(ctx, http.MethodPut, url, body)
	if err != nil {
		return fmt.Errorf("put file %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("put file %s: unexpected status %d", path, resp.StatusCode)
	}
	c.logger.Info("pushed file", zap.String("path", path), zap.String("branch", branch))
	return nil
}

// PushFiles writes every file in the map to branch, looking up each
// file's current SHA first so updates to existing files succeed.
func (c *Client) PushFiles(ctx context.Context, files map[string]string, branch, message string) error {
	for path, content := range files {
		existing, err := c.GetFile(ctx, path, branch)
		if err != nil {
			return fmt.Errorf("look up existing sha for %s: %w", path, err)
		}
		sha := ""
		if existing != nil {
			sha = existing.SHA
		}
		if err := c.PutFile(ctx, path, content, message, branch, sha); err != nil {
			return err
		}
	}
	return nil
}
