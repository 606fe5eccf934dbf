package memory

import (
	"context"
	"fmt"
	"net/http"
)

type canvasBody struct {
	Content string `json:"content"`
}

// SaveCanvas writes a long-text document under slug — used for the
// masterplan and any other layered roadmap documents.
func (c *Client) SaveCanvas(ctx context.Context, slug, content string) error {
	if !c.Configured() {
		return nil
	}

	url := fmt.Sprintf("%s/playbooks/%s/canvas/%s", c.baseURL, c.guid, slug)
	resp, err := c.do(ctx, http.MethodPut, url, canvasBody{Content: content})
	if err != nil {
		return fmt.Errorf("save canvas %s: %w", slug, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("save canvas %s: unexpected status %d", slug, resp.StatusCode)
	}
	return nil
}

// LoadCanvas reads a canvas document by slug. ok is false when the slug
// has never been written or the client is unconfigured.
func (c *Client) LoadCanvas(ctx context.Context, slug string) (content string, ok bool, err error) {
	if !c.Configured() {
		return "", false, nil
	}

	url := fmt.Sprintf("%s/playbooks/%s/canvas/%s", c.baseURL, c.guid, slug)
	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, fmt.Errorf("load canvas %s: %w", slug, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if resp.StatusCode >= 300 {
		return "", false, fmt.Errorf("load canvas %s: unexpected status %d", slug, resp.StatusCode)
	}

	var body canvasBody
	if err := decodeJSON(resp, &body); err != nil {
		return "", false, fmt.Errorf("decode canvas %s: %w", slug, err)
	}
	return body.Content, true, nil
}
