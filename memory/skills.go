package memory

import (
	"context"
	"fmt"
	"net/http"

	"github.com/agenthatchery/cradle/skills"
)

type skillBody struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

// StoreSkill publishes a skill to the memory service. Satisfies
// skills.RemoteStore. Falls back to a tagged memory entry when no
// playbook is configured for skills specifically, matching how the
// service treats skills as a specialized memory namespace.
func (c *Client) StoreSkill(ctx context.Context, name, description, content string) error {
	if !c.Configured() {
		return nil
	}
	if c.playbookID == "" {
		return c.Store(ctx, "skill:"+name, content, []string{"skill"}, description, "")
	}

	url := fmt.Sprintf("%s/playbooks/%s/skills", c.baseURL, c.playbookID)
	resp, err := c.do(ctx, http.MethodPost, url, skillBody{Name: name, Description: description, Content: content})
	if err != nil {
		return c.Store(ctx, "skill:"+name, content, []string{"skill"}, description, "")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return c.Store(ctx, "skill:"+name, content, []string{"skill"}, description, "")
	}
	return nil
}

// ListSkills fetches skills published via the playbook skills endpoint.
// Satisfies skills.RemoteStore.
func (c *Client) ListSkills(ctx context.Context) ([]skills.Skill, error) {
	if !c.Configured() || c.playbookID == "" {
		return nil, nil
	}

	url := fmt.Sprintf("%s/playbooks/%s/skills", c.baseURL, c.playbookID)
	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("list skills: unexpected status %d", resp.StatusCode)
	}

	var remote []skillBody
	if err := decodeJSON(resp, &remote); err != nil {
		return nil, fmt.Errorf("decode skill list: %w", err)
	}

	out := make([]skills.Skill, 0, len(remote))
	for _, s := range remote {
		out = append(out, skills.Skill{Name: s.Name, Description: s.Description, Content: s.Content})
	}
	return out, nil
}

var _ skills.RemoteStore = (*Client)(nil)
