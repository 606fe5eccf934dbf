package memory

import (
	"context"
	"fmt"
)

const (
	personaCanvasSlug  = "persona"
	masterplanSlug     = "masterplan"
	reflectionKeyPrefix = "reflection:"
	learningKeyPrefix   = "learning:"
)

// FetchPersona loads the dynamically-set system-prompt persona, if the
// operator has ever pushed one. ok is false when none exists yet, in
// which case the task engine falls back to its built-in default.
func (c *Client) FetchPersona(ctx context.Context) (persona string, ok bool, err error) {
	return c.LoadCanvas(ctx, personaCanvasSlug)
}

// UpdatePersona pushes a new system-prompt persona.
func (c *Client) UpdatePersona(ctx context.Context, persona string) error {
	return c.SaveCanvas(ctx, personaCanvasSlug, persona)
}

// SaveMasterplan writes the layered roadmap document.
func (c *Client) SaveMasterplan(ctx context.Context, content string) error {
	return c.SaveCanvas(ctx, masterplanSlug, content)
}

// LoadMasterplan reads the layered roadmap document.
func (c *Client) LoadMasterplan(ctx context.Context) (content string, ok bool, err error) {
	return c.LoadCanvas(ctx, masterplanSlug)
}

// StoreReflection records a task's reflection and, separately, each
// non-empty learning it produced — mirrored as individual tagged memory
// entries so future tasks can recall a learning without replaying the
// whole reflection.
func (c *Client) StoreReflection(ctx context.Context, taskID, reflection string, learnings []string) error {
	if err := c.Store(ctx, reflectionKeyPrefix+taskID, reflection, []string{"reflection"}, "", ""); err != nil {
		return err
	}
	for i, learning := range learnings {
		if learning == "" {
			continue
		}
		_ = c.Store(ctx, fmt.Sprintf("%s%s:%d", learningKeyPrefix, taskID, i), learning, []string{"learning"}, "", "")
	}
	return nil
}
