package skills

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// keywordTable maps a skill name to the words that, found anywhere in a
// task's title or description, make that skill relevant to the task.
var keywordTable = map[string][]string{
	"web_search":  {"search", "web", "internet", "research", "find", "look up", "browse", "google", "url", "http"},
	"github_cli":  {"github", "git", "repo", "clone", "commit", "push", "pull", "repository"},
	"spawn_agent": {"spawn", "sub-agent", "subagent", "docker", "delegate"},
}

// RemoteStore is the subset of the Memory Port the skill catalogue needs
// to publish built-ins and pull in operator-added skills.
type RemoteStore interface {
	StoreSkill(ctx context.Context, name, description, content string) error
	ListSkills(ctx context.Context) ([]Skill, error)
}

// Catalog is the Skill Port: it holds built-in skills plus whatever a
// remote store contributes, and answers the task engine's two questions —
// what exists (Summary), and what's relevant to this task (Relevant).
type Catalog struct {
	mu     sync.RWMutex
	byName map[string]Skill
	remote RemoteStore
	logger *zap.Logger
}

// NewCatalog builds a Catalog pre-loaded with the built-in skills. remote
// may be nil, in which case Refresh is a no-op and built-ins are never
// published anywhere.
func NewCatalog(remote RemoteStore, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	builtins, err := loadBuiltinSkills()
	if err != nil {
		return nil, err
	}

	byName := make(map[string]Skill, len(builtins))
	for _, s := range builtins {
		byName[s.Name] = s
	}

	return &Catalog{byName: byName, remote: remote, logger: logger}, nil
}

// Refresh publishes every skill in the catalogue (built-ins, plus remote
// skills merged by an earlier refresh) to the remote store and merges in
// any remote skills not already known locally. Best-effort: a remote failure
// is logged and swallowed, since the catalogue still functions on
// built-ins alone.
func (c *Catalog) Refresh(ctx context.Context) error {
	if c.remote == nil {
		return nil
	}

	c.mu.RLock()
	builtins := make([]Skill, 0, len(c.byName))
	for _, s := range c.byName {
		builtins = append(builtins, s)
	}
	c.mu.RUnlock()

	for _, s := range builtins {
		if err := c.remote.StoreSkill(ctx, s.Name, s.Description, s.Content); err != nil {
			c.logger.Warn("failed to publish builtin skill", zap.String("skill", s.Name), zap.Error(err))
		}
	}

	remoteSkills, err := c.remote.ListSkills(ctx)
	if err != nil {
		c.logger.Warn("failed to fetch remote skills", zap.Error(err))
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	added := 0
	for _, s := range remoteSkills {
		if s.Name == "" {
			continue
		}
		if _, exists := c.byName[s.Name]; !exists {
			c.byName[s.Name] = s
			added++
		}
	}
	if added > 0 {
		c.logger.Info("merged remote skills into catalogue", zap.Int("added", added))
	}
	return nil
}

// Summary returns a short list of every known skill, for injection into
// every task's system prompt regardless of relevance.
func (c *Catalog) Summary() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.byName) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Available skills (copy the implementation you need into your code)\n")
	for _, s := range c.byName {
		desc := s.Description
		if len(desc) > 120 {
			desc = desc[:120]
		}
		sb.WriteString("- " + s.Name + ": " + desc + "\n")
	}
	return sb.String()
}

// Relevant returns the full content of every skill whose keywords match
// the task's title or description, concatenated. Empty when nothing
// matches — the caller falls back to Summary in that case.
func (c *Catalog) Relevant(title, description string) string {
	text := strings.ToLower(title + " " + description)

	c.mu.RLock()
	defer c.mu.RUnlock()

	var matched []string
	for name, keywords := range keywordTable {
		skill, ok := c.byName[name]
		if !ok {
			continue
		}
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				matched = append(matched, skill.Content)
				break
			}
		}
	}
	return strings.Join(matched, "\n\n---\n\n")
}
