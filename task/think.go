package task

import (
	"context"
	"fmt"

	"github.com/agenthatchery/cradle/llm"
)

// planJSON is the THINK phase's required response shape.
type planJSON struct {
	Type         string        `json:"type"`
	Answer       string        `json:"answer,omitempty"`
	Subtasks     []subtaskSpec `json:"subtasks,omitempty"`
	Language     string        `json:"language,omitempty"`
	Code         string        `json:"code,omitempty"`
	Packages     []string      `json:"packages,omitempty"`
	NeedsNetwork bool          `json:"needs_network,omitempty"`
}

type subtaskSpec struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// reflectionJSON is the REFLECT phase's required response shape.
type reflectionJSON struct {
	Reflection  string   `json:"reflection"`
	Summary     string   `json:"summary"`
	ShouldRetry bool     `json:"should_retry"`
	Learnings   []string `json:"learnings,omitempty"`
}

func (e *Engine) think(ctx context.Context, t *Task) (*planJSON, error) {
	system := e.buildSystemPrompt(t)

	prompt := fmt.Sprintf("Task: %s\n\nDescription: %s", t.Title, t.Description)
	if t.Attempts > 1 && t.Error != "" {
		prompt += fmt.Sprintf("\n\nPrevious attempt failed with:\n%s\n\nPlease fix the issue and try again.", t.Error)
	}

	resp, err := e.llm.Complete(ctx, llm.ChatRequest{Prompt: prompt, System: system, Temperature: 0.2, MaxTokens: 4096})
	if err != nil {
		return nil, err
	}

	var p planJSON
	if extractJSON(resp.Content, &p) {
		return &p, nil
	}

	e.logger.Warn("could not parse plan JSON from LLM response, falling back to direct_answer")
	return &planJSON{Type: "direct_answer", Answer: resp.Content}, nil
}

func (e *Engine) buildSystemPrompt(t *Task) string {
	persona := e.DynamicPersona
	if persona == "" {
		persona = "You are Cradle, a fully autonomous self-evolving AI agent."
	}

	repoRef := "your own repository"
	if e.githubOrg != "" && e.githubRepo != "" {
		repoRef = fmt.Sprintf("https://github.com/%s/%s", e.githubOrg, e.githubRepo)
	}

	system := persona + `

## ALWAYS WRITE CODE
Respond with executable code for any task that involves doing something.
Never use "direct_answer" unless the user asks a simple factual question.
Never write placeholder comments like "# I would run this" — your code is
actually executed. If you need to clone a repo, clone it; if you need to
edit a file, edit it.

## The sandbox is an isolated container
Code runs in a fresh Python 3.12 container. It does not have this daemon's
source on its filesystem and cannot import any of its packages. List extra
pip packages in "packages": [...].

## Response format — JSON only, no markdown fences:
{"type": "code", "language": "python", "code": "print('hello')", "packages": [], "needs_network": false}
{"type": "code", "language": "bash", "code": "echo hello", "needs_network": false}
{"type": "direct_answer", "answer": "..."}
{"type": "decompose", "subtasks": [{"title": "...", "description": "..."}]}

Set "needs_network": true for any task involving web search, API calls,
git clone, or pip install.

## Self-update pattern
To modify your own code: clone ` + repoRef + `, edit the files, commit,
push, then print "` + selfUpdateMarker + `" so the engine knows to restart.

Output only raw JSON. No explanation before or after.`

	if e.skills != nil {
		if details := e.skills.Relevant(t.Title, t.Description); details != "" {
			system += "\n\n## Skill instructions\nSkill functions are not pre-imported: copy the implementation you need directly into your code.\n\n" + details
		} else if summary := e.skills.Summary(); summary != "" {
			system += "\n\n" + summary
		}
	}

	return system
}
