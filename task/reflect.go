package task

import (
	"context"
	"fmt"

	"github.com/agenthatchery/cradle/llm"
	"github.com/agenthatchery/cradle/sandbox"
)

const reflectSystemPrompt = `You are Cradle reflecting on a task execution. Analyze the result and provide:
1. A brief reflection on what happened
2. A summary of the outcome
3. Whether to retry if it failed (and why)
4. Any learnings to store for future reference

Respond with JSON: {"reflection": "...", "summary": "...", "should_retry": true/false, "learnings": ["..."]}`

func (e *Engine) reflect(ctx context.Context, t *Task, code string, result *sandbox.Result) *reflectionJSON {
	truncatedCode := truncateForPrompt(code, 2000)
	prompt := fmt.Sprintf(`Task: %s
Code executed:
%s

Exit code: %d
Success: %t
Duration: %dms

stdout:
%s

stderr:
%s`,
		t.Title, truncatedCode, result.ExitCode, result.ExitCode == 0, result.Duration.Milliseconds(),
		truncateForPrompt(result.Stdout, 2000), truncateForPrompt(result.Stderr, 2000))

	resp, err := e.llm.Complete(ctx, llm.ChatRequest{
		Prompt:      prompt,
		System:      reflectSystemPrompt,
		Temperature: 0.3,
		MaxTokens:   1024,
		Preferred:   e.llm.CheapestProvider(),
	})
	fallback := func() *reflectionJSON {
		summary := result.Stdout
		if result.ExitCode != 0 {
			summary = result.Stderr
		}
		return &reflectionJSON{
			Reflection:  "could not obtain reflection",
			Summary:     truncateForPrompt(summary, 500),
			ShouldRetry: result.ExitCode != 0 && t.Attempts < t.MaxAttempts,
		}
	}
	if err != nil {
		return fallback()
	}

	var r reflectionJSON
	if extractJSON(resp.Content, &r) {
		return &r
	}
	return fallback()
}

func truncateForPrompt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
