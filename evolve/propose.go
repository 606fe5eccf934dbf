package evolve

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/agenthatchery/cradle/llm"
)

// maxSourceLines caps how much of any one file's content reaches the
// prompt; long files are shown truncated so the source summary stays
// within a reasonable token budget.
const maxSourceLines = 80

// maxProposalFiles is the hard cap after trimming; a proposal touching
// more files than this has its extras dropped. Which file is kept follows
// map iteration order, so it is not defined.
const maxProposalFiles = 1

var fencedJSONPattern = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*\n?(.*?)\n?` + "```")
var trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)

// extractJSON tries a direct parse, then a fenced ```json block, then the
// span from the first '{' to the last '}', then that span with trailing
// commas repaired. Duplicated from the task engine's identical ladder —
// each package that talks to the router owns its own copy rather than
// sharing a utility, matching how independently each package vendors its
// own JSON-decoding helpers.
func extractJSON(text string, out any) bool {
	trimmed := strings.TrimSpace(text)
	if json.Unmarshal([]byte(trimmed), out) == nil {
		return true
	}

	if m := fencedJSONPattern.FindStringSubmatch(text); m != nil {
		candidate := strings.TrimSpace(m[1])
		if json.Unmarshal([]byte(candidate), out) == nil {
			return true
		}
	}

	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first == -1 || last <= first {
		return false
	}
	candidate := text[first : last+1]
	if json.Unmarshal([]byte(candidate), out) == nil {
		return true
	}

	repaired := trailingCommaPattern.ReplaceAllString(candidate, "$1")
	return json.Unmarshal([]byte(repaired), out) == nil
}

// proposal is the router's improvement proposal, decoded straight off
// its JSON response.
type proposal struct {
	Description string            `json:"description"`
	Files       map[string]string `json:"files"`
	TestCode    string            `json:"test_code"`
	Risk        string            `json:"risk"`
}

const proposalSystemPrompt = `You are the self-evolution engine for an autonomous agent daemon. Analyze the source code and propose ONE specific, testable improvement.

RULES:
1. Propose EXACTLY ONE change to ONE file.
2. The proposed file must contain the COMPLETE new file content, not a diff.
3. Only propose LOW or MEDIUM risk changes.
4. NEVER modify the entry point, the config package, the evolver itself, the container recipe, or the supervisor script.
5. Favor changes that make the agent more capable: better error handling, a new or improved skill, better memory usage, improved prompt engineering, new built-in capability.

Respond with a SINGLE JSON object, no markdown fences, no commentary before or after:
{"description": "brief description", "files": {"path/to/file.go": "full file content"}, "test_code": "optional Python snippet that exits 0 on success", "risk": "low"}

Output ONLY the JSON object.`

func buildSourceSummary(sourceFiles map[string]string) string {
	paths := make([]string, 0, len(sourceFiles))
	for p := range sourceFiles {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, path := range paths {
		content := sourceFiles[path]
		lines := strings.Split(content, "\n")
		if len(lines) > maxSourceLines {
			content = strings.Join(lines[:maxSourceLines], "\n") +
				fmt.Sprintf("\n... (%d more lines)", len(lines)-maxSourceLines)
		}
		b.WriteString(fmt.Sprintf("\n### %s\n```go\n%s\n```\n", path, content))
	}
	return b.String()
}

// proposeImprovement asks the router for a proposal and applies every
// rejection rule: high risk, a missing/malformed files map, protected
// paths, and the file-count trim.
func (e *Evolver) proposeImprovement(ctx context.Context, sourceFiles map[string]string) (*proposal, error) {
	prompt := fmt.Sprintf(
		"# Current source code:\n%s\n\n# Previous learnings:\n%s\n\n# Past evolutions:\n%s\n\n# Evolution count: %d\n\nPropose ONE improvement. Output ONLY a JSON object.",
		buildSourceSummary(sourceFiles),
		e.learningsSummary(),
		e.pastEvolutionsSummary(),
		e.count,
	)

	resp, err := e.router.Complete(ctx, llm.ChatRequest{
		Prompt:      prompt,
		System:      proposalSystemPrompt,
		MaxTokens:   8192,
		Temperature: 0.4,
	})
	if err != nil {
		return nil, fmt.Errorf("request evolution proposal: %w", err)
	}

	var p proposal
	if !extractJSON(resp.Content, &p) {
		return nil, fmt.Errorf("could not extract JSON from evolution proposal")
	}

	if p.Risk == "" {
		p.Risk = "high"
	}
	if strings.EqualFold(p.Risk, "high") {
		return nil, fmt.Errorf("rejecting high-risk evolution proposal")
	}
	if len(p.Files) == 0 {
		return nil, fmt.Errorf("proposal has no file changes")
	}

	for path := range p.Files {
		if protectedFiles[path] || protectedFiles[filepath.Base(path)] {
			delete(p.Files, path)
		}
	}
	if len(p.Files) == 0 {
		return nil, fmt.Errorf("all proposed files are protected")
	}

	if len(p.Files) > maxProposalFiles {
		kept := make(map[string]string, maxProposalFiles)
		for path, content := range p.Files {
			kept[path] = content
			break
		}
		p.Files = kept
	}

	return &p, nil
}
