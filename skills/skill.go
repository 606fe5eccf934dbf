// Package skills implements the Skill Port: a small catalogue of
// SKILL.md-formatted capabilities, summarized for every task prompt and
// expanded in full only when a task's title or description matches.
package skills

import (
	"embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.md
var builtinFS embed.FS

// Skill is one loaded SKILL.md capability.
type Skill struct {
	Name        string
	Description string
	Content     string // full markdown, frontmatter included
}

type frontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// parseSkillMD splits a SKILL.md document into its YAML frontmatter and
// returns a Skill with the frontmatter fields filled in and Content set to
// the whole document (frontmatter included, since that's what gets
// injected into the task prompt verbatim).
func parseSkillMD(raw string) (Skill, error) {
	const delim = "---"
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, delim) {
		return Skill{}, fmt.Errorf("missing frontmatter delimiter")
	}

	rest := trimmed[len(delim):]
	end := strings.Index(rest, delim)
	if end == -1 {
		return Skill{}, fmt.Errorf("unterminated frontmatter")
	}

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return Skill{}, fmt.Errorf("parse frontmatter: %w", err)
	}
	if fm.Name == "" {
		return Skill{}, fmt.Errorf("frontmatter missing name")
	}

	return Skill{Name: fm.Name, Description: fm.Description, Content: raw}, nil
}

// loadBuiltinSkills parses every embedded builtin/*.md file.
func loadBuiltinSkills() ([]Skill, error) {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil, fmt.Errorf("read builtin skills dir: %w", err)
	}

	skills := make([]Skill, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := builtinFS.ReadFile("builtin/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		skill, err := parseSkillMD(string(data))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", entry.Name(), err)
		}
		skills = append(skills, skill)
	}
	return skills, nil
}
