package task

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")
var trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)

// extractJSON tries, in order: a direct parse, a ```json fenced block, the
// span from the first '{' to the last '}', and that same span with
// trailing commas stripped. The first strategy that parses into out wins.
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
