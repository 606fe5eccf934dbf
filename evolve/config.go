// Package evolve implements the self-evolution engine: the daemon reads
// its own source tree, asks the LLM router for one focused improvement,
// validates and optionally sandbox-tests the proposal, then publishes it
// through the repo client and requests a restart.
package evolve

import "path/filepath"

// sourcePackages is the whitelist of top-level packages considered "the
// agent's source" for a proposal. Legacy reference packages kept around
// during earlier development are deliberately excluded so proposals only
// ever touch code that is actually wired into the running daemon.
var sourcePackages = []string{
	"cmd", "internal", "task", "store", "skills", "repo",
	"memory", "evolve", "heartbeat", "sandbox", "llm", "audit",
	"telegrambot", "metrics",
}

// rootWhitelist is the small set of project-root files included in a
// proposal's source snapshot even though they live outside any package
// directory: the module manifest, container recipe, supervisor script,
// and readme.
var rootWhitelist = []string{"go.mod", "Dockerfile", "entrypoint.sh", "README.md"}

// entryFile, configFile and evolverFile are the daemon's own protected
// files, named in both their bare and source-dir-prefixed forms below.
const (
	entryFile   = "cmd/cradle/main.go"
	configFile  = "internal/config/config.go"
	evolverFile = "evolve/evolver.go"
)

// protectedFiles is the exact set of paths a proposal may never touch:
// the entry point, config, the evolver itself (both bare and prefixed
// forms), plus the container recipe and supervisor script.
var protectedFiles = buildProtectedSet()

func buildProtectedSet() map[string]bool {
	set := map[string]bool{
		"Dockerfile":    true,
		"entrypoint.sh": true,
	}
	for _, f := range []string{entryFile, configFile, evolverFile} {
		set[f] = true
		set[filepath.Base(f)] = true
	}
	return set
}

// Config configures an Evolver.
type Config struct {
	// SourceDir is the module root to snapshot source from. Defaults to
	// the current working directory.
	SourceDir string
}
