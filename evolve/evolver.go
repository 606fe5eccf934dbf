package evolve

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agenthatchery/cradle/llm"
	"github.com/agenthatchery/cradle/repo"
	"github.com/agenthatchery/cradle/sandbox"
)

// defaultBranch is the branch a proposal is merged into and diffed from.
const defaultBranch = "main"

// sandboxTimeout caps how long a proposal's self-test may run.
const sandboxTimeout = 30 * time.Second

const maxLearnings = 10
const maxPastEvolutions = 5

// MemoryWriter is the narrow slice of the memory port the evolver needs:
// recording a proposal's outcome as a tagged entry. Satisfied by
// memory.Client.
type MemoryWriter interface {
	Store(ctx context.Context, key string, value any, tags []string, description, tier string) error
}

// AuditRecorder is the narrow slice of the audit log the evolver writes
// to on every concluded cycle. Satisfied by audit.Store.
type AuditRecorder interface {
	Record(ctx context.Context, kind, subjectID, status, detail string) error
}

// Evolver is the self-evolution engine: one source snapshot, one LLM
// proposal, an optional sandbox test, and a GitHub branch/push/merge
// cycle per call to Evolve.
type Evolver struct {
	router  *llm.Router
	sandbox *sandbox.Driver
	repo    *repo.Client
	memory  MemoryWriter
	audit   AuditRecorder
	logger  *zap.Logger

	sourceDir string

	mu             sync.Mutex
	count          int64
	learnings      []string
	pastEvolutions []string

	// RequestRestart is invoked after a fully successful evolution cycle
	// instead of calling os.Exit directly, so the process entrypoint owns
	// the actual exit(42) contract with the supervisor.
	RequestRestart func()
}

// New builds an Evolver. memory and audit may be nil, in which case their
// writes are skipped.
func New(cfg Config, router *llm.Router, sbox *sandbox.Driver, repoClient *repo.Client, memory MemoryWriter, audit AuditRecorder, logger *zap.Logger) *Evolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	sourceDir := cfg.SourceDir
	if sourceDir == "" {
		sourceDir = "."
	}
	return &Evolver{
		router:    router,
		sandbox:   sbox,
		repo:      repoClient,
		memory:    memory,
		audit:     audit,
		logger:    logger,
		sourceDir: sourceDir,
	}
}

// RecordLearning appends a learning to the bounded in-process history fed
// back into future proposal prompts. Call after a task's reflection
// surfaces one.
func (e *Evolver) RecordLearning(text string) {
	if text == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.learnings = append(e.learnings, text)
	if len(e.learnings) > maxLearnings {
		e.learnings = e.learnings[len(e.learnings)-maxLearnings:]
	}
}

func (e *Evolver) learningsSummary() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.learnings) == 0 {
		return "None yet"
	}
	lines := make([]string, len(e.learnings))
	for i, l := range e.learnings {
		lines[i] = "- " + l
	}
	return strings.Join(lines, "\n")
}

func (e *Evolver) recordPastEvolution(description string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pastEvolutions = append(e.pastEvolutions, description)
	if len(e.pastEvolutions) > maxPastEvolutions {
		e.pastEvolutions = e.pastEvolutions[len(e.pastEvolutions)-maxPastEvolutions:]
	}
}

func (e *Evolver) pastEvolutionsSummary() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pastEvolutions) == 0 {
		return "None yet"
	}
	lines := make([]string, len(e.pastEvolutions))
	for i, d := range e.pastEvolutions {
		lines[i] = "- " + d
	}
	return strings.Join(lines, "\n")
}

// Evolve runs one evolution cycle and returns a human-readable summary.
// On full success it calls RequestRestart and returns a success summary;
// the caller never sees an in-process restart, only the callback.
func (e *Evolver) Evolve(ctx context.Context) string {
	e.mu.Lock()
	e.count++
	count := e.count
	e.mu.Unlock()

	branchName := fmt.Sprintf("evolve-%d-%d", count, time.Now().Unix())
	e.logger.Info("evolution cycle starting", zap.Int64("count", count), zap.String("branch", branchName))

	sourceFiles, err := readSource(e.sourceDir)
	if err != nil || len(sourceFiles) == 0 {
		e.recordAudit(ctx, "evolution", branchName, "failed", "could not read source files")
		return "evolution failed: could not read source files"
	}

	p, err := e.proposeImprovement(ctx, sourceFiles)
	if err != nil {
		e.logger.Warn("no evolution proposal accepted", zap.Error(err))
		e.recordAudit(ctx, "evolution", branchName, "skipped", err.Error())
		return "no improvement proposed this cycle"
	}

	if p.TestCode != "" {
		if !e.testProposal(ctx, p.TestCode) {
			e.recordMemory(ctx, count, "evolution_failure", map[string]any{
				"description": p.Description,
				"reason":      "test_failed",
			}, []string{"evolution", "failure"}, "contextual")
			e.recordAudit(ctx, "evolution", branchName, "failed", "proposal failed sandbox test: "+p.Description)
			return fmt.Sprintf("proposed changes failed testing: %s", p.Description)
		}
	}

	if e.repo == nil {
		e.recordAudit(ctx, "evolution", branchName, "failed", "no repo client configured")
		return "evolution failed: no repo client configured"
	}

	if err := e.repo.CreateBranch(ctx, branchName, defaultBranch); err != nil {
		e.logger.Error("failed to create evolution branch", zap.Error(err))
		e.recordAudit(ctx, "evolution", branchName, "failed", "could not create branch: "+err.Error())
		return "evolution failed: could not create branch"
	}

	commitMsg := fmt.Sprintf("Evolution #%d: %s", count, p.Description)
	if err := e.repo.PushFiles(ctx, p.Files, branchName, commitMsg); err != nil {
		e.logger.Error("failed to push evolution files", zap.Error(err))
		_ = e.repo.DeleteBranch(ctx, branchName)
		e.recordAudit(ctx, "evolution", branchName, "failed", "could not push files: "+err.Error())
		return "evolution failed: could not push changes"
	}

	if err := e.repo.MergeBranch(ctx, branchName, defaultBranch, commitMsg); err != nil {
		e.logger.Error("failed to merge evolution branch", zap.Error(err))
		_ = e.repo.DeleteBranch(ctx, branchName)
		e.recordAudit(ctx, "evolution", branchName, "failed", "could not merge: "+err.Error())
		return "evolution failed: could not merge branch"
	}

	_ = e.repo.DeleteBranch(ctx, branchName)
	e.recordPastEvolution(p.Description)

	filePaths := make([]string, 0, len(p.Files))
	for path := range p.Files {
		filePaths = append(filePaths, path)
	}
	e.recordMemory(ctx, count, "evolution", map[string]any{
		"description":   p.Description,
		"files_changed": filePaths,
		"branch":        branchName,
	}, []string{"evolution", "success"}, "longterm")
	e.recordAudit(ctx, "evolution", branchName, "succeeded", p.Description)

	e.logger.Info("evolution pushed, requesting restart", zap.Int64("count", count), zap.String("description", p.Description))
	if e.RequestRestart != nil {
		e.RequestRestart()
	}

	return fmt.Sprintf("evolution #%d pushed: %s (files: %s)", count, p.Description, strings.Join(filePaths, ", "))
}

func (e *Evolver) testProposal(ctx context.Context, testCode string) bool {
	if strings.TrimSpace(testCode) == "" {
		return true
	}
	result, err := e.sandbox.RunCode(ctx, testCode, sandboxTimeout, nil, false)
	if err != nil {
		e.logger.Warn("evolution sandbox test errored", zap.Error(err))
		return false
	}
	if result.ExitCode != 0 {
		e.logger.Warn("evolution proposal failed sandbox test", zap.Int("exit_code", result.ExitCode), zap.String("stderr", result.Stderr))
		return false
	}
	return true
}

func (e *Evolver) recordMemory(ctx context.Context, count int64, keyPrefix string, value any, tags []string, tier string) {
	if e.memory == nil {
		return
	}
	key := fmt.Sprintf("%s:%d", keyPrefix, count)
	if err := e.memory.Store(ctx, key, value, tags, "", tier); err != nil {
		e.logger.Warn("failed to store evolution memory", zap.String("key", key), zap.Error(err))
	}
}

func (e *Evolver) recordAudit(ctx context.Context, kind, subjectID, status, detail string) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Record(ctx, kind, subjectID, status, detail); err != nil {
		e.logger.Warn("failed to write audit record", zap.String("subject_id", subjectID), zap.Error(err))
	}
}
