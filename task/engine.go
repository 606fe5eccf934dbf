package task

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/agenthatchery/cradle/llm"
	"github.com/agenthatchery/cradle/metrics"
	"github.com/agenthatchery/cradle/sandbox"
)

// SkillPort is the subset of the Skill Port the task engine needs: a short
// summary for every prompt, and full content for skills relevant to one
// task.
type SkillPort interface {
	Summary() string
	Relevant(title, description string) string
}

// MemoryPort is the subset of the Memory Port the task engine needs: it
// records a successful task's outcome for future recall.
type MemoryPort interface {
	Store(ctx context.Context, key string, value any, tags []string, description string, tier string) error
}

// TaskMetrics receives one observation per task reaching a terminal status.
// Satisfied structurally by metrics.Collector.
type TaskMetrics interface {
	ObserveTaskOutcome(status string, elapsed time.Duration)
}

type noopTaskMetrics struct{}

func (noopTaskMetrics) ObserveTaskOutcome(string, time.Duration) {}

// selfUpdateMarker is printed by agent-generated code after it pushes a
// change to its own repository, signaling the process should restart.
const selfUpdateMarker = "SELF_UPDATE_PUSHED"

// Engine manages the task tree and advances one task at a time through the
// ReAct loop.
type Engine struct {
	mu    sync.Mutex
	tasks map[string]*Task
	queue []string

	llm     *llm.Router
	sandbox *sandbox.Driver
	skills  SkillPort
	memory  MemoryPort
	logger  *zap.Logger
	metrics TaskMetrics

	githubOrg, githubRepo string

	// DynamicPersona overrides the hardcoded system-prompt persona when set
	// (sourced from the Memory Port at startup).
	DynamicPersona string

	// RequestRestart is invoked when generated code signals it pushed a
	// self-update. nil means restart is not wired (e.g. in tests).
	RequestRestart func()
}

// Config configures a new Engine.
type Config struct {
	LLM        *llm.Router
	Sandbox    *sandbox.Driver
	Skills     SkillPort
	Memory     MemoryPort
	Metrics    TaskMetrics
	Logger     *zap.Logger
	GitHubOrg  string
	GitHubRepo string
}

// New builds a task Engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	taskMetrics := cfg.Metrics
	if taskMetrics == nil {
		taskMetrics = noopTaskMetrics{}
	}
	return &Engine{
		tasks:      make(map[string]*Task),
		llm:        cfg.LLM,
		sandbox:    cfg.Sandbox,
		skills:     cfg.Skills,
		memory:     cfg.Memory,
		metrics:    taskMetrics,
		logger:     logger,
		githubOrg:  cfg.GitHubOrg,
		githubRepo: cfg.GitHubRepo,
	}
}

// AddTask creates, stores, and enqueues a new task.
func (e *Engine) AddTask(title, description, parentID, source string) *Task {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := newTask(title, description, parentID, source)
	e.tasks[t.ID] = t
	if parentID != "" {
		if parent, ok := e.tasks[parentID]; ok {
			parent.Children = append(parent.Children, t.ID)
		}
	}
	e.queue = append(e.queue, t.ID)
	e.logger.Info("task added", zap.String("id", t.ID), zap.String("title", title))
	return t
}

// PendingCount returns the number of tasks waiting in the queue.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Get returns a task by id.
func (e *Engine) Get(id string) (*Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tasks[id]
	return t, ok
}

// TotalCount returns the number of tasks the engine has ever created,
// regardless of status.
func (e *Engine) TotalCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

// Snapshot returns a shallow copy of every known task, for state
// persistence and status reporting. Mutating the returned tasks does not
// affect the engine's own state.
func (e *Engine) Snapshot() []*Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Task, 0, len(e.tasks))
	for _, t := range e.tasks {
		cp := *t
		out = append(out, &cp)
	}
	return out
}

func (e *Engine) dequeue() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return "", false
	}
	id := e.queue[0]
	e.queue = e.queue[1:]
	return id, true
}

func (e *Engine) requeue(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = append(e.queue, id)
}

// ProcessNext pops the next queued task, if any, and advances it through
// one ReAct cycle. Returns nil, nil when the queue is empty.
func (e *Engine) ProcessNext(ctx context.Context) (*Task, error) {
	id, ok := e.dequeue()
	if !ok {
		return nil, nil
	}

	e.mu.Lock()
	t, ok := e.tasks[id]
	e.mu.Unlock()
	if !ok {
		return nil, nil
	}

	return e.reactLoop(ctx, t)
}

func (e *Engine) reactLoop(ctx context.Context, t *Task) (*Task, error) {
	t.Attempts++
	e.logger.Info("react loop", zap.String("id", t.ID), zap.Int("attempt", t.Attempts), zap.String("title", t.Title))

	var span trace.Span
	ctx, span = metrics.StartReactSpan(ctx, t.ID, t.Attempts)
	defer span.End()

	t.Status = StatusThinking
	p, err := e.think(ctx, t)
	if err != nil {
		t.Status = StatusFailed
		t.Error = err.Error()
		e.metrics.ObserveTaskOutcome(string(t.Status), time.Since(t.CreatedAt))
		return t, nil
	}

	switch p.Type {
	case "direct_answer":
		t.Result = p.Answer
		t.Status = StatusCompleted
		t.CompletedAt = time.Now()
		e.metrics.ObserveTaskOutcome(string(t.Status), t.CompletedAt.Sub(t.CreatedAt))
		return t, nil

	case "decompose":
		for _, sub := range p.Subtasks {
			e.AddTask(sub.Title, sub.Description, t.ID, "self")
		}
		t.Status = StatusBlocked
		return t, nil
	}

	t.Status = StatusActing
	code := p.Code
	language := p.Language
	if language == "" {
		language = "python"
	}
	if code == "" {
		t.Error = "think phase produced no code"
		t.Status = StatusFailed
		e.metrics.ObserveTaskOutcome(string(t.Status), time.Since(t.CreatedAt))
		return t, nil
	}

	if language == "python" && e.skills != nil {
		if impl := e.skills.Relevant(t.Title, t.Description); impl != "" {
			code = impl + "\n\n# --- generated code below ---\n" + code
		}
	}

	t.Status = StatusExecuting
	var result *sandbox.Result
	if language == "python" {
		result, err = e.sandbox.RunCode(ctx, code, 60*time.Second, p.Packages, p.NeedsNetwork)
	} else {
		result, err = e.sandbox.RunShell(ctx, code, "", 60*time.Second, p.NeedsNetwork)
	}
	if err != nil {
		t.Status = StatusFailed
		t.Error = err.Error()
		e.metrics.ObserveTaskOutcome(string(t.Status), time.Since(t.CreatedAt))
		return t, nil
	}

	t.Status = StatusReflecting
	refl := e.reflect(ctx, t, code, result)
	t.Reflection = refl.Reflection

	success := result.ExitCode == 0
	if success {
		t.Result = firstNonEmpty(result.Stdout, refl.Summary, "task completed")
		t.Status = StatusCompleted
		t.CompletedAt = time.Now()
		e.metrics.ObserveTaskOutcome(string(t.Status), t.CompletedAt.Sub(t.CreatedAt))
		e.logger.Info("task completed", zap.String("id", t.ID))

		if strings.Contains(result.Stdout, selfUpdateMarker) {
			e.logger.Info("self-update detected, requesting restart", zap.String("id", t.ID))
			if e.RequestRestart != nil {
				e.RequestRestart()
			}
		}

		if e.memory != nil {
			summary := t.Result
			if len(summary) > 2000 {
				summary = summary[:2000]
			}
			_ = e.memory.Store(ctx, fmt.Sprintf("task_result:%s", t.ID),
				map[string]string{"title": t.Title, "result": summary},
				[]string{"task", "success", t.Source}, "completed: "+t.Title, "contextual")
		}
	} else {
		t.Error = firstNonEmpty(result.Stderr, "unknown error")
		if t.Attempts < t.MaxAttempts && refl.ShouldRetry {
			e.logger.Info("task failed, retrying", zap.String("id", t.ID))
			e.requeue(t.ID)
			t.Status = StatusPending
		} else {
			t.Status = StatusFailed
			e.metrics.ObserveTaskOutcome(string(t.Status), time.Since(t.CreatedAt))
			e.logger.Warn("task failed permanently", zap.String("id", t.ID), zap.String("error", t.Error))
		}
	}

	return t, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
