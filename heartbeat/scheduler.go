// Package heartbeat implements the scheduler: the single goroutine whose
// periodic beat drives task processing, idle self-seeding, self-evolution,
// state persistence, skill refresh, repo auto-sync, and memory upkeep.
package heartbeat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agenthatchery/cradle/store"
	"github.com/agenthatchery/cradle/task"
)

const (
	maxDrainPerBeat       = 3
	idleSeedEveryBeats    = 20
	idleSeedAfterBeat     = 5
	firstEvolutionAtBeat  = 20
	evolutionEveryBeats   = 50
	persistEveryBeats     = 5
	skillRefreshEveryBeat = 10
	repoSyncEveryBeats    = 20
	memoryPushEveryBeats  = 100
	logEveryBeats         = 5

	maxNotifyResult = 3000
	maxNotifyError  = 1000
	maxHealDesc     = 300
	maxHealError    = 500

	exitCodeRepoBehind = 42

	defaultPersona = "You are Cradle, a self-evolving autonomous agent. Be direct, resourceful, and cautious about irreversible actions."
)

// Engine is the subset of task.Engine the scheduler drives.
type Engine interface {
	PendingCount() int
	TotalCount() int
	ProcessNext(ctx context.Context) (*task.Task, error)
	AddTask(title, description, parentID, source string) *task.Task
	Snapshot() []*task.Task
}

// Evolver triggers one self-evolution cycle and returns a human-readable
// summary, win or lose. Satisfied by *evolve.Evolver.
type Evolver interface {
	Evolve(ctx context.Context) string
}

// SkillRefresher refreshes the skill catalogue against its remote store.
// Satisfied by *skills.Catalog.
type SkillRefresher interface {
	Refresh(ctx context.Context) error
}

// RepoSyncer compares a local commit against a branch tip. Satisfied by
// *repo.Client.
type RepoSyncer interface {
	CommitsBehind(ctx context.Context, base, head string) (int, error)
}

// MemoryPusher is the subset of the Memory Port the scheduler writes to
// directly: canvas documents, persona, reflections, and arbitrary records.
type MemoryPusher interface {
	SaveCanvas(ctx context.Context, slug, content string) error
	UpdatePersona(ctx context.Context, persona string) error
	StoreReflection(ctx context.Context, taskID, reflection string, learnings []string) error
	Store(ctx context.Context, key string, value any, tags []string, description, tier string) error
}

// ChatNotifier sends a best-effort message to the chat transport.
// Satisfied by the telegram bot.
type ChatNotifier interface {
	Notify(ctx context.Context, message string) error
}

// Gauges is the ambient telemetry surface refreshed every beat,
// unconditionally. Satisfied by the metrics package.
type Gauges interface {
	SetBeat(n int64)
	SetPendingTasks(n int)
	SetTotalTasks(n int)
	SetEvolutions(n int64)
}

// StateStore persists and recovers the scheduler's durable snapshot.
// Satisfied by *store.State.
type StateStore interface {
	Save(ctx context.Context, snap store.Snapshot) error
	Load() (store.Snapshot, error)
}

// Config configures a Scheduler. DataDir locates the bootstrap sentinel;
// a zero Interval defaults to 30s. Every collaborator, Engine included, is
// optional and its step is skipped when nil.
type Config struct {
	Interval      time.Duration
	DataDir       string
	DefaultBranch string // e.g. "main"; used by repo auto-sync
	GitSHA        string // this process's own build commit; empty disables auto-sync

	Engine  Engine
	Evolver Evolver
	State   StateStore
	Skills  SkillRefresher
	Repo    RepoSyncer
	Memory  MemoryPusher
	Chat    ChatNotifier
	Metrics Gauges
	Logger  *zap.Logger
}

// Scheduler is the heartbeat: one ticking goroutine driving every
// periodic subsystem.
type Scheduler struct {
	cfg Config

	mu             sync.Mutex
	beatCount      int64
	evolutionCount int64
	improvementIdx int64
	startTime      time.Time

	stopOnce sync.Once
	stopCh   chan struct{}

	logger *zap.Logger

	// RequestExit is invoked with the exit code the process should
	// terminate with (always 42 today, for repo auto-sync). nil means
	// the scheduler only logs and continues — used in tests.
	RequestExit func(code int)
}

// New builds a Scheduler. cfg.Interval defaults to 30s when zero.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.DefaultBranch == "" {
		cfg.DefaultBranch = "main"
	}
	return &Scheduler{
		cfg:    cfg,
		stopCh: make(chan struct{}),
		logger: logger,
	}
}

// Status returns a human-readable summary of uptime, beat count, pending
// and total task counts, and evolution count.
func (s *Scheduler) Status() string {
	s.mu.Lock()
	beats := s.beatCount
	evolutions := s.evolutionCount
	started := s.startTime
	s.mu.Unlock()

	uptime := time.Duration(0)
	if !started.IsZero() {
		uptime = time.Since(started)
	}
	pending, total := 0, 0
	if s.cfg.Engine != nil {
		pending = s.cfg.Engine.PendingCount()
		total = s.cfg.Engine.TotalCount()
	}
	return fmt.Sprintf(
		"Cradle status\nUptime: %s\nBeats: %d\nPending tasks: %d\nTotal tasks: %d\nEvolutions: %d",
		uptime.Round(time.Second), beats, pending, total, evolutions,
	)
}

// Start runs the heartbeat loop until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.startTime = time.Now()
	s.mu.Unlock()

	if err := s.recoverState(); err != nil {
		s.logger.Warn("failed to recover prior state snapshot", zap.Error(err))
	}

	s.bootstrap(ctx)
	s.notify(ctx, fmt.Sprintf("Cradle online. Heartbeat every %s. Send /status for info, or send a task.", s.cfg.Interval))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.runBeat(ctx)
		}
	}
}

// Stop ends the heartbeat loop. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// recoverState restores the monotonic counters from the last persisted
// snapshot, if any. The task queue itself is not re-hydrated — tasks are
// not resumable across a process restart, only the counters are.
func (s *Scheduler) recoverState() error {
	if s.cfg.State == nil {
		return nil
	}
	snap, err := s.cfg.State.Load()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.beatCount = snap.BeatCount
	s.evolutionCount = snap.EvolutionCount
	s.improvementIdx = snap.ImprovementIdx
	s.mu.Unlock()
	return nil
}

// bootstrap seeds the masterplan and initial tasks exactly once, across
// any number of restarts, guarded by a sentinel file in the data dir.
func (s *Scheduler) bootstrap(ctx context.Context) {
	if store.IsBootstrapped(s.cfg.DataDir) {
		return
	}
	s.logger.Info("first boot, running bootstrap")

	if s.cfg.Memory != nil {
		if err := s.cfg.Memory.SaveCanvas(ctx, masterplanSlug, masterplanDocument); err != nil {
			s.logger.Warn("failed to store masterplan on bootstrap", zap.Error(err))
		}
	}
	if s.cfg.Engine != nil {
		for _, bt := range bootstrapTasks {
			s.cfg.Engine.AddTask(bt.title, bt.description, "", "bootstrap")
		}
	}
	if err := store.MarkBootstrapped(s.cfg.DataDir); err != nil {
		s.logger.Warn("failed to write bootstrap sentinel", zap.Error(err))
	}
}

// runBeat advances beatCount and runs one beat's work, recovering from a
// panic so a single bad beat never takes down the loop.
func (s *Scheduler) runBeat(ctx context.Context) {
	s.mu.Lock()
	s.beatCount++
	beat := s.beatCount
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("beat panicked, recovering", zap.Any("recovered", r), zap.Int64("beat", beat))
		}
	}()

	s.drainTasks(ctx)
	s.maybeSeedIdle(ctx, beat)
	s.maybeEvolve(ctx, beat)
	s.maybePersistState(ctx, beat)
	s.maybeRefreshSkills(ctx, beat)
	s.maybeSyncRepo(ctx, beat)
	s.maybePushMemory(ctx, beat)
	s.refreshGauges(beat)

	if beat%logEveryBeats == 0 {
		s.mu.Lock()
		uptime := time.Since(s.startTime).Round(time.Second)
		evolutions := s.evolutionCount
		s.mu.Unlock()
		pending, total := 0, 0
		if s.cfg.Engine != nil {
			pending = s.cfg.Engine.PendingCount()
			total = s.cfg.Engine.TotalCount()
		}
		s.logger.Info("heartbeat",
			zap.Int64("beat", beat), zap.Duration("uptime", uptime),
			zap.Int("pending", pending), zap.Int("total", total),
			zap.Int64("evolutions", evolutions))
	}
}

func (s *Scheduler) notify(ctx context.Context, message string) {
	if s.cfg.Chat == nil {
		return
	}
	if err := s.cfg.Chat.Notify(ctx, message); err != nil {
		s.logger.Warn("chat notify failed", zap.Error(err))
	}
}
