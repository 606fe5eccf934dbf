package heartbeat

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agenthatchery/cradle/store"
	"github.com/agenthatchery/cradle/task"
)

// drainTasks processes up to maxDrainPerBeat tasks this beat, notifying
// the chat transport on each terminal outcome and spawning a self-healing
// child for any task that failed.
func (s *Scheduler) drainTasks(ctx context.Context) {
	if s.cfg.Engine == nil {
		return
	}
	for i := 0; i < maxDrainPerBeat; i++ {
		if s.cfg.Engine.PendingCount() == 0 {
			return
		}
		t, err := s.cfg.Engine.ProcessNext(ctx)
		if err != nil {
			s.logger.Warn("process next failed", zap.Error(err))
			return
		}
		if t == nil {
			return
		}
		s.reportOutcome(ctx, t)
	}
}

func (s *Scheduler) reportOutcome(ctx context.Context, t *task.Task) {
	switch t.Status {
	case task.StatusCompleted:
		msg := fmt.Sprintf("[%s] %s: completed", t.ID, t.Title)
		if t.Result != "" {
			msg += "\n" + truncate(t.Result, maxNotifyResult)
		}
		s.notify(ctx, msg)
	case task.StatusFailed:
		msg := fmt.Sprintf("[%s] %s: failed", t.ID, t.Title)
		if t.Error != "" {
			msg += "\n" + truncate(t.Error, maxNotifyError)
		}
		s.notify(ctx, msg)
		s.spawnSelfHealing(t)
	}

	if t.Reflection != "" && s.cfg.Memory != nil {
		if err := s.cfg.Memory.StoreReflection(ctx, t.ID, t.Reflection, nil); err != nil {
			s.logger.Warn("failed to store reflection", zap.String("task", t.ID), zap.Error(err))
		}
	}
}

// spawnSelfHealing enqueues a child task asking the agent to diagnose and
// retry a failed task, embedding the original title, a truncated
// description, and a truncated error.
func (s *Scheduler) spawnSelfHealing(t *task.Task) {
	if s.cfg.Engine == nil {
		return
	}
	desc := fmt.Sprintf(
		"The task %q failed. Original description: %s\nError: %s\nDiagnose the cause and retry with a corrected approach.",
		t.Title, truncate(t.Description, maxHealDesc), truncate(t.Error, maxHealError),
	)
	s.cfg.Engine.AddTask("Diagnose and retry: "+t.Title, desc, t.ID, "self-healing")
}

// maybeSeedIdle enqueues the next self-improvement template when the
// queue has been empty long enough that the agent should find its own
// work.
func (s *Scheduler) maybeSeedIdle(ctx context.Context, beat int64) {
	if beat%idleSeedEveryBeats != 0 || beat <= idleSeedAfterBeat {
		return
	}
	if s.cfg.Engine == nil || s.cfg.Engine.PendingCount() > 0 {
		return
	}
	s.mu.Lock()
	idx := s.improvementIdx
	s.improvementIdx++
	s.mu.Unlock()

	tpl := improvementTemplates[int(idx)%len(improvementTemplates)]
	s.cfg.Engine.AddTask(tpl.title, tpl.description, "", "self")
}

// shouldEvolve reports whether beat triggers a self-evolution cycle: once
// at firstEvolutionAtBeat, then every evolutionEveryBeats thereafter.
func shouldEvolve(beat int64) bool {
	if beat < firstEvolutionAtBeat {
		return false
	}
	if beat == firstEvolutionAtBeat {
		return true
	}
	return (beat-firstEvolutionAtBeat)%evolutionEveryBeats == 0
}

func (s *Scheduler) maybeEvolve(ctx context.Context, beat int64) {
	if s.cfg.Evolver == nil || !shouldEvolve(beat) {
		return
	}
	s.logger.Info("triggering self-evolution", zap.Int64("beat", beat))
	summary := s.runEvolveSafely(ctx)

	s.mu.Lock()
	s.evolutionCount++
	s.mu.Unlock()

	s.notify(ctx, "Auto-evolution:\n"+summary)
}

// runEvolveSafely calls the evolver, converting a panic into an error
// summary so one bad evolution cycle never crashes the heartbeat.
func (s *Scheduler) runEvolveSafely(ctx context.Context) (summary string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("evolution cycle panicked", zap.Any("recovered", r))
			summary = "evolution cycle panicked and was recovered"
		}
	}()
	return s.cfg.Evolver.Evolve(ctx)
}

func (s *Scheduler) maybePersistState(ctx context.Context, beat int64) {
	if beat%persistEveryBeats != 0 || s.cfg.State == nil {
		return
	}

	s.mu.Lock()
	snap := store.Snapshot{
		BeatCount:      s.beatCount,
		StartTime:      s.startTime,
		EvolutionCount: s.evolutionCount,
		ImprovementIdx: s.improvementIdx,
		Tasks:          make(map[string]store.TaskSnapshot),
	}
	s.mu.Unlock()

	if s.cfg.Engine != nil {
		for _, t := range s.cfg.Engine.Snapshot() {
			snap.Tasks[t.ID] = store.NewTaskSnapshot(t.Title, string(t.Status), t.Result, t.Error, t.Source)
		}
	}

	if err := s.cfg.State.Save(ctx, snap); err != nil {
		s.logger.Warn("failed to persist state snapshot", zap.Error(err))
	}
}

func (s *Scheduler) maybeRefreshSkills(ctx context.Context, beat int64) {
	if beat%skillRefreshEveryBeat != 0 || s.cfg.Skills == nil {
		return
	}
	if err := s.cfg.Skills.Refresh(ctx); err != nil {
		s.logger.Warn("skill refresh failed", zap.Error(err))
	}
}

// maybeSyncRepo checks, once every repoSyncEveryBeats while the queue is
// idle, whether the default branch has moved ahead of this process's own
// build commit. If it has, it asks the supervisor for a fresh process by
// exiting with code 42.
func (s *Scheduler) maybeSyncRepo(ctx context.Context, beat int64) {
	if beat%repoSyncEveryBeats != 0 {
		return
	}
	if s.cfg.Repo == nil || s.cfg.GitSHA == "" {
		return
	}
	if s.cfg.Engine != nil && s.cfg.Engine.PendingCount() > 0 {
		return
	}

	behind, err := s.cfg.Repo.CommitsBehind(ctx, s.cfg.GitSHA, s.cfg.DefaultBranch)
	if err != nil {
		s.logger.Warn("repo auto-sync compare failed", zap.Error(err))
		return
	}
	if behind <= 0 {
		return
	}

	s.logger.Info("default branch has moved ahead, restarting", zap.Int("commits_behind", behind))
	s.notify(ctx, fmt.Sprintf("Restarting: %d commit(s) behind %s.", behind, s.cfg.DefaultBranch))
	if s.RequestExit != nil {
		s.RequestExit(exitCodeRepoBehind)
	}
}

func (s *Scheduler) maybePushMemory(ctx context.Context, beat int64) {
	if beat%memoryPushEveryBeats != 0 || s.cfg.Memory == nil {
		return
	}

	if err := s.cfg.Memory.SaveCanvas(ctx, masterplanSlug, masterplanDocument); err != nil {
		s.logger.Warn("periodic masterplan push failed", zap.Error(err))
	}
	if err := s.cfg.Memory.UpdatePersona(ctx, defaultPersona); err != nil {
		s.logger.Warn("periodic persona push failed", zap.Error(err))
	}

	s.mu.Lock()
	status := map[string]any{
		"beat_count":      s.beatCount,
		"evolution_count": s.evolutionCount,
	}
	s.mu.Unlock()
	if s.cfg.Engine != nil {
		status["pending_tasks"] = s.cfg.Engine.PendingCount()
		status["total_tasks"] = s.cfg.Engine.TotalCount()
	}
	if err := s.cfg.Memory.Store(ctx, "status", status, []string{"status", "heartbeat"}, "periodic status snapshot", "contextual"); err != nil {
		s.logger.Warn("periodic status push failed", zap.Error(err))
	}
}

func (s *Scheduler) refreshGauges(beat int64) {
	if s.cfg.Metrics == nil {
		return
	}
	s.mu.Lock()
	evolutions := s.evolutionCount
	s.mu.Unlock()

	s.cfg.Metrics.SetBeat(beat)
	s.cfg.Metrics.SetEvolutions(evolutions)
	if s.cfg.Engine != nil {
		s.cfg.Metrics.SetPendingTasks(s.cfg.Engine.PendingCount())
		s.cfg.Metrics.SetTotalTasks(s.cfg.Engine.TotalCount())
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
