package task

import (
	"fmt"
	"sort"
	"strings"
)

var statusIcons = map[Status]string{
	StatusPending:    "PENDING",
	StatusThinking:   "THINKING",
	StatusActing:     "ACTING",
	StatusExecuting:  "EXECUTING",
	StatusReflecting: "REFLECTING",
	StatusCompleted:  "DONE",
	StatusFailed:     "FAILED",
	StatusBlocked:    "BLOCKED",
}

// StatusSummary returns a human-readable listing of the ten most recently
// created tasks, for chat-transport status replies.
func (e *Engine) StatusSummary() string {
	e.mu.Lock()
	tasks := make([]*Task, 0, len(e.tasks))
	for _, t := range e.tasks {
		tasks = append(tasks, t)
	}
	e.mu.Unlock()

	if len(tasks) == 0 {
		return "No tasks."
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })
	if len(tasks) > 10 {
		tasks = tasks[:10]
	}

	var sb strings.Builder
	sb.WriteString("Task status:\n")
	for _, t := range tasks {
		icon := statusIcons[t.Status]
		if icon == "" {
			icon = "UNKNOWN"
		}
		sb.WriteString(fmt.Sprintf("  [%s] %s (%s)\n", t.ID, t.Title, icon))
	}
	return sb.String()
}
