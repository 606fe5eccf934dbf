// Package task implements the hierarchical task engine: a FIFO work queue
// and a ReAct loop (Think -> Act -> Execute -> Reflect) that turns a task
// title into sandboxed code, and the code's result into either completion,
// a retry, or further decomposition.
package task

import (
	"time"

	"github.com/google/uuid"
)

// Status is a task's position in the ReAct lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusThinking   Status = "thinking"
	StatusActing     Status = "acting"
	StatusExecuting  Status = "executing"
	StatusReflecting Status = "reflecting"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusBlocked    Status = "blocked"
)

// Task is one node in the hierarchical task tree (root -> subtask -> leaf).
type Task struct {
	ID          string
	Title       string
	Description string
	Status      Status
	ParentID    string
	Children    []string
	Result      string
	Error       string
	Attempts    int
	MaxAttempts int
	CreatedAt   time.Time
	CompletedAt time.Time
	Reflection  string
	Source      string // "user", "self", "self-healing", or "bootstrap"
}

func newTask(title, description, parentID, source string) *Task {
	if description == "" {
		description = title
	}
	return &Task{
		ID:          uuid.NewString()[:8],
		Title:       title,
		Description: description,
		Status:      StatusPending,
		ParentID:    parentID,
		MaxAttempts: 3,
		CreatedAt:   time.Now(),
		Source:      source,
	}
}
