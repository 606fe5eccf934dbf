// Package store persists the daemon's runtime state to a local file, with
// an optional write-only redis mirror; startup recovery reads the file.
// The file is the durable source of truth; the redis copy is best-effort.
package store

import "time"

const (
	maxStoredResult = 500
	maxStoredError  = 500
)

// TaskSnapshot is the persisted subset of one task's state.
type TaskSnapshot struct {
	Title  string `json:"title"`
	Status string `json:"status"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Source string `json:"source"`
}

// Snapshot is the full persisted-state shape written on the heartbeat's
// persistence cadence.
type Snapshot struct {
	BeatCount       int64                   `json:"beat_count"`
	StartTime       time.Time               `json:"start_time"`
	EvolutionCount  int64                   `json:"evolution_count"`
	ImprovementIdx  int64                   `json:"improvement_index"`
	Tasks           map[string]TaskSnapshot `json:"tasks"`
}

// truncate caps a string at n bytes, matching the persisted-state size
// limits on task result/error fields.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// NewTaskSnapshot builds a TaskSnapshot with result/error truncated to the
// persisted-state size limits.
func NewTaskSnapshot(title, status, result, errMsg, source string) TaskSnapshot {
	return TaskSnapshot{
		Title:  title,
		Status: status,
		Result: truncate(result, maxStoredResult),
		Error:  truncate(errMsg, maxStoredError),
		Source: source,
	}
}
