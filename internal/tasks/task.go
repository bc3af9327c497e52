// Package tasks runs long-running administrative operations asynchronously
// on a bounded worker pool. Submissions return immediately with a task id;
// callers poll for completion.
package tasks

import (
	"context"
	"time"
)

// Status is the lifecycle state of a task
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Task kinds
const (
	KindIndexCreate = "index_create"
	KindIndexDelete = "index_delete"
	KindReindex     = "reindex"
	KindBulkParse   = "bulk_parse"
)

// ProgressFunc reports task progress as a percentage. Progress never moves
// backwards; stale reports are ignored.
type ProgressFunc func(percent int)

// WorkFunc is the body of a task. The returned value becomes the task result
// on success. The context is cancelled when the task's scope is cancelled or
// the manager shuts down.
type WorkFunc func(ctx context.Context, progress ProgressFunc) (interface{}, error)

// Task is a point-in-time snapshot of a task's state
type Task struct {
	ID          string     `json:"task_id"`
	Kind        string     `json:"kind"`
	Scope       string     `json:"scope"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Completed reports whether the task has reached a terminal state
func (t *Task) Completed() bool {
	return t.Status == StatusSuccess || t.Status == StatusFailed
}

// task is the manager's internal mutable record
type task struct {
	Task

	cancel       context.CancelFunc
	cancelReason string
}
