package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orchardops/orchard/internal/errdefs"
	"github.com/orchardops/orchard/internal/logging"
)

// Manager owns the task table and the worker pool. At most one task runs per
// scope at a time; a second submission against a busy scope is rejected with
// a conflict.
type Manager struct {
	mu      sync.Mutex
	tasks   map[string]*task
	byScope map[string]string

	sem        chan struct{}
	retention  time.Duration
	gcInterval time.Duration
	logger     *logging.Logger
	onFinish   func(Task)

	wg     sync.WaitGroup
	stopCh chan struct{}
	gcDone chan struct{}
}

// NewManager creates a task manager with maxWorkers concurrent workers.
// Completed tasks are garbage collected after the retention period.
func NewManager(maxWorkers int, retention, gcInterval time.Duration, logger *logging.Logger) *Manager {
	return &Manager{
		tasks:      make(map[string]*task),
		byScope:    make(map[string]string),
		sem:        make(chan struct{}, maxWorkers),
		retention:  retention,
		gcInterval: gcInterval,
		logger:     logger,
		stopCh:     make(chan struct{}),
		gcDone:     make(chan struct{}),
	}
}

// SetFinishHook registers a callback fired when a task reaches a terminal
// state. Must be called before any task is submitted.
func (m *Manager) SetFinishHook(hook func(Task)) {
	m.onFinish = hook
}

// Start launches the retention garbage collector
func (m *Manager) Start() {
	go m.gcLoop()
}

// Stop cancels running tasks, waits for workers to drain and stops the
// garbage collector
func (m *Manager) Stop() {
	m.mu.Lock()
	for _, t := range m.tasks {
		if t.cancel != nil {
			t.cancelReason = "orchestrator shutting down"
			t.cancel()
		}
	}
	m.mu.Unlock()

	m.wg.Wait()
	close(m.stopCh)
	<-m.gcDone
}

// Submit registers a task and schedules it on the worker pool. It returns
// the task id immediately; the work runs in the background.
func (m *Manager) Submit(kind, scope string, work WorkFunc) (string, error) {
	m.mu.Lock()

	if runningID, busy := m.byScope[scope]; busy {
		m.mu.Unlock()
		return "", errdefs.Conflict("a task (%s) is already running for %s", runningID, scope)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		Task: Task{
			ID:        uuid.NewString(),
			Kind:      kind,
			Scope:     scope,
			Status:    StatusRunning,
			CreatedAt: time.Now().UTC(),
		},
		cancel: cancel,
	}
	m.tasks[t.ID] = t
	m.byScope[scope] = t.ID
	m.mu.Unlock()

	m.logger.Info("Task submitted", "task_id", t.ID, "kind", kind, "scope", scope)

	m.wg.Add(1)
	go m.run(ctx, t, work)

	return t.ID, nil
}

// Get returns a snapshot of a task
func (m *Manager) Get(id string) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return Task{}, errdefs.NotFound("task %s not found", id)
	}
	return t.Task, nil
}

// List returns snapshots of all known tasks
func (m *Manager) List() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.Task)
	}
	return out
}

// Remove deletes a completed task. A running task cannot be removed.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return errdefs.NotFound("task %s not found", id)
	}
	if !t.Completed() {
		return errdefs.Conflict("task %s is still running", id)
	}

	delete(m.tasks, id)
	return nil
}

// CancelScope cancels the running task for a scope, if any, recording the
// given reason as the task error
func (m *Manager) CancelScope(scope, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byScope[scope]
	if !ok {
		return
	}
	t := m.tasks[id]
	if t.cancel != nil {
		t.cancelReason = reason
		t.cancel()
	}
}

func (m *Manager) run(ctx context.Context, t *task, work WorkFunc) {
	defer m.wg.Done()

	// Bound concurrency; a cancelled task never occupies a worker slot
	select {
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
	case <-ctx.Done():
		m.finish(t, "", fmt.Errorf("cancelled before execution"))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Task panicked", "task_id", t.ID, "kind", t.Kind, "panic", r)
			m.finish(t, "", fmt.Errorf("internal error: %v", r))
		}
	}()

	result, err := work(ctx, func(percent int) { m.reportProgress(t, percent) })

	var rendered string
	if err == nil && result != nil {
		data, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			err = fmt.Errorf("failed to encode task result: %w", marshalErr)
		} else {
			rendered = string(data)
		}
	}
	m.finish(t, rendered, err)
}

func (m *Manager) reportProgress(t *task, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if t.Completed() || percent <= t.Progress {
		return
	}
	t.Progress = percent
}

func (m *Manager) finish(t *task, result string, err error) {
	now := time.Now().UTC()

	m.mu.Lock()
	if t.Completed() {
		m.mu.Unlock()
		return
	}

	if err != nil {
		t.Status = StatusFailed
		if t.cancelReason != "" {
			t.Error = t.cancelReason
		} else {
			t.Error = err.Error()
		}
	} else {
		t.Status = StatusSuccess
		t.Progress = 100
		t.Result = result
	}
	t.CompletedAt = &now
	t.cancel = nil

	if m.byScope[t.Scope] == t.ID {
		delete(m.byScope, t.Scope)
	}
	snapshot := t.Task
	m.mu.Unlock()

	m.logger.Info("Task finished",
		"task_id", snapshot.ID, "kind", snapshot.Kind, "scope", snapshot.Scope,
		"status", snapshot.Status, "duration", now.Sub(snapshot.CreatedAt))

	if m.onFinish != nil {
		m.onFinish(snapshot)
	}
}

func (m *Manager) gcLoop() {
	defer close(m.gcDone)

	ticker := time.NewTicker(m.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.collectExpired()
		}
	}
}

func (m *Manager) collectExpired() {
	cutoff := time.Now().UTC().Add(-m.retention)

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, t := range m.tasks {
		if t.Completed() && t.CompletedAt.Before(cutoff) {
			delete(m.tasks, id)
			m.logger.Debug("Expired task collected", "task_id", id, "kind", t.Kind)
		}
	}
}
