package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/orchardops/orchard/internal/errdefs"
	"github.com/orchardops/orchard/internal/models"
	"github.com/orchardops/orchard/internal/tasks"
)

// TaskService implements the async task API
type TaskService struct {
	manager *tasks.Manager
	runner  *tasks.Runner
}

// NewTaskService creates a task service
func NewTaskService(manager *tasks.Manager, runner *tasks.Runner) *TaskService {
	return &TaskService{manager: manager, runner: runner}
}

// Submit validates a task request and schedules it. The response carries only
// the task id; callers poll Get for completion.
func (s *TaskService) Submit(ctx context.Context, req *models.SubmitTaskRequest) (*models.TaskSubmitResponse, error) {
	if req.Kind == "" {
		return nil, errdefs.Validation("task kind is required")
	}
	if req.Node == "" {
		return nil, errdefs.Validation("task node is required")
	}

	work, err := s.runner.Build(ctx, req.Kind, req.Node, req.Params)
	if err != nil {
		return nil, err
	}

	id, err := s.manager.Submit(req.Kind, req.Node, work)
	if err != nil {
		return nil, err
	}
	return &models.TaskSubmitResponse{TaskID: id}, nil
}

// Get returns the status of a task
func (s *TaskService) Get(id string) (*models.TaskStatusResponse, error) {
	task, err := s.manager.Get(id)
	if err != nil {
		return nil, err
	}
	return toStatusResponse(task), nil
}

// List returns the status of every known task
func (s *TaskService) List() []*models.TaskStatusResponse {
	all := s.manager.List()
	out := make([]*models.TaskStatusResponse, 0, len(all))
	for _, task := range all {
		out = append(out, toStatusResponse(task))
	}
	return out
}

// Remove deletes a completed task record
func (s *TaskService) Remove(id string) error {
	return s.manager.Remove(id)
}

func toStatusResponse(task tasks.Task) *models.TaskStatusResponse {
	resp := &models.TaskStatusResponse{
		TaskID:    task.ID,
		Kind:      task.Kind,
		Completed: task.Completed(),
		Status:    string(task.Status),
		Progress:  task.Progress,
		Error:     task.Error,
		CreatedAt: task.CreatedAt.Format(time.RFC3339),
	}
	if task.CompletedAt != nil {
		resp.CompletedAt = task.CompletedAt.Format(time.RFC3339)
	}
	if task.Result != "" {
		var result interface{}
		if err := json.Unmarshal([]byte(task.Result), &result); err == nil {
			resp.Result = result
		} else {
			resp.Result = task.Result
		}
	}
	return resp
}
