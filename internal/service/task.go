package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/taskcrew/internal/domain"
	"github.com/Strob0t/taskcrew/internal/domain/message"
	"github.com/Strob0t/taskcrew/internal/domain/task"
	"github.com/Strob0t/taskcrew/internal/port/database"
)

// defaultRejectReason is stored when a reviewer gives no reason.
const defaultRejectReason = "rejected by reviewer"

// TaskService handles task intake, reads and the explicit review actions.
// Every committed mutation is announced through the notifiers.
type TaskService struct {
	store   database.Store
	changes *Notifiers
}

// NewTaskService creates a new TaskService.
func NewTaskService(store database.Store, changes *Notifiers) *TaskService {
	return &TaskService{store: store, changes: changes}
}

// Enqueue validates req and stores it as a queued task.
func (s *TaskService) Enqueue(ctx context.Context, req task.CreateRequest) (*task.Task, error) {
	t, err := s.store.Enqueue(ctx, req)
	if err != nil {
		return nil, err
	}
	s.changes.Changed(ctx, t)
	return t, nil
}

// Get returns a task by ID.
func (s *TaskService) Get(ctx context.Context, id string) (*task.Task, error) {
	return s.store.GetTask(ctx, id)
}

// List returns the tasks of a business, newest first.
func (s *TaskService) List(ctx context.Context, businessID string, f task.ListFilter) ([]task.Task, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, f.Status)
	}
	if f.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must be >= 0", domain.ErrValidation)
	}
	if _, err := s.store.GetBusiness(ctx, businessID); err != nil {
		return nil, err
	}
	return s.store.ListTasks(ctx, businessID, f)
}

// Children returns the direct children of a task.
func (s *TaskService) Children(ctx context.Context, id string) ([]task.Task, error) {
	return s.store.ListChildren(ctx, id)
}

// Messages returns the activity log of a task.
func (s *TaskService) Messages(ctx context.Context, id string) ([]message.Message, error) {
	return s.store.ListMessages(ctx, id)
}

// Approve signs off a task in review.
func (s *TaskService) Approve(ctx context.Context, id string) (*task.Task, error) {
	return s.mutate(ctx, func() (*task.Task, error) { return s.store.Approve(ctx, id) })
}

// Reject fails a task in review with the reviewer's reason.
func (s *TaskService) Reject(ctx context.Context, id, reason string) (*task.Task, error) {
	if reason == "" {
		reason = defaultRejectReason
	}
	return s.mutate(ctx, func() (*task.Task, error) { return s.store.Reject(ctx, id, reason) })
}

// Cancel stops a queued, running or review task. A worker call already in
// flight is not interrupted; its result is discarded when it arrives.
func (s *TaskService) Cancel(ctx context.Context, id string) (*task.Task, error) {
	return s.mutate(ctx, func() (*task.Task, error) { return s.store.Cancel(ctx, id) })
}

// Publish completes an approved task, optionally replacing its output.
func (s *TaskService) Publish(ctx context.Context, id string, output json.RawMessage) (*task.Task, error) {
	output = task.WrapOutput(output)
	return s.mutate(ctx, func() (*task.Task, error) { return s.store.MarkPublished(ctx, id, output) })
}

// Requeue puts a failed task back into the queue. Nothing calls this
// automatically.
func (s *TaskService) Requeue(ctx context.Context, id string) (*task.Task, error) {
	return s.mutate(ctx, func() (*task.Task, error) { return s.store.Requeue(ctx, id) })
}

func (s *TaskService) mutate(ctx context.Context, fn func() (*task.Task, error)) (*task.Task, error) {
	t, err := fn()
	if err != nil {
		return nil, err
	}
	s.changes.Changed(ctx, t)
	return t, nil
}
