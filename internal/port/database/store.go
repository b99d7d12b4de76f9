// Package database defines the task store port (interface).
package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Strob0t/taskcrew/internal/domain/business"
	"github.com/Strob0t/taskcrew/internal/domain/message"
	"github.com/Strob0t/taskcrew/internal/domain/task"
)

// Store is the port interface for durable task state.
//
// Every status change is a conditional update guarded by the statuses the
// lifecycle allows as its source. A guard mismatch returns an error wrapping
// domain.ErrInvalidTransition and leaves the record unchanged. Unknown ids
// return domain.ErrNotFound; backend failures wrap domain.ErrPersistence.
// Multi-row reads are always scoped to one business.
type Store interface {
	// Businesses
	CreateBusiness(ctx context.Context, req business.CreateRequest) (*business.Business, error)
	GetBusiness(ctx context.Context, id string) (*business.Business, error)
	ListBusinesses(ctx context.Context) ([]business.Business, error)
	UpdateAutonomy(ctx context.Context, id string, level business.Autonomy) (*business.Business, error)

	// Tasks
	Enqueue(ctx context.Context, req task.CreateRequest) (*task.Task, error)
	GetTask(ctx context.Context, id string) (*task.Task, error)
	ListTasks(ctx context.Context, businessID string, f task.ListFilter) ([]task.Task, error)
	ListChildren(ctx context.Context, parentID string) ([]task.Task, error)

	// ClaimBatch atomically moves up to limit queued tasks of the business to
	// running and returns exactly the tasks it claimed, ordered by priority
	// descending then created_at ascending.
	ClaimBatch(ctx context.Context, businessID string, limit int) ([]task.Task, error)
	// Claim moves one queued task to running.
	Claim(ctx context.Context, id string) (*task.Task, error)

	// RecordOutcome is valid only while the task is running.
	RecordOutcome(ctx context.Context, id string, o task.Outcome) (*task.Task, error)
	Approve(ctx context.Context, id string) (*task.Task, error)
	Reject(ctx context.Context, id, reason string) (*task.Task, error)
	Cancel(ctx context.Context, id string) (*task.Task, error)
	// MarkPublished completes an approved task. A nil output keeps the stored one.
	MarkPublished(ctx context.Context, id string, output json.RawMessage) (*task.Task, error)
	// Requeue is the administrative failed -> queued edge.
	Requeue(ctx context.Context, id string) (*task.Task, error)

	// QueueStatus counts live tasks; by_role covers queued, running and review
	// tasks with an explicit assignment.
	QueueStatus(ctx context.Context, businessID string) (task.QueueStatus, error)
	// RoleActivity aggregates running tasks and terminal tasks finished at or
	// after since, keyed by the role each task routes to.
	RoleActivity(ctx context.Context, businessID string, since time.Time) ([]task.RoleActivity, error)

	// Message log
	AppendMessage(ctx context.Context, m message.Message) error
	ListMessages(ctx context.Context, taskID string) ([]message.Message, error)
}
