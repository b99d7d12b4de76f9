// Package notifier defines the task change notification port (interface).
package notifier

import (
	"context"
	"time"

	"github.com/Strob0t/taskcrew/internal/domain/task"
)

// Change describes one committed status mutation.
type Change struct {
	TaskID     string      `json:"task_id"`
	BusinessID string      `json:"business_id"`
	NewStatus  task.Status `json:"new_status"`
	At         time.Time   `json:"at"`
}

// ChangeOf builds the change record for a freshly mutated task.
func ChangeOf(t *task.Task) Change {
	return Change{TaskID: t.ID, BusinessID: t.BusinessID, NewStatus: t.Status, At: t.UpdatedAt}
}

// Notifier is the port interface for announcing task changes.
// Delivery is best-effort: callers log a returned error and carry on.
type Notifier interface {
	// Name returns the unique identifier for this notifier (e.g. "nats", "ws").
	Name() string

	// Notify announces a change.
	Notify(ctx context.Context, c Change) error
}
