// Package service contains application services.
package service

import (
	"context"
	"log/slog"

	"github.com/Strob0t/taskcrew/internal/domain/task"
	"github.com/Strob0t/taskcrew/internal/port/notifier"
)

// Notifiers fans a change out to every registered sink.
type Notifiers struct {
	sinks []notifier.Notifier
	log   *slog.Logger
}

// NewNotifiers creates a fan-out over sinks. Nil sinks are skipped.
func NewNotifiers(log *slog.Logger, sinks ...notifier.Notifier) *Notifiers {
	if log == nil {
		log = slog.Default()
	}
	n := &Notifiers{log: log}
	for _, s := range sinks {
		if s != nil {
			n.sinks = append(n.sinks, s)
		}
	}
	return n
}

// Add registers another sink.
func (n *Notifiers) Add(s notifier.Notifier) {
	n.sinks = append(n.sinks, s)
}

func (n *Notifiers) Name() string { return "fanout" }

// Notify delivers c to every sink. Errors are logged but do not interrupt
// delivery to other sinks, and never reach the caller.
func (n *Notifiers) Notify(ctx context.Context, c notifier.Change) error {
	for _, s := range n.sinks {
		if err := s.Notify(ctx, c); err != nil {
			n.log.Warn("change notification failed",
				"notifier", s.Name(),
				"task_id", c.TaskID,
				"business_id", c.BusinessID,
				"status", c.NewStatus,
				"error", err,
			)
		}
	}
	return nil
}

// Changed announces the current state of t.
func (n *Notifiers) Changed(ctx context.Context, t *task.Task) {
	if n == nil || t == nil {
		return
	}
	_ = n.Notify(ctx, notifier.ChangeOf(t))
}

// Count returns the number of registered sinks.
func (n *Notifiers) Count() int {
	return len(n.sinks)
}

var _ notifier.Notifier = (*Notifiers)(nil)
