package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/taskcrew/internal/domain/task"
	"github.com/Strob0t/taskcrew/internal/port/messagequeue"
	"github.com/Strob0t/taskcrew/internal/port/notifier"
)

// Notifier publishes task changes on tasks.changed.{business_id}.
type Notifier struct {
	q messagequeue.Queue
}

// NewNotifier creates a Notifier publishing through q.
func NewNotifier(q messagequeue.Queue) *Notifier {
	return &Notifier{q: q}
}

// Name implements notifier.Notifier.
func (n *Notifier) Name() string { return "nats" }

// Notify implements notifier.Notifier.
func (n *Notifier) Notify(ctx context.Context, c notifier.Change) error {
	data, err := json.Marshal(messagequeue.TaskChangedPayload{
		TaskID:     c.TaskID,
		BusinessID: c.BusinessID,
		NewStatus:  string(c.NewStatus),
		At:         c.At,
	})
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	return n.q.Publish(ctx, messagequeue.TaskChangedSubject(c.BusinessID), data)
}

// Relay subscribes to the change events of every business and hands each to
// sink. It lets one process serve changes committed by another, such as a
// dispatch cycle run from the CLI. The returned function stops the relay.
func Relay(ctx context.Context, q messagequeue.Queue, sink notifier.Notifier) (func(), error) {
	return q.Subscribe(ctx, messagequeue.SubjectTaskChanged+".>", func(ctx context.Context, _ string, data []byte) error {
		var p messagequeue.TaskChangedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode change: %w", err)
		}
		return sink.Notify(ctx, notifier.Change{
			TaskID:     p.TaskID,
			BusinessID: p.BusinessID,
			NewStatus:  task.Status(p.NewStatus),
			At:         p.At,
		})
	})
}
