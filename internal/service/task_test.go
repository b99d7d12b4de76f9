package service

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/Strob0t/taskcrew/internal/config"
	"github.com/Strob0t/taskcrew/internal/domain"
	"github.com/Strob0t/taskcrew/internal/domain/business"
	"github.com/Strob0t/taskcrew/internal/domain/task"
)

// toReview runs a writer task through one cycle so it lands in review.
func toReview(t *testing.T, f *fixture) *task.Task {
	t.Helper()
	tk := f.enqueue(t, task.TypeWrite, "post", 5)
	if _, err := f.dispatcher.ProcessQueue(context.Background(), f.businessID); err != nil {
		t.Fatal(err)
	}
	return tk
}

func TestTaskServiceReject(t *testing.T) {
	tests := []struct {
		name   string
		reason string
		want   string
	}{
		{"with reason", "tone mismatch", "tone mismatch"},
		{"without reason", "", defaultRejectReason},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, business.AutonomySupervised, config.Orchestrator{})
			tk := toReview(t, f)

			got, err := f.tasks.Reject(context.Background(), tk.ID, tt.reason)
			if err != nil {
				t.Fatalf("Reject: %v", err)
			}
			if got.Status != task.StatusFailed || got.ErrorMessage != tt.want || got.CompletedAt == nil {
				t.Errorf("rejected = %q %q %v", got.Status, got.ErrorMessage, got.CompletedAt)
			}
		})
	}
}

func TestTaskServiceApprovePublish(t *testing.T) {
	f := newFixture(t, business.AutonomySupervised, config.Orchestrator{})
	tk := toReview(t, f)
	ctx := context.Background()

	if _, err := f.tasks.Publish(ctx, tk.ID, nil); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("publish before approval: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := f.tasks.Approve(ctx, tk.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	done, err := f.tasks.Publish(ctx, tk.ID, json.RawMessage(`"https://example.com/p/1"`))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if done.Status != task.StatusCompleted || string(done.Output) != `{"data":"https://example.com/p/1"}` {
		t.Errorf("published = %q %s", done.Status, done.Output)
	}

	want := []task.Status{task.StatusQueued, task.StatusRunning, task.StatusReview, task.StatusApproved, task.StatusCompleted}
	if got := f.recorder.statusesOf(tk.ID); !slices.Equal(got, want) {
		t.Errorf("changes = %v, want %v", got, want)
	}
}

func TestTaskServiceTerminalIsFinal(t *testing.T) {
	f := newFixture(t, business.AutonomySupervised, config.Orchestrator{})
	tk := f.enqueue(t, task.TypeAnalyze, "kpi", 5)
	ctx := context.Background()
	if _, err := f.tasks.Cancel(ctx, tk.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	for name, fn := range map[string]func() error{
		"approve": func() error { _, err := f.tasks.Approve(ctx, tk.ID); return err },
		"reject":  func() error { _, err := f.tasks.Reject(ctx, tk.ID, "x"); return err },
		"cancel":  func() error { _, err := f.tasks.Cancel(ctx, tk.ID); return err },
		"requeue": func() error { _, err := f.tasks.Requeue(ctx, tk.ID); return err },
	} {
		if err := fn(); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("%s: expected ErrInvalidTransition, got %v", name, err)
		}
	}
	if got := f.get(t, tk.ID); got.Status != task.StatusCancelled {
		t.Errorf("status = %q", got.Status)
	}
}

func TestTaskServiceRequeue(t *testing.T) {
	f := newFixture(t, business.AutonomySupervised, config.Orchestrator{})
	tk := toReview(t, f)
	ctx := context.Background()
	if _, err := f.tasks.Reject(ctx, tk.ID, "redo"); err != nil {
		t.Fatal(err)
	}
	got, err := f.tasks.Requeue(ctx, tk.ID)
	if err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	if got.Status != task.StatusQueued || got.ErrorMessage != "" || got.StartedAt != nil {
		t.Errorf("requeued = %+v", got)
	}
}

func TestTaskServiceList(t *testing.T) {
	f := newFixture(t, business.AutonomySupervised, config.Orchestrator{})
	f.enqueue(t, task.TypeWrite, "a", 5)
	f.enqueue(t, task.TypeWrite, "b", 5)
	ctx := context.Background()

	got, err := f.tasks.List(ctx, f.businessID, task.ListFilter{Status: task.StatusQueued, Limit: 1})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}

	if _, err := f.tasks.List(ctx, "missing", task.ListFilter{}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown business: expected ErrNotFound, got %v", err)
	}
	if _, err := f.tasks.List(ctx, f.businessID, task.ListFilter{Status: "stuck"}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("bad status: expected ErrValidation, got %v", err)
	}
}

func TestTaskServiceEnqueueValidation(t *testing.T) {
	f := newFixture(t, business.AutonomySupervised, config.Orchestrator{})
	tests := []struct {
		name string
		req  task.CreateRequest
	}{
		{"unknown type", task.CreateRequest{BusinessID: f.businessID, Type: "juggle", Title: "x"}},
		{"missing title", task.CreateRequest{BusinessID: f.businessID, Type: task.TypeWrite}},
		{"priority too high", task.CreateRequest{BusinessID: f.businessID, Type: task.TypeWrite, Title: "x", Priority: 11}},
		{"input not an object", task.CreateRequest{BusinessID: f.businessID, Type: task.TypeWrite, Title: "x", Input: json.RawMessage(`[1]`)}},
		{"unknown business", task.CreateRequest{BusinessID: "missing", Type: task.TypeWrite, Title: "x"}},
		{"foreign parent", task.CreateRequest{BusinessID: f.businessID, ParentTaskID: "missing", Type: task.TypeWrite, Title: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.tasks.Enqueue(context.Background(), tt.req); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}
