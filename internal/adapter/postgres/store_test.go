package postgres_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/taskcrew/internal/adapter/postgres"
	"github.com/Strob0t/taskcrew/internal/domain"
	"github.com/Strob0t/taskcrew/internal/domain/agent"
	"github.com/Strob0t/taskcrew/internal/domain/business"
	"github.com/Strob0t/taskcrew/internal/domain/message"
	"github.com/Strob0t/taskcrew/internal/domain/task"
)

// setupStore creates a pgxpool connection, runs all migrations, and returns a
// ready-to-use Store. The pool is closed via t.Cleanup.
func setupStore(t *testing.T) *postgres.Store {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()

	// Run goose migrations first (uses embedded SQL files).
	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return postgres.NewStore(pool)
}

// createBusiness registers a business with a random name so tests never share queues.
func createBusiness(t *testing.T, s *postgres.Store, level business.Autonomy) string {
	t.Helper()
	b, err := s.CreateBusiness(context.Background(), business.CreateRequest{
		Name:     "test-" + uuid.NewString()[:8],
		Autonomy: level,
	})
	if err != nil {
		t.Fatalf("create business: %v", err)
	}
	return b.ID
}

func enqueue(t *testing.T, s *postgres.Store, req task.CreateRequest) *task.Task {
	t.Helper()
	tk, err := s.Enqueue(context.Background(), req)
	if err != nil {
		t.Fatalf("enqueue %q: %v", req.Title, err)
	}
	return tk
}

func TestStore_EnqueueDefaults(t *testing.T) {
	s := setupStore(t)
	bid := createBusiness(t, s, business.AutonomySupervised)

	tk := enqueue(t, s, task.CreateRequest{BusinessID: bid, Type: "content", Title: "post"})
	if tk.Type != task.TypeWrite {
		t.Errorf("type = %q, want write", tk.Type)
	}
	if tk.Priority != task.DefaultPriority || tk.Status != task.StatusQueued {
		t.Errorf("got priority %d status %q", tk.Priority, tk.Status)
	}
	if tk.CreatedBy != agent.CreatorHuman {
		t.Errorf("created_by = %q", tk.CreatedBy)
	}
	if string(tk.Input) != "{}" {
		t.Errorf("input = %s, want {}", tk.Input)
	}
	if tk.StartedAt != nil || tk.CompletedAt != nil {
		t.Error("fresh task must not carry timestamps")
	}
}

func TestStore_EnqueueRejectsForeignParent(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	a := createBusiness(t, s, business.AutonomySupervised)
	b := createBusiness(t, s, business.AutonomySupervised)
	parent := enqueue(t, s, task.CreateRequest{BusinessID: a, Type: task.TypeStrategy, Title: "plan"})

	_, err := s.Enqueue(ctx, task.CreateRequest{
		BusinessID: b, ParentTaskID: parent.ID, Type: task.TypeWrite, Title: "child",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	_, err = s.Enqueue(ctx, task.CreateRequest{BusinessID: uuid.NewString(), Type: task.TypeWrite, Title: "x"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("unknown business: expected ErrValidation, got %v", err)
	}
}

func TestStore_ClaimBatchOrder(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	bid := createBusiness(t, s, business.AutonomySupervised)

	t1 := enqueue(t, s, task.CreateRequest{BusinessID: bid, Type: task.TypeWrite, Title: "t1", Priority: 5})
	t2 := enqueue(t, s, task.CreateRequest{BusinessID: bid, Type: task.TypeWrite, Title: "t2", Priority: 9})
	t3 := enqueue(t, s, task.CreateRequest{BusinessID: bid, Type: task.TypeWrite, Title: "t3", Priority: 5})

	claimed, err := s.ClaimBatch(ctx, bid, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	want := []string{t2.ID, t1.ID, t3.ID}
	if len(claimed) != len(want) {
		t.Fatalf("claimed %d tasks, want %d", len(claimed), len(want))
	}
	for i, tk := range claimed {
		if tk.ID != want[i] {
			t.Errorf("position %d: got %s, want %s", i, tk.Title, want[i])
		}
		if tk.Status != task.StatusRunning || tk.StartedAt == nil {
			t.Errorf("%s: status %q started_at %v", tk.Title, tk.Status, tk.StartedAt)
		}
	}

	again, err := s.ClaimBatch(ctx, bid, 10)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second claim returned %d tasks", len(again))
	}
}

func TestStore_ConcurrentClaimsAreDisjoint(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	bid := createBusiness(t, s, business.AutonomySupervised)

	const total = 60
	for i := range total {
		enqueue(t, s, task.CreateRequest{BusinessID: bid, Type: task.TypeWrite, Title: "t", Priority: 1 + i%10})
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch, err := s.ClaimBatch(ctx, bid, 4)
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if len(batch) == 0 {
					return
				}
				mu.Lock()
				for _, tk := range batch {
					seen[tk.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != total {
		t.Fatalf("claimed %d distinct tasks, want %d", len(seen), total)
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("task %s claimed %d times", id, n)
		}
	}
}

func TestStore_OutcomeRoundTrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	bid := createBusiness(t, s, business.AutonomySupervised)
	tk := enqueue(t, s, task.CreateRequest{BusinessID: bid, Type: task.TypeWrite, Title: "post"})

	if _, err := s.Claim(ctx, tk.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	out := json.RawMessage(`{"draft":"hello"}`)
	got, err := s.RecordOutcome(ctx, tk.ID, task.NeedsReview(out))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if got.Status != task.StatusReview || got.CompletedAt != nil {
		t.Fatalf("review task: status %q completed_at %v", got.Status, got.CompletedAt)
	}

	if _, err := s.Approve(ctx, tk.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	done, err := s.MarkPublished(ctx, tk.ID, nil)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if done.Status != task.StatusCompleted || done.CompletedAt == nil {
		t.Fatalf("published task: status %q completed_at %v", done.Status, done.CompletedAt)
	}

	var payload map[string]string
	if err := json.Unmarshal(done.Output, &payload); err != nil || payload["draft"] != "hello" {
		t.Errorf("output not kept: %s (%v)", done.Output, err)
	}
}

func TestStore_TerminalIsImmutable(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	bid := createBusiness(t, s, business.AutonomySupervised)
	tk := enqueue(t, s, task.CreateRequest{BusinessID: bid, Type: task.TypeWrite, Title: "post"})

	if _, err := s.Claim(ctx, tk.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := s.RecordOutcome(ctx, tk.ID, task.Completed(nil)); err != nil {
		t.Fatalf("complete: %v", err)
	}

	_, err := s.RecordOutcome(ctx, tk.ID, task.Failed("late"))
	var te *task.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if te.Current != task.StatusCompleted {
		t.Errorf("current = %q", te.Current)
	}
	if _, err := s.Cancel(ctx, tk.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("cancel completed: expected ErrInvalidTransition, got %v", err)
	}

	if _, err := s.Approve(ctx, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown id: expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetTask(ctx, "not-a-uuid"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("malformed id: expected ErrNotFound, got %v", err)
	}
}

func TestStore_RejectAndRequeue(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	bid := createBusiness(t, s, business.AutonomySupervised)
	tk := enqueue(t, s, task.CreateRequest{BusinessID: bid, Type: task.TypeWrite, Title: "post"})

	if _, err := s.Claim(ctx, tk.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := s.RecordOutcome(ctx, tk.ID, task.NeedsReview(json.RawMessage(`{"x":1}`))); err != nil {
		t.Fatalf("review: %v", err)
	}
	rejected, err := s.Reject(ctx, tk.ID, "tone mismatch")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != task.StatusFailed || rejected.ErrorMessage != "tone mismatch" || rejected.CompletedAt == nil {
		t.Fatalf("rejected: %+v", rejected)
	}

	requeued, err := s.Requeue(ctx, tk.ID)
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if requeued.Status != task.StatusQueued || requeued.StartedAt != nil ||
		requeued.CompletedAt != nil || requeued.ErrorMessage != "" || requeued.Output != nil {
		t.Errorf("requeued task kept run state: %+v", requeued)
	}
}

func TestStore_QueueStatusAndActivity(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	bid := createBusiness(t, s, business.AutonomySupervised)

	enqueue(t, s, task.CreateRequest{BusinessID: bid, Type: task.TypeWrite, Title: "a", AssignedTo: agent.RoleWriter})
	running := enqueue(t, s, task.CreateRequest{BusinessID: bid, Type: task.TypeResearch, Title: "b", Priority: 10})
	if _, err := s.Claim(ctx, running.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	qs, err := s.QueueStatus(ctx, bid)
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	if qs.Queued != 1 || qs.Running != 1 || qs.Review != 0 || qs.Approved != 0 {
		t.Errorf("counts = %+v", qs)
	}
	if qs.ByRole[agent.RoleWriter] != 1 || qs.ByRole[agent.RoleScout] != 1 || len(qs.ByRole) != 2 {
		t.Errorf("by_role = %v", qs.ByRole)
	}
	if running.AssignedTo != agent.RoleScout {
		t.Errorf("research task stored without its default role: %q", running.AssignedTo)
	}

	acts, err := s.RoleActivity(ctx, bid, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("role activity: %v", err)
	}
	var found bool
	for _, a := range acts {
		if a.Role == agent.RoleScout {
			found = true
			if a.Running != 1 {
				t.Errorf("scout running = %d", a.Running)
			}
		}
	}
	if !found {
		t.Error("scout missing from activity")
	}
}

func TestStore_Messages(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	bid := createBusiness(t, s, business.AutonomySupervised)
	tk := enqueue(t, s, task.CreateRequest{BusinessID: bid, Type: task.TypeWrite, Title: "post"})

	for _, body := range []string{"dispatching", "done"} {
		err := s.AppendMessage(ctx, message.Message{TaskID: tk.ID, From: message.FromDispatcher, Body: body})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	msgs, err := s.ListMessages(ctx, tk.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Body != "dispatching" || msgs[1].Body != "done" {
		t.Fatalf("messages = %+v", msgs)
	}
	if msgs[0].BusinessID != bid {
		t.Errorf("business id = %q", msgs[0].BusinessID)
	}

	err = s.AppendMessage(ctx, message.Message{TaskID: uuid.NewString(), From: "x", Body: "y"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
