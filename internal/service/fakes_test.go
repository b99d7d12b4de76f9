package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/taskcrew/internal/adapter/memstore"
	"github.com/Strob0t/taskcrew/internal/config"
	"github.com/Strob0t/taskcrew/internal/domain"
	"github.com/Strob0t/taskcrew/internal/domain/business"
	"github.com/Strob0t/taskcrew/internal/domain/task"
	"github.com/Strob0t/taskcrew/internal/port/notifier"
	"github.com/Strob0t/taskcrew/internal/port/worker"
)

// fakeInvoker records every call and answers through fn, or with a plain
// success when fn is nil.
type fakeInvoker struct {
	mu    sync.Mutex
	calls []worker.Request
	fn    func(req worker.Request) (worker.Response, error)
}

func (f *fakeInvoker) Invoke(_ context.Context, req worker.Request) (worker.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return worker.Response{Success: true, Data: json.RawMessage(`{"ok":true}`)}, nil
}

func (f *fakeInvoker) taskIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		ids = append(ids, c.TaskID)
	}
	return ids
}

// recordingNotifier keeps every change it receives.
type recordingNotifier struct {
	mu      sync.Mutex
	changes []notifier.Change
	err     error
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Notify(_ context.Context, c notifier.Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
	return r.err
}

func (r *recordingNotifier) statusesOf(taskID string) []task.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []task.Status
	for _, c := range r.changes {
		if c.TaskID == taskID {
			out = append(out, c.NewStatus)
		}
	}
	return out
}

// mapCache is an in-memory cache.Cache that ignores ttl.
type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	deletes int
}

func newMapCache() *mapCache { return &mapCache{entries: map[string][]byte{}} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.deletes++
	return nil
}

// failingClaimStore fails every batch claim with a persistence error.
type failingClaimStore struct {
	*memstore.Store
}

func (s failingClaimStore) ClaimBatch(context.Context, string, int) ([]task.Task, error) {
	return nil, errors.Join(domain.ErrPersistence, errors.New("connection refused"))
}

// ghostRoleStore hands out claimed tasks assigned to a role outside the roster,
// as a corrupted row would.
type ghostRoleStore struct {
	*memstore.Store
}

func (s ghostRoleStore) ClaimBatch(ctx context.Context, businessID string, limit int) ([]task.Task, error) {
	claimed, err := s.Store.ClaimBatch(ctx, businessID, limit)
	for i := range claimed {
		claimed[i].AssignedTo = "ghost"
	}
	return claimed, err
}

type fixture struct {
	store      *memstore.Store
	invoker    *fakeInvoker
	recorder   *recordingNotifier
	changes    *Notifiers
	dispatcher *Dispatcher
	tasks      *TaskService
	businessID string
}

func newFixture(t *testing.T, level business.Autonomy, cfg config.Orchestrator) *fixture {
	t.Helper()
	store := memstore.New()
	b, err := store.CreateBusiness(context.Background(), business.CreateRequest{Name: "Acme", Autonomy: level})
	if err != nil {
		t.Fatalf("create business: %v", err)
	}
	rec := &recordingNotifier{}
	changes := NewNotifiers(nil, rec)
	inv := &fakeInvoker{}
	return &fixture{
		store:    store,
		invoker:  inv,
		recorder: rec,
		changes:  changes,
		dispatcher: NewDispatcher(DispatcherDeps{
			Store:   store,
			Invoker: inv,
			Changes: changes,
			Config:  cfg,
		}),
		tasks:      NewTaskService(store, changes),
		businessID: b.ID,
	}
}

func (f *fixture) enqueue(t *testing.T, typ task.Type, title string, priority int) *task.Task {
	t.Helper()
	tk, err := f.tasks.Enqueue(context.Background(), task.CreateRequest{
		BusinessID: f.businessID,
		Type:       typ,
		Title:      title,
		Priority:   priority,
	})
	if err != nil {
		t.Fatalf("enqueue %q: %v", title, err)
	}
	return tk
}

func (f *fixture) get(t *testing.T, id string) *task.Task {
	t.Helper()
	tk, err := f.store.GetTask(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return tk
}
