// Package memstore implements the task store port in process memory.
// A single mutex plays the role of the database's row locks, so every
// guarded transition and every batch claim is atomic.
package memstore

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/taskcrew/internal/domain"
	"github.com/Strob0t/taskcrew/internal/domain/agent"
	"github.com/Strob0t/taskcrew/internal/domain/business"
	"github.com/Strob0t/taskcrew/internal/domain/message"
	"github.com/Strob0t/taskcrew/internal/domain/routing"
	"github.com/Strob0t/taskcrew/internal/domain/task"
	"github.com/Strob0t/taskcrew/internal/port/database"
)

type entry struct {
	task task.Task
	seq  uint64 // insertion order, tie-break for equal created_at
}

// Store is an in-memory database.Store.
type Store struct {
	mu         sync.Mutex
	businesses map[string]*business.Business
	tasks      map[string]*entry
	messages   map[string][]message.Message
	seq        uint64
	now        func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		businesses: make(map[string]*business.Business),
		tasks:      make(map[string]*entry),
		messages:   make(map[string][]message.Message),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source. For tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func clone(t *task.Task) *task.Task {
	c := *t
	c.Input = slices.Clone(t.Input)
	c.Output = slices.Clone(t.Output)
	if t.StartedAt != nil {
		v := *t.StartedAt
		c.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	return &c
}

// --- Businesses ---

// CreateBusiness stores a new business.
func (s *Store) CreateBusiness(_ context.Context, req business.CreateRequest) (*business.Business, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b := &business.Business{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Autonomy:  req.Autonomy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.businesses[b.ID] = b
	out := *b
	return &out, nil
}

// GetBusiness returns a business by id.
func (s *Store) GetBusiness(_ context.Context, id string) (*business.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.businesses[id]
	if !ok {
		return nil, fmt.Errorf("get business %s: %w", id, domain.ErrNotFound)
	}
	out := *b
	return &out, nil
}

// ListBusinesses returns all businesses, oldest first.
func (s *Store) ListBusinesses(_ context.Context) ([]business.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]business.Business, 0, len(s.businesses))
	for _, b := range s.businesses {
		out = append(out, *b)
	}
	slices.SortFunc(out, func(a, b business.Business) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

// UpdateAutonomy changes a business's autonomy level.
func (s *Store) UpdateAutonomy(_ context.Context, id string, level business.Autonomy) (*business.Business, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("%w: unknown autonomy level %q", domain.ErrValidation, level)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.businesses[id]
	if !ok {
		return nil, fmt.Errorf("update autonomy %s: %w", id, domain.ErrNotFound)
	}
	b.Autonomy = level
	b.UpdatedAt = s.now()
	out := *b
	return &out, nil
}

// --- Tasks ---

// Enqueue validates req and stores it as a queued task.
func (s *Store) Enqueue(_ context.Context, req task.CreateRequest) (*task.Task, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	routing.Assign(&req)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.businesses[req.BusinessID]; !ok {
		return nil, fmt.Errorf("%w: unknown business %s", domain.ErrValidation, req.BusinessID)
	}
	if req.ParentTaskID != "" {
		parent, ok := s.tasks[req.ParentTaskID]
		if !ok || parent.task.BusinessID != req.BusinessID {
			return nil, fmt.Errorf("%w: parent task %s not found in business %s",
				domain.ErrValidation, req.ParentTaskID, req.BusinessID)
		}
	}

	now := s.now()
	s.seq++
	e := &entry{
		seq: s.seq,
		task: task.Task{
			ID:           uuid.NewString(),
			BusinessID:   req.BusinessID,
			ParentTaskID: req.ParentTaskID,
			CampaignID:   req.CampaignID,
			Type:         req.Type,
			Title:        req.Title,
			Description:  req.Description,
			AssignedTo:   req.AssignedTo,
			CreatedBy:    req.CreatedBy,
			Priority:     req.Priority,
			Status:       task.StatusQueued,
			Input:        slices.Clone(req.Input),
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}
	s.tasks[e.task.ID] = e
	return clone(&e.task), nil
}

// GetTask returns a task by id.
func (s *Store) GetTask(_ context.Context, id string) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("get task %s: %w", id, domain.ErrNotFound)
	}
	return clone(&e.task), nil
}

// ListTasks returns the business's tasks, newest first.
func (s *Store) ListTasks(_ context.Context, businessID string, f task.ListFilter) ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*entry
	for _, e := range s.tasks {
		if e.task.BusinessID != businessID {
			continue
		}
		if f.Status != "" && e.task.Status != f.Status {
			continue
		}
		if f.CampaignID != "" && e.task.CampaignID != f.CampaignID {
			continue
		}
		matched = append(matched, e)
	}
	slices.SortFunc(matched, func(a, b *entry) int {
		return cmp.Or(b.task.CreatedAt.Compare(a.task.CreatedAt), cmp.Compare(b.seq, a.seq))
	})
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	out := make([]task.Task, 0, len(matched))
	for _, e := range matched {
		out = append(out, *clone(&e.task))
	}
	return out, nil
}

// ListChildren returns the direct children of a task in creation order.
func (s *Store) ListChildren(_ context.Context, parentID string) ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[parentID]; !ok {
		return nil, fmt.Errorf("list children of %s: %w", parentID, domain.ErrNotFound)
	}
	var matched []*entry
	for _, e := range s.tasks {
		if e.task.ParentTaskID == parentID {
			matched = append(matched, e)
		}
	}
	slices.SortFunc(matched, func(a, b *entry) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]task.Task, 0, len(matched))
	for _, e := range matched {
		out = append(out, *clone(&e.task))
	}
	return out, nil
}

// dispatchOrder sorts by priority descending, then oldest first.
func dispatchOrder(a, b *entry) int {
	return cmp.Or(
		cmp.Compare(b.task.Priority, a.task.Priority),
		a.task.CreatedAt.Compare(b.task.CreatedAt),
		cmp.Compare(a.seq, b.seq),
	)
}

// ClaimBatch moves up to limit queued tasks of the business to running.
func (s *Store) ClaimBatch(_ context.Context, businessID string, limit int) ([]task.Task, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var queued []*entry
	for _, e := range s.tasks {
		if e.task.BusinessID == businessID && e.task.Status == task.StatusQueued {
			queued = append(queued, e)
		}
	}
	slices.SortFunc(queued, dispatchOrder)
	if len(queued) > limit {
		queued = queued[:limit]
	}

	now := s.now()
	out := make([]task.Task, 0, len(queued))
	for _, e := range queued {
		if err := task.Apply(&e.task, task.EventClaim, task.Mutation{}, now); err != nil {
			return nil, err
		}
		out = append(out, *clone(&e.task))
	}
	return out, nil
}

// transition applies e to the task under the lock.
func (s *Store) transition(id string, e task.Event, m task.Mutation) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%s task %s: %w", e, id, domain.ErrNotFound)
	}
	if err := task.Apply(&ent.task, e, m, s.now()); err != nil {
		return nil, err
	}
	return clone(&ent.task), nil
}

// Claim moves one queued task to running.
func (s *Store) Claim(_ context.Context, id string) (*task.Task, error) {
	return s.transition(id, task.EventClaim, task.Mutation{})
}

// RecordOutcome persists the result of a running task.
func (s *Store) RecordOutcome(_ context.Context, id string, o task.Outcome) (*task.Task, error) {
	ev, err := o.Event()
	if err != nil {
		return nil, err
	}
	return s.transition(id, ev, o.Mutation())
}

// Approve moves a task from review to approved.
func (s *Store) Approve(_ context.Context, id string) (*task.Task, error) {
	return s.transition(id, task.EventApprove, task.Mutation{})
}

// Reject moves a task from review to failed with the reason as error message.
func (s *Store) Reject(_ context.Context, id, reason string) (*task.Task, error) {
	return s.transition(id, task.EventReject, task.Mutation{Error: reason})
}

// Cancel moves a non-terminal task to cancelled.
func (s *Store) Cancel(_ context.Context, id string) (*task.Task, error) {
	return s.transition(id, task.EventCancel, task.Mutation{})
}

// MarkPublished completes an approved task.
func (s *Store) MarkPublished(_ context.Context, id string, output json.RawMessage) (*task.Task, error) {
	return s.transition(id, task.EventPublish, task.Mutation{Output: slices.Clone(output)})
}

// Requeue moves a failed task back to queued.
func (s *Store) Requeue(_ context.Context, id string) (*task.Task, error) {
	return s.transition(id, task.EventRequeue, task.Mutation{})
}

// QueueStatus counts the live part of the business's queue.
func (s *Store) QueueStatus(_ context.Context, businessID string) (task.QueueStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	qs := task.QueueStatus{ByRole: map[agent.Role]int{}}
	for _, e := range s.tasks {
		t := &e.task
		if t.BusinessID != businessID {
			continue
		}
		switch t.Status {
		case task.StatusQueued:
			qs.Queued++
		case task.StatusRunning:
			qs.Running++
		case task.StatusReview:
			qs.Review++
		case task.StatusApproved:
			qs.Approved++
			continue
		default:
			continue
		}
		if t.AssignedTo != "" {
			qs.ByRole[t.AssignedTo]++
		}
	}
	return qs, nil
}

// RoleActivity aggregates running and recently finished tasks per role.
func (s *Store) RoleActivity(_ context.Context, businessID string, since time.Time) ([]task.RoleActivity, error) {
	s.mu.Lock()
	var relevant []task.Task
	for _, e := range s.tasks {
		t := &e.task
		if t.BusinessID != businessID {
			continue
		}
		if t.Status == task.StatusRunning ||
			(t.Status.IsTerminal() && t.CompletedAt != nil && !t.CompletedAt.Before(since)) {
			relevant = append(relevant, *clone(t))
		}
	}
	s.mu.Unlock()
	return routing.Activity(relevant), nil
}

// --- Message log ---

// AppendMessage adds an entry to a task's activity log.
func (s *Store) AppendMessage(_ context.Context, m message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[m.TaskID]; !ok {
		return fmt.Errorf("append message to %s: %w", m.TaskID, domain.ErrNotFound)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	m.Metadata = slices.Clone(m.Metadata)
	s.messages[m.TaskID] = append(s.messages[m.TaskID], m)
	return nil
}

// ListMessages returns a task's activity log in append order.
func (s *Store) ListMessages(_ context.Context, taskID string) ([]message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		return nil, fmt.Errorf("list messages of %s: %w", taskID, domain.ErrNotFound)
	}
	return slices.Clone(s.messages[taskID]), nil
}

var _ database.Store = (*Store)(nil)
