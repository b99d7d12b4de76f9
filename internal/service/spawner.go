package service

import (
	"context"
	"fmt"

	"github.com/Strob0t/taskcrew/internal/domain"
	"github.com/Strob0t/taskcrew/internal/domain/agent"
	"github.com/Strob0t/taskcrew/internal/domain/plan"
	"github.com/Strob0t/taskcrew/internal/domain/task"
	"github.com/Strob0t/taskcrew/internal/port/database"
)

// Spawner turns plan items into child tasks of a parent.
type Spawner struct {
	store   database.Store
	changes *Notifiers
}

// NewSpawner creates a new Spawner.
func NewSpawner(store database.Store, changes *Notifiers) *Spawner {
	return &Spawner{store: store, changes: changes}
}

// Spawn enqueues one child per item under parentID and returns the new ids in
// item order. Children inherit the parent's business and campaign and are
// created by the commander. Priorities outside the task range are clamped.
// Every item is validated first; an invalid item means nothing is enqueued.
func (s *Spawner) Spawn(ctx context.Context, parentID string, items []plan.Item) ([]string, error) {
	parent, err := s.store.GetTask(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("spawn under %s: %w", parentID, err)
	}
	if err := plan.Validate(items); err != nil {
		return nil, fmt.Errorf("spawn under %s: %w", parentID, err)
	}

	reqs := make([]task.CreateRequest, 0, len(items))
	for i, it := range items {
		req := task.CreateRequest{
			BusinessID:   parent.BusinessID,
			ParentTaskID: parent.ID,
			CampaignID:   parent.CampaignID,
			Type:         it.Type,
			Title:        it.Title,
			Description:  it.Description,
			AssignedTo:   it.AssignTo,
			CreatedBy:    string(agent.RoleCommander),
			Priority:     plan.ClampPriority(it.Priority),
			Input:        it.Input,
		}
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("spawn under %s: item %d: %w", parentID, i, err)
		}
		reqs = append(reqs, req)
	}

	ids := make([]string, 0, len(reqs))
	for _, req := range reqs {
		child, err := s.store.Enqueue(ctx, req)
		if err != nil {
			return ids, fmt.Errorf("spawn under %s: enqueue %q: %w", parentID, req.Title, err)
		}
		s.changes.Changed(ctx, child)
		ids = append(ids, child.ID)
	}
	return ids, nil
}

// SpawnPlan expands a decoded plan. Phase items without a campaign get the
// parent's campaign id.
func (s *Spawner) SpawnPlan(ctx context.Context, parent *task.Task, p plan.Plan) ([]string, error) {
	if p.CampaignID == "" {
		p.CampaignID = parent.CampaignID
	}
	items, err := p.Items()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return s.Spawn(ctx, parent.ID, items)
}
