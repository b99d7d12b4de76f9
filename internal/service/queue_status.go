package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Strob0t/taskcrew/internal/domain/agent"
	"github.com/Strob0t/taskcrew/internal/domain/task"
	"github.com/Strob0t/taskcrew/internal/port/cache"
	"github.com/Strob0t/taskcrew/internal/port/database"
	"github.com/Strob0t/taskcrew/internal/port/notifier"
)

// RoleStatus is the derived state of one role for a business.
type RoleStatus struct {
	Role           agent.Role   `json:"role"`
	Status         agent.Status `json:"status"`
	Running        int          `json:"running"`
	LastStatus     task.Status  `json:"last_status,omitempty"`
	LastFinishedAt *time.Time   `json:"last_finished_at,omitempty"`
}

// QueueStatusService answers queue summaries and role status projections.
// Queue summaries are cached briefly and evicted whenever a task of the
// business changes, so it also acts as a change sink.
type QueueStatusService struct {
	store  database.Store
	cache  cache.Cache
	ttl    time.Duration
	window time.Duration
	now    func() time.Time
}

// NewQueueStatusService creates the service. A nil cache or zero ttl
// disables caching.
func NewQueueStatusService(store database.Store, c cache.Cache, ttl, window time.Duration) *QueueStatusService {
	if window <= 0 {
		window = time.Hour
	}
	return &QueueStatusService{store: store, cache: c, ttl: ttl, window: window, now: time.Now}
}

// QueueStatus returns the live counts for a business.
func (s *QueueStatusService) QueueStatus(ctx context.Context, businessID string) (task.QueueStatus, error) {
	key := cache.QueueStatusKey(businessID)
	if s.cache != nil && s.ttl > 0 {
		if raw, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var qs task.QueueStatus
			if json.Unmarshal(raw, &qs) == nil {
				return qs, nil
			}
		}
	}

	if _, err := s.store.GetBusiness(ctx, businessID); err != nil {
		return task.QueueStatus{}, err
	}
	qs, err := s.store.QueueStatus(ctx, businessID)
	if err != nil {
		return task.QueueStatus{}, err
	}

	if s.cache != nil && s.ttl > 0 {
		if raw, err := json.Marshal(qs); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
				slog.Debug("queue status cache set failed", "business_id", businessID, "error", err)
			}
		}
	}
	return qs, nil
}

// Roles derives the status of every roster role for a business.
func (s *QueueStatusService) Roles(ctx context.Context, businessID string) ([]RoleStatus, error) {
	if _, err := s.store.GetBusiness(ctx, businessID); err != nil {
		return nil, err
	}
	acts, err := s.store.RoleActivity(ctx, businessID, s.now().Add(-s.window))
	if err != nil {
		return nil, err
	}
	byRole := make(map[agent.Role]task.RoleActivity, len(acts))
	for _, a := range acts {
		byRole[a.Role] = a
	}

	out := make([]RoleStatus, 0, len(agent.Roster))
	for _, r := range agent.Roster {
		a := byRole[r]
		out = append(out, RoleStatus{
			Role:           r,
			Status:         deriveRoleStatus(a),
			Running:        a.Running,
			LastStatus:     a.LastStatus,
			LastFinishedAt: a.LastFinishedAt,
		})
	}
	return out, nil
}

// deriveRoleStatus expects activity already limited to the status window.
func deriveRoleStatus(a task.RoleActivity) agent.Status {
	switch {
	case a.Running > 0:
		return agent.StatusWorking
	case a.LastStatus == task.StatusFailed:
		return agent.StatusError
	case a.LastStatus == task.StatusCompleted:
		return agent.StatusActive
	}
	return agent.StatusIdle
}

func (s *QueueStatusService) Name() string { return "queue-status-cache" }

// Notify evicts the cached summary of the changed business.
func (s *QueueStatusService) Notify(ctx context.Context, c notifier.Change) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, cache.QueueStatusKey(c.BusinessID))
}

var _ notifier.Notifier = (*QueueStatusService)(nil)
