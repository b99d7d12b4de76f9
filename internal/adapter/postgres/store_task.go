package postgres

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/taskcrew/internal/domain"
	"github.com/Strob0t/taskcrew/internal/domain/agent"
	"github.com/Strob0t/taskcrew/internal/domain/routing"
	"github.com/Strob0t/taskcrew/internal/domain/task"
)

const taskColumns = `id, business_id, parent_task_id, campaign_id, type, title, description,
	assigned_to, created_by, priority, status, input, output, error_message,
	started_at, completed_at, created_at, updated_at`

func scanTask(row scannable) (task.Task, error) {
	var (
		t                               task.Task
		parent, campaign, assigned, msg *string
		input, output                   []byte
	)
	err := row.Scan(
		&t.ID, &t.BusinessID, &parent, &campaign, &t.Type, &t.Title, &t.Description,
		&assigned, &t.CreatedBy, &t.Priority, &t.Status, &input, &output, &msg,
		&t.StartedAt, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return t, err
	}
	t.ParentTaskID = derefString(parent)
	t.CampaignID = derefString(campaign)
	t.AssignedTo = agent.Role(derefString(assigned))
	t.ErrorMessage = derefString(msg)
	t.Input = json.RawMessage(input)
	if len(output) > 0 {
		t.Output = json.RawMessage(output)
	}
	return t, nil
}

func collectTasks(rows pgx.Rows, op string) ([]task.Task, error) {
	defer rows.Close()
	var out []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, persistenceWrap(err, "%s: scan task", op)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceWrap(err, "%s", op)
	}
	return orEmpty(out), nil
}

// Enqueue inserts a queued task. The insert only happens when the business
// exists and the parent, if any, belongs to the same business.
func (s *Store) Enqueue(ctx context.Context, req task.CreateRequest) (*task.Task, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	routing.Assign(&req)
	row := s.pool.QueryRow(ctx, `
		INSERT INTO tasks (business_id, parent_task_id, campaign_id, type, title, description,
			assigned_to, created_by, priority, input)
		SELECT b.id, $2::uuid, $3, $4, $5, $6, $7, $8, $9, $10::jsonb
		FROM businesses b
		WHERE b.id = $1::uuid
		  AND ($2::uuid IS NULL OR EXISTS (
			SELECT 1 FROM tasks p WHERE p.id = $2::uuid AND p.business_id = b.id))
		RETURNING `+taskColumns,
		req.BusinessID, nullIfEmpty(req.ParentTaskID), nullIfEmpty(req.CampaignID),
		string(req.Type), req.Title, req.Description, nullIfEmpty(string(req.AssignedTo)),
		req.CreatedBy, req.Priority, string(req.Input),
	)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if req.ParentTaskID != "" {
			return nil, fmt.Errorf("%w: parent task %s not found in business %s",
				domain.ErrValidation, req.ParentTaskID, req.BusinessID)
		}
		return nil, fmt.Errorf("%w: unknown business %s", domain.ErrValidation, req.BusinessID)
	}
	if err != nil {
		return nil, validationWrap(err, "enqueue task")
	}
	return &t, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err != nil {
		return nil, notFoundWrap(err, "get task %s", id)
	}
	return &t, nil
}

// ListTasks returns the business's tasks, newest first.
func (s *Store) ListTasks(ctx context.Context, businessID string, f task.ListFilter) ([]task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE business_id = $1`
	args := []any{businessID}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.CampaignID != "" {
		args = append(args, f.CampaignID)
		query += fmt.Sprintf(" AND campaign_id = $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		if pgCode(err) == codeInvalidText {
			return []task.Task{}, nil
		}
		return nil, persistenceWrap(err, "list tasks")
	}
	return collectTasks(rows, "list tasks")
}

// ListChildren returns the direct children of a task in creation order.
func (s *Store) ListChildren(ctx context.Context, parentID string) ([]task.Task, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, parentID).Scan(&exists)
	if err != nil {
		return nil, notFoundWrap(err, "list children of %s", parentID)
	}
	if !exists {
		return nil, fmt.Errorf("list children of %s: %w", parentID, domain.ErrNotFound)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE parent_task_id = $1 ORDER BY created_at, id`, parentID)
	if err != nil {
		return nil, persistenceWrap(err, "list children of %s", parentID)
	}
	return collectTasks(rows, "list children")
}

// ClaimBatch locks up to limit queued rows with SKIP LOCKED, so concurrent
// claimers never receive the same task, and flips them to running in one
// statement. RETURNING carries no order, so the batch is re-sorted here.
func (s *Store) ClaimBatch(ctx context.Context, businessID string, limit int) ([]task.Task, error) {
	if limit <= 0 {
		return []task.Task{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		UPDATE tasks SET status = 'running', started_at = now(), updated_at = now()
		WHERE status = 'queued' AND id IN (
			SELECT id FROM tasks
			WHERE business_id = $1 AND status = 'queued'
			ORDER BY priority DESC, created_at ASC, id ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED)
		RETURNING `+taskColumns, businessID, limit)
	if err != nil {
		if pgCode(err) == codeInvalidText {
			return []task.Task{}, nil
		}
		return nil, persistenceWrap(err, "claim batch for %s", businessID)
	}
	claimed, err := collectTasks(rows, "claim batch")
	if err != nil {
		return nil, err
	}
	slices.SortFunc(claimed, func(a, b task.Task) int {
		return cmp.Or(
			cmp.Compare(b.Priority, a.Priority),
			a.CreatedAt.Compare(b.CreatedAt),
			strings.Compare(a.ID, b.ID),
		)
	})
	return claimed, nil
}

// transition applies event e as a single guarded UPDATE. When no row matches,
// a follow-up read tells a missing task apart from a status mismatch.
func (s *Store) transition(ctx context.Context, id string, e task.Event, m task.Mutation) (*task.Task, error) {
	to := e.To()
	from := make([]string, 0, len(e.From()))
	for _, st := range e.From() {
		from = append(from, string(st))
	}

	set := []string{"status = $2", "updated_at = now()"}
	args := []any{id, string(to), from}
	switch e {
	case task.EventClaim:
		set = append(set, "started_at = now()")
	case task.EventComplete, task.EventNeedsReview, task.EventPublish:
		if m.Output != nil {
			args = append(args, nullJSON(m.Output))
			set = append(set, fmt.Sprintf("output = $%d::jsonb", len(args)))
		}
	case task.EventFail, task.EventReject:
		args = append(args, m.Error)
		set = append(set, fmt.Sprintf("error_message = $%d", len(args)))
	case task.EventRequeue:
		set = append(set, "started_at = NULL", "completed_at = NULL", "error_message = NULL", "output = NULL")
	}
	if to.IsTerminal() {
		set = append(set, "completed_at = now()")
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE tasks SET `+strings.Join(set, ", ")+
			` WHERE id = $1 AND status = ANY($3::text[]) RETURNING `+taskColumns, args...)
	t, err := scanTask(row)
	if err == nil {
		return &t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, notFoundWrap(err, "%s task %s", e, id)
	}

	var current task.Status
	if err := s.pool.QueryRow(ctx, `SELECT status FROM tasks WHERE id = $1`, id).Scan(&current); err != nil {
		return nil, notFoundWrap(err, "%s task %s", e, id)
	}
	return nil, &task.TransitionError{TaskID: id, Event: e, Current: current}
}

func (s *Store) Claim(ctx context.Context, id string) (*task.Task, error) {
	return s.transition(ctx, id, task.EventClaim, task.Mutation{})
}

func (s *Store) RecordOutcome(ctx context.Context, id string, o task.Outcome) (*task.Task, error) {
	e, err := o.Event()
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, id, e, o.Mutation())
}

func (s *Store) Approve(ctx context.Context, id string) (*task.Task, error) {
	return s.transition(ctx, id, task.EventApprove, task.Mutation{})
}

func (s *Store) Reject(ctx context.Context, id, reason string) (*task.Task, error) {
	return s.transition(ctx, id, task.EventReject, task.Mutation{Error: reason})
}

func (s *Store) Cancel(ctx context.Context, id string) (*task.Task, error) {
	return s.transition(ctx, id, task.EventCancel, task.Mutation{})
}

func (s *Store) MarkPublished(ctx context.Context, id string, output json.RawMessage) (*task.Task, error) {
	return s.transition(ctx, id, task.EventPublish, task.Mutation{Output: output})
}

func (s *Store) Requeue(ctx context.Context, id string) (*task.Task, error) {
	return s.transition(ctx, id, task.EventRequeue, task.Mutation{})
}

// QueueStatus counts the live part of the business's queue.
func (s *Store) QueueStatus(ctx context.Context, businessID string) (task.QueueStatus, error) {
	qs := task.QueueStatus{ByRole: map[agent.Role]int{}}
	rows, err := s.pool.Query(ctx, `
		SELECT status, COALESCE(assigned_to, ''), count(*)
		FROM tasks
		WHERE business_id = $1 AND status IN ('queued', 'running', 'review', 'approved')
		GROUP BY status, assigned_to`, businessID)
	if err != nil {
		if pgCode(err) == codeInvalidText {
			return qs, nil
		}
		return qs, persistenceWrap(err, "queue status for %s", businessID)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status   task.Status
			assigned string
			n        int
		)
		if err := rows.Scan(&status, &assigned, &n); err != nil {
			return qs, persistenceWrap(err, "scan queue status")
		}
		switch status {
		case task.StatusQueued:
			qs.Queued += n
		case task.StatusRunning:
			qs.Running += n
		case task.StatusReview:
			qs.Review += n
		case task.StatusApproved:
			qs.Approved += n
			continue
		}
		if assigned != "" {
			qs.ByRole[agent.Role(assigned)] += n
		}
	}
	if err := rows.Err(); err != nil {
		return qs, persistenceWrap(err, "queue status for %s", businessID)
	}
	return qs, nil
}

// RoleActivity aggregates running and recently finished tasks per role.
func (s *Store) RoleActivity(ctx context.Context, businessID string, since time.Time) ([]task.RoleActivity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE business_id = $1
		  AND (status = 'running'
		       OR (status IN ('completed', 'failed', 'cancelled') AND completed_at >= $2))`,
		businessID, since)
	if err != nil {
		if pgCode(err) == codeInvalidText {
			return routing.Activity(nil), nil
		}
		return nil, persistenceWrap(err, "role activity for %s", businessID)
	}
	relevant, err := collectTasks(rows, "role activity")
	if err != nil {
		return nil, err
	}
	return routing.Activity(relevant), nil
}
